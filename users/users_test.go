package users_test

import (
	"testing"

	"github.com/stitchline/portal-client/users"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"buyer", "seller", "salesman", "designer", "admin"} {
		role, err := users.ParseRole(valid)
		require.NoError(t, err)
		require.Equal(t, users.Role(valid), role)
	}

	_, err := users.ParseRole("superuser")
	require.ErrorIs(t, err, users.UnknownRoleErr)

	_, err = users.ParseRole("")
	require.ErrorIs(t, err, users.UnknownRoleErr)
}

func TestDefaultLanding(t *testing.T) {
	require.Equal(t, "/admin", users.RoleAdmin.DefaultLanding())
	require.Equal(t, "/salesman", users.RoleSalesman.DefaultLanding())
	require.Equal(t, "/designer", users.RoleDesigner.DefaultLanding())
	require.Equal(t, "/buyer", users.RoleBuyer.DefaultLanding())
	require.Equal(t, "/seller", users.RoleSeller.DefaultLanding())
	require.Equal(t, "/", users.Role("nonsense").DefaultLanding())
}

func TestFullName(t *testing.T) {
	p := &users.Profile{FirstName: "Asha", LastName: "Patel"}
	require.Equal(t, "Asha Patel", p.FullName())
	require.Equal(t, "Asha", (&users.Profile{FirstName: "Asha"}).FullName())
	require.Equal(t, "Patel", (&users.Profile{LastName: "Patel"}).FullName())
}
