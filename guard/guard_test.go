package guard_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stitchline/portal-client/guard"
	"github.com/stitchline/portal-client/internal/utils"
	"github.com/stitchline/portal-client/session"
	"github.com/stitchline/portal-client/users"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	storage, err := session.NewFileStorage(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	store, err := session.NewStore(storage)
	require.NoError(t, err)
	return store
}

func login(store *session.Store, role users.Role) {
	store.SetCredentials(session.Credentials{
		User:    &users.Profile{Username: "test", Role: role},
		Access:  utils.Ptr("A"),
		Refresh: utils.Ptr("R"),
	})
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)

	outcome := g.Evaluate(guard.Route{Path: "/salesman/leads", RequireAuth: true})
	require.Equal(t, guard.RedirectToLogin, outcome.Decision)
	require.Equal(t, "/login", outcome.RedirectTo)
	require.Equal(t, "/salesman/leads", g.RememberedPath())
}

func TestRoleMismatchRedirectsToUnauthorized(t *testing.T) {
	store := newTestStore(t)
	login(store, users.RoleBuyer)
	g := guard.New(store)

	outcome := g.Evaluate(guard.Route{
		Path:         "/admin",
		RequireAuth:  true,
		AllowedRoles: []users.Role{users.RoleAdmin},
	})
	require.Equal(t, guard.RedirectToUnauthorized, outcome.Decision)
	require.Equal(t, "/unauthorized", outcome.RedirectTo)
}

func TestAllowedRoleRenders(t *testing.T) {
	store := newTestStore(t)
	login(store, users.RoleSalesman)
	g := guard.New(store)

	outcome := g.Evaluate(guard.Route{
		Path:         "/salesman/leads",
		RequireAuth:  true,
		AllowedRoles: []users.Role{users.RoleSalesman, users.RoleAdmin},
	})
	require.Equal(t, guard.Allow, outcome.Decision)
	require.Empty(t, outcome.RedirectTo)
}

func TestUnknownRoleIsNotADenial(t *testing.T) {
	store := newTestStore(t)
	// Token present but profile not yet fetched: role is unknown.
	store.SetCredentials(session.Credentials{Access: utils.Ptr("A")})
	g := guard.New(store)

	ctx := g.Context()
	require.True(t, ctx.Authenticated)
	require.Nil(t, ctx.Role)

	outcome := g.Evaluate(guard.Route{
		Path:         "/admin",
		RequireAuth:  true,
		AllowedRoles: []users.Role{users.RoleAdmin},
	})
	require.Equal(t, guard.Allow, outcome.Decision)
}

func TestPostLoginRedirectToRememberedPath(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)

	g.Evaluate(guard.Route{Path: "/salesman/leads", RequireAuth: true})
	login(store, users.RoleSalesman)

	require.Equal(t, "/salesman/leads", g.PostLoginTarget(users.RoleSalesman))

	// The remembered path is consumed by the redirect.
	require.Empty(t, g.RememberedPath())
	require.Equal(t, "/salesman", g.PostLoginTarget(users.RoleSalesman))
}

func TestPostLoginFallsBackToRoleLanding(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)

	// Nothing remembered.
	require.Equal(t, "/admin", g.PostLoginTarget(users.RoleAdmin))
	require.Equal(t, "/buyer", g.PostLoginTarget(users.RoleBuyer))
}

func TestLoginPathIsNeverRemembered(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)

	// Navigating to /login while logged out must not create a loop.
	g.Evaluate(guard.Route{Path: "/login", RequireAuth: true})
	require.Empty(t, g.RememberedPath())
	require.Equal(t, "/designer", g.PostLoginTarget(users.RoleDesigner))
}

func TestCustomPaths(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store, guard.WithLoginPath("/signin"), guard.WithUnauthorizedPath("/403"))

	outcome := g.Evaluate(guard.Route{Path: "/orders", RequireAuth: true})
	require.Equal(t, "/signin", outcome.RedirectTo)

	login(store, users.RoleBuyer)
	outcome = g.Evaluate(guard.Route{Path: "/admin", RequireAuth: true, AllowedRoles: []users.Role{users.RoleAdmin}})
	require.Equal(t, "/403", outcome.RedirectTo)
}

func TestContextMirrorsSession(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)

	require.False(t, g.Context().Authenticated)

	login(store, users.RoleDesigner)
	ctx := g.Context()
	require.True(t, ctx.Authenticated)
	require.NotNil(t, ctx.Role)
	require.Equal(t, users.RoleDesigner, *ctx.Role)

	store.Logout()
	require.False(t, g.Context().Authenticated)
}
