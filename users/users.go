package users

import "github.com/pkg/errors"

// Role represents a portal user's capability class. The set is closed:
// every role the backend can return is enumerated here, and guard logic
// switches over it exhaustively.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleSalesman Role = "salesman"
	RoleDesigner Role = "designer"
	RoleAdmin    Role = "admin"
)

var UnknownRoleErr = errors.New("unknown role")

// ParseRole validates a role string received from the backend.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleBuyer, RoleSeller, RoleSalesman, RoleDesigner, RoleAdmin:
		return Role(s), nil
	}
	return "", errors.Wrapf(UnknownRoleErr, "[ParseRole] %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// DefaultLanding returns the canonical landing route for a role, used when
// a login has no remembered path to return to.
func (r Role) DefaultLanding() string {
	switch r {
	case RoleAdmin:
		return "/admin"
	case RoleSalesman:
		return "/salesman"
	case RoleDesigner:
		return "/designer"
	case RoleSeller:
		return "/seller"
	case RoleBuyer:
		return "/buyer"
	}
	return "/"
}

// Profile mirrors the backend's /users/me/ payload.
type Profile struct {
	ID        int64  `json:"id,omitempty"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      Role   `json:"role,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	Picture   string `json:"picture,omitempty"` // URL of the profile picture
}

func (p *Profile) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
