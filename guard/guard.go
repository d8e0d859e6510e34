// Package guard gates navigation. It derives a read-only session/role
// context from the token store and decides, per navigation attempt,
// whether to render the requested view or redirect.
package guard

import (
	"sync"

	"github.com/stitchline/portal-client/users"
)

// Decision is the outcome of evaluating one navigation attempt.
type Decision int

const (
	Allow Decision = iota
	RedirectToLogin
	RedirectToUnauthorized
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect-to-login"
	case RedirectToUnauthorized:
		return "redirect-to-unauthorized"
	}
	return "unknown"
}

// Route declares a view's access requirements.
type Route struct {
	Path         string
	RequireAuth  bool
	AllowedRoles []users.Role
}

// Outcome pairs the decision with the redirect target, when any.
type Outcome struct {
	Decision   Decision
	RedirectTo string
}

// SessionReader is the read-only slice of the session store the guard
// observes. It never mutates session state.
type SessionReader interface {
	IsAuthenticated() bool
	CurrentUser() *users.Profile
}

// Context is the derived {isAuthenticated, role, user} view. A nil Role
// means "role unknown" (a valid token may exist before the profile fetch
// resolves) and is never treated as unauthorized.
type Context struct {
	Authenticated bool
	Role          *users.Role
	User          *users.Profile
}

type Guard struct {
	mu               sync.Mutex
	session          SessionReader
	loginPath        string
	unauthorizedPath string
	remembered       string
}

type Option func(*Guard)

func WithLoginPath(path string) Option {
	return func(g *Guard) {
		g.loginPath = path
	}
}

func WithUnauthorizedPath(path string) Option {
	return func(g *Guard) {
		g.unauthorizedPath = path
	}
}

func New(session SessionReader, options ...Option) *Guard {
	guard := &Guard{
		session:          session,
		loginPath:        "/login",
		unauthorizedPath: "/unauthorized",
	}
	for _, opt := range options {
		opt(guard)
	}
	return guard
}

// Context derives the current session/role view. Authenticated mirrors
// the token store exactly; Role is only set once a profile is loaded.
func (g *Guard) Context() Context {
	user := g.session.CurrentUser()
	ctx := Context{
		Authenticated: g.session.IsAuthenticated(),
		User:          user,
	}
	if user != nil {
		role := user.Role
		ctx.Role = &role
	}
	return ctx
}

// Evaluate runs the guard state machine for a navigation attempt. The
// outcome is terminal: render or redirect, never a retry state.
func (g *Guard) Evaluate(route Route) Outcome {
	ctx := g.Context()

	if route.RequireAuth && !ctx.Authenticated {
		g.rememberPath(route.Path)
		return Outcome{Decision: RedirectToLogin, RedirectTo: g.loginPath}
	}

	// An unknown role (profile not yet loaded) is not a denial; the
	// backend still authorizes every data request.
	if len(route.AllowedRoles) > 0 && ctx.Role != nil && !roleAllowed(*ctx.Role, route.AllowedRoles) {
		return Outcome{Decision: RedirectToUnauthorized, RedirectTo: g.unauthorizedPath}
	}

	return Outcome{Decision: Allow}
}

// PostLoginTarget resolves where a successful login should land: the path
// the user was trying to reach before being bounced to login, or the
// role's default landing route when none was recorded (or the recorded
// path was the login page itself, which would loop).
func (g *Guard) PostLoginTarget(role users.Role) string {
	g.mu.Lock()
	remembered := g.remembered
	g.remembered = ""
	g.mu.Unlock()

	if remembered == "" || remembered == g.loginPath {
		return role.DefaultLanding()
	}
	return remembered
}

// RememberedPath reports the recorded pre-login path without clearing it.
func (g *Guard) RememberedPath() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remembered
}

func (g *Guard) rememberPath(path string) {
	if path == "" || path == g.loginPath {
		return
	}
	g.mu.Lock()
	g.remembered = path
	g.mu.Unlock()
}

func roleAllowed(role users.Role, allowed []users.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
