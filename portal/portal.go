// Package portal wires the client core together: session store,
// authenticated transport, entity cache, API services, and route guard,
// with one explicit lifecycle instead of ambient global state.
package portal

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stitchline/portal-client/api"
	"github.com/stitchline/portal-client/cache"
	"github.com/stitchline/portal-client/guard"
	"github.com/stitchline/portal-client/internal/config"
	"github.com/stitchline/portal-client/session"
	"github.com/stitchline/portal-client/transport"
	"github.com/stitchline/portal-client/users"
)

type Portal struct {
	Session   *session.Store
	Transport *transport.Client
	Cache     *cache.Store
	API       *api.Client
	Guard     *guard.Guard

	log zerolog.Logger
}

type Option func(*options)

type options struct {
	fs         afero.Fs
	httpClient *http.Client
	log        zerolog.Logger
	baseURL    string
}

// WithFs overrides the filesystem used for persisted state (tests pass
// afero.NewMemMapFs()).
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		o.httpClient = httpClient
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// New bootstraps the portal core. The session hydrates synchronously from
// persisted storage, so guard decisions are correct from the first render.
func New(cfg config.Config, opts ...Option) (*Portal, error) {
	o := &options{
		fs:      afero.NewOsFs(),
		log:     zerolog.Nop(),
		baseURL: cfg.GetBaseURL(),
	}
	for _, opt := range opts {
		opt(o)
	}

	storage, err := session.NewFileStorage(o.fs, cfg.GetDataFolder())
	if err != nil {
		return nil, errors.Wrap(err, "[portal.New] storage")
	}

	sessionStore, err := session.NewStore(storage, session.WithLogger(o.log))
	if err != nil {
		return nil, errors.Wrap(err, "[portal.New] session store")
	}

	cacheStore := cache.New(cache.WithLogger(o.log))

	transportOpts := []transport.Option{
		transport.WithLogger(o.log),
		// Terminal auth failure anywhere in the pipeline empties the
		// cache along with the session.
		transport.WithAuthExpiredHandler(cacheStore.Reset),
	}
	if o.httpClient != nil {
		transportOpts = append(transportOpts, transport.WithHTTPClient(o.httpClient))
	} else {
		transportOpts = append(transportOpts, transport.WithHTTPClient(&http.Client{Timeout: cfg.GetHTTPTimeout()}))
	}

	transportClient, err := transport.New(o.baseURL, sessionStore, transportOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "[portal.New] transport")
	}

	return &Portal{
		Session:   sessionStore,
		Transport: transportClient,
		Cache:     cacheStore,
		API:       api.New(transportClient, cacheStore),
		Guard:     guard.New(sessionStore),
		log:       o.log,
	}, nil
}

// Login authenticates, stores the credentials, and returns the path the
// UI should navigate to: the remembered pre-login path, or the role's
// default landing route.
func (p *Portal) Login(ctx context.Context, username, password string) (redirect string, err error) {
	resp, err := p.API.Auth.Login(ctx, username, password)
	if err != nil {
		return "", err
	}

	user := resp.User
	p.Session.SetCredentials(session.Credentials{
		User:    &user,
		Access:  &resp.Access,
		Refresh: &resp.Refresh,
	})
	p.log.Info().Str("username", user.Username).Str("role", string(user.Role)).Msg("logged in")

	return p.Guard.PostLoginTarget(user.Role), nil
}

// Logout clears the session and drops every cached resource. Safe to
// call when already logged out.
func (p *Portal) Logout() {
	p.Session.Logout()
	p.Cache.Reset()
}

// CurrentRole reports the logged-in user's role, if the profile has
// resolved yet.
func (p *Portal) CurrentRole() (users.Role, bool) {
	user := p.Session.CurrentUser()
	if user == nil {
		return "", false
	}
	return user.Role, true
}
