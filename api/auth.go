package api

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/stitchline/portal-client/cache"
	"github.com/stitchline/portal-client/transport"
	"github.com/stitchline/portal-client/users"
)

const (
	meKey   = "users:me"
	meTagID = "ME"
)

// Login failure kinds, so the login form can show a specific message.
var (
	InvalidCredentialsErr = errors.New("invalid credentials")
	ServerUnreachableErr  = errors.New("server unreachable")
	ServerFailureErr      = errors.New("server error")
)

// AuthService covers login, registration, the current-user profile, and
// password changes. Token refresh itself lives in the transport pipeline.
type AuthService struct {
	transport *transport.Client
	cache     *cache.Store
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the /login/ payload: a token pair plus the profile.
type LoginResponse struct {
	Access  string        `json:"access"`
	Refresh string        `json:"refresh"`
	User    users.Profile `json:"user"`
}

// Login exchanges credentials for tokens. Failures are classified so the
// caller can distinguish bad credentials, an unreachable server, and a
// server-side failure.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	resp, err := doJSON[LoginResponse](ctx, s.transport, transport.Request{
		Method: http.MethodPost,
		Path:   "/login/",
		Body:   LoginRequest{Username: username, Password: password},
		NoAuth: true,
	})
	if err != nil {
		return nil, classifyLoginError(err)
	}
	if _, roleErr := users.ParseRole(string(resp.User.Role)); roleErr != nil {
		return nil, errors.Wrap(roleErr, "[AuthService.Login] backend returned unusable profile")
	}
	return &resp, nil
}

type RegisterRequest struct {
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Password  string     `json:"password"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Role      users.Role `json:"role"`
	Company   string     `json:"company,omitempty"`
	Phone     string     `json:"phone,omitempty"`
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*users.Profile, error) {
	profile, err := doJSON[users.Profile](ctx, s.transport, transport.Request{
		Method: http.MethodPost,
		Path:   "/register/",
		Body:   req,
		NoAuth: true,
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Me fetches the current user profile through the cache.
func (s *AuthService) Me(ctx context.Context) (*users.Profile, error) {
	return cache.QueryAs(ctx, s.cache, meKey, func(ctx context.Context) (*users.Profile, []cache.Tag, error) {
		profile, err := doJSON[users.Profile](ctx, s.transport, transport.Request{
			Method: http.MethodGet,
			Path:   "/users/me/",
		})
		if err != nil {
			return nil, nil, err
		}
		return &profile, []cache.Tag{cache.NewTag(resourceUser, meTagID)}, nil
	})
}

// ProfileUpdate carries a partial profile edit; nil fields are omitted.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Company   *string `json:"company,omitempty"`
}

func (s *AuthService) UpdateMe(ctx context.Context, update ProfileUpdate) (*users.Profile, error) {
	var profile users.Profile
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		profile, err = doJSON[users.Profile](ctx, s.transport, transport.Request{
			Method: http.MethodPatch,
			Path:   "/users/me/",
			Body:   update,
		})
		return err
	}, []cache.Tag{cache.NewTag(resourceUser, meTagID), cache.ListTag(resourceUser)})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdatePicture uploads a new profile picture as multipart form data.
func (s *AuthService) UpdatePicture(ctx context.Context, filename string, content io.Reader) (*users.Profile, error) {
	var profile users.Profile
	err := s.cache.Mutate(ctx, func(ctx context.Context) error {
		var err error
		profile, err = doJSON[users.Profile](ctx, s.transport, transport.Request{
			Method: http.MethodPatch,
			Path:   "/users/me/",
			Multipart: &transport.Multipart{
				Files: []transport.File{{Field: "picture", Name: filename, Content: content}},
			},
		})
		return err
	}, []cache.Tag{cache.NewTag(resourceUser, meTagID), cache.ListTag(resourceUser)})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *AuthService) ChangePassword(ctx context.Context, current, newPassword string) error {
	_, err := s.transport.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/users/change-password/",
		Body:   ChangePasswordRequest{CurrentPassword: current, NewPassword: newPassword},
	})
	return err
}

func classifyLoginError(err error) error {
	netErr := &transport.NetworkError{}
	if errors.As(err, &netErr) {
		return errors.Wrap(ServerUnreachableErr, err.Error())
	}

	apiErr := &transport.APIError{}
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsServer():
			return errors.Wrap(ServerFailureErr, apiErr.Error())
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest:
			return errors.Wrap(InvalidCredentialsErr, apiErr.Message)
		}
	}
	return err
}
