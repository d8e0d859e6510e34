package transport

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnauthorized matches any 401 response via errors.Is.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionExpired marks the terminal form of an authorization
	// failure: the refresh cycle could not recover and the session was
	// logged out.
	ErrSessionExpired = errors.New("session expired")
)

// APIError is a response the server produced with a non-2xx status.
// Validation (4xx) and server (5xx) failures are never retried; only the
// 401 case is handled transparently by the pipeline.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == 401
}

func (e *APIError) IsValidation() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != 401
}

func (e *APIError) IsServer() bool {
	return e.Status >= 500
}

// NetworkError is a transport failure where no response was received.
// The pipeline never retries these; the caller decides.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// sessionExpiredError carries the original 401 response through the
// forced-logout path so callers still observe it.
type sessionExpiredError struct {
	api *APIError
}

func (e *sessionExpiredError) Error() string {
	return fmt.Sprintf("%v: %v", ErrSessionExpired, e.api)
}

func (e *sessionExpiredError) Is(target error) bool {
	return target == ErrSessionExpired || target == ErrUnauthorized
}

func (e *sessionExpiredError) Unwrap() error {
	return e.api
}

// newAPIError extracts the server-provided message from an error body.
// The backend reports failures as {"detail": ...}, {"message": ...} or
// {"error": ...} depending on the endpoint.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Body: body}

	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Detail != "":
			apiErr.Message = payload.Detail
		case payload.Message != "":
			apiErr.Message = payload.Message
		case payload.Error != "":
			apiErr.Message = payload.Error
		}
	}
	return apiErr
}
