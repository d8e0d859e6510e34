// Package transport decorates every outbound portal request with the
// current access token and transparently recovers from token expiry with
// a single refresh-and-retry cycle. All other failures propagate to the
// caller untouched.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stitchline/portal-client/session"
	"golang.org/x/sync/singleflight"
)

const refreshPath = "/token/refresh/"

// SessionStore is the slice of the session store the pipeline needs.
type SessionStore interface {
	AccessToken() string
	RefreshToken() string
	AccessTokenExpiry() time.Time
	SetCredentials(session.Credentials)
	Logout()
}

// Request describes one outbound API call. Body is JSON-encoded when set;
// Multipart takes precedence over Body.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any
	Multipart *Multipart
	NoAuth    bool
}

// Multipart describes a multipart/form-data body (profile pictures,
// design uploads). File contents are buffered so the request can be
// replayed after a token refresh.
type Multipart struct {
	Fields map[string]string
	Files  []File
}

type File struct {
	Field   string
	Name    string
	Content io.Reader
}

type Response struct {
	Status int
	Body   []byte
}

func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(err, "[Response.Decode] unmarshal")
	}
	return nil
}

// Client is the authenticated request pipeline.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	session       SessionStore
	log           zerolog.Logger
	onAuthExpired func()
	nowTime       func() time.Time
	refreshGroup  singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithAuthExpiredHandler sets the hook invoked after a terminal 401, once
// the session has been logged out. The portal uses it to drop cached
// state alongside the session.
func WithAuthExpiredHandler(handler func()) Option {
	return func(c *Client) {
		c.onAuthExpired = handler
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func New(baseURL string, sess SessionStore, options ...Option) (*Client, error) {
	if sess == nil {
		return nil, errors.New("[transport.New] session store is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "[transport.New] invalid base URL")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "[transport.New] cookiejar")
	}

	client := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second, Jar: jar},
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    sess,
		log:        zerolog.Nop(),
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// Do sends the request through the pipeline. On a 401 it performs exactly
// one refresh-and-retry cycle; a second 401 is terminal and forces a
// logout. Network failures are reported as *NetworkError and never
// retried here.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Do] encode body")
	}

	token := ""
	if !req.NoAuth {
		token = c.session.AccessToken()
		// Refresh up front when the token is already known to be expired,
		// instead of paying for a guaranteed 401 round trip.
		if token != "" && c.session.RefreshToken() != "" {
			if expiry := c.session.AccessTokenExpiry(); !expiry.IsZero() && !c.nowTime().Before(expiry) {
				if refreshed, refreshErr := c.refreshAccessToken(ctx); refreshErr == nil {
					token = refreshed
				}
			}
		}
	}

	resp, err := c.send(ctx, req, body, contentType, token)
	if err != nil {
		return nil, err
	}

	if resp.Status != http.StatusUnauthorized || req.NoAuth {
		return c.finish(req, resp)
	}

	if c.session.RefreshToken() == "" {
		return nil, c.expireSession(resp)
	}

	newToken, err := c.refreshAccessToken(ctx)
	if err != nil {
		return nil, c.expireSession(resp)
	}

	retry, err := c.send(ctx, req, body, contentType, newToken)
	if err != nil {
		return nil, err
	}
	if retry.Status == http.StatusUnauthorized {
		return nil, c.expireSession(retry)
	}
	return c.finish(req, retry)
}

// Download streams a binary document to w. Goes through the same auth
// pipeline as every other request.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	if _, err := w.Write(resp.Body); err != nil {
		return errors.Wrap(err, "[Client.Download] write")
	}
	return nil
}

func (c *Client) finish(req Request, resp *Response) (*Response, error) {
	if resp.Status >= 200 && resp.Status < 300 {
		return resp, nil
	}
	apiErr := newAPIError(resp.Status, resp.Body)
	c.log.Debug().Str("method", req.Method).Str("path", req.Path).Int("status", resp.Status).Msg("request failed")
	return nil, apiErr
}

func (c *Client) send(ctx context.Context, req Request, body []byte, contentType, token string) (*Response, error) {
	endpoint := c.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.send] create request")
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.New().String())
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	c.log.Trace().Str("method", req.Method).Str("path", req.Path).Int("status", httpResp.StatusCode).Msg("request")
	return &Response{Status: httpResp.StatusCode, Body: respBody}, nil
}

// refreshAccessToken exchanges the refresh token for a new access token.
// Concurrent callers share a single in-flight refresh.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	value, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		refresh := c.session.RefreshToken()
		if refresh == "" {
			return nil, errors.Wrap(ErrUnauthorized, "[Client.refreshAccessToken] no refresh token")
		}

		payload, err := json.Marshal(map[string]string{"refresh": refresh})
		if err != nil {
			return nil, errors.Wrap(err, "[Client.refreshAccessToken] marshal")
		}

		resp, err := c.send(ctx, Request{Method: http.MethodPost, Path: refreshPath, NoAuth: true}, payload, "application/json", "")
		if err != nil {
			return nil, err
		}
		if resp.Status != http.StatusOK {
			return nil, newAPIError(resp.Status, resp.Body)
		}

		var tokens struct {
			Access  string `json:"access"`
			Refresh string `json:"refresh,omitempty"`
		}
		if err := resp.Decode(&tokens); err != nil {
			return nil, err
		}
		if tokens.Access == "" {
			return nil, errors.New("[Client.refreshAccessToken] empty access token in response")
		}

		// The refresh token is retained unless the backend rotated it.
		creds := session.Credentials{Access: &tokens.Access}
		if tokens.Refresh != "" {
			creds.Refresh = &tokens.Refresh
		}
		c.session.SetCredentials(creds)
		c.log.Debug().Msg("access token refreshed")
		return tokens.Access, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// expireSession handles a terminal authorization failure: clear the
// session, notify the redirect hook, surface the original 401.
func (c *Client) expireSession(resp *Response) error {
	c.session.Logout()
	c.log.Info().Msg("session expired, logging out")
	if c.onAuthExpired != nil {
		c.onAuthExpired()
	}
	return &sessionExpiredError{api: newAPIError(resp.Status, resp.Body)}
}

func encodeBody(req Request) (body []byte, contentType string, err error) {
	if req.Multipart != nil {
		return encodeMultipart(req.Multipart)
	}
	if req.Body == nil {
		return nil, "", nil
	}
	body, err = json.Marshal(req.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "marshal json body")
	}
	return body, "application/json", nil
}

func encodeMultipart(mp *Multipart) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for field, value := range mp.Fields {
		if err := writer.WriteField(field, value); err != nil {
			return nil, "", errors.Wrapf(err, "write field %s", field)
		}
	}
	for _, file := range mp.Files {
		part, err := writer.CreateFormFile(file.Field, file.Name)
		if err != nil {
			return nil, "", errors.Wrapf(err, "create form file %s", file.Field)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, "", errors.Wrapf(err, "copy file %s", file.Name)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart writer")
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}
