// Package authclient calls the authorization API on behalf of the session manager.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-session-identity/apimodel"
	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/jrsteele09/go-session-identity/users"
	"golang.org/x/oauth2"
)

const (
	pathLogin       = "/api/auth/login"
	pathRegister    = "/api/auth/register"
	pathRefresh     = "/api/auth/refresh"
	pathLogout      = "/api/auth/logout"
	pathMe          = "/api/auth/me"
	pathImpersonate = "/api/superadmin/impersonate"
	pathUser        = "/api/superadmin/users/"
	pathMine        = "/api/restaurants/mine"
)

const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the authorization API
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", errors.ErrAuthCallFailure, e.Message, e.Status)
}

func (e *APIError) Unwrap() error {
	return errors.ErrAuthCallFailure
}

// Client talks to one authorization API. Authorised calls carry the bearer
// token the TokenSource yields at the moment the request is sent.
type Client struct {
	baseURL string
	public  *http.Client
	authed  *http.Client
}

type Option func(*clientOptions)

type clientOptions struct {
	base *http.Client
}

// WithHTTPClient sets the client whose transport and timeout both public and authorised calls build on
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		o.base = c
	}
}

func New(baseURL string, tokens oauth2.TokenSource, opts ...Option) *Client {
	o := clientOptions{base: http.DefaultClient}
	for _, opt := range opts {
		opt(&o)
	}
	baseTransport := o.base.Transport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		public:  o.base,
		authed: &http.Client{
			Transport: &oauth2.Transport{Source: tokens, Base: baseTransport},
			Timeout:   o.base.Timeout,
		},
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (*apimodel.TokenResponse, error) {
	resp := &apimodel.TokenResponse{}
	req := apimodel.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, c.public, http.MethodPost, pathLogin, req, resp); err != nil {
		return nil, fmt.Errorf("[Client.Login] %w", err)
	}
	return resp, nil
}

func (c *Client) Register(ctx context.Context, req apimodel.RegisterRequest) (*apimodel.TokenResponse, error) {
	resp := &apimodel.TokenResponse{}
	if err := c.do(ctx, c.public, http.MethodPost, pathRegister, req, resp); err != nil {
		return nil, fmt.Errorf("[Client.Register] %w", err)
	}
	return resp, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*apimodel.TokenResponse, error) {
	resp := &apimodel.TokenResponse{}
	req := apimodel.RefreshRequest{Refresh: refreshToken}
	if err := c.do(ctx, c.public, http.MethodPost, pathRefresh, req, resp); err != nil {
		return nil, fmt.Errorf("[Client.Refresh] %w", err)
	}
	return resp, nil
}

// Logout revokes the current access token and, when given, the refresh token
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	req := apimodel.LogoutRequest{Refresh: refreshToken}
	if err := c.do(ctx, c.authed, http.MethodPost, pathLogout, req, nil); err != nil {
		return fmt.Errorf("[Client.Logout] %w", err)
	}
	return nil
}

func (c *Client) Me(ctx context.Context) (*users.User, error) {
	u := &users.User{}
	if err := c.do(ctx, c.authed, http.MethodGet, pathMe, nil, u); err != nil {
		return nil, fmt.Errorf("[Client.Me] %w", err)
	}
	return u, nil
}

// Impersonate asks the API for a token acting as email. The response is
// decoded but not validated; that is the caller's decision.
func (c *Client) Impersonate(ctx context.Context, email string) (*apimodel.ImpersonateResponse, error) {
	resp := &apimodel.ImpersonateResponse{}
	req := apimodel.ImpersonateRequest{Email: email}
	if err := c.do(ctx, c.authed, http.MethodPost, pathImpersonate, req, resp); err != nil {
		return nil, fmt.Errorf("[Client.Impersonate] %w", err)
	}
	return resp, nil
}

func (c *Client) LookupUser(ctx context.Context, userID string) (*users.User, error) {
	u := &users.User{}
	if err := c.do(ctx, c.authed, http.MethodGet, pathUser+url.PathEscape(userID), nil, u); err != nil {
		return nil, fmt.Errorf("[Client.LookupUser] %w", err)
	}
	return u, nil
}

// PrimaryRestaurant returns the restaurant of whoever the current token belongs to
func (c *Client) PrimaryRestaurant(ctx context.Context) (*apimodel.RestaurantResponse, error) {
	resp := &apimodel.RestaurantResponse{}
	if err := c.do(ctx, c.authed, http.MethodGet, pathMine, nil, resp); err != nil {
		return nil, fmt.Errorf("[Client.PrimaryRestaurant] %w", err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, errors.ErrNoActiveIdentity) {
			return err
		}
		return fmt.Errorf("%s %s: %w: %w", method, path, errors.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode body: %w: %w", method, path, errors.ErrMalformedResponse, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body apimodel.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Code = body.Error
		switch {
		case body.Description != "":
			apiErr.Message = body.Description
		case body.Error != "":
			apiErr.Message = body.Error
		}
	} else if text := strings.TrimSpace(string(raw)); text != "" {
		apiErr.Message = text
	}
	return apiErr
}
