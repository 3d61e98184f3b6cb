// Package authclient talks to the remote REST API that owns accounts.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/canteen-coders/canteen-client/pkg/errors"
)

const (
	loginPath         = "/api/auth/login"
	registerPath      = "/api/auth/register"
	responseReadLimit = 64 << 10
	defaultTimeout    = 10 * time.Second
)

var errBaseURLRequired = errors.New("auth service base url is required")

// Client calls the login and registration endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds a client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up payload.
type Registration struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}

// Identity is what a successful login returns.
type Identity struct {
	Token     string `json:"token"`
	UserID    ID     `json:"userId"`
	Role      string `json:"role"`
	FirstName string `json:"firstName,omitempty"`
}

// ID accepts both numeric and string JSON ids and keeps them as a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("userId must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = ID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = ID(n.String())
	return nil
}

// Login exchanges credentials for an Identity. A rejected login is returned as
// CodeUnauthorized carrying the service's message, which may be empty.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Identity, error) {
	var identity Identity
	if err := c.post(ctx, loginPath, creds, pkgerrors.CodeUnauthorized, &identity); err != nil {
		return nil, err
	}
	if identity.Token == "" || identity.UserID == "" || identity.Role == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "login response missing token, userId or role")
	}
	return &identity, nil
}

// Register creates an account. A rejected registration is returned as
// CodeValidation carrying the service's message, which may be empty.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	return c.post(ctx, registerPath, reg, pkgerrors.CodeValidation, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, rejectCode pkgerrors.Code, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "auth client not configured")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal auth request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build auth request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute auth request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read auth response")
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d", resp.StatusCode), "auth service error")
	case resp.StatusCode >= http.StatusBadRequest:
		return pkgerrors.Wrap(rejectCode, fmt.Errorf("status %d", resp.StatusCode), payloadMessage(raw))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode auth response")
	}
	return nil
}

// payloadMessage extracts the "message" field of a JSON error body.
func payloadMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Message)
}
