// Package salonclient calls the salon backend API over HTTP and classifies
// every failure into a stable kind the booking flow can act on.
package salonclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Kind classifies a backend failure.
type Kind string

const (
	// KindValidation is a 4xx rejection carrying a human-readable message.
	KindValidation Kind = "validation"
	// KindAuth means the credential was rejected; callers should clear the
	// session and prompt for re-authentication.
	KindAuth Kind = "auth"
	// KindNetwork is a transport failure or timeout; no response arrived.
	KindNetwork Kind = "network"
	// KindServer is an unexpected backend error.
	KindServer Kind = "server"
)

// AuthHeader selects how the credential rides on requests. The legacy
// backend deployment reads a custom token header instead of Authorization.
type AuthHeader string

const (
	HeaderBearer     AuthHeader = "bearer"
	HeaderXAuthToken AuthHeader = "x-auth-token"
)

// APIError is a classified backend failure.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	return e.Message
}

// KindOf extracts the failure kind from an error chain, defaulting to
// KindServer for anything unclassified.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindServer
}

// Client calls the salon backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authHeader AuthHeader
}

// NewClient constructs a backend client. Timeout bounds every request and
// maps to KindNetwork when exceeded.
func NewClient(baseURL string, timeout time.Duration, authHeader AuthHeader) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if authHeader != HeaderXAuthToken {
		authHeader = HeaderBearer
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		authHeader: authHeader,
	}
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, payload any, out any) error {
	var body *bytes.Reader
	req, err := func() (*http.Request, error) {
		if payload == nil {
			return http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		return http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	}()
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: KindNetwork, Message: "salon backend unreachable"}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyStatus(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Kind: KindServer, Status: resp.StatusCode, Message: "unexpected backend response"}
	}
	return nil
}

func (c *Client) setAuth(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	if c.authHeader == HeaderXAuthToken {
		req.Header.Set("X-Auth-Token", token)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// classifyStatus maps an error response onto the failure taxonomy. The
// backend writes either {msg} or {message}, sometimes with a field name.
func classifyStatus(resp *http.Response) *APIError {
	var errResp struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
		Field   string `json:"field"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&errResp)
	msg := errResp.Msg
	if msg == "" {
		msg = errResp.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if msg == "" {
			msg = "session expired"
		}
		return &APIError{Kind: KindAuth, Status: resp.StatusCode, Message: msg}
	case resp.StatusCode < 500 && decodeErr == nil && msg != "":
		return &APIError{Kind: KindValidation, Status: resp.StatusCode, Message: msg, Field: errResp.Field}
	case resp.StatusCode < 500:
		return &APIError{Kind: KindValidation, Status: resp.StatusCode, Message: resp.Status}
	default:
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Kind: KindServer, Status: resp.StatusCode, Message: msg}
	}
}
