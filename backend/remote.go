package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	PushPath = "/sync/push"
	PullPath = "/sync/pull"

	// UserIDHeader carries the opaque user identifier on every sync request
	UserIDHeader = "X-User-ID"

	DefaultRemoteTimeout = 30 * time.Second

	maxErrorBody = 4096
)

// PushRequest carries the local change-set
type PushRequest struct {
	Tasks      []Task     `json:"tasks"`
	Domains    []Domain   `json:"domains"`
	LastSyncAt *time.Time `json:"lastSyncAt"`
}

// PushResponse is the remote authority's verdict on a push
type PushResponse struct {
	Pushed    int `json:"pushed"`
	Conflicts int `json:"conflicts"`
	// ServerTime is the authority's clock when it applied the push, if it reports one
	ServerTime *time.Time `json:"serverTime,omitempty"`
}

// PullRequest asks for everything changed since LastSyncAt (nil means everything)
type PullRequest struct {
	LastSyncAt *time.Time `json:"lastSyncAt"`
}

// PullResponse carries remote entities changed since the requested instant
type PullResponse struct {
	Tasks      []Task     `json:"tasks"`
	Domains    []Domain   `json:"domains"`
	ServerTime *time.Time `json:"serverTime,omitempty"`
}

// RemoteClient is the request/response channel to the remote authority
type RemoteClient interface {
	Push(ctx context.Context, userID string, req PushRequest) (*PushResponse, error)
	Pull(ctx context.Context, userID string, req PullRequest) (*PullResponse, error)
}

// HTTPRemote talks to the remote authority with JSON over HTTP
type HTTPRemote struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPRemote creates a remote client. token may be empty when the authority does not require one.
func NewHTTPRemote(baseURL, token string, timeout time.Duration) *HTTPRemote {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Push sends the change-set to the push endpoint
func (c *HTTPRemote) Push(ctx context.Context, userID string, req PushRequest) (*PushResponse, error) {
	var out PushResponse
	if err := c.do(ctx, "Push", PushPath, userID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pull requests remote changes from the pull endpoint
func (c *HTTPRemote) Pull(ctx context.Context, userID string, req PullRequest) (*PullResponse, error) {
	var out PullResponse
	if err := c.do(ctx, "Pull", PullPath, userID, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs an authenticated JSON POST and decodes a 2xx response into out
func (c *HTTPRemote) do(ctx context.Context, op, endpoint, userID string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return NewBackendError(op, 0, "failed to marshal request body").WithError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return NewBackendError(op, 0, "failed to create request").WithError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(UserIDHeader, userID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewBackendError(op, 0, "request failed").WithUserID(userID).WithError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return NewBackendError(op, resp.StatusCode, http.StatusText(resp.StatusCode)).
			WithUserID(userID).
			WithBody(string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewBackendError(op, 0, "malformed response").WithUserID(userID).WithError(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
