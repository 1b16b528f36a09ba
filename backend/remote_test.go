package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRemotePush(t *testing.T) {
	var got PushRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PushPath, r.URL.Path)
		assert.Equal(t, "alice", r.Header.Get(UserIDHeader))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		serverTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		_ = json.NewEncoder(w).Encode(PushResponse{Pushed: 1, Conflicts: 1, ServerTime: &serverTime})
	}))
	defer server.Close()

	client := NewHTTPRemote(server.URL+"/", "secret", time.Second)
	task := NewTask("sent", now)
	resp, err := client.Push(context.Background(), "alice", PushRequest{Tasks: []Task{*task}, LastSyncAt: &now})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Pushed)
	assert.Equal(t, 1, resp.Conflicts)
	require.NotNil(t, resp.ServerTime)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, task.ID, got.Tasks[0].ID)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, got.LastSyncAt.Equal(now))
}

func TestHTTPRemotePullWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PullPath, r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req PullRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Nil(t, req.LastSyncAt)

		_ = json.NewEncoder(w).Encode(PullResponse{
			Tasks:   []Task{*NewTask("remote", now)},
			Domains: []Domain{*NewDomain("Work", now)},
		})
	}))
	defer server.Close()

	resp, err := NewHTTPRemote(server.URL, "", 0).Pull(context.Background(), "alice", PullRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Tasks, 1)
	assert.Len(t, resp.Domains, 1)
	assert.Nil(t, resp.ServerTime)
}

func TestHTTPRemoteErrors(t *testing.T) {
	tests := []struct {
		name          string
		handler       http.HandlerFunc
		wantStatus    int
		wantTransport bool
		wantAuth      bool
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			},
			wantStatus: 401,
			wantAuth:   true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantStatus: 502,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			wantTransport: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewHTTPRemote(server.URL, "tok", time.Second).Push(context.Background(), "alice", PushRequest{})
			var backendErr *BackendError
			require.True(t, errors.As(err, &backendErr), "error = %v", err)
			assert.Equal(t, tt.wantStatus, backendErr.StatusCode)
			assert.Equal(t, tt.wantTransport, backendErr.IsTransport())
			assert.Equal(t, tt.wantAuth, backendErr.IsUnauthorized())
			assert.Equal(t, "alice", backendErr.UserID)
		})
	}
}

func TestHTTPRemoteUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPRemote(url, "", time.Second).Pull(context.Background(), "alice", PullRequest{})
	var backendErr *BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.True(t, backendErr.IsTransport())
	assert.NotNil(t, backendErr.Unwrap())
}

func TestBackendErrorPredicates(t *testing.T) {
	assert.True(t, NewBackendError("Pull", 404, "").IsNotFound())
	assert.True(t, NewBackendError("Pull", 403, "").IsUnauthorized())
	assert.True(t, NewBackendError("Pull", 500, "").IsServerError())
	assert.False(t, NewBackendError("Pull", 500, "").IsTransport())
	assert.Equal(t, "Push failed with status 409: Conflict", NewBackendError("Push", 409, "Conflict").Error())

	storeErr := &StoreError{Op: "put", Kind: KindTask, ID: "t1", Err: errors.New("disk full")}
	assert.Contains(t, storeErr.Error(), "put failed for task t1")
	assert.EqualError(t, errors.Unwrap(storeErr), "disk full")
}

func TestMockRemote(t *testing.T) {
	mock := NewMockRemote()
	ctx := context.Background()

	resp, err := mock.Push(ctx, "alice", PushRequest{Tasks: []Task{{ID: "a"}, {ID: "b"}}})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Pushed)

	mock.SetPullError(errors.New("offline"))
	_, err = mock.Pull(ctx, "alice", PullRequest{})
	assert.Error(t, err)

	push, pull := mock.Calls()
	assert.Equal(t, 1, push)
	assert.Equal(t, 1, pull)
}
