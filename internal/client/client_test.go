package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activitychat/internal/client"
	"activitychat/internal/threads"
)

const threadsBody = `[
  {"chat_id":"c1","chats":{"events":{"id":"e1","name":"Picnic","activity_type":"food","status":"pending"},
    "messages":[{"content":"hi","created_at":"2026-01-02T03:04:05Z"}]}},
  {"chat_id":"c2","chats":{"events":[{"id":"e2","name":"Run","activity_type":"sports","status":"completed"}],
    "messages":null}}
]`

func stubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized access: incorrect email or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","user":{"id":"u1","email":"ann@example.com"}}`))
	})
	mux.HandleFunc("GET /api/threads", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(threadsBody))
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"u1","email":"ann@example.com"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNormalizeBaseURL(t *testing.T) {
	got, err := client.NormalizeBaseURL(" http://localhost:8000/ ")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", got)

	_, err = client.NormalizeBaseURL("localhost:8000")
	assert.Error(t, err)
	_, err = client.NormalizeBaseURL("")
	assert.Error(t, err)
}

func TestClientSession(t *testing.T) {
	srv := stubServer(t)
	c, err := client.NewClient(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.CurrentSession(ctx)
	assert.ErrorIs(t, err, threads.ErrNoSession)

	_, err = c.Login(ctx, "ann@example.com", "nope")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Message, "incorrect email")

	sess, err := c.Login(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, threads.Session{UserID: "u1", AccessToken: "tok"}, sess)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", me.ID)

	c.Logout()
	_, err = c.CurrentSession(ctx)
	assert.ErrorIs(t, err, threads.ErrNoSession)
}

func TestClientFetchThreads(t *testing.T) {
	srv := stubServer(t)
	c, err := client.NewClient(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.FetchThreads(ctx, "u1")
	assert.ErrorIs(t, err, threads.ErrNoSession)

	_, err = c.Login(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)

	_, err = c.FetchThreads(ctx, "someone-else")
	assert.Error(t, err)

	recs, err := c.FetchThreads(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "c1", recs[0].ChatID)
	require.Len(t, recs[0].Events, 1)
	assert.Equal(t, "Picnic", recs[0].Events[0].Name)
	require.Len(t, recs[0].Messages, 1)
	assert.Equal(t, "hi", recs[0].Messages[0].Content)

	require.Len(t, recs[1].Events, 1)
	assert.Equal(t, "completed", recs[1].Events[0].Status)
	assert.Empty(t, recs[1].Messages)

	list, hidden := threads.Build(recs)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ChatID)
	assert.Contains(t, hidden, "e2")
}

func TestClientRealtimeURL(t *testing.T) {
	c, err := client.NewClient("https://chat.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/realtime", c.RealtimeURL())
}

func TestClientDropsSessionOnUnauthorized(t *testing.T) {
	var revoked atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		revoked.Store(false)
		_, _ = w.Write([]byte(`{"access_token":"tok","user":{"id":"u1","email":"ann@example.com"}}`))
	})
	mux.HandleFunc("GET /api/threads", func(w http.ResponseWriter, r *http.Request) {
		if revoked.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized access: token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := client.NewClient(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Login(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	_, err = c.FetchThreads(ctx, "u1")
	require.NoError(t, err)

	revoked.Store(true)
	_, err = c.FetchThreads(ctx, "u1")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = c.CurrentSession(ctx)
	assert.ErrorIs(t, err, threads.ErrNoSession)
	_, err = c.FetchThreads(ctx, "u1")
	assert.ErrorIs(t, err, threads.ErrNoSession)

	_, err = c.Login(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	_, err = c.FetchThreads(ctx, "u1")
	assert.NoError(t, err)
}
