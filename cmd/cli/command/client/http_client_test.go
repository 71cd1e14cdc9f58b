package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamebridge/internal/channel"
)

func TestHTTPClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		w.Write([]byte(`{"connected":true,"session":{"session_id":"abc","state":"running","frames_in":3}}`))
	}))
	defer srv.Close()

	resp, err := NewHTTPClient(srv.URL).Status(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Connected)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "abc", resp.Session.SessionID)
	assert.Equal(t, int64(3), resp.Session.FramesIn)
}

func TestHTTPClient_SendAsyncWithToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "true", r.URL.Query().Get("async"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var msg map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "MOVE", msg["command"])

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"queued","session_id":"abc","command":"MOVE"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	c.SetToken("tok")
	resp, err := c.Send(context.Background(), channel.Message{"command": "MOVE"}, true)
	require.NoError(t, err)
	assert.Equal(t, "queued", resp.Status)
}

func TestHTTPClient_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"no active session"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).Send(context.Background(), channel.Message{"command": "MOVE"}, false)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "no active session", apiErr.Message)
}

func TestHTTPClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	assert.NoError(t, NewHTTPClient(srv.URL).Health(context.Background()))
}
