package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPRequestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	fn := NewHTTPRequestFunc(zap.NewNop())

	result, err := fn(context.Background(), map[string]interface{}{
		"url": server.URL,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, result.(string))
}

func TestHTTPRequestPostWithHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"name":"flow"}`, string(body))

		w.Write([]byte("created"))
	}))
	defer server.Close()

	fn := NewHTTPRequestFunc(zap.NewNop())

	result, err := fn(context.Background(), map[string]interface{}{
		"url":    server.URL,
		"method": http.MethodPost,
		"body":   `{"name":"flow"}`,
		"headers": map[string]interface{}{
			"Content-Type": "application/json",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "created", result)
}

func TestHTTPRequestErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fn := NewHTTPRequestFunc(zap.NewNop())

	_, err := fn(context.Background(), map[string]interface{}{
		"url": server.URL,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestHTTPRequestMissingURL(t *testing.T) {
	fn := NewHTTPRequestFunc(zap.NewNop())

	_, err := fn(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing argument: url")
}
