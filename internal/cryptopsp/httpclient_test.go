package cryptopsp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPClient_GetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accounts/abc", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Account{ID: "abc", Currency: "ETH", WalletAddress: "0x1"})
	}))
	defer srv.Close()

	c := NewHTTPClient(zap.NewNop(), WithBaseURL(srv.URL))
	resp, err := c.Get(context.Background(), "/accounts/abc", WithBearerToken("tok"))
	require.NoError(t, err)

	var out Account
	require.NoError(t, c.ProcessJSONResponse(resp, &out))
	require.Equal(t, "abc", out.ID)
}

func TestHTTPClient_ErrorStatusReturnsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(zap.NewNop(), WithBaseURL(srv.URL), WithRetryConfig(&RetryConfig{MaxRetries: 0}))
	resp, err := c.Get(context.Background(), "/missing")
	require.Error(t, err)
	require.NotNil(t, resp)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestHTTPClient_PostSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "v", body["k"])
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
	}))
	defer srv.Close()

	c := NewHTTPClient(zap.NewNop(), WithBaseURL(srv.URL))
	resp, err := c.Post(context.Background(), "/x", map[string]string{"k": "v"})
	require.NoError(t, err)
	var out map[string]string
	require.NoError(t, c.ProcessJSONResponse(resp, &out))
	require.Equal(t, "true", out["ok"])
}
