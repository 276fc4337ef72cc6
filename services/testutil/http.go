package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// MakeAuthRequest sends body as JSON with an optional bearer token. A nil body
// is sent as an empty payload.
func MakeAuthRequest(h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return serve(h, req)
}

func MakeAPIRequest(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	return MakeAuthRequest(h, method, path, body, "")
}

// MakeKeyRequest authenticates with an X-API-Key header instead of a session.
func MakeKeyRequest(h http.Handler, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	return serve(h, req)
}

func DecodeJSON[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), "body: %s", resp.Body.String())
	return out
}
