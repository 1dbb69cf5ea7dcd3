package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveCORS(origins []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/versions", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, reached
}

func TestCORSExplicitOrigin(t *testing.T) {
	w, reached := serveCORS([]string{"http://localhost:5173"}, http.MethodGet, "http://localhost:5173", false)
	assert.True(t, reached)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	w, _ := serveCORS([]string{"*"}, http.MethodGet, "https://evil.example", false)
	assert.Equal(t, "https://evil.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSDisallowedOrigin(t *testing.T) {
	w, reached := serveCORS([]string{"http://localhost:5173"}, http.MethodGet, "https://other.example", false)
	assert.True(t, reached)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	w, reached := serveCORS([]string{"http://localhost:5173"}, http.MethodOptions, "http://localhost:5173", true)
	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, reached = serveCORS([]string{"http://localhost:5173"}, http.MethodOptions, "http://localhost:5173", false)
	assert.True(t, reached, "plain OPTIONS is not a preflight")
}
