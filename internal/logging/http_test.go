package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestsUsesRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	var gotRoute string
	var gotStatus int

	r := chi.NewRouter()
	r.Use(Requests(zerolog.New(&buf), func(route string, status int, _ time.Duration) {
		gotRoute, gotStatus = route, status
	}))
	r.Get("/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/books/42", nil))

	assert.Equal(t, "/books/{id}", gotRoute)
	assert.Equal(t, http.StatusTeapot, gotStatus)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
}

func TestRequestsDefaultsToOK(t *testing.T) {
	var gotStatus int
	h := Requests(zerolog.Nop(), func(_ string, status int, _ time.Duration) { gotStatus = status })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, gotStatus)
}
