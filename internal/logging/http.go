package logging

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Observer receives every finished request, keyed by its route pattern.
type Observer func(route string, status int, took time.Duration)

// Requests logs one line per request and feeds the observers.
func Requests(l zerolog.Logger, observers ...Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			took := time.Since(start)
			for _, o := range observers {
				o(route, status, took)
			}

			ev := l.Info()
			if status >= 500 {
				ev = l.Warn()
			}
			ev.Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Dur("took", took).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http")
		})
	}
}
