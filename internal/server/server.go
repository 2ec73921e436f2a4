// Package server is the storefront HTTP API: catalog browsing, the session
// cart, checkout and order history.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/storefront/internal/catalog"
	"github.com/ahinestrog/storefront/internal/checkout"
	"github.com/ahinestrog/storefront/internal/domain"
	"github.com/ahinestrog/storefront/internal/history"
	"github.com/ahinestrog/storefront/internal/logging"
	"github.com/ahinestrog/storefront/internal/metrics"
	"github.com/ahinestrog/storefront/internal/session"
)

const (
	sessionCookie = "sid"
	userHeader    = "X-User-ID"
	userCookie    = "uid"
	sessionMaxAge = 30 * 24 * time.Hour
)

type Server struct {
	catalog  *catalog.Service
	sessions *session.Manager
	checkout *checkout.Coordinator
	history  *history.Service
	registry *prometheus.Registry
	metrics  *metrics.ServerMetrics
	log      zerolog.Logger
}

type Deps struct {
	Catalog  *catalog.Service
	Sessions *session.Manager
	Checkout *checkout.Coordinator
	History  *history.Service
	Registry *prometheus.Registry
	Metrics  *metrics.ServerMetrics
	Log      zerolog.Logger
}

func New(d Deps) *Server {
	return &Server{
		catalog:  d.Catalog,
		sessions: d.Sessions,
		checkout: d.Checkout,
		history:  d.History,
		registry: d.Registry,
		metrics:  d.Metrics,
		log:      d.Log,
	}
}

func (s *Server) Routes(corsOrigins []string) http.Handler {
	var observers []logging.Observer
	if s.metrics != nil {
		observers = append(observers, s.metrics.Observe)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logging.Requests(s.log, observers...))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", userHeader},
		AllowCredentials: true,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(s.registry))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/books", s.listBooks)
		r.Get("/books/{id}", s.getBook)
		r.Get("/categories", s.listCategories)

		r.Group(func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/cart", s.getCart)
			r.Delete("/cart", s.clearCart)
			r.Post("/cart/items", s.addItem)
			r.Patch("/cart/items/{bookId}", s.updateItem)
			r.Delete("/cart/items/{bookId}", s.removeItem)
			r.Post("/checkout", s.placeOrder)
			r.Get("/orders", s.listOrders)
			r.Delete("/session", s.logout)
		})
	})
	return r
}

type sessionKey struct{}

// withSession loads the caller's session from the sid cookie, starting one
// when needed, and signs in the user named by X-User-ID (or the uid cookie).
// A new session gets its cookie only after it is stored.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(sessionCookie); err == nil {
			id = c.Value
		}
		sess, err := s.sessions.Load(r.Context(), id)
		if err != nil {
			s.log.Error().Err(err).Msg("load session")
			writeError(w, http.StatusInternalServerError, "session unavailable")
			return
		}
		if user := requestUser(r); user != "" {
			if err := s.sessions.SetUser(r.Context(), sess, user); err != nil {
				s.log.Error().Err(err).Str("session", sess.ID).Msg("set session user")
				writeError(w, http.StatusInternalServerError, "session unavailable")
				return
			}
		}
		if sess.ID != id {
			w = &cookieWriter{ResponseWriter: w, sess: sess}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

// cookieWriter hands out the sid cookie with the response headers, but only
// once the session has been stored by a cart change or a user sign-in.
type cookieWriter struct {
	http.ResponseWriter
	sess *session.Session
	done bool
}

func (w *cookieWriter) WriteHeader(code int) {
	if !w.done {
		w.done = true
		if w.sess.Stored() {
			http.SetCookie(w.ResponseWriter, &http.Cookie{
				Name:     sessionCookie,
				Value:    w.sess.ID,
				Path:     "/",
				MaxAge:   int(sessionMaxAge.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	if !w.done {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *cookieWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func requestUser(r *http.Request) domain.ID {
	if v := r.Header.Get(userHeader); v != "" {
		if id, err := domain.ParseID(v); err == nil {
			return id
		}
	}
	if c, err := r.Cookie(userCookie); err == nil {
		if id, err := domain.ParseID(c.Value); err == nil {
			return id
		}
	}
	return ""
}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
