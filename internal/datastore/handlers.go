package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/storefront/internal/domain"
	"github.com/ahinestrog/storefront/internal/events"
	"github.com/ahinestrog/storefront/internal/logging"
)

type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

type Handler struct {
	repo *Repository
	pub  Publisher
	log  zerolog.Logger
}

func NewHandler(repo *Repository, pub Publisher, log zerolog.Logger) *Handler {
	return &Handler{repo: repo, pub: pub, log: log}
}

// Routes mounts the store endpoints. corsOrigins lists allowed browser
// origins; "*" allows any.
func (h *Handler) Routes(corsOrigins []string, observers ...logging.Observer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.Requests(h.log, observers...))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)

	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.listBooks)
		r.Get("/{id}", h.getBook)
		r.Patch("/{id}", h.patchBook)
		r.Delete("/{id}", h.deleteBook)
	})
	r.Get("/categories", h.listCategories)
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/{id}", h.getOrder)
	})
	r.Route("/bills", func(r chi.Router) {
		r.Get("/", h.listBills)
		r.Post("/", h.createBill)
	})
	return r
}

func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.repo.ListBooks(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *Handler) getBook(w http.ResponseWriter, r *http.Request) {
	b, err := h.repo.GetBook(r.Context(), domain.ID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// patchBook accepts {"stock": n}. Other fields are ignored.
func (h *Handler) patchBook(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Stock *int `json:"stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Stock == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"stock\": <int>}")
		return
	}
	id := domain.ID(chi.URLParam(r, "id"))
	b, err := h.repo.SetStock(r.Context(), id, *body.Stock)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.publish(r.Context(), events.RKBookUpdated, events.BookUpdated{BookID: b.ID, Stock: b.Stock})
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))
	if err := h.repo.DeleteBook(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	h.publish(r.Context(), events.RKBookUpdated, events.BookUpdated{BookID: id})
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.repo.ListCategories(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var o domain.Order
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid order: "+err.Error())
		return
	}
	created, err := h.repo.CreateOrder(r.Context(), o)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.publish(r.Context(), events.RKOrderPlaced, events.OrderPlaced{
		OrderID: created.ID, UserID: created.UserID, TotalAmount: created.TotalAmount,
	})
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.repo.GetOrder(r.Context(), domain.ID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.ListOrders(r.Context(), domain.ID(r.URL.Query().Get("userId")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	var b domain.Bill
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid bill: "+err.Error())
		return
	}
	created, err := h.repo.CreateBill(r.Context(), b)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.publish(r.Context(), events.RKBillCreated, events.BillCreated{
		BillID: created.ID, OrderID: created.OrderID, UserID: created.UserID,
	})
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.repo.ListBills(r.Context(), domain.ID(r.URL.Query().Get("userId")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bills)
}

func (h *Handler) publish(ctx context.Context, rk string, v any) {
	if h.pub == nil {
		return
	}
	if err := h.pub.PublishJSON(context.WithoutCancel(ctx), rk, v); err != nil {
		h.log.Warn().Err(err).Str("rk", rk).Msg("publish failed")
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNegativeStock):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg("store error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
