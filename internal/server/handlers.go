package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ahinestrog/storefront/internal/cart"
	"github.com/ahinestrog/storefront/internal/catalog"
	"github.com/ahinestrog/storefront/internal/checkout"
	"github.com/ahinestrog/storefront/internal/domain"
	"github.com/ahinestrog/storefront/internal/restapi"
)

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	books, err := s.catalog.List(r.Context(), catalog.Filter{
		Query:      q.Get("q"),
		CategoryID: domain.ID(q.Get("categoryId")),
	})
	if err != nil {
		s.upstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		s.upstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.catalog.Categories(r.Context())
	if err != nil {
		s.upstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

type cartView struct {
	Lines      []domain.CartLine `json:"lines"`
	Count      int               `json:"count"`
	Total      domain.Money      `json:"total"`
	TotalLabel string            `json:"totalLabel"`
}

func viewOf(c *cart.Cart) cartView {
	lines := c.Lines()
	total := domain.Total(lines)
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return cartView{Lines: lines, Count: count, Total: total, TotalLabel: total.String()}
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(sessionFrom(r.Context()).Cart))
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r.Context()).Cart
	c.Clear()
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BookID   domain.ID `json:"bookId"`
		Quantity *int      `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.BookID == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"bookId\": ..., \"quantity\": n}")
		return
	}
	qty := 1
	if body.Quantity != nil {
		qty = *body.Quantity
	}
	book, err := s.catalog.Get(r.Context(), body.BookID)
	if err != nil {
		s.upstreamError(w, err)
		return
	}
	c := sessionFrom(r.Context()).Cart
	if err := c.Add(book, qty); err != nil {
		s.cartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"quantity\": n}")
		return
	}
	c := sessionFrom(r.Context()).Cart
	if err := c.Update(domain.ID(chi.URLParam(r, "bookId")), body.Quantity); err != nil {
		s.cartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r.Context()).Cart
	if !c.Remove(domain.ID(chi.URLParam(r, "bookId"))) {
		s.cartError(w, cart.ErrNotInCart)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

type checkoutResponse struct {
	AttemptID  string       `json:"attemptId"`
	OrderID    domain.ID    `json:"orderId"`
	BillID     domain.ID    `json:"billId"`
	Total      domain.Money `json:"total"`
	TotalLabel string       `json:"totalLabel"`
}

type checkoutErrorResponse struct {
	Error     string    `json:"error"`
	Step      string    `json:"step"`
	LineIndex int       `json:"lineIndex"`
	BookID    domain.ID `json:"bookId,omitempty"`
	OrderID   domain.ID `json:"orderId,omitempty"`
	BillID    domain.ID `json:"billId,omitempty"`
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	user := sess.User()
	if user == "" {
		writeError(w, http.StatusUnauthorized, "sign in to check out")
		return
	}

	var body struct {
		PaymentMethod string `json:"paymentMethod"`
	}
	// an empty body means cash; chunked requests report ContentLength -1
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	method, err := domain.ParsePaymentMethod(body.PaymentMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lines := sess.Cart.Lines()
	res, err := s.checkout.Checkout(r.Context(), user, sess.Cart, method)
	if len(res.Applied) > 0 {
		ids := make([]domain.ID, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.BookID)
		}
		s.catalog.Invalidate(ids...)
	}
	if err != nil {
		s.checkoutError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{
		AttemptID:  res.AttemptID,
		OrderID:    res.OrderID,
		BillID:     res.BillID,
		Total:      res.Total,
		TotalLabel: res.Total.String(),
	})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	user := sessionFrom(r.Context()).User()
	if user == "" {
		writeError(w, http.StatusUnauthorized, "sign in to see orders")
		return
	}
	entries, err := s.history.ForUser(r.Context(), user)
	if err != nil {
		s.upstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context(), sessionFrom(r.Context())); err != nil {
		s.log.Error().Err(err).Msg("logout")
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) checkoutError(w http.ResponseWriter, err error) {
	var ce *checkout.Error
	if !errors.As(err, &ce) {
		s.log.Error().Err(err).Msg("checkout")
		writeError(w, http.StatusInternalServerError, "checkout failed")
		return
	}
	status := http.StatusBadGateway
	if errors.Is(err, checkout.ErrEmptyCart) || errors.Is(err, checkout.ErrInvalidRequest) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, checkoutErrorResponse{
		Error:     err.Error(),
		Step:      ce.Step.String(),
		LineIndex: ce.LineIndex,
		BookID:    ce.BookID,
		OrderID:   ce.OrderID,
		BillID:    ce.BillID,
	})
}

func (s *Server) cartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrOutOfStock):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, cart.ErrNotInCart):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) upstreamError(w http.ResponseWriter, err error) {
	if errors.Is(err, restapi.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.log.Error().Err(err).Msg("data store")
	writeError(w, http.StatusBadGateway, "data store unavailable")
}
