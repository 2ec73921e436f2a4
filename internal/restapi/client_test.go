package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/storefront/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", time.Second)
}

func TestGetBook(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/books/b1", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"b1","title":"Dune","price":50000,"stock":4,"categoryId":2}`)
	})
	b, err := c.GetBook(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.ID("b1"), b.ID)
	assert.Equal(t, domain.Money(50000), b.Price)
	assert.Equal(t, 4, b.Stock)
	assert.Equal(t, domain.ID("2"), b.CategoryID)
}

func TestGetBookNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "{}", http.StatusNotFound)
	})
	_, err := c.GetBook(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "/books/gone", se.Path)
}

func TestUpdateBookStockSendsPatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"stock": float64(3)}, body)
		_, _ = io.WriteString(w, `{"id":"b1","stock":3}`)
	})
	require.NoError(t, c.UpdateBookStock(context.Background(), "b1", 3))
}

func TestCreateOrderRequiresID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"userId":"u1"}`)
	})
	_, err := c.CreateOrder(context.Background(), domain.Order{UserID: "u1"})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestCreateBill(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bills", r.URL.Path)
		var in domain.Bill
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in.ID = "bill-1"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(in)
	})
	got, err := c.CreateBill(context.Background(), domain.Bill{OrderID: "o1", TotalAmount: 10, PaymentMethod: domain.PaymentCard})
	require.NoError(t, err)
	assert.Equal(t, domain.ID("bill-1"), got.ID)
	assert.Equal(t, domain.ID("o1"), got.OrderID)
	assert.False(t, got.IsPaid)
}

func TestListOrdersFiltersByUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u7", r.URL.Query().Get("userId"))
		_, _ = io.WriteString(w, `[{"id":1,"userId":"u7","items":[],"totalAmount":0,"status":"pending","createdAt":""}]`)
	})
	orders, err := c.ListOrders(context.Background(), "u7")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.ID("1"), orders[0].ID)
}

func TestServerErrorIsStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	err := c.UpdateBookStock(context.Background(), "b1", 1)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "boom")
}

func TestStatusErrorKeepsRunesWhole(t *testing.T) {
	// every "ả" is two bytes, so byte 200 falls inside a rune
	body := "x" + strings.Repeat("ả", 150)
	e := &StatusError{Method: http.MethodPost, Path: "/bills", Code: http.StatusBadGateway, Body: body}

	msg := e.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "x"+strings.Repeat("ả", 99)))
	assert.False(t, strings.HasSuffix(msg, strings.Repeat("ả", 100)))
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()
	c := New(srv.URL, time.Second, WithRateLimit(0.001))

	_, err := c.ListBooks(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ListBooks(ctx)
	assert.Error(t, err)
}
