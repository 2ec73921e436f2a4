package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/storefront/internal/cart"
	"github.com/ahinestrog/storefront/internal/checkout"
	"github.com/ahinestrog/storefront/internal/domain"
	"github.com/ahinestrog/storefront/internal/events"
	"github.com/ahinestrog/storefront/internal/restapi"
)

func newTestRepo(t *testing.T, driver string) *Repository {
	t.Helper()
	db, err := Open(context.Background(), driver, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := NewRepository(db)
	repo.now = func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }
	return repo
}

type recordingPublisher struct {
	mu  sync.Mutex
	rks []string
}

func (p *recordingPublisher) PublishJSON(ctx context.Context, rk string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rks = append(p.rks, rk)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *Repository, *recordingPublisher) {
	t.Helper()
	repo := newTestRepo(t, "sqlite")
	_, err := repo.Seed(context.Background())
	require.NoError(t, err)
	pub := &recordingPublisher{}
	srv := httptest.NewServer(NewHandler(repo, pub, zerolog.Nop()).Routes([]string{"*"}))
	t.Cleanup(srv.Close)
	return srv, repo, pub
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "postgres", filepath.Join(t.TempDir(), "x.db"))
	assert.ErrorContains(t, err, "unsupported sql driver")
}

func TestSeedOnce(t *testing.T) {
	for _, driver := range []string{"sqlite", "sqlite3"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			repo := newTestRepo(t, driver)

			seeded, err := repo.Seed(ctx)
			require.NoError(t, err)
			assert.True(t, seeded)
			seeded, err = repo.Seed(ctx)
			require.NoError(t, err)
			assert.False(t, seeded)

			books, err := repo.ListBooks(ctx)
			require.NoError(t, err)
			assert.Len(t, books, len(seedBooks))
			cats, err := repo.ListCategories(ctx)
			require.NoError(t, err)
			assert.Len(t, cats, len(seedCategories))
		})
	}
}

func TestSetStock(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, "sqlite")
	_, err := repo.Seed(ctx)
	require.NoError(t, err)

	b, err := repo.SetStock(ctx, "1", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, b.Stock)

	_, err = repo.SetStock(ctx, "1", -1)
	assert.ErrorIs(t, err, ErrNegativeStock)
	_, err = repo.SetStock(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrdersAndBillsFilterByUser(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, "sqlite")

	o1, err := repo.CreateOrder(ctx, domain.Order{UserID: "u1", TotalAmount: 90000,
		Items: []domain.OrderItem{{BookID: "1", Quantity: 2, UnitPrice: 45000}}})
	require.NoError(t, err)
	_, err = repo.CreateOrder(ctx, domain.Order{UserID: "u2", TotalAmount: 60000,
		Items: []domain.OrderItem{{BookID: "2", Quantity: 1, UnitPrice: 60000}}})
	require.NoError(t, err)
	_, err = repo.CreateBill(ctx, domain.Bill{OrderID: o1.ID, UserID: "u1", TotalAmount: 90000, PaymentMethod: domain.PaymentCard})
	require.NoError(t, err)

	assert.NotEmpty(t, o1.ID)
	assert.Equal(t, domain.OrderStatusPending, o1.Status)
	assert.Equal(t, "2026-10-18T09:00:00.000Z", o1.CreatedAt)

	orders, err := repo.ListOrders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, o1.Items, orders[0].Items)

	all, err := repo.ListOrders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bills, err := repo.ListBills(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, o1.ID, bills[0].OrderID)
	assert.False(t, bills[0].IsPaid)
	assert.Equal(t, domain.PaymentCard, bills[0].PaymentMethod)

	bills, err = repo.ListBills(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, bills)

	got, err := repo.GetOrder(ctx, o1.ID)
	require.NoError(t, err)
	assert.Equal(t, o1, got)
}

func TestHTTPPatchStock(t *testing.T) {
	srv, _, pub := newTestServer(t)

	patch := func(body string) *http.Response {
		req, err := http.NewRequest(http.MethodPatch, srv.URL+"/books/3", bytes.NewBufferString(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := patch(`{"stock": 2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var b domain.Book
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	assert.Equal(t, 2, b.Stock)
	assert.Equal(t, []string{events.RKBookUpdated}, pub.rks)

	assert.Equal(t, http.StatusUnprocessableEntity, patch(`{"stock": -1}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, patch(`{"title": "x"}`).StatusCode)
}

func TestHTTPNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/books/999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckoutAgainstStore(t *testing.T) {
	ctx := context.Background()
	srv, repo, pub := newTestServer(t)
	client := restapi.New(srv.URL, 5*time.Second)

	b1, err := client.GetBook(ctx, "1")
	require.NoError(t, err)
	b2, err := client.GetBook(ctx, "2")
	require.NoError(t, err)

	c := cart.New()
	require.NoError(t, c.Add(b1, 2))
	require.NoError(t, c.Add(b2, 1))

	res, err := checkout.NewCoordinator(client, client, client).Checkout(ctx, "u1", c, domain.PaymentTransfer)
	require.NoError(t, err)
	assert.Equal(t, b1.Price.Mul(2)+b2.Price, res.Total)
	assert.Zero(t, c.Len())

	order, err := client.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, res.Total, order.TotalAmount)
	assert.Len(t, order.Items, 2)

	bills, err := client.ListBills(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, res.OrderID, bills[0].OrderID)
	assert.False(t, bills[0].IsPaid)

	after1, err := repo.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, b1.Stock-2, after1.Stock)
	after2, err := repo.GetBook(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, b2.Stock-1, after2.Stock)

	assert.Equal(t, []string{
		events.RKOrderPlaced, events.RKBillCreated, events.RKBookUpdated, events.RKBookUpdated,
	}, pub.rks)
}

func TestCheckoutAgainstStoreDeletedBook(t *testing.T) {
	ctx := context.Background()
	srv, repo, _ := newTestServer(t)
	client := restapi.New(srv.URL, 5*time.Second)

	b1, err := client.GetBook(ctx, "1")
	require.NoError(t, err)
	b2, err := client.GetBook(ctx, "2")
	require.NoError(t, err)
	c := cart.New()
	require.NoError(t, c.Add(b1, 2))
	require.NoError(t, c.Add(b2, 1))

	require.NoError(t, repo.DeleteBook(ctx, "2"))

	_, err = checkout.NewCoordinator(client, client, client).Checkout(ctx, "u1", c, domain.PaymentCash)
	require.ErrorIs(t, err, checkout.ErrStockUpdateFailed)
	assert.ErrorIs(t, err, restapi.ErrNotFound)

	var ce *checkout.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.LineIndex)
	assert.Equal(t, domain.ID("2"), ce.BookID)

	// order, bill and the first decrement stay in place
	orders, err := repo.ListOrders(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	bills, err := repo.ListBills(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, bills, 1)
	after1, err := repo.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, b1.Stock-2, after1.Stock)
	assert.Equal(t, 2, c.Len())
}
