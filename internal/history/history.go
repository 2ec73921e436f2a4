// Package history builds a buyer's order list with bills and book titles.
package history

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ahinestrog/storefront/internal/domain"
)

// UnknownTitle stands in for books no longer in the catalog.
const UnknownTitle = "N/A"

type Source interface {
	ListOrders(ctx context.Context, userID domain.ID) ([]domain.Order, error)
	ListBills(ctx context.Context, userID domain.ID) ([]domain.Bill, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
}

type Line struct {
	BookID    domain.ID    `json:"bookId"`
	Title     string       `json:"title"`
	Quantity  int          `json:"quantity"`
	UnitPrice domain.Money `json:"price"`
	Subtotal  domain.Money `json:"subtotal"`
}

// Entry is an order with its bill, if one was ever created.
type Entry struct {
	Order       domain.Order `json:"order"`
	StatusLabel string       `json:"statusLabel"`
	Bill        *domain.Bill `json:"bill,omitempty"`
	Payment     string       `json:"payment,omitempty"`
	Lines       []Line       `json:"lines"`
}

type Service struct{ src Source }

func NewService(src Source) *Service { return &Service{src: src} }

// ForUser returns userID's orders, newest first.
func (s *Service) ForUser(ctx context.Context, userID domain.ID) ([]Entry, error) {
	var (
		orders []domain.Order
		bills  []domain.Bill
		books  []domain.Book
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		orders, err = s.src.ListOrders(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		bills, err = s.src.ListBills(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		books, err = s.src.ListBooks(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return join(orders, bills, books), nil
}

func join(orders []domain.Order, bills []domain.Bill, books []domain.Book) []Entry {
	billByOrder := make(map[domain.ID]domain.Bill, len(bills))
	for _, b := range bills {
		if _, seen := billByOrder[b.OrderID]; !seen {
			billByOrder[b.OrderID] = b
		}
	}
	titles := make(map[domain.ID]string, len(books))
	for _, b := range books {
		titles[b.ID] = b.Title
	}

	out := make([]Entry, 0, len(orders))
	for _, o := range orders {
		e := Entry{Order: o, StatusLabel: o.Status.Label(), Lines: make([]Line, 0, len(o.Items))}
		if b, ok := billByOrder[o.ID]; ok {
			e.Bill = &b
			e.Payment = b.PaymentMethod.Label()
		}
		for _, it := range o.Items {
			title, ok := titles[it.BookID]
			if !ok {
				title = UnknownTitle
			}
			e.Lines = append(e.Lines, Line{
				BookID:    it.BookID,
				Title:     title,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				Subtotal:  it.Subtotal(),
			})
		}
		out = append(out, e)
	}
	// createdAt is fixed-width ISO so string order is time order
	slices.SortStableFunc(out, func(a, b Entry) int {
		return strings.Compare(b.Order.CreatedAt, a.Order.CreatedAt)
	})
	return out
}
