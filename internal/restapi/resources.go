package restapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ahinestrog/storefront/internal/domain"
)

func bookPath(id domain.ID) string { return "/books/" + url.PathEscape(string(id)) }

func (c *Client) ListBooks(ctx context.Context) ([]domain.Book, error) {
	var out []domain.Book
	if err := c.do(ctx, http.MethodGet, "/books", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBook(ctx context.Context, id domain.ID) (domain.Book, error) {
	var b domain.Book
	err := c.do(ctx, http.MethodGet, bookPath(id), nil, nil, &b)
	return b, err
}

// UpdateBookStock overwrites the stock field only.
func (c *Client) UpdateBookStock(ctx context.Context, id domain.ID, stock int) error {
	patch := struct {
		Stock int `json:"stock"`
	}{stock}
	return c.do(ctx, http.MethodPatch, bookPath(id), nil, patch, nil)
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	if err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	var created domain.Order
	if err := c.do(ctx, http.MethodPost, "/orders", nil, o, &created); err != nil {
		return domain.Order{}, err
	}
	if created.ID == "" {
		return domain.Order{}, ErrMissingID
	}
	return created, nil
}

func (c *Client) GetOrder(ctx context.Context, id domain.ID) (domain.Order, error) {
	var o domain.Order
	err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(string(id)), nil, nil, &o)
	return o, err
}

func (c *Client) ListOrders(ctx context.Context, userID domain.ID) ([]domain.Order, error) {
	var out []domain.Order
	if err := c.do(ctx, http.MethodGet, "/orders", byUser(userID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateBill(ctx context.Context, b domain.Bill) (domain.Bill, error) {
	var created domain.Bill
	if err := c.do(ctx, http.MethodPost, "/bills", nil, b, &created); err != nil {
		return domain.Bill{}, err
	}
	if created.ID == "" {
		return domain.Bill{}, ErrMissingID
	}
	return created, nil
}

func (c *Client) ListBills(ctx context.Context, userID domain.ID) ([]domain.Bill, error) {
	var out []domain.Bill
	if err := c.do(ctx, http.MethodGet, "/bills", byUser(userID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func byUser(userID domain.ID) url.Values {
	if userID == "" {
		return nil
	}
	return url.Values{"userId": {string(userID)}}
}
