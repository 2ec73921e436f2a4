// Package datastore is a small REST data store for books, categories, orders
// and bills, compatible with the subset of json-server the storefront uses.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahinestrog/storefront/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrNegativeStock = errors.New("stock must not be negative")
)

const isoMillis = "2006-01-02T15:04:05.000Z"

type Repository struct {
	db    *sql.DB
	newID func() string
	now   func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, newID: uuid.NewString, now: time.Now}
}

const bookColumns = `id, title, author, category_id, price, stock, description, image`

func scanBook(row interface{ Scan(...any) error }) (domain.Book, error) {
	var b domain.Book
	var price int64
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.CategoryID, &price, &b.Stock, &b.Description, &b.Image)
	b.Price = domain.Money(price)
	return b, err
}

func (r *Repository) ListBooks(ctx context.Context) ([]domain.Book, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) GetBook(ctx context.Context, id domain.ID) (domain.Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id=?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return b, err
}

// CreateBook inserts b, assigning an id when it has none.
func (r *Repository) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	if b.ID == "" {
		b.ID = domain.ID(r.newID())
	}
	if b.Stock < 0 {
		return domain.Book{}, ErrNegativeStock
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO books(id, title, author, category_id, price, stock, description, image, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(b.ID), b.Title, b.Author, string(b.CategoryID), b.Price.Int64(), b.Stock, b.Description, b.Image, r.timestamp())
	if err != nil {
		return domain.Book{}, err
	}
	return b, nil
}

// SetStock overwrites a book's stock, like a json-server PATCH. It does not
// compare against the previous value.
func (r *Repository) SetStock(ctx context.Context, id domain.ID, stock int) (domain.Book, error) {
	if stock < 0 {
		return domain.Book{}, ErrNegativeStock
	}
	res, err := r.db.ExecContext(ctx, `UPDATE books SET stock=? WHERE id=?`, stock, string(id))
	if err != nil {
		return domain.Book{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Book{}, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return r.GetBook(ctx, id)
}

func (r *Repository) DeleteBook(ctx context.Context, id domain.ID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id=?`, string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	if c.ID == "" {
		c.ID = domain.ID(r.newID())
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO categories(id, name) VALUES (?, ?)`, string(c.ID), c.Name)
	return c, err
}

// CreateOrder stores o and its items in one transaction.
func (r *Repository) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	o.ID = domain.ID(r.newID())
	if o.Status == "" {
		o.Status = domain.OrderStatusPending
	}
	if o.CreatedAt == "" {
		o.CreatedAt = r.timestamp()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders(id, user_id, status, total_amount, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(o.ID), string(o.UserID), string(o.Status), o.TotalAmount.Int64(), o.CreatedAt)
	if err != nil {
		return domain.Order{}, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_items(order_id, position, book_id, qty, unit_price)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return domain.Order{}, err
	}
	defer stmt.Close()

	for i, it := range o.Items {
		if _, err := stmt.ExecContext(ctx, string(o.ID), i, string(it.BookID), it.Quantity, it.UnitPrice.Int64()); err != nil {
			return domain.Order{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, err
	}
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	return o, nil
}

func (r *Repository) GetOrder(ctx context.Context, id domain.ID) (domain.Order, error) {
	var o domain.Order
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, total_amount, created_at FROM orders WHERE id=?`, string(id)).
		Scan(&o.ID, &o.UserID, &o.Status, &total, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, err
	}
	o.TotalAmount = domain.Money(total)
	o.Items, err = r.orderItems(ctx, o.ID)
	return o, err
}

// ListOrders returns all orders, or only userID's when it is set.
func (r *Repository) ListOrders(ctx context.Context, userID domain.ID) ([]domain.Order, error) {
	q := `SELECT id, user_id, status, total_amount, created_at FROM orders`
	var args []any
	if userID != "" {
		q += ` WHERE user_id=?`
		args = append(args, string(userID))
	}
	rows, err := r.db.QueryContext(ctx, q+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}

	out := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		var total int64
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &total, &o.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		o.TotalAmount = domain.Money(total)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// one connection: close the cursor before loading items
	rows.Close()

	for i := range out {
		if out[i].Items, err = r.orderItems(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) orderItems(ctx context.Context, orderID domain.ID) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT book_id, qty, unit_price FROM order_items WHERE order_id=? ORDER BY position`, string(orderID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var it domain.OrderItem
		var price int64
		if err := rows.Scan(&it.BookID, &it.Quantity, &price); err != nil {
			return nil, err
		}
		it.UnitPrice = domain.Money(price)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repository) CreateBill(ctx context.Context, b domain.Bill) (domain.Bill, error) {
	b.ID = domain.ID(r.newID())
	if b.CreatedAt == "" {
		b.CreatedAt = r.timestamp()
	}
	if b.PaymentMethod == "" {
		b.PaymentMethod = domain.PaymentCash
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bills(id, order_id, user_id, total_amount, payment_method, is_paid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(b.ID), string(b.OrderID), string(b.UserID), b.TotalAmount.Int64(), string(b.PaymentMethod), b.IsPaid, b.CreatedAt)
	if err != nil {
		return domain.Bill{}, err
	}
	return b, nil
}

func (r *Repository) ListBills(ctx context.Context, userID domain.ID) ([]domain.Bill, error) {
	q := `SELECT id, order_id, user_id, total_amount, payment_method, is_paid, created_at FROM bills`
	var args []any
	if userID != "" {
		q += ` WHERE user_id=?`
		args = append(args, string(userID))
	}
	rows, err := r.db.QueryContext(ctx, q+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Bill{}
	for rows.Next() {
		var b domain.Bill
		var total int64
		if err := rows.Scan(&b.ID, &b.OrderID, &b.UserID, &total, &b.PaymentMethod, &b.IsPaid, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.TotalAmount = domain.Money(total)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) timestamp() string { return r.now().UTC().Format(isoMillis) }
