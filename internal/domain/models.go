package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// ID is a record identifier as the data store hands it out. The store may
// emit ids as JSON numbers or strings; both decode to the same ID.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Money is an amount in the smallest currency unit of the catalog.
type Money int64

// MaxQuantity caps the units a single cart line may hold.
const MaxQuantity = 9999

var ErrAmountOverflow = errors.New("amount overflows")

func (m Money) Add(o Money) Money { return m + o }
func (m Money) Mul(qty int) Money { return m * Money(qty) }
func (m Money) Int64() int64      { return int64(m) }

// AddChecked reports false instead of wrapping. Both amounts must be >= 0.
func (m Money) AddChecked(o Money) (Money, bool) {
	if o > math.MaxInt64-m {
		return 0, false
	}
	return m + o, true
}

// MulChecked reports false instead of wrapping. m and qty must be >= 0.
func (m Money) MulChecked(qty int) (Money, bool) {
	if qty == 0 || m == 0 {
		return 0, true
	}
	if int64(qty) > math.MaxInt64/int64(m) {
		return 0, false
	}
	return m * Money(qty), true
}

// String renders vi-VN grouping, e.g. 130.000₫.
func (m Money) String() string { return humanize.FormatInteger("#.###,", int(m)) + "₫" }

type Category struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

type Book struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	CategoryID  ID     `json:"categoryId"`
	Price       Money  `json:"price"`
	Stock       int    `json:"stock"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

func (b Book) InStock() bool { return b.Stock > 0 }

// CartLine is one buyer-selected book. UnitPrice is the price captured when
// the line was added, never refreshed from the catalog.
type CartLine struct {
	BookID    ID     `json:"bookId"`
	Title     string `json:"title"`
	UnitPrice Money  `json:"price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image,omitempty"`
}

func (l CartLine) Subtotal() Money { return l.UnitPrice.Mul(l.Quantity) }

// Total sums unitPrice × quantity over lines. Lines past MaxQuantity or with
// huge prices wrap; CheckedTotal is the strict form.
func Total(lines []CartLine) Money {
	var t Money
	for _, l := range lines {
		t = t.Add(l.Subtotal())
	}
	return t
}

// CheckedTotal is Total for non-negative lines, failing with
// ErrAmountOverflow when a subtotal or the sum does not fit in Money.
func CheckedTotal(lines []CartLine) (Money, error) {
	var t Money
	for i, l := range lines {
		sub, ok := l.UnitPrice.MulChecked(l.Quantity)
		if !ok {
			return 0, fmt.Errorf("line %d: %w", i, ErrAmountOverflow)
		}
		if t, ok = t.AddChecked(sub); !ok {
			return 0, fmt.Errorf("line %d: %w", i, ErrAmountOverflow)
		}
	}
	return t, nil
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Label falls back to Pending for unknown statuses.
func (s OrderStatus) Label() string {
	switch s {
	case OrderStatusCompleted:
		return "Completed"
	case OrderStatusCancelled:
		return "Cancelled"
	default:
		return "Pending"
	}
}

type OrderItem struct {
	BookID    ID    `json:"bookId"`
	Quantity  int   `json:"quantity"`
	UnitPrice Money `json:"price"`
}

func (it OrderItem) Subtotal() Money { return it.UnitPrice.Mul(it.Quantity) }

type Order struct {
	ID          ID          `json:"id,omitempty"`
	UserID      ID          `json:"userId"`
	Items       []OrderItem `json:"items"`
	TotalAmount Money       `json:"totalAmount"`
	Status      OrderStatus `json:"status"`
	CreatedAt   string      `json:"createdAt"`
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

func (m PaymentMethod) Label() string {
	switch m {
	case PaymentCash:
		return "Cash"
	case PaymentCard:
		return "Credit Card"
	case PaymentTransfer:
		return "Bank Transfer"
	default:
		return string(m)
	}
}

// ParsePaymentMethod defaults an empty value to cash, like the checkout form.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PaymentCash, nil
	}
	m := PaymentMethod(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown payment method %q", s)
	}
	return m, nil
}

type Bill struct {
	ID            ID            `json:"id,omitempty"`
	OrderID       ID            `json:"orderId"`
	UserID        ID            `json:"userId"`
	TotalAmount   Money         `json:"totalAmount"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	IsPaid        bool          `json:"isPaid"`
	CreatedAt     string        `json:"createdAt"`
}

// ParseID accepts the textual form used in URLs and headers.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty id")
	}
	if strings.ContainsAny(s, " /?#") {
		return "", fmt.Errorf("invalid id %q", s)
	}
	return ID(s), nil
}
