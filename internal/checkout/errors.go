package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ahinestrog/storefront/internal/domain"
)

// Failure kinds. Every *Error matches exactly one of these with errors.Is.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidRequest    = errors.New("invalid checkout request")
	ErrOrderCreateFailed = errors.New("order create failed")
	ErrBillCreateFailed  = errors.New("bill create failed")
	ErrStockUpdateFailed = errors.New("stock update failed")
)

// ErrInsufficientStock is the cause of a StockUpdateFailed when the book has
// fewer units left than the line asks for.
var ErrInsufficientStock = errors.New("insufficient stock")

// Error describes a failed attempt and the state it left behind. Step is the
// last step that completed; OrderID and BillID are set when those records
// exist in the store.
type Error struct {
	Kind      error
	Step      Step
	OrderID   domain.ID
	BillID    domain.ID
	LineIndex int
	BookID    domain.ID
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("checkout: ")
	b.WriteString(e.Kind.Error())
	if e.Kind == ErrStockUpdateFailed {
		fmt.Fprintf(&b, " at line %d (book %s)", e.LineIndex, e.BookID)
	}
	if e.OrderID != "" {
		fmt.Fprintf(&b, ", order %s left %s", e.OrderID, e.Step)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Partial reports whether records were written before the failure.
func (e *Error) Partial() bool { return e.OrderID != "" }

func newError(kind error, step Step, err error) *Error {
	return &Error{Kind: kind, Step: step, LineIndex: -1, Err: err}
}
