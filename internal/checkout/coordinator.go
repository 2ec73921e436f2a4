// Package checkout turns a cart into an order, its bill and the matching
// stock decrements. The three stores have no shared transaction: steps run
// one after another and a failure leaves earlier steps in place.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/storefront/internal/domain"
)

type BookStore interface {
	GetBook(ctx context.Context, id domain.ID) (domain.Book, error)
	UpdateBookStock(ctx context.Context, id domain.ID, stock int) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error)
}

type BillStore interface {
	CreateBill(ctx context.Context, b domain.Bill) (domain.Bill, error)
}

// Cart is the part of the buyer's cart checkout needs.
type Cart interface {
	Lines() []domain.CartLine
	Clear()
}

type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

type Recorder interface {
	RecordCheckout(outcome string, linesApplied int, took time.Duration)
}

// Applied is one stock write that went through.
type Applied struct {
	Index    int       `json:"index"`
	BookID   domain.ID `json:"book_id"`
	Quantity int       `json:"quantity"`
	Before   int       `json:"before"`
	After    int       `json:"after"`
}

// Result is returned on success and, partially filled, on failure.
type Result struct {
	AttemptID string
	OrderID   domain.ID
	BillID    domain.ID
	Total     domain.Money
	Step      Step
	Applied   []Applied
	Remaining []domain.CartLine
}

const isoMillis = "2006-01-02T15:04:05.000Z"

type Coordinator struct {
	books     BookStore
	orders    OrderStore
	bills     BillStore
	publisher Publisher
	recorder  Recorder
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Coordinator)

func WithPublisher(p Publisher) Option { return func(c *Coordinator) { c.publisher = p } }

func WithRecorder(r Recorder) Option { return func(c *Coordinator) { c.recorder = r } }

func WithLogger(l zerolog.Logger) Option { return func(c *Coordinator) { c.log = l } }

func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

func NewCoordinator(books BookStore, orders OrderStore, bills BillStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		books:  books,
		orders: orders,
		bills:  bills,
		log:    zerolog.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Checkout places an order for the lines currently in cart. The cart is
// cleared only when every step succeeded. Errors are *Error values.
func (c *Coordinator) Checkout(ctx context.Context, buyerID domain.ID, cart Cart, method domain.PaymentMethod) (Result, error) {
	start := c.now()
	res := Result{AttemptID: c.newID(), Step: StepNotStarted}
	log := c.log.With().Str("attempt", res.AttemptID).Str("buyer", string(buyerID)).Logger()

	lines := cart.Lines()
	err := c.run(ctx, log, &res, buyerID, lines, method)
	if err == nil {
		cart.Clear()
		res.Step = StepCompleted
	}
	c.finish(ctx, log, res, buyerID, lines, method, err, start)
	return res, err
}

func (c *Coordinator) run(ctx context.Context, log zerolog.Logger, res *Result, buyerID domain.ID, lines []domain.CartLine, method domain.PaymentMethod) error {
	if len(lines) == 0 {
		return newError(ErrEmptyCart, StepNotStarted, nil)
	}
	if err := validate(buyerID, lines, method); err != nil {
		return newError(ErrInvalidRequest, StepNotStarted, err)
	}

	// 1) total from the prices captured in the cart
	total, err := domain.CheckedTotal(lines)
	if err != nil {
		return newError(ErrInvalidRequest, StepNotStarted, err)
	}
	res.Total = total
	res.Remaining = lines

	// 2) order
	order, err := c.orders.CreateOrder(ctx, domain.Order{
		UserID:      buyerID,
		Items:       orderItems(lines),
		TotalAmount: res.Total,
		Status:      domain.OrderStatusPending,
		CreatedAt:   c.timestamp(),
	})
	if err != nil {
		return newError(ErrOrderCreateFailed, StepNotStarted, err)
	}
	res.OrderID = order.ID
	res.Step = StepOrderCreated
	log.Info().Str("order", string(order.ID)).Int64("total", res.Total.Int64()).Msg("order created")

	// 3) bill; an order without bill stays pending, nothing is undone
	bill, err := c.bills.CreateBill(ctx, domain.Bill{
		OrderID:       order.ID,
		UserID:        buyerID,
		TotalAmount:   res.Total,
		PaymentMethod: method,
		IsPaid:        false,
		CreatedAt:     c.timestamp(),
	})
	if err != nil {
		e := newError(ErrBillCreateFailed, StepOrderCreated, err)
		e.OrderID = order.ID
		return e
	}
	res.BillID = bill.ID
	res.Step = StepBillCreated
	log.Info().Str("order", string(order.ID)).Str("bill", string(bill.ID)).Msg("bill created")

	// 4) stock, one line at a time in cart order
	for i, l := range lines {
		applied, err := c.applyStock(ctx, i, l)
		if err != nil {
			e := newError(ErrStockUpdateFailed, res.Step, err)
			e.OrderID, e.BillID = order.ID, bill.ID
			e.LineIndex, e.BookID = i, l.BookID
			return e
		}
		res.Applied = append(res.Applied, applied)
		res.Remaining = lines[i+1:]
		res.Step = StepStockApplying
		log.Debug().
			Str("order", string(order.ID)).
			Str("book", string(l.BookID)).
			Int("before", applied.Before).
			Int("after", applied.After).
			Msg("stock applied")
	}
	return nil
}

// applyStock re-reads the book and writes the decremented stock. There is no
// version check between the read and the write.
func (c *Coordinator) applyStock(ctx context.Context, i int, l domain.CartLine) (Applied, error) {
	book, err := c.books.GetBook(ctx, l.BookID)
	if err != nil {
		return Applied{}, fmt.Errorf("read stock: %w", err)
	}
	if book.Stock < l.Quantity {
		return Applied{}, fmt.Errorf("%w: %d left, %d requested", ErrInsufficientStock, book.Stock, l.Quantity)
	}
	after := book.Stock - l.Quantity
	if err := c.books.UpdateBookStock(ctx, l.BookID, after); err != nil {
		return Applied{}, fmt.Errorf("write stock: %w", err)
	}
	return Applied{Index: i, BookID: l.BookID, Quantity: l.Quantity, Before: book.Stock, After: after}, nil
}

func (c *Coordinator) finish(ctx context.Context, log zerolog.Logger, res Result, buyerID domain.ID, lines []domain.CartLine, method domain.PaymentMethod, err error, start time.Time) {
	outcome := outcomeOf(err)
	if c.recorder != nil {
		c.recorder.RecordCheckout(outcome, len(res.Applied), c.now().Sub(start))
	}

	if err == nil {
		log.Info().Str("order", string(res.OrderID)).Msg("checkout completed")
		c.publish(ctx, log, RKCheckoutCompleted, CompletedPayload{
			AttemptID:     res.AttemptID,
			OrderID:       res.OrderID,
			BillID:        res.BillID,
			UserID:        buyerID,
			TotalAmount:   res.Total,
			PaymentMethod: method,
			Items:         orderItems(lines),
		})
		return
	}

	var e *Error
	if !errors.As(err, &e) {
		return
	}
	ev := log.Warn()
	if e.Partial() {
		ev = log.Error()
	}
	ev.Err(err).
		Str("outcome", outcome).
		Str("last_step", e.Step.String()).
		Str("order", string(e.OrderID)).
		Int("line", e.LineIndex).
		Msg("checkout failed")

	if outcome == OutcomeRejected {
		return
	}
	c.publish(ctx, log, RKCheckoutFailed, FailedPayload{
		AttemptID: res.AttemptID,
		UserID:    buyerID,
		Reason:    outcome,
		Step:      e.Step.String(),
		OrderID:   e.OrderID,
		BillID:    e.BillID,
		LineIndex: e.LineIndex,
		BookID:    e.BookID,
		Applied:   res.Applied,
		Error:     err.Error(),
	})
}

func (c *Coordinator) publish(ctx context.Context, log zerolog.Logger, rk string, v any) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishJSON(context.WithoutCancel(ctx), rk, v); err != nil {
		log.Warn().Err(err).Str("rk", rk).Msg("publish failed")
	}
}

func orderItems(lines []domain.CartLine) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, domain.OrderItem{BookID: l.BookID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return items
}

func (c *Coordinator) timestamp() string { return c.now().UTC().Format(isoMillis) }

func validate(buyerID domain.ID, lines []domain.CartLine, method domain.PaymentMethod) error {
	if buyerID == "" {
		return errors.New("buyer id is required")
	}
	if !method.Valid() {
		return fmt.Errorf("unknown payment method %q", method)
	}
	for i, l := range lines {
		if l.BookID == "" {
			return fmt.Errorf("line %d: book id is required", i)
		}
		if l.Quantity < 1 || l.Quantity > domain.MaxQuantity {
			return fmt.Errorf("line %d: quantity must be in [1, %d], got %d", i, domain.MaxQuantity, l.Quantity)
		}
		if l.UnitPrice < 0 {
			return fmt.Errorf("line %d: negative price", i)
		}
	}
	return nil
}
