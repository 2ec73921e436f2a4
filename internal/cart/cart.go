// Package cart holds the buyer's in-memory cart.
package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ahinestrog/storefront/internal/domain"
)

var (
	ErrOutOfStock       = errors.New("book is out of stock")
	ErrNotInCart        = errors.New("book is not in cart")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrQuantityTooLarge = fmt.Errorf("quantity must not exceed %d", domain.MaxQuantity)
)

// Cart keeps lines in insertion order; checkout applies stock in that order.
type Cart struct {
	mu       sync.Mutex
	lines    []domain.CartLine
	onChange []func([]domain.CartLine)
}

func New(lines ...domain.CartLine) *Cart {
	c := &Cart{}
	for _, l := range lines {
		if l.Quantity > 0 && l.Quantity <= domain.MaxQuantity {
			c.lines = append(c.lines, l)
		}
	}
	return c
}

// OnChange registers a hook that receives a snapshot after every mutation.
func (c *Cart) OnChange(fn func([]domain.CartLine)) {
	c.mu.Lock()
	c.onChange = append(c.onChange, fn)
	c.mu.Unlock()
}

// Add puts qty units of b in the cart, merging with an existing line. The
// line keeps the price it was first added at. A line never holds more than
// domain.MaxQuantity units.
func (c *Cart) Add(b domain.Book, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > domain.MaxQuantity {
		return ErrQuantityTooLarge
	}
	if !b.InStock() {
		return ErrOutOfStock
	}
	c.mu.Lock()
	merged := false
	for i := range c.lines {
		if c.lines[i].BookID == b.ID {
			if c.lines[i].Quantity > domain.MaxQuantity-qty {
				c.mu.Unlock()
				return ErrQuantityTooLarge
			}
			c.lines[i].Quantity += qty
			merged = true
			break
		}
	}
	if !merged {
		c.lines = append(c.lines, domain.CartLine{
			BookID:    b.ID,
			Title:     b.Title,
			UnitPrice: b.Price,
			Quantity:  qty,
			Image:     b.Image,
		})
	}
	c.mu.Unlock()
	c.changed()
	return nil
}

// Update sets the quantity of a line; qty <= 0 removes it.
func (c *Cart) Update(bookID domain.ID, qty int) error {
	if qty <= 0 {
		if !c.Remove(bookID) {
			return ErrNotInCart
		}
		return nil
	}
	if qty > domain.MaxQuantity {
		return ErrQuantityTooLarge
	}
	c.mu.Lock()
	found := false
	for i := range c.lines {
		if c.lines[i].BookID == bookID {
			c.lines[i].Quantity = qty
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return ErrNotInCart
	}
	c.changed()
	return nil
}

func (c *Cart) Remove(bookID domain.ID) bool {
	c.mu.Lock()
	removed := false
	for i := range c.lines {
		if c.lines[i].BookID == bookID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			removed = true
			break
		}
	}
	c.mu.Unlock()
	if removed {
		c.changed()
	}
	return removed
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
	c.changed()
}

// Lines returns a copy safe to hand to checkout.
func (c *Cart) Lines() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func (c *Cart) Total() domain.Money { return domain.Total(c.Lines()) }

func (c *Cart) changed() {
	c.mu.Lock()
	hooks := append([]func([]domain.CartLine){}, c.onChange...)
	snap := make([]domain.CartLine, len(c.lines))
	copy(snap, c.lines)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(snap)
	}
}
