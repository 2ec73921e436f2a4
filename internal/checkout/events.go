package checkout

import "github.com/ahinestrog/storefront/internal/domain"

// Routing keys published by the coordinator.
const (
	RKCheckoutCompleted = "checkout.completed"
	RKCheckoutFailed    = "checkout.failed"
)

type CompletedPayload struct {
	AttemptID     string               `json:"attempt_id"`
	OrderID       domain.ID            `json:"order_id"`
	BillID        domain.ID            `json:"bill_id"`
	UserID        domain.ID            `json:"user_id"`
	TotalAmount   domain.Money         `json:"total_amount"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Items         []domain.OrderItem   `json:"items"`
}

// FailedPayload carries enough to reconcile a partial attempt by hand.
type FailedPayload struct {
	AttemptID string    `json:"attempt_id"`
	UserID    domain.ID `json:"user_id"`
	Reason    string    `json:"reason"`
	Step      string    `json:"last_step"`
	OrderID   domain.ID `json:"order_id,omitempty"`
	BillID    domain.ID `json:"bill_id,omitempty"`
	LineIndex int       `json:"line_index"`
	BookID    domain.ID `json:"book_id,omitempty"`
	Applied   []Applied `json:"applied,omitempty"`
	Error     string    `json:"error"`
}
