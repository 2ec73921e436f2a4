package events

import "github.com/ahinestrog/storefront/internal/domain"

type BookUpdated struct {
	BookID domain.ID `json:"book_id"`
	Stock  int       `json:"stock"`
}

type OrderPlaced struct {
	OrderID     domain.ID    `json:"order_id"`
	UserID      domain.ID    `json:"user_id"`
	TotalAmount domain.Money `json:"total_amount"`
}

type BillCreated struct {
	BillID  domain.ID `json:"bill_id"`
	OrderID domain.ID `json:"order_id"`
	UserID  domain.ID `json:"user_id"`
}
