package checkout

import "errors"

// Step is a checkout attempt's progress. Attempts only move forward; a
// failed attempt is never resumed.
type Step int

const (
	StepNotStarted Step = iota
	StepOrderCreated
	StepBillCreated
	StepStockApplying
	StepCompleted
)

func (s Step) String() string {
	switch s {
	case StepNotStarted:
		return "not-started"
	case StepOrderCreated:
		return "order-created"
	case StepBillCreated:
		return "bill-created"
	case StepStockApplying:
		return "stock-applying"
	case StepCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Outcome labels used for events and metrics.
const (
	OutcomeCompleted   = "completed"
	OutcomeRejected    = "rejected"
	OutcomeOrderFailed = "order_failed"
	OutcomeBillFailed  = "bill_failed"
	OutcomeStockFailed = "stock_failed"
)

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeCompleted
	}
	var e *Error
	if !errors.As(err, &e) {
		return OutcomeRejected
	}
	switch e.Kind {
	case ErrOrderCreateFailed:
		return OutcomeOrderFailed
	case ErrBillCreateFailed:
		return OutcomeBillFailed
	case ErrStockUpdateFailed:
		return OutcomeStockFailed
	default:
		return OutcomeRejected
	}
}
