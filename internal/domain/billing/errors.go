package billing

import "errors"

var (
	// ErrNoConsultationServiceConfigured means the facility has no active
	// consultation pricing rule. Registration fails closed rather than
	// producing an unbilled visit.
	ErrNoConsultationServiceConfigured = errors.New("no consultation service configured for facility")

	// ErrInvalidPrice means a pricing rule or item carries a non-positive or
	// otherwise unusable price.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrDuplicateBillableItem means a second consultation item was attempted
	// for the same visit.
	ErrDuplicateBillableItem = errors.New("duplicate billable item")

	// ErrPartialPaymentMismatch means a tendered transaction amount asserts
	// more than the covered line items total.
	ErrPartialPaymentMismatch = errors.New("payment transaction does not reconcile with line items")

	// ErrItemAlreadyPaid means a collection event referenced an item that was
	// settled by an earlier collection. Re-settling would double the ledger.
	ErrItemAlreadyPaid = errors.New("billable item already paid")

	// ErrItemNotFound means no billable item exists with the given identity.
	ErrItemNotFound = errors.New("billable item not found")
)
