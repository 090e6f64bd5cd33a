package orders

import (
	"time"

	"github.com/google/uuid"
)

// OrderType classifies a clinical order and decides which billable item type
// it raises.
type OrderType string

const (
	OrderLab          OrderType = "lab"
	OrderImaging      OrderType = "imaging"
	OrderPrescription OrderType = "prescription"
)

var validOrderTypes = map[OrderType]bool{
	OrderLab:          true,
	OrderImaging:      true,
	OrderPrescription: true,
}

// ValidOrderType reports whether t is a known order type.
func ValidOrderType(t OrderType) bool {
	return validOrderTypes[t]
}

// OrderStatus tracks clinical fulfilment. It moves independently of payment:
// a completed lab result does not imply a settled bill.
type OrderStatus string

const (
	StatusOrdered    OrderStatus = "ordered"
	StatusInProgress OrderStatus = "in_progress"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	StatusOrdered:    {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// Order maps to the clinical_order table. BillableItemID links the charge the
// order raised at creation.
type Order struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	VisitID             uuid.UUID  `db:"visit_id" json:"visit_id"`
	OrderType           OrderType  `db:"order_type" json:"order_type"`
	ServiceDefinitionID *uuid.UUID `db:"service_definition_id" json:"service_definition_id,omitempty"`
	BillableItemID      *uuid.UUID `db:"billable_item_id" json:"billable_item_id,omitempty"`
	Description         string     `db:"description" json:"description"`
	Quantity            int        `db:"quantity" json:"quantity"`
	Status              OrderStatus `db:"status" json:"status"`
	OrderedBy           string     `db:"ordered_by" json:"ordered_by"`
	ResultSummary       *string    `db:"result_summary" json:"result_summary,omitempty"`
	CompletedAt         *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}
