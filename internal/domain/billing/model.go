package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemType classifies a chargeable event.
type ItemType string

const (
	ItemConsultation   ItemType = "consultation"
	ItemLabTest        ItemType = "lab_test"
	ItemImagingStudy   ItemType = "imaging_study"
	ItemMedication     ItemType = "medication"
	ItemGenericService ItemType = "generic_service"
)

var validItemTypes = map[ItemType]bool{
	ItemConsultation:   true,
	ItemLabTest:        true,
	ItemImagingStudy:   true,
	ItemMedication:     true,
	ItemGenericService: true,
}

// ValidItemType reports whether t is a known billable item type.
func ValidItemType(t ItemType) bool {
	return validItemTypes[t]
}

// PaymentStatus is the per-item settlement state.
type PaymentStatus string

const (
	StatusUnpaid   PaymentStatus = "unpaid"
	StatusPaid     PaymentStatus = "paid"
	StatusWaived   PaymentStatus = "waived"
	StatusRefunded PaymentStatus = "refunded"
)

// RollupStatus is the visit-level payment verdict aggregated across items.
type RollupStatus string

const (
	RollupNone    RollupStatus = "none"
	RollupPending RollupStatus = "pending"
	RollupUnpaid  RollupStatus = "unpaid"
	RollupPaid    RollupStatus = "paid"
)

// BillableItem maps to the billable_item table. A visit carries at most one
// non-voided consultation item.
type BillableItem struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	VisitID        uuid.UUID     `db:"visit_id" json:"visit_id"`
	ItemType       ItemType      `db:"item_type" json:"item_type"`
	ReferenceID    *uuid.UUID    `db:"reference_id" json:"reference_id,omitempty"`
	Description    *string       `db:"description" json:"description,omitempty"`
	UnitPrice      float64       `db:"unit_price" json:"unit_price"`
	Quantity       int           `db:"quantity" json:"quantity"`
	DiscountAmount float64       `db:"discount_amount" json:"discount_amount"`
	Subtotal       float64       `db:"subtotal" json:"subtotal"`
	PaymentStatus  PaymentStatus `db:"payment_status" json:"payment_status"`
	PaymentMethod  *string       `db:"payment_method" json:"payment_method,omitempty"`
	Voided         bool          `db:"voided" json:"voided"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// ComputeSubtotal recalculates the item subtotal with decimal arithmetic:
// unit price times quantity minus discount, floored at zero.
func (i *BillableItem) ComputeSubtotal() {
	sub := decimal.NewFromFloat(i.UnitPrice).
		Mul(decimal.NewFromInt(int64(i.Quantity))).
		Sub(decimal.NewFromFloat(i.DiscountAmount))
	if sub.IsNegative() {
		sub = decimal.Zero
	}
	i.Subtotal, _ = sub.Round(2).Float64()
}

// PaymentRecord maps to the payment_record table: the per-visit collection
// header grouping items settled together.
type PaymentRecord struct {
	ID          uuid.UUID `db:"id" json:"id"`
	VisitID     uuid.UUID `db:"visit_id" json:"visit_id"`
	Status      string    `db:"status" json:"status"`
	TotalAmount float64   `db:"total_amount" json:"total_amount"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentRecordLine maps to the payment_record_line table, one row per item
// covered by a collection event.
type PaymentRecordLine struct {
	ID        uuid.UUID `db:"id" json:"id"`
	RecordID  uuid.UUID `db:"record_id" json:"record_id"`
	ItemID    uuid.UUID `db:"item_id" json:"item_id"`
	Amount    float64   `db:"amount" json:"amount"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PaymentTransaction maps to the payment_transaction table: actual funds
// received.
type PaymentTransaction struct {
	ID          uuid.UUID `db:"id" json:"id"`
	RecordID    uuid.UUID `db:"record_id" json:"record_id"`
	Amount      float64   `db:"amount" json:"amount"`
	Method      string    `db:"method" json:"method"`
	Reference   *string   `db:"reference" json:"reference,omitempty"`
	CollectedBy string    `db:"collected_by" json:"collected_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
