package billing

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Items
	CreateItem(ctx context.Context, item *BillableItem) error
	GetItem(ctx context.Context, id uuid.UUID) (*BillableItem, error)
	UpdateItem(ctx context.Context, item *BillableItem) error
	ListItemsByVisit(ctx context.Context, visitID uuid.UUID) ([]*BillableItem, error)
	// GetConsultationItem returns the non-voided consultation item for the
	// visit, or nil when none exists.
	GetConsultationItem(ctx context.Context, visitID uuid.UUID) (*BillableItem, error)

	// Payment records
	GetRecordByVisit(ctx context.Context, visitID uuid.UUID) (*PaymentRecord, error)
	CreateRecord(ctx context.Context, rec *PaymentRecord) error
	UpdateRecord(ctx context.Context, rec *PaymentRecord) error
	AddRecordLine(ctx context.Context, line *PaymentRecordLine) error
	ListRecordLines(ctx context.Context, recordID uuid.UUID) ([]*PaymentRecordLine, error)
	AddTransaction(ctx context.Context, tx *PaymentTransaction) error
	ListTransactions(ctx context.Context, recordID uuid.UUID) ([]*PaymentTransaction, error)
}
