package reporting

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/domain/billing"
	"github.com/clinicflow/clinicflow/internal/domain/identity"
	"github.com/clinicflow/clinicflow/internal/domain/visit"
)

// VisitSource supplies the active visits and their live wait times.
type VisitSource interface {
	List(ctx context.Context, facilityID uuid.UUID, activeOnly bool, limit, offset int) ([]*visit.Visit, int, error)
	CurrentWaitMinutes(ctx context.Context, visitID uuid.UUID, expected visit.Stage) (int, error)
}

// PatientSource resolves patient display names.
type PatientSource interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

// PaymentSource supplies the per-visit payment verdicts.
type PaymentSource interface {
	RollupPaymentStatus(ctx context.Context, v *visit.Visit) (billing.RollupStatus, error)
	ConsultationPaymentStatus(ctx context.Context, v *visit.Visit) (billing.PaymentStatus, error)
}

// BoardRow is one line on the live patient-flow board.
type BoardRow struct {
	VisitID             uuid.UUID             `json:"visit_id"`
	PatientID           uuid.UUID             `json:"patient_id"`
	PatientName         string                `json:"patient_name"`
	MRN                 string                `json:"mrn"`
	Stage               visit.Stage           `json:"stage"`
	WaitMinutes         int                   `json:"wait_minutes"`
	PaymentArrangement  string                `json:"payment_arrangement"`
	ConsultationPayment billing.PaymentStatus `json:"consultation_payment"`
	OverallPayment      billing.RollupStatus  `json:"overall_payment"`
}

// Board projects visits, demographics, and payment state into the single
// read model the front desk screens poll.
type Board struct {
	visits   VisitSource
	patients PatientSource
	payments PaymentSource
}

func NewBoard(visits VisitSource, patients PatientSource, payments PaymentSource) *Board {
	return &Board{visits: visits, patients: patients, payments: payments}
}

const boardLimit = 200

// Snapshot returns the board rows for a facility's active visits. A visit
// whose patient record cannot be resolved still appears, with the name blank.
func (b *Board) Snapshot(ctx context.Context, facilityID string) ([]BoardRow, error) {
	fid, err := uuid.Parse(facilityID)
	if err != nil {
		return nil, fmt.Errorf("invalid facility_id: %s", facilityID)
	}

	visits, _, err := b.visits.List(ctx, fid, true, boardLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}

	rows := make([]BoardRow, 0, len(visits))
	for _, v := range visits {
		row := BoardRow{
			VisitID:            v.ID,
			PatientID:          v.PatientID,
			Stage:              v.CurrentStage,
			PaymentArrangement: v.PaymentArrangement,
		}
		if p, err := b.patients.GetPatient(ctx, v.PatientID); err == nil {
			row.PatientName = p.FullName()
			row.MRN = p.MRN
		}
		if wait, err := b.visits.CurrentWaitMinutes(ctx, v.ID, v.CurrentStage); err == nil {
			row.WaitMinutes = wait
		}
		if status, err := b.payments.ConsultationPaymentStatus(ctx, v); err == nil {
			row.ConsultationPayment = status
		}
		if rollup, err := b.payments.RollupPaymentStatus(ctx, v); err == nil {
			row.OverallPayment = rollup
		}
		rows = append(rows, row)
	}
	return rows, nil
}
