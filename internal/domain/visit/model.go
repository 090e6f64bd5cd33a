package visit

import (
	"time"

	"github.com/google/uuid"
)

// Payment arrangements: how the consultation fee for a visit is funded.
const (
	ArrangementPaying  = "paying"
	ArrangementFree    = "free"
	ArrangementCredit  = "credit"
	ArrangementInsured = "insured"
)

var validArrangements = map[string]bool{
	ArrangementPaying:  true,
	ArrangementFree:    true,
	ArrangementCredit:  true,
	ArrangementInsured: true,
}

// ValidArrangement reports whether a is a known payment arrangement.
func ValidArrangement(a string) bool {
	return validArrangements[a]
}

// Visit maps to the visit table. CurrentStage is derived from the timeline:
// every mutating transaction recomputes it from the latest entry, so it is
// never authoritative on its own.
type Visit struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	PatientID          uuid.UUID `db:"patient_id" json:"patient_id"`
	FacilityID         uuid.UUID `db:"facility_id" json:"facility_id"`
	CurrentStage       Stage     `db:"current_stage" json:"current_stage"`
	StageChangedAt     time.Time `db:"stage_changed_at" json:"stage_changed_at"`
	PaymentArrangement string    `db:"payment_arrangement" json:"payment_arrangement"`
	FeePaid            float64   `db:"fee_paid" json:"fee_paid"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// TimelineEntry maps to the visit_timeline table. At most one entry per visit
// has CompletedAt == nil; closed entries are never edited again.
type TimelineEntry struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	VisitID         uuid.UUID  `db:"visit_id" json:"visit_id"`
	Stage           Stage      `db:"stage" json:"stage"`
	ArrivedAt       time.Time  `db:"arrived_at" json:"arrived_at"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	WaitTimeMinutes *int       `db:"wait_time_minutes" json:"wait_time_minutes,omitempty"`
	CompletedBy     *string    `db:"completed_by" json:"completed_by,omitempty"`
}

// StatusEvent maps to the visit_status_event table. Immutable audit record,
// one per committed stage transition.
type StatusEvent struct {
	ID            uuid.UUID `db:"id" json:"id"`
	VisitID       uuid.UUID `db:"visit_id" json:"visit_id"`
	PreviousStage *Stage    `db:"previous_stage" json:"previous_stage,omitempty"`
	NewStage      Stage     `db:"new_stage" json:"new_stage"`
	Actor         string    `db:"actor" json:"actor"`
	Context       *string   `db:"context" json:"context,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
