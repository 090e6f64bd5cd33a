package visit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	// GetByIDForUpdate locks the visit row for the duration of the enclosing
	// transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	List(ctx context.Context, facilityID uuid.UUID, activeOnly bool, limit, offset int) ([]*Visit, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error)
	// LatestPriorVisitTime returns the creation time of the most recent visit
	// by the patient at the facility created before the given instant.
	LatestPriorVisitTime(ctx context.Context, patientID, facilityID uuid.UUID, before time.Time) (*time.Time, error)

	// Timeline
	AppendTimelineEntry(ctx context.Context, e *TimelineEntry) error
	GetOpenTimelineEntry(ctx context.Context, visitID uuid.UUID) (*TimelineEntry, error)
	CloseTimelineEntry(ctx context.Context, e *TimelineEntry) error
	LatestTimelineEntry(ctx context.Context, visitID uuid.UUID) (*TimelineEntry, error)
	ListTimeline(ctx context.Context, visitID uuid.UUID) ([]*TimelineEntry, error)

	// Status events
	AddStatusEvent(ctx context.Context, e *StatusEvent) error
	ListStatusEvents(ctx context.Context, visitID uuid.UUID) ([]*StatusEvent, error)
}
