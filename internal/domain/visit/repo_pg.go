package visit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const visitCols = `id, patient_id, facility_id, current_stage, stage_changed_at,
	payment_arrangement, fee_paid, created_at, updated_at`

// Create persists the service-stamped created_at rather than letting the
// database default it. Follow-up pricing compares prior visits against that
// same clock, so a fresh visit can never match itself as its own prior visit.
func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit (id, patient_id, facility_id, current_stage, stage_changed_at, payment_arrangement, fee_paid, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		v.ID, v.PatientID, v.FacilityID, v.CurrentStage, v.StageChangedAt, v.PaymentArrangement, v.FeePaid, v.CreatedAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit SET
			current_stage=$2, stage_changed_at=$3, payment_arrangement=$4, fee_paid=$5, updated_at=NOW()
		WHERE id = $1`,
		v.ID, v.CurrentStage, v.StageChangedAt, v.PaymentArrangement, v.FeePaid,
	)
	return err
}

func (r *repoPG) List(ctx context.Context, facilityID uuid.UUID, activeOnly bool, limit, offset int) ([]*Visit, int, error) {
	where := `WHERE facility_id = $1`
	if activeOnly {
		where += ` AND current_stage NOT IN ('discharged', 'cancelled')`
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visit `+where, facilityID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM visit `+where+` ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		facilityID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectVisits(rows, total)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visit WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM visit WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectVisits(rows, total)
}

func (r *repoPG) LatestPriorVisitTime(ctx context.Context, patientID, facilityID uuid.UUID, before time.Time) (*time.Time, error) {
	var t time.Time
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT created_at FROM visit
		WHERE patient_id = $1 AND facility_id = $2 AND created_at < $3
		ORDER BY created_at DESC LIMIT 1`,
		patientID, facilityID, before).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Timeline

func (r *repoPG) AppendTimelineEntry(ctx context.Context, e *TimelineEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit_timeline (id, visit_id, stage, arrived_at, completed_at, wait_time_minutes, completed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.VisitID, e.Stage, e.ArrivedAt, e.CompletedAt, e.WaitTimeMinutes, e.CompletedBy,
	)
	return err
}

func (r *repoPG) GetOpenTimelineEntry(ctx context.Context, visitID uuid.UUID) (*TimelineEntry, error) {
	e, err := scanTimelineEntry(r.conn(ctx).QueryRow(ctx, `
		SELECT id, visit_id, stage, arrived_at, completed_at, wait_time_minutes, completed_by
		FROM visit_timeline WHERE visit_id = $1 AND completed_at IS NULL`, visitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *repoPG) CloseTimelineEntry(ctx context.Context, e *TimelineEntry) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit_timeline SET completed_at=$2, wait_time_minutes=$3, completed_by=$4
		WHERE id = $1 AND completed_at IS NULL`,
		e.ID, e.CompletedAt, e.WaitTimeMinutes, e.CompletedBy,
	)
	return err
}

func (r *repoPG) LatestTimelineEntry(ctx context.Context, visitID uuid.UUID) (*TimelineEntry, error) {
	e, err := scanTimelineEntry(r.conn(ctx).QueryRow(ctx, `
		SELECT id, visit_id, stage, arrived_at, completed_at, wait_time_minutes, completed_by
		FROM visit_timeline WHERE visit_id = $1 ORDER BY arrived_at DESC, id DESC LIMIT 1`, visitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (r *repoPG) ListTimeline(ctx context.Context, visitID uuid.UUID) ([]*TimelineEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, visit_id, stage, arrived_at, completed_at, wait_time_minutes, completed_by
		FROM visit_timeline WHERE visit_id = $1 ORDER BY arrived_at`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(&e.ID, &e.VisitID, &e.Stage, &e.ArrivedAt, &e.CompletedAt, &e.WaitTimeMinutes, &e.CompletedBy); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// Status events

func (r *repoPG) AddStatusEvent(ctx context.Context, e *StatusEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit_status_event (id, visit_id, previous_stage, new_stage, actor, context)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.VisitID, e.PreviousStage, e.NewStage, e.Actor, e.Context,
	)
	return err
}

func (r *repoPG) ListStatusEvents(ctx context.Context, visitID uuid.UUID) ([]*StatusEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, visit_id, previous_stage, new_stage, actor, context, created_at
		FROM visit_status_event WHERE visit_id = $1 ORDER BY created_at`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*StatusEvent
	for rows.Next() {
		var e StatusEvent
		if err := rows.Scan(&e.ID, &e.VisitID, &e.PreviousStage, &e.NewStage, &e.Actor, &e.Context, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, nil
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(
		&v.ID, &v.PatientID, &v.FacilityID, &v.CurrentStage, &v.StageChangedAt,
		&v.PaymentArrangement, &v.FeePaid, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanTimelineEntry(row pgx.Row) (*TimelineEntry, error) {
	var e TimelineEntry
	err := row.Scan(&e.ID, &e.VisitID, &e.Stage, &e.ArrivedAt, &e.CompletedAt, &e.WaitTimeMinutes, &e.CompletedBy)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectVisits(rows pgx.Rows, total int) ([]*Visit, int, error) {
	var visits []*Visit
	for rows.Next() {
		var v Visit
		err := rows.Scan(
			&v.ID, &v.PatientID, &v.FacilityID, &v.CurrentStage, &v.StageChangedAt,
			&v.PaymentArrangement, &v.FeePaid, &v.CreatedAt, &v.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		visits = append(visits, &v)
	}
	return visits, total, nil
}
