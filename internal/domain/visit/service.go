package visit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/platform/auth"
)

// Biller owns consultation billing. Register calls it inside the registration
// transaction so a visit never exists without its consultation charge.
type Biller interface {
	EnsureConsultationCharge(ctx context.Context, v *Visit) error
}

// TxRunner executes fn inside a transaction. The default runner calls fn
// directly, which keeps the service usable against mock repositories.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo   Repository
	biller Biller
	inTx   TxRunner
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		inTx: func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) },
	}
}

// SetBiller attaches the consultation billing collaborator.
func (s *Service) SetBiller(b Biller) {
	s.biller = b
}

// SetTxRunner replaces the transaction runner. The server wires a
// serializable runner with bounded retry here.
func (s *Service) SetTxRunner(tx TxRunner) {
	s.inTx = tx
}

// Register creates a visit in the registered stage, opens its first timeline
// entry, records the registration status event, and raises the consultation
// charge. Everything commits in one transaction: a billing precondition
// failure blocks registration.
func (s *Service) Register(ctx context.Context, patientID, facilityID uuid.UUID, arrangement string, actor auth.Actor) (*Visit, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if facilityID == uuid.Nil {
		return nil, fmt.Errorf("facility_id is required")
	}
	if arrangement == "" {
		arrangement = ArrangementPaying
	}
	if !ValidArrangement(arrangement) {
		return nil, fmt.Errorf("invalid payment arrangement: %s", arrangement)
	}
	if !roleMayAdvance(actor.Role, StageRegistered) {
		return nil, fmt.Errorf("%w: role %s may not register visits", ErrUnauthorized, actor.Role)
	}

	now := time.Now().UTC()
	v := &Visit{
		ID:                 uuid.New(),
		PatientID:          patientID,
		FacilityID:         facilityID,
		CurrentStage:       StageRegistered,
		StageChangedAt:     now,
		PaymentArrangement: arrangement,
		CreatedAt:          now,
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, v); err != nil {
			return fmt.Errorf("create visit: %w", err)
		}
		if err := s.repo.AppendTimelineEntry(ctx, &TimelineEntry{
			VisitID:   v.ID,
			Stage:     StageRegistered,
			ArrivedAt: now,
		}); err != nil {
			return fmt.Errorf("open timeline entry: %w", err)
		}
		if err := s.repo.AddStatusEvent(ctx, &StatusEvent{
			VisitID:  v.ID,
			NewStage: StageRegistered,
			Actor:    actor.UserID,
		}); err != nil {
			return fmt.Errorf("add status event: %w", err)
		}
		if s.biller != nil {
			if err := s.biller.EnsureConsultationCharge(ctx, v); err != nil {
				return fmt.Errorf("consultation charge: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// AdvanceStage moves a visit to a legal successor stage. The four effects
// (close open timeline entry, open the next, update the visit row, write the
// status event) commit atomically; the visit's current stage is re-derived
// from the latest timeline entry before validation so that no writer can act
// on a stale stage field.
func (s *Service) AdvanceStage(ctx context.Context, visitID uuid.UUID, requested Stage, actor auth.Actor) (previous, current Stage, err error) {
	if !ValidStage(requested) {
		return "", "", fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, requested)
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		v, from, txErr := s.lockAndDerive(ctx, visitID)
		if txErr != nil {
			return txErr
		}
		if from.Terminal() {
			return fmt.Errorf("%w: visit is %s", ErrTerminalState, from)
		}
		if !roleMayAdvance(actor.Role, from) {
			return fmt.Errorf("%w: role %s may not advance a visit from %s", ErrUnauthorized, actor.Role, from)
		}
		if !canTransition(from, requested) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, requested)
		}

		previous = from
		current = requested
		return s.transition(ctx, v, from, requested, actor, nil)
	})
	if err != nil {
		return "", "", err
	}
	return previous, current, nil
}

// Cancel moves a visit from any non-terminal stage to cancelled.
func (s *Service) Cancel(ctx context.Context, visitID uuid.UUID, reason string, actor auth.Actor) error {
	if !roleMayCancel(actor.Role) {
		return fmt.Errorf("%w: role %s may not cancel visits", ErrUnauthorized, actor.Role)
	}
	return s.inTx(ctx, func(ctx context.Context) error {
		v, from, err := s.lockAndDerive(ctx, visitID)
		if err != nil {
			return err
		}
		if from.Terminal() {
			return fmt.Errorf("%w: visit is %s", ErrTerminalState, from)
		}
		var evtContext *string
		if reason != "" {
			evtContext = &reason
		}
		return s.transition(ctx, v, from, StageCancelled, actor, evtContext)
	})
}

// lockAndDerive loads the visit row under lock and recomputes its current
// stage from the latest timeline entry.
func (s *Service) lockAndDerive(ctx context.Context, visitID uuid.UUID) (*Visit, Stage, error) {
	v, err := s.repo.GetByIDForUpdate(ctx, visitID)
	if err != nil {
		return nil, "", err
	}
	latest, err := s.repo.LatestTimelineEntry(ctx, visitID)
	if err != nil {
		return nil, "", fmt.Errorf("load latest timeline entry: %w", err)
	}
	stage := v.CurrentStage
	if latest != nil {
		stage = latest.Stage
	}
	return v, stage, nil
}

// transition applies the atomic four-part effect of a stage change. Callers
// have already validated the move.
func (s *Service) transition(ctx context.Context, v *Visit, from, to Stage, actor auth.Actor, evtContext *string) error {
	now := time.Now().UTC()

	open, err := s.repo.GetOpenTimelineEntry(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("load open timeline entry: %w", err)
	}
	if open != nil {
		wait := waitMinutes(open.ArrivedAt, now)
		open.CompletedAt = &now
		open.WaitTimeMinutes = &wait
		completedBy := actor.UserID
		open.CompletedBy = &completedBy
		if err := s.repo.CloseTimelineEntry(ctx, open); err != nil {
			return fmt.Errorf("close timeline entry: %w", err)
		}
	}

	if err := s.repo.AppendTimelineEntry(ctx, &TimelineEntry{
		VisitID:   v.ID,
		Stage:     to,
		ArrivedAt: now,
	}); err != nil {
		return fmt.Errorf("open timeline entry: %w", err)
	}

	v.CurrentStage = to
	v.StageChangedAt = now
	if err := s.repo.Update(ctx, v); err != nil {
		return fmt.Errorf("update visit: %w", err)
	}

	prev := from
	if err := s.repo.AddStatusEvent(ctx, &StatusEvent{
		VisitID:       v.ID,
		PreviousStage: &prev,
		NewStage:      to,
		Actor:         actor.UserID,
		Context:       evtContext,
	}); err != nil {
		return fmt.Errorf("add status event: %w", err)
	}
	return nil
}

func waitMinutes(arrived, now time.Time) int {
	m := int(now.Sub(arrived).Minutes())
	if m < 0 {
		return 0
	}
	return m
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, facilityID uuid.UUID, activeOnly bool, limit, offset int) ([]*Visit, int, error) {
	return s.repo.List(ctx, facilityID, activeOnly, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) Timeline(ctx context.Context, visitID uuid.UUID) ([]*TimelineEntry, error) {
	return s.repo.ListTimeline(ctx, visitID)
}

func (s *Service) StatusEvents(ctx context.Context, visitID uuid.UUID) ([]*StatusEvent, error) {
	return s.repo.ListStatusEvents(ctx, visitID)
}

// CurrentWaitMinutes reports how long the visit has been sitting in expected.
// A mismatch between the open entry's stage and expected yields zero rather
// than a negative or stale reading.
func (s *Service) CurrentWaitMinutes(ctx context.Context, visitID uuid.UUID, expected Stage) (int, error) {
	open, err := s.repo.GetOpenTimelineEntry(ctx, visitID)
	if err != nil {
		return 0, err
	}
	if open == nil || open.Stage != expected {
		return 0, nil
	}
	return waitMinutes(open.ArrivedAt, time.Now().UTC()), nil
}

// LatestPriorVisitTime exposes prior-visit lookup for follow-up pricing.
func (s *Service) LatestPriorVisitTime(ctx context.Context, patientID, facilityID uuid.UUID, before time.Time) (*time.Time, error) {
	return s.repo.LatestPriorVisitTime(ctx, patientID, facilityID, before)
}

// AddFeePaid accumulates collected funds on the visit row.
func (s *Service) AddFeePaid(ctx context.Context, visitID uuid.UUID, amount float64) error {
	v, err := s.repo.GetByID(ctx, visitID)
	if err != nil {
		return err
	}
	v.FeePaid += amount
	return s.repo.Update(ctx, v)
}
