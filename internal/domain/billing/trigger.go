package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/domain/visit"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/internal/platform/db"
	"github.com/clinicflow/clinicflow/internal/platform/events"
)

// TopicItemPaid announces a billable item flipping to paid.
const TopicItemPaid = "billing.item.paid"

// StageAdvancer is the visit API the trigger drives. It deliberately goes
// through the same public AdvanceStage as any interactive caller, so the
// state machine stays the sole authority over legal transitions.
type StageAdvancer interface {
	Get(ctx context.Context, id uuid.UUID) (*visit.Visit, error)
	AdvanceStage(ctx context.Context, visitID uuid.UUID, requested visit.Stage, actor auth.Actor) (visit.Stage, visit.Stage, error)
}

// postPaymentStages maps a settled item type to the stage transition it
// unblocks, keyed by the stage the visit must currently sit in.
var postPaymentStages = map[ItemType]map[visit.Stage]visit.Stage{
	ItemConsultation: {visit.StagePayingConsultation: visit.StageAtTriage},
	ItemLabTest:      {visit.StagePayingDiagnosis: visit.StageAtLab},
	ItemImagingStudy: {visit.StagePayingDiagnosis: visit.StageAtImaging},
	ItemMedication:   {visit.StagePayingPharmacy: visit.StageAtPharmacy},
}

// PaymentTrigger advances a visit past its paying_* stage when the gating
// item is settled. Handlers are idempotent under at-least-once delivery: a
// redelivered event for an already-advanced visit is a no-op.
type PaymentTrigger struct {
	visits StageAdvancer
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPaymentTrigger(visits StageAdvancer, pool *pgxpool.Pool, logger zerolog.Logger) *PaymentTrigger {
	return &PaymentTrigger{visits: visits, pool: pool, logger: logger}
}

// Register subscribes the trigger on the bus.
func (t *PaymentTrigger) Register(bus *events.Bus) {
	bus.Subscribe(TopicItemPaid, t.HandleItemPaid)
}

func (t *PaymentTrigger) HandleItemPaid(ctx context.Context, evt events.Event) error {
	visitID, err := uuid.Parse(evt.Payload["visit_id"])
	if err != nil {
		t.logger.Error().Str("event_id", evt.ID).Msg("item paid event without valid visit_id")
		return nil
	}
	itemType := ItemType(evt.Payload["item_type"])
	targets, gated := postPaymentStages[itemType]
	if !gated {
		return nil
	}

	if tenant := evt.Payload["tenant_id"]; tenant != "" && t.pool != nil {
		tenantCtx, release, err := db.WithTenant(ctx, t.pool, tenant)
		if err != nil {
			return fmt.Errorf("resolve tenant %s: %w", tenant, err)
		}
		defer release()
		ctx = tenantCtx
	}

	v, err := t.visits.Get(ctx, visitID)
	if err != nil {
		if errors.Is(err, visit.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load visit %s: %w", visitID, err)
	}

	next, ok := targets[v.CurrentStage]
	if !ok {
		// Already advanced, or the visit never hit the gating stage.
		return nil
	}

	previous, current, err := t.visits.AdvanceStage(ctx, visitID, next, auth.SystemActor())
	if err != nil {
		if errors.Is(err, visit.ErrInvalidTransition) || errors.Is(err, visit.ErrTerminalState) {
			// Lost the race to another writer; the visit moved on.
			return nil
		}
		return fmt.Errorf("advance visit %s: %w", visitID, err)
	}

	t.logger.Info().
		Str("visit_id", visitID.String()).
		Str("item_type", string(itemType)).
		Str("previous_stage", string(previous)).
		Str("current_stage", string(current)).
		Msg("payment cleared, visit advanced")
	return nil
}
