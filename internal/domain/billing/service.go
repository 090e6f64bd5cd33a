package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicflow/clinicflow/internal/domain/visit"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/internal/platform/db"
	"github.com/clinicflow/clinicflow/internal/platform/events"
)

// reconcileEpsilon absorbs float representation noise when comparing a
// tendered amount against the covered line total.
var reconcileEpsilon = decimal.NewFromFloat(0.01)

// PricingDirectory supplies consultation pricing per facility.
type PricingDirectory interface {
	ActiveConsultationRule(ctx context.Context, facilityID uuid.UUID) (*ConsultationPricing, error)
}

// ConsultationPricing is the facility pricing contract the ledger consumes.
type ConsultationPricing struct {
	StandardPrice      float64
	FollowUpPrice      *float64
	FollowUpWindowDays int
}

// VisitDirectory is the slice of the visit domain the ledger needs: prior
// visits for follow-up pricing and fee accumulation on collection.
type VisitDirectory interface {
	LatestPriorVisitTime(ctx context.Context, patientID, facilityID uuid.UUID, before time.Time) (*time.Time, error)
	AddFeePaid(ctx context.Context, visitID uuid.UUID, amount float64) error
}

// Publisher delivers domain events to their subscribers before returning.
// Delivery happens after the collection transaction commits; the synchronous
// call keeps the post-payment stage advance from being lost if the process
// dies with the event still queued.
type Publisher interface {
	PublishSync(ctx context.Context, evt events.Event)
}

// TxRunner executes fn inside a transaction; the default runs fn directly.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo    Repository
	pricing PricingDirectory
	visits  VisitDirectory
	pub     Publisher
	inTx    TxRunner
	logger  zerolog.Logger
}

func NewService(repo Repository, pricing PricingDirectory, visits VisitDirectory, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		pricing: pricing,
		visits:  visits,
		logger:  logger,
		inTx:    func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) },
	}
}

// SetPublisher attaches the event bus used to announce settled items.
func (s *Service) SetPublisher(pub Publisher) {
	s.pub = pub
}

// SetTxRunner replaces the transaction runner.
func (s *Service) SetTxRunner(tx TxRunner) {
	s.inTx = tx
}

// EnsureConsultationCharge raises the consultation fee for a freshly
// registered visit. Idempotent: a visit gets exactly one consultation item.
// Follow-up pricing applies when the patient's previous visit at the facility
// falls inside the configured window. A facility without an active pricing
// rule fails closed and blocks registration.
func (s *Service) EnsureConsultationCharge(ctx context.Context, v *visit.Visit) error {
	existing, err := s.repo.GetConsultationItem(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("lookup consultation item: %w", err)
	}
	if existing != nil {
		return nil
	}

	rule, err := s.pricing.ActiveConsultationRule(ctx, v.FacilityID)
	if err != nil {
		return fmt.Errorf("lookup pricing rule: %w", err)
	}
	if rule == nil {
		return fmt.Errorf("%w: facility %s", ErrNoConsultationServiceConfigured, v.FacilityID)
	}

	price := rule.StandardPrice
	if rule.FollowUpPrice != nil && rule.FollowUpWindowDays > 0 {
		reference := v.CreatedAt
		if reference.IsZero() {
			reference = time.Now().UTC()
		}
		prior, err := s.visits.LatestPriorVisitTime(ctx, v.PatientID, v.FacilityID, reference)
		if err != nil {
			return fmt.Errorf("lookup prior visit: %w", err)
		}
		window := time.Duration(rule.FollowUpWindowDays) * 24 * time.Hour
		if prior != nil && reference.Sub(*prior) <= window {
			price = *rule.FollowUpPrice
		}
	}
	if price <= 0 {
		return fmt.Errorf("%w: consultation price %.2f", ErrInvalidPrice, price)
	}

	item := &BillableItem{
		VisitID:       v.ID,
		ItemType:      ItemConsultation,
		UnitPrice:     price,
		Quantity:      1,
		PaymentStatus: StatusUnpaid,
	}
	item.ComputeSubtotal()
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return fmt.Errorf("create consultation item: %w", err)
	}
	return nil
}

// CreateItem records a chargeable event raised by an order-producing
// subsystem. Consultation items go through EnsureConsultationCharge; a second
// consultation for the same visit is rejected.
func (s *Service) CreateItem(ctx context.Context, item *BillableItem) error {
	if item.VisitID == uuid.Nil {
		return fmt.Errorf("visit_id is required")
	}
	if !ValidItemType(item.ItemType) {
		return fmt.Errorf("invalid item type: %s", item.ItemType)
	}
	if item.UnitPrice < 0 || item.DiscountAmount < 0 {
		return fmt.Errorf("%w: unit price %.2f, discount %.2f", ErrInvalidPrice, item.UnitPrice, item.DiscountAmount)
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	if item.PaymentStatus == "" {
		item.PaymentStatus = StatusUnpaid
	}
	if item.ItemType == ItemConsultation {
		existing, err := s.repo.GetConsultationItem(ctx, item.VisitID)
		if err != nil {
			return fmt.Errorf("lookup consultation item: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: visit %s already has a consultation item", ErrDuplicateBillableItem, item.VisitID)
		}
	}
	item.ComputeSubtotal()
	return s.repo.CreateItem(ctx, item)
}

// PaymentLine references one item in a collection event, optionally
// correcting quantity and unit price at the till.
type PaymentLine struct {
	ItemID    uuid.UUID `json:"item_id"`
	Quantity  *int      `json:"quantity,omitempty"`
	UnitPrice *float64  `json:"unit_price,omitempty"`
}

// RecordPayment settles a set of billable items in one atomic collection
// event: the payment record is upserted, every referenced item is marked
// paid with matching record lines, and tendered funds become a payment
// transaction. A line referencing an item settled by an earlier collection
// is rejected with ErrItemAlreadyPaid so a replayed collection cannot double
// the ledger. A tendered amount exceeding the covered line total by more
// than the epsilon is rejected with ErrPartialPaymentMismatch; an
// under-tender is accepted and logged.
func (s *Service) RecordPayment(ctx context.Context, visitID uuid.UUID, lines []PaymentLine, tendered float64, method string, reference *string, actor auth.Actor) (*PaymentRecord, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("at least one payment line is required")
	}
	if method == "" {
		method = "cash"
	}
	if tendered < 0 {
		return nil, fmt.Errorf("%w: negative tender %.2f", ErrPartialPaymentMismatch, tendered)
	}

	var (
		rec       *PaymentRecord
		newlyPaid []*BillableItem
	)
	err := s.inTx(ctx, func(ctx context.Context) error {
		newlyPaid = newlyPaid[:0]

		var err error
		rec, err = s.repo.GetRecordByVisit(ctx, visitID)
		if err != nil {
			return fmt.Errorf("lookup payment record: %w", err)
		}
		if rec == nil {
			rec = &PaymentRecord{VisitID: visitID, Status: "pending"}
			if err := s.repo.CreateRecord(ctx, rec); err != nil {
				return fmt.Errorf("create payment record: %w", err)
			}
		}

		lineTotal := decimal.Zero
		for _, line := range lines {
			item, err := s.repo.GetItem(ctx, line.ItemID)
			if err != nil {
				return fmt.Errorf("lookup item %s: %w", line.ItemID, err)
			}
			if item.VisitID != visitID {
				return fmt.Errorf("item %s does not belong to visit %s", item.ID, visitID)
			}
			if item.Voided {
				return fmt.Errorf("item %s is voided", item.ID)
			}
			if item.PaymentStatus == StatusPaid {
				return fmt.Errorf("%w: item %s", ErrItemAlreadyPaid, item.ID)
			}
			if line.Quantity != nil {
				if *line.Quantity <= 0 {
					return fmt.Errorf("%w: quantity %d", ErrInvalidPrice, *line.Quantity)
				}
				item.Quantity = *line.Quantity
			}
			if line.UnitPrice != nil {
				if *line.UnitPrice < 0 {
					return fmt.Errorf("%w: unit price %.2f", ErrInvalidPrice, *line.UnitPrice)
				}
				item.UnitPrice = *line.UnitPrice
			}
			item.ComputeSubtotal()

			item.PaymentStatus = StatusPaid
			m := method
			item.PaymentMethod = &m
			newlyPaid = append(newlyPaid, item)
			if err := s.repo.UpdateItem(ctx, item); err != nil {
				return fmt.Errorf("update item %s: %w", item.ID, err)
			}
			if err := s.repo.AddRecordLine(ctx, &PaymentRecordLine{
				RecordID: rec.ID,
				ItemID:   item.ID,
				Amount:   item.Subtotal,
			}); err != nil {
				return fmt.Errorf("add record line: %w", err)
			}
			lineTotal = lineTotal.Add(decimal.NewFromFloat(item.Subtotal))
		}

		tenderedDec := decimal.NewFromFloat(tendered)
		if tenderedDec.Sub(lineTotal).GreaterThan(reconcileEpsilon) {
			return fmt.Errorf("%w: tendered %.2f against line total %s",
				ErrPartialPaymentMismatch, tendered, lineTotal.StringFixed(2))
		}
		if tenderedDec.IsPositive() && lineTotal.Sub(tenderedDec).GreaterThan(reconcileEpsilon) {
			s.logger.Warn().
				Str("visit_id", visitID.String()).
				Float64("tendered", tendered).
				Str("line_total", lineTotal.StringFixed(2)).
				Msg("partial collection: tendered less than covered line total")
		}

		if tenderedDec.IsPositive() {
			if err := s.repo.AddTransaction(ctx, &PaymentTransaction{
				RecordID:    rec.ID,
				Amount:      tendered,
				Method:      method,
				Reference:   reference,
				CollectedBy: actor.UserID,
			}); err != nil {
				return fmt.Errorf("add payment transaction: %w", err)
			}
			if err := s.visits.AddFeePaid(ctx, visitID, tendered); err != nil {
				return fmt.Errorf("accumulate fee paid: %w", err)
			}
		}

		total, _ := decimal.NewFromFloat(rec.TotalAmount).Add(lineTotal).Round(2).Float64()
		rec.TotalAmount = total
		rec.Status = "paid"
		if err := s.repo.UpdateRecord(ctx, rec); err != nil {
			return fmt.Errorf("update payment record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.pub != nil {
		tenant := db.TenantFromContext(ctx)
		for _, item := range newlyPaid {
			s.pub.PublishSync(ctx, events.Event{
				Topic: TopicItemPaid,
				Payload: map[string]string{
					"tenant_id": tenant,
					"visit_id":  item.VisitID.String(),
					"item_id":   item.ID.String(),
					"item_type": string(item.ItemType),
				},
			})
		}
	}
	return rec, nil
}

// arrangementWaivesConsultation reports whether the visit's funding mode
// covers the consultation fee outside the cash ledger.
func arrangementWaivesConsultation(arrangement string) bool {
	switch arrangement {
	case visit.ArrangementFree, visit.ArrangementInsured, visit.ArrangementCredit:
		return true
	}
	return false
}

// RollupPaymentStatus aggregates per-item status into the visit-level
// verdict. Consultation items on free/insured/credit visits count as waived
// whatever their stored status; waived items never block a paid verdict.
func (s *Service) RollupPaymentStatus(ctx context.Context, v *visit.Visit) (RollupStatus, error) {
	items, err := s.repo.ListItemsByVisit(ctx, v.ID)
	if err != nil {
		return "", fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		return RollupNone, nil
	}

	var countable, paid int
	for _, item := range items {
		status := item.PaymentStatus
		if item.ItemType == ItemConsultation && arrangementWaivesConsultation(v.PaymentArrangement) {
			status = StatusWaived
		}
		if status == StatusWaived {
			continue
		}
		countable++
		if status == StatusPaid {
			paid++
		}
	}
	switch {
	case countable == 0:
		return RollupPaid, nil
	case paid == countable:
		return RollupPaid, nil
	case paid == 0:
		return RollupUnpaid, nil
	default:
		return RollupPending, nil
	}
}

// ConsultationPaymentStatus reports the consultation fee's settlement state.
// Payment arrangements free, insured, and credit waive the fee regardless of
// the item's stored status; a visit with no consultation item reads unpaid.
func (s *Service) ConsultationPaymentStatus(ctx context.Context, v *visit.Visit) (PaymentStatus, error) {
	if arrangementWaivesConsultation(v.PaymentArrangement) {
		return StatusWaived, nil
	}
	item, err := s.repo.GetConsultationItem(ctx, v.ID)
	if err != nil {
		return "", fmt.Errorf("lookup consultation item: %w", err)
	}
	if item == nil {
		return StatusUnpaid, nil
	}
	return item.PaymentStatus, nil
}

// VoidItem retires an unpaid item from the ledger. Paid items are never
// removed.
func (s *Service) VoidItem(ctx context.Context, itemID uuid.UUID) error {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.PaymentStatus == StatusPaid {
		return fmt.Errorf("cannot void paid item %s", item.ID)
	}
	item.Voided = true
	return s.repo.UpdateItem(ctx, item)
}

func (s *Service) ListItems(ctx context.Context, visitID uuid.UUID) ([]*BillableItem, error) {
	return s.repo.ListItemsByVisit(ctx, visitID)
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*BillableItem, error) {
	return s.repo.GetItem(ctx, id)
}

// PaymentSummary is the payment record with its lines and transactions.
type PaymentSummary struct {
	Record       *PaymentRecord        `json:"record"`
	Lines        []*PaymentRecordLine  `json:"lines"`
	Transactions []*PaymentTransaction `json:"transactions"`
}

func (s *Service) PaymentSummary(ctx context.Context, visitID uuid.UUID) (*PaymentSummary, error) {
	rec, err := s.repo.GetRecordByVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &PaymentSummary{}, nil
	}
	lines, err := s.repo.ListRecordLines(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return &PaymentSummary{Record: rec, Lines: lines, Transactions: txs}, nil
}
