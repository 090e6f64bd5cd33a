package billing

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/domain/visit"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/internal/platform/events"
)

type mockRepo struct {
	items   map[uuid.UUID]*BillableItem
	records map[uuid.UUID]*PaymentRecord
	lines   map[uuid.UUID]*PaymentRecordLine
	txs     map[uuid.UUID]*PaymentTransaction
	seq     int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items:   make(map[uuid.UUID]*BillableItem),
		records: make(map[uuid.UUID]*PaymentRecord),
		lines:   make(map[uuid.UUID]*PaymentRecordLine),
		txs:     make(map[uuid.UUID]*PaymentTransaction),
	}
}

func (m *mockRepo) stamp() time.Time {
	m.seq++
	return time.Unix(int64(1_700_000_000+m.seq), 0).UTC()
}

func (m *mockRepo) CreateItem(_ context.Context, item *BillableItem) error {
	if item.ItemType == ItemConsultation {
		for _, existing := range m.items {
			if existing.VisitID == item.VisitID && existing.ItemType == ItemConsultation && !existing.Voided {
				return ErrDuplicateBillableItem
			}
		}
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = m.stamp()
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockRepo) GetItem(_ context.Context, id uuid.UUID) (*BillableItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *mockRepo) UpdateItem(_ context.Context, item *BillableItem) error {
	if _, ok := m.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	cp := *item
	cp.UpdatedAt = m.stamp()
	m.items[item.ID] = &cp
	return nil
}

func (m *mockRepo) ListItemsByVisit(_ context.Context, visitID uuid.UUID) ([]*BillableItem, error) {
	var out []*BillableItem
	for _, item := range m.items {
		if item.VisitID == visitID && !item.Voided {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRepo) GetConsultationItem(_ context.Context, visitID uuid.UUID) (*BillableItem, error) {
	for _, item := range m.items {
		if item.VisitID == visitID && item.ItemType == ItemConsultation && !item.Voided {
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) GetRecordByVisit(_ context.Context, visitID uuid.UUID) (*PaymentRecord, error) {
	for _, rec := range m.records {
		if rec.VisitID == visitID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) CreateRecord(_ context.Context, rec *PaymentRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = m.stamp()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateRecord(_ context.Context, rec *PaymentRecord) error {
	cp := *rec
	cp.UpdatedAt = m.stamp()
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockRepo) AddRecordLine(_ context.Context, line *PaymentRecordLine) error {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	line.CreatedAt = m.stamp()
	cp := *line
	m.lines[line.ID] = &cp
	return nil
}

func (m *mockRepo) ListRecordLines(_ context.Context, recordID uuid.UUID) ([]*PaymentRecordLine, error) {
	var out []*PaymentRecordLine
	for _, l := range m.lines {
		if l.RecordID == recordID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRepo) AddTransaction(_ context.Context, tx *PaymentTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.CreatedAt = m.stamp()
	cp := *tx
	m.txs[tx.ID] = &cp
	return nil
}

func (m *mockRepo) ListTransactions(_ context.Context, recordID uuid.UUID) ([]*PaymentTransaction, error) {
	var out []*PaymentTransaction
	for _, t := range m.txs {
		if t.RecordID == recordID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type mockPricing struct {
	rules map[uuid.UUID]*ConsultationPricing
}

func (m *mockPricing) ActiveConsultationRule(_ context.Context, facilityID uuid.UUID) (*ConsultationPricing, error) {
	return m.rules[facilityID], nil
}

type mockVisits struct {
	priorVisits map[uuid.UUID]time.Time
	feePaid     map[uuid.UUID]float64
}

func newMockVisits() *mockVisits {
	return &mockVisits{
		priorVisits: make(map[uuid.UUID]time.Time),
		feePaid:     make(map[uuid.UUID]float64),
	}
}

func (m *mockVisits) LatestPriorVisitTime(_ context.Context, patientID, _ uuid.UUID, before time.Time) (*time.Time, error) {
	t, ok := m.priorVisits[patientID]
	if !ok || !t.Before(before) {
		return nil, nil
	}
	return &t, nil
}

func (m *mockVisits) AddFeePaid(_ context.Context, visitID uuid.UUID, amount float64) error {
	m.feePaid[visitID] += amount
	return nil
}

type recordingPublisher struct {
	published []events.Event
}

func (p *recordingPublisher) PublishSync(_ context.Context, evt events.Event) {
	p.published = append(p.published, evt)
}

var cashier = auth.Actor{UserID: "cashier-1", Role: auth.RoleCashier}

func newTestService(pricing *mockPricing, visits *mockVisits) (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo, pricing, visits, zerolog.Nop())
	return svc, repo
}

func payingVisit(facilityID uuid.UUID) *visit.Visit {
	return &visit.Visit{
		ID:                 uuid.New(),
		PatientID:          uuid.New(),
		FacilityID:         facilityID,
		CurrentStage:       visit.StageRegistered,
		PaymentArrangement: visit.ArrangementPaying,
		CreatedAt:          time.Now().UTC(),
	}
}

func TestEnsureConsultationCharge_StandardPrice(t *testing.T) {
	facility := uuid.New()
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 200},
	}}
	svc, repo := newTestService(pricing, newMockVisits())
	v := payingVisit(facility)

	if err := svc.EnsureConsultationCharge(context.Background(), v); err != nil {
		t.Fatalf("EnsureConsultationCharge: %v", err)
	}

	item, err := repo.GetConsultationItem(context.Background(), v.ID)
	if err != nil || item == nil {
		t.Fatalf("expected consultation item, got %v, %v", item, err)
	}
	if item.UnitPrice != 200 || item.Subtotal != 200 {
		t.Fatalf("expected price 200, got unit %.2f subtotal %.2f", item.UnitPrice, item.Subtotal)
	}
	if item.PaymentStatus != StatusUnpaid {
		t.Fatalf("expected unpaid, got %s", item.PaymentStatus)
	}

	rollup, err := svc.RollupPaymentStatus(context.Background(), v)
	if err != nil {
		t.Fatalf("RollupPaymentStatus: %v", err)
	}
	if rollup != RollupUnpaid {
		t.Fatalf("expected rollup unpaid, got %s", rollup)
	}
}

func TestEnsureConsultationCharge_Idempotent(t *testing.T) {
	facility := uuid.New()
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 200},
	}}
	svc, repo := newTestService(pricing, newMockVisits())
	v := payingVisit(facility)

	for i := 0; i < 3; i++ {
		if err := svc.EnsureConsultationCharge(context.Background(), v); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	items, _ := repo.ListItemsByVisit(context.Background(), v.ID)
	if len(items) != 1 {
		t.Fatalf("expected exactly one consultation item, got %d", len(items))
	}
}

func TestEnsureConsultationCharge_FollowUpPrice(t *testing.T) {
	facility := uuid.New()
	followUp := 100.0
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 200, FollowUpPrice: &followUp, FollowUpWindowDays: 7},
	}}
	visits := newMockVisits()
	svc, repo := newTestService(pricing, visits)

	v := payingVisit(facility)
	visits.priorVisits[v.PatientID] = v.CreatedAt.Add(-3 * 24 * time.Hour)

	if err := svc.EnsureConsultationCharge(context.Background(), v); err != nil {
		t.Fatalf("EnsureConsultationCharge: %v", err)
	}
	item, _ := repo.GetConsultationItem(context.Background(), v.ID)
	if item.UnitPrice != 100 {
		t.Fatalf("expected follow-up price 100, got %.2f", item.UnitPrice)
	}
}

func TestEnsureConsultationCharge_FollowUpWindowExpired(t *testing.T) {
	facility := uuid.New()
	followUp := 100.0
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 200, FollowUpPrice: &followUp, FollowUpWindowDays: 7},
	}}
	visits := newMockVisits()
	svc, repo := newTestService(pricing, visits)

	v := payingVisit(facility)
	visits.priorVisits[v.PatientID] = v.CreatedAt.Add(-10 * 24 * time.Hour)

	if err := svc.EnsureConsultationCharge(context.Background(), v); err != nil {
		t.Fatalf("EnsureConsultationCharge: %v", err)
	}
	item, _ := repo.GetConsultationItem(context.Background(), v.ID)
	if item.UnitPrice != 200 {
		t.Fatalf("expected standard price 200 outside window, got %.2f", item.UnitPrice)
	}
}

func TestEnsureConsultationCharge_NoRuleConfigured(t *testing.T) {
	svc, _ := newTestService(&mockPricing{rules: map[uuid.UUID]*ConsultationPricing{}}, newMockVisits())
	v := payingVisit(uuid.New())

	err := svc.EnsureConsultationCharge(context.Background(), v)
	if !errors.Is(err, ErrNoConsultationServiceConfigured) {
		t.Fatalf("expected ErrNoConsultationServiceConfigured, got %v", err)
	}
}

func TestEnsureConsultationCharge_InvalidPrice(t *testing.T) {
	facility := uuid.New()
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 0},
	}}
	svc, _ := newTestService(pricing, newMockVisits())

	err := svc.EnsureConsultationCharge(context.Background(), payingVisit(facility))
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestCreateItem_DuplicateConsultation(t *testing.T) {
	facility := uuid.New()
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 200},
	}}
	svc, _ := newTestService(pricing, newMockVisits())
	v := payingVisit(facility)

	if err := svc.EnsureConsultationCharge(context.Background(), v); err != nil {
		t.Fatalf("seed consultation: %v", err)
	}
	err := svc.CreateItem(context.Background(), &BillableItem{
		VisitID:   v.ID,
		ItemType:  ItemConsultation,
		UnitPrice: 200,
	})
	if !errors.Is(err, ErrDuplicateBillableItem) {
		t.Fatalf("expected ErrDuplicateBillableItem, got %v", err)
	}
}

func TestRecordPayment_SettlesItemAndAccumulatesFee(t *testing.T) {
	facility := uuid.New()
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 200},
	}}
	visits := newMockVisits()
	svc, repo := newTestService(pricing, visits)
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)

	v := payingVisit(facility)
	if err := svc.EnsureConsultationCharge(context.Background(), v); err != nil {
		t.Fatalf("seed consultation: %v", err)
	}
	item, _ := repo.GetConsultationItem(context.Background(), v.ID)

	rec, err := svc.RecordPayment(context.Background(), v.ID,
		[]PaymentLine{{ItemID: item.ID}}, 200, "cash", nil, cashier)
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if rec.TotalAmount != 200 {
		t.Fatalf("expected record total 200, got %.2f", rec.TotalAmount)
	}

	settled, _ := repo.GetItem(context.Background(), item.ID)
	if settled.PaymentStatus != StatusPaid {
		t.Fatalf("expected item paid, got %s", settled.PaymentStatus)
	}
	if visits.feePaid[v.ID] != 200 {
		t.Fatalf("expected fee_paid 200, got %.2f", visits.feePaid[v.ID])
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected one item.paid event, got %d", len(pub.published))
	}
	evt := pub.published[0]
	if evt.Topic != TopicItemPaid || evt.Payload["item_type"] != string(ItemConsultation) {
		t.Fatalf("unexpected event: %+v", evt)
	}

	rollup, _ := svc.RollupPaymentStatus(context.Background(), v)
	if rollup != RollupPaid {
		t.Fatalf("expected rollup paid, got %s", rollup)
	}
}

func TestRecordPayment_Overpayment(t *testing.T) {
	facility := uuid.New()
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 200},
	}}
	svc, repo := newTestService(pricing, newMockVisits())
	v := payingVisit(facility)
	if err := svc.EnsureConsultationCharge(context.Background(), v); err != nil {
		t.Fatalf("seed consultation: %v", err)
	}
	item, _ := repo.GetConsultationItem(context.Background(), v.ID)

	_, err := svc.RecordPayment(context.Background(), v.ID,
		[]PaymentLine{{ItemID: item.ID}}, 250, "cash", nil, cashier)
	if !errors.Is(err, ErrPartialPaymentMismatch) {
		t.Fatalf("expected ErrPartialPaymentMismatch, got %v", err)
	}
}

func TestRecordPayment_UnderTenderAccepted(t *testing.T) {
	facility := uuid.New()
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 200},
	}}
	visits := newMockVisits()
	svc, repo := newTestService(pricing, visits)
	v := payingVisit(facility)
	if err := svc.EnsureConsultationCharge(context.Background(), v); err != nil {
		t.Fatalf("seed consultation: %v", err)
	}
	item, _ := repo.GetConsultationItem(context.Background(), v.ID)

	if _, err := svc.RecordPayment(context.Background(), v.ID,
		[]PaymentLine{{ItemID: item.ID}}, 150, "cash", nil, cashier); err != nil {
		t.Fatalf("under-tender should be accepted: %v", err)
	}
	if visits.feePaid[v.ID] != 150 {
		t.Fatalf("expected fee_paid 150, got %.2f", visits.feePaid[v.ID])
	}
}

func TestRecordPayment_WrongVisitRejected(t *testing.T) {
	facility := uuid.New()
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 200},
	}}
	svc, repo := newTestService(pricing, newMockVisits())
	v := payingVisit(facility)
	if err := svc.EnsureConsultationCharge(context.Background(), v); err != nil {
		t.Fatalf("seed consultation: %v", err)
	}
	item, _ := repo.GetConsultationItem(context.Background(), v.ID)

	if _, err := svc.RecordPayment(context.Background(), uuid.New(),
		[]PaymentLine{{ItemID: item.ID}}, 200, "cash", nil, cashier); err == nil {
		t.Fatal("expected error for item from another visit")
	}
}

func TestRecordPayment_QuantityOverrideAtTill(t *testing.T) {
	svc, repo := newTestService(&mockPricing{}, newMockVisits())
	visitID := uuid.New()

	item := &BillableItem{VisitID: visitID, ItemType: ItemMedication, UnitPrice: 25, Quantity: 1}
	if err := svc.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	qty := 3
	rec, err := svc.RecordPayment(context.Background(), visitID,
		[]PaymentLine{{ItemID: item.ID, Quantity: &qty}}, 75, "cash", nil, cashier)
	if err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if rec.TotalAmount != 75 {
		t.Fatalf("expected total 75, got %.2f", rec.TotalAmount)
	}
	updated, _ := repo.GetItem(context.Background(), item.ID)
	if updated.Quantity != 3 || updated.Subtotal != 75 {
		t.Fatalf("expected quantity 3 subtotal 75, got %d / %.2f", updated.Quantity, updated.Subtotal)
	}
}

func TestRollup_InsuredConsultationWaived(t *testing.T) {
	facility := uuid.New()
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 200},
	}}
	svc, _ := newTestService(pricing, newMockVisits())

	v := payingVisit(facility)
	v.PaymentArrangement = visit.ArrangementInsured
	if err := svc.EnsureConsultationCharge(context.Background(), v); err != nil {
		t.Fatalf("seed consultation: %v", err)
	}

	status, err := svc.ConsultationPaymentStatus(context.Background(), v)
	if err != nil {
		t.Fatalf("ConsultationPaymentStatus: %v", err)
	}
	if status != StatusWaived {
		t.Fatalf("expected waived consultation, got %s", status)
	}

	// An unpaid lab test keeps the overall verdict unpaid even though the
	// consultation is waived.
	lab := &BillableItem{VisitID: v.ID, ItemType: ItemLabTest, UnitPrice: 80}
	if err := svc.CreateItem(context.Background(), lab); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	rollup, _ := svc.RollupPaymentStatus(context.Background(), v)
	if rollup != RollupUnpaid {
		t.Fatalf("expected rollup unpaid, got %s", rollup)
	}

	// Settling the lab flips the whole visit to paid: the waived consultation
	// never blocks.
	if _, err := svc.RecordPayment(context.Background(), v.ID,
		[]PaymentLine{{ItemID: lab.ID}}, 80, "cash", nil, cashier); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	rollup, _ = svc.RollupPaymentStatus(context.Background(), v)
	if rollup != RollupPaid {
		t.Fatalf("expected rollup paid, got %s", rollup)
	}
}

func TestRollup_MixedItemsPending(t *testing.T) {
	svc, _ := newTestService(&mockPricing{}, newMockVisits())
	visitID := uuid.New()

	lab := &BillableItem{VisitID: visitID, ItemType: ItemLabTest, UnitPrice: 80}
	med := &BillableItem{VisitID: visitID, ItemType: ItemMedication, UnitPrice: 40}
	for _, item := range []*BillableItem{lab, med} {
		if err := svc.CreateItem(context.Background(), item); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
	}

	if _, err := svc.RecordPayment(context.Background(), visitID,
		[]PaymentLine{{ItemID: lab.ID}}, 80, "cash", nil, cashier); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	v := &visit.Visit{ID: visitID, PaymentArrangement: visit.ArrangementPaying}
	rollup, _ := svc.RollupPaymentStatus(context.Background(), v)
	if rollup != RollupPending {
		t.Fatalf("expected rollup pending, got %s", rollup)
	}
}

func TestRollup_NoItems(t *testing.T) {
	svc, _ := newTestService(&mockPricing{}, newMockVisits())
	v := &visit.Visit{ID: uuid.New(), PaymentArrangement: visit.ArrangementPaying}
	rollup, err := svc.RollupPaymentStatus(context.Background(), v)
	if err != nil {
		t.Fatalf("RollupPaymentStatus: %v", err)
	}
	if rollup != RollupNone {
		t.Fatalf("expected rollup none, got %s", rollup)
	}
}

func TestVoidItem_PaidItemRejected(t *testing.T) {
	svc, repo := newTestService(&mockPricing{}, newMockVisits())
	visitID := uuid.New()

	item := &BillableItem{VisitID: visitID, ItemType: ItemLabTest, UnitPrice: 80}
	if err := svc.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if _, err := svc.RecordPayment(context.Background(), visitID,
		[]PaymentLine{{ItemID: item.ID}}, 80, "cash", nil, cashier); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if err := svc.VoidItem(context.Background(), item.ID); err == nil {
		t.Fatal("expected error voiding paid item")
	}

	unpaid := &BillableItem{VisitID: visitID, ItemType: ItemMedication, UnitPrice: 10}
	if err := svc.CreateItem(context.Background(), unpaid); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if err := svc.VoidItem(context.Background(), unpaid.ID); err != nil {
		t.Fatalf("VoidItem: %v", err)
	}
	items, _ := repo.ListItemsByVisit(context.Background(), visitID)
	for _, i := range items {
		if i.ID == unpaid.ID {
			t.Fatal("voided item still listed")
		}
	}
}

func TestRecordPayment_SecondCollectionAppendsToRecord(t *testing.T) {
	svc, repo := newTestService(&mockPricing{}, newMockVisits())
	visitID := uuid.New()

	lab := &BillableItem{VisitID: visitID, ItemType: ItemLabTest, UnitPrice: 80}
	med := &BillableItem{VisitID: visitID, ItemType: ItemMedication, UnitPrice: 40}
	for _, item := range []*BillableItem{lab, med} {
		if err := svc.CreateItem(context.Background(), item); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
	}

	first, err := svc.RecordPayment(context.Background(), visitID,
		[]PaymentLine{{ItemID: lab.ID}}, 80, "cash", nil, cashier)
	if err != nil {
		t.Fatalf("first RecordPayment: %v", err)
	}
	second, err := svc.RecordPayment(context.Background(), visitID,
		[]PaymentLine{{ItemID: med.ID}}, 40, "mobile_money", nil, cashier)
	if err != nil {
		t.Fatalf("second RecordPayment: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("expected both collections on the same payment record")
	}
	if second.TotalAmount != 120 {
		t.Fatalf("expected record total 120, got %.2f", second.TotalAmount)
	}

	txs, _ := repo.ListTransactions(context.Background(), second.ID)
	if len(txs) != 2 {
		t.Fatalf("expected two transactions, got %d", len(txs))
	}
}

func TestRecordPayment_ReplayedCollectionRejected(t *testing.T) {
	facility := uuid.New()
	pricing := &mockPricing{rules: map[uuid.UUID]*ConsultationPricing{
		facility: {StandardPrice: 150},
	}}
	visits := newMockVisits()
	svc, repo := newTestService(pricing, visits)

	v := payingVisit(facility)
	if err := svc.EnsureConsultationCharge(context.Background(), v); err != nil {
		t.Fatalf("seed consultation: %v", err)
	}
	item, _ := repo.GetConsultationItem(context.Background(), v.ID)

	rec, err := svc.RecordPayment(context.Background(), v.ID,
		[]PaymentLine{{ItemID: item.ID}}, 150, "cash", nil, cashier)
	if err != nil {
		t.Fatalf("first RecordPayment: %v", err)
	}

	// Replaying the identical collection must fail instead of settling the
	// same item twice.
	_, err = svc.RecordPayment(context.Background(), v.ID,
		[]PaymentLine{{ItemID: item.ID}}, 150, "cash", nil, cashier)
	if !errors.Is(err, ErrItemAlreadyPaid) {
		t.Fatalf("expected ErrItemAlreadyPaid, got %v", err)
	}

	// The ledger keeps the single-collection state.
	current, _ := repo.GetRecordByVisit(context.Background(), v.ID)
	if current.TotalAmount != 150 {
		t.Fatalf("expected record total 150, got %.2f", current.TotalAmount)
	}
	lines, _ := repo.ListRecordLines(context.Background(), rec.ID)
	if len(lines) != 1 {
		t.Fatalf("expected one record line, got %d", len(lines))
	}
	txs, _ := repo.ListTransactions(context.Background(), rec.ID)
	if len(txs) != 1 {
		t.Fatalf("expected one transaction, got %d", len(txs))
	}
	if visits.feePaid[v.ID] != 150 {
		t.Fatalf("expected fee_paid 150, got %.2f", visits.feePaid[v.ID])
	}
}

type stubAdvancer struct {
	visits   map[uuid.UUID]*visit.Visit
	advanced int
}

func (s *stubAdvancer) Get(_ context.Context, id uuid.UUID) (*visit.Visit, error) {
	v, ok := s.visits[id]
	if !ok {
		return nil, visit.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *stubAdvancer) AdvanceStage(_ context.Context, visitID uuid.UUID, requested visit.Stage, _ auth.Actor) (visit.Stage, visit.Stage, error) {
	v := s.visits[visitID]
	previous := v.CurrentStage
	v.CurrentStage = requested
	s.advanced++
	return previous, requested, nil
}

func TestPaymentTrigger_AdvancesOnce(t *testing.T) {
	v := &visit.Visit{ID: uuid.New(), CurrentStage: visit.StagePayingConsultation}
	adv := &stubAdvancer{visits: map[uuid.UUID]*visit.Visit{v.ID: v}}
	trigger := NewPaymentTrigger(adv, nil, zerolog.Nop())

	evt := events.Event{
		Topic: TopicItemPaid,
		Payload: map[string]string{
			"visit_id":  v.ID.String(),
			"item_type": string(ItemConsultation),
		},
	}

	// At-least-once delivery: the second handling finds the visit already
	// past the gating stage and stays a no-op.
	for i := 0; i < 2; i++ {
		if err := trigger.HandleItemPaid(context.Background(), evt); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if adv.advanced != 1 {
		t.Fatalf("expected exactly one advance, got %d", adv.advanced)
	}
	if v.CurrentStage != visit.StageAtTriage {
		t.Fatalf("expected at_triage, got %s", v.CurrentStage)
	}
}

func TestPaymentTrigger_DiagnosisPaymentRoutesByItemType(t *testing.T) {
	cases := []struct {
		itemType ItemType
		want     visit.Stage
	}{
		{ItemLabTest, visit.StageAtLab},
		{ItemImagingStudy, visit.StageAtImaging},
	}
	for _, tc := range cases {
		v := &visit.Visit{ID: uuid.New(), CurrentStage: visit.StagePayingDiagnosis}
		adv := &stubAdvancer{visits: map[uuid.UUID]*visit.Visit{v.ID: v}}
		trigger := NewPaymentTrigger(adv, nil, zerolog.Nop())

		evt := events.Event{Topic: TopicItemPaid, Payload: map[string]string{
			"visit_id":  v.ID.String(),
			"item_type": string(tc.itemType),
		}}
		if err := trigger.HandleItemPaid(context.Background(), evt); err != nil {
			t.Fatalf("%s: %v", tc.itemType, err)
		}
		if v.CurrentStage != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.itemType, tc.want, v.CurrentStage)
		}
	}
}

func TestPaymentTrigger_UngatedItemIgnored(t *testing.T) {
	v := &visit.Visit{ID: uuid.New(), CurrentStage: visit.StageWithDoctor}
	adv := &stubAdvancer{visits: map[uuid.UUID]*visit.Visit{v.ID: v}}
	trigger := NewPaymentTrigger(adv, nil, zerolog.Nop())

	evt := events.Event{Topic: TopicItemPaid, Payload: map[string]string{
		"visit_id":  v.ID.String(),
		"item_type": string(ItemGenericService),
	}}
	if err := trigger.HandleItemPaid(context.Background(), evt); err != nil {
		t.Fatalf("HandleItemPaid: %v", err)
	}
	if adv.advanced != 0 {
		t.Fatalf("generic service must not drive the state machine, advanced %d times", adv.advanced)
	}
}

func TestPaymentTrigger_MissingVisitDropped(t *testing.T) {
	adv := &stubAdvancer{visits: map[uuid.UUID]*visit.Visit{}}
	trigger := NewPaymentTrigger(adv, nil, zerolog.Nop())

	evt := events.Event{Topic: TopicItemPaid, Payload: map[string]string{
		"visit_id":  uuid.NewString(),
		"item_type": string(ItemConsultation),
	}}
	if err := trigger.HandleItemPaid(context.Background(), evt); err != nil {
		t.Fatalf("missing visit should not be redelivered: %v", err)
	}
}

func TestComputeSubtotal(t *testing.T) {
	cases := []struct {
		unit     float64
		qty      int
		discount float64
		want     float64
	}{
		{200, 1, 0, 200},
		{25.5, 3, 0, 76.5},
		{10, 2, 5, 15},
		{10, 1, 50, 0},
	}
	for _, tc := range cases {
		item := BillableItem{UnitPrice: tc.unit, Quantity: tc.qty, DiscountAmount: tc.discount}
		item.ComputeSubtotal()
		if item.Subtotal != tc.want {
			t.Fatalf("%.2f x %d - %.2f: expected %.2f, got %.2f",
				tc.unit, tc.qty, tc.discount, tc.want, item.Subtotal)
		}
	}
}
