package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/domain/billing"
	"github.com/clinicflow/clinicflow/internal/domain/catalog"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
)

// Biller is the slice of the billing ledger orders drive: raising a charge
// when an order is placed, retiring it when the order is cancelled unpaid.
type Biller interface {
	CreateItem(ctx context.Context, item *billing.BillableItem) error
	VoidItem(ctx context.Context, itemID uuid.UUID) error
}

// ServiceCatalog resolves chargemaster entries for priced orders.
type ServiceCatalog interface {
	GetServiceDefinition(ctx context.Context, id uuid.UUID) (*catalog.ServiceDefinition, error)
}

// TxRunner executes fn inside a transaction; the default runs fn directly.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo    Repository
	biller  Biller
	catalog ServiceCatalog
	inTx    TxRunner
}

func NewService(repo Repository, biller Biller, cat ServiceCatalog) *Service {
	return &Service{
		repo:    repo,
		biller:  biller,
		catalog: cat,
		inTx:    func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) },
	}
}

// SetTxRunner replaces the transaction runner.
func (s *Service) SetTxRunner(tx TxRunner) {
	s.inTx = tx
}

var orderItemTypes = map[OrderType]billing.ItemType{
	OrderLab:          billing.ItemLabTest,
	OrderImaging:      billing.ItemImagingStudy,
	OrderPrescription: billing.ItemMedication,
}

// placeRoles gates who may place each order type.
var placeRoles = map[OrderType][]string{
	OrderLab:          {auth.RoleDoctor, auth.RoleAdmin},
	OrderImaging:      {auth.RoleDoctor, auth.RoleAdmin},
	OrderPrescription: {auth.RoleDoctor, auth.RoleAdmin},
}

// fulfilRoles gates who may progress each order type.
var fulfilRoles = map[OrderType][]string{
	OrderLab:          {auth.RoleLabTechnician, auth.RoleDoctor, auth.RoleAdmin},
	OrderImaging:      {auth.RoleRadiologist, auth.RoleDoctor, auth.RoleAdmin},
	OrderPrescription: {auth.RolePharmacist, auth.RoleAdmin},
}

func roleAllowed(roles []string, actor auth.Actor) bool {
	if actor.Role == auth.RoleSuperAdmin {
		return true
	}
	for _, r := range roles {
		if actor.Role == r {
			return true
		}
	}
	return false
}

// PlaceOrderInput carries the order request. Either ServiceDefinitionID or an
// explicit UnitPrice with Description must be set.
type PlaceOrderInput struct {
	VisitID             uuid.UUID  `json:"visit_id"`
	OrderType           OrderType  `json:"order_type"`
	ServiceDefinitionID *uuid.UUID `json:"service_definition_id,omitempty"`
	Description         string     `json:"description"`
	Quantity            int        `json:"quantity"`
	UnitPrice           *float64   `json:"unit_price,omitempty"`
}

// PlaceOrder records the clinical order and raises the matching billable item
// in one transaction. The charge is born unpaid; payment is the cashier's
// concern and never blocks order fulfilment.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput, actor auth.Actor) (*Order, error) {
	if !ValidOrderType(in.OrderType) {
		return nil, fmt.Errorf("invalid order type: %s", in.OrderType)
	}
	if !roleAllowed(placeRoles[in.OrderType], actor) {
		return nil, fmt.Errorf("role %s may not place %s orders", actor.Role, in.OrderType)
	}
	if in.VisitID == uuid.Nil {
		return nil, fmt.Errorf("visit_id is required")
	}
	if in.Quantity <= 0 {
		in.Quantity = 1
	}

	description := in.Description
	var unitPrice float64
	switch {
	case in.ServiceDefinitionID != nil:
		sd, err := s.catalog.GetServiceDefinition(ctx, *in.ServiceDefinitionID)
		if err != nil {
			return nil, fmt.Errorf("lookup service definition: %w", err)
		}
		if !sd.Active {
			return nil, fmt.Errorf("service %s is inactive", sd.Code)
		}
		unitPrice = sd.DefaultPrice
		if description == "" {
			description = sd.Name
		}
	case in.UnitPrice != nil:
		if *in.UnitPrice < 0 {
			return nil, fmt.Errorf("unit price must not be negative, got %.2f", *in.UnitPrice)
		}
		if description == "" {
			return nil, fmt.Errorf("description is required for ad hoc orders")
		}
		unitPrice = *in.UnitPrice
	default:
		return nil, fmt.Errorf("service_definition_id or unit_price is required")
	}

	order := &Order{
		VisitID:             in.VisitID,
		OrderType:           in.OrderType,
		ServiceDefinitionID: in.ServiceDefinitionID,
		Description:         description,
		Quantity:            in.Quantity,
		Status:              StatusOrdered,
		OrderedBy:           actor.UserID,
	}
	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		item := &billing.BillableItem{
			VisitID:     in.VisitID,
			ItemType:    orderItemTypes[in.OrderType],
			ReferenceID: &order.ID,
			Description: &description,
			UnitPrice:   unitPrice,
			Quantity:    in.Quantity,
		}
		if err := s.biller.CreateItem(ctx, item); err != nil {
			return fmt.Errorf("raise charge: %w", err)
		}
		order.BillableItemID = &item.ID
		return s.repo.Update(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateStatus progresses an order through its fulfilment lifecycle.
// Completing an order stamps the completion time; cancelling an order voids
// its unpaid charge.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next OrderStatus, resultSummary *string, actor auth.Actor) (*Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !roleAllowed(fulfilRoles[order.OrderType], actor) {
		return nil, fmt.Errorf("role %s may not progress %s orders", actor.Role, order.OrderType)
	}
	if !statusChangeAllowed(order.Status, next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusChange, order.Status, next)
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		order.Status = next
		if resultSummary != nil {
			order.ResultSummary = resultSummary
		}
		if next == StatusCompleted {
			now := time.Now().UTC()
			order.CompletedAt = &now
		}
		if err := s.repo.Update(ctx, order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if next == StatusCancelled && order.BillableItemID != nil {
			// A paid charge stays on the ledger; VoidItem rejects it and the
			// cancellation proceeds without touching the bill.
			if err := s.biller.VoidItem(ctx, *order.BillableItemID); err == nil {
				order.BillableItemID = nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func statusChangeAllowed(from, to OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Order, error) {
	return s.repo.ListByVisit(ctx, visitID)
}

// Worklist returns the open queue for a fulfilment station.
func (s *Service) Worklist(ctx context.Context, orderType OrderType, status OrderStatus, limit, offset int) ([]*Order, error) {
	if !ValidOrderType(orderType) {
		return nil, fmt.Errorf("invalid order type: %s", orderType)
	}
	if status == "" {
		status = StatusOrdered
	}
	return s.repo.ListByStatus(ctx, orderType, status, limit, offset)
}
