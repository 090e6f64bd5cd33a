package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	inTx TxRunner
}

// TxRunner executes fn inside a transaction; the default runs fn directly.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		inTx: func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) },
	}
}

// SetTxRunner replaces the transaction runner.
func (s *Service) SetTxRunner(tx TxRunner) {
	s.inTx = tx
}

func (s *Service) CreateFacility(ctx context.Context, f *Facility) error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	if f.Code == "" {
		return fmt.Errorf("code is required")
	}
	f.Active = true
	return s.repo.CreateFacility(ctx, f)
}

func (s *Service) GetFacility(ctx context.Context, id uuid.UUID) (*Facility, error) {
	return s.repo.GetFacility(ctx, id)
}

func (s *Service) UpdateFacility(ctx context.Context, f *Facility) error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.repo.UpdateFacility(ctx, f)
}

func (s *Service) ListFacilities(ctx context.Context, activeOnly bool) ([]*Facility, error) {
	return s.repo.ListFacilities(ctx, activeOnly)
}

// SetPricingRule installs a new active consultation pricing rule for the
// facility, retiring any previous rule in the same transaction.
func (s *Service) SetPricingRule(ctx context.Context, rule *ConsultationPricingRule) error {
	if rule.FacilityID == uuid.Nil {
		return fmt.Errorf("facility_id is required")
	}
	if rule.StandardPrice <= 0 {
		return fmt.Errorf("standard price must be positive, got %.2f", rule.StandardPrice)
	}
	if rule.FollowUpPrice != nil && *rule.FollowUpPrice <= 0 {
		return fmt.Errorf("follow-up price must be positive, got %.2f", *rule.FollowUpPrice)
	}
	if rule.FollowUpWindowDays < 0 {
		return fmt.Errorf("follow-up window must not be negative, got %d", rule.FollowUpWindowDays)
	}
	if _, err := s.repo.GetFacility(ctx, rule.FacilityID); err != nil {
		return err
	}

	return s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.DeactivatePricingRules(ctx, rule.FacilityID); err != nil {
			return fmt.Errorf("retire previous rules: %w", err)
		}
		rule.Active = true
		return s.repo.CreatePricingRule(ctx, rule)
	})
}

func (s *Service) ActivePricingRule(ctx context.Context, facilityID uuid.UUID) (*ConsultationPricingRule, error) {
	return s.repo.GetActivePricingRule(ctx, facilityID)
}

func (s *Service) ListPricingRules(ctx context.Context, facilityID uuid.UUID) ([]*ConsultationPricingRule, error) {
	return s.repo.ListPricingRules(ctx, facilityID)
}

func (s *Service) CreateServiceDefinition(ctx context.Context, sd *ServiceDefinition) error {
	if sd.FacilityID == uuid.Nil {
		return fmt.Errorf("facility_id is required")
	}
	if sd.Code == "" || sd.Name == "" {
		return fmt.Errorf("code and name are required")
	}
	if !ValidCategory(sd.Category) {
		return fmt.Errorf("invalid category: %s", sd.Category)
	}
	if sd.DefaultPrice < 0 {
		return fmt.Errorf("default price must not be negative, got %.2f", sd.DefaultPrice)
	}
	sd.Active = true
	return s.repo.CreateServiceDefinition(ctx, sd)
}

func (s *Service) GetServiceDefinition(ctx context.Context, id uuid.UUID) (*ServiceDefinition, error) {
	return s.repo.GetServiceDefinition(ctx, id)
}

func (s *Service) UpdateServiceDefinition(ctx context.Context, sd *ServiceDefinition) error {
	if !ValidCategory(sd.Category) {
		return fmt.Errorf("invalid category: %s", sd.Category)
	}
	return s.repo.UpdateServiceDefinition(ctx, sd)
}

func (s *Service) ListServiceDefinitions(ctx context.Context, facilityID uuid.UUID, category string, activeOnly bool) ([]*ServiceDefinition, error) {
	return s.repo.ListServiceDefinitions(ctx, facilityID, category, activeOnly)
}
