package catalog

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Facilities
	CreateFacility(ctx context.Context, f *Facility) error
	GetFacility(ctx context.Context, id uuid.UUID) (*Facility, error)
	UpdateFacility(ctx context.Context, f *Facility) error
	ListFacilities(ctx context.Context, activeOnly bool) ([]*Facility, error)

	// Pricing rules
	CreatePricingRule(ctx context.Context, r *ConsultationPricingRule) error
	UpdatePricingRule(ctx context.Context, r *ConsultationPricingRule) error
	// GetActivePricingRule returns the facility's active rule, or nil when
	// none is configured.
	GetActivePricingRule(ctx context.Context, facilityID uuid.UUID) (*ConsultationPricingRule, error)
	ListPricingRules(ctx context.Context, facilityID uuid.UUID) ([]*ConsultationPricingRule, error)
	DeactivatePricingRules(ctx context.Context, facilityID uuid.UUID) error

	// Service definitions
	CreateServiceDefinition(ctx context.Context, sd *ServiceDefinition) error
	GetServiceDefinition(ctx context.Context, id uuid.UUID) (*ServiceDefinition, error)
	UpdateServiceDefinition(ctx context.Context, sd *ServiceDefinition) error
	ListServiceDefinitions(ctx context.Context, facilityID uuid.UUID, category string, activeOnly bool) ([]*ServiceDefinition, error)
}
