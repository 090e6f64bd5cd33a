package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/domain/billing"
)

// PricingAdapter exposes the facility's active consultation rule in the shape
// the billing ledger consumes.
type PricingAdapter struct {
	svc *Service
}

func NewPricingAdapter(svc *Service) *PricingAdapter {
	return &PricingAdapter{svc: svc}
}

func (a *PricingAdapter) ActiveConsultationRule(ctx context.Context, facilityID uuid.UUID) (*billing.ConsultationPricing, error) {
	rule, err := a.svc.ActivePricingRule(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, nil
	}
	return &billing.ConsultationPricing{
		StandardPrice:      rule.StandardPrice,
		FollowUpPrice:      rule.FollowUpPrice,
		FollowUpWindowDays: rule.FollowUpWindowDays,
	}, nil
}
