package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Facility is a clinic site. Visits, pricing rules, and the service catalog
// all hang off a facility.
type Facility struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	Address   *string   `db:"address" json:"address,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ConsultationPricingRule maps to the consultation_pricing_rule table. A
// facility carries at most one active rule; activating a rule retires the
// previous one.
type ConsultationPricingRule struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	FacilityID         uuid.UUID `db:"facility_id" json:"facility_id"`
	StandardPrice      float64   `db:"standard_price" json:"standard_price"`
	FollowUpPrice      *float64  `db:"follow_up_price" json:"follow_up_price,omitempty"`
	FollowUpWindowDays int       `db:"follow_up_window_days" json:"follow_up_window_days"`
	Active             bool      `db:"active" json:"active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// ServiceDefinition maps to the service_definition table: a priced entry in a
// facility's chargemaster. Category matches the billable item type the entry
// produces when ordered.
type ServiceDefinition struct {
	ID           uuid.UUID `db:"id" json:"id"`
	FacilityID   uuid.UUID `db:"facility_id" json:"facility_id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	Category     string    `db:"category" json:"category"`
	DefaultPrice float64   `db:"default_price" json:"default_price"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

var validCategories = map[string]bool{
	"lab_test":        true,
	"imaging_study":   true,
	"medication":      true,
	"generic_service": true,
}

// ValidCategory reports whether c is a known service category.
func ValidCategory(c string) bool {
	return validCategories[c]
}
