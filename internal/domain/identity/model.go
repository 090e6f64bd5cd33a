package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	MRN          string     `db:"mrn" json:"mrn"`
	FirstName    string     `db:"first_name" json:"first_name"`
	MiddleName   *string    `db:"middle_name" json:"middle_name,omitempty"`
	LastName     string     `db:"last_name" json:"last_name"`
	BirthDate    *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender       *string    `db:"gender" json:"gender,omitempty"`
	PhoneMobile  *string    `db:"phone_mobile" json:"phone_mobile,omitempty"`
	Email        *string    `db:"email" json:"email,omitempty"`
	AddressLine1 *string    `db:"address_line1" json:"address_line1,omitempty"`
	City         *string    `db:"city" json:"city,omitempty"`
	Country      *string    `db:"country" json:"country,omitempty"`
	NextOfKin    *string    `db:"next_of_kin" json:"next_of_kin,omitempty"`
	NextOfKinTel *string    `db:"next_of_kin_tel" json:"next_of_kin_tel,omitempty"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName renders the patient's display name for board views.
func (p *Patient) FullName() string {
	if p.MiddleName != nil && *p.MiddleName != "" {
		return fmt.Sprintf("%s %s %s", p.FirstName, *p.MiddleName, p.LastName)
	}
	return fmt.Sprintf("%s %s", p.FirstName, p.LastName)
}

// StaffUser maps to the staff_user table. Role is one of the closed role set
// enforced at login; FacilityID scopes the account to one site, nil means all
// sites.
type StaffUser struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Username   string     `db:"username" json:"username"`
	FirstName  string     `db:"first_name" json:"first_name"`
	LastName   string     `db:"last_name" json:"last_name"`
	Role       string     `db:"role" json:"role"`
	FacilityID *uuid.UUID `db:"facility_id" json:"facility_id,omitempty"`
	Email      *string    `db:"email" json:"email,omitempty"`
	Phone      *string    `db:"phone" json:"phone,omitempty"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}
