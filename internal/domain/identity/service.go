package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/platform/auth"
)

type Service struct {
	patients PatientRepository
	staff    StaffRepository
}

func NewService(patients PatientRepository, staff StaffRepository) *Service {
	return &Service{patients: patients, staff: staff}
}

// -- Patient --

// RegisterPatient creates the demographic record. An empty MRN is filled from
// the facility sequence: CF-<year>-<seq>.
func (s *Service) RegisterPatient(ctx context.Context, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.MRN == "" {
		seq, err := s.patients.NextMRNSequence(ctx)
		if err != nil {
			return fmt.Errorf("allocate mrn: %w", err)
		}
		p.MRN = fmt.Sprintf("CF-%d-%06d", time.Now().UTC().Year(), seq)
	}
	p.Active = true
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return s.patients.GetByMRN(ctx, mrn)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// SearchPatients matches name fragments, MRN, and mobile number.
func (s *Service) SearchPatients(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	if query == "" {
		return s.patients.List(ctx, limit, offset)
	}
	return s.patients.Search(ctx, query, limit, offset)
}

// -- Staff --

func (s *Service) CreateStaffUser(ctx context.Context, u *StaffUser) error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	if u.FirstName == "" || u.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if !auth.ValidRole(u.Role) {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	u.Active = true
	return s.staff.Create(ctx, u)
}

func (s *Service) GetStaffUser(ctx context.Context, id uuid.UUID) (*StaffUser, error) {
	return s.staff.GetByID(ctx, id)
}

func (s *Service) GetStaffUserByUsername(ctx context.Context, username string) (*StaffUser, error) {
	return s.staff.GetByUsername(ctx, username)
}

func (s *Service) UpdateStaffUser(ctx context.Context, u *StaffUser) error {
	if !auth.ValidRole(u.Role) {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	return s.staff.Update(ctx, u)
}

// DeactivateStaffUser disables the account without deleting its history.
func (s *Service) DeactivateStaffUser(ctx context.Context, id uuid.UUID) error {
	u, err := s.staff.GetByID(ctx, id)
	if err != nil {
		return err
	}
	u.Active = false
	return s.staff.Update(ctx, u)
}

func (s *Service) ListStaffUsers(ctx context.Context, role string, limit, offset int) ([]*StaffUser, int, error) {
	if role != "" && !auth.ValidRole(role) {
		return nil, 0, fmt.Errorf("invalid role: %s", role)
	}
	return s.staff.List(ctx, role, limit, offset)
}
