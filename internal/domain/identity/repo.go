package identity

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error)
	// NextMRNSequence draws the next value for MRN generation.
	NextMRNSequence(ctx context.Context) (int64, error)
}

type StaffRepository interface {
	Create(ctx context.Context, u *StaffUser) error
	GetByID(ctx context.Context, id uuid.UUID) (*StaffUser, error)
	GetByUsername(ctx context.Context, username string) (*StaffUser, error)
	Update(ctx context.Context, u *StaffUser) error
	List(ctx context.Context, role string, limit, offset int) ([]*StaffUser, int, error)
}
