package orders

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	Update(ctx context.Context, o *Order) error
	ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Order, error)
	ListByStatus(ctx context.Context, orderType OrderType, status OrderStatus, limit, offset int) ([]*Order, error)
}
