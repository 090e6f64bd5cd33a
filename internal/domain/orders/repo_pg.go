package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orderCols = `id, visit_id, order_type, service_definition_id, billable_item_id,
	description, quantity, status, ordered_by, result_summary, completed_at, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_order (id, visit_id, order_type, service_definition_id, billable_item_id,
			description, quantity, status, ordered_by, result_summary, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.VisitID, o.OrderType, o.ServiceDefinitionID, o.BillableItemID,
		o.Description, o.Quantity, o.Status, o.OrderedBy, o.ResultSummary, o.CompletedAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM clinical_order WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, o *Order) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_order SET
			billable_item_id=$2, description=$3, quantity=$4, status=$5,
			result_summary=$6, completed_at=$7, updated_at=NOW()
		WHERE id = $1`,
		o.ID, o.BillableItemID, o.Description, o.Quantity, o.Status, o.ResultSummary, o.CompletedAt,
	)
	return err
}

func (r *repoPG) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Order, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+orderCols+` FROM clinical_order WHERE visit_id = $1 ORDER BY created_at`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *repoPG) ListByStatus(ctx context.Context, orderType OrderType, status OrderStatus, limit, offset int) ([]*Order, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+orderCols+` FROM clinical_order
		WHERE order_type = $1 AND status = $2
		ORDER BY created_at LIMIT $3 OFFSET $4`,
		orderType, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.VisitID, &o.OrderType, &o.ServiceDefinitionID, &o.BillableItemID,
		&o.Description, &o.Quantity, &o.Status, &o.OrderedBy, &o.ResultSummary, &o.CompletedAt,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*Order, error) {
	var out []*Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.VisitID, &o.OrderType, &o.ServiceDefinitionID, &o.BillableItemID,
			&o.Description, &o.Quantity, &o.Status, &o.OrderedBy, &o.ResultSummary, &o.CompletedAt,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}
