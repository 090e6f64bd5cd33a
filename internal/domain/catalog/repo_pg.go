package catalog

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

const facilityCols = `id, name, code, address, phone, active, created_at, updated_at`

func (r *repoPG) CreateFacility(ctx context.Context, f *Facility) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO facility (id, name, code, address, phone, active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		f.ID, f.Name, f.Code, f.Address, f.Phone, f.Active,
	)
	return mapUniqueViolation(err)
}

func (r *repoPG) GetFacility(ctx context.Context, id uuid.UUID) (*Facility, error) {
	var f Facility
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+facilityCols+` FROM facility WHERE id = $1`, id).
		Scan(&f.ID, &f.Name, &f.Code, &f.Address, &f.Phone, &f.Active, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repoPG) UpdateFacility(ctx context.Context, f *Facility) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE facility SET name=$2, code=$3, address=$4, phone=$5, active=$6, updated_at=NOW()
		WHERE id = $1`,
		f.ID, f.Name, f.Code, f.Address, f.Phone, f.Active,
	)
	return mapUniqueViolation(err)
}

func (r *repoPG) ListFacilities(ctx context.Context, activeOnly bool) ([]*Facility, error) {
	q := `SELECT ` + facilityCols + ` FROM facility`
	if activeOnly {
		q += ` WHERE active`
	}
	q += ` ORDER BY name`
	rows, err := r.conn(ctx).Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Facility
	for rows.Next() {
		var f Facility
		if err := rows.Scan(&f.ID, &f.Name, &f.Code, &f.Address, &f.Phone, &f.Active, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, nil
}

const ruleCols = `id, facility_id, standard_price, follow_up_price, follow_up_window_days, active, created_at, updated_at`

func (r *repoPG) CreatePricingRule(ctx context.Context, rule *ConsultationPricingRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultation_pricing_rule
			(id, facility_id, standard_price, follow_up_price, follow_up_window_days, active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rule.ID, rule.FacilityID, rule.StandardPrice, rule.FollowUpPrice, rule.FollowUpWindowDays, rule.Active,
	)
	return err
}

func (r *repoPG) UpdatePricingRule(ctx context.Context, rule *ConsultationPricingRule) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultation_pricing_rule SET
			standard_price=$2, follow_up_price=$3, follow_up_window_days=$4, active=$5, updated_at=NOW()
		WHERE id = $1`,
		rule.ID, rule.StandardPrice, rule.FollowUpPrice, rule.FollowUpWindowDays, rule.Active,
	)
	return err
}

func (r *repoPG) GetActivePricingRule(ctx context.Context, facilityID uuid.UUID) (*ConsultationPricingRule, error) {
	rule, err := scanRule(r.conn(ctx).QueryRow(ctx, `
		SELECT `+ruleCols+` FROM consultation_pricing_rule
		WHERE facility_id = $1 AND active`, facilityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rule, err
}

func (r *repoPG) ListPricingRules(ctx context.Context, facilityID uuid.UUID) ([]*ConsultationPricingRule, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+ruleCols+` FROM consultation_pricing_rule
		WHERE facility_id = $1 ORDER BY created_at DESC`, facilityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ConsultationPricingRule
	for rows.Next() {
		var rule ConsultationPricingRule
		if err := rows.Scan(&rule.ID, &rule.FacilityID, &rule.StandardPrice, &rule.FollowUpPrice,
			&rule.FollowUpWindowDays, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rule)
	}
	return out, nil
}

func (r *repoPG) DeactivatePricingRules(ctx context.Context, facilityID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultation_pricing_rule SET active = FALSE, updated_at = NOW()
		WHERE facility_id = $1 AND active`, facilityID)
	return err
}

const defCols = `id, facility_id, code, name, category, default_price, active, created_at, updated_at`

func (r *repoPG) CreateServiceDefinition(ctx context.Context, sd *ServiceDefinition) error {
	if sd.ID == uuid.Nil {
		sd.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO service_definition (id, facility_id, code, name, category, default_price, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sd.ID, sd.FacilityID, sd.Code, sd.Name, sd.Category, sd.DefaultPrice, sd.Active,
	)
	return mapUniqueViolation(err)
}

func (r *repoPG) GetServiceDefinition(ctx context.Context, id uuid.UUID) (*ServiceDefinition, error) {
	var sd ServiceDefinition
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+defCols+` FROM service_definition WHERE id = $1`, id).
		Scan(&sd.ID, &sd.FacilityID, &sd.Code, &sd.Name, &sd.Category, &sd.DefaultPrice,
			&sd.Active, &sd.CreatedAt, &sd.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sd, nil
}

func (r *repoPG) UpdateServiceDefinition(ctx context.Context, sd *ServiceDefinition) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE service_definition SET
			code=$2, name=$3, category=$4, default_price=$5, active=$6, updated_at=NOW()
		WHERE id = $1`,
		sd.ID, sd.Code, sd.Name, sd.Category, sd.DefaultPrice, sd.Active,
	)
	return mapUniqueViolation(err)
}

func (r *repoPG) ListServiceDefinitions(ctx context.Context, facilityID uuid.UUID, category string, activeOnly bool) ([]*ServiceDefinition, error) {
	q := `SELECT ` + defCols + ` FROM service_definition WHERE facility_id = $1`
	args := []interface{}{facilityID}
	if category != "" {
		args = append(args, category)
		q += ` AND category = $2`
	}
	if activeOnly {
		q += ` AND active`
	}
	q += ` ORDER BY name`
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ServiceDefinition
	for rows.Next() {
		var sd ServiceDefinition
		if err := rows.Scan(&sd.ID, &sd.FacilityID, &sd.Code, &sd.Name, &sd.Category,
			&sd.DefaultPrice, &sd.Active, &sd.CreatedAt, &sd.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &sd)
	}
	return out, nil
}

func scanRule(row pgx.Row) (*ConsultationPricingRule, error) {
	var rule ConsultationPricingRule
	err := row.Scan(&rule.ID, &rule.FacilityID, &rule.StandardPrice, &rule.FollowUpPrice,
		&rule.FollowUpWindowDays, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCode
	}
	return err
}
