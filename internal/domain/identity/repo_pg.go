package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

type staffRepoPG struct {
	pool *pgxpool.Pool
}

func NewStaffRepo(pool *pgxpool.Pool) StaffRepository {
	return &staffRepoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

const patientCols = `id, mrn, first_name, middle_name, last_name, birth_date, gender,
	phone_mobile, email, address_line1, city, country, next_of_kin, next_of_kin_tel,
	active, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient (id, mrn, first_name, middle_name, last_name, birth_date, gender,
			phone_mobile, email, address_line1, city, country, next_of_kin, next_of_kin_tel, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.ID, p.MRN, p.FirstName, p.MiddleName, p.LastName, p.BirthDate, p.Gender,
		p.PhoneMobile, p.Email, p.AddressLine1, p.City, p.Country, p.NextOfKin, p.NextOfKinTel, p.Active,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateMRN
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return scanPatient(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE mrn = $1`, mrn))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient SET
			first_name=$2, middle_name=$3, last_name=$4, birth_date=$5, gender=$6,
			phone_mobile=$7, email=$8, address_line1=$9, city=$10, country=$11,
			next_of_kin=$12, next_of_kin_tel=$13, active=$14, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.MiddleName, p.LastName, p.BirthDate, p.Gender,
		p.PhoneMobile, p.Email, p.AddressLine1, p.City, p.Country,
		p.NextOfKin, p.NextOfKinTel, p.Active,
	)
	return err
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE active`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `
		SELECT `+patientCols+` FROM patient WHERE active
		ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	patients, err := collectPatients(rows)
	return patients, total, err
}

func (r *patientRepoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	q := conn(ctx, r.pool)
	pattern := "%" + query + "%"
	where := ` FROM patient WHERE active AND
		(first_name ILIKE $1 OR last_name ILIKE $1 OR mrn ILIKE $1 OR phone_mobile ILIKE $1)`
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*)`+where, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx,
		`SELECT `+patientCols+where+` ORDER BY last_name, first_name LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	patients, err := collectPatients(rows)
	return patients, total, err
}

func (r *patientRepoPG) NextMRNSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT nextval('patient_mrn_seq')`).Scan(&seq)
	return seq, err
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.MRN, &p.FirstName, &p.MiddleName, &p.LastName, &p.BirthDate, &p.Gender,
		&p.PhoneMobile, &p.Email, &p.AddressLine1, &p.City, &p.Country, &p.NextOfKin, &p.NextOfKinTel,
		&p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPatients(rows pgx.Rows) ([]*Patient, error) {
	var out []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(
			&p.ID, &p.MRN, &p.FirstName, &p.MiddleName, &p.LastName, &p.BirthDate, &p.Gender,
			&p.PhoneMobile, &p.Email, &p.AddressLine1, &p.City, &p.Country, &p.NextOfKin, &p.NextOfKinTel,
			&p.Active, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

const staffCols = `id, username, first_name, last_name, role, facility_id, email, phone,
	active, created_at, updated_at`

func (r *staffRepoPG) Create(ctx context.Context, u *StaffUser) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO staff_user (id, username, first_name, last_name, role, facility_id, email, phone, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Username, u.FirstName, u.LastName, u.Role, u.FacilityID, u.Email, u.Phone, u.Active,
	)
	return err
}

func (r *staffRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*StaffUser, error) {
	return scanStaff(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+staffCols+` FROM staff_user WHERE id = $1`, id))
}

func (r *staffRepoPG) GetByUsername(ctx context.Context, username string) (*StaffUser, error) {
	return scanStaff(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+staffCols+` FROM staff_user WHERE username = $1`, username))
}

func (r *staffRepoPG) Update(ctx context.Context, u *StaffUser) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE staff_user SET
			first_name=$2, last_name=$3, role=$4, facility_id=$5, email=$6, phone=$7,
			active=$8, updated_at=NOW()
		WHERE id = $1`,
		u.ID, u.FirstName, u.LastName, u.Role, u.FacilityID, u.Email, u.Phone, u.Active,
	)
	return err
}

func (r *staffRepoPG) List(ctx context.Context, role string, limit, offset int) ([]*StaffUser, int, error) {
	q := conn(ctx, r.pool)
	where := ` FROM staff_user WHERE active`
	args := []interface{}{}
	if role != "" {
		where += ` AND role = $1`
		args = append(args, role)
	}
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	paged := fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, `SELECT `+staffCols+where+paged, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*StaffUser
	for rows.Next() {
		var u StaffUser
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Role, &u.FacilityID,
			&u.Email, &u.Phone, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &u)
	}
	return out, total, rows.Err()
}

func scanStaff(row pgx.Row) (*StaffUser, error) {
	var u StaffUser
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Role, &u.FacilityID,
		&u.Email, &u.Phone, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
