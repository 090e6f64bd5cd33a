package billing

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

const itemCols = `id, visit_id, item_type, reference_id, description, unit_price, quantity,
	discount_amount, subtotal, payment_status, payment_method, voided, created_at, updated_at`

func (r *repoPG) CreateItem(ctx context.Context, item *BillableItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO billable_item (id, visit_id, item_type, reference_id, description, unit_price,
			quantity, discount_amount, subtotal, payment_status, payment_method, voided)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		item.ID, item.VisitID, item.ItemType, item.ReferenceID, item.Description, item.UnitPrice,
		item.Quantity, item.DiscountAmount, item.Subtotal, item.PaymentStatus, item.PaymentMethod, item.Voided,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateBillableItem
	}
	return err
}

func (r *repoPG) GetItem(ctx context.Context, id uuid.UUID) (*BillableItem, error) {
	item, err := scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM billable_item WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	return item, err
}

func (r *repoPG) UpdateItem(ctx context.Context, item *BillableItem) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE billable_item SET
			unit_price=$2, quantity=$3, discount_amount=$4, subtotal=$5,
			payment_status=$6, payment_method=$7, voided=$8, updated_at=NOW()
		WHERE id = $1`,
		item.ID, item.UnitPrice, item.Quantity, item.DiscountAmount, item.Subtotal,
		item.PaymentStatus, item.PaymentMethod, item.Voided,
	)
	return err
}

func (r *repoPG) ListItemsByVisit(ctx context.Context, visitID uuid.UUID) ([]*BillableItem, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM billable_item WHERE visit_id = $1 AND NOT voided ORDER BY created_at`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*BillableItem
	for rows.Next() {
		var i BillableItem
		if err := rows.Scan(
			&i.ID, &i.VisitID, &i.ItemType, &i.ReferenceID, &i.Description, &i.UnitPrice, &i.Quantity,
			&i.DiscountAmount, &i.Subtotal, &i.PaymentStatus, &i.PaymentMethod, &i.Voided, &i.CreatedAt, &i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, &i)
	}
	return items, nil
}

func (r *repoPG) GetConsultationItem(ctx context.Context, visitID uuid.UUID) (*BillableItem, error) {
	item, err := scanItem(r.conn(ctx).QueryRow(ctx, `
		SELECT `+itemCols+` FROM billable_item
		WHERE visit_id = $1 AND item_type = 'consultation' AND NOT voided`, visitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

const recordCols = `id, visit_id, status, total_amount, created_at, updated_at`

func (r *repoPG) GetRecordByVisit(ctx context.Context, visitID uuid.UUID) (*PaymentRecord, error) {
	var rec PaymentRecord
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM payment_record WHERE visit_id = $1`, visitID).
		Scan(&rec.ID, &rec.VisitID, &rec.Status, &rec.TotalAmount, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repoPG) CreateRecord(ctx context.Context, rec *PaymentRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment_record (id, visit_id, status, total_amount)
		VALUES ($1,$2,$3,$4)`,
		rec.ID, rec.VisitID, rec.Status, rec.TotalAmount,
	)
	return err
}

func (r *repoPG) UpdateRecord(ctx context.Context, rec *PaymentRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment_record SET status=$2, total_amount=$3, updated_at=NOW() WHERE id = $1`,
		rec.ID, rec.Status, rec.TotalAmount,
	)
	return err
}

func (r *repoPG) AddRecordLine(ctx context.Context, line *PaymentRecordLine) error {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment_record_line (id, record_id, item_id, amount)
		VALUES ($1,$2,$3,$4)`,
		line.ID, line.RecordID, line.ItemID, line.Amount,
	)
	return err
}

func (r *repoPG) ListRecordLines(ctx context.Context, recordID uuid.UUID) ([]*PaymentRecordLine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, record_id, item_id, amount, created_at
		FROM payment_record_line WHERE record_id = $1 ORDER BY created_at`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*PaymentRecordLine
	for rows.Next() {
		var l PaymentRecordLine
		if err := rows.Scan(&l.ID, &l.RecordID, &l.ItemID, &l.Amount, &l.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, &l)
	}
	return lines, nil
}

func (r *repoPG) AddTransaction(ctx context.Context, tx *PaymentTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment_transaction (id, record_id, amount, method, reference, collected_by)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		tx.ID, tx.RecordID, tx.Amount, tx.Method, tx.Reference, tx.CollectedBy,
	)
	return err
}

func (r *repoPG) ListTransactions(ctx context.Context, recordID uuid.UUID) ([]*PaymentTransaction, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, record_id, amount, method, reference, collected_by, created_at
		FROM payment_transaction WHERE record_id = $1 ORDER BY created_at`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*PaymentTransaction
	for rows.Next() {
		var t PaymentTransaction
		if err := rows.Scan(&t.ID, &t.RecordID, &t.Amount, &t.Method, &t.Reference, &t.CollectedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, &t)
	}
	return txs, nil
}

func scanItem(row pgx.Row) (*BillableItem, error) {
	var i BillableItem
	err := row.Scan(
		&i.ID, &i.VisitID, &i.ItemType, &i.ReferenceID, &i.Description, &i.UnitPrice, &i.Quantity,
		&i.DiscountAmount, &i.Subtotal, &i.PaymentStatus, &i.PaymentMethod, &i.Voided, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}
