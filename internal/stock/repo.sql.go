package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vela-pos/vela-pos/internal/platform/db"
)

// Repository persists stock records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, companyID, productID, variantID int64) (Record, error)
	UpsertQuantity(ctx context.Context, record Record) error
	InsertMovement(ctx context.Context, movement Movement) error
}

type txRepository struct {
	tx pgx.Tx
}

// ErrRecordNotFound indicates a missing stock row.
var ErrRecordNotFound = errors.New("stock: record not found")

// WithTx executes the callback inside a repeatable-read transaction. The
// FOR UPDATE read inside serializes concurrent writers on the same row.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) GetForUpdate(ctx context.Context, companyID, productID, variantID int64) (Record, error) {
	var rec Record
	err := r.tx.QueryRow(ctx, `SELECT company_id, product_id, variant_id, quantity, updated_at
FROM stock_records WHERE company_id=$1 AND product_id=$2 AND variant_id=$3 FOR UPDATE`,
		companyID, productID, variantID).
		Scan(&rec.CompanyID, &rec.ProductID, &rec.VariantID, &rec.Quantity, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{CompanyID: companyID, ProductID: productID, VariantID: variantID}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *txRepository) UpsertQuantity(ctx context.Context, record Record) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_records (company_id, product_id, variant_id, quantity, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (company_id, product_id, variant_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`,
		record.CompanyID, record.ProductID, record.VariantID, record.Quantity)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (company_id, product_id, variant_id, delta, balance_after, reason, ref_module, ref_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		movement.CompanyID, movement.ProductID, movement.VariantID, movement.Delta, movement.BalanceAfter,
		string(movement.Reason), movement.RefModule, nullStr(movement.RefID))
	return err
}

// Quantity reads the current quantity without locking, used for fail-fast
// pre-commit validation. The settlement decision is always re-made under lock.
func (r *Repository) Quantity(ctx context.Context, companyID, productID, variantID int64) (float64, error) {
	if r == nil {
		return 0, errors.New("stock repository not initialised")
	}
	var qty float64
	err := r.pool.QueryRow(ctx, `SELECT quantity FROM stock_records WHERE company_id=$1 AND product_id=$2 AND variant_id=$3`,
		companyID, productID, variantID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

// ListMovements returns the movement audit trail for a product, newest first.
func (r *Repository) ListMovements(ctx context.Context, companyID, productID int64, limit int) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, product_id, variant_id, delta, balance_after, reason, ref_module, COALESCE(ref_id, ''), created_at
FROM stock_movements WHERE company_id=$1 AND product_id=$2 ORDER BY id DESC LIMIT $3`, companyID, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.ProductID, &m.VariantID, &m.Delta, &m.BalanceAfter, &m.Reason, &m.RefModule, &m.RefID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
