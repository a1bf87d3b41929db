package cashbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists cash movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes a movement and returns it with id and timestamps set.
func (r *Repository) Insert(ctx context.Context, m Movement) (Movement, error) {
	if r == nil {
		return Movement{}, errors.New("cashbook repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO cash_movements
(company_id, instrument, direction, amount, memo, ref_module, ref_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,COALESCE($8, NOW()))
RETURNING id, occurred_at, created_at`,
		m.CompanyID, string(m.Instrument), string(m.Direction), fmt.Sprintf("%.2f", m.Amount),
		m.Memo, m.RefModule, nullStr(m.RefID), nullTime(m.OccurredAt))
	if err := row.Scan(&m.ID, &m.OccurredAt, &m.CreatedAt); err != nil {
		return Movement{}, err
	}
	return m, nil
}

// List returns movements for a company, newest first.
func (r *Repository) List(ctx context.Context, companyID int64, limit int) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("cashbook repository not initialised")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, instrument, direction, amount, memo, ref_module, COALESCE(ref_id, ''), occurred_at, created_at
FROM cash_movements WHERE company_id=$1 ORDER BY id DESC LIMIT $2`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.Instrument, &m.Direction, &m.Amount, &m.Memo, &m.RefModule, &m.RefID, &m.OccurredAt, &m.CreatedAt); err != nil {
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

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
