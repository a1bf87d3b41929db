package sales

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FollowupRepository persists post-commit settlement steps. Writes happen
// outside the settlement transaction on purpose: a followup row must survive
// even when the step it records has failed.
type FollowupRepository struct {
	pool *pgxpool.Pool
}

func NewFollowupRepository(pool *pgxpool.Pool) *FollowupRepository {
	return &FollowupRepository{pool: pool}
}

func (r *FollowupRepository) Insert(ctx context.Context, f *Followup) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO settlement_followups (company_id, sale_id, step, status, attempts, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,0,'',NOW(),NOW())
		RETURNING id, created_at, updated_at`,
		f.CompanyID, f.SaleID, f.Step, FollowupPending,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert followup: %w", err)
	}
	f.Status = FollowupPending
	return nil
}

func (r *FollowupRepository) MarkDone(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE settlement_followups
		SET status = $2, attempts = attempts + 1, last_error = '', updated_at = NOW()
		WHERE id = $1`,
		id, FollowupDone)
	if err != nil {
		return fmt.Errorf("mark followup done: %w", err)
	}
	return nil
}

// MarkFailed bumps the attempt counter and parks the row as FAILED, or DEAD
// once the attempt limit is reached. DEAD rows need operator attention.
func (r *FollowupRepository) MarkFailed(ctx context.Context, id int64, stepErr error, maxAttempts int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE settlement_followups
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN $4::text ELSE $5::text END,
		    updated_at = NOW()
		WHERE id = $1`,
		id, stepErr.Error(), maxAttempts, FollowupDead, FollowupFailed)
	if err != nil {
		return fmt.Errorf("mark followup failed: %w", err)
	}
	return nil
}

// SupersedeForward voids every forward-step row of a sale that has not
// completed. Runs when the sale is cancelled so a later re-drive pass cannot
// apply settlement effects the cancellation never saw.
func (r *FollowupRepository) SupersedeForward(ctx context.Context, saleID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE settlement_followups
		SET status = $2, updated_at = NOW()
		WHERE sale_id = $1
		  AND status <> $3
		  AND step IN ($4, $5, $6, $7)`,
		saleID, FollowupSuperseded, FollowupDone,
		StepStock, StepCredit, StepCash, StepLedger)
	if err != nil {
		return fmt.Errorf("supersede followups: %w", err)
	}
	return nil
}

// ClaimRetryable atomically flips up to limit FAILED rows back to PENDING and
// returns them. SKIP LOCKED keeps concurrent re-drive runs from fighting over
// the same rows.
func (r *FollowupRepository) ClaimRetryable(ctx context.Context, limit, maxAttempts int) ([]Followup, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE settlement_followups
		SET status = $3, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM settlement_followups
			WHERE status = $4 AND attempts < $2
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, company_id, sale_id, step, status, attempts, last_error, created_at, updated_at`,
		limit, maxAttempts, FollowupPending, FollowupFailed)
	if err != nil {
		return nil, fmt.Errorf("claim followups: %w", err)
	}
	defer rows.Close()

	var out []Followup
	for rows.Next() {
		var f Followup
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.SaleID, &f.Step, &f.Status,
			&f.Attempts, &f.LastError, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan followup: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FollowupRepository) ListBySale(ctx context.Context, saleID int64) ([]Followup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, sale_id, step, status, attempts, last_error, created_at, updated_at
		FROM settlement_followups
		WHERE sale_id = $1
		ORDER BY id`,
		saleID)
	if err != nil {
		return nil, fmt.Errorf("list followups: %w", err)
	}
	defer rows.Close()

	var out []Followup
	for rows.Next() {
		var f Followup
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.SaleID, &f.Step, &f.Status,
			&f.Attempts, &f.LastError, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan followup: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
