package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the chart of accounts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, company_id, code, name, nature, type, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Nature, &a.Type, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// GetByCode resolves an account by company and stable code.
func (r *Repository) GetByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	if r == nil {
		return Account{}, errors.New("accounts repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND code=$2`, companyID, code)
	return scanAccount(row)
}

// GetByID resolves an account by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (Account, error) {
	if r == nil {
		return Account{}, errors.New("accounts repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
	return scanAccount(row)
}

// List returns the full chart for a company ordered by code.
func (r *Repository) List(ctx context.Context, companyID int64) ([]Account, error) {
	if r == nil {
		return nil, errors.New("accounts repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Nature, &a.Type, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SetActive toggles the only mutable field of an account.
func (r *Repository) SetActive(ctx context.Context, companyID int64, code string, active bool) error {
	if r == nil {
		return errors.New("accounts repository not initialised")
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE company_id=$1 AND code=$2`, companyID, code, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Seed provisions the fixed chart for a company. Already-present codes are
// left untouched so reseeding is safe.
func (r *Repository) Seed(ctx context.Context, companyID int64) error {
	if r == nil {
		return errors.New("accounts repository not initialised")
	}
	for _, seed := range ChartOfAccounts {
		if _, err := r.pool.Exec(ctx, `INSERT INTO accounts (company_id, code, name, nature, type, is_active)
VALUES ($1,$2,$3,$4,$5,TRUE)
ON CONFLICT (company_id, code) DO NOTHING`, companyID, seed.Code, seed.Name, string(seed.Nature), string(seed.Type)); err != nil {
			return err
		}
	}
	return nil
}
