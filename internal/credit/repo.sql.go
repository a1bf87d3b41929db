package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vela-pos/vela-pos/internal/platform/db"
)

// Repository persists the credit subledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetCustomerForUpdate(ctx context.Context, companyID, customerID int64) (Customer, error)
	SetCustomerCreditUsed(ctx context.Context, customerID int64, used float64) error
	InsertCredit(ctx context.Context, credit CustomerCredit) (CustomerCredit, error)
	ListOpenCreditsForUpdate(ctx context.Context, companyID, customerID int64) ([]CustomerCredit, error)
	GetCreditForUpdate(ctx context.Context, companyID, creditID int64) (CustomerCredit, error)
	UpdateCredit(ctx context.Context, credit CustomerCredit) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction. The customer row
// lock taken inside serializes concurrent extensions and allocations for the
// same customer.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("credit repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) GetCustomerForUpdate(ctx context.Context, companyID, customerID int64) (Customer, error) {
	var c Customer
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, name, credit_limit, credit_used, payment_terms_days
FROM customers WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, customerID).
		Scan(&c.ID, &c.CompanyID, &c.Name, &c.CreditLimit, &c.CreditUsed, &c.PaymentTermsDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *txRepository) SetCustomerCreditUsed(ctx context.Context, customerID int64, used float64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE customers SET credit_used=$2, updated_at=NOW() WHERE id=$1`, customerID, toNumeric(used))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

const creditColumns = `id, company_id, customer_id, amount, paid_amount, balance, status, due_date, ref_module, COALESCE(ref_id, ''), created_at, updated_at`

func (r *txRepository) InsertCredit(ctx context.Context, credit CustomerCredit) (CustomerCredit, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO customer_credits
(company_id, customer_id, amount, paid_amount, balance, status, due_date, ref_module, ref_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id, created_at, updated_at`,
		credit.CompanyID, credit.CustomerID, toNumeric(credit.Amount), toNumeric(credit.PaidAmount),
		toNumeric(credit.Balance), string(credit.Status), credit.DueDate, credit.RefModule, nullStr(credit.RefID))
	if err := row.Scan(&credit.ID, &credit.CreatedAt, &credit.UpdatedAt); err != nil {
		return CustomerCredit{}, err
	}
	return credit, nil
}

func (r *txRepository) ListOpenCreditsForUpdate(ctx context.Context, companyID, customerID int64) ([]CustomerCredit, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+creditColumns+`
FROM customer_credits
WHERE company_id=$1 AND customer_id=$2 AND status IN ('PENDING','PARTIAL','OVERDUE')
ORDER BY due_date ASC, id ASC
FOR UPDATE`, companyID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCredits(rows)
}

func (r *txRepository) GetCreditForUpdate(ctx context.Context, companyID, creditID int64) (CustomerCredit, error) {
	var c CustomerCredit
	err := r.tx.QueryRow(ctx, `SELECT `+creditColumns+` FROM customer_credits WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, creditID).
		Scan(&c.ID, &c.CompanyID, &c.CustomerID, &c.Amount, &c.PaidAmount, &c.Balance, &c.Status, &c.DueDate, &c.RefModule, &c.RefID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomerCredit{}, ErrCreditNotFound
		}
		return CustomerCredit{}, err
	}
	return c, nil
}

func (r *txRepository) UpdateCredit(ctx context.Context, credit CustomerCredit) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE customer_credits SET paid_amount=$2, balance=$3, status=$4, updated_at=NOW() WHERE id=$1`,
		credit.ID, toNumeric(credit.PaidAmount), toNumeric(credit.Balance), string(credit.Status))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCreditNotFound
	}
	return nil
}

// GetCustomer reads a customer without locking.
func (r *Repository) GetCustomer(ctx context.Context, companyID, customerID int64) (Customer, error) {
	if r == nil {
		return Customer{}, errors.New("credit repository not initialised")
	}
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name, credit_limit, credit_used, payment_terms_days
FROM customers WHERE company_id=$1 AND id=$2`, companyID, customerID).
		Scan(&c.ID, &c.CompanyID, &c.Name, &c.CreditLimit, &c.CreditUsed, &c.PaymentTermsDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

// ListCredits returns a customer's credits ordered oldest-due-first.
func (r *Repository) ListCredits(ctx context.Context, companyID, customerID int64) ([]CustomerCredit, error) {
	if r == nil {
		return nil, errors.New("credit repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+creditColumns+`
FROM customer_credits WHERE company_id=$1 AND customer_id=$2 ORDER BY due_date ASC, id ASC`, companyID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCredits(rows)
}

func scanCredits(rows pgx.Rows) ([]CustomerCredit, error) {
	var credits []CustomerCredit
	for rows.Next() {
		var c CustomerCredit
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.CustomerID, &c.Amount, &c.PaidAmount, &c.Balance, &c.Status, &c.DueDate, &c.RefModule, &c.RefID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		credits = append(credits, c)
	}
	return credits, rows.Err()
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
