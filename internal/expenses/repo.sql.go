package expenses

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vela-pos/vela-pos/internal/platform/db"
	"github.com/vela-pos/vela-pos/internal/shared"
)

// TxRepository exposes the writes available inside the expense transaction.
type TxRepository interface {
	NextExpenseSeq(ctx context.Context, companyID int64, year int) (int64, error)
	Insert(ctx context.Context, e *Expense) error
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, repo TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextExpenseSeq(ctx context.Context, companyID int64, year int) (int64, error) {
	return shared.NextSequence(ctx, r.tx, companyID, shared.DocTypeExpense, year)
}

func (r *txRepository) Insert(ctx context.Context, e *Expense) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO expenses
			(company_id, number, seq, category_code, description, subtotal, tax, total,
			 paid_from, date, source_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
		RETURNING id, created_at`,
		e.CompanyID, e.Number, e.Seq, e.CategoryCode, e.Description,
		toNumeric(e.Subtotal), toNumeric(e.Tax), toNumeric(e.Total),
		e.PaidFrom, e.Date, e.SourceID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (r *Repository) SetJournalEntry(ctx context.Context, expenseID, entryID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE expenses SET journal_entry_id = $2
		WHERE id = $1 AND journal_entry_id IS NULL`,
		expenseID, entryID)
	if err != nil {
		return fmt.Errorf("set expense journal entry: %w", err)
	}
	return nil
}

const expenseColumns = `
	id, company_id, number, seq, category_code, description, subtotal, tax, total,
	paid_from, date, journal_entry_id, source_id, created_at`

func (r *Repository) Get(ctx context.Context, companyID, expenseID int64) (Expense, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE id = $1 AND company_id = $2`,
		expenseID, companyID)
	e, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrExpenseNotFound
		}
		return Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *Repository) List(ctx context.Context, companyID int64, limit int) ([]Expense, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE company_id = $1
		ORDER BY id DESC
		LIMIT $2`,
		companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.CompanyID, &e.Number, &e.Seq, &e.CategoryCode,
		&e.Description, &e.Subtotal, &e.Tax, &e.Total, &e.PaidFrom, &e.Date,
		&e.JournalEntryID, &e.SourceID, &e.CreatedAt)
	return e, err
}

func toNumeric(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
