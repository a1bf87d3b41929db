package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vela-pos/vela-pos/internal/platform/db"
	"github.com/vela-pos/vela-pos/internal/shared"
)

// TxRepository exposes the write operations available inside the settlement
// transaction.
type TxRepository interface {
	NextSaleSeq(ctx context.Context, companyID int64, year int) (int64, error)
	InsertSale(ctx context.Context, s *Sale) error
	InsertItems(ctx context.Context, saleID int64, items []Item) error
	InsertPayments(ctx context.Context, saleID int64, payments []Payment) error
	SetStatus(ctx context.Context, saleID int64, from, to Status) error
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithSerializableTx runs fn inside a serializable transaction. Settlement
// touches stock, credit and numbering, so the strongest isolation applies;
// conflicts surface as db.ErrConflict for the caller to retry.
func (r *Repository) WithSerializableTx(ctx context.Context, fn func(ctx context.Context, repo TxRepository) error) error {
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextSaleSeq(ctx context.Context, companyID int64, year int) (int64, error) {
	return shared.NextSequence(ctx, r.tx, companyID, shared.DocTypeSale, year)
}

func (r *txRepository) InsertSale(ctx context.Context, s *Sale) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO sales
			(company_id, number, seq, status, customer_id, date, subtotal, discount, tax,
			 total, paid_amount, credit_amount, credit_due_date, source_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULLIF($13, '0001-01-01'::timestamptz),$14,NOW(),NOW())
		RETURNING id, created_at, updated_at`,
		s.CompanyID, s.Number, s.Seq, s.Status, nullInt(s.CustomerID), s.Date,
		toNumeric(s.Subtotal), toNumeric(s.Discount), toNumeric(s.Tax),
		toNumeric(s.Total), toNumeric(s.PaidAmount), toNumeric(s.CreditAmount),
		s.CreditDueDate, s.SourceID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (r *txRepository) InsertItems(ctx context.Context, saleID int64, items []Item) error {
	for i := range items {
		items[i].SaleID = saleID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO sale_items
				(sale_id, product_id, variant_id, quantity, unit_price, discount, tax_amount, unit_cost, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING id`,
			saleID, items[i].ProductID, items[i].VariantID, items[i].Quantity,
			toNumeric(items[i].UnitPrice), toNumeric(items[i].Discount),
			toNumeric(items[i].TaxAmount), toNumeric(items[i].UnitCost),
			toNumeric(items[i].LineTotal),
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("insert sale item: %w", err)
		}
	}
	return nil
}

func (r *txRepository) InsertPayments(ctx context.Context, saleID int64, payments []Payment) error {
	for i := range payments {
		payments[i].SaleID = saleID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO sale_payments (sale_id, method, amount)
			VALUES ($1,$2,$3)
			RETURNING id`,
			saleID, payments[i].Method, toNumeric(payments[i].Amount),
		).Scan(&payments[i].ID)
		if err != nil {
			return fmt.Errorf("insert sale payment: %w", err)
		}
	}
	return nil
}

func (r *txRepository) SetStatus(ctx context.Context, saleID int64, from, to Status) error {
	return setStatus(ctx, r.tx, saleID, from, to)
}

// SetStatus flips a sale between statuses with an optimistic guard so two
// concurrent cancellations cannot both win.
func (r *Repository) SetStatus(ctx context.Context, saleID int64, from, to Status) error {
	return setStatus(ctx, r.pool, saleID, from, to)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func setStatus(ctx context.Context, q querier, saleID int64, from, to Status) error {
	tag, err := q.Exec(ctx, `
		UPDATE sales SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		saleID, from, to)
	if err != nil {
		return fmt.Errorf("set sale status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

func (r *Repository) SetJournalEntry(ctx context.Context, saleID, entryID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sales SET journal_entry_id = $2, updated_at = NOW()
		WHERE id = $1 AND journal_entry_id IS NULL`,
		saleID, entryID)
	if err != nil {
		return fmt.Errorf("set sale journal entry: %w", err)
	}
	return nil
}

func (r *Repository) SetCredit(ctx context.Context, saleID, creditID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sales SET credit_id = $2, updated_at = NOW()
		WHERE id = $1 AND credit_id IS NULL`,
		saleID, creditID)
	if err != nil {
		return fmt.Errorf("set sale credit: %w", err)
	}
	return nil
}

const saleColumns = `
	id, company_id, number, seq, status, customer_id, date, subtotal, discount, tax,
	total, paid_amount, credit_amount, COALESCE(credit_due_date, '0001-01-01'::timestamptz),
	journal_entry_id, credit_id, source_id, created_at, updated_at`

func (r *Repository) Get(ctx context.Context, companyID, saleID int64) (*Sale, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1 AND company_id = $2`,
		saleID, companyID)
	s, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}
	if err := r.loadDetails(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Repository) List(ctx context.Context, companyID int64, limit, offset int) ([]Sale, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE company_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`,
		companyID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *Repository) loadDetails(ctx context.Context, s *Sale) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sale_id, product_id, variant_id, quantity, unit_price, discount, tax_amount, unit_cost, line_total
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id`,
		s.ID)
	if err != nil {
		return fmt.Errorf("load sale items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.VariantID,
			&item.Quantity, &item.UnitPrice, &item.Discount, &item.TaxAmount,
			&item.UnitCost, &item.LineTotal); err != nil {
			return fmt.Errorf("scan sale item: %w", err)
		}
		s.Items = append(s.Items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	payRows, err := r.pool.Query(ctx, `
		SELECT id, sale_id, method, amount
		FROM sale_payments
		WHERE sale_id = $1
		ORDER BY id`,
		s.ID)
	if err != nil {
		return fmt.Errorf("load sale payments: %w", err)
	}
	defer payRows.Close()
	for payRows.Next() {
		var p Payment
		if err := payRows.Scan(&p.ID, &p.SaleID, &p.Method, &p.Amount); err != nil {
			return fmt.Errorf("scan sale payment: %w", err)
		}
		s.Payments = append(s.Payments, p)
	}
	return payRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.CompanyID, &s.Number, &s.Seq, &s.Status, &s.CustomerID,
		&s.Date, &s.Subtotal, &s.Discount, &s.Tax, &s.Total, &s.PaidAmount,
		&s.CreditAmount, &s.CreditDueDate, &s.JournalEntryID, &s.CreditID,
		&s.SourceID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func toNumeric(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
