package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vela-pos/vela-pos/internal/platform/db"
	"github.com/vela-pos/vela-pos/internal/shared"
)

// Repository persists journal entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextEntrySeq(ctx context.Context, companyID int64, year int) (int64, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []Line) error
	GetEntryWithLines(ctx context.Context, companyID, entryID int64) (JournalEntry, error)
	MarkCancelled(ctx context.Context, entryID, reversalID int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction. Numbering and the
// entry write share this transaction, so a failure releases the draw and the
// sequence value is simply skipped, never reused.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) NextEntrySeq(ctx context.Context, companyID int64, year int) (int64, error) {
	return shared.NextSequence(ctx, r.tx, companyID, shared.DocTypeJournalEntry, year)
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(company_id, entry_no, seq, date, type, status, description, total_debit, total_credit, source_module, source_id, reversal_of)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id, created_at, updated_at`,
		entry.CompanyID, entry.Number, entry.Seq, entry.Date, string(entry.Type), string(entry.Status),
		entry.Description, toNumeric(entry.TotalDebit), toNumeric(entry.TotalCredit),
		entry.SourceModule, entry.SourceID, entry.ReversalOf)
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []Line) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_entry_lines (entry_id, account_id, movement, amount, line_order)
VALUES ($1,$2,$3,$4,$5)`, entryID, line.AccountID, string(line.Movement), toNumeric(line.Amount), line.LineOrder); err != nil {
			return err
		}
	}
	return nil
}

const entryColumns = `id, company_id, entry_no, seq, date, type, status, description, total_debit, total_credit, source_module, source_id, reversal_of, reversed_by, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.CompanyID, &e.Number, &e.Seq, &e.Date, &e.Type, &e.Status, &e.Description,
		&e.TotalDebit, &e.TotalCredit, &e.SourceModule, &e.SourceID, &e.ReversalOf, &e.ReversedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, companyID, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := queryLines(ctx, r.tx, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *txRepository) MarkCancelled(ctx context.Context, entryID, reversalID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, reversed_by=$3, updated_at=NOW() WHERE id=$1`,
		entryID, string(EntryStatusCancelled), reversalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q queryer, entryID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT l.id, l.entry_id, l.account_id, a.code, l.movement, l.amount, l.line_order
FROM journal_entry_lines l
JOIN accounts a ON a.id = l.account_id
WHERE l.entry_id=$1
ORDER BY l.line_order ASC, l.id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.AccountCode, &line.Movement, &line.Amount, &line.LineOrder); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// GetEntry loads an entry with its lines outside a transaction.
func (r *Repository) GetEntry(ctx context.Context, companyID, entryID int64) (JournalEntry, error) {
	if r == nil {
		return JournalEntry{}, errors.New("ledger repository not initialised")
	}
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id=$1 AND id=$2`, companyID, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := queryLines(ctx, r.pool, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// ListEntries returns entries for a company, newest first.
func (r *Repository) ListEntries(ctx context.Context, companyID int64, limit int) ([]JournalEntry, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id=$1 ORDER BY seq DESC LIMIT $2`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Number, &e.Seq, &e.Date, &e.Type, &e.Status, &e.Description,
			&e.TotalDebit, &e.TotalCredit, &e.SourceModule, &e.SourceID, &e.ReversalOf, &e.ReversedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
