package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Document types tracked in doc_sequences.
const (
	DocTypeJournalEntry = "JE"
	DocTypeSale         = "POS"
	DocTypeExpense      = "EXP"
)

// NextSequence allocates the next value of a per-company, per-year counter
// row. The upsert takes a row lock, so concurrent callers inside their own
// transactions serialize here and can never draw the same value. Values are
// strictly increasing and never reused: a rolled-back transaction leaves a
// gap, which is acceptable, and a cancelled document keeps its number.
func NextSequence(ctx context.Context, tx pgx.Tx, companyID int64, docType string, year int) (int64, error) {
	if tx == nil {
		return 0, errors.New("shared: sequence requires a transaction")
	}
	if docType == "" {
		return 0, errors.New("shared: doc type required")
	}
	var value int64
	err := tx.QueryRow(ctx, `INSERT INTO doc_sequences (company_id, doc_type, year, last_value)
VALUES ($1,$2,$3,1)
ON CONFLICT (company_id, doc_type, year) DO UPDATE SET last_value = doc_sequences.last_value + 1
RETURNING last_value`, companyID, docType, year).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

// FormatDocNumber renders the human-readable document number, e.g.
// "JE-2026-000042".
func FormatDocNumber(docType string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", docType, year, seq)
}
