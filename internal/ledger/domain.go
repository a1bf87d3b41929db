package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vela-pos/vela-pos/internal/shared"
)

// Movement carries the posting side of a line. Amounts are always positive;
// direction lives here, never in the sign.
type Movement string

const (
	MovementDebit  Movement = "DEBIT"
	MovementCredit Movement = "CREDIT"
)

// Flip returns the opposite side, used when building reversal entries.
func (m Movement) Flip() Movement {
	if m == MovementDebit {
		return MovementCredit
	}
	return MovementDebit
}

// EntryStatus enumerates the journal entry lifecycle.
type EntryStatus string

const (
	EntryStatusDraft     EntryStatus = "DRAFT"
	EntryStatusConfirmed EntryStatus = "CONFIRMED"
	EntryStatusCancelled EntryStatus = "CANCELLED"
)

// EntryType tags the originating business event.
type EntryType string

const (
	EntryTypeSale      EntryType = "SALE"
	EntryTypePurchase  EntryType = "PURCHASE"
	EntryTypeExpense   EntryType = "EXPENSE"
	EntryTypeCashIn    EntryType = "CASH_IN"
	EntryTypeCashOut   EntryType = "CASH_OUT"
	EntryTypeOpening   EntryType = "OPENING"
	EntryTypeReversal  EntryType = "REVERSAL"
	EntryTypeWriteOff  EntryType = "WRITE_OFF"
	EntryTypeInventory EntryType = "INVENTORY_ADJUSTMENT"
)

// JournalEntry is one balanced accounting record. Once CONFIRMED it is
// immutable; corrections go through Reverse, never an in-place edit.
type JournalEntry struct {
	ID           int64
	CompanyID    int64
	Number       string
	Seq          int64
	Date         time.Time
	Type         EntryType
	Status       EntryStatus
	Description  string
	TotalDebit   float64
	TotalCredit  float64
	SourceModule string
	SourceID     uuid.UUID
	ReversalOf   *int64
	ReversedBy   *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []Line
}

// Line stores one debit or credit amount for an account. A line never exists
// without its parent entry.
type Line struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	AccountCode string
	Movement    Movement
	Amount      float64
	LineOrder   int
}

// LineInput describes a journal line in a posting request.
type LineInput struct {
	AccountCode string
	Movement    Movement
	Amount      float64
}

// PostingInput groups fields required to post a journal entry.
type PostingInput struct {
	CompanyID    int64
	Type         EntryType
	Date         time.Time
	Description  string
	SourceModule string
	SourceID     uuid.UUID
	ActorID      int64
	Lines        []LineInput
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID     int64
	ActorID     int64
	Description string
}

var (
	// ErrUnbalanced indicates total debits and credits differ beyond tolerance.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrEntryNotFound indicates a missing entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrInvalidStatus indicates the entry is not in a state permitting the action.
	ErrInvalidStatus = errors.New("ledger: invalid status transition")
	// ErrEntryCorrupted indicates a stored entry was found unbalanced on read.
	// Automated processing of that entry must halt; this is never retried.
	ErrEntryCorrupted = errors.New("ledger: stored entry unbalanced")
)

// Validate ensures the posting input meets minimum criteria before any
// account resolution or persistence happens.
func (in PostingInput) Validate() error {
	if in.CompanyID == 0 {
		return errors.New("ledger: company required")
	}
	if in.Type == "" {
		return errors.New("ledger: entry type required")
	}
	if in.Date.IsZero() {
		return errors.New("ledger: date required")
	}
	if in.SourceModule == "" {
		return errors.New("ledger: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("ledger: source id required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("ledger: line %d missing account code", idx)
		}
		if line.Movement != MovementDebit && line.Movement != MovementCredit {
			return fmt.Errorf("ledger: line %d invalid movement %q", idx, line.Movement)
		}
		if line.Amount <= 0 {
			return fmt.Errorf("ledger: line %d amount must be positive", idx)
		}
		if line.Movement == MovementDebit {
			debit += line.Amount
		} else {
			credit += line.Amount
		}
	}
	if math.Abs(debit-credit) >= shared.AmountEpsilon {
		return fmt.Errorf("%w: debits %s, credits %s", ErrUnbalanced, shared.FormatAmount(debit), shared.FormatAmount(credit))
	}
	return nil
}

// Totals sums the input lines per movement side.
func (in PostingInput) Totals() (debit, credit float64) {
	for _, line := range in.Lines {
		if line.Movement == MovementDebit {
			debit += line.Amount
		} else {
			credit += line.Amount
		}
	}
	return debit, credit
}
