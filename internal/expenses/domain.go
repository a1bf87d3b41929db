package expenses

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vela-pos/vela-pos/internal/ledger"
)

// Expense is one recorded operating expense paid from cash or bank.
type Expense struct {
	ID             int64
	CompanyID      int64
	Number         string
	Seq            int64
	CategoryCode   string
	Description    string
	Subtotal       float64
	Tax            float64
	Total          float64
	PaidFrom       ledger.Instrument
	Date           time.Time
	JournalEntryID *int64
	SourceID       uuid.UUID
	CreatedAt      time.Time
}

// Request describes an expense to record.
type Request struct {
	CompanyID    int64             `json:"company_id" validate:"required"`
	CategoryCode string            `json:"category_code" validate:"required"`
	Description  string            `json:"description" validate:"required"`
	Subtotal     float64           `json:"subtotal" validate:"required,gt=0"`
	Tax          float64           `json:"tax" validate:"gte=0"`
	PaidFrom     ledger.Instrument `json:"paid_from" validate:"required,oneof=CASH BANK"`
	Date         time.Time         `json:"date"`
	ActorID      int64             `json:"-"`
}

var (
	// ErrExpenseNotFound indicates a missing expense.
	ErrExpenseNotFound = errors.New("expenses: expense not found")
	// ErrNotExpenseCategory indicates the account code is not an expense category.
	ErrNotExpenseCategory = errors.New("expenses: account is not an expense category")
)
