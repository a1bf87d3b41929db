package expenses

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vela-pos/vela-pos/internal/accounts"
	"github.com/vela-pos/vela-pos/internal/cashbook"
	"github.com/vela-pos/vela-pos/internal/ledger"
	"github.com/vela-pos/vela-pos/internal/shared"
)

// RepositoryPort abstracts expense persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	SetJournalEntry(ctx context.Context, expenseID, entryID int64) error
	Get(ctx context.Context, companyID, expenseID int64) (Expense, error)
	List(ctx context.Context, companyID int64, limit int) ([]Expense, error)
}

// DirectoryPort resolves the expense category account.
type DirectoryPort interface {
	ResolveActive(ctx context.Context, companyID int64, code string) (accounts.Account, error)
}

// LedgerPort posts the expense journal entry.
type LedgerPort interface {
	Post(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error)
}

// CashbookPort records the cash or bank outflow.
type CashbookPort interface {
	Register(ctx context.Context, m cashbook.Movement) (cashbook.Movement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records operating expenses: the expense document, its cash or bank
// movement, and the journal entry that keeps the books in step.
type Service struct {
	repo      RepositoryPort
	directory DirectoryPort
	ledger    LedgerPort
	cashbook  CashbookPort
	audit     AuditPort
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, directory DirectoryPort, ledgerSvc LedgerPort, cashbookSvc CashbookPort, audit AuditPort) *Service {
	return &Service{repo: repo, directory: directory, ledger: ledgerSvc, cashbook: cashbookSvc, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Record validates the category, persists the numbered expense, posts its
// journal entry and registers the outgoing money movement.
func (s *Service) Record(ctx context.Context, req Request) (Expense, error) {
	account, err := s.directory.ResolveActive(ctx, req.CompanyID, req.CategoryCode)
	if err != nil {
		return Expense{}, err
	}
	if account.Type != accounts.AccountTypeExpense {
		return Expense{}, fmt.Errorf("%w: %s is %s", ErrNotExpenseCategory, account.Code, account.Type)
	}

	date := req.Date
	if date.IsZero() {
		date = s.now()
	}
	expense := Expense{
		CompanyID:    req.CompanyID,
		CategoryCode: req.CategoryCode,
		Description:  req.Description,
		Subtotal:     req.Subtotal,
		Tax:          req.Tax,
		Total:        req.Subtotal + req.Tax,
		PaidFrom:     req.PaidFrom,
		Date:         date,
		SourceID:     uuid.New(),
	}

	lines, err := ledger.ExpenseEntryLines(ledger.ExpenseAmounts{
		CategoryCode: req.CategoryCode,
		Subtotal:     req.Subtotal,
		Tax:          req.Tax,
		PaidFrom:     req.PaidFrom,
	})
	if err != nil {
		return Expense{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextExpenseSeq(ctx, req.CompanyID, date.Year())
		if err != nil {
			return fmt.Errorf("allocate expense number: %w", err)
		}
		expense.Seq = seq
		expense.Number = shared.FormatDocNumber(shared.DocTypeExpense, date.Year(), seq)
		return tx.Insert(ctx, &expense)
	})
	if err != nil {
		return Expense{}, err
	}

	entry, err := s.ledger.Post(ctx, ledger.PostingInput{
		CompanyID:    req.CompanyID,
		Type:         ledger.EntryTypeExpense,
		Date:         date,
		Description:  fmt.Sprintf("Expense %s: %s", expense.Number, req.Description),
		SourceModule: "expenses",
		SourceID:     expense.SourceID,
		ActorID:      req.ActorID,
		Lines:        lines,
	})
	if err != nil {
		return Expense{}, fmt.Errorf("post expense entry: %w", err)
	}
	entryID := entry.ID
	expense.JournalEntryID = &entryID
	if err := s.repo.SetJournalEntry(ctx, expense.ID, entry.ID); err != nil {
		return Expense{}, err
	}

	if _, err := s.cashbook.Register(ctx, cashbook.Movement{
		CompanyID:  req.CompanyID,
		Instrument: req.PaidFrom,
		Direction:  cashbook.DirectionOut,
		Amount:     expense.Total,
		Memo:       fmt.Sprintf("Expense %s", expense.Number),
		RefModule:  "expenses",
		RefID:      expense.Number,
		OccurredAt: date,
	}); err != nil {
		return Expense{}, fmt.Errorf("register expense payment: %w", err)
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  req.ActorID,
			Action:   "expense.record",
			Entity:   "expense",
			EntityID: fmt.Sprintf("%d", expense.ID),
			Meta: map[string]any{
				"number":   expense.Number,
				"category": req.CategoryCode,
				"total":    expense.Total,
			},
			At: s.now(),
		})
	}
	return expense, nil
}

// Get loads one expense.
func (s *Service) Get(ctx context.Context, companyID, expenseID int64) (Expense, error) {
	return s.repo.Get(ctx, companyID, expenseID)
}

// List returns recent expenses.
func (s *Service) List(ctx context.Context, companyID int64, limit int) ([]Expense, error) {
	return s.repo.List(ctx, companyID, limit)
}
