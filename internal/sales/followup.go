package sales

import "time"

// Step identifies one post-commit effect of a settled or cancelled sale.
type Step string

const (
	StepStock          Step = "stock"
	StepCredit         Step = "credit"
	StepCash           Step = "cash"
	StepLedger         Step = "ledger"
	StepStockReversal  Step = "stock_reversal"
	StepCashReversal   Step = "cash_reversal"
	StepLedgerReversal Step = "ledger_reversal"
	StepCreditCancel   Step = "credit_cancel"
)

// FollowupStatus tracks the reconciliation state of a step.
type FollowupStatus string

const (
	FollowupPending FollowupStatus = "PENDING"
	FollowupDone    FollowupStatus = "DONE"
	FollowupFailed  FollowupStatus = "FAILED"
	FollowupDead    FollowupStatus = "DEAD"
	// FollowupSuperseded marks a forward step voided by a cancellation before
	// the step's effect was ever applied. Superseded rows are never re-driven.
	FollowupSuperseded FollowupStatus = "SUPERSEDED"
)

// IsForward reports whether the step applies a settlement effect, as opposed
// to undoing one after a cancellation.
func (s Step) IsForward() bool {
	switch s {
	case StepStock, StepCredit, StepCash, StepLedger:
		return true
	}
	return false
}

// Followup records one post-commit step so failed effects can be re-driven
// instead of silently lost. The sale row is never rolled back on its account.
type Followup struct {
	ID        int64
	CompanyID int64
	SaleID    int64
	Step      Step
	Status    FollowupStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}
