package ledger

import (
	"fmt"

	"github.com/vela-pos/vela-pos/internal/accounts"
)

// Instrument identifies where money physically moved.
type Instrument string

const (
	InstrumentCash Instrument = "CASH"
	InstrumentBank Instrument = "BANK"
)

// InstrumentAccount maps an instrument to its stable account code. The switch
// is exhaustive on purpose: adding an instrument without extending the mapping
// fails loudly instead of silently defaulting to cash.
func InstrumentAccount(i Instrument) (string, error) {
	switch i {
	case InstrumentCash:
		return accounts.CodeCash, nil
	case InstrumentBank:
		return accounts.CodeBank, nil
	default:
		return "", fmt.Errorf("ledger: no account mapped for instrument %q", i)
	}
}

// SaleAmounts carries the settled figures a sale contributes to its entry.
// Zero-valued components are skipped.
type SaleAmounts struct {
	CashPaid       float64
	BankPaid       float64
	CreditExtended float64
	Income         float64
	Tax            float64
	Cost           float64
}

// SaleEntryLines builds the canonical double entry for a settled sale:
// cash/bank/receivables debit against income and VAT credit, plus the
// cost-of-sale movement against inventory when cost data is available.
func SaleEntryLines(a SaleAmounts) []LineInput {
	var lines []LineInput
	if a.CashPaid > 0 {
		lines = append(lines, LineInput{AccountCode: accounts.CodeCash, Movement: MovementDebit, Amount: a.CashPaid})
	}
	if a.BankPaid > 0 {
		lines = append(lines, LineInput{AccountCode: accounts.CodeBank, Movement: MovementDebit, Amount: a.BankPaid})
	}
	if a.CreditExtended > 0 {
		lines = append(lines, LineInput{AccountCode: accounts.CodeAccountsReceivable, Movement: MovementDebit, Amount: a.CreditExtended})
	}
	if a.Income > 0 {
		lines = append(lines, LineInput{AccountCode: accounts.CodeSalesIncome, Movement: MovementCredit, Amount: a.Income})
	}
	if a.Tax > 0 {
		lines = append(lines, LineInput{AccountCode: accounts.CodeVATPayable, Movement: MovementCredit, Amount: a.Tax})
	}
	if a.Cost > 0 {
		lines = append(lines,
			LineInput{AccountCode: accounts.CodeCostOfSales, Movement: MovementDebit, Amount: a.Cost},
			LineInput{AccountCode: accounts.CodeInventory, Movement: MovementCredit, Amount: a.Cost},
		)
	}
	return lines
}

// ExpenseAmounts carries the figures recorded for an operating expense.
type ExpenseAmounts struct {
	CategoryCode string
	Subtotal     float64
	Tax          float64
	PaidFrom     Instrument
}

// ExpenseEntryLines builds the entry for an expense paid from cash or bank:
// expense-category and deductible VAT debits against the paying account.
func ExpenseEntryLines(a ExpenseAmounts) ([]LineInput, error) {
	source, err := InstrumentAccount(a.PaidFrom)
	if err != nil {
		return nil, err
	}
	lines := []LineInput{
		{AccountCode: a.CategoryCode, Movement: MovementDebit, Amount: a.Subtotal},
	}
	if a.Tax > 0 {
		lines = append(lines, LineInput{AccountCode: accounts.CodeVATPayable, Movement: MovementDebit, Amount: a.Tax})
	}
	lines = append(lines, LineInput{AccountCode: source, Movement: MovementCredit, Amount: a.Subtotal + a.Tax})
	return lines, nil
}
