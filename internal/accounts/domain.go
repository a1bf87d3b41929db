package accounts

import (
	"errors"
	"time"
)

// Nature marks which posting side increases an account balance.
type Nature string

const (
	NatureDebit  Nature = "DEBIT"
	NatureCredit Nature = "CREDIT"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeCost      AccountType = "COST"
)

// Account models a chart of accounts node. Accounts are provisioned once per
// company and never deleted; historical journal lines keep referencing them
// after deactivation.
type Account struct {
	ID        int64
	CompanyID int64
	Code      string
	Name      string
	Nature    Nature
	Type      AccountType
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stable account codes. Callers building journal lines hard-code these;
// renumbering is a data migration, not a code change.
const (
	CodeCash               = "1101"
	CodeBank               = "1102"
	CodeAccountsReceivable = "1103"
	CodeInventory          = "1104"
	CodeAccountsPayable    = "2101"
	CodeVATPayable         = "2102"
	CodeEquityCapital      = "3101"
	CodeSalesIncome        = "4101"
	CodeCostOfSales        = "5101"
)

var (
	// ErrAccountNotFound indicates the code has not been provisioned for the company.
	ErrAccountNotFound = errors.New("accounts: account not found")
	// ErrAccountInactive indicates the account exists but was deactivated.
	ErrAccountInactive = errors.New("accounts: account inactive")
)

// seedAccount describes one row of the fixed chart.
type seedAccount struct {
	Code   string
	Name   string
	Nature Nature
	Type   AccountType
}

// ChartOfAccounts is the fixed seed provisioned for every company.
var ChartOfAccounts = []seedAccount{
	{CodeCash, "Cash on hand", NatureDebit, AccountTypeAsset},
	{CodeBank, "Bank", NatureDebit, AccountTypeAsset},
	{CodeAccountsReceivable, "Accounts receivable", NatureDebit, AccountTypeAsset},
	{CodeInventory, "Inventory", NatureDebit, AccountTypeAsset},
	{CodeAccountsPayable, "Accounts payable", NatureCredit, AccountTypeLiability},
	{CodeVATPayable, "VAT payable", NatureCredit, AccountTypeLiability},
	{CodeEquityCapital, "Equity capital", NatureCredit, AccountTypeEquity},
	{CodeSalesIncome, "Sales income", NatureCredit, AccountTypeIncome},
	{CodeCostOfSales, "Cost of sales", NatureDebit, AccountTypeCost},

	{"6101", "Rent expense", NatureDebit, AccountTypeExpense},
	{"6102", "Utilities expense", NatureDebit, AccountTypeExpense},
	{"6103", "Salaries expense", NatureDebit, AccountTypeExpense},
	{"6104", "Freight expense", NatureDebit, AccountTypeExpense},
	{"6105", "Advertising expense", NatureDebit, AccountTypeExpense},
	{"6106", "Office supplies expense", NatureDebit, AccountTypeExpense},
	{"6107", "Maintenance expense", NatureDebit, AccountTypeExpense},
	{"6108", "Insurance expense", NatureDebit, AccountTypeExpense},
	{"6109", "Cleaning expense", NatureDebit, AccountTypeExpense},
	{"6110", "Fuel expense", NatureDebit, AccountTypeExpense},
	{"6111", "Telephone expense", NatureDebit, AccountTypeExpense},
	{"6112", "Internet expense", NatureDebit, AccountTypeExpense},
	{"6113", "Bank fees expense", NatureDebit, AccountTypeExpense},
	{"6114", "Taxes and licences expense", NatureDebit, AccountTypeExpense},
	{"6115", "Packaging expense", NatureDebit, AccountTypeExpense},
	{"6116", "Security expense", NatureDebit, AccountTypeExpense},
	{"6117", "Travel expense", NatureDebit, AccountTypeExpense},
	{"6118", "Training expense", NatureDebit, AccountTypeExpense},
	{"6119", "Depreciation expense", NatureDebit, AccountTypeExpense},
	{"6120", "Miscellaneous expense", NatureDebit, AccountTypeExpense},
}

// IsExpenseCategory reports whether code belongs to the expense category block.
func IsExpenseCategory(code string) bool {
	for _, seed := range ChartOfAccounts {
		if seed.Code == code {
			return seed.Type == AccountTypeExpense
		}
	}
	return false
}
