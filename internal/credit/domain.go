package credit

import (
	"errors"
	"fmt"
	"time"

	"github.com/vela-pos/vela-pos/internal/shared"
)

// Status enumerates the credit lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPartial   Status = "PARTIAL"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

// Customer carries the credit terms the subledger enforces.
type Customer struct {
	ID               int64
	CompanyID        int64
	Name             string
	CreditLimit      float64
	CreditUsed       float64
	PaymentTermsDays int
}

// Available returns the remaining headroom under the credit limit.
func (c Customer) Available() float64 {
	avail := c.CreditLimit - c.CreditUsed
	if avail < 0 {
		return 0
	}
	return avail
}

// CustomerCredit tracks one credit extension. Balance and status are always
// recomputed from amount and paid amount, never set independently, so the
// three fields cannot drift apart.
type CustomerCredit struct {
	ID         int64
	CompanyID  int64
	CustomerID int64
	Amount     float64
	PaidAmount float64
	Balance    float64
	Status     Status
	DueDate    time.Time
	RefModule  string
	RefID      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Recompute derives balance and status. A credit past its due date that is
// not fully paid transitions to OVERDUE lazily, whenever it is read or
// updated; there is no background sweep.
func (c *CustomerCredit) Recompute(now time.Time) {
	if c.Status == StatusCancelled {
		return
	}
	c.Balance = c.Amount - c.PaidAmount
	if c.Balance < 0 {
		c.Balance = 0
	}
	switch {
	case c.Balance < shared.AmountEpsilon:
		c.Balance = 0
		c.Status = StatusPaid
	case !c.DueDate.IsZero() && now.After(c.DueDate):
		c.Status = StatusOverdue
	case c.PaidAmount > 0:
		c.Status = StatusPartial
	default:
		c.Status = StatusPending
	}
}

// ExtendInput describes a requested credit extension.
type ExtendInput struct {
	CompanyID  int64
	CustomerID int64
	Amount     float64
	DueDate    time.Time
	RefModule  string
	RefID      string
}

// Allocation reports how much of a payment one credit absorbed.
type Allocation struct {
	CreditID int64
	Applied  float64
	Balance  float64
	Status   Status
}

var (
	// ErrCustomerNotFound indicates an unknown customer.
	ErrCustomerNotFound = errors.New("credit: customer not found")
	// ErrCreditNotFound indicates an unknown credit record.
	ErrCreditNotFound = errors.New("credit: record not found")
	// ErrLimitExceeded is the sentinel wrapped by LimitExceededError.
	ErrLimitExceeded = errors.New("credit: limit exceeded")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("credit: amount must be positive")
	// ErrInvalidStatus indicates the credit's status does not allow the action.
	ErrInvalidStatus = errors.New("credit: status does not allow this action")
)

// LimitExceededError carries the figures for a user-facing message.
type LimitExceededError struct {
	CustomerID int64
	Limit      float64
	Used       float64
	Requested  float64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded: limit %s, used %s, requested %s",
		shared.FormatAmount(e.Limit), shared.FormatAmount(e.Used), shared.FormatAmount(e.Requested))
}

func (e *LimitExceededError) Unwrap() error {
	return ErrLimitExceeded
}
