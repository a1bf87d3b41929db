package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vela-pos/vela-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetCustomer(ctx context.Context, companyID, customerID int64) (Customer, error)
	ListCredits(ctx context.Context, companyID, customerID int64) ([]CustomerCredit, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service tracks credit extensions and FIFO payment allocation.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Extend creates a new credit after checking the customer's limit under a
// row lock. Exceeding the limit fails with no mutation.
func (s *Service) Extend(ctx context.Context, input ExtendInput) (CustomerCredit, error) {
	if input.Amount <= 0 {
		return CustomerCredit{}, ErrInvalidAmount
	}
	if input.CompanyID == 0 || input.CustomerID == 0 {
		return CustomerCredit{}, errors.New("credit: company and customer required")
	}

	var created CustomerCredit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.GetCustomerForUpdate(ctx, input.CompanyID, input.CustomerID)
		if err != nil {
			return err
		}
		if customer.CreditUsed+input.Amount > customer.CreditLimit+shared.AmountEpsilon {
			return &LimitExceededError{
				CustomerID: customer.ID,
				Limit:      customer.CreditLimit,
				Used:       customer.CreditUsed,
				Requested:  input.Amount,
			}
		}
		dueDate := input.DueDate
		if dueDate.IsZero() {
			dueDate = s.now().AddDate(0, 0, customer.PaymentTermsDays)
		}
		credit := CustomerCredit{
			CompanyID:  input.CompanyID,
			CustomerID: input.CustomerID,
			Amount:     input.Amount,
			DueDate:    dueDate,
			RefModule:  input.RefModule,
			RefID:      input.RefID,
		}
		credit.Recompute(s.now())
		created, err = tx.InsertCredit(ctx, credit)
		if err != nil {
			return err
		}
		return tx.SetCustomerCreditUsed(ctx, customer.ID, customer.CreditUsed+input.Amount)
	})
	if err != nil {
		return CustomerCredit{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "credit.extend",
			Entity:   "customer_credit",
			EntityID: fmt.Sprintf("%d", created.ID),
			Meta: map[string]any{
				"customer_id": input.CustomerID,
				"amount":      input.Amount,
				"due_date":    created.DueDate,
			},
			At: s.now(),
		})
	}
	return created, nil
}

// AllocatePayment walks the customer's open credits oldest-due-first and
// applies as much of the payment as each outstanding balance absorbs. Excess
// that no credit can absorb is returned to the caller, never discarded.
func (s *Service) AllocatePayment(ctx context.Context, companyID, customerID int64, amount float64) ([]Allocation, float64, error) {
	if amount <= 0 {
		return nil, 0, ErrInvalidAmount
	}

	var allocations []Allocation
	remaining := amount
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.GetCustomerForUpdate(ctx, companyID, customerID)
		if err != nil {
			return err
		}
		credits, err := tx.ListOpenCreditsForUpdate(ctx, companyID, customerID)
		if err != nil {
			return err
		}
		now := s.now()
		var applied float64
		for i := range credits {
			if remaining < shared.AmountEpsilon {
				break
			}
			c := &credits[i]
			c.Recompute(now)
			if c.Balance <= 0 {
				if err := tx.UpdateCredit(ctx, *c); err != nil {
					return err
				}
				continue
			}
			portion := c.Balance
			if portion > remaining {
				portion = remaining
			}
			c.PaidAmount += portion
			c.Recompute(now)
			if err := tx.UpdateCredit(ctx, *c); err != nil {
				return err
			}
			remaining -= portion
			applied += portion
			allocations = append(allocations, Allocation{
				CreditID: c.ID,
				Applied:  portion,
				Balance:  c.Balance,
				Status:   c.Status,
			})
		}
		if applied > 0 {
			used := customer.CreditUsed - applied
			if used < 0 {
				used = 0
			}
			if err := tx.SetCustomerCreditUsed(ctx, customer.ID, used); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if remaining < shared.AmountEpsilon {
		remaining = 0
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "credit.allocate",
			Entity:   "customer",
			EntityID: fmt.Sprintf("%d", customerID),
			Meta: map[string]any{
				"amount":      amount,
				"allocations": len(allocations),
				"excess":      remaining,
			},
			At: s.now(),
		})
	}
	return allocations, remaining, nil
}

// Cancel voids a credit and releases its outstanding balance from the
// customer's used headroom. Used when a settled credit sale is cancelled.
// A fully paid credit cannot be voided; the payment history stays intact.
func (s *Service) Cancel(ctx context.Context, companyID, creditID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCreditForUpdate(ctx, companyID, creditID)
		if err != nil {
			return err
		}
		if c.Status == StatusCancelled {
			return nil
		}
		if c.Status == StatusPaid {
			return fmt.Errorf("credit %d is fully paid: %w", creditID, ErrInvalidStatus)
		}
		customer, err := tx.GetCustomerForUpdate(ctx, companyID, c.CustomerID)
		if err != nil {
			return err
		}
		outstanding := c.Amount - c.PaidAmount
		if outstanding < 0 {
			outstanding = 0
		}
		c.Status = StatusCancelled
		c.Balance = 0
		if err := tx.UpdateCredit(ctx, c); err != nil {
			return err
		}
		used := customer.CreditUsed - outstanding
		if used < 0 {
			used = 0
		}
		return tx.SetCustomerCreditUsed(ctx, customer.ID, used)
	})
}

// Available returns the customer's remaining credit headroom.
func (s *Service) Available(ctx context.Context, companyID, customerID int64) (float64, error) {
	customer, err := s.repo.GetCustomer(ctx, companyID, customerID)
	if err != nil {
		return 0, err
	}
	return customer.Available(), nil
}

// ListCredits returns a customer's credits with the lazy overdue transition
// applied to the returned copies.
func (s *Service) ListCredits(ctx context.Context, companyID, customerID int64) ([]CustomerCredit, error) {
	credits, err := s.repo.ListCredits(ctx, companyID, customerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range credits {
		credits[i].Recompute(now)
	}
	return credits, nil
}
