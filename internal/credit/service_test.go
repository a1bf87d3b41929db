package credit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mu        sync.Mutex
	customers map[int64]Customer
	credits   map[int64]CustomerCredit
	nextID    int64

	updateError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		customers: make(map[int64]Customer),
		credits:   make(map[int64]CustomerCredit),
		nextID:    1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	shadow := &mockTx{
		mock:      m,
		customers: make(map[int64]Customer, len(m.customers)),
		credits:   make(map[int64]CustomerCredit, len(m.credits)),
	}
	for k, v := range m.customers {
		shadow.customers[k] = v
	}
	for k, v := range m.credits {
		shadow.credits[k] = v
	}
	if err := fn(ctx, shadow); err != nil {
		return err
	}
	m.customers = shadow.customers
	m.credits = shadow.credits
	return nil
}

func (m *mockRepository) GetCustomer(ctx context.Context, companyID, customerID int64) (Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customer, ok := m.customers[customerID]
	if !ok || customer.CompanyID != companyID {
		return Customer{}, ErrCustomerNotFound
	}
	return customer, nil
}

func (m *mockRepository) ListCredits(ctx context.Context, companyID, customerID int64) ([]CustomerCredit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CustomerCredit
	for _, c := range m.credits {
		if c.CompanyID == companyID && c.CustomerID == customerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockTx struct {
	mock      *mockRepository
	customers map[int64]Customer
	credits   map[int64]CustomerCredit
}

func (t *mockTx) GetCustomerForUpdate(ctx context.Context, companyID, customerID int64) (Customer, error) {
	customer, ok := t.customers[customerID]
	if !ok || customer.CompanyID != companyID {
		return Customer{}, ErrCustomerNotFound
	}
	return customer, nil
}

func (t *mockTx) SetCustomerCreditUsed(ctx context.Context, customerID int64, used float64) error {
	customer := t.customers[customerID]
	customer.CreditUsed = used
	t.customers[customerID] = customer
	return nil
}

func (t *mockTx) InsertCredit(ctx context.Context, credit CustomerCredit) (CustomerCredit, error) {
	credit.ID = t.mock.nextID
	t.mock.nextID++
	credit.CreatedAt = time.Now()
	t.credits[credit.ID] = credit
	return credit, nil
}

func (t *mockTx) ListOpenCreditsForUpdate(ctx context.Context, companyID, customerID int64) ([]CustomerCredit, error) {
	var out []CustomerCredit
	for _, c := range t.credits {
		if c.CompanyID != companyID || c.CustomerID != customerID {
			continue
		}
		if c.Status == StatusPaid || c.Status == StatusCancelled {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

func (t *mockTx) GetCreditForUpdate(ctx context.Context, companyID, creditID int64) (CustomerCredit, error) {
	c, ok := t.credits[creditID]
	if !ok || c.CompanyID != companyID {
		return CustomerCredit{}, ErrCreditNotFound
	}
	return c, nil
}

func (t *mockTx) UpdateCredit(ctx context.Context, credit CustomerCredit) error {
	if t.mock.updateError != nil {
		return t.mock.updateError
	}
	t.credits[credit.ID] = credit
	return nil
}

func fixedNow() time.Time {
	return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
}

func setupService(t *testing.T) (*Service, *mockRepository) {
	t.Helper()
	repo := newMockRepository()
	repo.customers[5] = Customer{ID: 5, CompanyID: 1, Name: "Marta", CreditLimit: 1000, PaymentTermsDays: 30}
	svc := NewService(repo, nil)
	svc.WithNow(fixedNow)
	return svc, repo
}

func TestExtendWithinLimit(t *testing.T) {
	svc, repo := setupService(t)

	credit, err := svc.Extend(context.Background(), ExtendInput{
		CompanyID: 1, CustomerID: 5, Amount: 400, RefModule: "sales", RefID: "s1",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, credit.Status)
	assert.Equal(t, 400.0, credit.Balance)
	assert.Equal(t, fixedNow().AddDate(0, 0, 30), credit.DueDate, "due date defaults to payment terms")
	assert.Equal(t, 400.0, repo.customers[5].CreditUsed)

	available, err := svc.Available(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 600.0, available)
}

func TestExtendExceedingLimitLeavesUsedUntouched(t *testing.T) {
	svc, repo := setupService(t)

	_, err := svc.Extend(context.Background(), ExtendInput{CompanyID: 1, CustomerID: 5, Amount: 700})
	require.NoError(t, err)

	_, err = svc.Extend(context.Background(), ExtendInput{CompanyID: 1, CustomerID: 5, Amount: 400})
	require.ErrorIs(t, err, ErrLimitExceeded)

	var detail *LimitExceededError
	require.ErrorAs(t, err, &detail)
	assert.Equal(t, 1000.0, detail.Limit)
	assert.Equal(t, 700.0, detail.Used)
	assert.Equal(t, 400.0, detail.Requested)

	assert.Equal(t, 700.0, repo.customers[5].CreditUsed)
}

func TestExtendRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.Extend(context.Background(), ExtendInput{CompanyID: 1, CustomerID: 5, Amount: 0})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestExtendUnknownCustomer(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.Extend(context.Background(), ExtendInput{CompanyID: 1, CustomerID: 404, Amount: 10})
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestAllocatePaymentOldestDueFirst(t *testing.T) {
	svc, repo := setupService(t)

	older, err := svc.Extend(context.Background(), ExtendInput{
		CompanyID: 1, CustomerID: 5, Amount: 300,
		DueDate: fixedNow().AddDate(0, 0, 10),
	})
	require.NoError(t, err)
	newer, err := svc.Extend(context.Background(), ExtendInput{
		CompanyID: 1, CustomerID: 5, Amount: 500,
		DueDate: fixedNow().AddDate(0, 0, 20),
	})
	require.NoError(t, err)

	allocations, excess, err := svc.AllocatePayment(context.Background(), 1, 5, 400)
	require.NoError(t, err)
	assert.Equal(t, 0.0, excess)
	require.Len(t, allocations, 2)

	assert.Equal(t, older.ID, allocations[0].CreditID)
	assert.Equal(t, 300.0, allocations[0].Applied)
	assert.Equal(t, StatusPaid, allocations[0].Status)

	assert.Equal(t, newer.ID, allocations[1].CreditID)
	assert.Equal(t, 100.0, allocations[1].Applied)
	assert.Equal(t, 400.0, allocations[1].Balance)
	assert.Equal(t, StatusPartial, allocations[1].Status)

	assert.Equal(t, 400.0, repo.customers[5].CreditUsed, "used drops by the applied amount")
}

func TestAllocatePaymentReturnsExcess(t *testing.T) {
	svc, repo := setupService(t)

	_, err := svc.Extend(context.Background(), ExtendInput{CompanyID: 1, CustomerID: 5, Amount: 150})
	require.NoError(t, err)

	allocations, excess, err := svc.AllocatePayment(context.Background(), 1, 5, 200)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, 150.0, allocations[0].Applied)
	assert.Equal(t, 50.0, excess)
	assert.Equal(t, 0.0, repo.customers[5].CreditUsed)
}

func TestAllocatePaymentNoOpenCredits(t *testing.T) {
	svc, _ := setupService(t)
	allocations, excess, err := svc.AllocatePayment(context.Background(), 1, 5, 100)
	require.NoError(t, err)
	assert.Empty(t, allocations)
	assert.Equal(t, 100.0, excess)
}

func TestAllocatePaymentRejectsNonPositive(t *testing.T) {
	svc, _ := setupService(t)
	_, _, err := svc.AllocatePayment(context.Background(), 1, 5, -5)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestOverdueAppliedLazilyOnRead(t *testing.T) {
	svc, _ := setupService(t)

	credit, err := svc.Extend(context.Background(), ExtendInput{
		CompanyID: 1, CustomerID: 5, Amount: 200,
		DueDate: fixedNow().AddDate(0, 0, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, credit.Status)

	// Move the clock past the due date; no writer has touched the row.
	svc.WithNow(func() time.Time { return fixedNow().AddDate(0, 0, 6) })

	credits, err := svc.ListCredits(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Len(t, credits, 1)
	assert.Equal(t, StatusOverdue, credits[0].Status)
}

func TestOverdueCreditStillAcceptsPayment(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Extend(context.Background(), ExtendInput{
		CompanyID: 1, CustomerID: 5, Amount: 200,
		DueDate: fixedNow().AddDate(0, 0, -1),
	})
	require.NoError(t, err)

	allocations, excess, err := svc.AllocatePayment(context.Background(), 1, 5, 200)
	require.NoError(t, err)
	assert.Equal(t, 0.0, excess)
	require.Len(t, allocations, 1)
	assert.Equal(t, StatusPaid, allocations[0].Status)
}

func TestCancelReleasesOutstandingBalance(t *testing.T) {
	svc, repo := setupService(t)

	credit, err := svc.Extend(context.Background(), ExtendInput{CompanyID: 1, CustomerID: 5, Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, 300.0, repo.customers[5].CreditUsed)

	require.NoError(t, svc.Cancel(context.Background(), 1, credit.ID))

	assert.Equal(t, 0.0, repo.customers[5].CreditUsed)
	assert.Equal(t, StatusCancelled, repo.credits[credit.ID].Status)
	assert.Equal(t, 0.0, repo.credits[credit.ID].Balance)
}

func TestCancelIsIdempotent(t *testing.T) {
	svc, repo := setupService(t)

	credit, err := svc.Extend(context.Background(), ExtendInput{CompanyID: 1, CustomerID: 5, Amount: 300})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), 1, credit.ID))
	require.NoError(t, svc.Cancel(context.Background(), 1, credit.ID))
	assert.Equal(t, 0.0, repo.customers[5].CreditUsed)
}

func TestCancelReleasesOnlyUnpaidPortion(t *testing.T) {
	svc, repo := setupService(t)

	credit, err := svc.Extend(context.Background(), ExtendInput{CompanyID: 1, CustomerID: 5, Amount: 300})
	require.NoError(t, err)
	_, _, err = svc.AllocatePayment(context.Background(), 1, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, 200.0, repo.customers[5].CreditUsed)

	require.NoError(t, svc.Cancel(context.Background(), 1, credit.ID))
	assert.Equal(t, 0.0, repo.customers[5].CreditUsed)
}

func TestCancelRejectsFullyPaidCredit(t *testing.T) {
	svc, repo := setupService(t)

	credit, err := svc.Extend(context.Background(), ExtendInput{CompanyID: 1, CustomerID: 5, Amount: 300})
	require.NoError(t, err)
	_, _, err = svc.AllocatePayment(context.Background(), 1, 5, 300)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, repo.credits[credit.ID].Status)

	err = svc.Cancel(context.Background(), 1, credit.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, StatusPaid, repo.credits[credit.ID].Status)
	assert.Equal(t, 0.0, repo.customers[5].CreditUsed)
}

func TestRecomputeInvariant(t *testing.T) {
	now := fixedNow()
	c := CustomerCredit{Amount: 100, PaidAmount: 100.004, DueDate: now.AddDate(0, 0, -1)}
	c.Recompute(now)
	assert.Equal(t, StatusPaid, c.Status, "within tolerance counts as fully paid")
	assert.Equal(t, 0.0, c.Balance)

	c = CustomerCredit{Amount: 100, PaidAmount: 40, DueDate: now.AddDate(0, 0, 1)}
	c.Recompute(now)
	assert.Equal(t, StatusPartial, c.Status)
	assert.Equal(t, 60.0, c.Balance)

	c = CustomerCredit{Status: StatusCancelled, Amount: 100}
	c.Recompute(now)
	assert.Equal(t, StatusCancelled, c.Status, "cancelled is terminal")
}
