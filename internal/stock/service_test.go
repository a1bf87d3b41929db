package stock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordKey struct {
	companyID int64
	productID int64
	variantID int64
}

type mockRepository struct {
	mu        sync.Mutex
	records   map[recordKey]Record
	movements []Movement
	nextID    int64

	upsertError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{records: make(map[recordKey]Record), nextID: 1}
}

func (m *mockRepository) seed(productID int64, qty float64) {
	m.records[recordKey{1, productID, 0}] = Record{CompanyID: 1, ProductID: productID, Quantity: qty}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	shadow := &mockTx{
		mock:      m,
		records:   make(map[recordKey]Record, len(m.records)),
		movements: append([]Movement(nil), m.movements...),
	}
	for k, v := range m.records {
		shadow.records[k] = v
	}
	if err := fn(ctx, shadow); err != nil {
		return err
	}
	m.records = shadow.records
	m.movements = shadow.movements
	return nil
}

func (m *mockRepository) Quantity(ctx context.Context, companyID, productID, variantID int64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[recordKey{companyID, productID, variantID}].Quantity, nil
}

func (m *mockRepository) ListMovements(ctx context.Context, companyID, productID int64, limit int) ([]Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Movement
	for _, mv := range m.movements {
		if mv.CompanyID == companyID && mv.ProductID == productID {
			out = append(out, mv)
		}
	}
	return out, nil
}

// mockTx buffers writes and publishes them only on a clean commit.
type mockTx struct {
	mock      *mockRepository
	records   map[recordKey]Record
	movements []Movement
}

func (t *mockTx) GetForUpdate(ctx context.Context, companyID, productID, variantID int64) (Record, error) {
	key := recordKey{companyID, productID, variantID}
	record, ok := t.records[key]
	if !ok {
		return Record{CompanyID: companyID, ProductID: productID, VariantID: variantID}, ErrRecordNotFound
	}
	return record, nil
}

func (t *mockTx) UpsertQuantity(ctx context.Context, record Record) error {
	if t.mock.upsertError != nil {
		return t.mock.upsertError
	}
	t.records[recordKey{record.CompanyID, record.ProductID, record.VariantID}] = record
	return nil
}

func (t *mockTx) InsertMovement(ctx context.Context, movement Movement) error {
	movement.ID = t.mock.nextID
	t.mock.nextID++
	t.movements = append(t.movements, movement)
	return nil
}

func TestAdjustDecrementsAndRecordsMovement(t *testing.T) {
	repo := newMockRepository()
	repo.seed(7, 10)
	svc := NewService(repo, nil)

	balance, err := svc.Adjust(context.Background(), AdjustInput{
		CompanyID: 1, ProductID: 7, Delta: -3,
		Reason: ReasonSale, RefModule: "sales", RefID: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, balance)

	movements, err := svc.Movements(context.Background(), 1, 7, 10)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, -3.0, movements[0].Delta)
	assert.Equal(t, 7.0, movements[0].BalanceAfter)
	assert.Equal(t, ReasonSale, movements[0].Reason)
	assert.Equal(t, "sales", movements[0].RefModule)
	assert.Equal(t, "abc", movements[0].RefID)
}

func TestAdjustInsufficientStockLeavesRowUntouched(t *testing.T) {
	repo := newMockRepository()
	repo.seed(7, 2)
	svc := NewService(repo, nil)

	_, err := svc.Adjust(context.Background(), AdjustInput{
		CompanyID: 1, ProductID: 7, Delta: -5, Reason: ReasonSale,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var detail *InsufficientStockError
	require.ErrorAs(t, err, &detail)
	assert.Equal(t, 5.0, detail.Requested)
	assert.Equal(t, 2.0, detail.Available)

	qty, err := svc.Quantity(context.Background(), 1, 7, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, qty)

	movements, err := svc.Movements(context.Background(), 1, 7, 10)
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestAdjustMissingRowTreatedAsZero(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	balance, err := svc.Adjust(context.Background(), AdjustInput{
		CompanyID: 1, ProductID: 42, Delta: 15, Reason: ReasonPurchase,
	})
	require.NoError(t, err)
	assert.Equal(t, 15.0, balance)

	_, err = svc.Adjust(context.Background(), AdjustInput{
		CompanyID: 1, ProductID: 99, Delta: -1, Reason: ReasonSale,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAdjustRejectsZeroDelta(t *testing.T) {
	svc := NewService(newMockRepository(), nil)
	_, err := svc.Adjust(context.Background(), AdjustInput{CompanyID: 1, ProductID: 1, Delta: 0, Reason: ReasonAdjustment})
	require.ErrorIs(t, err, ErrInvalidDelta)

	_, err = svc.Adjust(context.Background(), AdjustInput{CompanyID: 1, ProductID: 1, Delta: 5})
	require.ErrorIs(t, err, ErrInvalidDelta)
}

func TestAdjustVariantsTrackedSeparately(t *testing.T) {
	repo := newMockRepository()
	repo.records[recordKey{1, 7, 1}] = Record{CompanyID: 1, ProductID: 7, VariantID: 1, Quantity: 5}
	repo.records[recordKey{1, 7, 2}] = Record{CompanyID: 1, ProductID: 7, VariantID: 2, Quantity: 5}
	svc := NewService(repo, nil)

	_, err := svc.Adjust(context.Background(), AdjustInput{
		CompanyID: 1, ProductID: 7, VariantID: 1, Delta: -5, Reason: ReasonSale,
	})
	require.NoError(t, err)

	qty, err := svc.Quantity(context.Background(), 1, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, 5.0, qty, "sibling variant must be untouched")
}

func TestCancelReversalRestoresQuantity(t *testing.T) {
	repo := newMockRepository()
	repo.seed(7, 10)
	svc := NewService(repo, nil)

	_, err := svc.Adjust(context.Background(), AdjustInput{
		CompanyID: 1, ProductID: 7, Delta: -4, Reason: ReasonSale, RefModule: "sales", RefID: "s1",
	})
	require.NoError(t, err)

	balance, err := svc.Adjust(context.Background(), AdjustInput{
		CompanyID: 1, ProductID: 7, Delta: 4, Reason: ReasonSaleCancel, RefModule: "sales", RefID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, balance)

	movements, err := svc.Movements(context.Background(), 1, 7, 10)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, ReasonSaleCancel, movements[1].Reason)
}

func TestConcurrentOversellOnlyOneWins(t *testing.T) {
	repo := newMockRepository()
	repo.seed(7, 10)
	svc := NewService(repo, nil)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Adjust(context.Background(), AdjustInput{
				CompanyID: 1, ProductID: 7, Delta: -8, Reason: ReasonSale,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var failures int
	for err := range results {
		if err != nil {
			assert.ErrorIs(t, err, ErrInsufficientStock)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one of the competing sales must fail")

	qty, err := svc.Quantity(context.Background(), 1, 7, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, qty)
}

func TestAdjustFailedWriteDiscardsMovement(t *testing.T) {
	repo := newMockRepository()
	repo.seed(7, 10)
	repo.upsertError = errors.New("connection reset")
	svc := NewService(repo, nil)

	_, err := svc.Adjust(context.Background(), AdjustInput{
		CompanyID: 1, ProductID: 7, Delta: -1, Reason: ReasonSale,
	})
	require.Error(t, err)

	movements, err := svc.Movements(context.Background(), 1, 7, 10)
	require.NoError(t, err)
	assert.Empty(t, movements)
	qty, _ := svc.Quantity(context.Background(), 1, 7, 0)
	assert.Equal(t, 10.0, qty)
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := &InsufficientStockError{ProductID: 7, Requested: 5, Available: 2.5}
	assert.Equal(t, "insufficient stock: available 2.500, requested 5", err.Error())
}
