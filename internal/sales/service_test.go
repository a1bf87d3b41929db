package sales

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vela-pos/vela-pos/internal/accounts"
	"github.com/vela-pos/vela-pos/internal/cashbook"
	"github.com/vela-pos/vela-pos/internal/credit"
	"github.com/vela-pos/vela-pos/internal/ledger"
	"github.com/vela-pos/vela-pos/internal/stock"
)

type mockRepository struct {
	mu     sync.Mutex
	sales  map[int64]*Sale
	seq    map[int]int64
	nextID int64

	insertError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{sales: make(map[int64]*Sale), seq: make(map[int]int64), nextID: 1}
}

func (m *mockRepository) WithSerializableTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &mockTxRepo{mock: m}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *mockRepository) Get(ctx context.Context, companyID, saleID int64) (*Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sales[saleID]
	if !ok || stored.CompanyID != companyID {
		return nil, ErrSaleNotFound
	}
	clone := *stored
	clone.Items = append([]Item(nil), stored.Items...)
	clone.Payments = append([]Payment(nil), stored.Payments...)
	clone.Warnings = nil
	return &clone, nil
}

func (m *mockRepository) List(ctx context.Context, companyID int64, limit, offset int) ([]Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sale
	for _, s := range m.sales {
		if s.CompanyID == companyID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockRepository) SetStatus(ctx context.Context, saleID int64, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setStatus(saleID, from, to)
}

func (m *mockRepository) setStatus(saleID int64, from, to Status) error {
	stored, ok := m.sales[saleID]
	if !ok || stored.Status != from {
		return ErrInvalidStatus
	}
	stored.Status = to
	return nil
}

func (m *mockRepository) SetJournalEntry(ctx context.Context, saleID, entryID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sales[saleID]
	if !ok {
		return ErrSaleNotFound
	}
	if stored.JournalEntryID == nil {
		stored.JournalEntryID = &entryID
	}
	return nil
}

func (m *mockRepository) SetCredit(ctx context.Context, saleID, creditID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sales[saleID]
	if !ok {
		return ErrSaleNotFound
	}
	if stored.CreditID == nil {
		stored.CreditID = &creditID
	}
	return nil
}

type mockTxRepo struct {
	mock     *mockRepository
	inserted []int64
	years    []int
}

func (t *mockTxRepo) rollback() {
	for _, id := range t.inserted {
		delete(t.mock.sales, id)
	}
	for _, year := range t.years {
		t.mock.seq[year]--
	}
}

func (t *mockTxRepo) NextSaleSeq(ctx context.Context, companyID int64, year int) (int64, error) {
	t.mock.seq[year]++
	t.years = append(t.years, year)
	return t.mock.seq[year], nil
}

func (t *mockTxRepo) InsertSale(ctx context.Context, s *Sale) error {
	if t.mock.insertError != nil {
		return t.mock.insertError
	}
	s.ID = t.mock.nextID
	t.mock.nextID++
	clone := *s
	t.mock.sales[s.ID] = &clone
	t.inserted = append(t.inserted, s.ID)
	return nil
}

func (t *mockTxRepo) InsertItems(ctx context.Context, saleID int64, items []Item) error {
	t.mock.sales[saleID].Items = append([]Item(nil), items...)
	return nil
}

func (t *mockTxRepo) InsertPayments(ctx context.Context, saleID int64, payments []Payment) error {
	t.mock.sales[saleID].Payments = append([]Payment(nil), payments...)
	return nil
}

func (t *mockTxRepo) SetStatus(ctx context.Context, saleID int64, from, to Status) error {
	return t.mock.setStatus(saleID, from, to)
}

type mockFollowups struct {
	mu     sync.Mutex
	rows   map[int64]*Followup
	nextID int64
}

func newMockFollowups() *mockFollowups {
	return &mockFollowups{rows: make(map[int64]*Followup), nextID: 1}
}

func (m *mockFollowups) Insert(ctx context.Context, f *Followup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = m.nextID
	m.nextID++
	f.Status = FollowupPending
	clone := *f
	m.rows[f.ID] = &clone
	return nil
}

func (m *mockFollowups) MarkDone(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Status = FollowupDone
	return nil
}

func (m *mockFollowups) MarkFailed(ctx context.Context, id int64, stepErr error, maxAttempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.Attempts++
	row.LastError = stepErr.Error()
	if row.Attempts >= maxAttempts {
		row.Status = FollowupDead
	} else {
		row.Status = FollowupFailed
	}
	return nil
}

func (m *mockFollowups) ClaimRetryable(ctx context.Context, limit, maxAttempts int) ([]Followup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []Followup
	for _, row := range m.rows {
		if len(claimed) >= limit {
			break
		}
		if row.Status == FollowupFailed && row.Attempts < maxAttempts {
			row.Status = FollowupPending
			claimed = append(claimed, *row)
		}
	}
	return claimed, nil
}

func (m *mockFollowups) SupersedeForward(ctx context.Context, saleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.SaleID == saleID && row.Step.IsForward() && row.Status != FollowupDone {
			row.Status = FollowupSuperseded
		}
	}
	return nil
}

func (m *mockFollowups) ListBySale(ctx context.Context, saleID int64) ([]Followup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Followup
	for _, row := range m.rows {
		if row.SaleID == saleID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *mockFollowups) bySale(saleID int64) map[Step]Followup {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Step]Followup)
	for _, row := range m.rows {
		if row.SaleID == saleID {
			out[row.Step] = *row
		}
	}
	return out
}

type mockStock struct {
	mu          sync.Mutex
	quantities  map[int64]float64
	adjustments []stock.AdjustInput
	adjustError error
}

func (m *mockStock) Quantity(ctx context.Context, companyID, productID, variantID int64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quantities[productID], nil
}

func (m *mockStock) Adjust(ctx context.Context, input stock.AdjustInput) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adjustError != nil {
		return 0, m.adjustError
	}
	current := m.quantities[input.ProductID]
	next := current + input.Delta
	if next < 0 {
		return 0, &stock.InsufficientStockError{
			ProductID: input.ProductID,
			Requested: -input.Delta,
			Available: current,
		}
	}
	m.quantities[input.ProductID] = next
	m.adjustments = append(m.adjustments, input)
	return next, nil
}

type mockCredit struct {
	mu        sync.Mutex
	available float64
	nextID    int64
	extended  []credit.ExtendInput
	cancelled []int64

	extendError error
	cancelError error
}

func (m *mockCredit) Available(ctx context.Context, companyID, customerID int64) (float64, error) {
	return m.available, nil
}

func (m *mockCredit) Extend(ctx context.Context, input credit.ExtendInput) (credit.CustomerCredit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.extendError != nil {
		return credit.CustomerCredit{}, m.extendError
	}
	if input.Amount > m.available {
		return credit.CustomerCredit{}, &credit.LimitExceededError{CustomerID: input.CustomerID, Requested: input.Amount}
	}
	m.nextID++
	m.available -= input.Amount
	m.extended = append(m.extended, input)
	return credit.CustomerCredit{ID: m.nextID, CustomerID: input.CustomerID, Amount: input.Amount, Balance: input.Amount, Status: credit.StatusPending, DueDate: input.DueDate}, nil
}

func (m *mockCredit) Cancel(ctx context.Context, companyID, creditID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelError != nil {
		return m.cancelError
	}
	m.cancelled = append(m.cancelled, creditID)
	return nil
}

type mockCashbook struct {
	mu            sync.Mutex
	movements     []cashbook.Movement
	registerError error
}

func (m *mockCashbook) Register(ctx context.Context, mv cashbook.Movement) (cashbook.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerError != nil {
		return cashbook.Movement{}, m.registerError
	}
	mv.ID = int64(len(m.movements) + 1)
	m.movements = append(m.movements, mv)
	return mv, nil
}

type mockLedger struct {
	mu       sync.Mutex
	nextID   int64
	posted   []ledger.PostingInput
	reversed []int64

	postError    error
	reverseError error
}

func (m *mockLedger) Post(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postError != nil {
		return ledger.JournalEntry{}, m.postError
	}
	if err := input.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	m.nextID++
	m.posted = append(m.posted, input)
	return ledger.JournalEntry{ID: m.nextID, CompanyID: input.CompanyID, Type: input.Type, Status: ledger.EntryStatusConfirmed}, nil
}

func (m *mockLedger) Reverse(ctx context.Context, companyID int64, input ledger.ReverseInput) (ledger.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reverseError != nil {
		return ledger.JournalEntry{}, m.reverseError
	}
	for _, id := range m.reversed {
		if id == input.EntryID {
			return ledger.JournalEntry{}, ledger.ErrInvalidStatus
		}
	}
	m.reversed = append(m.reversed, input.EntryID)
	m.nextID++
	return ledger.JournalEntry{ID: m.nextID, Type: ledger.EntryTypeReversal}, nil
}

type mockProducts struct {
	infos map[int64]ProductInfo
}

func (m *mockProducts) Lookup(ctx context.Context, companyID, productID, variantID int64) (ProductInfo, error) {
	info, ok := m.infos[productID]
	if !ok {
		return ProductInfo{}, errors.New("product not found")
	}
	return info, nil
}

type harness struct {
	svc       *Service
	repo      *mockRepository
	followups *mockFollowups
	stock     *mockStock
	credit    *mockCredit
	cashbook  *mockCashbook
	ledger    *mockLedger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:      newMockRepository(),
		followups: newMockFollowups(),
		stock:     &mockStock{quantities: map[int64]float64{7: 10, 8: 10}},
		credit:    &mockCredit{available: 1000},
		cashbook:  &mockCashbook{},
		ledger:    &mockLedger{},
	}
	products := &mockProducts{infos: map[int64]ProductInfo{
		7: {TaxRate: 0.19, UnitCost: 60},
		8: {TaxRate: 0, UnitCost: 10},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.svc = NewService(h.repo, h.followups, h.stock, h.credit, h.cashbook, h.ledger, products, nil, nil, logger, 3)
	h.svc.WithNow(func() time.Time { return time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC) })
	return h
}

func cashRequest(amount float64) SettleRequest {
	return SettleRequest{
		CompanyID: 1,
		Items: []ItemRequest{
			{ProductID: 7, Quantity: 2, UnitPrice: 100},
		},
		Payments: []PaymentRequest{
			{Method: ledger.InstrumentCash, Amount: amount},
		},
	}
}

func TestSettleCashSale(t *testing.T) {
	h := newHarness(t)

	sale, err := h.svc.Settle(context.Background(), cashRequest(238))
	require.NoError(t, err)

	assert.Equal(t, "POS-2026-000001", sale.Number)
	assert.Equal(t, StatusCompleted, sale.Status)
	assert.Equal(t, 200.0, sale.Subtotal)
	assert.Equal(t, 38.0, sale.Tax)
	assert.Equal(t, 238.0, sale.Total)
	assert.Equal(t, 238.0, sale.PaidAmount)
	assert.Equal(t, 0.0, sale.CreditAmount)
	assert.Empty(t, sale.Warnings)

	// Stock left the shelf.
	assert.Equal(t, 8.0, h.stock.quantities[7])
	require.Len(t, h.stock.adjustments, 1)
	assert.Equal(t, -2.0, h.stock.adjustments[0].Delta)
	assert.Equal(t, stock.ReasonSale, h.stock.adjustments[0].Reason)

	// Money entered the till.
	require.Len(t, h.cashbook.movements, 1)
	assert.Equal(t, cashbook.DirectionIn, h.cashbook.movements[0].Direction)
	assert.Equal(t, 238.0, h.cashbook.movements[0].Amount)

	// Journal entry posted and linked back.
	require.Len(t, h.ledger.posted, 1)
	require.NotNil(t, sale.JournalEntryID)
	stored, err := h.repo.Get(context.Background(), 1, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, *sale.JournalEntryID, *stored.JournalEntryID)

	// No credit involved.
	assert.Empty(t, h.credit.extended)
	assert.Nil(t, sale.CreditID)

	byStep := h.followups.bySale(sale.ID)
	require.Len(t, byStep, 3)
	assert.Equal(t, FollowupDone, byStep[StepStock].Status)
	assert.Equal(t, FollowupDone, byStep[StepCash].Status)
	assert.Equal(t, FollowupDone, byStep[StepLedger].Status)
}

func TestSettleNumbersAreSequential(t *testing.T) {
	h := newHarness(t)

	first, err := h.svc.Settle(context.Background(), cashRequest(238))
	require.NoError(t, err)
	second, err := h.svc.Settle(context.Background(), cashRequest(238))
	require.NoError(t, err)

	assert.Equal(t, "POS-2026-000001", first.Number)
	assert.Equal(t, "POS-2026-000002", second.Number)
}

func TestSettleCreditSale(t *testing.T) {
	h := newHarness(t)

	req := cashRequest(100)
	req.CustomerID = 5
	req.DueDate = time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	sale, err := h.svc.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, sale.Warnings)
	assert.Equal(t, 138.0, sale.CreditAmount)

	require.Len(t, h.credit.extended, 1)
	assert.Equal(t, 138.0, h.credit.extended[0].Amount)
	assert.Equal(t, int64(5), h.credit.extended[0].CustomerID)
	assert.Equal(t, req.DueDate, h.credit.extended[0].DueDate)
	assert.Equal(t, sale.Number, h.credit.extended[0].RefID)
	require.NotNil(t, sale.CreditID)

	byStep := h.followups.bySale(sale.ID)
	assert.Equal(t, FollowupDone, byStep[StepCredit].Status)

	// The journal entry carries the receivable leg.
	require.Len(t, h.ledger.posted, 1)
	var receivable float64
	for _, line := range h.ledger.posted[0].Lines {
		if line.AccountCode == accounts.CodeAccountsReceivable {
			receivable = line.Amount
		}
	}
	assert.Equal(t, 138.0, receivable)
}

func TestSettleCreditWithoutCustomerRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Settle(context.Background(), cashRequest(100))
	require.ErrorIs(t, err, ErrCustomerRequired)
	assert.Empty(t, h.repo.sales)
}

func TestSettleOverpaidRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Settle(context.Background(), cashRequest(300))
	require.ErrorIs(t, err, ErrOverpaid)
	assert.Empty(t, h.repo.sales)
	assert.Empty(t, h.stock.adjustments)
}

func TestSettleInsufficientStockRejectedBeforeWrite(t *testing.T) {
	h := newHarness(t)
	h.stock.quantities[7] = 1

	_, err := h.svc.Settle(context.Background(), cashRequest(238))
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	var detail *stock.InsufficientStockError
	require.ErrorAs(t, err, &detail)
	assert.Equal(t, 2.0, detail.Requested)
	assert.Equal(t, 1.0, detail.Available)
	assert.Empty(t, h.repo.sales)
}

func TestSettleCreditLimitRejectedBeforeWrite(t *testing.T) {
	h := newHarness(t)
	h.credit.available = 50

	req := cashRequest(100)
	req.CustomerID = 5
	_, err := h.svc.Settle(context.Background(), req)
	require.ErrorIs(t, err, credit.ErrLimitExceeded)
	assert.Empty(t, h.repo.sales)
}

func TestSettleUnknownProduct(t *testing.T) {
	h := newHarness(t)

	req := cashRequest(238)
	req.Items[0].ProductID = 404
	_, err := h.svc.Settle(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, h.repo.sales)
}

func TestSettleCommitFailure(t *testing.T) {
	h := newHarness(t)
	h.repo.insertError = errors.New("serialization conflict")

	_, err := h.svc.Settle(context.Background(), cashRequest(238))
	require.Error(t, err)
	assert.Empty(t, h.repo.sales)
	assert.Empty(t, h.stock.adjustments, "no side effect may run before the sale commits")
	assert.Empty(t, h.followups.rows)
}

func TestSettleLedgerFailureDegradesToWarning(t *testing.T) {
	h := newHarness(t)
	h.ledger.postError = errors.New("ledger unavailable")

	sale, err := h.svc.Settle(context.Background(), cashRequest(238))
	require.NoError(t, err, "a failed side effect must not fail the sale")

	assert.Equal(t, StatusCompleted, sale.Status)
	require.Len(t, sale.Warnings, 1)
	assert.Contains(t, sale.Warnings[0], "ledger")

	// The earlier steps still ran.
	assert.Equal(t, 8.0, h.stock.quantities[7])
	assert.Len(t, h.cashbook.movements, 1)

	byStep := h.followups.bySale(sale.ID)
	assert.Equal(t, FollowupDone, byStep[StepStock].Status)
	assert.Equal(t, FollowupDone, byStep[StepCash].Status)
	assert.Equal(t, FollowupFailed, byStep[StepLedger].Status)
	assert.Equal(t, 1, byStep[StepLedger].Attempts)
	assert.Contains(t, byStep[StepLedger].LastError, "ledger unavailable")
}

func TestRedriveCompletesFailedStep(t *testing.T) {
	h := newHarness(t)
	h.ledger.postError = errors.New("ledger unavailable")

	sale, err := h.svc.Settle(context.Background(), cashRequest(238))
	require.NoError(t, err)
	require.Nil(t, sale.JournalEntryID)

	h.ledger.postError = nil
	stats, err := h.svc.Redrive(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, RedriveStats{Claimed: 1, Done: 1}, stats)

	stored, err := h.repo.Get(context.Background(), 1, sale.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.JournalEntryID, "redrive must link the posted entry")

	byStep := h.followups.bySale(sale.ID)
	assert.Equal(t, FollowupDone, byStep[StepLedger].Status)
}

func TestRedriveStopsAtMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.ledger.postError = errors.New("ledger unavailable")

	sale, err := h.svc.Settle(context.Background(), cashRequest(238))
	require.NoError(t, err)

	// maxAttempts is 3; the settle pass already burned one attempt.
	for i := 0; i < 2; i++ {
		stats, err := h.svc.Redrive(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Claimed)
		assert.Equal(t, 1, stats.Failed)
	}

	byStep := h.followups.bySale(sale.ID)
	assert.Equal(t, FollowupDead, byStep[StepLedger].Status)
	assert.Equal(t, 3, byStep[StepLedger].Attempts)

	stats, err := h.svc.Redrive(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Claimed, "dead followups are left for manual review")
}

func TestRedriveNothingClaimable(t *testing.T) {
	h := newHarness(t)
	stats, err := h.svc.Redrive(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, RedriveStats{}, stats)
}

func TestCancelRunsInverseSteps(t *testing.T) {
	h := newHarness(t)

	req := cashRequest(100)
	req.CustomerID = 5
	sale, err := h.svc.Settle(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, sale.Warnings)
	assert.Equal(t, 8.0, h.stock.quantities[7])

	cancelled, err := h.svc.Cancel(context.Background(), 1, sale.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Empty(t, cancelled.Warnings)

	// Stock back on the shelf.
	assert.Equal(t, 10.0, h.stock.quantities[7])

	// Money back out.
	require.Len(t, h.cashbook.movements, 2)
	assert.Equal(t, cashbook.DirectionOut, h.cashbook.movements[1].Direction)
	assert.Equal(t, 100.0, h.cashbook.movements[1].Amount)

	// Credit voided and the journal entry reversed.
	require.NotNil(t, sale.CreditID)
	assert.Equal(t, []int64{*sale.CreditID}, h.credit.cancelled)
	require.NotNil(t, sale.JournalEntryID)
	assert.Equal(t, []int64{*sale.JournalEntryID}, h.ledger.reversed)

	byStep := h.followups.bySale(sale.ID)
	assert.Equal(t, FollowupDone, byStep[StepStockReversal].Status)
	assert.Equal(t, FollowupDone, byStep[StepCashReversal].Status)
	assert.Equal(t, FollowupDone, byStep[StepCreditCancel].Status)
	assert.Equal(t, FollowupDone, byStep[StepLedgerReversal].Status)
}

func TestCancelOnlyOnceWins(t *testing.T) {
	h := newHarness(t)

	sale, err := h.svc.Settle(context.Background(), cashRequest(238))
	require.NoError(t, err)

	_, err = h.svc.Cancel(context.Background(), 1, sale.ID, 1)
	require.NoError(t, err)

	_, err = h.svc.Cancel(context.Background(), 1, sale.ID, 1)
	require.ErrorIs(t, err, ErrInvalidStatus)

	// Inverse effects ran exactly once.
	assert.Equal(t, 10.0, h.stock.quantities[7])
}

func TestCancelSkipsReversalsForUnappliedSteps(t *testing.T) {
	h := newHarness(t)
	h.stock.adjustError = errors.New("stock store down")

	sale, err := h.svc.Settle(context.Background(), cashRequest(238))
	require.NoError(t, err)
	require.Equal(t, 10.0, h.stock.quantities[7], "failed stock step must not move quantity")

	h.stock.adjustError = nil
	cancelled, err := h.svc.Cancel(context.Background(), 1, sale.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// No restock for a decrement that never happened.
	assert.Equal(t, 10.0, h.stock.quantities[7])
	assert.Empty(t, h.stock.adjustments)

	byStep := h.followups.bySale(sale.ID)
	assert.Equal(t, FollowupSuperseded, byStep[StepStock].Status)
	_, hasStockReversal := byStep[StepStockReversal]
	assert.False(t, hasStockReversal)

	// Cash went in, so it comes back out, and the posted entry is reversed.
	assert.Equal(t, FollowupDone, byStep[StepCashReversal].Status)
	assert.Equal(t, FollowupDone, byStep[StepLedgerReversal].Status)

	// The voided step stays voided: nothing left for a re-drive pass.
	stats, err := h.svc.Redrive(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Claimed)
	assert.Equal(t, 10.0, h.stock.quantities[7])
}

func TestRedriveSkipsCancelledSaleLedgerStep(t *testing.T) {
	h := newHarness(t)
	h.ledger.postError = errors.New("ledger unavailable")

	sale, err := h.svc.Settle(context.Background(), cashRequest(238))
	require.NoError(t, err)
	require.Nil(t, sale.JournalEntryID)

	_, err = h.svc.Cancel(context.Background(), 1, sale.ID, 1)
	require.NoError(t, err)

	h.ledger.postError = nil
	stats, err := h.svc.Redrive(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Claimed, "voided steps are not claimable")

	// No entry for a cancelled sale, so nothing to reverse either.
	assert.Empty(t, h.ledger.posted)
	assert.Empty(t, h.ledger.reversed)
	stored, err := h.repo.Get(context.Background(), 1, sale.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.JournalEntryID)
	assert.Equal(t, FollowupSuperseded, h.followups.bySale(sale.ID)[StepLedger].Status)
}

func TestRedriveSkipsCancelledSaleCreditStep(t *testing.T) {
	h := newHarness(t)
	h.credit.extendError = errors.New("credit store down")

	req := cashRequest(100)
	req.CustomerID = 5
	sale, err := h.svc.Settle(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, sale.CreditID)

	_, err = h.svc.Cancel(context.Background(), 1, sale.ID, 1)
	require.NoError(t, err)

	h.credit.extendError = nil
	stats, err := h.svc.Redrive(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Claimed)
	assert.Empty(t, h.credit.extended, "no credit may be extended for a cancelled sale")
	assert.Equal(t, 1000.0, h.credit.available)
}

func TestExecuteStepForwardInertAfterCancel(t *testing.T) {
	h := newHarness(t)

	customerID := int64(5)
	sale := &Sale{
		ID: 1, CompanyID: 1, Number: "POS-2026-000009",
		Status:       StatusCancelled,
		CustomerID:   &customerID,
		CreditAmount: 100,
		Items:        []Item{{ProductID: 7, Quantity: 2, UnitPrice: 100}},
		Payments:     []Payment{{Method: ledger.InstrumentCash, Amount: 138}},
	}

	require.NoError(t, h.svc.ExecuteStep(context.Background(), sale, StepStock))
	require.NoError(t, h.svc.ExecuteStep(context.Background(), sale, StepCredit))
	require.NoError(t, h.svc.ExecuteStep(context.Background(), sale, StepCash))
	require.NoError(t, h.svc.ExecuteStep(context.Background(), sale, StepLedger))

	assert.Equal(t, 10.0, h.stock.quantities[7])
	assert.Empty(t, h.credit.extended)
	assert.Empty(t, h.cashbook.movements)
	assert.Empty(t, h.ledger.posted)
}

func TestCancelMissingSale(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Cancel(context.Background(), 1, 404, 1)
	require.ErrorIs(t, err, ErrSaleNotFound)
}

func TestExecuteStepSkipsWhenAlreadyLinked(t *testing.T) {
	h := newHarness(t)

	entryID, creditID := int64(77), int64(88)
	customerID := int64(5)
	sale := &Sale{
		ID: 1, CompanyID: 1, Number: "POS-2026-000009",
		Status:         StatusCompleted,
		CustomerID:     &customerID,
		CreditAmount:   100,
		JournalEntryID: &entryID,
		CreditID:       &creditID,
	}

	require.NoError(t, h.svc.ExecuteStep(context.Background(), sale, StepLedger))
	assert.Empty(t, h.ledger.posted, "linked entry means the step already ran")

	require.NoError(t, h.svc.ExecuteStep(context.Background(), sale, StepCredit))
	assert.Empty(t, h.credit.extended, "linked credit means the step already ran")
}

func TestExecuteStepCreditCancelSettledCredit(t *testing.T) {
	h := newHarness(t)
	h.credit.cancelError = fmt.Errorf("credit 88: %w", credit.ErrInvalidStatus)

	creditID := int64(88)
	sale := &Sale{ID: 1, CompanyID: 1, Number: "POS-2026-000009", Status: StatusCancelled, CreditID: &creditID}

	require.NoError(t, h.svc.ExecuteStep(context.Background(), sale, StepCreditCancel),
		"a fully paid credit has no remainder left to void")
	assert.Empty(t, h.credit.cancelled)
}

func TestExecuteStepLedgerReversalAlreadyReversed(t *testing.T) {
	h := newHarness(t)

	entryID := int64(77)
	sale := &Sale{ID: 1, CompanyID: 1, Number: "POS-2026-000009", JournalEntryID: &entryID}

	require.NoError(t, h.svc.ExecuteStep(context.Background(), sale, StepLedgerReversal))
	require.NoError(t, h.svc.ExecuteStep(context.Background(), sale, StepLedgerReversal),
		"a second reversal attempt is treated as already done")
	assert.Equal(t, []int64{entryID}, h.ledger.reversed)
}

func TestExecuteStepUnknown(t *testing.T) {
	h := newHarness(t)
	err := h.svc.ExecuteStep(context.Background(), &Sale{}, Step("mystery"))
	require.Error(t, err)
	assert.Equal(t, fmt.Sprintf("sales: unknown followup step %q", "mystery"), err.Error())
}
