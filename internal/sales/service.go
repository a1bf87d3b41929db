package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vela-pos/vela-pos/internal/cashbook"
	"github.com/vela-pos/vela-pos/internal/credit"
	"github.com/vela-pos/vela-pos/internal/ledger"
	"github.com/vela-pos/vela-pos/internal/shared"
	"github.com/vela-pos/vela-pos/internal/stock"
)

// RepositoryPort abstracts sale persistence for the orchestrator.
type RepositoryPort interface {
	WithSerializableTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, companyID, saleID int64) (*Sale, error)
	List(ctx context.Context, companyID int64, limit, offset int) ([]Sale, error)
	SetStatus(ctx context.Context, saleID int64, from, to Status) error
	SetJournalEntry(ctx context.Context, saleID, entryID int64) error
	SetCredit(ctx context.Context, saleID, creditID int64) error
}

// FollowupPort abstracts the post-commit step log.
type FollowupPort interface {
	Insert(ctx context.Context, f *Followup) error
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, stepErr error, maxAttempts int) error
	ClaimRetryable(ctx context.Context, limit, maxAttempts int) ([]Followup, error)
	ListBySale(ctx context.Context, saleID int64) ([]Followup, error)
	SupersedeForward(ctx context.Context, saleID int64) error
}

// StockPort is the slice of the stock service the orchestrator uses.
type StockPort interface {
	Quantity(ctx context.Context, companyID, productID, variantID int64) (float64, error)
	Adjust(ctx context.Context, input stock.AdjustInput) (float64, error)
}

// CreditPort is the slice of the credit service the orchestrator uses.
type CreditPort interface {
	Available(ctx context.Context, companyID, customerID int64) (float64, error)
	Extend(ctx context.Context, input credit.ExtendInput) (credit.CustomerCredit, error)
	Cancel(ctx context.Context, companyID, creditID int64) error
}

// LedgerPort posts and reverses journal entries.
type LedgerPort interface {
	Post(ctx context.Context, input ledger.PostingInput) (ledger.JournalEntry, error)
	Reverse(ctx context.Context, companyID int64, input ledger.ReverseInput) (ledger.JournalEntry, error)
}

// CashbookPort registers physical money movements.
type CashbookPort interface {
	Register(ctx context.Context, m cashbook.Movement) (cashbook.Movement, error)
}

// ProductLookup supplies tax rate and cost snapshot per sold item.
type ProductLookup interface {
	Lookup(ctx context.Context, companyID, productID, variantID int64) (ProductInfo, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts settlement outcomes and follow-up step results.
type MetricsPort interface {
	CountSettlement(outcome string)
	CountFollowupStep(step, outcome string)
}

// Service is the sale settlement orchestrator. The sale record is the system
// of record: once its transaction commits, downstream effects (stock, credit,
// cash, ledger) run as individually logged steps whose failure degrades the
// sale with a warning instead of rolling it back.
type Service struct {
	repo        RepositoryPort
	followups   FollowupPort
	stock       StockPort
	credit      CreditPort
	cashbook    CashbookPort
	ledger      LedgerPort
	products    ProductLookup
	audit       AuditPort
	metrics     MetricsPort
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// NewService builds the orchestrator.
func NewService(
	repo RepositoryPort,
	followups FollowupPort,
	stockSvc StockPort,
	creditSvc CreditPort,
	cashbookSvc CashbookPort,
	ledgerSvc LedgerPort,
	products ProductLookup,
	audit AuditPort,
	metrics MetricsPort,
	logger *slog.Logger,
	maxAttempts int,
) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Service{
		repo:        repo,
		followups:   followups,
		stock:       stockSvc,
		credit:      creditSvc,
		cashbook:    cashbookSvc,
		ledger:      ledgerSvc,
		products:    products,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Settle prices, validates and commits a sale, then applies its side effects.
//
// Validation happens before any write: every item must be coverable by
// current stock and an unpaid remainder must fit the customer's credit
// headroom. The sale row, its items, its payments and its document number are
// then written in one serializable transaction. Side effects run after the
// commit; each is recorded as a followup and a failing one leaves a warning
// on the returned sale, never an error.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*Sale, error) {
	date := req.Date
	if date.IsZero() {
		date = s.now()
	}

	infos := make([]ProductInfo, 0, len(req.Items))
	for _, item := range req.Items {
		info, err := s.products.Lookup(ctx, req.CompanyID, item.ProductID, item.VariantID)
		if err != nil {
			return nil, fmt.Errorf("lookup product %d: %w", item.ProductID, err)
		}
		infos = append(infos, info)
	}
	p, err := buildPlan(req, infos)
	if err != nil {
		return nil, err
	}
	if p.credit > 0 && req.CustomerID == 0 {
		return nil, ErrCustomerRequired
	}

	if err := s.precheck(ctx, req, p); err != nil {
		return nil, err
	}

	sale := &Sale{
		CompanyID:    req.CompanyID,
		Status:       StatusPending,
		Date:         date,
		Subtotal:     p.subtotal,
		Discount:     p.discount,
		Tax:          p.tax,
		Total:        p.total,
		PaidAmount:   p.paid,
		CreditAmount: p.credit,
		SourceID:     uuid.New(),
		Items:        p.items,
		Payments:     p.payments,
	}
	if req.CustomerID != 0 {
		customerID := req.CustomerID
		sale.CustomerID = &customerID
	}
	if p.credit > 0 {
		sale.CreditDueDate = req.DueDate
	}

	err = s.repo.WithSerializableTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSaleSeq(ctx, req.CompanyID, date.Year())
		if err != nil {
			return fmt.Errorf("allocate sale number: %w", err)
		}
		sale.Seq = seq
		sale.Number = shared.FormatDocNumber(shared.DocTypeSale, date.Year(), seq)
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, sale.ID, sale.Items); err != nil {
			return err
		}
		if err := tx.InsertPayments(ctx, sale.ID, sale.Payments); err != nil {
			return err
		}
		return tx.SetStatus(ctx, sale.ID, StatusPending, StatusCompleted)
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.CountSettlement("rejected")
		}
		return nil, err
	}
	sale.Status = StatusCompleted

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  req.ActorID,
			Action:   "sale.settle",
			Entity:   "sale",
			EntityID: fmt.Sprintf("%d", sale.ID),
			Meta: map[string]any{
				"number": sale.Number,
				"total":  sale.Total,
				"paid":   sale.PaidAmount,
				"credit": sale.CreditAmount,
			},
			At: s.now(),
		})
	}
	if s.metrics != nil {
		s.metrics.CountSettlement("completed")
	}

	s.runSteps(ctx, sale, settleSteps(p))
	return sale, nil
}

// precheck fails the request fast on conditions that would also fail the
// post-commit steps. The authoritative checks still run under locks inside
// those steps.
func (s *Service) precheck(ctx context.Context, req SettleRequest, p plan) error {
	for _, item := range p.items {
		available, err := s.stock.Quantity(ctx, req.CompanyID, item.ProductID, item.VariantID)
		if err != nil {
			return fmt.Errorf("check stock for product %d: %w", item.ProductID, err)
		}
		if available < item.Quantity {
			return &stock.InsufficientStockError{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Requested: item.Quantity,
				Available: available,
			}
		}
	}
	if p.credit > 0 {
		available, err := s.credit.Available(ctx, req.CompanyID, req.CustomerID)
		if err != nil {
			return fmt.Errorf("check credit for customer %d: %w", req.CustomerID, err)
		}
		if available+shared.AmountEpsilon < p.credit {
			return &credit.LimitExceededError{
				CustomerID: req.CustomerID,
				Requested:  p.credit,
				Limit:      available,
			}
		}
	}
	return nil
}

func settleSteps(p plan) []Step {
	steps := []Step{StepStock}
	if p.credit > 0 {
		steps = append(steps, StepCredit)
	}
	if p.paid > 0 {
		steps = append(steps, StepCash)
	}
	steps = append(steps, StepLedger)
	return steps
}

// Cancel voids a COMPLETED sale. The status flip is guarded so only one
// caller wins; the inverse effects (stock back in, money back out, credit
// voided, journal reversed) then run as followup steps like settlement's.
func (s *Service) Cancel(ctx context.Context, companyID, saleID, actorID int64) (*Sale, error) {
	sale, err := s.repo.Get(ctx, companyID, saleID)
	if err != nil {
		return nil, err
	}
	forward, err := s.followups.ListBySale(ctx, sale.ID)
	if err != nil {
		return nil, fmt.Errorf("load settlement followups: %w", err)
	}
	if err := s.repo.SetStatus(ctx, sale.ID, StatusCompleted, StatusCancelled); err != nil {
		return nil, err
	}
	sale.Status = StatusCancelled

	// Forward steps that never ran must stay that way: void their rows so a
	// re-drive pass cannot apply settlement effects to a cancelled sale.
	if err := s.followups.SupersedeForward(ctx, sale.ID); err != nil {
		s.logger.Error("supersede settlement followups",
			slog.Int64("sale_id", sale.ID),
			slog.Any("error", err))
		sale.Warnings = append(sale.Warnings, fmt.Sprintf("forward steps not voided: %v", err))
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "sale.cancel",
			Entity:   "sale",
			EntityID: fmt.Sprintf("%d", sale.ID),
			Meta:     map[string]any{"number": sale.Number},
			At:       s.now(),
		})
	}
	if s.metrics != nil {
		s.metrics.CountSettlement("cancelled")
	}

	// Only applied effects get an inverse. Stock and cash completion is read
	// from the step log; credit and ledger from the links on the sale row,
	// which are set only after their step succeeded.
	applied := make(map[Step]bool, len(forward))
	for _, f := range forward {
		if f.Status == FollowupDone {
			applied[f.Step] = true
		}
	}
	var steps []Step
	if applied[StepStock] {
		steps = append(steps, StepStockReversal)
	}
	if applied[StepCash] {
		steps = append(steps, StepCashReversal)
	}
	if sale.CreditID != nil {
		steps = append(steps, StepCreditCancel)
	}
	if sale.JournalEntryID != nil {
		steps = append(steps, StepLedgerReversal)
	}
	s.runSteps(ctx, sale, steps)
	return sale, nil
}

// Get loads a sale with its items and payments.
func (s *Service) Get(ctx context.Context, companyID, saleID int64) (*Sale, error) {
	return s.repo.Get(ctx, companyID, saleID)
}

// List returns recent sales for a company.
func (s *Service) List(ctx context.Context, companyID int64, limit, offset int) ([]Sale, error) {
	return s.repo.List(ctx, companyID, limit, offset)
}

// Followups lists the post-commit step log for a sale.
func (s *Service) Followups(ctx context.Context, saleID int64) ([]Followup, error) {
	return s.followups.ListBySale(ctx, saleID)
}

// runSteps executes each post-commit step, recording it as a followup first
// so nothing is lost if the process dies mid-way. A failed step is logged and
// surfaces as a warning on the sale.
func (s *Service) runSteps(ctx context.Context, sale *Sale, steps []Step) {
	for _, step := range steps {
		f := &Followup{CompanyID: sale.CompanyID, SaleID: sale.ID, Step: step}
		if err := s.followups.Insert(ctx, f); err != nil {
			s.logger.Error("record settlement followup",
				slog.Int64("sale_id", sale.ID),
				slog.String("step", string(step)),
				slog.Any("error", err))
			sale.Warnings = append(sale.Warnings, fmt.Sprintf("%s: step not recorded: %v", step, err))
			continue
		}
		if err := s.ExecuteStep(ctx, sale, step); err != nil {
			s.logger.Warn("settlement followup step failed",
				slog.Int64("sale_id", sale.ID),
				slog.String("number", sale.Number),
				slog.String("step", string(step)),
				slog.Any("error", err))
			_ = s.followups.MarkFailed(ctx, f.ID, err, s.maxAttempts)
			if s.metrics != nil {
				s.metrics.CountFollowupStep(string(step), "failed")
			}
			sale.Warnings = append(sale.Warnings, fmt.Sprintf("%s: %v", step, err))
			continue
		}
		_ = s.followups.MarkDone(ctx, f.ID)
		if s.metrics != nil {
			s.metrics.CountFollowupStep(string(step), "done")
		}
	}
}

// ExecuteStep applies one post-commit effect for a sale. Steps are written to
// be safe to re-run: the credit and ledger steps skip when their link is
// already set on the sale row, and forward steps are inert once the sale has
// left COMPLETED.
func (s *Service) ExecuteStep(ctx context.Context, sale *Sale, step Step) error {
	if step.IsForward() && sale.Status != StatusCompleted {
		return nil
	}
	switch step {
	case StepStock:
		return s.adjustStock(ctx, sale, -1, stock.ReasonSale)
	case StepStockReversal:
		return s.adjustStock(ctx, sale, 1, stock.ReasonSaleCancel)
	case StepCredit:
		return s.extendCredit(ctx, sale)
	case StepCreditCancel:
		if sale.CreditID == nil {
			return nil
		}
		err := s.credit.Cancel(ctx, sale.CompanyID, *sale.CreditID)
		if errors.Is(err, credit.ErrInvalidStatus) {
			// Fully paid credit: there is no unpaid remainder left to void.
			return nil
		}
		return err
	case StepCash:
		return s.registerPayments(ctx, sale, cashbook.DirectionIn)
	case StepCashReversal:
		return s.registerPayments(ctx, sale, cashbook.DirectionOut)
	case StepLedger:
		return s.postEntry(ctx, sale)
	case StepLedgerReversal:
		if sale.JournalEntryID == nil {
			return nil
		}
		_, err := s.ledger.Reverse(ctx, sale.CompanyID, ledger.ReverseInput{
			EntryID:     *sale.JournalEntryID,
			Description: fmt.Sprintf("Cancellation of %s", sale.Number),
		})
		if errors.Is(err, ledger.ErrInvalidStatus) {
			// Already reversed by an earlier attempt.
			return nil
		}
		return err
	default:
		return fmt.Errorf("sales: unknown followup step %q", step)
	}
}

func (s *Service) adjustStock(ctx context.Context, sale *Sale, sign float64, reason stock.Reason) error {
	for _, item := range sale.Items {
		_, err := s.stock.Adjust(ctx, stock.AdjustInput{
			CompanyID: sale.CompanyID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Delta:     sign * item.Quantity,
			Reason:    reason,
			RefModule: "sales",
			RefID:     sale.SourceID.String(),
		})
		if err != nil {
			return fmt.Errorf("adjust stock for product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

func (s *Service) extendCredit(ctx context.Context, sale *Sale) error {
	if sale.CreditID != nil || sale.CreditAmount <= 0 {
		return nil
	}
	if sale.CustomerID == nil {
		return ErrCustomerRequired
	}
	created, err := s.credit.Extend(ctx, credit.ExtendInput{
		CompanyID:  sale.CompanyID,
		CustomerID: *sale.CustomerID,
		Amount:     sale.CreditAmount,
		DueDate:    sale.CreditDueDate,
		RefModule:  "sales",
		RefID:      sale.Number,
	})
	if err != nil {
		return err
	}
	creditID := created.ID
	sale.CreditID = &creditID
	return s.repo.SetCredit(ctx, sale.ID, created.ID)
}

func (s *Service) registerPayments(ctx context.Context, sale *Sale, dir cashbook.Direction) error {
	for _, pay := range sale.Payments {
		_, err := s.cashbook.Register(ctx, cashbook.Movement{
			CompanyID:  sale.CompanyID,
			Instrument: pay.Method,
			Direction:  dir,
			Amount:     pay.Amount,
			Memo:       fmt.Sprintf("Sale %s", sale.Number),
			RefModule:  "sales",
			RefID:      sale.Number,
			OccurredAt: sale.Date,
		})
		if err != nil {
			return fmt.Errorf("register %s payment: %w", pay.Method, err)
		}
	}
	return nil
}

func (s *Service) postEntry(ctx context.Context, sale *Sale) error {
	if sale.JournalEntryID != nil {
		return nil
	}
	var cashPaid, bankPaid float64
	for _, pay := range sale.Payments {
		switch pay.Method {
		case ledger.InstrumentCash:
			cashPaid += pay.Amount
		case ledger.InstrumentBank:
			bankPaid += pay.Amount
		}
	}
	entry, err := s.ledger.Post(ctx, ledger.PostingInput{
		CompanyID:    sale.CompanyID,
		Type:         ledger.EntryTypeSale,
		Date:         sale.Date,
		Description:  fmt.Sprintf("Sale %s", sale.Number),
		SourceModule: "sales",
		SourceID:     sale.SourceID,
		Lines: ledger.SaleEntryLines(ledger.SaleAmounts{
			CashPaid:       cashPaid,
			BankPaid:       bankPaid,
			CreditExtended: sale.CreditAmount,
			Income:         sale.Subtotal - sale.Discount,
			Tax:            sale.Tax,
			Cost:           costTotal(sale.Items),
		}),
	})
	if err != nil {
		return err
	}
	entryID := entry.ID
	sale.JournalEntryID = &entryID
	return s.repo.SetJournalEntry(ctx, sale.ID, entry.ID)
}

// RedriveStats summarises one re-drive pass over failed followups.
type RedriveStats struct {
	Claimed int
	Done    int
	Failed  int
}

// Redrive claims failed followups and retries their steps concurrently.
// Claiming uses SKIP LOCKED, so overlapping passes never retry the same row.
func (s *Service) Redrive(ctx context.Context, limit int) (RedriveStats, error) {
	claimed, err := s.followups.ClaimRetryable(ctx, limit, s.maxAttempts)
	if err != nil {
		return RedriveStats{}, err
	}

	var mu sync.Mutex
	stats := RedriveStats{Claimed: len(claimed)}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, f := range claimed {
		g.Go(func() error {
			sale, err := s.repo.Get(ctx, f.CompanyID, f.SaleID)
			if err == nil {
				err = s.ExecuteStep(ctx, sale, f.Step)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				_ = s.followups.MarkFailed(ctx, f.ID, err, s.maxAttempts)
				if s.metrics != nil {
					s.metrics.CountFollowupStep(string(f.Step), "failed")
				}
				s.logger.Warn("followup redrive step failed",
					slog.Int64("followup_id", f.ID),
					slog.Int64("sale_id", f.SaleID),
					slog.String("step", string(f.Step)),
					slog.Int("attempts", f.Attempts+1),
					slog.Any("error", err))
				stats.Failed++
				return nil
			}
			_ = s.followups.MarkDone(ctx, f.ID)
			if s.metrics != nil {
				s.metrics.CountFollowupStep(string(f.Step), "done")
			}
			stats.Done++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}
