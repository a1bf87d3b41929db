package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vela-pos/vela-pos/internal/accounts"
	"github.com/vela-pos/vela-pos/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, companyID, entryID int64) (JournalEntry, error)
	ListEntries(ctx context.Context, companyID int64, limit int) ([]JournalEntry, error)
}

// DirectoryPort resolves stable account codes.
type DirectoryPort interface {
	ResolveActive(ctx context.Context, companyID int64, code string) (accounts.Account, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates posting and reversing journal entries.
type Service struct {
	repo      RepositoryPort
	directory DirectoryPort
	audit     AuditPort
	now       func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, directory DirectoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, directory: directory, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and persists a new CONFIRMED journal entry. The sequence draw
// and the entry write share one transaction, so concurrent posts can never
// produce a duplicate number. On any failure nothing is written.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}

	lines := make([]Line, 0, len(input.Lines))
	for idx, in := range input.Lines {
		account, err := s.directory.ResolveActive(ctx, input.CompanyID, in.AccountCode)
		if err != nil {
			return JournalEntry{}, fmt.Errorf("resolve line %d (%s): %w", idx, in.AccountCode, err)
		}
		lines = append(lines, Line{
			AccountID:   account.ID,
			AccountCode: account.Code,
			Movement:    in.Movement,
			Amount:      in.Amount,
			LineOrder:   idx + 1,
		})
	}

	debit, credit := input.Totals()
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextEntrySeq(ctx, input.CompanyID, input.Date.Year())
		if err != nil {
			return fmt.Errorf("allocate entry number: %w", err)
		}
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			CompanyID:    input.CompanyID,
			Number:       shared.FormatDocNumber(shared.DocTypeJournalEntry, input.Date.Year(), seq),
			Seq:          seq,
			Date:         input.Date,
			Type:         input.Type,
			Status:       EntryStatusConfirmed,
			Description:  input.Description,
			TotalDebit:   debit,
			TotalCredit:  credit,
			SourceModule: input.SourceModule,
			SourceID:     input.SourceID,
		})
		if err != nil {
			return err
		}
		for i := range lines {
			lines[i].EntryID = inserted.ID
		}
		if err := tx.InsertLines(ctx, inserted.ID, lines); err != nil {
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "ledger.post",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"number":        entry.Number,
				"type":          string(entry.Type),
				"source_module": input.SourceModule,
				"source_id":     input.SourceID.String(),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// Reverse cancels a CONFIRMED entry by posting a new entry with every line's
// movement flipped, referencing the original, and marking the original
// CANCELLED with a pointer to the reversal. The original's lines are never
// rewritten.
func (s *Service) Reverse(ctx context.Context, companyID int64, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryWithLines(ctx, companyID, input.EntryID)
		if err != nil {
			return err
		}
		if original.Status != EntryStatusConfirmed {
			return ErrInvalidStatus
		}
		if err := verifyStoredBalance(original); err != nil {
			return err
		}

		year := s.now().Year()
		seq, err := tx.NextEntrySeq(ctx, companyID, year)
		if err != nil {
			return fmt.Errorf("allocate entry number: %w", err)
		}
		originalID := original.ID
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			CompanyID:    companyID,
			Number:       shared.FormatDocNumber(shared.DocTypeJournalEntry, year, seq),
			Seq:          seq,
			Date:         s.now(),
			Type:         EntryTypeReversal,
			Status:       EntryStatusConfirmed,
			Description:  reversalDescription(input.Description, original.Number),
			TotalDebit:   original.TotalCredit,
			TotalCredit:  original.TotalDebit,
			SourceModule: original.SourceModule + ":REVERSAL",
			SourceID:     uuid.New(),
			ReversalOf:   &originalID,
		})
		if err != nil {
			return err
		}
		flipped := flipLines(inserted.ID, original.Lines)
		if err := tx.InsertLines(ctx, inserted.ID, flipped); err != nil {
			return err
		}
		if err := tx.MarkCancelled(ctx, original.ID, inserted.ID); err != nil {
			return err
		}
		inserted.Lines = flipped
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "ledger.reverse",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", input.EntryID),
			Meta: map[string]any{
				"reversal_id":     reversal.ID,
				"reversal_number": reversal.Number,
			},
			At: s.now(),
		})
	}
	return reversal, nil
}

// Get loads an entry with its lines, verifying the stored balance invariant.
func (s *Service) Get(ctx context.Context, companyID, entryID int64) (JournalEntry, error) {
	entry, err := s.repo.GetEntry(ctx, companyID, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := verifyStoredBalance(entry); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// List returns recent entries for a company.
func (s *Service) List(ctx context.Context, companyID int64, limit int) ([]JournalEntry, error) {
	return s.repo.ListEntries(ctx, companyID, limit)
}

// verifyStoredBalance re-checks the debit=credit invariant on a hydrated
// entry. A violation means the store was corrupted outside this engine;
// processing of the entry must stop.
func verifyStoredBalance(entry JournalEntry) error {
	if entry.Status == EntryStatusCancelled {
		return nil
	}
	var debit, credit float64
	for _, line := range entry.Lines {
		if line.Movement == MovementDebit {
			debit += line.Amount
		} else {
			credit += line.Amount
		}
	}
	if len(entry.Lines) == 0 {
		debit, credit = entry.TotalDebit, entry.TotalCredit
	}
	if math.Abs(debit-credit) >= shared.AmountEpsilon {
		return fmt.Errorf("%w: entry %s debits %s credits %s", ErrEntryCorrupted, entry.Number, shared.FormatAmount(debit), shared.FormatAmount(credit))
	}
	return nil
}

func flipLines(entryID int64, lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for idx, line := range lines {
		out = append(out, Line{
			EntryID:     entryID,
			AccountID:   line.AccountID,
			AccountCode: line.AccountCode,
			Movement:    line.Movement.Flip(),
			Amount:      line.Amount,
			LineOrder:   idx + 1,
		})
	}
	return out
}

func reversalDescription(desc, number string) string {
	if desc != "" {
		return desc
	}
	return fmt.Sprintf("Reversal of %s", number)
}
