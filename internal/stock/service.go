package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/vela-pos/vela-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Quantity(ctx context.Context, companyID, productID, variantID int64) (float64, error)
	ListMovements(ctx context.Context, companyID, productID int64, limit int) ([]Movement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns every mutation of stock quantities. No other component writes
// stock rows directly.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Adjust applies a signed delta to a stock row under a pessimistic write
// lock: the current quantity is read FOR UPDATE, the new quantity decided,
// and both the row and its movement audit written in the same transaction.
// A negative delta that would drive quantity below zero fails without
// mutating and reports the requested and available quantities.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (float64, error) {
	if input.Delta == 0 || input.Reason == "" {
		return 0, ErrInvalidDelta
	}
	if input.CompanyID == 0 || input.ProductID == 0 {
		return 0, errors.New("stock: company and product required")
	}

	var newQty float64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		record, err := tx.GetForUpdate(ctx, input.CompanyID, input.ProductID, input.VariantID)
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return err
		}
		newQty = record.Quantity + input.Delta
		if newQty < 0 {
			return &InsufficientStockError{
				ProductID: input.ProductID,
				VariantID: input.VariantID,
				Requested: -input.Delta,
				Available: record.Quantity,
			}
		}
		record.Quantity = newQty
		if err := tx.UpsertQuantity(ctx, record); err != nil {
			return err
		}
		return tx.InsertMovement(ctx, Movement{
			CompanyID:    input.CompanyID,
			ProductID:    input.ProductID,
			VariantID:    input.VariantID,
			Delta:        input.Delta,
			BalanceAfter: newQty,
			Reason:       input.Reason,
			RefModule:    input.RefModule,
			RefID:        input.RefID,
		})
	})
	if err != nil {
		return 0, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   fmt.Sprintf("stock:%s", input.Reason),
			Entity:   "stock_record",
			EntityID: fmt.Sprintf("%d:%d", input.ProductID, input.VariantID),
			Meta: map[string]any{
				"company_id": input.CompanyID,
				"delta":      input.Delta,
				"balance":    newQty,
				"ref_module": input.RefModule,
				"ref_id":     input.RefID,
			},
		})
	}
	return newQty, nil
}

// Quantity reads the current quantity without locking.
func (s *Service) Quantity(ctx context.Context, companyID, productID, variantID int64) (float64, error) {
	return s.repo.Quantity(ctx, companyID, productID, variantID)
}

// Movements lists the audit trail for a product.
func (s *Service) Movements(ctx context.Context, companyID, productID int64, limit int) ([]Movement, error) {
	return s.repo.ListMovements(ctx, companyID, productID, limit)
}
