package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/vela-pos/vela-pos/internal/shared"
)

// Reason classes for stock movements. A positive delta with the reversing
// class undoes a prior negative one under the same locking discipline.
type Reason string

const (
	ReasonSale       Reason = "SALE"
	ReasonSaleCancel Reason = "SALE_CANCEL"
	ReasonPurchase   Reason = "PURCHASE"
	ReasonAdjustment Reason = "ADJUSTMENT"
	ReasonReturn     Reason = "RETURN"
)

// Record is the per-product-variant quantity row. VariantID zero means the
// product has no variants.
type Record struct {
	CompanyID int64
	ProductID int64
	VariantID int64
	Quantity  float64
	UpdatedAt time.Time
}

// Movement is the audit row written for every locked adjustment.
type Movement struct {
	ID           int64
	CompanyID    int64
	ProductID    int64
	VariantID    int64
	Delta        float64
	BalanceAfter float64
	Reason       Reason
	RefModule    string
	RefID        string
	CreatedAt    time.Time
}

// AdjustInput describes one locked read-modify-write against a stock row.
type AdjustInput struct {
	CompanyID int64
	ProductID int64
	VariantID int64
	Delta     float64
	Reason    Reason
	RefModule string
	RefID     string
}

// ErrInsufficientStock is the sentinel wrapped by InsufficientStockError.
var ErrInsufficientStock = errors.New("stock: insufficient stock")

// ErrInvalidDelta indicates a zero delta or missing reason.
var ErrInvalidDelta = errors.New("stock: invalid adjustment")

// InsufficientStockError carries the quantities the caller needs to build a
// user-facing message.
type InsufficientStockError struct {
	ProductID int64
	VariantID int64
	Requested float64
	Available float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %s, requested %s",
		shared.FormatQuantity(e.Available), shared.FormatQuantity(e.Requested))
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
