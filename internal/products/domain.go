package products

import (
	"errors"
	"time"
)

// Product is one sellable catalog row. Cost and tax rate feed the sale
// settlement snapshot; the client never supplies them.
type Product struct {
	ID        int64
	CompanyID int64
	SKU       string
	Name      string
	UnitPrice float64
	UnitCost  float64
	TaxRate   float64
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Variant overrides price and cost for one variation of a product.
type Variant struct {
	ID        int64
	ProductID int64
	Name      string
	UnitPrice *float64
	UnitCost  *float64
	CreatedAt time.Time
}

// CreateInput describes a new catalog row.
type CreateInput struct {
	CompanyID int64   `json:"company_id" validate:"required"`
	SKU       string  `json:"sku" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	UnitPrice float64 `json:"unit_price" validate:"required,gt=0"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
	TaxRate   float64 `json:"tax_rate" validate:"gte=0,lte=1"`
}

var (
	// ErrProductNotFound indicates a missing or inactive product.
	ErrProductNotFound = errors.New("products: product not found")
	// ErrDuplicateSKU indicates an SKU collision within the company.
	ErrDuplicateSKU = errors.New("products: duplicate sku")
)
