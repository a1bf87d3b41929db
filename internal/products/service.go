package products

import (
	"context"

	"github.com/vela-pos/vela-pos/internal/sales"
)

// RepositoryPort abstracts catalog persistence.
type RepositoryPort interface {
	Create(ctx context.Context, p *Product) error
	GetForSale(ctx context.Context, companyID, productID, variantID int64) (Product, error)
	List(ctx context.Context, companyID int64, limit int) ([]Product, error)
}

// Service is the product catalog. It backs the settlement lookup with the
// cost and tax figures the client is never trusted to supply.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create adds a catalog row.
func (s *Service) Create(ctx context.Context, input CreateInput) (Product, error) {
	p := Product{
		CompanyID: input.CompanyID,
		SKU:       input.SKU,
		Name:      input.Name,
		UnitPrice: input.UnitPrice,
		UnitCost:  input.UnitCost,
		TaxRate:   input.TaxRate,
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Lookup resolves the settlement snapshot for one sold item.
func (s *Service) Lookup(ctx context.Context, companyID, productID, variantID int64) (sales.ProductInfo, error) {
	p, err := s.repo.GetForSale(ctx, companyID, productID, variantID)
	if err != nil {
		return sales.ProductInfo{}, err
	}
	return sales.ProductInfo{TaxRate: p.TaxRate, UnitCost: p.UnitCost}, nil
}

// List returns catalog rows ordered by SKU.
func (s *Service) List(ctx context.Context, companyID int64, limit int) ([]Product, error) {
	return s.repo.List(ctx, companyID, limit)
}
