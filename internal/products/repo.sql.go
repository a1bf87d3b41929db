package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vela-pos/vela-pos/internal/platform/db"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, p *Product) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (company_id, sku, name, unit_price, unit_cost, tax_rate, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,TRUE,NOW(),NOW())
		RETURNING id, active, created_at, updated_at`,
		p.CompanyID, p.SKU, p.Name, toNumeric(p.UnitPrice), toNumeric(p.UnitCost), p.TaxRate,
	).Scan(&p.ID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "products_company_sku_key") {
			return ErrDuplicateSKU
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetForSale resolves the effective price, cost and tax rate for a product,
// applying variant overrides when a variant is named. VariantID zero means
// the base product.
func (r *Repository) GetForSale(ctx context.Context, companyID, productID, variantID int64) (Product, error) {
	var p Product
	var err error
	if variantID == 0 {
		err = r.pool.QueryRow(ctx, `
			SELECT id, company_id, sku, name, unit_price, unit_cost, tax_rate, active, created_at, updated_at
			FROM products
			WHERE id = $1 AND company_id = $2 AND active`,
			productID, companyID,
		).Scan(&p.ID, &p.CompanyID, &p.SKU, &p.Name, &p.UnitPrice, &p.UnitCost,
			&p.TaxRate, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	} else {
		err = r.pool.QueryRow(ctx, `
			SELECT p.id, p.company_id, p.sku, p.name,
			       COALESCE(v.unit_price, p.unit_price),
			       COALESCE(v.unit_cost, p.unit_cost),
			       p.tax_rate, p.active, p.created_at, p.updated_at
			FROM products p
			JOIN product_variants v ON v.product_id = p.id
			WHERE p.id = $1 AND p.company_id = $2 AND v.id = $3 AND p.active`,
			productID, companyID, variantID,
		).Scan(&p.ID, &p.CompanyID, &p.SKU, &p.Name, &p.UnitPrice, &p.UnitCost,
			&p.TaxRate, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *Repository) List(ctx context.Context, companyID int64, limit int) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, sku, name, unit_price, unit_cost, tax_rate, active, created_at, updated_at
		FROM products
		WHERE company_id = $1
		ORDER BY sku
		LIMIT $2`,
		companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.SKU, &p.Name, &p.UnitPrice,
			&p.UnitCost, &p.TaxRate, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func toNumeric(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
