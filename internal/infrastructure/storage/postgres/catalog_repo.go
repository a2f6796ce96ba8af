package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/domain/catalog"
)

const (
	productsTable  = "products"
	suppliersTable = "suppliers"
)

var productColumns = []string{
	"id", "sku", "name", "category_id", "unit", "active", "low_stock_threshold",
}

// CatalogRepo implements catalog.Gateway over the local catalog tables.
type CatalogRepo struct {
	txManager *TxManager
	builder   squirrel.StatementBuilderType
}

// NewCatalogRepo creates a new catalog repository.
func NewCatalogRepo(txManager *TxManager) *CatalogRepo {
	return &CatalogRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetProduct returns a product by id.
func (r *CatalogRepo) GetProduct(ctx context.Context, productID id.ID) (catalog.Product, error) {
	q := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": productID})

	sql, args, err := q.ToSql()
	if err != nil {
		return catalog.Product{}, fmt.Errorf("build query: %w", err)
	}

	var product catalog.Product
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &product, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return catalog.Product{}, apperror.NewNotFound("product", productID.String())
		}
		return catalog.Product{}, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// GetProducts returns products for a set of ids. Missing ids are simply
// absent from the map; callers decide whether that is an error.
func (r *CatalogRepo) GetProducts(ctx context.Context, productIDs []id.ID) (map[id.ID]catalog.Product, error) {
	if len(productIDs) == 0 {
		return map[id.ID]catalog.Product{}, nil
	}

	q := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": productIDs})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var products []catalog.Product
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}

	result := make(map[id.ID]catalog.Product, len(products))
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

// GetSupplier returns a supplier by id.
func (r *CatalogRepo) GetSupplier(ctx context.Context, supplierID id.ID) (catalog.Supplier, error) {
	q := r.builder.Select("id", "name", "active").
		From(suppliersTable).
		Where(squirrel.Eq{"id": supplierID})

	sql, args, err := q.ToSql()
	if err != nil {
		return catalog.Supplier{}, fmt.Errorf("build query: %w", err)
	}

	var supplier catalog.Supplier
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &supplier, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return catalog.Supplier{}, apperror.NewNotFound("supplier", supplierID.String())
		}
		return catalog.Supplier{}, fmt.Errorf("get supplier: %w", err)
	}
	return supplier, nil
}

// ListActiveProducts pages through active products.
func (r *CatalogRepo) ListActiveProducts(ctx context.Context, limit, offset int) ([]catalog.Product, error) {
	q := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"active": true}).
		OrderBy("sku")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var products []catalog.Product
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return products, nil
}

// Ensure interface compliance.
var _ catalog.Gateway = (*CatalogRepo)(nil)
