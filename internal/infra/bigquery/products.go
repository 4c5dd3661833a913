package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/receipt-tracker/internal/resolver"
)

// ProductRow represents a canonical product record in BigQuery.
type ProductRow struct {
	ProductID      string    `bigquery:"product_id"`
	NormalizedKey  string    `bigquery:"normalized_key"`
	NormalizedName string    `bigquery:"normalized_name"`
	Brand          string    `bigquery:"brand"`
	IsVerified     bool      `bigquery:"is_verified"`
	CreatedTS      time.Time `bigquery:"created_ts"`
}

// ProductAliasRow pins a normalized alias key to a product.
type ProductAliasRow struct {
	AliasID   string    `bigquery:"alias_id"`
	RawKey    string    `bigquery:"raw_key"`
	ProductID string    `bigquery:"product_id"`
	CreatedTS time.Time `bigquery:"created_ts"`
}

// productJoinRow is what alias and key lookups project the product into.
type productJoinRow struct {
	ProductID      string `bigquery:"product_id"`
	NormalizedName string `bigquery:"normalized_name"`
	Brand          string `bigquery:"brand"`
	IsVerified     bool   `bigquery:"is_verified"`
}

func (p *productJoinRow) toDomain() *resolver.Product {
	return &resolver.Product{
		ID:             p.ProductID,
		NormalizedName: p.NormalizedName,
		Brand:          p.Brand,
		IsVerified:     p.IsVerified,
	}
}

// FindProductByAliasWithClient returns the product pinned to the given
// normalized alias key, or nil when no alias exists.
func FindProductByAliasWithClient(ctx context.Context, client *bigquery.Client, key string) (*resolver.Product, error) {
	q := client.Query(`
		SELECT
			p.product_id,
			p.normalized_name,
			p.brand,
			p.is_verified
		FROM ` + tableRef(productAliasesTable) + ` a
		JOIN ` + tableRef(productsTable) + ` p ON a.product_id = p.product_id
		WHERE a.raw_key = @raw_key
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "raw_key", Value: key},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindProductByAliasWithClient: reading query: %w", err)
	}

	var row productJoinRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindProductByAliasWithClient: iterating: %w", err)
	}

	return row.toDomain(), nil
}

// FindProductByKeyWithClient returns the product with the given normalized
// key, or nil when none exists.
func FindProductByKeyWithClient(ctx context.Context, client *bigquery.Client, normalizedKey string) (*resolver.Product, error) {
	q := client.Query(`
		SELECT
			product_id,
			normalized_name,
			brand,
			is_verified
		FROM ` + tableRef(productsTable) + `
		WHERE normalized_key = @normalized_key
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "normalized_key", Value: normalizedKey},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindProductByKeyWithClient: reading query: %w", err)
	}

	var row productJoinRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindProductByKeyWithClient: iterating: %w", err)
	}

	return row.toDomain(), nil
}

// UpsertProductWithClient inserts a product for the normalized key if none
// exists yet and returns the winning row. A single MERGE makes the insert
// atomic, so concurrent writers of the same key converge on one product and
// an existing product's name and brand are never overwritten.
func UpsertProductWithClient(ctx context.Context, client *bigquery.Client, p resolver.UpsertParams) (*resolver.Product, error) {
	q := client.Query(`
		MERGE ` + tableRef(productsTable) + ` T
		USING (
			SELECT
				@product_id AS product_id,
				@normalized_key AS normalized_key,
				@normalized_name AS normalized_name,
				@brand AS brand
		) S
		ON T.normalized_key = S.normalized_key
		WHEN NOT MATCHED THEN
			INSERT (product_id, normalized_key, normalized_name, brand, is_verified, created_ts)
			VALUES (S.product_id, S.normalized_key, S.normalized_name, S.brand, FALSE, CURRENT_TIMESTAMP())
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "product_id", Value: uuid.NewString()},
		{Name: "normalized_key", Value: p.NormalizedKey},
		{Name: "normalized_name", Value: p.NormalizedName},
		{Name: "brand", Value: p.Brand},
	}

	if err := runDML(ctx, q); err != nil {
		return nil, fmt.Errorf("UpsertProductWithClient: merging product: %w", err)
	}

	product, err := FindProductByKeyWithClient(ctx, client, p.NormalizedKey)
	if err != nil {
		return nil, fmt.Errorf("UpsertProductWithClient: reading back product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("UpsertProductWithClient: product %q missing after merge", p.NormalizedKey)
	}

	return product, nil
}

// CreateProductAliasWithClient pins an alias key to a product. Re-pinning an
// existing key moves it to the new product.
func CreateProductAliasWithClient(ctx context.Context, client *bigquery.Client, rawKey, productID string) error {
	q := client.Query(`
		MERGE ` + tableRef(productAliasesTable) + ` T
		USING (
			SELECT
				@alias_id AS alias_id,
				@raw_key AS raw_key,
				@product_id AS product_id
		) S
		ON T.raw_key = S.raw_key
		WHEN MATCHED THEN
			UPDATE SET product_id = S.product_id
		WHEN NOT MATCHED THEN
			INSERT (alias_id, raw_key, product_id, created_ts)
			VALUES (S.alias_id, S.raw_key, S.product_id, CURRENT_TIMESTAMP())
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "alias_id", Value: uuid.NewString()},
		{Name: "raw_key", Value: rawKey},
		{Name: "product_id", Value: productID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("CreateProductAliasWithClient: merging alias: %w", err)
	}

	return nil
}

// ProductExistsWithClient reports whether a product id exists.
func ProductExistsWithClient(ctx context.Context, client *bigquery.Client, productID string) (bool, error) {
	q := client.Query(`
		SELECT product_id, normalized_name, brand, is_verified
		FROM ` + tableRef(productsTable) + `
		WHERE product_id = @product_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "product_id", Value: productID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("ProductExistsWithClient: reading query: %w", err)
	}

	var row productJoinRow
	err = it.Next(&row)
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ProductExistsWithClient: iterating: %w", err)
	}

	return true, nil
}
