package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/receipt-tracker/internal/ingest"
	"github.com/dvloznov/receipt-tracker/internal/resolver"
)

// ReceiptRepository is the BigQuery-backed receipt store. It holds a shared
// client to avoid creating a new connection for each operation.
type ReceiptRepository struct {
	client *bigquery.Client
}

var _ ingest.ReceiptRepository = (*ReceiptRepository)(nil)

// NewReceiptRepository creates a receipt repository with a shared client.
func NewReceiptRepository(ctx context.Context) (*ReceiptRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewReceiptRepository: creating client: %w", err)
	}
	return &ReceiptRepository{client: client}, nil
}

// Close closes the BigQuery client connection.
func (r *ReceiptRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *ReceiptRepository) FindByHash(ctx context.Context, hash string) (*ingest.Receipt, error) {
	return FindReceiptByHashWithClient(ctx, r.client, hash)
}

func (r *ReceiptRepository) Save(ctx context.Context, receipt *ingest.Receipt) (string, error) {
	return InsertReceiptWithClient(ctx, r.client, receipt)
}

func (r *ReceiptRepository) FindByID(ctx context.Context, id string) (*ingest.Receipt, error) {
	return FindReceiptByIDWithClient(ctx, r.client, id)
}

func (r *ReceiptRepository) DeleteItems(ctx context.Context, receiptID string) error {
	return DeleteReceiptItemsWithClient(ctx, r.client, receiptID)
}

func (r *ReceiptRepository) Update(ctx context.Context, id string, total *float64, contentHash string) error {
	return UpdateReceiptWithClient(ctx, r.client, id, total, contentHash)
}

// ListAll retrieves every receipt, newest purchase first.
func (r *ReceiptRepository) ListAll(ctx context.Context) ([]*ingest.Receipt, error) {
	return ListAllReceiptsWithClient(ctx, r.client)
}

// ListItems retrieves a receipt's items with their resolved products.
func (r *ReceiptRepository) ListItems(ctx context.Context, receiptID string) ([]*ReceiptItemDetail, error) {
	return ListReceiptItemsWithClient(ctx, r.client, receiptID)
}

// ProductRepository is the BigQuery-backed product catalog and alias map.
type ProductRepository struct {
	client *bigquery.Client
}

var _ resolver.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository creates a product repository with a shared client.
func NewProductRepository(ctx context.Context) (*ProductRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewProductRepository: creating client: %w", err)
	}
	return &ProductRepository{client: client}, nil
}

// Close closes the BigQuery client connection.
func (r *ProductRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *ProductRepository) FindAlias(ctx context.Context, key string) (*resolver.Product, error) {
	return FindProductByAliasWithClient(ctx, r.client, key)
}

func (r *ProductRepository) Upsert(ctx context.Context, p resolver.UpsertParams) (*resolver.Product, error) {
	return UpsertProductWithClient(ctx, r.client, p)
}

// CreateAlias pins a normalized alias key to a product.
func (r *ProductRepository) CreateAlias(ctx context.Context, rawKey, productID string) error {
	return CreateProductAliasWithClient(ctx, r.client, rawKey, productID)
}

// Exists reports whether a product id exists.
func (r *ProductRepository) Exists(ctx context.Context, productID string) (bool, error) {
	return ProductExistsWithClient(ctx, r.client, productID)
}

// ReceiptItemRepository persists receipt lines in BigQuery.
type ReceiptItemRepository struct {
	client *bigquery.Client
}

var _ ingest.ReceiptItemRepository = (*ReceiptItemRepository)(nil)

// NewReceiptItemRepository creates an item repository with a shared client.
func NewReceiptItemRepository(ctx context.Context) (*ReceiptItemRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewReceiptItemRepository: creating client: %w", err)
	}
	return &ReceiptItemRepository{client: client}, nil
}

// Close closes the BigQuery client connection.
func (r *ReceiptItemRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *ReceiptItemRepository) Save(ctx context.Context, item *ingest.ReceiptItem) error {
	return InsertReceiptItemWithClient(ctx, r.client, item)
}
