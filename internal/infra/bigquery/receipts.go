package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/receipt-tracker/internal/ingest"
	"github.com/dvloznov/receipt-tracker/internal/normalize"
)

// ReceiptRow represents a receipt record in BigQuery.
type ReceiptRow struct {
	ReceiptID    string                 `bigquery:"receipt_id"`
	StoreID      string                 `bigquery:"store_id"`
	PurchaseDate civil.Date             `bigquery:"purchase_date"`
	Total        bigquery.NullFloat64   `bigquery:"total"`
	FilePath     string                 `bigquery:"file_path"`
	FileHash     string                 `bigquery:"file_hash"`
	ContentHash  string                 `bigquery:"content_hash"`
	CreatedTS    time.Time              `bigquery:"created_ts"`
	UpdatedTS    bigquery.NullTimestamp `bigquery:"updated_ts"`
}

// receiptJoinRow is a receipt joined with its store, as the domain sees it.
type receiptJoinRow struct {
	ReceiptID     string               `bigquery:"receipt_id"`
	StoreName     string               `bigquery:"store_name"`
	StoreLocation string               `bigquery:"store_location"`
	PurchaseDate  civil.Date           `bigquery:"purchase_date"`
	Total         bigquery.NullFloat64 `bigquery:"total"`
	FilePath      string               `bigquery:"file_path"`
	FileHash      string               `bigquery:"file_hash"`
	ContentHash   string               `bigquery:"content_hash"`
}

func (r *receiptJoinRow) toDomain() *ingest.Receipt {
	receipt := &ingest.Receipt{
		ID:            r.ReceiptID,
		StoreName:     r.StoreName,
		StoreLocation: r.StoreLocation,
		PurchaseDate:  r.PurchaseDate.String(),
		FilePath:      r.FilePath,
		FileHash:      r.FileHash,
		ContentHash:   r.ContentHash,
	}
	if r.Total.Valid {
		total := r.Total.Float64
		receipt.Total = &total
	}
	return receipt
}

const receiptSelect = `
	SELECT
		r.receipt_id,
		s.name AS store_name,
		s.location AS store_location,
		r.purchase_date,
		r.total,
		r.file_path,
		r.file_hash,
		r.content_hash
	FROM %s r
	JOIN %s s ON r.store_id = s.store_id
`

// FindReceiptByHashWithClient finds a receipt whose file hash or content
// hash equals the given hash. Returns nil when none matches.
func FindReceiptByHashWithClient(ctx context.Context, client *bigquery.Client, hash string) (*ingest.Receipt, error) {
	q := client.Query(fmt.Sprintf(receiptSelect, tableRef(receiptsTable), tableRef(storesTable)) + `
		WHERE r.file_hash = @hash OR r.content_hash = @hash
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "hash", Value: hash},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindReceiptByHashWithClient: reading query: %w", err)
	}

	var row receiptJoinRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindReceiptByHashWithClient: iterating: %w", err)
	}

	return row.toDomain(), nil
}

// FindReceiptByIDWithClient finds a receipt by id. Returns nil when none matches.
func FindReceiptByIDWithClient(ctx context.Context, client *bigquery.Client, id string) (*ingest.Receipt, error) {
	q := client.Query(fmt.Sprintf(receiptSelect, tableRef(receiptsTable), tableRef(storesTable)) + `
		WHERE r.receipt_id = @receipt_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "receipt_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindReceiptByIDWithClient: reading query: %w", err)
	}

	var row receiptJoinRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindReceiptByIDWithClient: iterating: %w", err)
	}

	return row.toDomain(), nil
}

// ListAllReceiptsWithClient retrieves all receipts, newest purchase first.
func ListAllReceiptsWithClient(ctx context.Context, client *bigquery.Client) ([]*ingest.Receipt, error) {
	q := client.Query(fmt.Sprintf(receiptSelect, tableRef(receiptsTable), tableRef(storesTable)) + `
		ORDER BY r.purchase_date DESC, r.created_ts DESC
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAllReceiptsWithClient: reading query: %w", err)
	}

	var receipts []*ingest.Receipt
	for {
		var row receiptJoinRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAllReceiptsWithClient: iterating: %w", err)
		}
		receipts = append(receipts, row.toDomain())
	}

	return receipts, nil
}

// InsertReceiptWithClient resolves the receipt's store by normalized key
// (creating it when new) and inserts the receipt row. Returns the receipt id.
func InsertReceiptWithClient(ctx context.Context, client *bigquery.Client, r *ingest.Receipt) (string, error) {
	storeKey := normalize.StoreKey(r.StoreName, r.StoreLocation)
	storeID, err := FindOrCreateStoreWithClient(ctx, client, r.StoreName, r.StoreLocation, storeKey)
	if err != nil {
		return "", fmt.Errorf("InsertReceiptWithClient: resolving store: %w", err)
	}

	purchaseDate, err := civil.ParseDate(r.PurchaseDate)
	if err != nil {
		return "", fmt.Errorf("InsertReceiptWithClient: parsing purchase date %q: %w", r.PurchaseDate, err)
	}

	total := bigquery.NullFloat64{}
	if r.Total != nil {
		total = bigquery.NullFloat64{Float64: *r.Total, Valid: true}
	}

	receiptID := uuid.NewString()

	q := client.Query(`
		INSERT INTO ` + tableRef(receiptsTable) + ` (
			receipt_id, store_id, purchase_date, total,
			file_path, file_hash, content_hash, created_ts
		)
		VALUES (
			@receipt_id, @store_id, @purchase_date, @total,
			@file_path, @file_hash, @content_hash, @created_ts
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "receipt_id", Value: receiptID},
		{Name: "store_id", Value: storeID},
		{Name: "purchase_date", Value: purchaseDate},
		{Name: "total", Value: total},
		{Name: "file_path", Value: r.FilePath},
		{Name: "file_hash", Value: r.FileHash},
		{Name: "content_hash", Value: r.ContentHash},
		{Name: "created_ts", Value: time.Now().UTC()},
	}

	if err := runDML(ctx, q); err != nil {
		return "", fmt.Errorf("InsertReceiptWithClient: inserting receipt: %w", err)
	}

	return receiptID, nil
}

// UpdateReceiptWithClient rewrites a receipt's total and content hash in
// place. Identity columns (file_path, file_hash) are never touched.
func UpdateReceiptWithClient(ctx context.Context, client *bigquery.Client, id string, totalValue *float64, contentHash string) error {
	total := bigquery.NullFloat64{}
	if totalValue != nil {
		total = bigquery.NullFloat64{Float64: *totalValue, Valid: true}
	}

	q := client.Query(`
		UPDATE ` + tableRef(receiptsTable) + `
		SET total = @total,
			content_hash = @content_hash,
			updated_ts = @updated_ts
		WHERE receipt_id = @receipt_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "receipt_id", Value: id},
		{Name: "total", Value: total},
		{Name: "content_hash", Value: contentHash},
		{Name: "updated_ts", Value: time.Now().UTC()},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("UpdateReceiptWithClient: updating receipt %s: %w", id, err)
	}

	return nil
}

// DeleteReceiptItemsWithClient removes all items belonging to a receipt.
func DeleteReceiptItemsWithClient(ctx context.Context, client *bigquery.Client, receiptID string) error {
	q := client.Query(`
		DELETE FROM ` + tableRef(receiptItemsTable) + `
		WHERE receipt_id = @receipt_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "receipt_id", Value: receiptID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("DeleteReceiptItemsWithClient: deleting items for %s: %w", receiptID, err)
	}

	return nil
}
