package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/receipt-tracker/internal/ingest"
)

// ReceiptItemRow represents one receipt line in BigQuery.
type ReceiptItemRow struct {
	ItemID    string    `bigquery:"item_id"`
	ReceiptID string    `bigquery:"receipt_id"`
	ProductID string    `bigquery:"product_id"`
	RawText   string    `bigquery:"raw_text"`
	Quantity  float64   `bigquery:"quantity"`
	Price     float64   `bigquery:"price"`
	CreatedTS time.Time `bigquery:"created_ts"`
}

// InsertReceiptItemWithClient inserts one receipt item row.
func InsertReceiptItemWithClient(ctx context.Context, client *bigquery.Client, item *ingest.ReceiptItem) error {
	q := client.Query(`
		INSERT INTO ` + tableRef(receiptItemsTable) + ` (
			item_id, receipt_id, product_id, raw_text, quantity, price, created_ts
		)
		VALUES (
			@item_id, @receipt_id, @product_id, @raw_text, @quantity, @price, @created_ts
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "item_id", Value: uuid.NewString()},
		{Name: "receipt_id", Value: item.ReceiptID},
		{Name: "product_id", Value: item.ProductID},
		{Name: "raw_text", Value: item.RawText},
		{Name: "quantity", Value: item.Quantity},
		{Name: "price", Value: item.Price},
		{Name: "created_ts", Value: time.Now().UTC()},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertReceiptItemWithClient: inserting item: %w", err)
	}

	return nil
}

// ListReceiptItemsWithClient retrieves all items of a receipt with their
// resolved product names.
func ListReceiptItemsWithClient(ctx context.Context, client *bigquery.Client, receiptID string) ([]*ReceiptItemDetail, error) {
	q := client.Query(`
		SELECT
			i.item_id,
			i.receipt_id,
			i.product_id,
			p.normalized_name AS product_name,
			p.brand AS product_brand,
			i.raw_text,
			i.quantity,
			i.price
		FROM ` + tableRef(receiptItemsTable) + ` i
		JOIN ` + tableRef(productsTable) + ` p ON i.product_id = p.product_id
		WHERE i.receipt_id = @receipt_id
		ORDER BY i.created_ts
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "receipt_id", Value: receiptID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListReceiptItemsWithClient: reading query: %w", err)
	}

	var items []*ReceiptItemDetail
	for {
		var row ReceiptItemDetail
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListReceiptItemsWithClient: iterating: %w", err)
		}
		items = append(items, &row)
	}

	return items, nil
}

// ReceiptItemDetail is a receipt item joined with its product.
type ReceiptItemDetail struct {
	ItemID       string  `bigquery:"item_id" json:"item_id"`
	ReceiptID    string  `bigquery:"receipt_id" json:"receipt_id"`
	ProductID    string  `bigquery:"product_id" json:"product_id"`
	ProductName  string  `bigquery:"product_name" json:"product_name"`
	ProductBrand string  `bigquery:"product_brand" json:"product_brand,omitempty"`
	RawText      string  `bigquery:"raw_text" json:"raw_text"`
	Quantity     float64 `bigquery:"quantity" json:"quantity"`
	Price        float64 `bigquery:"price" json:"price"`
}
