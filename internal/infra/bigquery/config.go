// Package bigquery stores receipts, stores, products and product aliases
// in BigQuery tables.
package bigquery

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/bigquery"
)

var (
	projectID = envOr("BQ_PROJECT_ID", "receipt-tracker-dev")
	datasetID = envOr("BQ_DATASET_ID", "receipts")
)

const (
	storesTable         = "stores"
	receiptsTable       = "receipts"
	receiptItemsTable   = "receipt_items"
	productsTable       = "products"
	productAliasesTable = "product_aliases"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// tableRef renders a fully qualified, backtick-quoted table reference.
func tableRef(table string) string {
	return "`" + projectID + "." + datasetID + "." + table + "`"
}

// runDML runs a DML query to completion and surfaces the job error.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
