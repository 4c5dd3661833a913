package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// StoreRow represents a store record in BigQuery.
type StoreRow struct {
	StoreID       string    `bigquery:"store_id"`
	Name          string    `bigquery:"name"`
	Location      string    `bigquery:"location"`
	NormalizedKey string    `bigquery:"normalized_key"`
	CreatedTS     time.Time `bigquery:"created_ts"`
}

// FindStoreByKeyWithClient finds a store by its normalized key.
// Returns nil if no matching store exists.
func FindStoreByKeyWithClient(ctx context.Context, client *bigquery.Client, normalizedKey string) (*StoreRow, error) {
	q := client.Query(`
		SELECT
			store_id,
			name,
			location,
			normalized_key,
			created_ts
		FROM ` + tableRef(storesTable) + `
		WHERE normalized_key = @normalized_key
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "normalized_key", Value: normalizedKey},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindStoreByKeyWithClient: reading query: %w", err)
	}

	var row StoreRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindStoreByKeyWithClient: iterating: %w", err)
	}

	return &row, nil
}

// FindOrCreateStoreWithClient resolves a store by normalized key, inserting
// a new row when none exists, and returns the store id. The first writer of
// a key wins; later receipts with an equivalent name reuse the same store.
func FindOrCreateStoreWithClient(ctx context.Context, client *bigquery.Client, name, location, normalizedKey string) (string, error) {
	existing, err := FindStoreByKeyWithClient(ctx, client, normalizedKey)
	if err != nil {
		return "", fmt.Errorf("FindOrCreateStoreWithClient: finding existing store: %w", err)
	}
	if existing != nil {
		return existing.StoreID, nil
	}

	storeID := uuid.NewString()

	q := client.Query(`
		INSERT INTO ` + tableRef(storesTable) + ` (
			store_id, name, location, normalized_key, created_ts
		)
		VALUES (
			@store_id, @name, @location, @normalized_key, @created_ts
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "store_id", Value: storeID},
		{Name: "name", Value: name},
		{Name: "location", Value: location},
		{Name: "normalized_key", Value: normalizedKey},
		{Name: "created_ts", Value: time.Now().UTC()},
	}

	if err := runDML(ctx, q); err != nil {
		return "", fmt.Errorf("FindOrCreateStoreWithClient: inserting store: %w", err)
	}

	return storeID, nil
}
