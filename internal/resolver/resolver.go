// Package resolver maps free-text receipt lines to canonical catalog
// products. Resolution is alias-first: a user-pinned alias permanently
// overrides what canonical-key matching would produce.
package resolver

import (
	"context"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/normalize"
)

// Product is a canonical catalog reference. IsVerified stays false until a
// human confirms the scanner-proposed name.
type Product struct {
	ID             string
	NormalizedName string
	Brand          string
	IsVerified     bool
}

// UpsertParams carries the fields for a catalog upsert keyed on NormalizedKey.
type UpsertParams struct {
	NormalizedKey  string
	NormalizedName string
	Brand          string
}

// ProductRepository is the catalog port the resolver depends on.
type ProductRepository interface {
	// FindAlias returns the product a user pinned to the given canonical key,
	// or nil when no alias exists.
	FindAlias(ctx context.Context, key string) (*Product, error)

	// Upsert atomically inserts a product keyed on normalized_key or returns
	// the existing row. Existing rows are never overwritten.
	Upsert(ctx context.Context, p UpsertParams) (*Product, error)
}

// Resolver resolves raw item text to catalog products. It caches resolved
// keys for the duration of one ingestion run, so repeated items inside a
// receipt cost a single backend round-trip.
//
// A Resolver is not safe for concurrent use; create one per pipeline run.
type Resolver struct {
	repo  ProductRepository
	cache map[string]*Product
}

// New creates a resolver with a fresh cache.
func New(repo ProductRepository) *Resolver {
	return &Resolver{
		repo:  repo,
		cache: make(map[string]*Product),
	}
}

// Resolve returns the canonical product for a raw receipt line.
//
// The raw text is normalized to a canonical key, then: an alias hit wins
// outright and the catalog is never touched; otherwise the product is
// upserted on the key with the scanner's proposed name and brand
// (unverified). Repository failures are fatal for the whole ingestion.
func (r *Resolver) Resolve(ctx context.Context, rawText, proposedName, proposedBrand string) (*Product, error) {
	key := normalize.ProductKey(rawText)

	if cached, ok := r.cache[key]; ok {
		return cached, nil
	}

	product, err := r.repo.FindAlias(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("Resolve: alias lookup for %q: %w", key, err)
	}

	if product == nil {
		product, err = r.repo.Upsert(ctx, UpsertParams{
			NormalizedKey:  key,
			NormalizedName: proposedName,
			Brand:          proposedBrand,
		})
		if err != nil {
			return nil, fmt.Errorf("Resolve: upsert for %q: %w", key, err)
		}
	}

	r.cache[key] = product
	return product, nil
}
