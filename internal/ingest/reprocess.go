package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/contenthash"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/resolver"
)

// ErrReceiptNotFound is returned when reprocessing targets an unknown id.
var ErrReceiptNotFound = errors.New("receipt not found")

// Reprocessor re-runs the scan against a receipt's stored file and replaces
// its derived data: items are deleted and re-inserted (replace, not merge)
// and total/content_hash are rewritten in place. The receipt row itself, its
// id, file_path and file_hash never change, and no duplicate re-check runs:
// this is an update to the same receipt, not a new ingestion.
type Reprocessor struct {
	storage  FileStorage
	scanner  ReceiptScanner
	receipts ReceiptRepository
	products resolver.ProductRepository
	items    ReceiptItemRepository
}

// NewReprocessor wires the reprocessing use case to its collaborators.
func NewReprocessor(
	storage FileStorage,
	scan ReceiptScanner,
	receipts ReceiptRepository,
	products resolver.ProductRepository,
	items ReceiptItemRepository,
) *Reprocessor {
	return &Reprocessor{
		storage:  storage,
		scanner:  scan,
		receipts: receipts,
		products: products,
		items:    items,
	}
}

// Execute reprocesses one receipt by id and returns its refreshed state.
func (r *Reprocessor) Execute(ctx context.Context, receiptID string) (*Receipt, error) {
	log := logger.FromContext(ctx)

	receipt, err := r.receipts.FindByID(ctx, receiptID)
	if err != nil {
		return nil, fmt.Errorf("Execute: loading receipt %s: %w", receiptID, err)
	}
	if receipt == nil {
		return nil, fmt.Errorf("Execute: %s: %w", receiptID, ErrReceiptNotFound)
	}

	data, err := r.storage.Download(ctx, receipt.FilePath)
	if err != nil {
		return nil, fmt.Errorf("Execute: downloading %s: %w", receipt.FilePath, err)
	}

	scanned, err := r.scanner.Scan(ctx, receipt.FilePath, data)
	if err != nil {
		return nil, err
	}

	contentHash, err := contenthash.Structured(scanned)
	if err != nil {
		return nil, fmt.Errorf("Execute: content hash: %w", err)
	}

	// Replace-not-merge: drop every existing item before inserting the
	// fresh batch.
	if err := r.receipts.DeleteItems(ctx, receiptID); err != nil {
		return nil, fmt.Errorf("Execute: deleting items for %s: %w", receiptID, err)
	}

	if err := persistItems(ctx, resolver.New(r.products), r.items, receiptID, scanned.Items); err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}

	if err := r.receipts.Update(ctx, receiptID, scanned.Total, contentHash); err != nil {
		return nil, fmt.Errorf("Execute: updating receipt %s: %w", receiptID, err)
	}

	log.Info().Str("receipt_id", receiptID).Str("content_hash", contentHash).
		Int("items", len(scanned.Items)).Msg("Receipt reprocessed")

	receipt.Total = scanned.Total
	receipt.ContentHash = contentHash
	return receipt, nil
}
