package ingest

import (
	"context"

	"github.com/dvloznov/receipt-tracker/internal/scanner"
)

// FileStorage is the blob-storage port. Failures are fatal for the run.
type FileStorage interface {
	// Upload stores raw file bytes and returns the storage path.
	Upload(ctx context.Context, filename string, data []byte) (string, error)

	// Download returns the bytes previously stored under path.
	Download(ctx context.Context, path string) ([]byte, error)
}

// ReceiptScanner is the OCR boundary. Implementations must validate the
// model output against the structured-receipt schema before returning it.
type ReceiptScanner interface {
	Scan(ctx context.Context, filename string, data []byte) (*scanner.StructuredReceipt, error)
}

// ReceiptRepository is the receipt persistence port.
type ReceiptRepository interface {
	// FindByHash returns the receipt whose file_hash OR content_hash equals
	// hash, or nil when none exists.
	FindByHash(ctx context.Context, hash string) (*Receipt, error)

	// Save inserts the receipt (resolving or creating its store from the
	// normalized store key) and returns the new receipt id.
	Save(ctx context.Context, r *Receipt) (string, error)

	// FindByID returns the receipt with the given id, or nil.
	FindByID(ctx context.Context, id string) (*Receipt, error)

	// DeleteItems removes all items belonging to the receipt.
	DeleteItems(ctx context.Context, receiptID string) error

	// Update rewrites the receipt's total and content hash in place.
	Update(ctx context.Context, id string, total *float64, contentHash string) error
}

// ReceiptItemRepository persists individual receipt lines.
type ReceiptItemRepository interface {
	Save(ctx context.Context, item *ReceiptItem) error
}
