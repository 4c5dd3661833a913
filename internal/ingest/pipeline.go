// Package ingest orchestrates the receipt ingestion pipeline: hash, dedup
// checks, OCR scan, blob persistence and product-identity resolution.
package ingest

import (
	"context"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/contenthash"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/resolver"
	"github.com/dvloznov/receipt-tracker/internal/scanner"
)

// Pipeline runs the scan-and-save flow for uploaded receipt files. It
// depends only on the collaborator ports, so every backend can be swapped
// out in tests.
type Pipeline struct {
	storage  FileStorage
	scanner  ReceiptScanner
	receipts ReceiptRepository
	products resolver.ProductRepository
	items    ReceiptItemRepository
}

// NewPipeline wires the pipeline to its collaborators.
func NewPipeline(
	storage FileStorage,
	scan ReceiptScanner,
	receipts ReceiptRepository,
	products resolver.ProductRepository,
	items ReceiptItemRepository,
) *Pipeline {
	return &Pipeline{
		storage:  storage,
		scanner:  scan,
		receipts: receipts,
		products: products,
		items:    items,
	}
}

// runState is the shared state threaded through one file's pipeline run.
type runState struct {
	file        UploadFile
	fileHash    string
	scanned     *scanner.StructuredReceipt
	contentHash string
	filePath    string
	receiptID   string
}

// Execute runs the full state machine for one file:
//
//	HashFile -> CheckFileDuplicate -> Scan -> HashContent ->
//	CheckContentDuplicate -> PersistBlob -> PersistReceipt ->
//	ResolveAndPersistItems
//
// The two duplicate checks are terminal skips, not errors. Everything else
// that fails is fatal and unwinds immediately; nothing is retried.
func (p *Pipeline) Execute(ctx context.Context, file UploadFile) (*Result, error) {
	log := logger.FromContext(ctx)
	st := &runState{file: file}

	// HashFile + CheckFileDuplicate. The scanner is never invoked for an
	// exact duplicate upload.
	st.fileHash = contenthash.Bytes(file.Data)

	existing, err := p.receipts.FindByHash(ctx, st.fileHash)
	if err != nil {
		return nil, fmt.Errorf("Execute: file dedup lookup: %w", err)
	}
	if existing != nil {
		log.Info().Str("file", file.Name).Str("file_hash", st.fileHash).
			Msg("Skipping file - already exists (file hash match)")
		return &Result{Status: StatusSkipped, SkipReason: SkipDuplicateFile}, nil
	}

	// Scan. Validation failure or a model failure aborts this file.
	st.scanned, err = p.scanner.Scan(ctx, file.Name, file.Data)
	if err != nil {
		return nil, err
	}

	// HashContent + CheckContentDuplicate. Runs after the scan, so a
	// content duplicate still pays the scan cost but writes nothing.
	st.contentHash, err = contenthash.Structured(st.scanned)
	if err != nil {
		return nil, fmt.Errorf("Execute: content hash: %w", err)
	}

	existing, err = p.receipts.FindByHash(ctx, st.contentHash)
	if err != nil {
		return nil, fmt.Errorf("Execute: content dedup lookup: %w", err)
	}
	if existing != nil {
		log.Info().Str("file", file.Name).Str("content_hash", st.contentHash).
			Msg("Skipping file - already exists (content hash match)")
		return &Result{Status: StatusSkipped, SkipReason: SkipDuplicateContent}, nil
	}

	// PersistBlob.
	st.filePath, err = p.storage.Upload(ctx, file.Name, file.Data)
	if err != nil {
		return nil, fmt.Errorf("Execute: persist blob: %w", err)
	}

	// PersistReceipt.
	st.receiptID, err = p.receipts.Save(ctx, &Receipt{
		StoreName:     st.scanned.StoreName,
		StoreLocation: st.scanned.StoreLocation,
		PurchaseDate:  st.scanned.PurchaseDate,
		Total:         st.scanned.Total,
		FilePath:      st.filePath,
		FileHash:      st.fileHash,
		ContentHash:   st.contentHash,
	})
	if err != nil {
		return nil, fmt.Errorf("Execute: persist receipt: %w", err)
	}

	// ResolveAndPersistItems, with a cache scoped to this run.
	if err := persistItems(ctx, resolver.New(p.products), p.items, st.receiptID, st.scanned.Items); err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}

	log.Info().Str("file", file.Name).Str("receipt_id", st.receiptID).
		Int("items", len(st.scanned.Items)).Msg("Receipt ingested")

	return &Result{Status: StatusSuccess, ReceiptID: st.receiptID}, nil
}

// persistItems resolves each scanned line to a canonical product and inserts
// the receipt item rows. Shared by ingestion and reprocessing.
func persistItems(
	ctx context.Context,
	res *resolver.Resolver,
	items ReceiptItemRepository,
	receiptID string,
	scanned []scanner.Item,
) error {
	for i, it := range scanned {
		product, err := res.Resolve(ctx, it.RawText, it.NormalizedName, it.Brand)
		if err != nil {
			return fmt.Errorf("persistItems: item %d: %w", i, err)
		}

		err = items.Save(ctx, &ReceiptItem{
			ReceiptID: receiptID,
			ProductID: product.ID,
			RawText:   it.RawText,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
		if err != nil {
			return fmt.Errorf("persistItems: saving item %d: %w", i, err)
		}
	}
	return nil
}
