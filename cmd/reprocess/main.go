package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	infraBQ "github.com/dvloznov/receipt-tracker/internal/infra/bigquery"
	"github.com/dvloznov/receipt-tracker/internal/ingest"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/scanner"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// reprocess re-runs the scan for one stored receipt and replaces its items.
func main() {
	log := logger.New()

	var (
		bucket    = flag.String("bucket", os.Getenv("RECEIPTS_BUCKET"), "GCS bucket for receipt files (or set RECEIPTS_BUCKET env)")
		model     = flag.String("model", "", "Gemini model for receipt scanning (defaults to RECEIPT_MODEL env)")
		receiptID = flag.String("receipt", "", "Receipt ID to reprocess (required)")
	)
	flag.Parse()

	if *receiptID == "" {
		log.Fatal().Msg("Usage: reprocess -receipt RECEIPT_ID [-bucket BUCKET]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	receiptRepo, err := infraBQ.NewReceiptRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create receipt repository")
	}
	defer receiptRepo.Close()

	productRepo, err := infraBQ.NewProductRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create product repository")
	}
	defer productRepo.Close()

	itemRepo, err := infraBQ.NewReceiptItemRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create receipt item repository")
	}
	defer itemRepo.Close()

	reprocessor := ingest.NewReprocessor(
		storage.NewGCSFileStorage(*bucket),
		scanner.NewGeminiScanner(*model),
		receiptRepo,
		productRepo,
		itemRepo,
	)

	receipt, err := reprocessor.Execute(ctx, *receiptID)
	if err != nil {
		if errors.Is(err, ingest.ErrReceiptNotFound) {
			log.Fatal().Str("receipt_id", *receiptID).Msg("Receipt not found")
		}
		log.Fatal().Err(err).Msg("Reprocessing failed")
	}

	total := "null"
	if receipt.Total != nil {
		total = fmt.Sprintf("%.2f", *receipt.Total)
	}
	fmt.Printf("Reprocessed %s (total=%s, content_hash=%s)\n", receipt.ID, total, receipt.ContentHash)
}
