package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	infraBQ "github.com/dvloznov/receipt-tracker/internal/infra/bigquery"
	"github.com/dvloznov/receipt-tracker/internal/ingest"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/scanner"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

func main() {
	log := logger.New()

	var (
		bucket = flag.String("bucket", os.Getenv("RECEIPTS_BUCKET"), "GCS bucket for receipt files (or set RECEIPTS_BUCKET env)")
		model  = flag.String("model", "", "Gemini model for receipt scanning (defaults to RECEIPT_MODEL env)")
	)
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		log.Fatal().Msg("Usage: ingest [-bucket BUCKET] receipt1.jpg [receipt2.jpg ...]")
	}
	if *bucket == "" {
		log.Fatal().Msg("No GCS bucket configured - set -bucket or RECEIPTS_BUCKET")
	}

	files := make([]ingest.UploadFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			log.Fatal().Err(err).Str("file", p).Msg("Failed to read file")
		}
		files = append(files, ingest.UploadFile{Name: filepath.Base(p), Data: data})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
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

	pipeline := ingest.NewPipeline(
		storage.NewGCSFileStorage(*bucket),
		scanner.NewGeminiScanner(*model),
		receiptRepo,
		productRepo,
		itemRepo,
	)

	log.Info().Int("files", len(files)).Msg("Starting batch ingestion")

	result, err := pipeline.ExecuteBatch(ctx, files)
	for _, id := range result.Processed {
		fmt.Printf("processed: %s\n", id)
	}
	for _, s := range result.Skipped {
		fmt.Printf("skipped:   %s (%s)\n", s.Name, s.Reason)
	}
	if err != nil {
		log.Fatal().Err(err).Str("failed_file", result.FailedFile).Msg("Batch ingestion failed")
	}

	fmt.Printf("done: %d processed, %d skipped\n", len(result.Processed), len(result.Skipped))
}
