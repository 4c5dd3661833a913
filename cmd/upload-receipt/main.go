package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

// upload-receipt pushes a local receipt file into the GCS bucket without
// running the ingestion pipeline. Useful for backfilling blobs.
func main() {
	log := logger.New()

	var (
		bucket   = flag.String("bucket", os.Getenv("RECEIPTS_BUCKET"), "GCS bucket name (or set RECEIPTS_BUCKET env)")
		filePath = flag.String("file", "", "Path to local receipt file (required)")
	)
	flag.Parse()

	if *bucket == "" || *filePath == "" {
		log.Fatal().Msg("Usage: upload-receipt -bucket BUCKET_NAME -file /path/to/receipt.jpg")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("bucket", *bucket).
		Str("file", *filePath).
		Msg("Uploading receipt to GCS")

	uri, err := storage.NewGCSFileStorage(*bucket).Upload(ctx, filepath.Base(*filePath), data)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, uri)
}
