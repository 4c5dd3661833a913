// Package handlers implements the HTTP endpoints of the receipt API.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/infra/bigquery"
	"github.com/dvloznov/receipt-tracker/internal/ingest"
	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/scanner"
)

// maxUploadBytes bounds the in-memory part of a multipart upload.
const maxUploadBytes = 32 << 20

// BatchIngestor runs the ingestion pipeline over a batch of files.
type BatchIngestor interface {
	ExecuteBatch(ctx context.Context, files []ingest.UploadFile) (*ingest.BatchResult, error)
}

// ReceiptReader reads receipts and their items for the list and detail views.
type ReceiptReader interface {
	ListAll(ctx context.Context) ([]*ingest.Receipt, error)
	FindByID(ctx context.Context, id string) (*ingest.Receipt, error)
	ListItems(ctx context.Context, receiptID string) ([]*bigquery.ReceiptItemDetail, error)
}

// ReceiptsHandler handles receipt-related endpoints.
type ReceiptsHandler struct {
	ingestor  BatchIngestor
	reader    ReceiptReader
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(ingestor BatchIngestor, reader ReceiptReader, publisher jobs.Publisher, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		ingestor:  ingestor,
		reader:    reader,
		publisher: publisher,
		log:       log,
	}
}

// Upload handles POST /api/receipts/upload.
// It accepts a multipart form with one or more files under the "receipts"
// field and runs the ingestion pipeline over them in order.
func (h *ReceiptsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	parts := r.MultipartForm.File["receipts"]
	if len(parts) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "No files uploaded under 'receipts'")
		return
	}

	files := make([]ingest.UploadFile, 0, len(parts))
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Unreadable file: "+part.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Unreadable file: "+part.Filename)
			return
		}
		files = append(files, ingest.UploadFile{Name: part.Filename, Data: data})
	}

	result, err := h.ingestor.ExecuteBatch(ctx, files)
	if err != nil {
		h.log.Error().Err(err).Str("failed_file", result.FailedFile).Msg("Batch upload failed")
		middleware.WriteJSON(w, uploadErrorStatus(err), map[string]interface{}{
			"error":       err.Error(),
			"failed_file": result.FailedFile,
			"processed":   nonNil(result.Processed),
			"skipped":     skippedPayload(result.Skipped),
		})
		return
	}

	h.log.Info().
		Int("processed", len(result.Processed)).
		Int("skipped", len(result.Skipped)).
		Msg("Batch upload completed")

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"processed":       nonNil(result.Processed),
		"skipped":         skippedPayload(result.Skipped),
		"processed_count": len(result.Processed),
		"skipped_count":   len(result.Skipped),
	})
}

// uploadErrorStatus maps pipeline failures to HTTP statuses: schema
// violations are the model's fault (422), scanner transport failures are an
// upstream problem (502), everything else is internal.
func uploadErrorStatus(err error) int {
	var vErr *scanner.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusUnprocessableEntity
	}
	var sErr *scanner.ScanError
	if errors.As(err, &sErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func skippedPayload(skipped []ingest.SkippedFile) []map[string]string {
	out := make([]map[string]string, 0, len(skipped))
	for _, s := range skipped {
		out = append(out, map[string]string{
			"file":   s.Name,
			"reason": string(s.Reason),
		})
	}
	return out
}

// List handles GET /api/receipts.
func (h *ReceiptsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	receipts, err := h.reader.ListAll(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list receipts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list receipts")
		return
	}
	if receipts == nil {
		receipts = []*ingest.Receipt{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
	})
}

// Get handles GET /api/receipts/{id}, returning the receipt with its items.
func (h *ReceiptsHandler) Get(w http.ResponseWriter, r *http.Request, receiptID string) {
	ctx := r.Context()

	receipt, err := h.reader.FindByID(ctx, receiptID)
	if err != nil {
		h.log.Error().Err(err).Str("receipt_id", receiptID).Msg("Failed to load receipt")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load receipt")
		return
	}
	if receipt == nil {
		middleware.WriteError(w, http.StatusNotFound, "Receipt not found")
		return
	}

	items, err := h.reader.ListItems(ctx, receiptID)
	if err != nil {
		h.log.Error().Err(err).Str("receipt_id", receiptID).Msg("Failed to load receipt items")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load receipt items")
		return
	}
	if items == nil {
		items = []*bigquery.ReceiptItemDetail{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"receipt": receipt,
		"items":   items,
	})
}

// Reprocess handles POST /api/receipts/{id}/reprocess. It enqueues a
// background job and returns 202 with the job id.
func (h *ReceiptsHandler) Reprocess(w http.ResponseWriter, r *http.Request, receiptID string) {
	ctx := r.Context()

	receipt, err := h.reader.FindByID(ctx, receiptID)
	if err != nil {
		h.log.Error().Err(err).Str("receipt_id", receiptID).Msg("Failed to load receipt")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load receipt")
		return
	}
	if receipt == nil {
		middleware.WriteError(w, http.StatusNotFound, "Receipt not found")
		return
	}

	job := &jobs.ReprocessReceiptJob{ReceiptID: receiptID}
	if err := h.publisher.PublishReprocess(ctx, job); err != nil {
		h.log.Error().Err(err).Str("receipt_id", receiptID).Msg("Failed to enqueue reprocess job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue reprocess job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("receipt_id", receiptID).Msg("Reprocess job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"receipt_id": receiptID,
		"status":     string(job.Status),
	})
}
