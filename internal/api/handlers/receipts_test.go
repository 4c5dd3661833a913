package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/infra/bigquery"
	"github.com/dvloznov/receipt-tracker/internal/ingest"
	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/scanner"
)

type mockIngestor struct {
	ExecuteBatchFunc func(ctx context.Context, files []ingest.UploadFile) (*ingest.BatchResult, error)
}

func (m *mockIngestor) ExecuteBatch(ctx context.Context, files []ingest.UploadFile) (*ingest.BatchResult, error) {
	return m.ExecuteBatchFunc(ctx, files)
}

type mockReader struct {
	FindByIDFunc func(ctx context.Context, id string) (*ingest.Receipt, error)
}

func (m *mockReader) ListAll(ctx context.Context) ([]*ingest.Receipt, error) { return nil, nil }

func (m *mockReader) FindByID(ctx context.Context, id string) (*ingest.Receipt, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockReader) ListItems(ctx context.Context, receiptID string) ([]*bigquery.ReceiptItemDetail, error) {
	return nil, nil
}

type mockPublisher struct {
	published []*jobs.ReprocessReceiptJob
}

func (m *mockPublisher) PublishReprocess(ctx context.Context, job *jobs.ReprocessReceiptJob) error {
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	m.published = append(m.published, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func multipartUpload(t *testing.T, filenames ...string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range filenames {
		part, err := mw.CreateFormFile("receipts", name)
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		part.Write([]byte("bytes of " + name))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/receipts/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_Success(t *testing.T) {
	ingestor := &mockIngestor{
		ExecuteBatchFunc: func(ctx context.Context, files []ingest.UploadFile) (*ingest.BatchResult, error) {
			if len(files) != 2 {
				t.Fatalf("handler passed %d files, want 2", len(files))
			}
			return &ingest.BatchResult{
				Processed: []string{"rcpt-1"},
				Skipped:   []ingest.SkippedFile{{Name: files[1].Name, Reason: ingest.SkipDuplicateFile}},
			}, nil
		},
	}
	h := NewReceiptsHandler(ingestor, &mockReader{}, &mockPublisher{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "a.jpg", "b.jpg"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Processed      []string            `json:"processed"`
		Skipped        []map[string]string `json:"skipped"`
		ProcessedCount int                 `json:"processed_count"`
		SkippedCount   int                 `json:"skipped_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.ProcessedCount != 1 || body.SkippedCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", body.ProcessedCount, body.SkippedCount)
	}
	if body.Skipped[0]["reason"] != "Duplicate file" {
		t.Errorf("skip reason = %q, want Duplicate file", body.Skipped[0]["reason"])
	}
}

func TestUpload_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "schema violation",
			err:        &scanner.ValidationError{Err: errors.New("missing store_name")},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "scanner backend failure",
			err:        &scanner.ScanError{Model: "m", Err: errors.New("overloaded")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "storage failure",
			err:        errors.New("bucket gone"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingestor := &mockIngestor{
				ExecuteBatchFunc: func(ctx context.Context, files []ingest.UploadFile) (*ingest.BatchResult, error) {
					return &ingest.BatchResult{FailedFile: "a.jpg"}, tt.err
				},
			}
			h := NewReceiptsHandler(ingestor, &mockReader{}, &mockPublisher{}, zerolog.Nop())

			rec := httptest.NewRecorder()
			h.Upload(rec, multipartUpload(t, "a.jpg"))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if body["failed_file"] != "a.jpg" {
				t.Errorf("failed_file = %v, want a.jpg", body["failed_file"])
			}
		})
	}
}

func TestUpload_NoFiles(t *testing.T) {
	h := NewReceiptsHandler(&mockIngestor{}, &mockReader{}, &mockPublisher{}, zerolog.Nop())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/receipts/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestReprocess_EnqueuesJob(t *testing.T) {
	reader := &mockReader{
		FindByIDFunc: func(ctx context.Context, id string) (*ingest.Receipt, error) {
			if id == "rcpt-1" {
				return &ingest.Receipt{ID: "rcpt-1"}, nil
			}
			return nil, nil
		},
	}
	pub := &mockPublisher{}
	h := NewReceiptsHandler(&mockIngestor{}, reader, pub, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/receipts/rcpt-1/reprocess", nil)
	h.Reprocess(rec, req, "rcpt-1")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(pub.published) != 1 || pub.published[0].ReceiptID != "rcpt-1" {
		t.Errorf("published = %+v, want one job for rcpt-1", pub.published)
	}
}

func TestReprocess_UnknownReceipt(t *testing.T) {
	pub := &mockPublisher{}
	h := NewReceiptsHandler(&mockIngestor{}, &mockReader{}, pub, zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/receipts/nope/reprocess", nil)
	h.Reprocess(rec, req, "nope")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if len(pub.published) != 0 {
		t.Error("no job may be enqueued for an unknown receipt")
	}
}
