package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dvloznov/receipt-tracker/internal/contenthash"
	"github.com/dvloznov/receipt-tracker/internal/ingest"
	"github.com/dvloznov/receipt-tracker/internal/resolver"
	"github.com/dvloznov/receipt-tracker/internal/scanner"
)

// ---- func-field mocks for the collaborator ports ----

type mockStorage struct {
	UploadFunc   func(ctx context.Context, filename string, data []byte) (string, error)
	DownloadFunc func(ctx context.Context, path string) ([]byte, error)

	uploads   []string
	downloads []string
}

func (m *mockStorage) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	m.uploads = append(m.uploads, filename)
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, filename, data)
	}
	return "gs://receipts-test/" + filename, nil
}

func (m *mockStorage) Download(ctx context.Context, path string) ([]byte, error) {
	m.downloads = append(m.downloads, path)
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, path)
	}
	return []byte("stored bytes of " + path), nil
}

type mockScanner struct {
	ScanFunc func(ctx context.Context, filename string, data []byte) (*scanner.StructuredReceipt, error)

	scans []string
}

func (m *mockScanner) Scan(ctx context.Context, filename string, data []byte) (*scanner.StructuredReceipt, error) {
	m.scans = append(m.scans, filename)
	if m.ScanFunc != nil {
		return m.ScanFunc(ctx, filename, data)
	}
	return scannedReceipt(filename), nil
}

type updateCall struct {
	id          string
	total       *float64
	contentHash string
}

type mockReceiptRepo struct {
	FindByHashFunc func(ctx context.Context, hash string) (*ingest.Receipt, error)
	SaveFunc       func(ctx context.Context, r *ingest.Receipt) (string, error)
	FindByIDFunc   func(ctx context.Context, id string) (*ingest.Receipt, error)

	hashLookups []string
	saves       []*ingest.Receipt
	deletes     []string
	updates     []updateCall
}

func (m *mockReceiptRepo) FindByHash(ctx context.Context, hash string) (*ingest.Receipt, error) {
	m.hashLookups = append(m.hashLookups, hash)
	if m.FindByHashFunc != nil {
		return m.FindByHashFunc(ctx, hash)
	}
	return nil, nil
}

func (m *mockReceiptRepo) Save(ctx context.Context, r *ingest.Receipt) (string, error) {
	m.saves = append(m.saves, r)
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, r)
	}
	return fmt.Sprintf("receipt-%d", len(m.saves)), nil
}

func (m *mockReceiptRepo) FindByID(ctx context.Context, id string) (*ingest.Receipt, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockReceiptRepo) DeleteItems(ctx context.Context, receiptID string) error {
	m.deletes = append(m.deletes, receiptID)
	return nil
}

func (m *mockReceiptRepo) Update(ctx context.Context, id string, total *float64, contentHash string) error {
	m.updates = append(m.updates, updateCall{id: id, total: total, contentHash: contentHash})
	return nil
}

type mockProductRepo struct {
	FindAliasFunc func(ctx context.Context, key string) (*resolver.Product, error)

	aliasCalls  int
	upsertCalls int
}

func (m *mockProductRepo) FindAlias(ctx context.Context, key string) (*resolver.Product, error) {
	m.aliasCalls++
	if m.FindAliasFunc != nil {
		return m.FindAliasFunc(ctx, key)
	}
	return nil, nil
}

func (m *mockProductRepo) Upsert(ctx context.Context, p resolver.UpsertParams) (*resolver.Product, error) {
	m.upsertCalls++
	return &resolver.Product{ID: "prod-" + p.NormalizedKey, NormalizedName: p.NormalizedName, Brand: p.Brand}, nil
}

type mockItemRepo struct {
	SaveFunc func(ctx context.Context, item *ingest.ReceiptItem) error

	saved []*ingest.ReceiptItem
}

func (m *mockItemRepo) Save(ctx context.Context, item *ingest.ReceiptItem) error {
	m.saved = append(m.saved, item)
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, item)
	}
	return nil
}

// scannedReceipt builds a deterministic scan result whose content depends on
// the filename, so distinct files produce distinct content hashes.
func scannedReceipt(filename string) *scanner.StructuredReceipt {
	total := 4.10
	return &scanner.StructuredReceipt{
		StoreName:    "Carrefour",
		PurchaseDate: "2025-06-01",
		Total:        &total,
		Items: []scanner.Item{
			{RawText: "LAIT DEMI ECREME " + filename, NormalizedName: "Lait demi-écrémé", Quantity: 2, Price: 2.30},
			{RawText: "PAIN COMPLET", NormalizedName: "Pain complet", Brand: "Jacquet", Quantity: 1, Price: 1.80},
		},
	}
}

type fixture struct {
	storage  *mockStorage
	scanner  *mockScanner
	receipts *mockReceiptRepo
	products *mockProductRepo
	items    *mockItemRepo
}

func newFixture() *fixture {
	return &fixture{
		storage:  &mockStorage{},
		scanner:  &mockScanner{},
		receipts: &mockReceiptRepo{},
		products: &mockProductRepo{},
		items:    &mockItemRepo{},
	}
}

func (f *fixture) pipeline() *ingest.Pipeline {
	return ingest.NewPipeline(f.storage, f.scanner, f.receipts, f.products, f.items)
}

func (f *fixture) reprocessor() *ingest.Reprocessor {
	return ingest.NewReprocessor(f.storage, f.scanner, f.receipts, f.products, f.items)
}

// ---- pipeline tests ----

func TestExecute_Success(t *testing.T) {
	f := newFixture()
	file := ingest.UploadFile{Name: "receipt1.jpg", Data: []byte("image bytes")}

	res, err := f.pipeline().Execute(context.Background(), file)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if res.Status != ingest.StatusSuccess {
		t.Fatalf("status = %v, want success", res.Status)
	}
	if res.ReceiptID == "" {
		t.Error("expected a receipt id")
	}

	if len(f.receipts.saves) != 1 {
		t.Fatalf("expected 1 receipt save, got %d", len(f.receipts.saves))
	}
	saved := f.receipts.saves[0]
	if saved.FileHash != contenthash.Bytes(file.Data) {
		t.Errorf("saved file hash = %q, want hash of raw bytes", saved.FileHash)
	}
	if saved.ContentHash == "" || saved.ContentHash == saved.FileHash {
		t.Errorf("content hash missing or equal to file hash: %q", saved.ContentHash)
	}
	if saved.FilePath != "gs://receipts-test/receipt1.jpg" {
		t.Errorf("saved file path = %q, want storage upload path", saved.FilePath)
	}

	if len(f.items.saved) != 2 {
		t.Fatalf("expected 2 items saved, got %d", len(f.items.saved))
	}
	for _, it := range f.items.saved {
		if it.ReceiptID != res.ReceiptID {
			t.Errorf("item linked to %q, want %q", it.ReceiptID, res.ReceiptID)
		}
		if it.ProductID == "" {
			t.Error("item saved without a resolved product id")
		}
	}
}

func TestExecute_DuplicateFile(t *testing.T) {
	f := newFixture()
	file := ingest.UploadFile{Name: "dup.jpg", Data: []byte("same bytes")}
	fileHash := contenthash.Bytes(file.Data)

	f.receipts.FindByHashFunc = func(ctx context.Context, hash string) (*ingest.Receipt, error) {
		if hash == fileHash {
			return &ingest.Receipt{ID: "existing"}, nil
		}
		return nil, nil
	}

	res, err := f.pipeline().Execute(context.Background(), file)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if res.Status != ingest.StatusSkipped || res.SkipReason != ingest.SkipDuplicateFile {
		t.Fatalf("got %+v, want skipped/Duplicate file", res)
	}
	if len(f.scanner.scans) != 0 {
		t.Error("scanner must never be invoked for a duplicate file")
	}
	if len(f.storage.uploads) != 0 || len(f.receipts.saves) != 0 {
		t.Error("duplicate file must not persist anything")
	}
	if f.products.aliasCalls != 0 || f.products.upsertCalls != 0 {
		t.Error("duplicate file must not touch the catalog")
	}
}

func TestExecute_DuplicateContent(t *testing.T) {
	f := newFixture()
	file := ingest.UploadFile{Name: "other.jpg", Data: []byte("different bytes")}

	expectedContentHash, err := contenthash.Structured(scannedReceipt(file.Name))
	if err != nil {
		t.Fatalf("content hash: %v", err)
	}

	f.receipts.FindByHashFunc = func(ctx context.Context, hash string) (*ingest.Receipt, error) {
		if hash == expectedContentHash {
			return &ingest.Receipt{ID: "existing"}, nil
		}
		return nil, nil
	}

	res, err := f.pipeline().Execute(context.Background(), file)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if res.Status != ingest.StatusSkipped || res.SkipReason != ingest.SkipDuplicateContent {
		t.Fatalf("got %+v, want skipped/Duplicate content", res)
	}
	if len(f.scanner.scans) != 1 {
		t.Errorf("scanner should have been invoked exactly once, got %d", len(f.scanner.scans))
	}
	if len(f.storage.uploads) != 0 || len(f.receipts.saves) != 0 || len(f.items.saved) != 0 {
		t.Error("duplicate content must not persist anything")
	}
	if f.products.upsertCalls != 0 {
		t.Error("duplicate content must not mutate the catalog")
	}
}

func TestExecute_ScanValidationFailureIsFatal(t *testing.T) {
	f := newFixture()
	f.scanner.ScanFunc = func(ctx context.Context, filename string, data []byte) (*scanner.StructuredReceipt, error) {
		return nil, &scanner.ValidationError{Err: errors.New("missing store_name")}
	}

	_, err := f.pipeline().Execute(context.Background(), ingest.UploadFile{Name: "bad.jpg", Data: []byte("x")})
	if err == nil {
		t.Fatal("expected fatal error for invalid scan output")
	}

	var vErr *scanner.ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("expected *scanner.ValidationError to propagate, got %T", err)
	}
	if len(f.storage.uploads) != 0 || len(f.receipts.saves) != 0 {
		t.Error("nothing may be persisted when validation fails")
	}
}

func TestExecute_StorageFailureIsFatal(t *testing.T) {
	f := newFixture()
	uploadErr := errors.New("bucket unavailable")
	f.storage.UploadFunc = func(ctx context.Context, filename string, data []byte) (string, error) {
		return "", uploadErr
	}

	_, err := f.pipeline().Execute(context.Background(), ingest.UploadFile{Name: "r.jpg", Data: []byte("x")})
	if !errors.Is(err, uploadErr) {
		t.Fatalf("expected upload error to propagate, got %v", err)
	}
	if len(f.receipts.saves) != 0 {
		t.Error("receipt must not be saved when the blob upload fails")
	}
}

func TestExecute_AliasShortCircuitsCatalog(t *testing.T) {
	f := newFixture()
	f.products.FindAliasFunc = func(ctx context.Context, key string) (*resolver.Product, error) {
		return &resolver.Product{ID: "pinned"}, nil
	}

	_, err := f.pipeline().Execute(context.Background(), ingest.UploadFile{Name: "r.jpg", Data: []byte("x")})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if f.products.upsertCalls != 0 {
		t.Errorf("alias hits must never upsert, got %d upserts", f.products.upsertCalls)
	}
	for _, it := range f.items.saved {
		if it.ProductID != "pinned" {
			t.Errorf("item resolved to %q, want pinned alias product", it.ProductID)
		}
	}
}

// ---- batch tests ----

func TestExecuteBatch_FailFast(t *testing.T) {
	f := newFixture()
	f.scanner.ScanFunc = func(ctx context.Context, filename string, data []byte) (*scanner.StructuredReceipt, error) {
		if filename == "file2.jpg" {
			return nil, &scanner.ValidationError{Err: errors.New("garbled output")}
		}
		return scannedReceipt(filename), nil
	}

	files := []ingest.UploadFile{
		{Name: "file1.jpg", Data: []byte("one")},
		{Name: "file2.jpg", Data: []byte("two")},
		{Name: "file3.jpg", Data: []byte("three")},
	}

	result, err := f.pipeline().ExecuteBatch(context.Background(), files)
	if err == nil {
		t.Fatal("expected batch to fail on file2")
	}

	if result.FailedFile != "file2.jpg" {
		t.Errorf("FailedFile = %q, want file2.jpg", result.FailedFile)
	}
	if len(result.Processed) != 1 {
		t.Errorf("expected file1 to have succeeded before the failure, got %d processed", len(result.Processed))
	}
	for _, name := range f.scanner.scans {
		if name == "file3.jpg" {
			t.Error("file3 must never be attempted after file2 failed")
		}
	}
}

func TestExecuteBatch_LaterFileSeesEarlierHashes(t *testing.T) {
	f := newFixture()

	// Stateful repo: remembers hashes of saved receipts, like the real store.
	seen := map[string]bool{}
	f.receipts.FindByHashFunc = func(ctx context.Context, hash string) (*ingest.Receipt, error) {
		if seen[hash] {
			return &ingest.Receipt{ID: "existing"}, nil
		}
		return nil, nil
	}
	f.receipts.SaveFunc = func(ctx context.Context, r *ingest.Receipt) (string, error) {
		seen[r.FileHash] = true
		seen[r.ContentHash] = true
		return "receipt-1", nil
	}

	files := []ingest.UploadFile{
		{Name: "a.jpg", Data: []byte("same bytes")},
		{Name: "b.jpg", Data: []byte("same bytes")},
	}

	result, err := f.pipeline().ExecuteBatch(context.Background(), files)
	if err != nil {
		t.Fatalf("ExecuteBatch failed: %v", err)
	}

	if len(result.Processed) != 1 || len(result.Skipped) != 1 {
		t.Fatalf("got %d processed / %d skipped, want 1 / 1", len(result.Processed), len(result.Skipped))
	}
	if result.Skipped[0].Reason != ingest.SkipDuplicateFile {
		t.Errorf("skip reason = %q, want %q", result.Skipped[0].Reason, ingest.SkipDuplicateFile)
	}
}
