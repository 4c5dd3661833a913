package ingest

// UploadFile is one raw uploaded receipt photo.
type UploadFile struct {
	Name string
	Data []byte
}

// Receipt is the persisted form of an ingested receipt.
type Receipt struct {
	ID            string   `json:"receipt_id"`
	StoreName     string   `json:"store_name"`
	StoreLocation string   `json:"store_location,omitempty"`
	PurchaseDate  string   `json:"purchase_date"` // YYYY-MM-DD
	Total         *float64 `json:"total"`
	FilePath      string   `json:"file_path"`
	FileHash      string   `json:"file_hash"`
	ContentHash   string   `json:"content_hash"`
}

// ReceiptItem is one line of a receipt, linked to a canonical product.
type ReceiptItem struct {
	ReceiptID string
	ProductID string
	RawText   string
	Quantity  float64
	Price     float64
}

// Status is the terminal state of a single file's pipeline run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
)

// SkipReason distinguishes the two duplicate terminal states.
type SkipReason string

const (
	SkipDuplicateFile    SkipReason = "Duplicate file"
	SkipDuplicateContent SkipReason = "Duplicate content"
)

// Result is the outcome of ingesting one file.
type Result struct {
	Status     Status
	ReceiptID  string
	SkipReason SkipReason
}
