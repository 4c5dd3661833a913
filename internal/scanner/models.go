package scanner

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// StructuredReceipt is the validated result of an OCR scan. It is the only
// shape model output is allowed to enter the pipeline in.
type StructuredReceipt struct {
	StoreName     string   `json:"store_name" validate:"required"`
	StoreLocation string   `json:"store_location,omitempty"`
	PurchaseDate  string   `json:"purchase_date" validate:"required,datetime=2006-01-02"`
	Total         *float64 `json:"total,omitempty"`
	Items         []Item   `json:"items" validate:"required,dive"`
}

// Item is a single extracted receipt line.
type Item struct {
	RawText        string  `json:"raw_text" validate:"required"`
	NormalizedName string  `json:"normalized_name" validate:"required"`
	Brand          string  `json:"brand,omitempty"`
	Quantity       float64 `json:"quantity" validate:"gt=0"`
	Price          float64 `json:"price" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the receipt against the schema the pipeline requires:
// store name and ISO purchase date present, every item carrying raw text, a
// proposed name and a positive quantity. Any mismatch is fatal for the scan.
func (r *StructuredReceipt) Validate() error {
	if err := validate.Struct(r); err != nil {
		return &ValidationError{Err: fmt.Errorf("receipt schema: %w", err)}
	}
	return nil
}
