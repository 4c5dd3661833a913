// Package scanner wraps the OCR/AI call that turns a photographed receipt
// into structured purchase data, and validates the model output before it is
// allowed into the ingestion pipeline.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/dvloznov/receipt-tracker/internal/logger"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used for receipt OCR. Override with the
// RECEIPT_MODEL environment variable.
const DefaultModel = "gemini-2.5-flash"

const scanPrompt = "You are a retail receipt parser.\n\n" +
	"Extract the store name, store location, purchase date, total amount and all line items " +
	"from the attached receipt photo.\n\n" +
	"Output STRICT JSON only (no comments, no trailing commas, no extra text), a single object " +
	"with these fields:\n" +
	"- \"store_name\": string\n" +
	"- \"store_location\": string or omitted\n" +
	"- \"purchase_date\": string, ISO format \"YYYY-MM-DD\"\n" +
	"- \"total\": number or omitted\n" +
	"- \"items\": array of objects, one per receipt line, each with:\n" +
	"  - \"raw_text\": the line exactly as printed on the receipt\n" +
	"  - \"normalized_name\": a clean human-readable product name\n" +
	"  - \"brand\": string or omitted\n" +
	"  - \"quantity\": number\n" +
	"  - \"price\": number, the total price for the line\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// GeminiScanner performs receipt OCR through the Gemini vision API.
type GeminiScanner struct {
	model string
}

// NewGeminiScanner creates a scanner for the given model. An empty model
// selects RECEIPT_MODEL from the environment, falling back to DefaultModel.
func NewGeminiScanner(model string) *GeminiScanner {
	if model == "" {
		model = os.Getenv("RECEIPT_MODEL")
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiScanner{model: model}
}

// Scan sends the receipt image to the model and returns the validated
// structured result. Schema mismatches surface as *ValidationError; failures
// of the model call itself as *ScanError.
func (s *GeminiScanner) Scan(ctx context.Context, filename string, data []byte) (*StructuredReceipt, error) {
	log := logger.FromContext(ctx)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("Scan: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: scanPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: http.DetectContentType(data),
						Data:     data,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		scanErr := &ScanError{
			Model:         s.model,
			ModelNotFound: isModelNotFound(err),
			Err:           err,
		}
		log.Error().Err(err).Str("model", s.model).Bool("model_not_found", scanErr.ModelNotFound).
			Str("file", filename).Msg("Receipt scan failed")
		return nil, scanErr
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, &ScanError{Model: s.model, Err: fmt.Errorf("empty response from model")}
	}

	clean := cleanModelJSON(rawText)

	var receipt StructuredReceipt
	if err := json.Unmarshal([]byte(clean), &receipt); err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("unmarshal model output: %w", err)}
	}

	if err := receipt.Validate(); err != nil {
		return nil, err
	}

	log.Debug().Str("file", filename).Str("model", s.model).
		Int("items", len(receipt.Items)).Msg("Receipt scanned")

	return &receipt, nil
}

func isModelNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not_found") || strings.Contains(msg, "not found")
}

// cleanModelJSON strips Markdown fences and surrounding junk when the model
// ignores the raw-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Keep only the outermost object if junk remains around it.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
