package scanner

import "fmt"

// ValidationError reports model output that failed schema validation. It is
// fatal for the file being ingested; nothing has been persisted when it is
// returned.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scan result validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ScanError reports a failure of the OCR model call itself. ModelNotFound
// distinguishes a misconfigured/unknown model identifier from a generic
// upstream failure.
type ScanError struct {
	Model         string
	ModelNotFound bool
	Err           error
}

func (e *ScanError) Error() string {
	if e.ModelNotFound {
		return fmt.Sprintf("scan failed: model %q not found or misconfigured: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("scan failed (model %q): %v", e.Model, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }
