package ingest

import (
	"context"
	"fmt"
)

// SkippedFile records one duplicate in a batch and why it was skipped.
type SkippedFile struct {
	Name   string
	Reason SkipReason
}

// BatchResult summarizes a batch upload: receipt ids created, files skipped
// as duplicates, and (on failure) the file that aborted the batch.
type BatchResult struct {
	Processed  []string
	Skipped    []SkippedFile
	FailedFile string
}

// ExecuteBatch runs the pipeline for each file strictly in input order with
// no overlap, so a later file sees an earlier file's just-inserted hashes.
//
// The batch is fail-fast: the first fatal error aborts all remaining files.
// The returned BatchResult is valid in both outcomes; on error it names the
// offending file in FailedFile and the error itself wraps the cause.
func (p *Pipeline) ExecuteBatch(ctx context.Context, files []UploadFile) (*BatchResult, error) {
	result := &BatchResult{}

	for _, file := range files {
		res, err := p.Execute(ctx, file)
		if err != nil {
			result.FailedFile = file.Name
			return result, fmt.Errorf("processing %s: %w", file.Name, err)
		}

		switch res.Status {
		case StatusSkipped:
			result.Skipped = append(result.Skipped, SkippedFile{Name: file.Name, Reason: res.SkipReason})
		case StatusSuccess:
			result.Processed = append(result.Processed, res.ReceiptID)
		}
	}

	return result, nil
}
