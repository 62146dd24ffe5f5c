// Package wire defines the JSON request/response shapes of spec.md §6's
// CAS and cache-plane HTTP endpoints, shared by pkg/cas and
// pkg/metadataclient.
package wire

import "github.com/hurrycache/hurrycache/pkg/savedunit"

// BulkCheckRequest is the body of POST /api/v1/cas/bulk-check.
type BulkCheckRequest struct {
	Keys []string `json:"keys"`
}

// BulkCheckResponse is the response body of POST /api/v1/cas/bulk-check.
type BulkCheckResponse struct {
	Present []string `json:"present"`
}

// BulkWriteError is one per-item failure in a BulkWriteResponse.
type BulkWriteError struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// BulkWriteResponse is the response body of POST /api/v1/cas/bulk-write.
// written ∪ skipped ∪ {e.Key for e in Errors} is always exactly the
// request key set, with no duplicates across the three (spec.md §8
// invariant 6).
type BulkWriteResponse struct {
	Written []string         `json:"written"`
	Skipped []string         `json:"skipped"`
	Errors  []BulkWriteError `json:"errors"`
}

// BulkReadRequest is the body of POST /api/v1/cas/bulk-read.
type BulkReadRequest struct {
	Keys []string `json:"keys"`
}

// RestoreRequest is the body of POST /api/v1/cache/cargo/restore.
type RestoreRequest struct {
	Keys []string `json:"keys"`
}

// RestoreResponse is the response body of POST /api/v1/cache/cargo/restore.
type RestoreResponse struct {
	Hits map[string]savedunit.SavedUnit `json:"hits"`
}

// SavePlan is the body of POST /api/v1/cache/cargo/save: a map from unit
// key hex to Saved Unit.
type SavePlan map[string]savedunit.SavedUnit

// ResetPreviewResponse is the response body of the supplemental, read-only
// GET /api/v1/cache/cargo/reset/preview diagnostic endpoint.
type ResetPreviewResponse struct {
	UnitCount    int `json:"unit_count"`
	ContentCount int `json:"content_count"`
}

// Limits mirror spec.md §6's batching ceilings. MaxKeysPerRestoreRequest is
// the §6 wire ceiling (100,000 keys/request); spec.md §4.6 step 2 describes
// the planner's restore loop chunking at a smaller 10,000-per-request
// batch size for latency, well under this wire limit, so the two numbers
// are deliberately different, not a transcription error.
const (
	MaxUnitsPerSaveRequest   = 10_000
	MaxKeysPerRestoreRequest = 100_000
	MaxSaveRequestBodyBytes  = 100 * 1024 * 1024
)
