package reconcile

import (
	"errors"
	"fmt"

	"voicebatch-platform/internal/calls"
)

// Source labels writes made by the polling path.
const Source = "poll"

// BatchInfo summarizes the platform's view of a batch.
type BatchInfo struct {
	Status     string `json:"status"`
	TotalCalls int    `json:"total_calls"`
}

// Result is what a sync hands back to the caller.
type Result struct {
	Results []calls.CallResult `json:"data"`
	Info    BatchInfo          `json:"batch_info"`

	// Skipped is set when another sync for the batch held the slot and the
	// upstream pull was not attempted.
	Skipped bool `json:"-"`
	// Reconciled counts results written by this pass.
	Reconciled int `json:"-"`
	// Failed counts recipients skipped because of an error.
	Failed int `json:"-"`
}

// ErrUnknownOnPlatform is wrapped into a SyncError when the platform answers
// 404 for a batch that exists locally.
var ErrUnknownOnPlatform = errors.New("batch unknown on voice platform")

// SyncError reports an upstream failure. The Result returned with it still
// carries the locally stored results.
type SyncError struct {
	BatchID string
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync batch %s: %v", e.BatchID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
