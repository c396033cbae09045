package tripmerge

import (
	"fmt"
	"time"
)

// BatchState is the lifecycle position of a batch within one run.
type BatchState string

const (
	StatePending    BatchState = "pending"
	StateStaged     BatchState = "staged"
	StateIdentified BatchState = "identified"
	StateMerged     BatchState = "merged"
	StateFailed     BatchState = "failed"
)

// Stage names the pipeline step a batch failed in.
type Stage string

const (
	StageSchema   Stage = "schema"
	StageStage    Stage = "stage"
	StageIdentify Stage = "identify"
	StageMerge    Stage = "merge"
)

// BatchResult is the explicit outcome of processing one batch.
type BatchResult struct {
	Key      BatchKey
	Filename string
	State    BatchState

	// FailedStage and Reason are set only when State is StateFailed.
	FailedStage Stage
	Reason      string
	Err         error `json:"-"`

	SchemaSource SchemaSource
	ObjectKey    string
	Uploaded     bool
	LoadJobID    string
	RowsLoaded   int64
	RowsTagged   int64
	RowsMerged   int64
	Duration     time.Duration
}

// Failed reports whether the batch ended in the failed state.
func (r BatchResult) Failed() bool {
	return r.State == StateFailed
}

func (r BatchResult) String() string {
	if r.Failed() {
		return fmt.Sprintf("%s: failed at %s: %s", r.Key, r.FailedStage, r.Reason)
	}
	return fmt.Sprintf("%s: %s (loaded=%d merged=%d)", r.Key, r.State, r.RowsLoaded, r.RowsMerged)
}

// Summary aggregates the results of one run, in input order.
type Summary struct {
	Mode     LoadMode
	Results  []BatchResult
	Duration time.Duration
}

// Count returns the number of batches in the given terminal state.
func (s Summary) Count(state BatchState) int {
	n := 0
	for _, r := range s.Results {
		if r.State == state {
			n++
		}
	}
	return n
}

// Succeeded returns the number of batches that reached the mode's terminal success state.
func (s Summary) Succeeded() int {
	return len(s.Results) - s.Count(StateFailed)
}

// RowsMerged sums newly inserted master rows across batches.
func (s Summary) RowsMerged() int64 {
	var n int64
	for _, r := range s.Results {
		n += r.RowsMerged
	}
	return n
}
