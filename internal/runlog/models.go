package runlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status tracks a run through the worker pipeline.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProvisioning Status = "provisioning"
	StatusStarting     Status = "starting"
	StatusRendering    Status = "rendering"
	StatusCollecting   Status = "collecting"
	StatusStoring      Status = "storing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProvisioning,
	StatusStarting,
	StatusRendering,
	StatusCollecting,
	StatusStoring,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Valid reports whether the status is one the worker records.
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

// Terminal reports whether the run has finished processing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Statuses returns every status in pipeline order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Run is one render request processed by the worker. IDs are ULIDs and
// sort lexically by creation time.
type Run struct {
	ID           string
	ClientID     string
	PromptID     string
	Status       Status
	OutcomeJSON  string
	ErrorMessage string
	FailureKind  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Outcome summarizes what a finished run produced.
type Outcome struct {
	ArtifactPaths []string `json:"artifact_paths,omitempty"`
	ArtifactCount int      `json:"artifact_count"`
	StorageMode   string   `json:"storage_mode,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// SetOutcome serializes the outcome onto the run.
func (r *Run) SetOutcome(outcome Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	r.OutcomeJSON = string(data)
	return nil
}

// Outcome decodes the stored outcome. Runs without one return the zero value.
func (r *Run) Outcome() (Outcome, error) {
	if r.OutcomeJSON == "" {
		return Outcome{}, nil
	}
	var outcome Outcome
	if err := json.Unmarshal([]byte(r.OutcomeJSON), &outcome); err != nil {
		return Outcome{}, fmt.Errorf("unmarshal outcome: %w", err)
	}
	return outcome, nil
}

// Duration returns elapsed processing time when both marks are set.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}
