package task

import (
	"errors"
	"fmt"
	"time"
)

// Patch is a partial update to a task. Nil fields are left untouched.
type Patch struct {
	JobID           *string
	Status          *Status
	Progress        *int
	CompletedAt     *time.Time
	ProcessingTime  *float64
	Result          *Result
	Error           *string
	InputImageURL   *string
	ModelPreference *string
}

// Validate rejects field combinations that would break task invariants:
// completion fields require a terminal status, and an error text requires a
// failed status.
func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("invalid status %q", *p.Status)
	}
	terminal := p.Status != nil && p.Status.Terminal()
	if !terminal && (p.CompletedAt != nil || p.ProcessingTime != nil || p.Result != nil) {
		return errors.New("completed_at, processing_time and result require a terminal status")
	}
	if p.Error != nil && (p.Status == nil || *p.Status != StatusFailed) {
		return errors.New("error requires status failed")
	}
	if p.Progress != nil && (*p.Progress < 0 || *p.Progress > 100) {
		return fmt.Errorf("progress %d out of range", *p.Progress)
	}
	return nil
}

// Apply merges the patch into t. JobID, InputImageURL and ModelPreference are
// set once and never overwritten. A terminal -> queued transition is a manual
// retry and clears the terminal fields so that completed_at stays tied to a
// terminal status.
func (p Patch) Apply(t *Task) {
	if p.JobID != nil && t.JobID == "" {
		t.JobID = *p.JobID
	}
	if p.Status != nil {
		if t.Status.Terminal() && *p.Status == StatusQueued {
			t.CompletedAt = nil
			t.ProcessingTime = nil
			t.Result = nil
			t.Error = ""
			t.Progress = 0
		}
		t.Status = *p.Status
	}
	if p.Progress != nil {
		t.Progress = *p.Progress
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		t.CompletedAt = &v
	}
	if p.ProcessingTime != nil {
		v := *p.ProcessingTime
		t.ProcessingTime = &v
	}
	if p.Result != nil {
		v := *p.Result
		t.Result = &v
	}
	if p.Error != nil {
		t.Error = *p.Error
	}
	if p.InputImageURL != nil && t.InputImageURL == "" {
		t.InputImageURL = *p.InputImageURL
	}
	if p.ModelPreference != nil && t.ModelPreference == "" {
		t.ModelPreference = *p.ModelPreference
	}
}
