// File: internal/jobs/jobs.go

// Package jobs tracks asynchronous browser-agent runs. A job is created,
// started in a background goroutine, and polled by ID until it reaches a
// terminal state. Terminal records are immutable and are removed only by
// garbage collection.
package jobs

import (
	"context"
	"time"

	"github.com/xkilldash9x/webpilot/internal/agent"
)

// State is the lifecycle of a job record.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether a state can no longer change.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Runner is one executable task run. *agent.Agent satisfies it; tests
// substitute stubs that never touch a browser.
type Runner interface {
	Run(ctx context.Context, task, startURL string) (*agent.Result, error)
	Progress() []agent.ProgressEvent
	Teardown()
}

// RunnerFactory builds the runner for one job: browser session, decision
// client, artifact session. Construction failures fail the job.
type RunnerFactory func(ctx context.Context) (Runner, error)

// ProgressSummary is the compact progress view returned by status polls:
// the total event count plus the most recent progress messages.
type ProgressSummary struct {
	TotalSteps    int      `json:"total_steps"`
	RecentActions []string `json:"recent_actions"`
}

// View is the externally visible snapshot of a job record. Events carries
// the complete ordered timeline and is populated only for full (non-compact)
// reads.
type View struct {
	ID          string                `json:"job_id"`
	State       State                 `json:"state"`
	Task        string                `json:"task"`
	StartURL    string                `json:"url,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   time.Time             `json:"started_at,omitzero"`
	FinishedAt  time.Time             `json:"finished_at,omitzero"`
	ElapsedSecs float64               `json:"elapsed_seconds"`
	Progress    ProgressSummary       `json:"progress"`
	Events      []agent.ProgressEvent `json:"events,omitempty"`
	Result      string                `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	ArtifactDir string                `json:"artifact_dir,omitempty"`
}

// recentActionLimit bounds how many progress messages a compact view carries.
const recentActionLimit = 3
