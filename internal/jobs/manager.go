// File: internal/jobs/manager.go
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/agent"
)

// job is the internal record. All fields are guarded by the manager's
// mutex; the mutex is never held across blocking work.
type job struct {
	id        string
	task      string
	startURL  string
	state     State
	createdAt time.Time
	startedAt time.Time
	doneAt    time.Time

	ctx    context.Context
	cancel context.CancelFunc
	runner Runner

	result      string
	artifactDir string
	err         string

	// Frozen copy of the timeline, taken once on finalize so polls of a
	// terminal job never touch the (torn down) runner.
	finalProgress []agent.ProgressEvent
}

// Manager owns the job registry. All bookkeeping happens under one mutex;
// browser work and model calls run in per-job goroutines outside it.
type Manager struct {
	mu      sync.Mutex
	jobs    map[string]*job
	factory RunnerFactory
	logger  *zap.Logger
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewManager builds a job manager around a runner factory.
func NewManager(factory RunnerFactory, logger *zap.Logger) *Manager {
	return &Manager{
		jobs:    make(map[string]*job),
		factory: factory,
		logger:  logger.Named("jobs"),
		now:     time.Now,
	}
}

// Create allocates a new pending record. Always succeeds; the job does not
// run until Start.
func (m *Manager) Create(task, startURL string) string {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	j := &job{
		id:        id,
		task:      task,
		startURL:  startURL,
		state:     StatePending,
		createdAt: m.now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	m.mu.Lock()
	m.jobs[id] = j
	m.mu.Unlock()

	m.logger.Info("Job created.", zap.String("job_id", id), zap.String("task", task))
	return id
}

// Start transitions pending -> running and launches the agent loop in its
// own goroutine. Returns false, without side effects, when the job is
// missing or not pending, so a double start is a safe no-op.
func (m *Manager) Start(id string) bool {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok || j.state != StatePending {
		m.mu.Unlock()
		return false
	}
	j.state = StateRunning
	j.startedAt = m.now()
	ctx, task, startURL := j.ctx, j.task, j.startURL
	m.mu.Unlock()

	m.logger.Info("Job started.", zap.String("job_id", id))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, id, task, startURL)
	}()
	return true
}

// run is the per-job goroutine: build the runner, execute, finalize.
func (m *Manager) run(ctx context.Context, id, task, startURL string) {
	runner, err := m.factory(ctx)
	if err != nil {
		m.logger.Error("Job setup failed.", zap.String("job_id", id), zap.Error(err))
		m.finalize(id, StateFailed, nil, fmt.Errorf("setup failed: %w", err))
		return
	}
	defer runner.Teardown()

	if !m.attachRunner(id, runner) {
		// Cancelled while the runner was being built.
		return
	}

	result, err := runner.Run(ctx, task, startURL)
	switch {
	case err != nil && ctx.Err() != nil:
		// Cancel already finalized the record; this write is discarded.
		m.finalize(id, StateCancelled, nil, err)
	case err != nil:
		m.finalize(id, StateFailed, nil, err)
	default:
		m.finalize(id, StateCompleted, result, nil)
	}
}

// attachRunner makes the live runner pollable. Returns false when the job
// already reached a terminal state.
func (m *Manager) attachRunner(id string, runner Runner) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.state.Terminal() {
		return false
	}
	j.runner = runner
	return true
}

// finalize records the job outcome. Writes against an already terminal
// record are discarded: the first terminal transition wins.
func (m *Manager) finalize(id string, state State, result *agent.Result, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.state.Terminal() {
		return
	}

	j.state = state
	j.doneAt = m.now()
	if result != nil {
		j.result = result.Data
		j.artifactDir = result.ArtifactDir
		j.finalProgress = result.Progress
	} else if j.runner != nil {
		j.finalProgress = j.runner.Progress()
	}
	if runErr != nil {
		j.err = runErr.Error()
	}
	j.runner = nil

	m.logger.Info("Job finished.",
		zap.String("job_id", id),
		zap.String("state", string(state)),
		zap.Duration("elapsed", j.doneAt.Sub(j.createdAt)))
}

// Cancel requests cooperative cancellation of a pending or running job.
// Unknown IDs and already-terminal jobs are reported as errors; the
// terminal record is left untouched.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no job with ID %s", id)
	}
	if j.state.Terminal() {
		state := j.state
		m.mu.Unlock()
		return fmt.Errorf("job %s is already %s", id, state)
	}

	j.state = StateCancelled
	j.doneAt = m.now()
	if j.runner != nil {
		j.finalProgress = j.runner.Progress()
		j.runner = nil
	}
	cancel := j.cancel
	m.mu.Unlock()

	// Signal the goroutine outside the lock; it observes ctx and tears
	// down its own browser session.
	cancel()

	m.logger.Info("Job cancelled.", zap.String("job_id", id))
	return nil
}

// Status returns one job's record. Compact mode carries only the progress
// summary; full mode additionally carries the complete ordered timeline.
func (m *Manager) Status(id string, compact bool) (View, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return View{}, fmt.Errorf("no job with ID %s", id)
	}
	runner := j.runner
	view := m.viewLocked(j)
	events := j.finalProgress
	m.mu.Unlock()

	// Live jobs read progress from the runner outside the lock: the
	// runner's own mutex guards its timeline.
	if runner != nil {
		events = runner.Progress()
		view.Progress = summarize(events)
	}
	if !compact {
		view.Events = events
	}
	return view, nil
}

// List returns full-detail views of all known jobs, newest first.
func (m *Manager) List() []View {
	m.mu.Lock()
	type pending struct {
		view   View
		events []agent.ProgressEvent
		runner Runner
	}
	items := make([]pending, 0, len(m.jobs))
	for _, j := range m.jobs {
		items = append(items, pending{view: m.viewLocked(j), events: j.finalProgress, runner: j.runner})
	}
	m.mu.Unlock()

	views := make([]View, 0, len(items))
	for _, it := range items {
		if it.runner != nil {
			it.events = it.runner.Progress()
			it.view.Progress = summarize(it.events)
		}
		it.view.Events = it.events
		views = append(views, it.view)
	}
	sort.Slice(views, func(a, b int) bool {
		return views[a].CreatedAt.After(views[b].CreatedAt)
	})
	return views
}

// viewLocked builds a compact View from a record. Caller holds the mutex.
func (m *Manager) viewLocked(j *job) View {
	end := m.now()
	if !j.doneAt.IsZero() {
		end = j.doneAt
	}
	return View{
		ID:          j.id,
		State:       j.state,
		Task:        j.task,
		StartURL:    j.startURL,
		CreatedAt:   j.createdAt,
		StartedAt:   j.startedAt,
		FinishedAt:  j.doneAt,
		ElapsedSecs: end.Sub(j.createdAt).Seconds(),
		Progress:    summarize(j.finalProgress),
		Result:      j.result,
		Error:       j.err,
		ArtifactDir: j.artifactDir,
	}
}

// summarize compacts a full timeline to a poll-friendly summary: the total
// step count and the last few messages, regardless of category.
func summarize(events []agent.ProgressEvent) ProgressSummary {
	summary := ProgressSummary{TotalSteps: len(events)}
	start := len(events) - recentActionLimit
	if start < 0 {
		start = 0
	}
	for _, e := range events[start:] {
		summary.RecentActions = append(summary.RecentActions, e.Message)
	}
	return summary
}

// GarbageCollect drops terminal records older than maxAge. Returns how
// many were removed. Live jobs are never collected.
func (m *Manager) GarbageCollect(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, j := range m.jobs {
		if j.state.Terminal() && !j.doneAt.IsZero() && j.doneAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("Garbage collected finished jobs.", zap.Int("removed", removed))
	}
	return removed
}

// Shutdown cancels every live job and waits for their goroutines, bounded
// by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.jobs))
	for _, j := range m.jobs {
		if !j.state.Terminal() {
			j.state = StateCancelled
			j.doneAt = m.now()
			if j.runner != nil {
				j.finalProgress = j.runner.Progress()
				j.runner = nil
			}
			cancels = append(cancels, j.cancel)
		}
	}
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job manager shutdown timed out: %w", ctx.Err())
	}
}
