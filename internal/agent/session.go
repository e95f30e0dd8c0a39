// File: internal/agent/session.go
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Category classifies progress events for consumers that only want a slice
// of the timeline (the job status view keeps the last few actions).
type Category string

const (
	CategoryInfo   Category = "info"
	CategoryTurn   Category = "turn"
	CategoryAction Category = "action"
	CategoryError  Category = "error"
)

// ProgressEvent is one line of the human-readable session timeline.
type ProgressEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"type"`
	Message   string    `json:"message"`
}

// Session owns the per-run artifact directory and the progress timeline.
// It is safe for concurrent use: the loop appends while a poller reads.
type Session struct {
	id  string
	dir string

	mu       sync.Mutex
	progress []ProgressEvent
	counter  int
}

// NewSession allocates a unique session ID and creates its artifact
// directory under baseDir.
func NewSession(baseDir string) (*Session, error) {
	id := time.Now().Format("20060102_150405") + "_" + uuid.NewString()[:8]
	dir := filepath.Join(baseDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	return &Session{id: id, dir: dir}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Dir returns the absolute artifact directory for this session.
func (s *Session) Dir() string { return s.dir }

// AddProgress appends one event to the timeline.
func (s *Session) AddProgress(category Category, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, ProgressEvent{
		Timestamp: time.Now().UTC(),
		Category:  category,
		Message:   message,
	})
}

// Progress returns a copy of the timeline so far.
func (s *Session) Progress() []ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProgressEvent, len(s.progress))
	copy(out, s.progress)
	return out
}

// SaveSnapshot writes one screenshot into the session directory. Filenames
// carry a monotonic step counter so lexical order is capture order; phase
// ("initial", "final", or empty) marks the loop boundaries.
func (s *Session) SaveSnapshot(data []byte, phase string) (string, error) {
	s.mu.Lock()
	s.counter++
	step := s.counter
	s.mu.Unlock()

	name := fmt.Sprintf("step_%02d", step)
	if phase != "" {
		name += "_" + phase
	}
	name += "_" + time.Now().Format("150405") + ".png"

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save screenshot %s: %w", path, err)
	}
	return path, nil
}

// SnapshotCount reports how many screenshots were persisted.
func (s *Session) SnapshotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}
