// File: internal/agent/session_test.go
package agent

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession_CreatesDirectory(t *testing.T) {
	base := t.TempDir()
	s, err := NewSession(base)
	require.NoError(t, err)

	assert.Regexp(t, `^\d{8}_\d{6}_[0-9a-f]{8}$`, s.ID())
	assert.Equal(t, filepath.Join(base, s.ID()), s.Dir())

	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSession_IDsAreUnique(t *testing.T) {
	base := t.TempDir()
	a, err := NewSession(base)
	require.NoError(t, err)
	b, err := NewSession(base)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestSaveSnapshot_NamesAndCounts(t *testing.T) {
	s, err := NewSession(t.TempDir())
	require.NoError(t, err)

	first, err := s.SaveSnapshot([]byte("a"), "initial")
	require.NoError(t, err)
	second, err := s.SaveSnapshot([]byte("b"), "")
	require.NoError(t, err)
	third, err := s.SaveSnapshot([]byte("c"), "final")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`step_01_initial_\d{6}\.png$`), first)
	assert.Regexp(t, regexp.MustCompile(`step_02_\d{6}\.png$`), second)
	assert.Regexp(t, regexp.MustCompile(`step_03_final_\d{6}\.png$`), third)
	assert.Equal(t, 3, s.SnapshotCount())

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)
}

func TestProgress_ReturnsCopy(t *testing.T) {
	s, err := NewSession(t.TempDir())
	require.NoError(t, err)

	s.AddProgress(CategoryInfo, "started")
	s.AddProgress(CategoryAction, "Action: click_at")

	events := s.Progress()
	require.Len(t, events, 2)
	assert.Equal(t, CategoryInfo, events[0].Category)
	assert.Equal(t, "Action: click_at", events[1].Message)
	assert.False(t, events[0].Timestamp.IsZero())

	// Mutating the returned slice must not touch the session's log.
	events[0].Message = "tampered"
	assert.Equal(t, "started", s.Progress()[0].Message)
}
