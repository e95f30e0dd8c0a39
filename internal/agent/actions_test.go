// File: internal/agent/actions_test.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"
)

// fakeBrowser records every call it receives and can be programmed to fail
// specific operations.
type fakeBrowser struct {
	mu    sync.Mutex
	calls []string

	failNavigate   error
	failScreenshot error
	screenshot     []byte
	location       string
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		screenshot: []byte("png-bytes"),
		location:   "https://example.com/page",
	}
}

func (f *fakeBrowser) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeBrowser) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeBrowser) Navigate(_ context.Context, url string) error {
	f.record("navigate %s", url)
	return f.failNavigate
}
func (f *fakeBrowser) Back(context.Context) error    { f.record("back"); return nil }
func (f *fakeBrowser) Forward(context.Context) error { f.record("forward"); return nil }
func (f *fakeBrowser) WaitReady(context.Context, time.Duration) error {
	f.record("wait_ready")
	return nil
}
func (f *fakeBrowser) Screenshot(context.Context) ([]byte, error) {
	f.record("screenshot")
	if f.failScreenshot != nil {
		return nil, f.failScreenshot
	}
	return f.screenshot, nil
}
func (f *fakeBrowser) Location(context.Context) (string, error) {
	f.record("location")
	return f.location, nil
}
func (f *fakeBrowser) ClickAt(_ context.Context, x, y int) error {
	f.record("click %d,%d", x, y)
	return nil
}
func (f *fakeBrowser) MoveTo(_ context.Context, x, y int) error {
	f.record("move %d,%d", x, y)
	return nil
}
func (f *fakeBrowser) TypeText(_ context.Context, text string) error {
	f.record("type %s", text)
	return nil
}
func (f *fakeBrowser) PressKeys(_ context.Context, chord string) error {
	f.record("keys %s", chord)
	return nil
}
func (f *fakeBrowser) ScrollWheel(_ context.Context, x, y, dx, dy int) error {
	f.record("scroll %d,%d delta %d,%d", x, y, dx, dy)
	return nil
}
func (f *fakeBrowser) DragAndDrop(_ context.Context, x, y, dx, dy int) error {
	f.record("drag %d,%d -> %d,%d", x, y, dx, dy)
	return nil
}
func (f *fakeBrowser) Close(context.Context) error { f.record("close"); return nil }

func testConfig() Config {
	return Config{
		MaxTurns:          30,
		SearchURL:         "https://www.google.com",
		NavigationTimeout: time.Second,
		LoadWait:          10 * time.Millisecond,
		SettleDelay:       0,
		WaitDuration:      0,
		ViewportWidth:     1000,
		ViewportHeight:    1000,
	}
}

func newTestDispatcher(t *testing.T, fb *fakeBrowser) *Dispatcher {
	t.Helper()
	return NewDispatcher(fb, testConfig(), zaptest.NewLogger(t))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindOpenBrowser, KindOf("open_web_browser"))
	assert.Equal(t, KindOpenBrowser, KindOf("open_browser"))
	assert.Equal(t, KindWait, KindOf("wait_5_seconds"))
	assert.Equal(t, KindWait, KindOf("wait"))
	assert.Equal(t, KindClickAt, KindOf("click_at"))
	assert.Equal(t, KindUnrecognized, KindOf("teleport"))
	assert.Equal(t, KindUnrecognized, KindOf(""))
}

func TestExecute_ClickMapsCoordinates(t *testing.T) {
	fb := newFakeBrowser()
	d := NewDispatcher(fb, Config{
		ViewportWidth:  1440,
		ViewportHeight: 900,
	}, zaptest.NewLogger(t))

	out := d.Execute(context.Background(), &genai.FunctionCall{
		Name: "click_at",
		Args: map[string]any{"x": 500.0, "y": 999.0},
	})

	require.NoError(t, out.Err)
	assert.Contains(t, fb.Calls(), "click 720,899")
}

func TestExecute_TypeTextAtSequence(t *testing.T) {
	fb := newFakeBrowser()
	d := newTestDispatcher(t, fb)

	out := d.Execute(context.Background(), &genai.FunctionCall{
		Name: "type_text_at",
		Args: map[string]any{"x": 100.0, "y": 200.0, "text": "golang"},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, []string{
		"click 100,200",
		"keys Control+a",
		"keys Backspace",
		"type golang",
		"keys Enter",
	}, fb.Calls())
}

func TestExecute_TypeTextAtWithoutEnterOrClear(t *testing.T) {
	fb := newFakeBrowser()
	d := newTestDispatcher(t, fb)

	out := d.Execute(context.Background(), &genai.FunctionCall{
		Name: "type_text_at",
		Args: map[string]any{
			"x": 0.0, "y": 0.0, "text": "partial",
			"press_enter":         false,
			"clear_before_typing": false,
		},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, []string{"click 0,0", "type partial"}, fb.Calls())
}

func TestExecute_ScrollAtScalesMagnitude(t *testing.T) {
	fb := newFakeBrowser()
	d := NewDispatcher(fb, Config{
		ViewportWidth:  1000,
		ViewportHeight: 800,
	}, zaptest.NewLogger(t))

	out := d.Execute(context.Background(), &genai.FunctionCall{
		Name: "scroll_at",
		Args: map[string]any{"x": 500.0, "y": 500.0, "direction": "down", "magnitude": 500.0},
	})

	require.NoError(t, out.Err)
	// magnitude 500 on an 800px viewport scrolls 400px down.
	assert.Equal(t, []string{"move 500,400", "scroll 500,400 delta 0,400"}, fb.Calls())
}

func TestExecute_ScrollAtDefaultsMagnitude(t *testing.T) {
	fb := newFakeBrowser()
	d := newTestDispatcher(t, fb)

	out := d.Execute(context.Background(), &genai.FunctionCall{
		Name: "scroll_at",
		Args: map[string]any{"x": 0.0, "y": 0.0, "direction": "up"},
	})

	require.NoError(t, out.Err)
	assert.Contains(t, fb.Calls(), "scroll 0,0 delta 0,-800")
}

func TestExecute_ScrollDocument(t *testing.T) {
	fb := newFakeBrowser()
	d := newTestDispatcher(t, fb)

	out := d.Execute(context.Background(), &genai.FunctionCall{
		Name: "scroll_document",
		Args: map[string]any{"direction": "down"},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, []string{"keys PageDown"}, fb.Calls())
}

func TestExecute_MissingArgumentIsContained(t *testing.T) {
	fb := newFakeBrowser()
	d := newTestDispatcher(t, fb)

	out := d.Execute(context.Background(), &genai.FunctionCall{
		Name: "navigate",
		Args: map[string]any{},
	})

	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "missing required argument")
	assert.Empty(t, fb.Calls(), "no browser call should happen on bad arguments")
}

func TestExecute_UnrecognizedIsNoOp(t *testing.T) {
	fb := newFakeBrowser()
	d := newTestDispatcher(t, fb)

	out := d.Execute(context.Background(), &genai.FunctionCall{Name: "teleport"})

	assert.NoError(t, out.Err)
	assert.Empty(t, fb.Calls())
}

func TestExecute_NavigateWaitsForReadiness(t *testing.T) {
	fb := newFakeBrowser()
	d := newTestDispatcher(t, fb)

	out := d.Execute(context.Background(), &genai.FunctionCall{
		Name: "navigate",
		Args: map[string]any{"url": "https://example.com"},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, []string{"navigate https://example.com", "wait_ready"}, fb.Calls())
}

func TestExecute_FailedActionSkipsStabilize(t *testing.T) {
	fb := newFakeBrowser()
	fb.failNavigate = errors.New("net::ERR_NAME_NOT_RESOLVED")
	d := newTestDispatcher(t, fb)

	out := d.Execute(context.Background(), &genai.FunctionCall{
		Name: "navigate",
		Args: map[string]any{"url": "https://bad.invalid"},
	})

	require.Error(t, out.Err)
	assert.Equal(t, []string{"navigate https://bad.invalid"}, fb.Calls())
}

func TestExecute_SafetyTokenPassesThrough(t *testing.T) {
	fb := newFakeBrowser()
	d := newTestDispatcher(t, fb)

	token := map[string]any{"decision": "require_confirmation", "explanation": "checkout page"}
	out := d.Execute(context.Background(), &genai.FunctionCall{
		Name: "click_at",
		Args: map[string]any{"x": 1.0, "y": 1.0, "safety_decision": token},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, token, out.SafetyAck)
}

func TestIntArg(t *testing.T) {
	args := map[string]any{"f": 12.9, "i": 7, "s": "nope"}

	n, err := intArg(args, "a", "f")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	n, err = intArg(args, "a", "i")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = intArg(args, "a", "s")
	assert.Error(t, err)

	_, err = intArg(args, "a", "missing")
	assert.Error(t, err)
}
