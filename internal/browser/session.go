// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session wraps a single browser tab and exposes the pixel-level operations
// the agent needs: navigation, raw input events, and perception capture.
// A Session is owned by exactly one agent run and is not safe for concurrent
// use; Close is the exception and may be called from any goroutine, any
// number of times, including before first use.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

func newSession(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("session").With(zap.String("session_id", id)),
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Close tears down the tab. Safe to call repeatedly and on a session whose
// browser has already gone away.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// Navigate loads the given URL. The caller bounds the operation via ctx.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Back navigates one entry back in the tab history.
func (s *Session) Back(ctx context.Context) error {
	if err := s.run(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("history back failed: %w", err)
	}
	return nil
}

// Forward navigates one entry forward in the tab history.
func (s *Session) Forward(ctx context.Context) error {
	if err := s.run(ctx, chromedp.NavigateForward()); err != nil {
		return fmt.Errorf("history forward failed: %w", err)
	}
	return nil
}

// WaitReady waits, bounded by timeout, for the document body to be ready.
// A timeout is reported as an error; callers treat it as non-fatal.
func (s *Session) WaitReady(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.run(waitCtx, chromedp.WaitReady("body", chromedp.ByQuery))
}

// Screenshot captures the current viewport as PNG without altering page state.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// Location returns the tab's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read current location: %w", err)
	}
	return url, nil
}

// ClickAt performs a left click at the given device pixel coordinates.
func (s *Session) ClickAt(ctx context.Context, x, y int) error {
	if err := s.run(ctx, chromedp.MouseClickXY(float64(x), float64(y))); err != nil {
		return fmt.Errorf("click at (%d,%d) failed: %w", x, y, err)
	}
	return nil
}

// MoveTo moves the mouse cursor to the given device pixel coordinates.
func (s *Session) MoveTo(ctx context.Context, x, y int) error {
	move := input.DispatchMouseEvent(input.MouseMoved, float64(x), float64(y))
	if err := s.run(ctx, move); err != nil {
		return fmt.Errorf("mouse move to (%d,%d) failed: %w", x, y, err)
	}
	return nil
}

// ScrollWheel dispatches a wheel event at the given position. Positive deltaY
// scrolls down, positive deltaX scrolls right.
func (s *Session) ScrollWheel(ctx context.Context, x, y, deltaX, deltaY int) error {
	wheel := input.DispatchMouseEvent(input.MouseWheel, float64(x), float64(y)).
		WithDeltaX(float64(deltaX)).
		WithDeltaY(float64(deltaY))
	if err := s.run(ctx, wheel); err != nil {
		return fmt.Errorf("scroll at (%d,%d) failed: %w", x, y, err)
	}
	return nil
}

// DragAndDrop presses at the source, moves to the destination, and releases.
func (s *Session) DragAndDrop(ctx context.Context, x, y, destX, destY int) error {
	fx, fy := float64(x), float64(y)
	dx, dy := float64(destX), float64(destY)

	actions := chromedp.Tasks{
		input.DispatchMouseEvent(input.MouseMoved, fx, fy),
		input.DispatchMouseEvent(input.MousePressed, fx, fy).
			WithButton(input.Left).
			WithClickCount(1),
		input.DispatchMouseEvent(input.MouseMoved, dx, dy).
			WithButton(input.Left),
		input.DispatchMouseEvent(input.MouseReleased, dx, dy).
			WithButton(input.Left).
			WithClickCount(1),
	}
	if err := s.run(ctx, actions); err != nil {
		return fmt.Errorf("drag from (%d,%d) to (%d,%d) failed: %w", x, y, destX, destY, err)
	}
	return nil
}

// TypeText sends the text to the focused element as key events.
func (s *Session) TypeText(ctx context.Context, text string) error {
	if err := s.run(ctx, chromedp.KeyEvent(text)); err != nil {
		return fmt.Errorf("typing failed: %w", err)
	}
	return nil
}

// PressKeys sends a key chord such as "Enter", "PageDown" or "Control+a".
func (s *Session) PressKeys(ctx context.Context, chord string) error {
	key, modifiers, err := parseChord(chord)
	if err != nil {
		return err
	}

	var action chromedp.Action
	if modifiers == 0 {
		action = chromedp.KeyEvent(key)
	} else {
		action = chromedp.KeyEvent(key, chromedp.KeyModifiers(modifiers))
	}
	if err := s.run(ctx, action); err != nil {
		return fmt.Errorf("key chord %q failed: %w", chord, err)
	}
	return nil
}

// run executes chromedp actions on a context that carries the tab's CDP
// target but is cancelled when either the session or the caller's context
// ends.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return fmt.Errorf("browser session %s is closed", s.id)
	}
	s.mu.Unlock()

	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}

// combineContext derives a context from primary (which carries the CDP
// target values) that is additionally cancelled when secondary is done.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
