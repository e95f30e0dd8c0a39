// File: internal/agent/actions.go
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Kind is the closed set of browser actions the decision service may
// request. Anything outside the vocabulary parses to KindUnrecognized,
// which executes as a logged no-op rather than an error.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindOpenBrowser
	KindWait
	KindGoBack
	KindGoForward
	KindSearch
	KindNavigate
	KindClickAt
	KindHoverAt
	KindTypeTextAt
	KindKeyCombination
	KindScrollDocument
	KindScrollAt
	KindDragAndDrop
)

// KindOf maps a wire action name to its Kind. The Computer Use API has used
// both the long and short spellings for the first two actions.
func KindOf(name string) Kind {
	switch name {
	case "open_web_browser", "open_browser":
		return KindOpenBrowser
	case "wait_5_seconds", "wait":
		return KindWait
	case "go_back":
		return KindGoBack
	case "go_forward":
		return KindGoForward
	case "search":
		return KindSearch
	case "navigate":
		return KindNavigate
	case "click_at":
		return KindClickAt
	case "hover_at":
		return KindHoverAt
	case "type_text_at":
		return KindTypeTextAt
	case "key_combination":
		return KindKeyCombination
	case "scroll_document":
		return KindScrollDocument
	case "scroll_at":
		return KindScrollAt
	case "drag_and_drop":
		return KindDragAndDrop
	default:
		return KindUnrecognized
	}
}

// Browser is the minimal surface the dispatcher and loop need from a
// browser session. *browser.Session satisfies it; tests substitute a fake.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	WaitReady(ctx context.Context, timeout time.Duration) error
	Screenshot(ctx context.Context) ([]byte, error)
	Location(ctx context.Context) (string, error)
	ClickAt(ctx context.Context, x, y int) error
	MoveTo(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	PressKeys(ctx context.Context, chord string) error
	ScrollWheel(ctx context.Context, x, y, deltaX, deltaY int) error
	DragAndDrop(ctx context.Context, x, y, destX, destY int) error
	Close(ctx context.Context) error
}

// Outcome reports the observable result of one executed action. Err is a
// contained per-action failure: it is fed back to the decision service as
// context, never propagated. SafetyAck echoes the request's
// safety-acknowledgment token unmodified when one was present.
type Outcome struct {
	Name      string
	Err       error
	SafetyAck any
}

// Dispatcher translates one action request into browser input operations.
type Dispatcher struct {
	browser Browser
	cfg     Config
	logger  *zap.Logger
}

// NewDispatcher wires a dispatcher to a browser session.
func NewDispatcher(browser Browser, cfg Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		browser: browser,
		cfg:     cfg,
		logger:  logger.Named("dispatcher"),
	}
}

// Execute runs a single action request. Failures are contained in the
// returned Outcome. After a successful navigation-class action it waits,
// bounded and non-fatally, for the document to be ready; after any other
// successful action it applies a short settle delay so the next capture
// sees rendered UI.
func (d *Dispatcher) Execute(ctx context.Context, call *genai.FunctionCall) Outcome {
	kind := KindOf(call.Name)
	d.logger.Debug("Executing action.", zap.String("action", call.Name))

	err := d.perform(ctx, kind, call)
	if err != nil {
		d.logger.Warn("Action failed.", zap.String("action", call.Name), zap.Error(err))
	} else {
		d.stabilize(ctx, kind)
	}

	outcome := Outcome{Name: call.Name, Err: err}
	if call.Args != nil {
		if token, ok := call.Args["safety_decision"]; ok {
			outcome.SafetyAck = token
		}
	}
	return outcome
}

func (d *Dispatcher) perform(ctx context.Context, kind Kind, call *genai.FunctionCall) error {
	args := call.Args

	switch kind {
	case KindOpenBrowser:
		// Browser is already open.
		return nil

	case KindWait:
		return sleepCtx(ctx, d.cfg.WaitDuration)

	case KindGoBack:
		return d.browser.Back(ctx)

	case KindGoForward:
		return d.browser.Forward(ctx)

	case KindSearch:
		return d.navigate(ctx, d.cfg.SearchURL)

	case KindNavigate:
		url, err := stringArg(args, call.Name, "url")
		if err != nil {
			return err
		}
		return d.navigate(ctx, url)

	case KindClickAt:
		x, y, err := d.pointArgs(args, call.Name, "x", "y")
		if err != nil {
			return err
		}
		return d.browser.ClickAt(ctx, x, y)

	case KindHoverAt:
		x, y, err := d.pointArgs(args, call.Name, "x", "y")
		if err != nil {
			return err
		}
		return d.browser.MoveTo(ctx, x, y)

	case KindTypeTextAt:
		return d.typeTextAt(ctx, call.Name, args)

	case KindKeyCombination:
		keys, err := stringArg(args, call.Name, "keys")
		if err != nil {
			return err
		}
		return d.browser.PressKeys(ctx, keys)

	case KindScrollDocument:
		direction, err := stringArg(args, call.Name, "direction")
		if err != nil {
			return err
		}
		chord, ok := scrollKeys[direction]
		if !ok {
			return fmt.Errorf("action %q: unsupported direction %q", call.Name, direction)
		}
		return d.browser.PressKeys(ctx, chord)

	case KindScrollAt:
		return d.scrollAt(ctx, call.Name, args)

	case KindDragAndDrop:
		x, y, err := d.pointArgs(args, call.Name, "x", "y")
		if err != nil {
			return err
		}
		destX, destY, err := d.pointArgs(args, call.Name, "destination_x", "destination_y")
		if err != nil {
			return err
		}
		return d.browser.DragAndDrop(ctx, x, y, destX, destY)

	default:
		d.logger.Warn("Unimplemented action requested; treating as no-op.", zap.String("action", call.Name))
		return nil
	}
}

// scrollKeys maps document scroll directions to page-level scroll keys.
var scrollKeys = map[string]string{
	"down":  "PageDown",
	"up":    "PageUp",
	"left":  "ArrowLeft",
	"right": "ArrowRight",
}

// navigate loads a URL under the configured navigation timeout.
func (d *Dispatcher) navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.cfg.NavigationTimeout)
	defer cancel()
	return d.browser.Navigate(navCtx, url)
}

func (d *Dispatcher) typeTextAt(ctx context.Context, name string, args map[string]any) error {
	x, y, err := d.pointArgs(args, name, "x", "y")
	if err != nil {
		return err
	}
	text, err := stringArg(args, name, "text")
	if err != nil {
		return err
	}
	pressEnter := boolArgDefault(args, "press_enter", true)
	clearFirst := boolArgDefault(args, "clear_before_typing", true)

	if err := d.browser.ClickAt(ctx, x, y); err != nil {
		return err
	}
	if clearFirst {
		if err := d.browser.PressKeys(ctx, "Control+a"); err != nil {
			return err
		}
		if err := d.browser.PressKeys(ctx, "Backspace"); err != nil {
			return err
		}
	}
	if err := d.browser.TypeText(ctx, text); err != nil {
		return err
	}
	if pressEnter {
		return d.browser.PressKeys(ctx, "Enter")
	}
	return nil
}

func (d *Dispatcher) scrollAt(ctx context.Context, name string, args map[string]any) error {
	x, y, err := d.pointArgs(args, name, "x", "y")
	if err != nil {
		return err
	}
	direction, err := stringArg(args, name, "direction")
	if err != nil {
		return err
	}
	magnitude := intArgDefault(args, "magnitude", 800)

	if err := d.browser.MoveTo(ctx, x, y); err != nil {
		return err
	}

	// Scroll distance scales with the viewport, like coordinates do.
	amount := magnitude * d.cfg.ViewportHeight / 1000
	switch direction {
	case "down":
		return d.browser.ScrollWheel(ctx, x, y, 0, amount)
	case "up":
		return d.browser.ScrollWheel(ctx, x, y, 0, -amount)
	case "right":
		return d.browser.ScrollWheel(ctx, x, y, amount, 0)
	case "left":
		return d.browser.ScrollWheel(ctx, x, y, -amount, 0)
	default:
		return fmt.Errorf("action %q: unsupported direction %q", name, direction)
	}
}

// stabilize lets the page settle after an action. Navigation-class actions
// wait for document readiness (a timeout here is not fatal); everything
// else gets a fixed settle delay before the next capture.
func (d *Dispatcher) stabilize(ctx context.Context, kind Kind) {
	switch kind {
	case KindNavigate, KindGoBack, KindGoForward, KindSearch:
		if err := d.browser.WaitReady(ctx, d.cfg.LoadWait); err != nil {
			d.logger.Debug("Document readiness wait did not complete.", zap.Error(err))
		}
	case KindWait:
		// The action itself was the pause.
	default:
		if err := sleepCtx(ctx, d.cfg.SettleDelay); err != nil {
			d.logger.Debug("Settle delay interrupted.", zap.Error(err))
		}
	}
}

// pointArgs extracts a normalized coordinate pair and maps it to device
// pixels via the configured viewport.
func (d *Dispatcher) pointArgs(args map[string]any, name, xKey, yKey string) (int, int, error) {
	nx, err := intArg(args, name, xKey)
	if err != nil {
		return 0, 0, err
	}
	ny, err := intArg(args, name, yKey)
	if err != nil {
		return 0, 0, err
	}
	return MapAxis(nx, d.cfg.ViewportWidth), MapAxis(ny, d.cfg.ViewportHeight), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JSON decoding hands us float64 for every number; the SDK may also produce
// native ints. Required arguments that are absent or non-numeric are
// per-action failures, contained by the caller.
func intArg(args map[string]any, action, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("action %q missing required argument %q", action, key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case float32:
		return int(n), nil
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("action %q argument %q is not a number", action, key)
	}
}

func intArgDefault(args map[string]any, key string, def int) int {
	if _, ok := args[key]; !ok {
		return def
	}
	if n, err := intArg(args, "", key); err == nil {
		return n
	}
	return def
}

func stringArg(args map[string]any, action, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("action %q missing required argument %q", action, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("action %q argument %q is not a string", action, key)
	}
	return s, nil
}

func boolArgDefault(args map[string]any, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
