// File: internal/browser/keys.go
package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

// namedKeys maps the key names used by the decision service to the control
// runes chromedp's kb package understands.
var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"space":      " ",
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"up":         kb.ArrowUp,
	"down":       kb.ArrowDown,
	"left":       kb.ArrowLeft,
	"right":      kb.ArrowRight,
}

// modifierKeys maps modifier names to CDP input modifiers. Both the
// Playwright-style ("Meta") and abbreviated ("cmd") spellings appear in
// model output.
var modifierKeys = map[string]input.Modifier{
	"control": input.ModifierCtrl,
	"ctrl":    input.ModifierCtrl,
	"alt":     input.ModifierAlt,
	"option":  input.ModifierAlt,
	"shift":   input.ModifierShift,
	"meta":    input.ModifierMeta,
	"cmd":     input.ModifierMeta,
	"command": input.ModifierMeta,
	"super":   input.ModifierMeta,
	"win":     input.ModifierMeta,
}

// parseChord splits a chord like "Control+Shift+r" into the terminal key and
// the accumulated modifier mask. A chord must end in exactly one
// non-modifier key.
func parseChord(chord string) (string, input.Modifier, error) {
	parts := strings.Split(chord, "+")

	var modifiers input.Modifier
	key := ""

	for _, part := range parts {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if mod, ok := modifierKeys[name]; ok {
			modifiers |= mod
			continue
		}
		if key != "" {
			return "", 0, fmt.Errorf("invalid key chord %q: more than one non-modifier key", chord)
		}
		if named, ok := namedKeys[name]; ok {
			key = named
		} else if utf8.RuneCountInString(strings.TrimSpace(part)) == 1 {
			key = strings.TrimSpace(part)
		} else {
			return "", 0, fmt.Errorf("invalid key chord %q: unknown key %q", chord, part)
		}
	}

	if key == "" {
		return "", 0, fmt.Errorf("invalid key chord %q: no terminal key", chord)
	}
	return key, modifiers, nil
}
