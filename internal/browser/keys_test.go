// File: internal/browser/keys_test.go
package browser

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChord(t *testing.T) {
	tests := []struct {
		chord     string
		wantKey   string
		wantMods  input.Modifier
	}{
		{"Enter", kb.Enter, 0},
		{"PageDown", kb.PageDown, 0},
		{"PageUp", kb.PageUp, 0},
		{"ArrowLeft", kb.ArrowLeft, 0},
		{"Backspace", kb.Backspace, 0},
		{"Control+a", "a", input.ModifierCtrl},
		{"Meta+A", "A", input.ModifierMeta},
		{"ctrl+shift+r", "r", input.ModifierCtrl | input.ModifierShift},
		{"Alt+ArrowLeft", kb.ArrowLeft, input.ModifierAlt},
		{"cmd+c", "c", input.ModifierMeta},
	}

	for _, tt := range tests {
		t.Run(tt.chord, func(t *testing.T) {
			key, mods, err := parseChord(tt.chord)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantMods, mods)
		})
	}
}

func TestParseChord_Invalid(t *testing.T) {
	for _, chord := range []string{"", "Control", "Control+", "a+b", "Control+Frobnicate"} {
		t.Run(chord, func(t *testing.T) {
			_, _, err := parseChord(chord)
			assert.Error(t, err)
		})
	}
}
