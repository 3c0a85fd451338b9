// internal/browser/typing.go
package browser

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/xkilldash9x/marketpilot/internal/config"
)

const (
	enterKey     = '\r'
	backspaceKey = '\b'
)

// newKeyDelay returns a source of inter-key delays drawn uniformly from
// [KeyDelayMin, KeyDelayMax]. A zero range types without pauses.
func newKeyDelay(cfg config.TypingConfig) func() time.Duration {
	lo, hi := cfg.KeyDelayMin, cfg.KeyDelayMax
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	return func() time.Duration {
		if hi == lo {
			return lo
		}
		return lo + rand.N(hi-lo+1)
	}
}

// keystrokes builds the key events for text, each followed by a pause from
// delay, and reports the total pause time.
func keystrokes(text string, delay func() time.Duration) ([]chromedp.Action, time.Duration) {
	var (
		actions []chromedp.Action
		total   time.Duration
	)
	for _, r := range text {
		actions = append(actions, keyPress(r)...)
		if d := delay(); d > 0 {
			actions = append(actions, chromedp.Sleep(d))
			total += d
		}
	}
	return actions, total
}

// keyPress encodes a single key as its down/char/up event sequence.
func keyPress(r rune) []chromedp.Action {
	events := kb.Encode(r)
	actions := make([]chromedp.Action, 0, len(events))
	for _, e := range events {
		actions = append(actions, e)
	}
	return actions
}

// selectAll presses Ctrl+A so the next keystroke replaces the field content.
func selectAll() []chromedp.Action {
	key := func(typ input.KeyType) *input.DispatchKeyEventParams {
		return input.DispatchKeyEvent(typ).
			WithKey("a").
			WithCode("KeyA").
			WithWindowsVirtualKeyCode(65).
			WithModifiers(input.ModifierCtrl)
	}
	return []chromedp.Action{key(input.KeyRawDown), key(input.KeyUp)}
}

func flattenLines(text string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
}
