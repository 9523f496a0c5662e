package heuristics

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestObserveNoLoopOnVariedActions(t *testing.T) {
	g := NewLoopGuard(zaptest.NewLogger(t))
	actions := []string{
		"click 120,300",
		"type hello world",
		"press enter",
		"click 400,200",
		"scroll down",
		"click 88,90",
	}
	for _, a := range actions {
		assert.False(t, g.Observe(a), "action %q should not trip the guard", a)
	}
}

func TestObserveAlternatingPair(t *testing.T) {
	g := NewLoopGuard(zaptest.NewLogger(t))
	assert.False(t, g.Observe("click 100,100"))
	assert.False(t, g.Observe("press tab"))
	assert.False(t, g.Observe("click 100,100"))
	assert.True(t, g.Observe("press tab"), "A B A B must trip the guard")
}

func TestObserveIdenticalRun(t *testing.T) {
	// A A A A is a degenerate alternating pair.
	g := NewLoopGuard(zaptest.NewLogger(t))
	for i := 0; i < 3; i++ {
		g.Observe("click 50,50")
	}
	assert.True(t, g.Observe("click 50,50"))
}

func TestObserveEditSignalRepeat(t *testing.T) {
	g := NewLoopGuard(zaptest.NewLogger(t))
	assert.False(t, g.Observe("hotkey ctrl+a"))
	g.Observe("type better caption")
	g.Observe("click 10,10")
	assert.True(t, g.Observe("hotkey ctrl+a"), "second select-all within the window is a rewrite loop")
}

func TestObserveEditSignalAgesOut(t *testing.T) {
	g := NewLoopGuard(zaptest.NewLogger(t))
	g.Observe("hotkey ctrl+a")
	for i, a := range []string{"type x", "click 1,1", "press enter", "click 2,2", "scroll down", "click 3,3"} {
		require.False(t, g.Observe(a), "filler %d", i)
	}
	// The first select-all has left the buffer, so this one stands alone.
	assert.False(t, g.Observe("hotkey ctrl+a"))
}

func TestHistoryBounded(t *testing.T) {
	g := NewLoopGuard(zaptest.NewLogger(t))
	for i := 0; i < 20; i++ {
		g.Observe("type " + strings.Repeat("x", i))
	}
	assert.Len(t, g.History(), historySize)
}

func TestSignatureTruncation(t *testing.T) {
	long := strings.Repeat("a", 80)
	assert.Len(t, Signature(long), signatureLen)
	assert.Equal(t, "short", Signature("short"))

	// Multi-byte runes straddling the cut must not be split.
	wide := strings.Repeat("é", 80)
	sig := Signature(wide)
	assert.True(t, utf8.ValidString(sig))
	assert.Equal(t, signatureLen, utf8.RuneCountInString(sig))

	g := NewLoopGuard(zaptest.NewLogger(t))
	// Same 50-char prefix with different tails must match.
	g.Observe(long + "tail-one")
	g.Observe("press enter")
	g.Observe(long + "tail-two")
	assert.True(t, g.Observe("press enter"))
}
