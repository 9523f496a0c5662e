// File: internal/heuristics/loopguard.go
// Description: Detects when the decision agent repeats itself. The agent has
// no memory of its own failed attempts, so repetition must be caught on the
// orchestrator side and answered with an intervention.

package heuristics

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// signatureLen truncates actions for comparison; coordinates and
	// payload tails vary between otherwise-identical attempts.
	signatureLen = 50
	// historySize bounds the signature ring buffer.
	historySize = 6
	// editRepeatThreshold is how many times an edit-class signature may
	// appear in the buffer before it counts as a rewrite loop.
	editRepeatThreshold = 2
)

// editSignals mark the action classes prone to perfectionism loops:
// select-all, clear, rewrite. A repeated signature from this class is a loop
// even without strict alternation.
var editSignals = []string{"ctrl+a", "select all", "clear", "hotkey", "rewrite"}

// LoopGuard watches one session's action stream. Not safe for concurrent
// use; each session owns its own guard.
type LoopGuard struct {
	logger  *zap.Logger
	history []string
}

// NewLoopGuard creates a guard with an empty history.
func NewLoopGuard(logger *zap.Logger) *LoopGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoopGuard{
		logger:  logger.Named("loopguard"),
		history: make([]string, 0, historySize),
	}
}

// Observe appends the action to the bounded history and reports whether an
// intervention is required. Non-repeating actions age out naturally; no
// explicit reset exists.
func (g *LoopGuard) Observe(action string) bool {
	sig := Signature(action)
	g.history = append(g.history, sig)
	if len(g.history) > historySize {
		g.history = g.history[len(g.history)-historySize:]
	}

	if len(g.history) >= 4 {
		h := g.history
		last := h[len(h)-4:]
		// Exact alternating-pair repeat: A B A B.
		if last[0] == last[2] && last[1] == last[3] {
			g.logger.Warn("Alternating action loop detected", zap.String("signature", sig))
			return true
		}
	}

	if isEditSignal(action) && g.count(sig) >= editRepeatThreshold {
		g.logger.Warn("Rewrite loop detected", zap.String("signature", sig))
		return true
	}

	return false
}

// History returns a copy of the current signature buffer.
func (g *LoopGuard) History() []string {
	out := make([]string, len(g.history))
	copy(out, g.history)
	return out
}

func (g *LoopGuard) count(sig string) int {
	n := 0
	for _, h := range g.history {
		if h == sig {
			n++
		}
	}
	return n
}

// Signature reduces an action to its comparable prefix. The cut is made on
// runes so a multi-byte character at the boundary stays intact.
func Signature(action string) string {
	r := []rune(action)
	if len(r) > signatureLen {
		return string(r[:signatureLen])
	}
	return action
}

func isEditSignal(action string) bool {
	lower := strings.ToLower(action)
	for _, s := range editSignals {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
