// File: internal/session/session.go
// Description: Per-platform session state. One PlatformSession is owned
// exclusively by its orchestrator goroutine; nothing here is shared.

package session

import (
	"github.com/google/uuid"

	"github.com/xkilldash9x/prism-cli/api/schemas"
	"github.com/xkilldash9x/prism-cli/internal/credentials"
)

// State is the session lifecycle position. Terminal states are sticky.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Terminal reports whether no further steps may execute.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// PlatformSession carries all mutable state for one platform's publishing
// run. Created at session start, discarded at session end.
type PlatformSession struct {
	ID       string
	Platform schemas.Platform
	Content  string

	State      State
	Credential credentials.Credential
	Remote     schemas.RemoteEnvironment
	Decision   schemas.DecisionService

	// StepHistory is the append-only audit trail.
	StepHistory []schemas.StepResult

	// Call and intervention counters surfaced on the PublishResult.
	APICalls            int
	RateLimitHits       int
	LoopInterventions   int
	ForcedVerifications int
	Rotations           int

	// EditAttempts counts blocked rewrites of already-verified content.
	EditAttempts int

	// Consecutive counters drive the intervention thresholds. They reset on
	// any proposal that executes without an intervention; the totals above
	// never do and are what the result reports.
	ConsecutiveInterventions int
	ConsecutiveEdits         int

	// ContentVerified blocks rewrite actions once the entered content has
	// passed verification.
	ContentVerified bool
}

// newPlatformSession creates an empty session in StateUninitialized.
func newPlatformSession(platform schemas.Platform, content string) *PlatformSession {
	return &PlatformSession{
		ID:       uuid.New().String(),
		Platform: platform,
		Content:  content,
		State:    StateUninitialized,
	}
}

// Record appends a step result to the audit trail.
func (s *PlatformSession) Record(res schemas.StepResult) {
	s.StepHistory = append(s.StepHistory, res)
}

// StepsExecuted returns the number of steps attempted so far.
func (s *PlatformSession) StepsExecuted() int {
	return len(s.StepHistory)
}
