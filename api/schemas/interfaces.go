package schemas

import (
	"context"
	"errors"
)

// Sentinel errors shared across the collaborator boundary. Implementations
// wrap these so callers can classify failures with errors.Is regardless of
// which client produced them.
var (
	// ErrRateLimited indicates the decision service rejected a call because
	// the credential's quota is exhausted. The caller rotates or backs off.
	ErrRateLimited = errors.New("decision service rate limited")
	// ErrNoAction indicates the decision service answered but proposed
	// nothing actionable.
	ErrNoAction = errors.New("decision service returned no action")
	// ErrConnectivity indicates the remote environment is unreachable.
	// Fatal only during session initialization.
	ErrConnectivity = errors.New("remote environment unreachable")
)

// DecisionService is the external agent that maps an instruction and a
// screenshot to a proposed UI action. It is an untrusted oracle: callers must
// validate everything it returns.
type DecisionService interface {
	// Predict submits the instruction with a validated image observation and
	// returns the agent's narrative and first proposed action.
	Predict(ctx context.Context, instruction string, obs Observation) (ProposedAction, error)
}

// RemoteEnvironment is the external virtual desktop a session drives. It
// offers no transactional guarantees; Exec failures are reported, never
// propagated as crashes.
type RemoteEnvironment interface {
	// Screenshot returns the current screen as an encoded image, possibly
	// wrapped in a data URI. Callers normalize before use.
	Screenshot(ctx context.Context) (string, error)
	// Exec performs one free-form UI action (click, type, hotkey).
	Exec(ctx context.Context, action string) error
	// Close releases the underlying handle.
	Close() error
}

// EventSink receives ordered lifecycle events from running sessions. Emit
// must not block the caller; slow consumers drop rather than stall a session.
type EventSink interface {
	Emit(ev Event)
}

// ResultStore persists publish results and their step audit trails.
type ResultStore interface {
	PersistResult(ctx context.Context, result *PublishResult) error
}
