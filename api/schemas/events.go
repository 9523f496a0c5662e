package schemas

import "time"

// EventType names one lifecycle event emitted by a publishing session.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventStepStarted      EventType = "step_started"
	EventActionExecuted   EventType = "action_executed"
	EventStepVerified     EventType = "step_verified"
	EventSessionCompleted EventType = "session_completed"
	EventSessionFailed    EventType = "session_failed"
)

// Event is a plain structured progress record. How it is transported
// (websocket, log, queue) is a consumer concern.
type Event struct {
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id"`
	Platform   Platform  `json:"platform"`
	Step       int       `json:"step,omitempty"`
	TotalSteps int       `json:"total_steps,omitempty"`
	StepType   StepType  `json:"step_type,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
