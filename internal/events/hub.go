// File: internal/events/hub.go
// Description: Lifecycle event fan-out. Sessions emit ordered progress
// events; sinks consume them for logging, streaming, or persistence. Emit
// never blocks a session.

package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prism-cli/api/schemas"
)

// Multiplexer fans one event stream out to several sinks. Implements
// schemas.EventSink itself so sessions only hold one handle.
type Multiplexer struct {
	mu    sync.RWMutex
	sinks []schemas.EventSink
}

// NewMultiplexer builds a multiplexer over the given sinks.
func NewMultiplexer(sinks ...schemas.EventSink) *Multiplexer {
	return &Multiplexer{sinks: sinks}
}

// Attach adds a sink. Safe during an active publish run.
func (m *Multiplexer) Attach(sink schemas.EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// Emit stamps the event and hands it to every sink. Individual sinks are
// responsible for not blocking.
func (m *Multiplexer) Emit(ev schemas.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.Emit(ev)
	}
}

// ZapSink writes lifecycle events to the structured log.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink builds a log-backed sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("events")}
}

// Emit logs the event with its structured fields.
func (s *ZapSink) Emit(ev schemas.Event) {
	fields := []zap.Field{
		zap.String("session_id", ev.SessionID),
		zap.String("platform", string(ev.Platform)),
	}
	if ev.TotalSteps > 0 {
		fields = append(fields, zap.Int("step", ev.Step), zap.Int("total_steps", ev.TotalSteps))
	}
	if ev.StepType != "" {
		fields = append(fields, zap.String("step_type", string(ev.StepType)))
	}
	if ev.Message != "" {
		fields = append(fields, zap.String("message", ev.Message))
	}

	switch ev.Type {
	case schemas.EventSessionFailed:
		s.logger.Warn(string(ev.Type), fields...)
	default:
		s.logger.Info(string(ev.Type), fields...)
	}
}
