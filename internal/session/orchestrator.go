// File: internal/session/orchestrator.go
// Description: Drives one platform's publishing session through its state
// machine, from Uninitialized through Initializing and Running to a sticky
// terminal state, with recovery for critical step failures and a final
// holistic verification.

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prism-cli/api/schemas"
	"github.com/xkilldash9x/prism-cli/internal/config"
	"github.com/xkilldash9x/prism-cli/internal/credentials"
	"github.com/xkilldash9x/prism-cli/internal/recovery"
)

// RemoteFactory opens the remote environment for one session.
type RemoteFactory func(ctx context.Context) (schemas.RemoteEnvironment, error)

// Orchestrator owns one platform session end to end.
type Orchestrator struct {
	platform   schemas.Platform
	content    string
	cfg        config.SessionConfig
	strategist *recovery.Strategist
	executor   *StepExecutor
	pool       *credentials.Pool
	newRemote  RemoteFactory
	sink       schemas.EventSink
	logger     *zap.Logger
}

// NewOrchestrator wires an orchestrator for one platform. Every orchestrator
// gets its own executor, loop guard and pacer; only the credential pool is
// shared across sessions.
func NewOrchestrator(
	platform schemas.Platform,
	content string,
	cfg *config.Config,
	pool *credentials.Pool,
	newDecision DecisionFactory,
	newRemote RemoteFactory,
	sink schemas.EventSink,
	logger *zap.Logger,
) *Orchestrator {
	sessionLogger := logger.Named("session").With(zap.String("platform", string(platform)))
	return &Orchestrator{
		platform:   platform,
		content:    content,
		cfg:        cfg.Session,
		strategist: recovery.NewStrategist(),
		executor:   newStepExecutor(cfg.Session, cfg.RateLimit, pool, newDecision, sink, sessionLogger),
		pool:       pool,
		newRemote:  newRemote,
		sink:       sink,
		logger:     sessionLogger,
	}
}

// Run executes the full session and always returns a result, never an
// error. A panic anywhere below is converted by the publishing layer.
func (o *Orchestrator) Run(ctx context.Context) *schemas.PublishResult {
	start := time.Now()
	sess := newPlatformSession(o.platform, o.content)

	result := &schemas.PublishResult{
		Platform: o.platform,
		Content:  o.content,
	}

	if err := o.initialize(ctx, sess); err != nil {
		o.logger.Error("Session initialization failed", zap.Error(err))
		o.finish(sess, result, start, false, schemas.ReasonInitializationFailed, err.Error())
		return result
	}
	defer sess.Remote.Close()
	defer o.pool.Release(o.platform)

	reason, errText := o.runSteps(ctx, sess)
	if reason != "" {
		o.finish(sess, result, start, false, reason, errText)
		return result
	}

	// Final holistic verification, scanning the whole page for success cues.
	published := o.verifyPublished(ctx, sess)
	if !published {
		failReason := schemas.ReasonVerificationFailed
		if sess.ConsecutiveInterventions > o.cfg.LoopThreshold || sess.ConsecutiveEdits > o.cfg.EditThreshold {
			failReason = schemas.ReasonLoopForcedCompletion
		}
		o.finish(sess, result, start, false, failReason, "final publish verification failed")
		return result
	}

	result.PostReference = uuid.New().String()
	o.finish(sess, result, start, true, schemas.ReasonTaskCompleted, "")
	return result
}

// initialize moves the session to Running: environment handle, one
// connectivity round-trip, credential assignment, decision client.
func (o *Orchestrator) initialize(ctx context.Context, sess *PlatformSession) error {
	sess.State = StateInitializing
	o.sink.Emit(schemas.Event{
		Type:      schemas.EventSessionStarted,
		SessionID: sess.ID,
		Platform:  sess.Platform,
	})

	remote, err := o.newRemote(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire remote environment: %w", err)
	}
	sess.Remote = remote

	// One observation round-trip proves the environment is usable before
	// any credential is spent on it.
	if _, err := remote.Screenshot(ctx); err != nil {
		remote.Close()
		return fmt.Errorf("environment connectivity check failed: %w", err)
	}

	sess.Credential = o.pool.Assign(sess.Platform)

	client, err := o.executor.newDecision(sess.Credential)
	if err != nil {
		remote.Close()
		o.pool.Release(sess.Platform)
		return fmt.Errorf("failed to construct decision client: %w", err)
	}
	sess.Decision = client

	sess.State = StateRunning
	return nil
}

// runSteps walks the fixed sequence. Returns a non-empty reason when the
// session failed before the final verification.
func (o *Orchestrator) runSteps(ctx context.Context, sess *PlatformSession) (schemas.CompletionReason, string) {
	steps := Sequence(o.platform, o.content)

	for i, instr := range steps {
		if sess.StepsExecuted() >= o.cfg.MaxSteps {
			return schemas.ReasonMaxStepsReached, fmt.Sprintf("step ceiling of %d reached", o.cfg.MaxSteps)
		}
		if err := ctx.Err(); err != nil {
			return schemas.ReasonExceptionOccurred, err.Error()
		}

		o.sink.Emit(schemas.Event{
			Type:       schemas.EventStepStarted,
			SessionID:  sess.ID,
			Platform:   sess.Platform,
			Step:       i + 1,
			TotalSteps: len(steps),
			StepType:   instr.Type,
		})

		res := o.executor.Execute(ctx, sess, instr)
		sess.Record(res)

		if !res.Success && instr.Critical {
			if !o.recover(ctx, sess, instr) {
				return schemas.ReasonCriticalStepFailed, fmt.Sprintf("critical step %s failed after recovery", instr.Type)
			}
		}

		if sess.ConsecutiveInterventions > o.cfg.LoopThreshold || sess.ConsecutiveEdits > o.cfg.EditThreshold {
			// The agent is thrashing or endlessly polishing. Stop feeding it
			// steps and let the final verification decide what actually
			// happened.
			o.logger.Warn("Intervention threshold exceeded, forcing sequence end",
				zap.Int("loop_interventions", sess.LoopInterventions),
				zap.Int("edit_attempts", sess.EditAttempts),
			)
			return "", ""
		}
	}
	return "", ""
}

// recover walks the ordered fallbacks for a failed critical step. Each
// fallback is a full step cycle; the first verified success ends recovery.
func (o *Orchestrator) recover(ctx context.Context, sess *PlatformSession, instr schemas.StepInstruction) bool {
	fallbacks := o.strategist.Fallbacks(instr.Type, o.platform, o.content)
	if len(fallbacks) == 0 {
		return false
	}

	for attempt, fb := range fallbacks {
		if sess.StepsExecuted() >= o.cfg.MaxSteps {
			return false
		}

		o.logger.Info("Attempting recovery",
			zap.String("step_type", string(instr.Type)),
			zap.Int("attempt", attempt+1),
			zap.Int("total", len(fallbacks)),
		)

		res := o.executor.Execute(ctx, sess, fb)
		res.RecoveryAttempts = attempt + 1
		sess.Record(res)

		if res.Success {
			return true
		}
	}
	return false
}

// verifyPublished performs the holistic end-of-sequence check.
func (o *Orchestrator) verifyPublished(ctx context.Context, sess *PlatformSession) bool {
	obs, err := o.executor.observe(ctx, sess)
	if err != nil {
		o.logger.Warn("Final verification observation failed", zap.Error(err))
		return o.cfg.AssumeSuccessOnInconclusive
	}

	answer, _, err := o.executor.predict(ctx, sess, finalVerification(o.platform), obs)
	if err != nil {
		o.logger.Warn("Final verification read failed", zap.Error(err))
		return o.cfg.AssumeSuccessOnInconclusive
	}

	return o.executor.detector.VerificationPassed(answer.RawAction + " " + answer.Narrative)
}

// finish stamps the terminal state and fills the aggregate result.
func (o *Orchestrator) finish(sess *PlatformSession, result *schemas.PublishResult, start time.Time, success bool, reason schemas.CompletionReason, errText string) {
	if success {
		sess.State = StateCompleted
	} else {
		sess.State = StateFailed
	}

	result.Success = success
	result.CompletionReason = reason
	result.Error = errText
	result.Steps = sess.StepHistory
	result.TotalTime = time.Since(start)
	result.APICallsMade = sess.APICalls
	result.RateLimitHits = sess.RateLimitHits
	result.LoopInterventions = sess.LoopInterventions + sess.EditAttempts
	result.ForcedVerifications = sess.ForcedVerifications
	result.ImageRepairs = o.executor.normalizer.Repairs()

	evType := schemas.EventSessionCompleted
	if !success {
		evType = schemas.EventSessionFailed
	}
	o.sink.Emit(schemas.Event{
		Type:      evType,
		SessionID: sess.ID,
		Platform:  sess.Platform,
		Message:   string(reason),
	})

	o.logger.Info("Session finished",
		zap.Bool("success", success),
		zap.String("reason", string(reason)),
		zap.Int("steps", len(sess.StepHistory)),
		zap.Int("api_calls", sess.APICalls),
		zap.Duration("total_time", result.TotalTime),
	)
}
