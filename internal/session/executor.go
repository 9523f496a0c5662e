// File: internal/session/executor.go
// Description: One atomic step cycle: observe, decide, guard, act, verify.
// Execute never returns an error; every outcome lands in the StepResult.

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prism-cli/api/schemas"
	"github.com/xkilldash9x/prism-cli/internal/config"
	"github.com/xkilldash9x/prism-cli/internal/credentials"
	"github.com/xkilldash9x/prism-cli/internal/heuristics"
	"github.com/xkilldash9x/prism-cli/internal/ratelimit"
	"github.com/xkilldash9x/prism-cli/internal/screenshot"
)

// DecisionFactory builds a decision client bound to one credential. Needed
// because rotation replaces the client mid-session.
type DecisionFactory func(cred credentials.Credential) (schemas.DecisionService, error)

// StepExecutor runs single step cycles for one session. Owned by the
// session's orchestrator; not shared.
type StepExecutor struct {
	cfg          config.SessionConfig
	pacer        *ratelimit.Pacer
	guard        *heuristics.LoopGuard
	detector     *heuristics.CompletionDetector
	normalizer   *screenshot.Normalizer
	pool         *credentials.Pool
	newDecision  DecisionFactory
	maxRotations int
	sink         schemas.EventSink
	logger       *zap.Logger

	// sleep is swappable so tests do not wait out settle delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func newStepExecutor(
	cfg config.SessionConfig,
	rlCfg config.RateLimitConfig,
	pool *credentials.Pool,
	newDecision DecisionFactory,
	sink schemas.EventSink,
	logger *zap.Logger,
) *StepExecutor {
	return &StepExecutor{
		cfg:          cfg,
		pacer:        ratelimit.NewPacer(rlCfg, pool.Size() > 1, logger),
		guard:        heuristics.NewLoopGuard(logger),
		detector:     heuristics.NewCompletionDetector(cfg.MinCompletionSteps, cfg.AssumeSuccessOnInconclusive),
		normalizer:   screenshot.NewNormalizer(logger),
		pool:         pool,
		newDecision:  newDecision,
		maxRotations: rlCfg.MaxRotations,
		sink:         sink,
		logger:       logger.Named("step"),
		sleep:        sleepCtx,
	}
}

// Execute runs one full step cycle and returns its audit entry. The
// function never panics or returns an error; failures are recorded.
func (e *StepExecutor) Execute(ctx context.Context, sess *PlatformSession, instr schemas.StepInstruction) schemas.StepResult {
	result := schemas.StepResult{
		StepType:       instr.Type,
		CredentialUsed: sess.Credential.Suffix(),
	}

	obs, err := e.observe(ctx, sess)
	if err != nil {
		result.Error = fmt.Sprintf("observation failed: %v", err)
		return result
	}

	proposed, latency, err := e.predict(ctx, sess, instr.Text, obs)
	result.DecisionLatency = latency
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.ActionTaken = proposed.RawAction
	result.Observation = proposed.Narrative

	if instr.Type.IsVerification() {
		return e.classifyVerification(sess, instr, proposed, result)
	}

	action := e.interveneIfNeeded(ctx, sess, instr, proposed, obs)
	result.ActionTaken = action

	if err := sess.Remote.Exec(ctx, action); err != nil {
		e.logger.Warn("Action execution failed",
			zap.String("step_type", string(instr.Type)),
			zap.Error(err),
		)
		result.Error = fmt.Sprintf("execution failed: %v", err)
		return result
	}

	e.sink.Emit(schemas.Event{
		Type:      schemas.EventActionExecuted,
		SessionID: sess.ID,
		Platform:  sess.Platform,
		StepType:  instr.Type,
		Message:   action,
	})

	if err := e.sleep(ctx, e.cfg.SettleDelay(instr.Type)); err != nil {
		result.Error = fmt.Sprintf("settle interrupted: %v", err)
		return result
	}

	ok, verifyText := e.verifyOutcome(ctx, sess, instr.Type)
	result.Success = ok
	if verifyText != "" {
		result.Observation = verifyText
	}

	if ok {
		e.pacer.OnSuccess()
		if instr.Type == schemas.StepEnterContent {
			sess.ContentVerified = true
		}
	}

	e.sink.Emit(schemas.Event{
		Type:      schemas.EventStepVerified,
		SessionID: sess.ID,
		Platform:  sess.Platform,
		StepType:  instr.Type,
		Message:   fmt.Sprintf("success=%t", ok),
	})

	return result
}

// observe captures and normalizes a fresh screenshot. Never cached.
func (e *StepExecutor) observe(ctx context.Context, sess *PlatformSession) (schemas.Observation, error) {
	raw, err := sess.Remote.Screenshot(ctx)
	if err != nil {
		return schemas.Observation{}, err
	}
	return schemas.Observation{
		Image:      e.normalizer.Normalize(raw),
		CapturedAt: time.Now().UTC(),
	}, nil
}

// predict paces and calls the decision service, handling one rate-limit
// rotation-and-retry cycle.
func (e *StepExecutor) predict(ctx context.Context, sess *PlatformSession, instruction string, obs schemas.Observation) (schemas.ProposedAction, time.Duration, error) {
	if err := e.pacer.Pace(ctx); err != nil {
		return schemas.ProposedAction{}, 0, err
	}

	start := time.Now()
	sess.APICalls++
	proposed, err := sess.Decision.Predict(ctx, instruction, obs)
	latency := time.Since(start)

	if errors.Is(err, schemas.ErrRateLimited) {
		sess.RateLimitHits++
		e.pacer.OnRateLimit()
		e.rotateCredential(sess)

		if perr := e.pacer.Pace(ctx); perr != nil {
			return schemas.ProposedAction{}, latency, perr
		}
		sess.APICalls++
		proposed, err = sess.Decision.Predict(ctx, instruction, obs)
		if errors.Is(err, schemas.ErrRateLimited) {
			sess.RateLimitHits++
			e.pacer.OnRateLimit()
			return schemas.ProposedAction{}, latency, fmt.Errorf("rate_limit_retry_failed: %w", err)
		}
	}

	if err != nil {
		if errors.Is(err, schemas.ErrNoAction) {
			return schemas.ProposedAction{}, latency, fmt.Errorf("no_action: %w", err)
		}
		return schemas.ProposedAction{}, latency, err
	}
	if proposed.Empty() {
		return schemas.ProposedAction{}, latency, fmt.Errorf("no_action: %w", schemas.ErrNoAction)
	}
	return proposed, latency, nil
}

// rotateCredential swaps the exhausted credential for the least-loaded other
// one and rebinds the decision client, bounded per session.
func (e *StepExecutor) rotateCredential(sess *PlatformSession) {
	if sess.Rotations >= e.maxRotations {
		return
	}
	cred, rotated := e.pool.Rotate(sess.Platform)
	if !rotated {
		return
	}

	client, err := e.newDecision(cred)
	if err != nil {
		e.logger.Error("Failed to rebind decision client after rotation", zap.Error(err))
		return
	}

	sess.Rotations++
	sess.Credential = cred
	sess.Decision = client
	e.logger.Info("Rotated decision credential",
		zap.String("platform", string(sess.Platform)),
		zap.String("credential", cred.Suffix()),
	)
}

// classifyVerification resolves a verification step from the agent's answer
// without executing anything.
func (e *StepExecutor) classifyVerification(sess *PlatformSession, instr schemas.StepInstruction, proposed schemas.ProposedAction, result schemas.StepResult) schemas.StepResult {
	answer := proposed.RawAction + " " + proposed.Narrative
	result.Success = e.detector.VerificationPassed(answer)
	if result.Success {
		e.pacer.OnSuccess()
		if instr.Type == schemas.StepVerifyContent {
			sess.ContentVerified = true
		}
	}

	e.sink.Emit(schemas.Event{
		Type:      schemas.EventStepVerified,
		SessionID: sess.ID,
		Platform:  sess.Platform,
		StepType:  instr.Type,
		Message:   fmt.Sprintf("success=%t", result.Success),
	})
	return result
}

// interveneIfNeeded applies the loop guard, the premature-completion
// correction and the anti-perfectionism policy, returning the action that
// will actually execute.
func (e *StepExecutor) interveneIfNeeded(ctx context.Context, sess *PlatformSession, instr schemas.StepInstruction, proposed schemas.ProposedAction, obs schemas.Observation) string {
	action := strings.TrimSpace(proposed.RawAction)

	if e.guard.Observe(action) {
		sess.LoopInterventions++
		sess.ConsecutiveInterventions++
		sub := fallbackAction(instr.Type)
		e.logger.Warn("Loop intervention, substituting deterministic action",
			zap.String("step_type", string(instr.Type)),
			zap.String("substitute", sub),
		)
		return sub
	}

	if e.detector.ClaimsCompletion(action) {
		// A "done" at a concrete step is never acceptable; demand the
		// operation itself. Below the completion floor the claim is worth
		// a corrective re-prompt; past it the agent has been told enough
		// times, substitute directly.
		sess.ForcedVerifications++
		if !e.detector.PrematureClaim(sess.StepsExecuted()) {
			return fallbackAction(instr.Type)
		}
		corrective := "Do not declare the task complete. " + instr.Text +
			" Reply with the concrete UI action only."
		reprompt, _, err := e.predict(ctx, sess, corrective, obs)
		if err != nil || e.detector.ClaimsCompletion(reprompt.RawAction) {
			return fallbackAction(instr.Type)
		}
		return strings.TrimSpace(reprompt.RawAction)
	}

	if sess.ContentVerified && heuristics.IsRewriteAction(action) {
		// The content already verified; a rewrite now is perfectionism.
		sess.EditAttempts++
		sess.ConsecutiveEdits++
		e.logger.Info("Blocking rewrite of verified content",
			zap.String("action", heuristics.Signature(action)),
			zap.Int("edit_attempts", sess.EditAttempts),
		)
		return fallbackAction(instr.Type)
	}

	// A clean proposal breaks any running intervention streak.
	sess.ConsecutiveInterventions = 0
	sess.ConsecutiveEdits = 0
	return action
}

// verifyOutcome re-observes and asks the step-specific yes/no question.
// Errors here are inconclusive, not fatal; the configured bias decides.
func (e *StepExecutor) verifyOutcome(ctx context.Context, sess *PlatformSession, st schemas.StepType) (bool, string) {
	obs, err := e.observe(ctx, sess)
	if err != nil {
		e.logger.Warn("Verification observation failed", zap.Error(err))
		return e.cfg.AssumeSuccessOnInconclusive, ""
	}

	answer, _, err := e.predict(ctx, sess, verificationQuestion(st), obs)
	if err != nil {
		e.logger.Warn("Verification read failed", zap.Error(err))
		return e.cfg.AssumeSuccessOnInconclusive, ""
	}

	text := answer.RawAction + " " + answer.Narrative
	return e.detector.VerificationPassed(text), strings.TrimSpace(text)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
