package schemas

import "time"

// Platform identifies a publishing target.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
)

// StepType names one atomic stage of a publishing sequence.
type StepType string

const (
	StepNavigateToCompose   StepType = "navigate_to_compose"
	StepVerifyComposerReady StepType = "verify_composer_ready"
	StepEnterContent        StepType = "enter_content"
	StepVerifyContent       StepType = "verify_content_entered"
	StepFindAndClickPost    StepType = "find_and_click_post"
	StepVerifyPublished     StepType = "verify_published"
)

// IsVerification reports whether the step type is itself a verification read.
// A "done" declaration from the decision agent is only acceptable on these.
func (s StepType) IsVerification() bool {
	switch s {
	case StepVerifyComposerReady, StepVerifyContent, StepVerifyPublished:
		return true
	}
	return false
}

// StepInstruction is one immutable entry of a platform's ordered step
// sequence. Critical steps trigger recovery on failure; non-critical steps
// are logged and skipped.
type StepInstruction struct {
	Type     StepType `json:"type"`
	Text     string   `json:"text"`
	Critical bool     `json:"critical"`
}

// Observation is a freshly captured, normalized screenshot. Observations are
// never cached across steps.
type Observation struct {
	Image      []byte    `json:"-"`
	CapturedAt time.Time `json:"captured_at"`
}

// ProposedAction is the decision agent's raw output for one prediction. The
// orchestrator treats both fields as untrusted free-form text.
type ProposedAction struct {
	RawAction string `json:"raw_action"`
	Narrative string `json:"narrative"`
}

// Empty reports whether the agent returned nothing actionable.
func (a ProposedAction) Empty() bool { return a.RawAction == "" }

// StepResult is one append-only entry of a session's audit trail.
type StepResult struct {
	Success          bool          `json:"success"`
	StepType         StepType      `json:"step_type"`
	ActionTaken      string        `json:"action_taken"`
	Observation      string        `json:"observation"`
	Error            string        `json:"error,omitempty"`
	DecisionLatency  time.Duration `json:"decision_latency"`
	RecoveryAttempts int           `json:"recovery_attempts"`
	CredentialUsed   string        `json:"credential_used,omitempty"`
}

// CompletionReason is the closed outcome vocabulary carried on every
// PublishResult, so callers never parse free-form error text.
type CompletionReason string

const (
	ReasonTaskCompleted        CompletionReason = "task_completed_successfully"
	ReasonCriticalStepFailed   CompletionReason = "critical_step_failed"
	ReasonVerificationFailed   CompletionReason = "verification_failed"
	ReasonInitializationFailed CompletionReason = "initialization_failed"
	ReasonMaxStepsReached      CompletionReason = "max_steps_reached"
	ReasonLoopForcedCompletion CompletionReason = "loop_intervention_forced_completion"
	ReasonExceptionOccurred    CompletionReason = "exception_occurred"
)

// PublishResult aggregates one platform's end-to-end publishing attempt.
type PublishResult struct {
	Platform            Platform         `json:"platform"`
	Success             bool             `json:"success"`
	Content             string           `json:"content"`
	Steps               []StepResult     `json:"steps"`
	TotalTime           time.Duration    `json:"total_time"`
	Error               string           `json:"error,omitempty"`
	PostReference       string           `json:"post_reference,omitempty"`
	APICallsMade        int              `json:"api_calls_made"`
	RateLimitHits       int              `json:"rate_limit_hits"`
	LoopInterventions   int              `json:"loop_interventions"`
	ImageRepairs        int              `json:"image_repairs"`
	ForcedVerifications int              `json:"forced_verifications"`
	CompletionReason    CompletionReason `json:"completion_reason"`
}
