// File: internal/heuristics/completion.go
// Description: Classifiers for the decision agent's free-text output. The
// agent signals completion and verification outcomes in prose, so the
// orchestrator reduces that prose to booleans here.

package heuristics

import (
	"regexp"
	"strings"
)

// completionTokens mark an action or narrative claiming the task is over.
var completionTokens = []string{"done", "complete", "finished", "task is complete", "nothing left"}

// Verification answers are matched on word boundaries; "no" must not fire
// inside "now" or "notice", and "fail" must not fire inside "unfailing".
var (
	// affirmativePattern is the lexicon for verification answers.
	// Verification prompts are phrased so any of these indicates success.
	affirmativePattern = regexp.MustCompile(`\b(yes|success(?:ful|fully)?|visible|ready|posted|published|typed|clicked|active)\b`)

	negativePattern = regexp.MustCompile(`\b(no|not|cannot|can't|unable|fail(?:s|ed|ure)?|errors?|missing|empty)\b`)
)

// CompletionDetector classifies agent output for one session.
type CompletionDetector struct {
	minSteps             int
	assumeOnInconclusive bool
}

// NewCompletionDetector builds a detector. minSteps is the floor below which
// completion claims are rejected; a publish flow cannot legitimately finish
// in fewer steps than it takes to open the composer and submit.
func NewCompletionDetector(minSteps int, assumeOnInconclusive bool) *CompletionDetector {
	if minSteps < 1 {
		minSteps = 1
	}
	return &CompletionDetector{minSteps: minSteps, assumeOnInconclusive: assumeOnInconclusive}
}

// ClaimsCompletion reports whether the text asserts the task is finished.
// This is a claim, not a verdict; PrematureClaim decides if it is credible.
func (d *CompletionDetector) ClaimsCompletion(text string) bool {
	lower := strings.ToLower(text)
	for _, t := range completionTokens {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// PrematureClaim reports whether a completion claim arrived before enough
// steps ran for it to be plausible.
func (d *CompletionDetector) PrematureClaim(stepsExecuted int) bool {
	return stepsExecuted < d.minSteps
}

// MinSteps returns the configured completion floor.
func (d *CompletionDetector) MinSteps() int { return d.minSteps }

// VerificationPassed interprets an agent answer to a verification prompt.
// An explicit negative word wins over an affirmative appearing in the same
// text. A text with neither is inconclusive and resolved by configuration.
func (d *CompletionDetector) VerificationPassed(text string) bool {
	lower := strings.ToLower(text)
	if negativePattern.MatchString(lower) {
		return false
	}
	if affirmativePattern.MatchString(lower) {
		return true
	}
	return d.assumeOnInconclusive
}

// IsRewriteAction reports whether the action intends to clear or redo
// already-entered content. Used to block perfectionism after content has
// been verified once.
func IsRewriteAction(action string) bool {
	return isEditSignal(action)
}
