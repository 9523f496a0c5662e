// File: internal/recovery/strategist.go
// Description: Ordered fallback instructions for the critical publishing
// steps. When a critical step fails verification, the session walks these
// alternatives one at a time, each as its own observe/decide/act/verify
// cycle, until one verifies or the list runs out.

package recovery

import (
	"fmt"

	"github.com/xkilldash9x/prism-cli/api/schemas"
)

// Strategist maps critical step types to their fallback instructions.
// Stateless and safe for concurrent use.
type Strategist struct{}

// NewStrategist returns the shared recovery table.
func NewStrategist() *Strategist {
	return &Strategist{}
}

// Fallbacks returns the ordered alternatives for a failed step, or nil when
// the step type has no recovery path. Only a small critical set recovers;
// everything else fails soft and the sequence moves on.
func (s *Strategist) Fallbacks(stepType schemas.StepType, platform schemas.Platform, content string) []schemas.StepInstruction {
	switch stepType {
	case schemas.StepNavigateToCompose:
		return instructions(stepType, true,
			fmt.Sprintf("The compose screen did not open. Look for a 'Post', 'Tweet', 'Create' or plus-icon button anywhere on the %s page and click it.", platform),
			"Press the keyboard shortcut 'n' to open a new post composer.",
			fmt.Sprintf("Navigate directly to the %s compose URL in the browser address bar.", composeURL(platform)),
		)
	case schemas.StepEnterContent:
		return instructions(stepType, true,
			fmt.Sprintf("The text was not entered. Click directly in the center of the text input area first, then type: %s", content),
			fmt.Sprintf("Click the text area, press ctrl+a then delete to clear it, then slowly type: %s", content),
			fmt.Sprintf("Use keyboard navigation: press tab until the text input is focused, then type: %s", content),
		)
	case schemas.StepFindAndClickPost:
		return instructions(stepType, true,
			"The post button was not clicked. Scroll down in the composer dialog, locate the primary submit button and click its exact center.",
			"Press ctrl+enter to submit the post with the keyboard shortcut.",
			"Look for any enabled blue or highlighted button in the dialog footer and click it.",
		)
	default:
		return nil
	}
}

// IsRecoverable reports whether a step type has any fallback path.
func (s *Strategist) IsRecoverable(stepType schemas.StepType) bool {
	return len(s.Fallbacks(stepType, schemas.PlatformTwitter, "")) > 0
}

func instructions(stepType schemas.StepType, critical bool, texts ...string) []schemas.StepInstruction {
	out := make([]schemas.StepInstruction, 0, len(texts))
	for _, t := range texts {
		out = append(out, schemas.StepInstruction{
			Type:     stepType,
			Text:     t,
			Critical: critical,
		})
	}
	return out
}

func composeURL(platform schemas.Platform) string {
	switch platform {
	case schemas.PlatformTwitter:
		return "https://twitter.com/compose/tweet"
	case schemas.PlatformLinkedIn:
		return "https://www.linkedin.com/feed/?shareActive=true"
	case schemas.PlatformInstagram:
		return "https://www.instagram.com/create/select/"
	default:
		return "the platform's compose page"
	}
}
