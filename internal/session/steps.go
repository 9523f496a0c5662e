// File: internal/session/steps.go
// Description: Ordered step sequences per platform. Each sequence is the
// fixed script a session walks; the decision agent fills in the concrete UI
// actions, never the order.

package session

import (
	"fmt"

	"github.com/xkilldash9x/prism-cli/api/schemas"
)

// Sequence returns the ordered instructions for publishing content on a
// platform. Critical steps trigger recovery on failure; the verification
// reads between them fail soft.
func Sequence(platform schemas.Platform, content string) []schemas.StepInstruction {
	var composeHint string
	switch platform {
	case schemas.PlatformTwitter:
		composeHint = "Click the 'Post' button (the large button in the left sidebar) to open the tweet composer."
	case schemas.PlatformLinkedIn:
		composeHint = "Click the 'Start a post' box at the top of the feed to open the post composer."
	case schemas.PlatformInstagram:
		composeHint = "Click the 'Create' (plus icon) button in the navigation to open the new post dialog."
	default:
		composeHint = "Open the compose dialog for a new post."
	}

	return []schemas.StepInstruction{
		{
			Type:     schemas.StepNavigateToCompose,
			Text:     composeHint,
			Critical: true,
		},
		{
			Type: schemas.StepVerifyComposerReady,
			Text: "Is the post composer open with an empty text input ready for typing? Answer yes or no.",
		},
		{
			Type:     schemas.StepEnterContent,
			Text:     fmt.Sprintf("Click the text input area of the composer and type exactly this text: %s", content),
			Critical: true,
		},
		{
			Type: schemas.StepVerifyContent,
			Text: "Does the composer text area now contain the typed content? Answer yes or no.",
		},
		{
			Type:     schemas.StepFindAndClickPost,
			Text:     "Find the submit button of the composer (labeled 'Post', 'Tweet', 'Share' or similar) and click it.",
			Critical: true,
		},
		{
			Type: schemas.StepVerifyPublished,
			Text: "Has the post been published? Look for the composer closing, a success notice, or the post appearing in the feed. Answer yes or no.",
		},
	}
}

// verificationQuestion is the post-action read asked for a just-executed
// non-verification step.
func verificationQuestion(st schemas.StepType) string {
	switch st {
	case schemas.StepNavigateToCompose:
		return "Is the post composer now visible on screen? Answer yes or no."
	case schemas.StepEnterContent:
		return "Was the text typed into the composer input? Answer yes or no."
	case schemas.StepFindAndClickPost:
		return "Was the submit button clicked? Look for the composer closing or a confirmation. Answer yes or no."
	default:
		return "Did the last action have its intended visible effect? Answer yes or no."
	}
}

// fallbackAction is the deterministic substitute executed when the loop
// guard blocks the agent's proposal for this step type.
func fallbackAction(st schemas.StepType) string {
	switch st {
	case schemas.StepNavigateToCompose:
		return "press escape"
	case schemas.StepEnterContent:
		return "click 960,540"
	case schemas.StepFindAndClickPost:
		return "hotkey ctrl+enter"
	default:
		return "wait 1"
	}
}

// finalVerification is the holistic question asked once the sequence ends.
func finalVerification(platform schemas.Platform) string {
	return fmt.Sprintf("Scan the whole %s page. Was the content actually published? "+
		"Look for success cues: the post visible in the feed, a confirmation toast, or the composer gone. Answer yes or no.", platform)
}
