package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimsCompletion(t *testing.T) {
	d := NewCompletionDetector(4, false)

	testCases := []struct {
		name string
		text string
		want bool
	}{
		{"plain done", "DONE", true},
		{"embedded", "The post is complete and visible.", true},
		{"finished", "I have finished the task", true},
		{"ordinary action", "click 220,480", false},
		{"empty", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, d.ClaimsCompletion(tc.text))
		})
	}
}

func TestPrematureClaim(t *testing.T) {
	d := NewCompletionDetector(4, false)
	assert.True(t, d.PrematureClaim(0))
	assert.True(t, d.PrematureClaim(3))
	assert.False(t, d.PrematureClaim(4))
	assert.False(t, d.PrematureClaim(9))
}

func TestVerificationPassed(t *testing.T) {
	d := NewCompletionDetector(4, false)

	testCases := []struct {
		name string
		text string
		want bool
	}{
		{"affirmative yes", "Yes, the composer is open.", true},
		{"posted", "The content has been posted.", true},
		{"typed", "Text was typed into the field.", true},
		{"no inside now", "Yes, the text is now in the composer.", true},
		{"no inside notice", "Yes. A success notice appeared.", true},
		{"no inside nothing", "Yes, nothing else is blocking the composer.", true},
		{"negative wins", "No, the button is not visible.", false},
		{"cannot", "I cannot find the compose button", false},
		{"bare no", "no", false},
		{"failed", "The upload failed with a timeout.", false},
		{"error mention", "An error banner is visible", false},
		{"inconclusive strict", "the screen shows a timeline", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, d.VerificationPassed(tc.text))
		})
	}
}

func TestVerificationInconclusiveLenient(t *testing.T) {
	d := NewCompletionDetector(4, true)
	assert.True(t, d.VerificationPassed("the screen shows a timeline"))
	// Explicit negatives still lose even in lenient mode.
	assert.False(t, d.VerificationPassed("unable to tell"))
}

func TestIsRewriteAction(t *testing.T) {
	assert.True(t, IsRewriteAction("hotkey ctrl+a"))
	assert.True(t, IsRewriteAction("Select All then delete"))
	assert.True(t, IsRewriteAction("clear the field"))
	assert.False(t, IsRewriteAction("type hello"))
	assert.False(t, IsRewriteAction("click 10,20"))
}

func TestNewCompletionDetectorFloor(t *testing.T) {
	d := NewCompletionDetector(0, false)
	assert.Equal(t, 1, d.MinSteps())
}
