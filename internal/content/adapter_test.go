package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/prism-cli/api/schemas"
)

func TestCharacterLimit(t *testing.T) {
	assert.Equal(t, 280, CharacterLimit(schemas.PlatformTwitter))
	assert.Equal(t, 3000, CharacterLimit(schemas.PlatformLinkedIn))
	assert.Equal(t, 2200, CharacterLimit(schemas.PlatformInstagram))
	assert.Equal(t, 280, CharacterLimit(schemas.Platform("myspace")))
}

func TestFormatHashtags(t *testing.T) {
	assert.Equal(t, "#go #release", FormatHashtags([]string{"go", "#release"}))
	assert.Equal(t, "#go", FormatHashtags([]string{"##go", "", "  "}))
	assert.Equal(t, "", FormatHashtags(nil))
}

func TestAdaptShortContentPassesThrough(t *testing.T) {
	got := Adapt(schemas.PlatformTwitter, "shipping v2 today", []string{"golang"})
	assert.Equal(t, "shipping v2 today\n#golang", got)
}

func TestAdaptTruncatesContentKeepsTags(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := Adapt(schemas.PlatformTwitter, long, []string{"launch"})
	assert.LessOrEqual(t, len([]rune(got)), 280)
	assert.True(t, strings.HasSuffix(got, "#launch"), "hashtags must survive truncation: %q", got)
	assert.Contains(t, got, "...")
}

func TestAdaptRuneSafeTruncation(t *testing.T) {
	long := strings.Repeat("日本語のテキスト", 100)
	got := Adapt(schemas.PlatformInstagram, long, nil)
	assert.LessOrEqual(t, len([]rune(got)), 2200)
	// Every byte sequence in the output must still be valid UTF-8.
	assert.True(t, strings.ContainsRune(got, '日'))
	for _, r := range got {
		assert.NotEqual(t, '�', r)
	}
}

func TestAdaptNoHashtags(t *testing.T) {
	got := Adapt(schemas.PlatformLinkedIn, "  plain update  ", nil)
	assert.Equal(t, "plain update", got)
}

func TestAdaptEmptyContentTagsOnly(t *testing.T) {
	got := Adapt(schemas.PlatformTwitter, "", []string{"solo"})
	assert.Equal(t, "#solo", got)
}
