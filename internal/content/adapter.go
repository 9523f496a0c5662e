// File: internal/content/adapter.go
// Description: Prepares post text for a specific platform. Appends hashtags
// and truncates to the platform's character budget without splitting runes.

package content

import (
	"strings"

	"github.com/xkilldash9x/prism-cli/api/schemas"
)

// characterLimits holds the per-platform post length budgets.
var characterLimits = map[schemas.Platform]int{
	schemas.PlatformTwitter:   280,
	schemas.PlatformLinkedIn:  3000,
	schemas.PlatformInstagram: 2200,
}

const defaultLimit = 280

const ellipsis = "..."

// CharacterLimit returns the post length budget for a platform. Unknown
// platforms get the most conservative budget.
func CharacterLimit(platform schemas.Platform) int {
	if limit, ok := characterLimits[platform]; ok {
		return limit
	}
	return defaultLimit
}

// Adapt formats content and hashtags into one post body fitting the
// platform's budget. Hashtags are normalized to a single leading '#' and
// appended on a new line; when the combined text overflows, the content is
// truncated first so the hashtags survive intact.
func Adapt(platform schemas.Platform, text string, hashtags []string) string {
	limit := CharacterLimit(platform)
	tagLine := FormatHashtags(hashtags)

	body := strings.TrimSpace(text)
	if tagLine != "" {
		// Reserve room for the separator and the tag line.
		reserve := len([]rune(tagLine)) + 1
		if reserve < limit {
			body = truncateRunes(body, limit-reserve)
			if body == "" {
				return truncateRunes(tagLine, limit)
			}
			return body + "\n" + tagLine
		}
		// Tags alone overflow the budget; drop them rather than the content.
		return truncateRunes(body, limit)
	}
	return truncateRunes(body, limit)
}

// FormatHashtags joins tags into a single line, ensuring each carries
// exactly one '#' prefix. Blank tags are dropped.
func FormatHashtags(hashtags []string) string {
	parts := make([]string, 0, len(hashtags))
	for _, h := range hashtags {
		h = strings.TrimSpace(strings.TrimLeft(h, "#"))
		if h == "" {
			continue
		}
		parts = append(parts, "#"+h)
	}
	return strings.Join(parts, " ")
}

// truncateRunes cuts s to at most limit runes, marking the cut with an
// ellipsis when anything was removed.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	marker := []rune(ellipsis)
	if limit <= len(marker) {
		return string(runes[:limit])
	}
	return string(runes[:limit-len(marker)]) + ellipsis
}
