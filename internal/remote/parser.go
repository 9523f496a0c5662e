// File: internal/remote/parser.go
// Description: Parses the decision agent's free-text actions into a
// structured form both environment backends can execute. The agent's output
// is untrusted text; anything unrecognized is an error, never a guess.

package remote

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ActionKind enumerates the executable action classes.
type ActionKind string

const (
	ActionClick       ActionKind = "click"
	ActionDoubleClick ActionKind = "double_click"
	ActionType        ActionKind = "type"
	ActionPress       ActionKind = "press"
	ActionHotkey      ActionKind = "hotkey"
	ActionScroll      ActionKind = "scroll"
	ActionNavigate    ActionKind = "navigate"
	ActionWait        ActionKind = "wait"
)

// Action is one parsed agent instruction.
type Action struct {
	Kind ActionKind
	X    float64
	Y    float64
	Text string
	// Keys holds the lowercase key names for press and hotkey actions.
	Keys []string
	// ScrollDown is the wheel direction for scroll actions.
	ScrollDown bool
	// Seconds is the pause length for wait actions.
	Seconds float64
}

var (
	coordsRe = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)`)
	waitRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

// ParseAction converts an agent action line into an Action. Leading filler
// ("at", colons) is tolerated; an unrecognized verb or malformed argument is
// an error.
func ParseAction(raw string) (Action, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Action{}, fmt.Errorf("empty action")
	}

	lower := strings.ToLower(text)

	switch {
	case strings.HasPrefix(lower, "double click"), strings.HasPrefix(lower, "double-click"):
		return parseClick(ActionDoubleClick, text)
	case strings.HasPrefix(lower, "click"):
		return parseClick(ActionClick, text)
	case strings.HasPrefix(lower, "type"):
		return parseType(text)
	case strings.HasPrefix(lower, "press"):
		return parseKeys(ActionPress, text, "press")
	case strings.HasPrefix(lower, "hotkey"):
		return parseKeys(ActionHotkey, text, "hotkey")
	case strings.HasPrefix(lower, "scroll"):
		return parseScroll(lower)
	case strings.HasPrefix(lower, "navigate"), strings.HasPrefix(lower, "goto"), strings.HasPrefix(lower, "open url"):
		return parseNavigate(text)
	case strings.HasPrefix(lower, "wait"):
		return parseWait(lower)
	default:
		return Action{}, fmt.Errorf("unrecognized action: %q", raw)
	}
}

func parseClick(kind ActionKind, text string) (Action, error) {
	m := coordsRe.FindStringSubmatch(text)
	if m == nil {
		return Action{}, fmt.Errorf("click action without coordinates: %q", text)
	}
	x, _ := strconv.ParseFloat(m[1], 64)
	y, _ := strconv.ParseFloat(m[2], 64)
	if x < 0 || y < 0 {
		return Action{}, fmt.Errorf("click coordinates out of range: %q", text)
	}
	return Action{Kind: kind, X: x, Y: y}, nil
}

func parseType(text string) (Action, error) {
	rest := strings.TrimSpace(text[len("type"):])
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
	// Strip one matching pair of surrounding quotes.
	if len(rest) >= 2 {
		if (rest[0] == '"' && rest[len(rest)-1] == '"') || (rest[0] == '\'' && rest[len(rest)-1] == '\'') {
			rest = rest[1 : len(rest)-1]
		}
	}
	if rest == "" {
		return Action{}, fmt.Errorf("type action without text")
	}
	return Action{Kind: ActionType, Text: rest}, nil
}

func parseKeys(kind ActionKind, text, verb string) (Action, error) {
	rest := strings.TrimSpace(text[len(verb):])
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
	if rest == "" {
		return Action{}, fmt.Errorf("%s action without a key", verb)
	}

	var parts []string
	if kind == ActionHotkey {
		parts = strings.Split(rest, "+")
	} else {
		parts = []string{rest}
	}

	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			return Action{}, fmt.Errorf("malformed key combination: %q", text)
		}
		keys = append(keys, p)
	}
	return Action{Kind: kind, Keys: keys}, nil
}

func parseScroll(lower string) (Action, error) {
	switch {
	case strings.Contains(lower, "up"):
		return Action{Kind: ActionScroll, ScrollDown: false}, nil
	case strings.Contains(lower, "down"):
		return Action{Kind: ActionScroll, ScrollDown: true}, nil
	default:
		return Action{}, fmt.Errorf("scroll action without direction: %q", lower)
	}
}

func parseNavigate(text string) (Action, error) {
	idx := strings.Index(text, "http")
	if idx < 0 {
		return Action{}, fmt.Errorf("navigate action without a URL: %q", text)
	}
	url := strings.Fields(text[idx:])[0]
	return Action{Kind: ActionNavigate, Text: url}, nil
}

func parseWait(lower string) (Action, error) {
	m := waitRe.FindStringSubmatch(lower)
	if m == nil {
		return Action{Kind: ActionWait, Seconds: 1}, nil
	}
	secs, _ := strconv.ParseFloat(m[1], 64)
	if secs > 10 {
		secs = 10
	}
	return Action{Kind: ActionWait, Seconds: secs}, nil
}
