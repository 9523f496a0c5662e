package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionClick(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		kind ActionKind
		x, y float64
	}{
		{"bare", "click 120,300", ActionClick, 120, 300},
		{"with at", "Click at 45, 900", ActionClick, 45, 900},
		{"float coords", "click 10.5,20.25", ActionClick, 10.5, 20.25},
		{"double", "double click 640,360", ActionDoubleClick, 640, 360},
		{"double hyphen", "double-click 10,10", ActionDoubleClick, 10, 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := ParseAction(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, a.Kind)
			assert.Equal(t, tc.x, a.X)
			assert.Equal(t, tc.y, a.Y)
		})
	}
}

func TestParseActionClickErrors(t *testing.T) {
	_, err := ParseAction("click the blue button")
	assert.Error(t, err, "coordinate-free clicks are not executable")

	_, err = ParseAction("click -5,100")
	assert.Error(t, err)
}

func TestParseActionType(t *testing.T) {
	a, err := ParseAction("type hello world #golang")
	require.NoError(t, err)
	assert.Equal(t, ActionType, a.Kind)
	assert.Equal(t, "hello world #golang", a.Text)

	a, err = ParseAction(`type: "quoted content"`)
	require.NoError(t, err)
	assert.Equal(t, "quoted content", a.Text)

	_, err = ParseAction("type   ")
	assert.Error(t, err)
}

func TestParseActionKeys(t *testing.T) {
	a, err := ParseAction("press Enter")
	require.NoError(t, err)
	assert.Equal(t, ActionPress, a.Kind)
	assert.Equal(t, []string{"enter"}, a.Keys)

	a, err = ParseAction("hotkey ctrl+a")
	require.NoError(t, err)
	assert.Equal(t, ActionHotkey, a.Kind)
	assert.Equal(t, []string{"ctrl", "a"}, a.Keys)

	a, err = ParseAction("hotkey Ctrl + Shift + Enter")
	require.NoError(t, err)
	assert.Equal(t, []string{"ctrl", "shift", "enter"}, a.Keys)

	_, err = ParseAction("hotkey ctrl++")
	assert.Error(t, err)
}

func TestParseActionScroll(t *testing.T) {
	a, err := ParseAction("scroll down")
	require.NoError(t, err)
	assert.True(t, a.ScrollDown)

	a, err = ParseAction("scroll up")
	require.NoError(t, err)
	assert.False(t, a.ScrollDown)

	_, err = ParseAction("scroll sideways")
	assert.Error(t, err)
}

func TestParseActionNavigate(t *testing.T) {
	a, err := ParseAction("navigate to https://twitter.com/compose/tweet now")
	require.NoError(t, err)
	assert.Equal(t, ActionNavigate, a.Kind)
	assert.Equal(t, "https://twitter.com/compose/tweet", a.Text)

	_, err = ParseAction("navigate to the homepage")
	assert.Error(t, err)
}

func TestParseActionWait(t *testing.T) {
	a, err := ParseAction("wait 2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, a.Seconds)

	// Unbounded waits are clamped.
	a, err = ParseAction("wait 600")
	require.NoError(t, err)
	assert.Equal(t, 10.0, a.Seconds)

	a, err = ParseAction("wait")
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.Seconds)
}

func TestParseActionUnrecognized(t *testing.T) {
	for _, raw := range []string{"", "   ", "fly to the moon", "DONE"} {
		_, err := ParseAction(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}
