// File: internal/remote/browser.go
// Description: RemoteEnvironment backed by a locally managed Chrome
// instance. Parsed agent actions are dispatched as CDP input events.

package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prism-cli/internal/config"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080
	scrollDelta    = 600
)

// BrowserEnvironment implements schemas.RemoteEnvironment with chromedp.
// One instance owns one browser; Close tears down the whole allocator.
type BrowserEnvironment struct {
	browserCtx  context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *zap.Logger
}

// namedKeys maps agent key names to CDP key definitions.
var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"return":    kb.Enter,
	"tab":       kb.Tab,
	"escape":    kb.Escape,
	"esc":       kb.Escape,
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
	"space":     " ",
	"up":        kb.ArrowUp,
	"down":      kb.ArrowDown,
	"left":      kb.ArrowLeft,
	"right":     kb.ArrowRight,
	"home":      kb.Home,
	"end":       kb.End,
	"pageup":    kb.PageUp,
	"pagedown":  kb.PageDown,
}

var modifierKeys = map[string]input.Modifier{
	"ctrl":    input.ModifierCtrl,
	"control": input.ModifierCtrl,
	"cmd":     input.ModifierMeta,
	"meta":    input.ModifierMeta,
	"alt":     input.ModifierAlt,
	"shift":   input.ModifierShift,
}

// NewBrowserEnvironment launches a browser and verifies it responds.
func NewBrowserEnvironment(ctx context.Context, cfg config.RemoteConfig, logger *zap.Logger) (*BrowserEnvironment, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(viewportWidth, viewportHeight),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so launch failures surface
	// here instead of on the first step.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	env := &BrowserEnvironment{
		browserCtx:  browserCtx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		logger:      logger.Named("remote_browser"),
	}
	env.logger.Info("Browser environment ready", zap.Bool("headless", cfg.Headless))
	return env, nil
}

// Screenshot captures the viewport as base64-encoded PNG.
func (e *BrowserEnvironment) Screenshot(ctx context.Context) (string, error) {
	runCtx, cancel := mergeDeadline(e.browserCtx, ctx)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Exec parses and dispatches one agent action.
func (e *BrowserEnvironment) Exec(ctx context.Context, action string) error {
	parsed, err := ParseAction(action)
	if err != nil {
		return err
	}

	runCtx, cancel := mergeDeadline(e.browserCtx, ctx)
	defer cancel()

	e.logger.Debug("Dispatching action", zap.String("kind", string(parsed.Kind)))

	switch parsed.Kind {
	case ActionClick:
		return chromedp.Run(runCtx, chromedp.MouseClickXY(parsed.X, parsed.Y))
	case ActionDoubleClick:
		return chromedp.Run(runCtx, chromedp.MouseClickXY(parsed.X, parsed.Y, chromedp.ClickCount(2)))
	case ActionType:
		return chromedp.Run(runCtx, input.InsertText(parsed.Text))
	case ActionPress:
		return e.pressKey(runCtx, parsed.Keys[0])
	case ActionHotkey:
		return e.pressHotkey(runCtx, parsed.Keys)
	case ActionScroll:
		delta := float64(-scrollDelta)
		if parsed.ScrollDown {
			delta = scrollDelta
		}
		wheel := input.DispatchMouseEvent(input.MouseWheel, viewportWidth/2, viewportHeight/2).
			WithDeltaY(delta)
		return chromedp.Run(runCtx, wheel)
	case ActionNavigate:
		return chromedp.Run(runCtx, chromedp.Navigate(parsed.Text))
	case ActionWait:
		return chromedp.Run(runCtx, chromedp.Sleep(time.Duration(parsed.Seconds*float64(time.Second))))
	default:
		return fmt.Errorf("unsupported action kind: %s", parsed.Kind)
	}
}

// Close shuts the browser down.
func (e *BrowserEnvironment) Close() error {
	e.cancelCtx()
	e.cancelAlloc()
	e.logger.Info("Browser environment closed")
	return nil
}

func (e *BrowserEnvironment) pressKey(ctx context.Context, name string) error {
	key, ok := namedKeys[name]
	if !ok {
		if len([]rune(name)) != 1 {
			return fmt.Errorf("unknown key: %q", name)
		}
		key = name
	}
	return chromedp.Run(ctx, chromedp.KeyEvent(key))
}

// pressHotkey dispatches the final key with all preceding keys applied as
// modifiers, so "ctrl+a" arrives as one chord.
func (e *BrowserEnvironment) pressHotkey(ctx context.Context, keys []string) error {
	if len(keys) == 1 {
		return e.pressKey(ctx, keys[0])
	}

	var mods input.Modifier
	for _, k := range keys[:len(keys)-1] {
		m, ok := modifierKeys[strings.ToLower(k)]
		if !ok {
			return fmt.Errorf("unknown modifier key: %q", k)
		}
		mods |= m
	}

	last := keys[len(keys)-1]
	key, ok := namedKeys[last]
	if !ok {
		if len([]rune(last)) != 1 {
			return fmt.Errorf("unknown key: %q", last)
		}
		key = last
	}
	return chromedp.Run(ctx, chromedp.KeyEvent(key, chromedp.KeyModifiers(mods)))
}

// mergeDeadline runs browser actions on the browser's context while
// honoring the caller's deadline and cancellation.
func mergeDeadline(browserCtx, callCtx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := callCtx.Deadline(); ok {
		return context.WithDeadline(browserCtx, deadline)
	}
	return context.WithCancel(browserCtx)
}
