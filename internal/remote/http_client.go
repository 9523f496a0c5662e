// File: internal/remote/http_client.go
// Description: RemoteEnvironment backed by a hosted virtual desktop API.
// Screenshots and action execution go over HTTP; transient transport
// failures retry briefly, persistent ones surface as connectivity errors.

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prism-cli/api/schemas"
	"github.com/xkilldash9x/prism-cli/internal/config"
)

// HTTPEnvironment implements schemas.RemoteEnvironment against a desktop
// session API. One instance drives one desktop session.
type HTTPEnvironment struct {
	endpoint   string
	apiKey     string
	sessionID  string
	httpClient *http.Client
	logger     *zap.Logger
}

type screenshotResponse struct {
	Image string `json:"image"`
}

type execRequest struct {
	Action string `json:"action"`
}

type sessionRequest struct {
	ProjectID string `json:"project_id,omitempty"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

// NewHTTPEnvironment opens a desktop session for the platform and returns
// the environment bound to it. The caller owns the session and must Close
// it. Platforms mapped in cfg.ProjectIDs get their dedicated VM project.
func NewHTTPEnvironment(ctx context.Context, cfg config.RemoteConfig, platform schemas.Platform, logger *zap.Logger) (*HTTPEnvironment, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote endpoint is required")
	}

	env := &HTTPEnvironment{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.CallTimeout,
		},
		logger: logger.Named("remote_http"),
	}

	open, err := json.Marshal(sessionRequest{ProjectID: cfg.ProjectIDs[string(platform)]})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	body, err := env.roundTrip(ctx, http.MethodPost, "/sessions", open)
	if err != nil {
		return nil, fmt.Errorf("failed to open desktop session: %w", err)
	}

	var sr sessionResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	if sr.SessionID == "" {
		return nil, fmt.Errorf("desktop API returned an empty session id")
	}

	env.sessionID = sr.SessionID
	env.logger = env.logger.With(zap.String("session_id", sr.SessionID))
	env.logger.Info("Desktop session opened")
	return env, nil
}

// Screenshot captures the current desktop frame and returns it encoded as
// the API delivered it. Decoding and repair happen downstream.
func (e *HTTPEnvironment) Screenshot(ctx context.Context) (string, error) {
	body, err := e.roundTrip(ctx, http.MethodGet, "/sessions/"+e.sessionID+"/screenshot", nil)
	if err != nil {
		return "", err
	}

	var sr screenshotResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to decode screenshot response: %w", err)
	}
	if sr.Image == "" {
		return "", fmt.Errorf("desktop API returned an empty screenshot")
	}
	return sr.Image, nil
}

// Exec sends one raw action line to the desktop. The action is validated
// locally first so malformed agent output never reaches the wire.
func (e *HTTPEnvironment) Exec(ctx context.Context, action string) error {
	if _, err := ParseAction(action); err != nil {
		return fmt.Errorf("refusing to execute action: %w", err)
	}

	payload, err := json.Marshal(execRequest{Action: action})
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}

	_, err = e.roundTrip(ctx, http.MethodPost, "/sessions/"+e.sessionID+"/actions", payload)
	return err
}

// Close releases the desktop session. Safe to call once.
func (e *HTTPEnvironment) Close() error {
	if e.sessionID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := e.roundTrip(ctx, http.MethodDelete, "/sessions/"+e.sessionID, nil)
	if err != nil {
		e.logger.Warn("Failed to release desktop session", zap.Error(err))
		return err
	}
	e.logger.Info("Desktop session released")
	return nil
}

// roundTrip performs one API call with a short retry window for transient
// failures. Exhausted retries and transport errors come back wrapped in
// schemas.ErrConnectivity.
func (e *HTTPEnvironment) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	b.MaxInterval = 5 * time.Second

	var respBody []byte

	operation := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, e.endpoint+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.httpClient.Do(req)
		if err != nil {
			e.logger.Warn("Desktop API transport error, retrying...", zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			respBody = body
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("desktop API error: status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("desktop API rejected %s %s: status %d, body: %s", method, path, resp.StatusCode, string(body)))
		}
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", schemas.ErrConnectivity, method, path, err)
	}
	return respBody, nil
}
