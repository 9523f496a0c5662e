// File: internal/decision/client.go
// Description: HTTP client for the vision decision agent. Sends one
// instruction plus the current screenshot, receives the agent's proposed
// action and narrative.

package decision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prism-cli/api/schemas"
	"github.com/xkilldash9x/prism-cli/internal/config"
	"github.com/xkilldash9x/prism-cli/internal/credentials"
)

const systemPrompt = "You are a desktop automation operator. You are shown a screenshot " +
	"of a remote desktop and one instruction. Reply with exactly one concrete UI action " +
	"(click X,Y / type TEXT / press KEY / hotkey KEYS / scroll DIRECTION) on the first line, " +
	"optionally followed by a short observation of what you see. " +
	"For yes/no verification questions, answer on the first line."

// Client implements the schemas.DecisionService interface over HTTP. One
// client is bound to one credential; credential rotation builds a new client.
type Client struct {
	endpoint   string
	model      string
	apiKey     credentials.Credential
	httpClient *http.Client
	logger     *zap.Logger
}

// -- Decision API request/response structures (internal to this file) --

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type requestPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type responsePayload struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewClient initializes the client bound to a single credential.
func NewClient(cfg config.DecisionConfig, apiKey credentials.Credential, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("decision API credential is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("decision endpoint is required")
	}

	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("decision_client"),
	}, nil
}

// Credential returns the token this client is bound to.
func (c *Client) Credential() credentials.Credential { return c.apiKey }

// Predict sends the instruction and observation to the decision service and
// returns the proposed action. Network errors and 5xx are retried with
// exponential backoff inside the call timeout; a quota rejection surfaces as
// schemas.ErrRateLimited so the caller can rotate the credential.
func (c *Client) Predict(ctx context.Context, instruction string, obs schemas.Observation) (schemas.ProposedAction, error) {
	payload := c.buildRequestPayload(instruction, obs)

	body, err := json.Marshal(payload)
	if err != nil {
		return schemas.ProposedAction{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 90 * time.Second
	b.MaxInterval = 15 * time.Second

	var proposed schemas.ProposedAction

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+string(c.apiKey))

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during decision request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var rp responsePayload
		if err := json.Unmarshal(respBody, &rp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		if len(rp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("decision API returned no choices"))
		}

		c.logger.Debug("Decision received",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", rp.Usage.PromptTokens),
			zap.Int("completion_tokens", rp.Usage.CompletionTokens),
			zap.String("credential", c.apiKey.Suffix()),
		)

		proposed = parseAction(rp.Choices[0].Message.Content)
		return nil
	}

	if err = backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return schemas.ProposedAction{}, err
	}

	if proposed.Empty() {
		return schemas.ProposedAction{}, schemas.ErrNoAction
	}
	return proposed, nil
}

func (c *Client) buildRequestPayload(instruction string, obs schemas.Observation) requestPayload {
	encoded := base64.StdEncoding.EncodeToString(obs.Image)
	return requestPayload{
		Model:       c.model,
		Temperature: 0.2,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: []contentPart{{Type: "text", Text: systemPrompt}},
			},
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: instruction},
					{Type: "image_url", ImageURL: &imageURL{URL: "data:image/png;base64," + encoded}},
				},
			},
		},
	}
}

func (c *Client) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Decision API returned error status",
		zap.Int("status", statusCode),
		zap.String("credential", c.apiKey.Suffix()),
	)

	switch statusCode {
	case http.StatusTooManyRequests:
		// Quota exhaustion is handled one level up by rotating the
		// credential, so it must not burn the backoff budget here.
		return backoff.Permanent(fmt.Errorf("%w: status %d", schemas.ErrRateLimited, statusCode))
	case http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway:
		return fmt.Errorf("decision API error: status %d, body: %s", statusCode, string(body))
	default:
		return backoff.Permanent(fmt.Errorf("decision API error: status %d, body: %s", statusCode, string(body)))
	}
}

// parseAction splits the agent reply into the action line and the narrative.
// The first non-empty line is the action; an optional "ACTION:" prefix is
// tolerated and stripped.
func parseAction(content string) schemas.ProposedAction {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) == 0 {
		return schemas.ProposedAction{}
	}

	raw := strings.TrimSpace(lines[0])
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "ACTION:"))

	narrative := ""
	if len(lines) > 1 {
		narrative = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}

	return schemas.ProposedAction{RawAction: raw, Narrative: narrative}
}
