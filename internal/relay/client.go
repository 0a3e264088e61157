package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrMissingAPIKey is returned when no provider credential is configured.
// It fails the current request only; the process keeps serving.
var ErrMissingAPIKey = errors.New("AI provider API key is not configured")

// Streamer opens a single upstream generation request for a prompt and
// invokes deliver once per incremental text delta, in arrival order.
// A deliver error aborts the upstream request.
type Streamer interface {
	StreamCompletion(ctx context.Context, prompt string, deliver func(delta string) error) error
}

// Client streams chat completions from an OpenAI-compatible provider.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// ClientConfig holds upstream provider settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// HTTPClient overrides the default transport. Used by tests.
	HTTPClient *http.Client
}

// NewClient creates an upstream streaming client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No overall timeout: the response body is a long-lived stream.
		// Idle detection is the relay's job.
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: httpClient,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamCompletion opens one streaming chat-completion request and relays
// each text delta to deliver. It returns nil on normal completion and an
// error on network, provider, or configuration failure. Each call owns its
// own connection; cancelling ctx closes it promptly.
func (c *Client) StreamCompletion(ctx context.Context, prompt string, deliver func(delta string) error) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}

	payload, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("encode upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return c.readStream(resp.Body, deliver)
}

// readStream consumes the SSE body line by line. Deltas are delivered one
// per upstream event, in arrival order; reading stops at the [DONE] marker.
func (c *Client) readStream(body io.Reader, deliver func(delta string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed events rather than killing the stream.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			if err := deliver(content); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read upstream stream: %w", err)
	}
	return nil
}
