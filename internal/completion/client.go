// ABOUTME: HTTP client for the hosted chat-completion API
// ABOUTME: One request per Send, fixed generation parameters, typed error mapping

package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultEndpoint is the hosted completion API
const DefaultEndpoint = "https://api.perplexity.ai/chat/completions"

// DefaultModel is used when no model is configured
const DefaultModel = "llama-3.1-sonar-small-128k-online"

// DefaultSystemPrompt is used when no system prompt is configured
const DefaultSystemPrompt = "Vous êtes Bechir AI, un assistant intelligent et serviable. Répondez de manière concise et utile en français."

// Config holds the per-call parameters a Send captures at call time
type Config struct {
	APIKey       string
	Model        string
	Temperature  float64
	SystemPrompt string
}

// chatRequest is the wire format of an outbound completion request.
// The non-configurable fields are a behavioral contract: they control
// response character (length, determinism, recency) and must not drift.
type chatRequest struct {
	Model                  string        `json:"model"`
	Messages               []chatMessage `json:"messages"`
	Temperature            float64       `json:"temperature"`
	TopP                   float64       `json:"top_p"`
	MaxTokens              int           `json:"max_tokens"`
	ReturnImages           bool          `json:"return_images"`
	ReturnRelatedQuestions bool          `json:"return_related_questions"`
	SearchRecencyFilter    string        `json:"search_recency_filter"`
	FrequencyPenalty       float64       `json:"frequency_penalty"`
	PresencePenalty        float64       `json:"presence_penalty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client sends single-turn completion requests. Settings updates are
// atomic; a Send in flight keeps the values it captured when it started.
type Client struct {
	mu         sync.RWMutex
	cfg        Config
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client against the default endpoint.
// Pass nil logger for default.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return NewClientWithEndpoint(cfg, DefaultEndpoint, nil, logger)
}

// NewClientWithEndpoint creates a client against a custom endpoint,
// optionally with a custom *http.Client. Used by tests and self-hosted
// deployments.
func NewClientWithEndpoint(cfg Config, endpoint string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Client{
		cfg:        cfg,
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger.With("component", "completion"),
	}
}

// UpdateSettings replaces all four configurable fields atomically.
// The next Send uses the new values; in-flight calls are unaffected.
func (c *Client) UpdateSettings(apiKey, model string, temperature float64, systemPrompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = Config{
		APIKey:       apiKey,
		Model:        model,
		Temperature:  temperature,
		SystemPrompt: systemPrompt,
	}
	if c.cfg.Model == "" {
		c.cfg.Model = DefaultModel
	}
	if c.cfg.SystemPrompt == "" {
		c.cfg.SystemPrompt = DefaultSystemPrompt
	}
}

// Configured reports whether an API key is present
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.APIKey != ""
}

// Send issues one completion request for the given user message and
// returns the first choice's content. All failures are mapped to the
// typed taxonomy in errors.go; none are retried here.
func (c *Client) Send(ctx context.Context, message string) (string, error) {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()

	if cfg.APIKey == "" {
		return "", &ConfigurationError{}
	}

	body, err := json.Marshal(chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: cfg.SystemPrompt},
			{Role: "user", Content: message},
		},
		Temperature:            cfg.Temperature,
		TopP:                   0.9,
		MaxTokens:              1000,
		ReturnImages:           false,
		ReturnRelatedQuestions: false,
		SearchRecencyFilter:    "month",
		FrequencyPenalty:       1,
		PresencePenalty:        0,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("completion request failed", "error", err)
		return "", &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", &AuthenticationError{}
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &RateLimitError{}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		// Drain so the connection can be reused
		io.Copy(io.Discard, resp.Body)
		c.logger.Error("completion request rejected", "status", resp.StatusCode)
		return "", &UnknownServiceError{StatusCode: resp.StatusCode}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Error("completion response unreadable", "error", err)
		return "", &UnknownServiceError{StatusCode: resp.StatusCode}
	}
	if len(parsed.Choices) == 0 {
		return "", &EmptyResponseError{}
	}

	content := parsed.Choices[0].Message.Content
	c.logger.Debug("completion received",
		"model", cfg.Model,
		"chars", len(content))
	return content, nil
}
