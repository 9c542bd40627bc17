package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// maxDocumentChars bounds how much of the page is sent to the model.
const maxDocumentChars = 30000

// LLMConfig points the smart extractor at an OpenAI-compatible chat endpoint.
type LLMConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// LLMClient asks a language model to pull structured fields out of a page.
type LLMClient struct {
	cfg    LLMConfig
	client *resty.Client
	logger *zap.Logger
}

// NewLLMClient constructs an LLMClient, or nil if no endpoint is configured.
func NewLLMClient(cfg LLMConfig, logger *zap.Logger) *LLMClient {
	if cfg.Endpoint == "" {
		return nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &LLMClient{cfg: cfg, client: client, logger: logger}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze sends the page and instruction to the model and parses the JSON it
// returns. The result shape is whatever the model produced; non-object
// answers are wrapped under a "result" key.
func (c *LLMClient) Analyze(ctx context.Context, html, instruction string) (map[string]any, error) {
	doc := html
	if len(doc) > maxDocumentChars {
		doc = doc[:maxDocumentChars]
	}

	prompt := fmt.Sprintf(
		"Extract data from the following HTML document according to this instruction: %s\n\n"+
			"Respond with JSON only, no prose.\n\nHTML:\n%s",
		instruction, doc,
	)

	var out chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model:       c.cfg.Model,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			Temperature: 0,
		}).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("llm request: status %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("llm response contained no choices")
	}

	return parseModelJSON(out.Choices[0].Message.Content)
}

// parseModelJSON tolerates the markdown code fences models often wrap JSON in.
func parseModelJSON(text string) (map[string]any, error) {
	cleaned := stripFences(text)

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("parse llm output: %w", err)
	}
	if m, ok := parsed.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"result": parsed}, nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
