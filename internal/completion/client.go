package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docuchat/docuchat-backend/internal/utils"
)

// ProviderError wraps the last cause after retries are exhausted.
type ProviderError struct {
	Cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("completion provider failed: %v", e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// TokenUsage is the token accounting reported by the provider for one
// completion call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message is one chat turn sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer is the text-generation capability consumed by the pipeline
// and the query engine.
type Completer interface {
	Summarize(ctx context.Context, text string) (string, TokenUsage, error)
	RiskFactors(ctx context.Context, text string) (string, TokenUsage, error)
	Complete(ctx context.Context, contextText string, history []Message, userMessage string) (string, TokenUsage, error)
	SuggestTitle(ctx context.Context, firstMessage string) (string, error)
}

// Client calls an OpenAI-compatible chat-completions endpoint.
// Oversized inputs are truncated head-first before submission, never
// expanded.
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	maxInputChars int
	maxRetries    int
	client        *http.Client
	logger        *utils.Logger
}

type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	MaxInputChars int
	MaxRetries    int
	Timeout       time.Duration
}

func NewClient(cfg Config, logger *utils.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 24000
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		maxInputChars: cfg.MaxInputChars,
		maxRetries:    cfg.MaxRetries,
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

const summarizeSystemPrompt = `You are a professional document summarizer. Read the provided document and produce a concise summary of one or two short paragraphs in plain language. Do not add headings, tables, or information that is not present in the document. Return only the summary.`

const riskSystemPrompt = `You are a professional risk auditor. Scan the provided document for sensitive or confidential content such as personal data, financial information, or internal business details. Return a single valid JSON object with a "risk_factors" key holding an array of items, each with "risk_factor", "description" and "reference" fields. Report only risks actually present in the document. If none are found return {"risk_factors": []}. Return only the JSON.`

const chatSystemPrompt = `You are a helpful assistant that answers questions based on the provided document context. For yes/no questions give a clear yes or no with a brief explanation. If the context is insufficient, say the answer cannot be determined from the available documents.`

const titleSystemPrompt = `You generate short, descriptive titles for chat conversations. Respond with only the title, no quotes or extra text.`

// Summarize generates a short summary of the document text.
func (c *Client) Summarize(ctx context.Context, text string) (string, TokenUsage, error) {
	messages := []Message{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: c.truncate(text)},
	}
	return c.chat(ctx, messages)
}

// RiskFactors extracts sensitive-content findings as a JSON document.
func (c *Client) RiskFactors(ctx context.Context, text string) (string, TokenUsage, error) {
	messages := []Message{
		{Role: "system", Content: riskSystemPrompt},
		{Role: "user", Content: c.truncate(text)},
	}
	content, usage, err := c.chat(ctx, messages)
	if err != nil {
		return "", usage, err
	}
	content = extractJSON(content)
	if !json.Valid([]byte(content)) {
		return `{"risk_factors": []}`, usage, nil
	}
	return content, usage, nil
}

// Complete answers a user message conditioned on retrieved document
// context and the prior conversation turns.
func (c *Client) Complete(ctx context.Context, contextText string, history []Message, userMessage string) (string, TokenUsage, error) {
	messages := make([]Message, 0, len(history)+3)
	messages = append(messages, Message{Role: "system", Content: chatSystemPrompt})
	if contextText != "" {
		messages = append(messages, Message{
			Role:    "system",
			Content: "Context from the user's documents:\n\n" + c.truncate(contextText),
		})
	}
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: c.truncate(userMessage)})
	return c.chat(ctx, messages)
}

// SuggestTitle derives a short session title from the first message.
// The caller falls back to a placeholder when this fails.
func (c *Client) SuggestTitle(ctx context.Context, firstMessage string) (string, error) {
	head := firstMessage
	if len(head) > 100 {
		head = head[:100]
	}
	messages := []Message{
		{Role: "system", Content: titleSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Generate a short, descriptive title (max 50 characters) for a chat that starts with: %q", head)},
	}
	title, _, err := c.chat(ctx, messages)
	if err != nil {
		return "", err
	}
	title = strings.Trim(strings.TrimSpace(title), `"`)
	if len(title) > 50 {
		title = title[:50]
	}
	return title, nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage TokenUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func (c *Client) chat(ctx context.Context, messages []Message) (string, TokenUsage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryDelay(attempt-1)); err != nil {
				return "", TokenUsage{}, err
			}
		}

		content, usage, retryable, err := c.doRequest(ctx, messages)
		if err == nil {
			return content, usage, nil
		}
		if ctx.Err() != nil {
			return "", TokenUsage{}, ctx.Err()
		}
		lastErr = err
		if !retryable {
			break
		}
		c.logger.Warn("completion request failed, retrying", "attempt", attempt+1, "error", err)
	}
	return "", TokenUsage{}, &ProviderError{Cause: lastErr}
}

func (c *Client) doRequest(ctx context.Context, messages []Message) (content string, usage TokenUsage, retryable bool, err error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", usage, false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", usage, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", usage, true, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", usage, true, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", usage, true, fmt.Errorf("completions request returned %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return "", usage, false, fmt.Errorf("completions request returned %s: %s", resp.Status, string(payload))
	}

	var out chatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", usage, false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if out.Error != nil {
		return "", usage, false, fmt.Errorf("provider error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", usage, false, fmt.Errorf("no choices in response")
	}

	return strings.TrimSpace(out.Choices[0].Message.Content), out.Usage, false, nil
}

// truncate keeps the head of oversized input and drops the tail, so
// submission size is deterministic.
func (c *Client) truncate(text string) string {
	if len(text) <= c.maxInputChars {
		return text
	}
	return text[:c.maxInputChars]
}

// extractJSON strips markdown code fences the model sometimes wraps
// around JSON output.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 500 * time.Millisecond
	d := base << attempt
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
