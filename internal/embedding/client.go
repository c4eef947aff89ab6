package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/docuchat/docuchat-backend/internal/utils"
)

// ProviderError wraps the last cause after retries are exhausted.
type ProviderError struct {
	Cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider failed: %v", e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Embedder converts an ordered batch of texts into an ordered batch of
// vectors, one per input, same ordering.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, int, error)
}

// Client calls an OpenAI-compatible /embeddings endpoint. Inputs are
// submitted in batches up to batchSize; a partial-batch failure fails
// the whole call so the caller can retry the unit as a whole.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	batchSize  int
	maxRetries int
	client     *http.Client
	logger     *utils.Logger
}

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	BatchSize  int
	MaxRetries int
	Timeout    time.Duration
}

func NewClient(cfg Config, logger *utils.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns one vector per input text in input order, plus the
// total token count reported by the provider. Every vector has the
// same dimensionality for a given model.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	vectors := make([][]float32, 0, len(texts))
	totalTokens := 0
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, tokens, err := c.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, 0, err
		}
		vectors = append(vectors, batch...)
		totalTokens += tokens
	}
	for _, v := range vectors[1:] {
		if len(v) != len(vectors[0]) {
			return nil, 0, &ProviderError{Cause: fmt.Errorf("embedding dimension changed from %d to %d", len(vectors[0]), len(v))}
		}
	}
	return vectors, totalTokens, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, int, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryDelay(attempt-1)); err != nil {
				return nil, 0, err
			}
		}

		vectors, tokens, retryable, err := c.doRequest(ctx, batch)
		if err == nil {
			return vectors, tokens, nil
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		lastErr = err
		if !retryable {
			break
		}
		c.logger.Warn("embedding request failed, retrying", "attempt", attempt+1, "error", err)
	}
	return nil, 0, &ProviderError{Cause: lastErr}
}

func (c *Client) doRequest(ctx context.Context, batch []string) (vectors [][]float32, tokens int, retryable bool, err error) {
	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: batch})
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		// Network errors and timeouts are transient
		return nil, 0, true, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, true, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.Atoi(ra); perr == nil {
				_ = sleepCtx(ctx, time.Duration(secs)*time.Second)
			}
		}
		return nil, 0, true, fmt.Errorf("embeddings request returned %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, false, fmt.Errorf("embeddings request returned %s: %s", resp.Status, string(payload))
	}

	var out embeddingResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, 0, false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if out.Error != nil {
		return nil, 0, false, fmt.Errorf("provider error: %s", out.Error.Message)
	}
	if len(out.Data) != len(batch) {
		// Never silently drop inputs; the whole batch fails
		return nil, 0, false, fmt.Errorf("provider returned %d embeddings for %d inputs", len(out.Data), len(batch))
	}

	vectors = make([][]float32, len(batch))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(batch) {
			return nil, 0, false, fmt.Errorf("provider returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for _, v := range vectors {
		if len(v) == 0 {
			return nil, 0, false, fmt.Errorf("provider returned an empty embedding")
		}
	}
	return vectors, out.Usage.TotalTokens, false, nil
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
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
