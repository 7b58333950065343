package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient talks to an Anthropic-compatible messages endpoint over
// plain HTTP, with rate limiting, bounded retries and optional SSE
// streaming.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *slog.Logger
}

type Option func(*AnthropicClient)

func WithModel(model string) Option {
	return func(c *AnthropicClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *AnthropicClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

func WithRateLimit(requestsPerMinute, burst int) Option {
	return func(c *AnthropicClient) {
		if requestsPerMinute > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
		}
	}
}

func WithRetry(maxRetries int) Option {
	return func(c *AnthropicClient) {
		c.maxRetries = maxRetries
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *AnthropicClient) {
		c.httpClient = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *AnthropicClient) {
		c.logger = logger
	}
}

func NewAnthropicClient(apiKey string, opts ...Option) *AnthropicClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	c := &AnthropicClient{
		apiKey:  apiKey,
		baseURL: "https://api.anthropic.com/v1",
		model:   "claude-3-5-sonnet-20241022",
		httpClient: &http.Client{
			Transport: transport,
		},
		limiter:    rate.NewLimiter(rate.Limit(0.5), 5),
		maxRetries: 3,
		logger:     slog.Default().With("component", "anthropic_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AnthropicClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	requestID := fmt.Sprintf("req_%d", time.Now().UnixNano())
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			c.logger.Debug("retry backoff",
				"request_id", requestID,
				"attempt", attempt,
				"backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.doRequest(ctx, requestID, prompt, opts)
		if err == nil {
			c.logger.Info("generation request completed",
				"request_id", requestID,
				"attempt", attempt,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_length", len(text))
			return text, nil
		}
		lastErr = err

		var pe *Error
		if errors.As(err, &pe) && !pe.Retryable() {
			c.logger.Error("generation request failed, not retryable",
				"request_id", requestID,
				"attempt", attempt,
				"error", err)
			return "", err
		}
		if ctx.Err() != nil {
			return "", err
		}
		c.logger.Warn("generation request failed, will retry",
			"request_id", requestID,
			"attempt", attempt,
			"error", err)
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *AnthropicClient) doRequest(ctx context.Context, requestID, prompt string, opts GenerateOptions) (string, error) {
	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := map[string]any{
		"model":      c.model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if opts.Temperature > 0 {
		body["temperature"] = opts.Temperature
	}
	streaming := opts.OnChunk != nil
	if streaming {
		body["stream"] = true
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	c.logger.Debug("sending generation request",
		"request_id", requestID,
		"model", c.model,
		"prompt_length", len(prompt),
		"max_tokens", maxTokens,
		"streaming", streaming)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.apiError(resp)
	}

	if streaming {
		return c.readStream(resp.Body, opts.OnChunk)
	}
	return c.readResponse(resp.Body)
}

func (c *AnthropicClient) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var parsed struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	perr := &Error{Status: resp.StatusCode, Message: string(body)}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		perr.Code = parsed.Error.Type
		perr.Message = parsed.Error.Message
	}
	return perr
}

func (c *AnthropicClient) readResponse(body io.Reader) (string, error) {
	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", &Error{Status: 200, Message: "no content in response"}
	}
	var b strings.Builder
	for _, block := range parsed.Content {
		b.WriteString(block.Text)
	}
	return b.String(), nil
}

// readStream consumes the SSE event stream, forwarding text deltas to
// onChunk. On a mid-stream failure the Error carries everything received
// so far so the caller can salvage it.
func (c *AnthropicClient) readStream(body io.Reader, onChunk func(string)) (string, error) {
	var full strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text != "" {
				full.WriteString(event.Delta.Text)
				onChunk(event.Delta.Text)
			}
		case "error":
			return "", &Error{
				Status:  529,
				Code:    event.Error.Type,
				Message: event.Error.Message,
				Partial: full.String(),
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", &Error{Status: 0, Message: err.Error(), Partial: full.String()}
	}
	return full.String(), nil
}
