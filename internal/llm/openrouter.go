package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrEmptyResponse is returned when a provider answers without usable text
var ErrEmptyResponse = errors.New("model returned empty content")

// maxErrorBody caps how much of a failed response body ends up in an error
const maxErrorBody = 512

// Options configures a Client
type Options struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration

	// RateLimit is outbound requests per second; zero disables limiting
	RateLimit float64
	RateBurst int

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client queries models through the OpenRouter chat completions API
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates an OpenRouter client
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		apiURL:     opts.APIURL,
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger.With(zap.String("component", "openrouter")),
	}
}

// Invoke queries one model and never returns a Go error: any failure is
// reported through Result.Err so a batch of calls can be filtered as data.
func (c *Client) Invoke(ctx context.Context, req Request) Result {
	start := time.Now()
	text, err := c.Complete(ctx, req)
	if err != nil {
		c.logger.Warn("model query failed",
			zap.String("model", req.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return Result{Model: req.Model, Err: err}
	}

	c.logger.Debug("model query succeeded",
		zap.String("model", req.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(text)))
	return Result{Model: req.Model, Text: text}
}

// Complete queries one model and returns its normalized, trimmed answer.
// An answer that is empty after normalization is an error.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	payload := chatRequest{
		Model:     req.Model,
		Messages:  BuildMessages(req),
		MaxTokens: MaxTokens(req.MaxLength),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(bodyBytes, maxErrorBody))
	}

	var apiResponse chatResponse
	if err := json.Unmarshal(bodyBytes, &apiResponse); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResponse.Error != nil {
		return "", fmt.Errorf("API error: %s", apiResponse.Error.Message)
	}

	if len(apiResponse.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	text := NormalizeContent(apiResponse.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
