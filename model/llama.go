package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Default configuration values.
const (
	DefaultServerURL = "http://127.0.0.1:8989"
	DefaultMaxTokens = 1000
	DefaultTimeout   = 120 * time.Second
)

const (
	embeddingPath  = "/embedding"
	completionPath = "/v1/completions"
)

// Config holds configuration for the llama.cpp client.
type Config struct {
	// ServerURL is the llama.cpp server base URL.
	ServerURL string

	// MaxTokens is the max_tokens sent with every completion.
	MaxTokens int

	// Timeout bounds every request.
	Timeout time.Duration
}

// LlamaClient talks to a llama.cpp server. It implements both Embedder and Generator.
type LlamaClient struct {
	serverURL string
	maxTokens int
	client    *http.Client
	logger    *zap.Logger
}

var (
	_ Embedder  = (*LlamaClient)(nil)
	_ Generator = (*LlamaClient)(nil)
)

func NewLlamaClient(cfg Config, logger *zap.Logger) *LlamaClient {
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LlamaClient{
		serverURL: strings.TrimRight(cfg.ServerURL, "/"),
		maxTokens: cfg.MaxTokens,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger.Named("llama"),
	}
}

// APIError is a non-200 answer from the inference server. Body is the raw response text.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("error from llama.cpp %s (status %d): %s", e.Endpoint, e.StatusCode, e.Body)
}

// postJSON sends body to path and decodes a 200 answer into out.
func (c *LlamaClient) postJSON(ctx context.Context, path string, body, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", path, err)
	}
	c.logger.Debug("llama call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return &APIError{Endpoint: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// MaxTokens returns the completion budget currently in use.
func (c *LlamaClient) MaxTokens() int {
	return c.maxTokens
}
