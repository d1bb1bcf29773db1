package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gosegment/domain/segmentation"
	"gosegment/internal/errors"
	"gosegment/internal/logging"
	"gosegment/ports"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Endpoint paths of the analytics service, relative to the base URL.
const (
	AutoDetectPath = "/segmentation/auto-detect"
	ExecutePath    = "/segmentation/execute"
)

const serviceName = "analytics"

// maxErrorBody bounds how much of an error response is read into the message.
const maxErrorBody = 4 << 10

// Config holds client settings
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RatePerSec float64
}

// Client is the HTTP implementation of ports.AnalyticsService.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

var _ ports.AnalyticsService = (*Client)(nil)

// NewClient creates an analytics client. A non-positive rate disables limiting.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logging.OrNop(logger).Named("analytics"),
	}
}

// AutoDetectParameter requests a cluster-count sweep.
func (c *Client) AutoDetectParameter(ctx context.Context, req ports.AutoDetectRequest) (*segmentation.AutoDetectResult, error) {
	var result segmentation.AutoDetectResult
	if err := c.post(ctx, AutoDetectPath, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecuteClustering requests a full segmentation.
func (c *Client) ExecuteClustering(ctx context.Context, req ports.ExecuteRequest) (*segmentation.ClusterResult, error) {
	var result segmentation.ClusterResult
	if err := c.post(ctx, ExecutePath, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.ExternalServiceError(serviceName, fmt.Errorf("rate limiter: %w", err))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("path", path), zap.Error(err))
		return errors.ExternalServiceError(serviceName, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("response received",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.ExternalServiceError(serviceName, fmt.Errorf("status %d: %s", resp.StatusCode, errorMessage(raw)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.ContractViolation(serviceName, "undecodable response body: "+err.Error())
	}
	return nil
}

// errorMessage extracts the message of a JSON error body ({"error": ...}
// or {"detail": ...}), falling back to the raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		for _, m := range []string{body.Error, body.Detail, body.Message} {
			if m != "" {
				return m
			}
		}
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "empty response"
	}
	return text
}
