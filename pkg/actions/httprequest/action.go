// Package httprequest provides the HTTP request action for calling external
// endpoints from a step, with templated URL, headers and body and a simple
// retry policy for server errors.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/registry"
	"github.com/chainpress/chainpress/pkg/template"
)

const defaultTimeoutSeconds = 30

var (
	// ErrURLMissing is returned when the configuration has no url.
	ErrURLMissing = errors.New("missing or invalid 'url' in configuration")
	// ErrServerError is returned when the server answered 5xx on the last
	// retry attempt.
	ErrServerError = errors.New("server error during HTTP request")
)

// RetryConfig defines retry behavior for server errors and transport
// failures.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retry   RetryConfig
}

func NewAction(config map[string]any) (*Action, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, ErrURLMissing
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersConfig {
			if value, ok := v.(string); ok {
				headers[k] = value
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Action{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		Retry:   parseRetryConfig(config["retry"]),
	}, nil
}

// Factory builds the action from a step node's configuration.
func Factory(config map[string]any) (registry.Action, error) {
	return NewAction(config)
}

func parseRetryConfig(raw any) RetryConfig {
	retry := RetryConfig{Attempts: 1, Delay: 0}

	retryMap, ok := raw.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := retryMap["attempts"].(float64); ok && attempts >= 1 {
		retry.Attempts = int(attempts)
	}

	if delay, ok := retryMap["delay"].(float64); ok && delay > 0 {
		retry.Delay = time.Duration(delay) * time.Second
	}

	return retry
}

func (a *Action) Execute(ctx context.Context, actionCtx models.ActionContext, logger *slog.Logger) (map[string]any, error) {
	url := template.RenderString(a.URL, actionCtx.Data)

	logger.InfoContext(ctx, "Executing HTTP request", "method", a.Method, "url", url)

	var (
		lastErr error
		resp    *http.Response
	)

	client := &http.Client{Timeout: a.Timeout}

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying HTTP request", "attempt", attempt, "of", a.Retry.Attempts)
			time.Sleep(a.Retry.Delay)
		}

		req, err := a.buildRequest(ctx, url, actionCtx.Data)
		if err != nil {
			return nil, err
		}

		resp, err = client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)

			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError && attempt < a.Retry.Attempts {
			if err := resp.Body.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close response body", "error", err)
			}

			lastErr = fmt.Errorf("status %d: %w", resp.StatusCode, ErrServerError)

			continue
		}

		break
	}

	if resp == nil {
		return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
	}

	return a.processResponse(ctx, resp, logger)
}

func (a *Action) buildRequest(ctx context.Context, url string, data map[string]any) (*http.Request, error) {
	var body io.Reader
	if a.Body != "" {
		body = strings.NewReader(template.RenderString(a.Body, data))
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for key, value := range a.Headers {
		req.Header.Set(key, template.RenderString(value, data))
	}

	return req, nil
}

func (a *Action) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (map[string]any, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	// JSON responses land as structured data, everything else as a string.
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = string(raw)
	}

	logger.InfoContext(ctx, "HTTP request completed", "status_code", resp.StatusCode)

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}, nil
}
