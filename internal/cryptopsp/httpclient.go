package cryptopsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RequestOption modifies a single outgoing *http.Request.
type RequestOption func(*http.Request)

// ClientOption modifies an HTTPClient at construction time.
type ClientOption func(*HTTPClient)

// HTTPError is returned when a request completes with a >=400 status.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Method     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d %s: %s", e.Method, e.URL, e.StatusCode, e.Status, e.Body)
}

// HTTPClient is a small base-URL + default-header + retry wrapper around
// *http.Client, adapted wholesale from the teacher's internal/client/http
// package — same option-functor shape, generalized to take an injected
// *zap.Logger instead of a package-level logger singleton.
type HTTPClient struct {
	httpClient     *http.Client
	log            *zap.Logger
	baseURL        string
	defaultHeaders map[string]string
	retryConfig    *RetryConfig
}

// RetryConfig configures exponential-backoff retries on transient failures.
type RetryConfig struct {
	MaxRetries           int
	InitialInterval      time.Duration
	MaxInterval          time.Duration
	Multiplier           float64
	MaxElapsedTime       time.Duration
	RetryableStatusCodes []int
}

// DefaultRetryConfig matches the teacher's chosen defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:           3,
		InitialInterval:      100 * time.Millisecond,
		MaxInterval:          10 * time.Second,
		Multiplier:           2.0,
		MaxElapsedTime:       30 * time.Second,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
	}
}

// NewHTTPClient builds an HTTPClient; log must not be nil.
func NewHTTPClient(log *zap.Logger, options ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
		defaultHeaders: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		retryConfig: DefaultRetryConfig(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// WithBaseURL sets the base URL prefixed to every request path.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *HTTPClient) { c.baseURL = baseURL }
}

// WithDefaultHeader adds a header sent on every request.
func WithDefaultHeader(key, value string) ClientOption {
	return func(c *HTTPClient) { c.defaultHeaders[key] = value }
}

// WithTimeout overrides the client's request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *HTTPClient) { c.httpClient.Timeout = timeout }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg *RetryConfig) ClientOption {
	return func(c *HTTPClient) { c.retryConfig = cfg }
}

// WithHeader sets a header on one request.
func WithHeader(key, value string) RequestOption {
	return func(req *http.Request) { req.Header.Set(key, value) }
}

// WithQueryParam adds a query parameter to one request.
func WithQueryParam(key, value string) RequestOption {
	return func(req *http.Request) {
		q := req.URL.Query()
		q.Add(key, value)
		req.URL.RawQuery = q.Encode()
	}
}

// WithBearerToken sets the Authorization header on one request.
func WithBearerToken(token string) RequestOption {
	return func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
}

func (c *HTTPClient) Get(ctx context.Context, path string, options ...RequestOption) (*http.Response, error) {
	return c.DoRequest(ctx, http.MethodGet, path, nil, options...)
}

func (c *HTTPClient) Post(ctx context.Context, path string, body interface{}, options ...RequestOption) (*http.Response, error) {
	return c.DoRequest(ctx, http.MethodPost, path, body, options...)
}

func (c *HTTPClient) Delete(ctx context.Context, path string, options ...RequestOption) (*http.Response, error) {
	return c.DoRequest(ctx, http.MethodDelete, path, nil, options...)
}

// DoRequest builds, signs (via options), sends (with retry), and logs one
// request.
func (c *HTTPClient) DoRequest(ctx context.Context, method, path string, body interface{}, options ...RequestOption) (*http.Response, error) {
	start := time.Now()

	fullURL := path
	if c.baseURL != "" {
		trimmedBase := strings.TrimSuffix(c.baseURL, "/")
		trimmedPath := path
		if !strings.HasPrefix(trimmedPath, "/") {
			trimmedPath = "/" + trimmedPath
		}
		fullURL = trimmedBase + trimmedPath
	} else if _, err := url.ParseRequestURI(path); err != nil {
		return nil, fmt.Errorf("invalid path used without base URL: %s: %w", path, err)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyJSON)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.defaultHeaders {
		req.Header.Set(k, v)
	}
	for _, opt := range options {
		opt(req)
	}

	var resp *http.Response
	var requestErr error

	if c.retryConfig != nil && c.retryConfig.MaxRetries > 0 {
		operation := func() error {
			resp, requestErr = c.httpClient.Do(req)
			if requestErr == nil && resp != nil {
				for _, code := range c.retryConfig.RetryableStatusCodes {
					if resp.StatusCode == code {
						if resp.Body != nil {
							_, _ = io.Copy(io.Discard, resp.Body)
							_ = resp.Body.Close()
						}
						return fmt.Errorf("retryable status code: %d", resp.StatusCode)
					}
				}
			}
			return requestErr
		}

		expBackoff := backoff.NewExponentialBackOff()
		expBackoff.InitialInterval = c.retryConfig.InitialInterval
		expBackoff.MaxInterval = c.retryConfig.MaxInterval
		expBackoff.Multiplier = c.retryConfig.Multiplier
		expBackoff.MaxElapsedTime = c.retryConfig.MaxElapsedTime

		requestErr = backoff.Retry(operation, backoff.WithMaxRetries(expBackoff, uint64(c.retryConfig.MaxRetries)))
	} else {
		resp, requestErr = c.httpClient.Do(req)
	}

	duration := time.Since(start)
	if requestErr != nil {
		c.log.Error("crypto psp request failed",
			zap.String("method", method), zap.String("url", fullURL),
			zap.Error(requestErr), zap.Duration("duration", duration))
		return nil, fmt.Errorf("http request failed: %w", requestErr)
	}

	if resp.StatusCode >= 400 {
		var bodyBytes []byte
		if resp.Body != nil {
			bodyBytes, _ = io.ReadAll(resp.Body)
			resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
		c.log.Warn("crypto psp error response",
			zap.String("method", method), zap.String("url", fullURL),
			zap.Int("status", resp.StatusCode), zap.Duration("duration", duration))
		return resp, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, URL: fullURL, Method: method, Body: string(bodyBytes)}
	}

	c.log.Debug("crypto psp request succeeded",
		zap.String("method", method), zap.String("url", fullURL),
		zap.Int("status", resp.StatusCode), zap.Duration("duration", duration))
	return resp, nil
}

// ProcessJSONResponse decodes resp's body as JSON into target, closing the
// body regardless of outcome.
func (c *HTTPClient) ProcessJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(bodyBytes)}
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
