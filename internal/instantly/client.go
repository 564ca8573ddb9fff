package instantly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/foxzi/outreach/internal/metrics"
)

const (
	defaultBaseURL    = "https://api.instantly.ai/api/v1"
	defaultPageSize   = 100
	defaultMaxRetries = 3

	// Simple token-less spacing: at most 5 requests/second sustained.
	defaultMinRequestInterval = 200 * time.Millisecond

	connectTimeout = 3050 * time.Millisecond
	readTimeout    = 30 * time.Second

	userAgent = "outreach/1.0"
)

// retryableStatus holds the HTTP statuses worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// ErrUnsupportedMethod is returned for methods other than GET and POST
// before any network attempt is made.
var ErrUnsupportedMethod = errors.New("unsupported HTTP method")

// APIError is a definitive platform failure: the server answered with a
// terminal status, or a retryable status survived the whole retry budget.
type APIError struct {
	Message    string
	StatusCode int
	Payload    map[string]any
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status=%d)", e.Message, e.StatusCode)
	}
	return e.Message
}

// RetryError is raised when transient network failures persisted past the
// retry budget and no definitive status was ever seen.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("request failed after %d retries: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Config contains platform client settings.
type Config struct {
	APIKey             string
	BaseURL            string
	MaxRetries         int
	MinRequestInterval time.Duration
}

// Client is an outbound-platform API client with retries, backoff and
// pagination. The rate-limiting state is per-client mutable state; callers
// issuing concurrent requests must serialize on execute or own separate
// clients.
type Client struct {
	cfg        Config
	httpClient *http.Client
	backoff    *Backoff

	lastRequest time.Time

	// Test seams.
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a new platform client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MinRequestInterval == 0 {
		cfg.MinRequestInterval = defaultMinRequestInterval
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
			},
		},
		backoff: NewBackoff(),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// rateLimit blocks until the throttle window has passed, then enforces the
// minimum inter-request spacing since the previous call on this client.
func (c *Client) rateLimit() {
	if d := c.backoff.TimeUntilAllowed(); d > 0 {
		c.sleep(d)
	}
	if elapsed := c.now().Sub(c.lastRequest); elapsed < c.cfg.MinRequestInterval {
		c.sleep(c.cfg.MinRequestInterval - elapsed)
	}
	c.lastRequest = c.now()
}

// execute performs one logical API request with retries and error
// classification, returning the decoded JSON payload.
func (c *Client) execute(ctx context.Context, method, endpoint string, params url.Values, body any) (any, error) {
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	query := url.Values{}
	for k, vs := range params {
		query[k] = vs
	}
	query.Set("api_key", c.cfg.APIKey)

	reqURL := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + endpoint + "?" + query.Encode()

	var reqBody []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = data
	}

	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		c.rateLimit()

		var bodyReader *bytes.Reader
		if reqBody != nil {
			bodyReader = bytes.NewReader(reqBody)
		}

		req, err := newRequest(ctx, method, reqURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Timeouts and connection failures are transient.
			metrics.IncPlatformRequest(method, "error")
			lastErr = err
			if attempt < c.cfg.MaxRetries-1 {
				metrics.IncPlatformRetry()
				c.sleep(c.backoff.NextDelay(attempt))
			}
			continue
		}

		metrics.IncPlatformRequest(method, statusClass(resp.StatusCode))

		payload, decodeErr := decodeBody(resp)
		resp.Body.Close()

		if retryableStatus[resp.StatusCode] {
			if hint := resp.Header.Get("Retry-After"); hint != "" {
				metrics.IncPlatformThrottle()
				c.backoff.ObserveThrottle(hint)
			}
			if attempt < c.cfg.MaxRetries-1 {
				metrics.IncPlatformRetry()
				c.sleep(c.backoff.NextDelay(attempt))
				continue
			}
			return nil, &APIError{
				Message:    fmt.Sprintf("%s %s failed", method, endpoint),
				StatusCode: resp.StatusCode,
				Payload:    asObject(payload),
			}
		}

		if resp.StatusCode >= 400 {
			return nil, &APIError{
				Message:    fmt.Sprintf("%s %s failed", method, endpoint),
				StatusCode: resp.StatusCode,
				Payload:    asObject(payload),
			}
		}

		if decodeErr != nil {
			return nil, fmt.Errorf("decode response: %w", decodeErr)
		}
		return payload, nil
	}

	return nil, &RetryError{Attempts: c.cfg.MaxRetries, Err: lastErr}
}

// newRequest builds the request with the fixed client headers. A typed nil
// reader must not reach http.NewRequestWithContext as a non-nil interface.
func newRequest(ctx context.Context, method, url string, body *bytes.Reader) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// statusClass folds an HTTP status into its class label ("2xx", "4xx", ...).
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

func decodeBody(resp *http.Response) (any, error) {
	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func asObject(payload any) map[string]any {
	obj, _ := payload.(map[string]any)
	return obj
}

// extractList unwraps a list from an API response: either a bare array, or
// an object carrying the array under the named key, or under the generic
// "data" key.
func extractList(data any, key string) []map[string]any {
	switch v := data.(type) {
	case []any:
		return toObjects(v)
	case map[string]any:
		if items, ok := v[key].([]any); ok {
			return toObjects(items)
		}
		if items, ok := v["data"].([]any); ok {
			return toObjects(items)
		}
	}
	return nil
}

func toObjects(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
