// Package ctfd is a small client for the CTFd REST API. It covers the
// endpoints the announcer reads and classifies every failure as an
// *UpstreamError.
package ctfd

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

	"golang.org/x/time/rate"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

const (
	apiPrefix = "/api/v1"

	DefaultTimeout    = 10 * time.Second
	DefaultRateLimit  = 10.0
	DefaultBurst      = 5
	DefaultAuthScheme = "Token"
	DefaultTopTeams   = 10

	// DefaultMaxPages bounds list traversal against a server that never
	// stops returning next. Hitting it is an error, not a short result.
	DefaultMaxPages = 10000

	maxBodyBytes = 16 << 20
	pageSize     = 100
)

// Request outcomes reported to the RequestObserver.
const (
	OutcomeOK             = "ok"
	OutcomeHTTPError      = "http_error"
	OutcomeTransportError = "transport_error"
	OutcomeDecodeError    = "decode_error"
)

// RequestObserver receives the duration and outcome of every upstream call.
type RequestObserver interface {
	ObserveUpstreamRequest(endpoint, outcome string, duration time.Duration)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	AuthScheme string
	Timeout    time.Duration
	// RateLimit is requests per second; zero or negative disables limiting.
	RateLimit float64
	Burst     int
	// MaxPages caps pages followed per list call (DefaultMaxPages when zero).
	MaxPages int

	HTTPClient *http.Client
	Observer   RequestObserver
	Logger     logger.Logger
}

// Client talks to a single CTFd instance. It is safe for concurrent use.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   RequestObserver
	maxPages   int
	logger     logger.Logger
}

// envelope is the {"success": bool, "data": ...} wrapper of every response.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    struct {
		Pagination *pagination `json:"pagination"`
	} `json:"meta"`
}

type pagination struct {
	Page  int  `json:"page"`
	Next  *int `json:"next"`
	Pages int  `json:"pages"`
	Total int  `json:"total"`
}

// NewClient creates a client for the CTFd instance at cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("ctfd base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid ctfd base URL %q: %w", base, err)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ctfd API key is required")
	}

	scheme := cfg.AuthScheme
	if scheme == "" {
		scheme = DefaultAuthScheme
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		if burst <= 0 {
			burst = DefaultBurst
		}
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(base, apiPrefix),
		authHeader: scheme + " " + cfg.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		observer:   cfg.Observer,
		maxPages:   maxPages,
		logger:     log.WithFields(logger.StringField("component", "ctfd_client")),
	}, nil
}

// get performs an authenticated GET against path (relative to /api/v1) and
// returns the decoded envelope. op names the call in errors and metrics.
func (c *Client) get(ctx context.Context, op, path string, query url.Values) (*envelope, error) {
	start := time.Now()
	outcome := OutcomeOK
	defer func() {
		if c.observer != nil {
			c.observer.ObserveUpstreamRequest(op, outcome, time.Since(start))
		}
	}()

	fail := func(o string, status int, err error) (*envelope, error) {
		outcome = o
		return nil, &UpstreamError{Op: op, Path: path, StatusCode: status, Err: err}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fail(OutcomeTransportError, 0, err)
	}

	target := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fail(OutcomeTransportError, 0, err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(OutcomeTransportError, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fail(OutcomeTransportError, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(OutcomeHTTPError, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return fail(OutcomeDecodeError, resp.StatusCode, ErrEmptyResponse)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fail(OutcomeDecodeError, resp.StatusCode, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	if env.Success == nil || !*env.Success {
		return fail(OutcomeDecodeError, resp.StatusCode, ErrUnsuccessful)
	}

	c.logger.Debug("CTFd request completed",
		logger.StringField("op", op),
		logger.HTTPPathField(path),
		logger.HTTPStatusField(resp.StatusCode),
		logger.DurationField("duration", time.Since(start)))

	return &env, nil
}

// getData decodes the envelope's data field into out.
func (c *Client) getData(ctx context.Context, op, path string, query url.Values, out any) error {
	env, err := c.get(ctx, op, path, query)
	if err != nil {
		return err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &UpstreamError{Op: op, Path: path, StatusCode: http.StatusOK,
			Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}

// getAllPages follows meta.pagination.next for list endpoints until next is
// null. Running out of the page budget with pages left is an UpstreamError
// wrapping ErrPageLimit, so callers never see a silently short list.
func getAllPages[T any](ctx context.Context, c *Client, op, path string, query url.Values) ([]T, error) {
	var all []T
	page := 1
	for fetched := 0; ; fetched++ {
		if fetched == c.maxPages {
			return nil, &UpstreamError{Op: op, Path: path,
				Err: fmt.Errorf("%w: stopped after %d pages with %d items", ErrPageLimit, fetched, len(all))}
		}

		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("per_page", fmt.Sprint(pageSize))
		if page > 1 {
			q.Set("page", fmt.Sprint(page))
		}

		env, err := c.get(ctx, op, path, q)
		if err != nil {
			return nil, err
		}
		var items []T
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &items); err != nil {
				return nil, &UpstreamError{Op: op, Path: path, StatusCode: http.StatusOK,
					Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
			}
		}
		all = append(all, items...)

		p := env.Meta.Pagination
		if p == nil || p.Next == nil {
			return all, nil
		}
		if *p.Next <= page {
			return nil, &UpstreamError{Op: op, Path: path, StatusCode: http.StatusOK,
				Err: fmt.Errorf("%w: next page %d after page %d", ErrMalformedResponse, *p.Next, page)}
		}
		page = *p.Next
	}
}
