package checkers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrServerError is returned when the endpoint answers with a 5xx status.
var ErrServerError = errors.New("endpoint returned a server error")

const defaultHTTPTimeout = 10 * time.Second

// HTTPChecker reports an endpoint healthy while it answers with anything
// below 500. Auth failures still prove the site is up.
type HTTPChecker struct {
	url       string
	name      string
	client    *http.Client
	userAgent string
}

// HTTPOption configures an HTTPChecker.
type HTTPOption func(*HTTPChecker)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTPChecker) {
		if client != nil {
			h.client = client
		}
	}
}

// WithUserAgent sets the User-Agent sent with each probe.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTPChecker) {
		h.userAgent = ua
	}
}

// NewHTTPChecker probes url with GET. The name defaults to the URL.
func NewHTTPChecker(url, name string, opts ...HTTPOption) *HTTPChecker {
	if name == "" {
		name = url
	}
	h := &HTTPChecker{
		url:    url,
		name:   name,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPChecker) Name() string {
	return h.name
}

func (h *HTTPChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("building probe for %s: %w", h.url, err)
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", h.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s answered %d", ErrServerError, h.url, resp.StatusCode)
	}
	return nil
}
