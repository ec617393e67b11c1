// Package fetch provides the HTTP client shared by every remote loader and
// small helpers for JSON endpoints. There are no automatic retries: a failed
// request fails the caller.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a non-2xx body is kept in a StatusError.
const maxErrorBody = 4 << 10

// Config holds settings for the HTTP client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	Headers   http.Header
	// PreferIPv4 dials tcp4 only. Some upstream hosts are unreachable over
	// IPv6 from build machines.
	PreferIPv4 bool
	// Transport overrides the base transport, for tests.
	Transport http.RoundTripper
}

// headerRoundTripper injects the configured headers into every request.
type headerRoundTripper struct {
	base      http.RoundTripper
	userAgent string
	headers   http.Header
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, vs := range h.headers {
		r.Header.Del(k)
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if h.userAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", h.userAgent)
	}
	return h.base.RoundTrip(r)
}

// New returns a configured HTTP client.
func New(cfg Config) *http.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	base := cfg.Transport
	if base == nil {
		dialer := &net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}
		dial := dialer.DialContext
		if cfg.PreferIPv4 {
			dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
				if strings.HasPrefix(network, "tcp") {
					network = "tcp4"
				}
				return dialer.DialContext(ctx, network, addr)
			}
		}
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dial,
			ForceAttemptHTTP2:   !cfg.PreferIPv4,
			MaxIdleConnsPerHost: 8,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	return &http.Client{
		Transport: &headerRoundTripper{
			base:      base,
			userAgent: cfg.UserAgent,
			headers:   cfg.Headers,
		},
		Timeout: cfg.Timeout,
	}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("GET %s: %s", e.URL, e.Status)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// IsStatus reports whether err carries an HTTP response with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Get issues a GET request. A non-2xx response is drained, closed and
// returned as a *StatusError; otherwise the caller owns the body.
func Get(ctx context.Context, client *http.Client, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}
	return resp, nil
}

// GetJSON fetches url and decodes the JSON body into v.
func GetJSON(ctx context.Context, client *http.Client, url string, v any) error {
	return GetJSONWithHeader(ctx, client, url, nil, v)
}

// GetJSONWithHeader is GetJSON with extra request headers.
func GetJSONWithHeader(ctx context.Context, client *http.Client, url string, header http.Header, v any) error {
	h := http.Header{"Accept": {"application/json"}}
	for k, vs := range header {
		h[http.CanonicalHeaderKey(k)] = vs
	}
	resp, err := Get(ctx, client, url, h)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}
