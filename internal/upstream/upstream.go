// Package upstream performs the single HTTP round-trip to the License
// Server or Log Server, honoring an optional outbound proxy, timeouts, and
// bounded retries with exponential backoff.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/store"

	"github.com/cenkalti/backoff/v4"
)

// FailureKind classifies why an upstream call did not succeed.
type FailureKind string

const (
	FailureTransport   FailureKind = "TRANSPORT"
	FailureTimeout     FailureKind = "TIMEOUT"
	FailureUpstream5xx FailureKind = "UPSTREAM_5XX"
	FailureUpstream4xx FailureKind = "UPSTREAM_4XX"
	FailureProtocol    FailureKind = "PROTOCOL"
)

// Retryable reports whether this failure kind may be retried per §4.4:
// TRANSPORT/TIMEOUT/UPSTREAM_5XX are retryable, UPSTREAM_4XX and PROTOCOL
// are terminal.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureTransport, FailureTimeout, FailureUpstream5xx:
		return true
	default:
		return false
	}
}

// Error is a classified upstream failure.
type Error struct {
	Kind    FailureKind
	Status  int // 0 when no response was received
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

// Response is a successful (2xx, 4xx, or retried-out 5xx-ending-in-success)
// upstream round-trip result.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// requiredHeaders are propagated verbatim from the client request; every
// other incoming header — including hop-by-hop ones — is dropped.
var requiredHeaders = []string{
	"Content-Type", "Accept", "Accept-Encoding", "Accept-Language",
	"X-Api-Key", "X-Session-Id", "X-Request-Id", "User-Agent",
}

// Client performs upstream round-trips for one target base URL.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	cfg        *config.UpstreamConfig
}

// New builds a Client for baseURL using cfg's proxy/timeout/retry settings.
func New(baseURL string, cfg *config.UpstreamConfig, insecureSkipVerify bool) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: insecureSkipVerify},
	}
	if cfg.UseProxy {
		proxyURL := &url.URL{
			Scheme: cfg.ProxyProtocol,
			Host:   fmt.Sprintf("%s:%d", cfg.ProxyHost, cfg.ProxyPort),
		}
		if cfg.UseBasicAuth {
			proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		base: base,
		cfg:  cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// Request is the narrow view of an inbound request the Upstream Client
// needs; it never inspects the body beyond forwarding it verbatim.
type Request struct {
	Method  string
	Path    string // includes query string
	Headers map[string]string
	Body    []byte
}

// Send performs one logical upstream call, retrying per cfg.MaxAttempts
// with exponential backoff on retryable failures. Returns the final
// Response or the last classified Error.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = c.cfg.BackoffBase
	boff.Multiplier = c.cfg.BackoffFactor
	boff.RandomizationFactor = c.cfg.BackoffJitter
	boff.MaxElapsedTime = 0 // bounded by attempt count below, not wall clock
	boff.Reset()            // start from BackoffBase rather than the library default

	var lastErr error
	attempts := c.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}

		var upErr *Error
		if e, ok := err.(*Error); ok {
			upErr = e
		} else {
			upErr = &Error{Kind: FailureTransport, Message: err.Error()}
		}
		lastErr = upErr

		if !upErr.Kind.Retryable() || attempt == attempts {
			return nil, lastErr
		}

		wait := boff.NextBackOff()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &Error{Kind: FailureTimeout, Message: ctx.Err().Error()}
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	target := *c.base
	if idx := indexByte(req.Path, '?'); idx >= 0 {
		target.Path = joinPath(c.base.Path, req.Path[:idx])
		target.RawQuery = req.Path[idx+1:]
	} else {
		target.Path = joinPath(c.base.Path, req.Path)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, &Error{Kind: FailureProtocol, Message: err.Error()}
	}
	httpReq.Host = c.base.Host

	for _, name := range requiredHeaders {
		if v, ok := req.Headers[name]; ok && v != "" {
			httpReq.Header.Set(name, v)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Kind: FailureTimeout, Message: err.Error()}
		}
		return nil, &Error{Kind: FailureTransport, Message: err.Error()}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{Kind: FailureProtocol, Message: err.Error()}
	}

	headers := map[string]string{}
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}

	status := httpResp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return &Response{Status: status, Headers: headers, Body: body}, nil
	case status == http.StatusTooManyRequests:
		return nil, &Error{Kind: FailureUpstream5xx, Status: status, Message: "rate limited"}
	case status >= 500:
		return nil, &Error{Kind: FailureUpstream5xx, Status: status, Message: "server error"}
	case status >= 400:
		// Terminal — surfaced to the caller as a successful round-trip so it
		// can be returned verbatim to the client and journaled as FORWARDED.
		return &Response{Status: status, Headers: headers, Body: body}, nil
	default:
		return nil, &Error{Kind: FailureProtocol, Message: fmt.Sprintf("unexpected status %d", status)}
	}
}

// TargetFor resolves the proxy's configured base URL for a store.Target.
func TargetFor(cfg *config.Config, target store.Target) string {
	if target == store.TargetLog {
		return cfg.Log.RemoteHost
	}
	return cfg.FRL.RemoteHost
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
