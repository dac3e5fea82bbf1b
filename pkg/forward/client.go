package forward

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"nocturne-hq/parity/pkg/analysis"
)

// tracerName scopes leg spans; the provider is the global one installed by
// the tracing package, a no-op until tracing is enabled.
const tracerName = "nocturne-hq/parity/forward"

// TargetConfig configures the client for one backend.
type TargetConfig struct {
	Target analysis.Target

	// BaseURL is the scheme and authority of the backend. Empty means
	// "self-forwarding": the inbound request's own scheme and host are used.
	BaseURL string

	// Timeout bounds the whole leg including retries.
	// Default: 15s
	Timeout time.Duration

	// MaxRetries is the number of retries after a transport failure.
	// Default: 2
	MaxRetries int

	// RetryBackoff is the first retry delay; it doubles per attempt.
	// Default: 200ms
	RetryBackoff time.Duration

	// MaxBackoff caps the retry delay.
	// Default: 5s
	MaxBackoff time.Duration

	// MaxIdleConns bounds the idle connection pool.
	// Default: 100
	MaxIdleConns int

	// MaxResponseBytes bounds how much of a response body is read.
	// Default: 32 MiB
	MaxResponseBytes int64
}

func (c *TargetConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 100
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = 32 << 20
	}
}

// Client sends cloned requests to one backend over a long-lived pooled connection set.
type Client struct {
	config TargetConfig
	client *http.Client
	logger *slog.Logger
}

// NewClient creates the pooled HTTP client for a target.
func NewClient(config TargetConfig) *Client {
	config.applyDefaults()

	transport := &http.Transport{
		Proxy:               nil,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		config: config,
		client: &http.Client{
			Transport: transport,
			// Redirects are part of the response under comparison.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: slog.Default().With("component", "forward.client", "target", string(config.Target)),
	}
}

// Target returns the backend this client serves.
func (c *Client) Target() analysis.Target {
	return c.config.Target
}

// BaseURL returns the configured base URL, empty when self-forwarding.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// resolve returns the absolute URL for a cloned request.
func (c *Client) resolve(req *ClonedRequest) string {
	base := c.config.BaseURL
	if base == "" {
		scheme := req.Scheme
		if scheme == "" {
			scheme = "http"
		}
		base = scheme + "://" + req.Host
	}
	return strings.TrimRight(base, "/") + req.URL()
}

// Forward sends the request, retrying transport failures with exponential
// backoff. Requests that are not idempotent are retried only when the
// connection was never established. It never returns an error: a leg that produced no HTTP response
// has a nil StatusCode and a populated Error.
func (c *Client) Forward(ctx context.Context, req *ClonedRequest) *analysis.ForwardOutcome {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := c.resolve(req)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "forward."+string(c.config.Target),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("parity.target", string(c.config.Target)),
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", url),
		),
	)
	defer span.End()

	start := time.Now()
	outcome := &analysis.ForwardOutcome{Target: c.config.Target}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"max_retries", c.config.MaxRetries,
				"backoff", backoff,
				"error", lastErr,
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
			if ctx.Err() != nil {
				break
			}
		}

		outcome.Attempts = attempt + 1
		status, headers, body, err := c.do(ctx, req, url)
		if err == nil {
			outcome.StatusCode = &status
			outcome.Headers = headers
			outcome.Body = body
			outcome.Elapsed = time.Since(start)
			span.SetAttributes(
				attribute.Int("http.response.status_code", status),
				attribute.Int("parity.attempts", outcome.Attempts),
			)
			return outcome
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(req.Method, err) {
			break
		}
	}

	terr := &TransportError{
		Target:   string(c.config.Target),
		URL:      url,
		Attempts: outcome.Attempts,
		Cause:    lastErr,
	}
	c.logger.WarnContext(ctx, "transport failure", "url", url, "attempts", outcome.Attempts, "error", lastErr)
	span.RecordError(terr)
	span.SetStatus(codes.Error, "transport failure")

	outcome.Error = terr.Error()
	outcome.Elapsed = time.Since(start)
	return outcome
}

func (c *Client) do(ctx context.Context, req *ClonedRequest, url string) (int, http.Header, []byte, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return 0, nil, nil, err
	}
	req.applyTo(httpReq)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes+1))
	if err != nil {
		return 0, nil, nil, err
	}
	if int64(len(data)) > c.config.MaxResponseBytes {
		return 0, nil, nil, ErrResponseTooLarge
	}
	if resp.StatusCode == http.StatusLoopDetected && resp.Header.Get(LoopHeader) != "" {
		return 0, nil, nil, ErrForwardingLoop
	}

	headers := resp.Header.Clone()
	// The body is buffered and decoded, so its length is recomputed on relay.
	// A HEAD response has no body and keeps the length the backend announced.
	if req.Method != http.MethodHead {
		headers.Del("Content-Length")
	}
	return resp.StatusCode, headers, data, nil
}

// retryable reports whether a failed attempt may be sent again. A request
// with side effects may already have reached the backend once the
// connection is up, so it is only retried after a dial failure.
func retryable(method string, err error) bool {
	if errors.Is(err, ErrResponseTooLarge) || errors.Is(err, ErrForwardingLoop) {
		return false
	}
	if IsIdempotent(method) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.config.RetryBackoff << (attempt - 1)
	if d <= 0 || d > c.config.MaxBackoff {
		return c.config.MaxBackoff
	}
	return d
}
