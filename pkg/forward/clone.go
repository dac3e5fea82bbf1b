package forward

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/textproto"
	"strings"
)

// DefaultMaxBodyBytes bounds how much of an inbound body is buffered.
const DefaultMaxBodyBytes int64 = 10 << 20

// LoopHeader marks requests the proxy itself forwarded.
const LoopHeader = "X-Parity-Forwarded"

// CorrelationHeader carries the correlation id on both legs and the response.
const CorrelationHeader = "X-Correlation-ID"

var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

var hostHeaders = []string{
	"Host",
	"X-Forwarded-Host",
	"X-Forwarded-For",
	"X-Real-Ip",
	"Forwarded",
	"Content-Length",
}

// ClonedRequest is a replayable copy of an inbound request. Body is shared by
// every leg and must not be modified.
type ClonedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte

	// Host and Scheme of the inbound request, used to derive a
	// self-forwarding base URL.
	Host   string
	Scheme string
}

// Clone buffers the inbound body once and copies the request with hop-by-hop
// and host-identifying headers removed. maxBody <= 0 uses DefaultMaxBodyBytes.
func Clone(r *http.Request, maxBody int64) (*ClonedRequest, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, NewCloneError(mbe.Limit, err)
			}
			return nil, NewCloneError(0, err)
		}
		if int64(len(data)) > maxBody {
			return nil, NewCloneError(maxBody, nil)
		}
		body = data
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	return &ClonedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   SanitizeHeaders(r.Header),
		Body:     body,
		Host:     r.Host,
		Scheme:   inboundScheme(r),
	}, nil
}

// SanitizeHeaders returns a copy of h without hop-by-hop, Connection-listed
// and host-identifying headers.
func SanitizeHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = make(http.Header)
	}

	for _, v := range out.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				out.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		out.Del(name)
	}
	for _, name := range hostHeaders {
		out.Del(name)
	}
	return out
}

// URL returns path plus query.
func (c *ClonedRequest) URL() string {
	if c.RawQuery == "" {
		return c.Path
	}
	return c.Path + "?" + c.RawQuery
}

// applyTo copies the cloned headers onto an outbound request and marks it as forwarded.
func (c *ClonedRequest) applyTo(req *http.Request) {
	req.Header = c.Header.Clone()
	// The transport negotiates and decodes compression so both legs are compared decoded.
	req.Header.Del("Accept-Encoding")
	req.Header.Set(LoopHeader, "1")
	req.ContentLength = int64(len(c.Body))
}

func inboundScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
