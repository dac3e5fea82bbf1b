package forward

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClone_StripsHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://proxy.local/api/v1/entries?count=2", strings.NewReader(`[{"sgv":100}]`))
	r.Header.Set("Connection", "keep-alive, X-Custom-Hop")
	r.Header.Set("X-Custom-Hop", "1")
	r.Header.Set("Keep-Alive", "timeout=5")
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	r.Header.Set("X-Real-Ip", "10.0.0.1")
	r.Header.Set("Api-Secret", "abc")
	r.Header.Set("Content-Type", "application/json")

	c, err := Clone(r, 0)
	if err != nil {
		t.Fatalf("Clone() failed: %v", err)
	}

	for _, h := range []string{"Connection", "X-Custom-Hop", "Keep-Alive", "X-Forwarded-For", "X-Real-Ip", "Host"} {
		if c.Header.Get(h) != "" {
			t.Errorf("header %s was not stripped", h)
		}
	}
	if c.Header.Get("Api-Secret") != "abc" {
		t.Error("end-to-end header Api-Secret was dropped")
	}
	if c.URL() != "/api/v1/entries?count=2" {
		t.Errorf("URL() = %q", c.URL())
	}
	if string(c.Body) != `[{"sgv":100}]` {
		t.Errorf("Body = %q", c.Body)
	}
	if c.Host != "proxy.local" || c.Scheme != "http" {
		t.Errorf("Host/Scheme = %q/%q", c.Host, c.Scheme)
	}

	// The inbound body stays readable for a wrapped handler.
	rest, _ := io.ReadAll(r.Body)
	if string(rest) != `[{"sgv":100}]` {
		t.Errorf("inbound body after clone = %q", rest)
	}
}

func TestClone_BodyTooLarge(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/big", strings.NewReader(strings.Repeat("x", 11)))

	_, err := Clone(r, 10)
	var ce *CloneError
	if !errors.As(err, &ce) {
		t.Fatalf("Clone() error = %v, want CloneError", err)
	}
	if ce.Limit != 10 {
		t.Errorf("Limit = %d, want 10", ce.Limit)
	}
}

func TestClone_ForwardedProto(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-Proto", "HTTPS, http")

	c, err := Clone(r, 0)
	if err != nil {
		t.Fatal(err)
	}
	if c.Scheme != "https" {
		t.Errorf("Scheme = %q, want https", c.Scheme)
	}
	if c.Body != nil {
		t.Errorf("Body = %q, want nil", c.Body)
	}
}
