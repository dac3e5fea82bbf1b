package forward

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
)

// Fingerprint identifies equivalent requests. Two requests with the same
// method, cleaned path, query parameters (in any order) and, for
// non-idempotent methods, body share a fingerprint.
type Fingerprint struct {
	Method   string
	Path     string
	Query    string
	BodyHash string
}

// NewFingerprint computes the fingerprint of a cloned request.
func NewFingerprint(req *ClonedRequest) Fingerprint {
	method := strings.ToUpper(req.Method)

	p := req.Path
	if p == "" {
		p = "/"
	}
	p = path.Clean(p)

	fp := Fingerprint{
		Method: method,
		Path:   p,
		Query:  normalizeQuery(req.RawQuery),
	}
	if !IsIdempotent(method) && len(req.Body) > 0 {
		sum := sha256.Sum256(req.Body)
		fp.BodyHash = hex.EncodeToString(sum[:])
	}
	return fp
}

// Key returns a stable hex digest suitable for cache and storage keys.
func (f Fingerprint) Key() string {
	h := sha256.New()
	h.Write([]byte(f.Method))
	h.Write([]byte{0})
	h.Write([]byte(f.Path))
	h.Write([]byte{0})
	h.Write([]byte(f.Query))
	h.Write([]byte{0})
	h.Write([]byte(f.BodyHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Endpoint returns the grouping key for metrics: the method and the path with
// identifier-like segments replaced by {id}.
func (f Fingerprint) Endpoint() string {
	return f.Method + " " + TemplatePath(f.Path)
}

// IsIdempotent reports whether method is safe to repeat: its responses may
// be served from cache and its failed attempts retried.
func IsIdempotent(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return true
	default:
		return false
	}
}

var (
	objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	uuidPattern     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	numberPattern   = regexp.MustCompile(`^\d+$`)
)

// TemplatePath replaces numeric, UUID and 24-hex ObjectId segments with {id}.
func TemplatePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if numberPattern.MatchString(seg) || uuidPattern.MatchString(seg) || objectIDPattern.MatchString(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func normalizeQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
