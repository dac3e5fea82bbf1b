package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "***"

// Redactor masks credentials that glucose servers accept in headers and
// query strings: the API secret (plain or SHA-1 hashed), access tokens and
// bearer tokens.
type Redactor struct {
	sensitiveKeys map[string]struct{}
	patterns      []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a redactor with the built-in rules.
func NewRedactor() *Redactor {
	return &Redactor{
		sensitiveKeys: map[string]struct{}{
			"api-secret":    {},
			"api_secret":    {},
			"authorization": {},
			"token":         {},
			"secret":        {},
			"password":      {},
		},
		patterns: []redactPattern{
			{regexp.MustCompile(`(?i)\b(token|secret|api_secret)=[^&\s]+`), "${1}=" + redacted},
			{regexp.MustCompile(`(?i)\bBearer\s+[a-zA-Z0-9\-._~+/]+=*`), "Bearer " + redacted},
		},
	}
}

// IsSensitiveKey reports whether values stored under key are always masked.
func (r *Redactor) IsSensitiveKey(key string) bool {
	_, ok := r.sensitiveKeys[strings.ToLower(key)]
	return ok
}

// RedactString masks credentials embedded in s.
func (r *Redactor) RedactString(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if r.IsSensitiveKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	if a.Value.Kind() == slog.KindString {
		if v := a.Value.String(); v != "" {
			if masked := r.RedactString(v); masked != v {
				return slog.String(a.Key, masked)
			}
		}
	}
	return a
}
