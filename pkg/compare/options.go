package compare

import (
	"regexp"
	"strings"
	"time"
)

// Options configures the comparison rules.
type Options struct {
	// IgnoredFields are skipped entirely. An entry matches a key name
	// case-insensitively, or a full path such as "status.settings.units".
	// "[*]" in a path entry matches any array index.
	IgnoredFields []string

	// TimestampFields name keys whose leaf differences are reported as
	// Timestamp discrepancies with Minor severity.
	TimestampFields []string

	// CriticalFields name keys whose leaf differences are raised to Critical.
	CriticalFields []string

	// ComparedHeaders are response headers compared verbatim.
	ComparedHeaders []string

	// NumericEpsilon is the relative tolerance for numeric leaves. For values
	// smaller than 1 in magnitude it acts as an absolute tolerance.
	NumericEpsilon float64

	// PerformanceMultiplier is the slowdown ratio that triggers a Performance discrepancy.
	PerformanceMultiplier float64

	// PerformanceMinDelta suppresses Performance discrepancies for small absolute gaps.
	PerformanceMinDelta time.Duration
}

// DefaultOptions returns the built-in comparison rules.
func DefaultOptions() Options {
	return Options{
		TimestampFields: []string{
			"date", "dateString", "sysTime", "created_at", "mills",
			"srvCreated", "srvModified", "timestamp", "serverTime", "serverTimeEpoch",
		},
		CriticalFields: []string{
			"sgv", "mbg", "insulin", "carbs", "percent", "absolute", "rate", "duration",
		},
		ComparedHeaders: []string{
			"Location", "Cache-Control", "Access-Control-Allow-Origin",
		},
		NumericEpsilon:        1e-6,
		PerformanceMultiplier: 3,
		PerformanceMinDelta:   50 * time.Millisecond,
	}
}

// rules is the compiled, immutable form of Options.
type rules struct {
	opts         Options
	ignoredKeys  map[string]struct{}
	ignoredPaths map[string]struct{}
	timestamp    map[string]struct{}
	critical     map[string]struct{}
}

var indexPattern = regexp.MustCompile(`\[\d+\]`)

func compile(opts Options) *rules {
	r := &rules{
		opts:         opts,
		ignoredKeys:  make(map[string]struct{}),
		ignoredPaths: make(map[string]struct{}),
		timestamp:    lowerSet(opts.TimestampFields),
		critical:     lowerSet(opts.CriticalFields),
	}
	for _, f := range opts.IgnoredFields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if strings.ContainsAny(f, ".[") {
			r.ignoredPaths[f] = struct{}{}
		} else {
			r.ignoredKeys[f] = struct{}{}
		}
	}
	return r
}

func lowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[strings.ToLower(s)] = struct{}{}
	}
	return set
}

func (r *rules) ignored(key, path string) bool {
	if _, ok := r.ignoredKeys[strings.ToLower(key)]; ok {
		return true
	}
	if len(r.ignoredPaths) == 0 {
		return false
	}
	p := strings.ToLower(path)
	if _, ok := r.ignoredPaths[p]; ok {
		return true
	}
	_, ok := r.ignoredPaths[indexPattern.ReplaceAllString(p, "[*]")]
	return ok
}

func (r *rules) isTimestamp(field string) bool {
	_, ok := r.timestamp[strings.ToLower(field)]
	return field != "" && ok
}

func (r *rules) isCritical(field string) bool {
	_, ok := r.critical[strings.ToLower(field)]
	return field != "" && ok
}
