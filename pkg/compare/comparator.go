// Package compare diffs a legacy and a replacement HTTP response and
// classifies every difference by kind and severity.
package compare

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"nocturne-hq/parity/pkg/analysis"
)

// Result is the outcome of one comparison.
type Result struct {
	Discrepancies []analysis.Discrepancy
	Match         analysis.OverallMatch

	// Err is set when the comparison could not complete. Discrepancies found
	// before the failure are kept.
	Err error

	// Patch is an RFC 6902 patch turning the legacy JSON body into the
	// replacement one, when both bodies are JSON and differ.
	Patch []byte
}

// Comparator compares response pairs. Rules can be swapped at runtime and
// Compare is safe for concurrent use.
type Comparator struct {
	rules atomic.Pointer[rules]
}

// New creates a Comparator with the given rules.
func New(opts Options) *Comparator {
	c := &Comparator{}
	c.SetOptions(opts)
	return c
}

// SetOptions replaces the comparison rules. Comparisons already running keep
// the rules they started with.
func (c *Comparator) SetOptions(opts Options) {
	c.rules.Store(compile(opts))
}

// Options returns the rules currently in effect.
func (c *Comparator) Options() Options {
	return c.rules.Load().opts
}

// Compare diffs two outcomes. It never panics on malformed input and never
// returns an error directly; failures are reported through Result.Err with
// Match set to ComparisonError.
func (c *Comparator) Compare(legacy, replacement *analysis.ForwardOutcome) Result {
	r := c.rules.Load()

	switch {
	case !legacy.Succeeded() && !replacement.Succeeded():
		return Result{Match: analysis.MatchBothMissing}
	case !legacy.Succeeded():
		return Result{Match: analysis.MatchLegacyMissing}
	case !replacement.Succeeded():
		return Result{Match: analysis.MatchReplacementMissing}
	}

	w := &walker{rules: r}

	if legacy.Status() != replacement.Status() {
		w.add(analysis.Discrepancy{
			Kind:             analysis.KindStatusCode,
			LegacyValue:      strconv.Itoa(legacy.Status()),
			ReplacementValue: strconv.Itoa(replacement.Status()),
			Description:      "status codes differ",
			Severity:         analysis.SeverityMajor,
		})
	}

	if lm, rm := legacy.MediaType(), replacement.MediaType(); lm != rm {
		w.add(analysis.Discrepancy{
			Kind:             analysis.KindContentType,
			LegacyValue:      lm,
			ReplacementValue: rm,
			Description:      "content types differ",
			Severity:         analysis.SeverityMinor,
		})
	}

	w.compareHeaders(legacy.Headers, replacement.Headers)

	var patch []byte
	err := w.compareBodies(legacy, replacement, &patch)

	w.comparePerformance(legacy.Elapsed, replacement.Elapsed)

	res := Result{Discrepancies: w.out, Err: err, Patch: patch}
	if err != nil {
		res.Match = analysis.MatchComparisonError
	} else {
		res.Match = analysis.MatchForSeverity(w.worst)
	}
	return res
}

type walker struct {
	rules *rules
	out   []analysis.Discrepancy
	worst analysis.Severity
}

func (w *walker) add(d analysis.Discrepancy) {
	w.out = append(w.out, d)
	if d.Severity.Rank() > w.worst.Rank() {
		w.worst = d.Severity
	}
}

func (w *walker) compareHeaders(legacy, replacement http.Header) {
	names := make([]string, 0, len(w.rules.opts.ComparedHeaders))
	for _, h := range w.rules.opts.ComparedHeaders {
		names = append(names, http.CanonicalHeaderKey(h))
	}
	sort.Strings(names)

	for i, name := range names {
		if i > 0 && names[i-1] == name {
			continue
		}
		lv, rv := legacy.Get(name), replacement.Get(name)
		if lv == rv {
			continue
		}
		w.add(analysis.Discrepancy{
			Kind:             analysis.KindHeader,
			Path:             name,
			LegacyValue:      lv,
			ReplacementValue: rv,
			Description:      fmt.Sprintf("header %s differs", name),
			Severity:         analysis.SeverityMinor,
		})
	}
}

func (w *walker) compareBodies(legacy, replacement *analysis.ForwardOutcome, patch *[]byte) error {
	lb, rb := legacy.Body, replacement.Body
	if bytes.Equal(lb, rb) {
		return nil
	}

	if !legacy.IsJSON() || !replacement.IsJSON() ||
		len(bytes.TrimSpace(lb)) == 0 || len(bytes.TrimSpace(rb)) == 0 {
		if string(lb) != string(rb) {
			w.add(analysis.Discrepancy{
				Kind:             analysis.KindBody,
				LegacyValue:      truncate(string(lb)),
				ReplacementValue: truncate(string(rb)),
				Description:      "response bodies differ",
				Severity:         analysis.SeverityMajor,
			})
		}
		return nil
	}

	lv, err := Parse(lb)
	if err != nil {
		return NewComparisonError(analysis.TargetLegacy, err)
	}
	rv, err := Parse(rb)
	if err != nil {
		return NewComparisonError(analysis.TargetReplacement, err)
	}

	w.walk("", "", lv, rv)
	*patch = w.rules.patch(lb, rb, lv, rv)
	return nil
}

// walk compares two values at path. field is the nearest enclosing object key.
func (w *walker) walk(path, field string, lv, rv Value) {
	if lv.TypeName() != rv.TypeName() {
		kind, sev := analysis.KindJSONStructure, analysis.SeverityMajor
		if isScalar(lv) && isScalar(rv) && w.rules.isTimestamp(field) {
			kind, sev = analysis.KindTimestamp, analysis.SeverityMinor
		} else if w.rules.isCritical(field) {
			sev = analysis.SeverityCritical
		}
		w.add(analysis.Discrepancy{
			Kind:             kind,
			Path:             path,
			LegacyValue:      Display(lv),
			ReplacementValue: Display(rv),
			Description:      fmt.Sprintf("type differs: %s vs %s", lv.TypeName(), rv.TypeName()),
			Severity:         sev,
		})
		return
	}

	switch l := lv.(type) {
	case Object:
		w.walkObject(path, l, rv.(Object))
	case Array:
		w.walkArray(path, field, l, rv.(Array))
	case String:
		if l != rv.(String) {
			w.leaf(path, field, analysis.KindStringValue, lv, rv, "string values differ")
		}
	case Number:
		if !w.numbersEqual(l, rv.(Number)) {
			w.leaf(path, field, analysis.KindNumericValue, lv, rv, "numeric values differ")
		}
	case Bool:
		if l != rv.(Bool) {
			w.leaf(path, field, analysis.KindStringValue, lv, rv, "boolean values differ")
		}
	case Null:
	}
}

func (w *walker) walkObject(path string, l, r Object) {
	keys := l.Keys()
	for _, k := range r.Keys() {
		if _, ok := l[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		child := joinKey(path, k)
		if w.rules.ignored(k, child) {
			continue
		}
		lv, lok := l[k]
		rv, rok := r[k]
		switch {
		case lok && rok:
			w.walk(child, k, lv, rv)
		case lok:
			w.add(analysis.Discrepancy{
				Kind:             analysis.KindJSONStructure,
				Path:             child,
				LegacyValue:      Display(lv),
				ReplacementValue: Display(nil),
				Description:      "field missing in replacement response",
				Severity:         analysis.SeverityMajor,
			})
		default:
			w.add(analysis.Discrepancy{
				Kind:             analysis.KindJSONStructure,
				Path:             child,
				LegacyValue:      Display(nil),
				ReplacementValue: Display(rv),
				Description:      "field missing in legacy response",
				Severity:         analysis.SeverityMajor,
			})
		}
	}
}

func (w *walker) walkArray(path, field string, l, r Array) {
	if len(l) != len(r) {
		sev := analysis.SeverityMajor
		if w.rules.isCritical(field) {
			sev = analysis.SeverityCritical
		}
		w.add(analysis.Discrepancy{
			Kind:             analysis.KindArrayLength,
			Path:             path,
			LegacyValue:      strconv.Itoa(len(l)),
			ReplacementValue: strconv.Itoa(len(r)),
			Description:      "array lengths differ",
			Severity:         sev,
		})
		return
	}
	for i := range l {
		child := fmt.Sprintf("%s[%d]", path, i)
		if w.rules.ignored("", child) {
			continue
		}
		w.walk(child, field, l[i], r[i])
	}
}

func (w *walker) leaf(path, field string, kind analysis.Kind, lv, rv Value, desc string) {
	sev := analysis.SeverityMajor
	switch {
	case w.rules.isTimestamp(field):
		kind, sev = analysis.KindTimestamp, analysis.SeverityMinor
		desc = "timestamp values differ"
	case w.rules.isCritical(field):
		sev = analysis.SeverityCritical
	}
	w.add(analysis.Discrepancy{
		Kind:             kind,
		Path:             path,
		LegacyValue:      Display(lv),
		ReplacementValue: Display(rv),
		Description:      desc,
		Severity:         sev,
	})
}

func (w *walker) numbersEqual(l, r Number) bool {
	if l == r {
		return true
	}
	a, errA := l.Float()
	b, errB := r.Float()
	if errA != nil || errB != nil {
		return false
	}
	if a == b {
		return true
	}
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= w.rules.opts.NumericEpsilon*scale
}

func (w *walker) comparePerformance(legacy, replacement time.Duration) {
	mult := w.rules.opts.PerformanceMultiplier
	if mult <= 0 {
		return
	}
	slow, fast := replacement, legacy
	slower := analysis.TargetReplacement
	if legacy > replacement {
		slow, fast = legacy, replacement
		slower = analysis.TargetLegacy
	}
	if slow-fast < w.rules.opts.PerformanceMinDelta {
		return
	}
	if float64(slow) <= mult*float64(fast) {
		return
	}
	w.add(analysis.Discrepancy{
		Kind:             analysis.KindPerformance,
		LegacyValue:      legacy.String(),
		ReplacementValue: replacement.String(),
		Description:      fmt.Sprintf("%s response more than %gx slower", slower, mult),
		Severity:         analysis.SeverityMinor,
	})
}

func isScalar(v Value) bool {
	switch v.(type) {
	case Object, Array:
		return false
	default:
		return true
	}
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

const maxDisplay = 256

func truncate(s string) string {
	if len(s) <= maxDisplay {
		return s
	}
	return s[:maxDisplay] + "..."
}
