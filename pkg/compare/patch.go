package compare

import (
	"encoding/json"
	"fmt"

	"github.com/wI2L/jsondiff"
)

// Patch returns the JSON Patch (RFC 6902) that transforms the legacy document
// into the replacement one, or nil when the documents are equal or either is
// not valid JSON.
func Patch(legacy, replacement []byte) []byte {
	patch, err := jsondiff.CompareJSON(legacy, replacement)
	if err != nil || len(patch) == 0 {
		return nil
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return nil
	}
	return data
}

// patch diffs the parsed documents with ignore-listed fields removed, so the
// stored patch covers the same fields as the discrepancies.
func (r *rules) patch(lb, rb []byte, lv, rv Value) []byte {
	if len(r.ignoredKeys) == 0 && len(r.ignoredPaths) == 0 {
		return Patch(lb, rb)
	}
	ls, err := json.Marshal(r.strip("", lv))
	if err != nil {
		return nil
	}
	rs, err := json.Marshal(r.strip("", rv))
	if err != nil {
		return nil
	}
	return Patch(ls, rs)
}

// strip converts v back to plain JSON values, dropping ignored object keys.
// Ignored array elements become null so the remaining indices still line up.
func (r *rules) strip(path string, v Value) interface{} {
	switch t := v.(type) {
	case Object:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			child := joinKey(path, k)
			if r.ignored(k, child) {
				continue
			}
			out[k] = r.strip(child, e)
		}
		return out
	case Array:
		out := make([]interface{}, len(t))
		for i, e := range t {
			child := fmt.Sprintf("%s[%d]", path, i)
			if r.ignored("", child) {
				continue
			}
			out[i] = r.strip(child, e)
		}
		return out
	case Bool:
		return bool(t)
	case Number:
		return json.Number(t)
	case String:
		return string(t)
	default:
		return nil
	}
}
