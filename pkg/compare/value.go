package compare

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Value is a parsed JSON value. Exactly one of the concrete types below
// implements it: Null, Bool, Number, String, Array, Object.
type Value interface {
	// TypeName is the JSON type name used in discrepancy descriptions.
	TypeName() string
}

type (
	Null   struct{}
	Bool   bool
	Number json.Number
	String string
	Array  []Value
	Object map[string]Value
)

func (Null) TypeName() string   { return "null" }
func (Bool) TypeName() string   { return "boolean" }
func (Number) TypeName() string { return "number" }
func (String) TypeName() string { return "string" }
func (Array) TypeName() string  { return "array" }
func (Object) TypeName() string { return "object" }

// Float returns the number as float64.
func (n Number) Float() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// Keys returns the object's keys in sorted order.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse decodes a JSON document into a Value. Numbers keep their literal text
// so integers beyond float64 precision compare exactly.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return fromInterface(raw), nil
}

func fromInterface(raw interface{}) Value {
	switch v := raw.(type) {
	case nil:
		return Null{}
	case bool:
		return Bool(v)
	case json.Number:
		return Number(v)
	case string:
		return String(v)
	case []interface{}:
		arr := make(Array, len(v))
		for i, e := range v {
			arr[i] = fromInterface(e)
		}
		return arr
	case map[string]interface{}:
		obj := make(Object, len(v))
		for k, e := range v {
			obj[k] = fromInterface(e)
		}
		return obj
	default:
		return String(fmt.Sprint(v))
	}
}

// Display renders a value for a discrepancy. Containers are summarized.
func Display(v Value) string {
	switch t := v.(type) {
	case nil:
		return "<missing>"
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(bool(t))
	case Number:
		return string(t)
	case String:
		return strconv.Quote(string(t))
	case Array:
		return fmt.Sprintf("array(%d)", len(t))
	case Object:
		keys := t.Keys()
		if len(keys) > 5 {
			keys = append(keys[:5], "...")
		}
		return "{" + strings.Join(keys, ",") + "}"
	default:
		return fmt.Sprint(v)
	}
}
