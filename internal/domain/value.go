package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ValueKind identifies which variant a Value holds
type ValueKind int

const (
	// ValueNull const
	ValueNull ValueKind = iota
	// ValueString const
	ValueString
	// ValueNumber const
	ValueNumber
	// ValueBool const
	ValueBool
	// ValueMap const
	ValueMap
)

// String returns the kind name
func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueBool:
		return "bool"
	case ValueMap:
		return "map"
	default:
		return "null"
	}
}

// Value is a tagged union holding arbitrary backend metadata: a string, a
// number, a bool, null, or a nested map of values. Arrays coming off the wire
// are kept as maps keyed by index so nothing is dropped.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	m    map[string]Value
}

// NullValue returns the null value
func NullValue() Value { return Value{} }

// StringValue returns a string value
func StringValue(s string) Value { return Value{kind: ValueString, str: s} }

// NumberValue returns a numeric value
func NumberValue(n float64) Value { return Value{kind: ValueNumber, num: n} }

// BoolValue returns a boolean value
func BoolValue(b bool) Value { return Value{kind: ValueBool, b: b} }

// MapValue returns a nested map value
func MapValue(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: ValueMap, m: m}
}

// Kind returns the active variant
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null
func (v Value) IsNull() bool { return v.kind == ValueNull }

// AsString returns the string variant
func (v Value) AsString() (string, bool) { return v.str, v.kind == ValueString }

// AsNumber returns the numeric variant
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == ValueNumber }

// AsBool returns the boolean variant
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }

// AsMap returns the map variant
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == ValueMap }

// Equal compares two values structurally
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueString:
		return v.str == o.str
	case ValueNumber:
		return v.num == o.num
	case ValueBool:
		return v.b == o.b
	case ValueMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
	}
	return true
}

// MarshalJSON func
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueString:
		return json.Marshal(v.str)
	case ValueNumber:
		return json.Marshal(v.num)
	case ValueBool:
		return json.Marshal(v.b)
	case ValueMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.m[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON func
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromInterface converts a decoded JSON value into a Value
func FromInterface(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return NullValue(), nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return NumberValue(f), nil
	case float64:
		return NumberValue(t), nil
	case float32:
		return NumberValue(float64(t)), nil
	case int:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			val, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = val
		}
		return MapValue(m), nil
	case []interface{}:
		m := make(map[string]Value, len(t))
		for i, item := range t {
			val, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			m[fmt.Sprintf("%d", i)] = val
		}
		return MapValue(m), nil
	default:
		return Value{}, fmt.Errorf("unsupported metadata type %T", raw)
	}
}

// ValuesFromMap converts a loosely typed map into metadata values
func ValuesFromMap(raw map[string]interface{}) (map[string]Value, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[string]Value, len(raw))
	for k, item := range raw {
		val, err := FromInterface(item)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

func cloneValues(in map[string]Value) map[string]Value {
	if in == nil {
		return nil
	}
	out := make(map[string]Value, len(in))
	for k, v := range in {
		if v.kind == ValueMap {
			v = MapValue(cloneValues(v.m))
		}
		out[k] = v
	}
	return out
}
