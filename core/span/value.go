package span

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
)

// ValueKind identifies the variant stored in a Value.
type ValueKind uint8

const (
	KindEmpty ValueKind = iota
	KindString
	KindInt
	KindDouble
	KindBool
	KindSlice
	KindMap
)

// Value is a tagged variant holding a span attribute value. Attribute data
// arrives as arbitrarily nested structures; modelling it as a closed variant
// gives the redaction walk and the wire codec exhaustive cases.
type Value struct {
	kind  ValueKind
	str   string
	i     int64
	d     float64
	b     bool
	slice []Value
	m     Map
}

// KeyValue is one entry of an ordered attribute mapping.
type KeyValue struct {
	Key   string
	Value Value
}

// Map is an attribute mapping with stable insertion order. Order is kept so
// the wire encoding is deterministic and batching reflects what was buffered.
type Map []KeyValue

func EmptyValue() Value            { return Value{kind: KindEmpty} }
func StringValue(s string) Value   { return Value{kind: KindString, str: s} }
func IntValue(i int64) Value       { return Value{kind: KindInt, i: i} }
func DoubleValue(d float64) Value  { return Value{kind: KindDouble, d: d} }
func BoolValue(b bool) Value       { return Value{kind: KindBool, b: b} }
func SliceValue(vs ...Value) Value { return Value{kind: KindSlice, slice: vs} }
func MapValue(m Map) Value         { return Value{kind: KindMap, m: m} }

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Str() string     { return v.str }
func (v Value) Int() int64      { return v.i }
func (v Value) Double() float64 { return v.d }
func (v Value) Bool() bool      { return v.b }
func (v Value) Slice() []Value  { return v.slice }
func (v Value) Map() Map        { return v.m }

// IsZero reports whether the value is falsy: empty, zero, false, or an empty
// container. Falsy values are never redacted.
func (v Value) IsZero() bool {
	switch v.kind {
	case KindEmpty:
		return true
	case KindString:
		return v.str == ""
	case KindInt:
		return v.i == 0
	case KindDouble:
		return v.d == 0
	case KindBool:
		return !v.b
	case KindSlice:
		return len(v.slice) == 0
	case KindMap:
		return len(v.m) == 0
	}
	return false
}

// Get returns the value stored under key and whether it was present.
func (m Map) Get(key string) (Value, bool) {
	for _, kv := range m {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return Value{}, false
}

// MarshalJSON encodes the mapping as a JSON object, preserving entry order.
func (m Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := sonic.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := kv.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON encodes the variant as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindEmpty:
		return []byte("null"), nil
	case KindString:
		return sonic.Marshal(v.str)
	case KindInt:
		return sonic.Marshal(v.i)
	case KindDouble:
		return sonic.Marshal(v.d)
	case KindBool:
		return sonic.Marshal(v.b)
	case KindSlice:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.slice {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindMap:
		return v.m.MarshalJSON()
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// FromAny converts loosely typed data (as produced by a JSON decoder) into a
// Value. Map keys are sorted so the result is deterministic. Unsupported
// types degrade to their fmt representation rather than failing.
func FromAny(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return EmptyValue()
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case int:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case float32:
		return DoubleValue(float64(t))
	case float64:
		return DoubleValue(t)
	case []interface{}:
		vs := make([]Value, 0, len(t))
		for _, e := range t {
			vs = append(vs, FromAny(e))
		}
		return SliceValue(vs...)
	case map[string]interface{}:
		return MapValue(MapFromAny(t))
	default:
		return StringValue(fmt.Sprintf("%v", t))
	}
}

// MapFromAny converts a plain map into an ordered Map, sorted by key.
func MapFromAny(raw map[string]interface{}) Map {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m := make(Map, 0, len(keys))
	for _, k := range keys {
		m = append(m, KeyValue{Key: k, Value: FromAny(raw[k])})
	}
	return m
}
