// Package value defines the closed set of field value types a record may
// carry and the canonical text projection used to index them.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a tagged field value. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	b    bool
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func Int(i int64) Value { return Value{kind: KindInt, i: i} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsInt returns the integer if Kind is KindInt.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsBool returns the boolean if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Text is the projection that gets tokenized and indexed. Null projects to
// the empty string and therefore produces no terms.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return v.Text()
}

// Equal reports whether both values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	return v == o
}

// FromAny converts a decoded JSON scalar (or a Go scalar) into a Value.
// Integral floats become KindInt; other floats are stored as their shortest
// decimal string.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint32:
		return Int(int64(t)), nil
	case float32:
		return fromFloat(float64(t)), nil
	case float64:
		return fromFloat(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("converting number %q: %w", t.String(), err)
		}
		return fromFloat(f), nil
	default:
		return Null(), fmt.Errorf("unsupported field value type %T", x)
	}
}

func fromFloat(f float64) Value {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return Int(int64(f))
	}
	return String(strconv.FormatFloat(f, 'g', -1, 64))
}

// MarshalJSON encodes the value as a plain JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a plain JSON scalar. Arrays and objects are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
