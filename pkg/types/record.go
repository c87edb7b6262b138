// Package types provides core data types for Fluxtable.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the shape of a field value. The kind observed on the
// first write of a field decides the storage type of its column.
type Kind uint8

const (
	// KindNull is an explicit null value.
	KindNull Kind = iota

	// KindBool is a boolean value.
	KindBool

	// KindInt is an integral numeric value.
	KindInt

	// KindFloat is a floating-point numeric value.
	KindFloat

	// KindText is a string value.
	KindText

	// KindArray is an ordered list of values, stored JSON-encoded in a
	// flexible text column.
	KindArray
)

// String returns a human-readable kind name for logs and errors.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a tagged variant holding one field of a record. Exactly the
// member matching Kind is meaningful; the others are zero.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Text  string
	Array []Value
}

// Convenience constructors.

func Null() Value            { return Value{Kind: KindNull} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value      { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value  { return Value{Kind: KindFloat, Float: f} }
func Text(s string) Value    { return Value{Kind: KindText, Text: s} }
func Array(vs []Value) Value { return Value{Kind: KindArray, Array: vs} }

// Arg returns the value as a bound-parameter argument for database/sql.
// Arrays are JSON-encoded into the flexible text representation.
func (v Value) Arg() (any, error) {
	switch v.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.Bool, nil
	case KindInt:
		return v.Int, nil
	case KindFloat:
		return v.Float, nil
	case KindText:
		return v.Text, nil
	case KindArray:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("types: encoding array value: %w", err)
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("types: unknown value kind %d", v.Kind)
	}
}

// MarshalJSON renders the variant as plain JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindText:
		return json.Marshal(v.Text)
	case KindArray:
		if v.Array == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Array)
	default:
		return nil, fmt.Errorf("types: unknown value kind %d", v.Kind)
	}
}

// UnmarshalJSON decodes plain JSON into the variant. Numbers are decoded
// with json.Number so the integral vs floating shape survives for storage
// type inference. JSON objects are rejected: record fields are scalars or
// arrays.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := FromJSON(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// FromJSON converts a decoded JSON value (with numbers as json.Number)
// into a Value.
func FromJSON(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("types: invalid number %q", string(x))
		}
		return Float(f), nil
	case float64:
		// Callers that decode without UseNumber land here.
		if x == float64(int64(x)) {
			return Int(int64(x)), nil
		}
		return Float(x), nil
	case string:
		return Text(x), nil
	case []any:
		vs := make([]Value, 0, len(x))
		for _, e := range x {
			ev, err := FromJSON(e)
			if err != nil {
				return Value{}, err
			}
			vs = append(vs, ev)
		}
		return Array(vs), nil
	default:
		return Value{}, fmt.Errorf("types: unsupported field value of type %T", raw)
	}
}

// FromDriver converts a database/sql scan result into a Value. Text read
// back from a flexible column stays text; any JSON-encoded array stored
// there returns as its encoded form (coercion is backend-defined).
func FromDriver(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case int64:
		return Int(x)
	case int32:
		return Int(int64(x))
	case int:
		return Int(int64(x))
	case float64:
		return Float(x)
	case float32:
		return Float(float64(x))
	case string:
		return Text(x)
	case []byte:
		return Text(string(x))
	default:
		return Text(fmt.Sprintf("%v", x))
	}
}

// Record is one stored item: a store-assigned id plus an open-ended set
// of named fields. Fields absent from a record are absent from the map,
// never empty strings.
type Record struct {
	ID     int64
	Fields map[string]Value
}

// FieldNames returns the record's field names in sorted order, so
// generated statements are deterministic.
func FieldNames(fields map[string]Value) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON flattens the record into a single JSON object with the id
// alongside the fields.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Fields)+1)
	out["id"] = json.RawMessage(strconv.FormatInt(r.ID, 10))
	for name, v := range r.Fields {
		b, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		out[name] = b
	}
	return json.Marshal(out)
}

// DecodeFields decodes a JSON object body into a field map, rejecting
// non-object payloads. An "id" member, if present, is returned separately
// so callers can refuse or apply it.
func DecodeFields(data []byte) (map[string]Value, *int64, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("types: payload must be a JSON object: %w", err)
	}
	fields := make(map[string]Value, len(raw))
	var id *int64
	for name, rv := range raw {
		if name == "id" {
			n, ok := rv.(json.Number)
			if !ok {
				return nil, nil, fmt.Errorf("types: id must be an integer")
			}
			i, err := strconv.ParseInt(string(n), 10, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("types: id must be an integer: %w", err)
			}
			id = &i
			continue
		}
		v, err := FromJSON(rv)
		if err != nil {
			return nil, nil, err
		}
		fields[name] = v
	}
	return fields, id, nil
}
