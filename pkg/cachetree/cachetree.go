// Package cachetree models a cached JSON document as an explicit tagged union
// and rebases the absolute timestamps embedded in it to another calendar date.
package cachetree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/railconnect/route-finder/pkg/railtime"
)

// Kind identifies which member of the union a Value holds
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

// Member is one key/value pair of an Object, kept in document order
type Member struct {
	Key   string
	Value Value
}

// Value is a JSON value. Only the field matching Kind is meaningful.
type Value struct {
	Kind    Kind
	Bool    bool
	Number  json.Number
	String  string
	Array   []Value
	Members []Member
}

// Str builds a String value
func Str(s string) Value { return Value{Kind: String, String: s} }

// Num builds a Number value
func Num(n int) Value { return Value{Kind: Number, Number: json.Number(fmt.Sprint(n))} }

// Arr builds an Array value
func Arr(items ...Value) Value { return Value{Kind: Array, Array: items} }

// Obj builds an Object value
func Obj(members ...Member) Value { return Value{Kind: Object, Members: members} }

// Get returns the value stored under key in an Object
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != Object {
		return Value{}, false
	}
	for _, m := range v.Members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Parse decodes a JSON document into a Value tree
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("failed to parse cached document: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("failed to parse cached document: trailing data")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Value{Kind: Null}, nil
	case bool:
		return Value{Kind: Bool, Bool: t}, nil
	case json.Number:
		return Value{Kind: Number, Number: t}, nil
	case string:
		return Str(t), nil
	case json.Delim:
		switch t {
		case '[':
			arr := Value{Kind: Array, Array: []Value{}}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				arr.Array = append(arr.Array, item)
			}
			_, err := dec.Token()
			return arr, err
		case '{':
			obj := Value{Kind: Object, Members: []Member{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				obj.Members = append(obj.Members, Member{Key: key, Value: item})
			}
			_, err := dec.Token()
			return obj, err
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// MarshalJSON encodes the tree, preserving object member order
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.Kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		if v.Number == "" {
			buf.WriteString("0")
		} else {
			buf.WriteString(v.Number.String())
		}
	case String:
		b, err := json.Marshal(v.String)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Array:
		buf.WriteByte('[')
		for i, item := range v.Array {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range v.Members {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown value kind %d", v.Kind)
	}
	return nil
}

// Rebase returns a copy of v with every embedded timestamp shifted by
// dayDelta calendar days. v itself is left untouched.
func Rebase(v Value, dayDelta int) Value {
	switch v.Kind {
	case String:
		return Str(shiftTimestamp(v.String, dayDelta))
	case Array:
		out := make([]Value, len(v.Array))
		for i, item := range v.Array {
			out[i] = Rebase(item, dayDelta)
		}
		return Value{Kind: Array, Array: out}
	case Object:
		out := make([]Member, len(v.Members))
		for i, m := range v.Members {
			out[i] = Member{Key: m.Key, Value: Rebase(m.Value, dayDelta)}
		}
		return Value{Kind: Object, Members: out}
	default:
		return v
	}
}

// RebaseDate shifts every timestamp in v from the canonical date to the
// requested one.
func RebaseDate(v Value, canonical, requested time.Time) Value {
	return Rebase(v, railtime.DayDelta(canonical, requested))
}

func shiftTimestamp(s string, dayDelta int) string {
	if len(s) != len(railtime.TimestampLayout) {
		return s
	}
	ts, err := railtime.ParseTimestamp(s)
	if err != nil {
		return s
	}
	return railtime.FormatTimestamp(ts.AddDate(0, 0, dayDelta))
}
