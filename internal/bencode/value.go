package bencode

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
)

type Kind int

const (
	InvalidKind Kind = iota
	IntegerKind
	StringKind
	ListKind
	DictKind
)

func (k Kind) String() string {
	switch k {
	case IntegerKind:
		return "integer"
	case StringKind:
		return "string"
	case ListKind:
		return "list"
	case DictKind:
		return "dictionary"
	default:
		return "invalid"
	}
}

// Value is a node of a decoded bencode tree. The zero Value is invalid and
// cannot be encoded.
type Value struct {
	kind    Kind
	integer int64
	str     []byte
	list    []Value
	dict    map[string]Value
}

func NewInteger(n int64) Value {
	return Value{kind: IntegerKind, integer: n}
}

func NewString(s string) Value {
	return Value{kind: StringKind, str: append([]byte{}, s...)}
}

func NewBytes(b []byte) Value {
	return Value{kind: StringKind, str: append([]byte{}, b...)}
}

func NewList(items ...Value) Value {
	return Value{kind: ListKind, list: append([]Value{}, items...)}
}

// NewDict copies entries, so later changes to the argument do not leak into
// the Value.
func NewDict(entries map[string]Value) Value {
	dict := make(map[string]Value, len(entries))
	maps.Copy(dict, entries)

	return Value{kind: DictKind, dict: dict}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) AsInteger() (int64, bool) {
	return v.integer, v.kind == IntegerKind
}

func (v Value) AsBytes() ([]byte, bool) {
	return v.str, v.kind == StringKind
}

func (v Value) AsString() (string, bool) {
	return string(v.str), v.kind == StringKind
}

func (v Value) AsList() ([]Value, bool) {
	return v.list, v.kind == ListKind
}

func (v Value) AsDict() (map[string]Value, bool) {
	return v.dict, v.kind == DictKind
}

// Get returns the entry stored under key when v is a dictionary.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != DictKind {
		return Value{}, false
	}

	entry, ok := v.dict[key]

	return entry, ok
}

// Keys returns the dictionary keys of v in canonical (byte-wise ascending) order.
func (v Value) Keys() []string {
	if v.kind != DictKind {
		return nil
	}

	return slices.Sorted(maps.Keys(v.dict))
}

// Equal reports whether v and other describe the same tree.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case IntegerKind:
		return v.integer == other.integer

	case StringKind:
		return bytes.Equal(v.str, other.str)

	case ListKind:
		return slices.EqualFunc(v.list, other.list, Value.Equal)

	case DictKind:
		return maps.EqualFunc(v.dict, other.dict, Value.Equal)

	default:
		return true
	}
}

// Interface converts v into plain Go values: int64, string, []any and
// map[string]any. Byte strings become Go strings without any UTF-8 validation.
func (v Value) Interface() any {
	switch v.kind {
	case IntegerKind:
		return v.integer

	case StringKind:
		return string(v.str)

	case ListKind:
		items := make([]any, len(v.list))

		for index, item := range v.list {
			items[index] = item.Interface()
		}

		return items

	case DictKind:
		dict := make(map[string]any, len(v.dict))

		for key, entry := range v.dict {
			dict[key] = entry.Interface()
		}

		return dict

	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case StringKind:
		return fmt.Sprintf("%q", v.str)

	case InvalidKind:
		return "<invalid>"

	default:
		return fmt.Sprint(v.Interface())
	}
}
