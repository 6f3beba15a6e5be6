package bencode

import (
	"bytes"
	"errors"
	"fmt"
)

var ErrKeyNotFound = errors.New("dictionary key not found")

// skipAt walks over the value starting at index without materializing it and
// returns the index just past it. It shares the primitive readers with the
// decoder, so both modes accept and reject exactly the same inputs.
func skipAt(data []byte, index int, depth int) (int, error) {
	if index >= len(data) {
		return 0, malformed("unexpected end of input at index %d", index)
	}

	if depth > maxDepth {
		return 0, malformed("nesting deeper than %d levels", maxDepth)
	}

	char := data[index]

	switch {
	case isDigit(char):
		_, end, err := readStringSpan(data, index)

		return end, err

	case char == integerStartDelim:
		_, nextIndex, err := readInteger(data, index)

		return nextIndex, err

	case char == listStartDelim, char == dictStartDelim:
		isDict := char == dictStartDelim
		index++

		for index < len(data) && data[index] != endDelim {
			if isDict {
				_, keyEnd, err := readStringSpan(data, index)

				if err != nil {
					return 0, fmt.Errorf("invalid dictionary key: %w", err)
				}

				index = keyEnd
			}

			nextIndex, err := skipAt(data, index, depth+1)

			if err != nil {
				return 0, err
			}

			index = nextIndex
		}

		if index >= len(data) {
			return 0, malformed("unterminated container")
		}

		return index + 1, nil

	default:
		return 0, malformed("unsupported delimiter '%c' at index %d", char, index)
	}
}

// Cursor scans encoded data positionally. Unlike Decode it never builds a
// tree, so a single known key can be pulled out of a large dictionary while
// unknown keys are skipped in place.
type Cursor struct {
	data []byte
	pos  int
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

func (c *Cursor) Pos() int {
	return c.pos
}

func (c *Cursor) Done() bool {
	return c.pos >= len(c.data)
}

// Skip advances the cursor past the value at its current position.
func (c *Cursor) Skip() error {
	nextIndex, err := skipAt(c.data, c.pos, 0)

	if err != nil {
		return err
	}

	c.pos = nextIndex

	return nil
}

// Decode materializes the value at the current position and advances past it.
func (c *Cursor) Decode() (Value, error) {
	value, nextIndex, err := DecodeAt(c.data, c.pos)

	if err != nil {
		return Value{}, err
	}

	c.pos = nextIndex

	return value, nil
}

// Lookup expects a dictionary at the current position and returns the raw
// encoded bytes stored under key. The cursor position is left unchanged.
func (c *Cursor) Lookup(key string) ([]byte, error) {
	data := c.data
	index := c.pos

	if index >= len(data) || data[index] != dictStartDelim {
		return nil, malformed("expected dictionary at index %d", index)
	}

	var match []byte
	index++

	// A repeated key resolves to its last occurrence, same as Decode.
	for index < len(data) && data[index] != endDelim {
		keyStart, keyEnd, err := readStringSpan(data, index)

		if err != nil {
			return nil, fmt.Errorf("invalid dictionary key: %w", err)
		}

		valueEnd, err := skipAt(data, keyEnd, 1)

		if err != nil {
			return nil, err
		}

		if bytes.Equal(data[keyStart:keyEnd], []byte(key)) {
			match = data[keyEnd:valueEnd]
		}

		index = valueEnd
	}

	if index >= len(data) {
		return nil, malformed("unterminated dictionary")
	}

	if match == nil {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}

	return match, nil
}

// LookupString is Lookup for keys whose value must be a byte string. The
// returned slice aliases the cursor's data.
func (c *Cursor) LookupString(key string) ([]byte, error) {
	raw, err := c.Lookup(key)

	if err != nil {
		return nil, err
	}

	start, end, err := readStringSpan(raw, 0)

	if err != nil {
		return nil, fmt.Errorf("value for key %q is not a string: %w", key, err)
	}

	return raw[start:end], nil
}

// LookupInteger is Lookup for keys whose value must be an integer.
func (c *Cursor) LookupInteger(key string) (int64, error) {
	raw, err := c.Lookup(key)

	if err != nil {
		return 0, err
	}

	integer, _, err := readInteger(raw, 0)

	if err != nil {
		return 0, fmt.Errorf("value for key %q is not an integer: %w", key, err)
	}

	return integer, nil
}
