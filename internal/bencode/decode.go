package bencode

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	dictStartDelim    = 'd'
	integerStartDelim = 'i'
	listStartDelim    = 'l'
	endDelim          = 'e'
	stringLengthDelim = ':'
)

// Containers nested deeper than this are rejected instead of recursing further.
const maxDepth = 512

var ErrMalformedInput = errors.New("malformed bencode input")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}

func isDigit(char byte) bool {
	return char >= '0' && char <= '9'
}

// readInteger parses "i<digits>e" starting at index and returns the value and
// the index just past the end delimiter.
func readInteger(data []byte, index int) (int64, int, error) {
	if index >= len(data) || data[index] != integerStartDelim {
		return 0, 0, malformed("missing start delimiter '%c' at index %d", integerStartDelim, index)
	}

	startIndex := index + 1
	endIndex := startIndex

	for endIndex < len(data) && data[endIndex] != endDelim {
		endIndex++
	}

	if endIndex >= len(data) {
		return 0, 0, malformed("missing end delimiter '%c' for integer at index %d", endDelim, index)
	}

	digits := data[startIndex:endIndex]

	if len(digits) == 0 {
		return 0, 0, malformed("empty integer at index %d", index)
	}

	unsigned := digits

	if digits[0] == '-' {
		unsigned = digits[1:]
	}

	if len(unsigned) == 0 {
		return 0, 0, malformed("integer at index %d has no digits", index)
	}

	for _, char := range unsigned {
		if !isDigit(char) {
			return 0, 0, malformed("invalid integer character '%c' at index %d", char, index)
		}
	}

	if unsigned[0] == '0' && (len(unsigned) > 1 || len(digits) != len(unsigned)) {
		return 0, 0, malformed("invalid leading zero in integer at index %d", index)
	}

	result, err := strconv.ParseInt(string(digits), 10, 64)

	if err != nil {
		return 0, 0, malformed("integer at index %d out of range: %v", index, err)
	}

	return result, endIndex + 1, nil
}

// readStringSpan parses "<length>:" starting at index and returns the bounds
// of the raw bytes that follow. It never reads past the end of data.
func readStringSpan(data []byte, index int) (int, int, error) {
	if index >= len(data) || !isDigit(data[index]) {
		return 0, 0, malformed("invalid string length prefix at index %d", index)
	}

	colonIndex := index

	for colonIndex < len(data) && data[colonIndex] != stringLengthDelim {
		if !isDigit(data[colonIndex]) {
			return 0, 0, malformed("non-numeric string length '%c' at index %d", data[colonIndex], colonIndex)
		}

		colonIndex++
	}

	if colonIndex >= len(data) {
		return 0, 0, malformed("missing '%c' after string length at index %d", stringLengthDelim, index)
	}

	lengthDigits := data[index:colonIndex]

	if len(lengthDigits) > 1 && lengthDigits[0] == '0' {
		return 0, 0, malformed("invalid leading zero in string length at index %d", index)
	}

	length, err := strconv.Atoi(string(lengthDigits))

	if err != nil {
		return 0, 0, malformed("string length at index %d out of range: %v", index, err)
	}

	startIndex := colonIndex + 1

	if length > len(data)-startIndex {
		return 0, 0, malformed("string length %d at index %d exceeds remaining %d bytes", length, index, len(data)-startIndex)
	}

	return startIndex, startIndex + length, nil
}

func decodeList(data []byte, index int, depth int) (Value, int, error) {
	items := []Value{}
	index++

	for index < len(data) && data[index] != endDelim {
		item, nextIndex, err := decodeAt(data, index, depth+1)

		if err != nil {
			return Value{}, 0, err
		}

		items = append(items, item)
		index = nextIndex
	}

	if index >= len(data) {
		return Value{}, 0, malformed("unterminated list")
	}

	return Value{kind: ListKind, list: items}, index + 1, nil
}

func decodeDict(data []byte, index int, depth int) (Value, int, error) {
	dict := map[string]Value{}
	index++

	for index < len(data) && data[index] != endDelim {
		keyStart, keyEnd, err := readStringSpan(data, index)

		if err != nil {
			return Value{}, 0, fmt.Errorf("invalid dictionary key: %w", err)
		}

		entry, nextIndex, err := decodeAt(data, keyEnd, depth+1)

		if err != nil {
			return Value{}, 0, err
		}

		dict[string(data[keyStart:keyEnd])] = entry
		index = nextIndex
	}

	if index >= len(data) {
		return Value{}, 0, malformed("unterminated dictionary")
	}

	return Value{kind: DictKind, dict: dict}, index + 1, nil
}

func decodeAt(data []byte, index int, depth int) (Value, int, error) {
	if index >= len(data) {
		return Value{}, 0, malformed("unexpected end of input at index %d", index)
	}

	if depth > maxDepth {
		return Value{}, 0, malformed("nesting deeper than %d levels", maxDepth)
	}

	char := data[index]

	switch {
	case isDigit(char):
		start, end, err := readStringSpan(data, index)

		if err != nil {
			return Value{}, 0, err
		}

		return NewBytes(data[start:end]), end, nil

	case char == integerStartDelim:
		integer, nextIndex, err := readInteger(data, index)

		if err != nil {
			return Value{}, 0, err
		}

		return NewInteger(integer), nextIndex, nil

	case char == listStartDelim:
		return decodeList(data, index, depth)

	case char == dictStartDelim:
		return decodeDict(data, index, depth)

	default:
		return Value{}, 0, malformed("unsupported delimiter '%c' at index %d", char, index)
	}
}

// DecodeAt decodes the value starting at index and returns it together with
// the index just past its last byte.
func DecodeAt(data []byte, index int) (Value, int, error) {
	if index < 0 {
		return Value{}, 0, malformed("negative index %d", index)
	}

	return decodeAt(data, index, 0)
}

// Decode decodes a single value that must span the whole of data.
func Decode(data []byte) (Value, error) {
	value, nextIndex, err := decodeAt(data, 0, 0)

	if err != nil {
		return Value{}, err
	}

	if nextIndex != len(data) {
		return Value{}, malformed("trailing data at index %d", nextIndex)
	}

	return value, nil
}
