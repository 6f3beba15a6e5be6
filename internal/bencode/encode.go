package bencode

import (
	"bytes"
	"fmt"
	"strconv"
)

func encodeString(buffer *bytes.Buffer, str []byte) {
	buffer.WriteString(strconv.Itoa(len(str)))
	buffer.WriteByte(stringLengthDelim)
	buffer.Write(str)
}

func encodeValue(buffer *bytes.Buffer, value Value) error {
	switch value.kind {
	case IntegerKind:
		buffer.WriteByte(integerStartDelim)
		buffer.WriteString(strconv.FormatInt(value.integer, 10))
		buffer.WriteByte(endDelim)

	case StringKind:
		encodeString(buffer, value.str)

	case ListKind:
		buffer.WriteByte(listStartDelim)

		for index, item := range value.list {
			if err := encodeValue(buffer, item); err != nil {
				return fmt.Errorf("failed to encode list item at index %d: %w", index, err)
			}
		}

		buffer.WriteByte(endDelim)

	case DictKind:
		buffer.WriteByte(dictStartDelim)

		// Keys() sorts byte-wise, which is the canonical order.
		for _, key := range value.Keys() {
			encodeString(buffer, []byte(key))

			if err := encodeValue(buffer, value.dict[key]); err != nil {
				return fmt.Errorf("failed to encode dictionary value for key %q: %w", key, err)
			}
		}

		buffer.WriteByte(endDelim)

	default:
		return fmt.Errorf("unsupported value kind '%s'", value.kind)
	}

	return nil
}

// Encode returns the canonical encoding of value: dictionary keys are always
// emitted in strictly increasing byte order.
func Encode(value Value) ([]byte, error) {
	var buffer bytes.Buffer

	if err := encodeValue(&buffer, value); err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}
