package bencode_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/MlkMahmud/peerfetch/internal/bencode"
)

func TestDecode(t *testing.T) {
	inputs := map[string]any{
		"i0e":                         int64(0),
		"i150e":                       int64(150),
		"i-100e":                      int64(-100),
		"1:a":                         "a",
		"2:a\"":                       "a\"",
		"0:":                          "",
		"11:0123456789a":              "0123456789a",
		"le":                          []any{},
		"li1ei2ee":                    []any{int64(1), int64(2)},
		"l3:abc3:defe":                []any{"abc", "def"},
		"li42e3:abce":                 []any{int64(42), "abc"},
		"de":                          map[string]any{},
		"d3:cati1e3:dogi2ee":          map[string]any{"cat": int64(1), "dog": int64(2)},
		"d3:cow3:moo4:spam4:eggse":    map[string]any{"cow": "moo", "spam": "eggs"},
		"l3:food1:di123eee":           []any{"foo", map[string]any{"d": int64(123)}},
		"d3:fooli1ei2ee3:bar5:worlde": map[string]any{"foo": []any{int64(1), int64(2)}, "bar": "world"},
		"d8:announce34:udp://tracker.coppersurfer.tk:6969e": map[string]any{"announce": "udp://tracker.coppersurfer.tk:6969"},
		"llde3:fooei5ee":                  []any{[]any{map[string]any{}, "foo"}, int64(5)},
		"d4:listl3:onei2e5:three4:fiveee": map[string]any{"list": []any{"one", int64(2), "three", "five"}},
	}

	for bencodedString, expectedValue := range inputs {
		t.Run(fmt.Sprintf("decode %s", bencodedString), func(t *testing.T) {
			decodedValue, err := bencode.Decode([]byte(bencodedString))

			if err != nil {
				t.Fatal(err)
			}

			if !reflect.DeepEqual(expectedValue, decodedValue.Interface()) {
				t.Errorf("Expected %v got %v\n", expectedValue, decodedValue.Interface())
			}
		})
	}
}

func TestDecodeRawBytes(t *testing.T) {
	input := append([]byte("4:"), 0x00, 0xff, 0x13, 0x80)

	decodedValue, err := bencode.Decode(input)

	if err != nil {
		t.Fatal(err)
	}

	raw, ok := decodedValue.AsBytes()

	if !ok {
		t.Fatalf("expected a string value, got %s", decodedValue.Kind())
	}

	if !reflect.DeepEqual(raw, []byte{0x00, 0xff, 0x13, 0x80}) {
		t.Errorf("expected raw bytes to survive decoding, got %x", raw)
	}
}

func TestDecodeMalformedInput(t *testing.T) {
	inputs := []string{
		"",
		"i",
		"i12",
		"ie",
		"i-e",
		"i-0e",
		"i03e",
		"i1x2e",
		"i99999999999999999999e",
		"5:abc",
		"3abc",
		"a:abc",
		"03:abc",
		"l",
		"li1e",
		"lli1ee",
		"d",
		"d3:foo",
		"d3:fooi1e",
		"di1ei2ee",
		"x",
		"i1ei2e",
		"18446744073709551616:a",
	}

	for _, input := range inputs {
		t.Run(fmt.Sprintf("reject %q", input), func(t *testing.T) {
			_, err := bencode.Decode([]byte(input))

			if !errors.Is(err, bencode.ErrMalformedInput) {
				t.Errorf("expected ErrMalformedInput, got %v", err)
			}
		})
	}
}

func TestDecodeRejectsDeepNesting(t *testing.T) {
	input := make([]byte, 0, 2048)

	for range 1000 {
		input = append(input, 'l')
	}

	for range 1000 {
		input = append(input, 'e')
	}

	if _, err := bencode.Decode(input); !errors.Is(err, bencode.ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
}

func TestDecodeAt(t *testing.T) {
	input := []byte("i42e4:spamli1ee")

	expected := []struct {
		value     bencode.Value
		nextIndex int
	}{
		{bencode.NewInteger(42), 4},
		{bencode.NewString("spam"), 10},
		{bencode.NewList(bencode.NewInteger(1)), 15},
	}

	index := 0

	for _, want := range expected {
		value, nextIndex, err := bencode.DecodeAt(input, index)

		if err != nil {
			t.Fatalf("unexpected error at index %d: %v", index, err)
		}

		if !value.Equal(want.value) || nextIndex != want.nextIndex {
			t.Errorf("expected (%v, %d) got (%v, %d)", want.value, want.nextIndex, value, nextIndex)
		}

		index = nextIndex
	}
}

func TestDecodeDuplicateKeysLastWins(t *testing.T) {
	decodedValue, err := bencode.Decode([]byte("d1:ai1e1:ai2ee"))

	if err != nil {
		t.Fatal(err)
	}

	entry, _ := decodedValue.Get("a")

	if n, _ := entry.AsInteger(); n != 2 {
		t.Errorf("expected the last duplicate to win, got %d", n)
	}
}
