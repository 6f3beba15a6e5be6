package bencode_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/MlkMahmud/peerfetch/internal/bencode"
	jackpal "github.com/jackpal/bencode-go"
)

var inputs = []bencode.Value{
	bencode.NewInteger(0),
	bencode.NewInteger(150),
	bencode.NewInteger(-100),
	bencode.NewString("a"),
	bencode.NewString("a\""),
	bencode.NewString(""),
	bencode.NewString("0123456789a"),
	bencode.NewList(),
	bencode.NewList(bencode.NewInteger(1), bencode.NewInteger(2)),
	bencode.NewList(bencode.NewString("abc"), bencode.NewString("def")),
	bencode.NewDict(nil),
	bencode.NewDict(map[string]bencode.Value{"cat": bencode.NewInteger(1), "dog": bencode.NewInteger(2)}),
	bencode.NewList(bencode.NewString("foo"), bencode.NewDict(map[string]bencode.Value{"d": bencode.NewInteger(123)})),
	bencode.NewDict(map[string]bencode.Value{
		"foo": bencode.NewList(bencode.NewInteger(1), bencode.NewInteger(2)),
		"bar": bencode.NewString("world"),
	}),
	bencode.NewList(bencode.NewList(bencode.NewDict(nil), bencode.NewString("foo")), bencode.NewInteger(5)),
}

var expectedValues = []string{
	"i0e",
	"i150e",
	"i-100e",
	"1:a",
	"2:a\"",
	"0:",
	"11:0123456789a",
	"le",
	"li1ei2ee",
	"l3:abc3:defe",
	"de",
	"d3:cati1e3:dogi2ee",
	"l3:food1:di123eee",
	"d3:bar5:world3:fooli1ei2eee",
	"llde3:fooei5ee",
}

func TestEncoder(t *testing.T) {
	for index, value := range inputs {
		t.Run(fmt.Sprintf("encode %v", value), func(t *testing.T) {
			encoded, err := bencode.Encode(value)
			expectedValue := expectedValues[index]

			if err != nil {
				t.Fatal(err)
			}

			if string(encoded) != expectedValue {
				t.Errorf("expected '%s' got '%s'", expectedValue, encoded)
			}
		})
	}
}

func TestEncodeMatchesIndependentEncoder(t *testing.T) {
	for _, value := range inputs {
		t.Run(fmt.Sprintf("compare %v", value), func(t *testing.T) {
			encoded, err := bencode.Encode(value)

			if err != nil {
				t.Fatal(err)
			}

			var reference bytes.Buffer

			if err := jackpal.Marshal(&reference, value.Interface()); err != nil {
				t.Fatal(err)
			}

			if !bytes.Equal(encoded, reference.Bytes()) {
				t.Errorf("expected '%s' got '%s'", reference.Bytes(), encoded)
			}
		})
	}
}

func TestEncodeSortsKeys(t *testing.T) {
	decoded, err := bencode.Decode([]byte("d3:zoo1:z1:b1:b2:aai1e1:Ai0ee"))

	if err != nil {
		t.Fatal(err)
	}

	encoded, err := bencode.Encode(decoded)

	if err != nil {
		t.Fatal(err)
	}

	expected := "d1:Ai0e2:aai1e1:b1:b3:zoo1:ze"

	if string(encoded) != expected {
		t.Errorf("expected '%s' got '%s'", expected, encoded)
	}
}

func TestEncodeRejectsInvalidValue(t *testing.T) {
	if _, err := bencode.Encode(bencode.Value{}); err == nil {
		t.Error("expected an error when encoding the zero Value")
	}

	if _, err := bencode.Encode(bencode.NewList(bencode.Value{})); err == nil {
		t.Error("expected an error when encoding a list holding the zero Value")
	}
}

func TestRoundTrip(t *testing.T) {
	trees := append([]bencode.Value{
		bencode.NewDict(map[string]bencode.Value{
			"info": bencode.NewDict(map[string]bencode.Value{
				"length":       bencode.NewInteger(10),
				"name":         bencode.NewString("sample.txt"),
				"piece length": bencode.NewInteger(4),
				"pieces":       bencode.NewBytes(bytes.Repeat([]byte{0xde, 0xad}, 20)),
			}),
			"announce": bencode.NewString("http://tracker.example/announce"),
		}),
		bencode.NewBytes([]byte{0, 1, 2, 255}),
		bencode.NewInteger(-9223372036854775808),
	}, inputs...)

	for _, tree := range trees {
		t.Run(fmt.Sprintf("round trip %v", tree), func(t *testing.T) {
			encoded, err := bencode.Encode(tree)

			if err != nil {
				t.Fatal(err)
			}

			decoded, err := bencode.Decode(encoded)

			if err != nil {
				t.Fatal(err)
			}

			if !decoded.Equal(tree) {
				t.Errorf("expected %v got %v", tree, decoded)
			}
		})
	}
}
