package filter

import (
	"bytes"
	"testing"
)

func TestASCIIHexRoundTrip(t *testing.T) {
	src := []byte("Hello, PDF!")
	enc := encodeASCIIHex(src)
	got, err := decodeASCIIHex(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("got %q, want %q", got, src)
	}
}

func TestASCIIHexOddNibble(t *testing.T) {
	got, err := decodeASCIIHex([]byte("ABC>"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []byte{0xAB, 0xC0}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestASCII85RoundTrip(t *testing.T) {
	for _, src := range [][]byte{
		[]byte(""),
		[]byte("A"),
		[]byte("AB"),
		[]byte("ABC"),
		[]byte("ABCD"),
		[]byte("Man is distinguished"),
		{0, 0, 0, 0, 0, 0, 0, 0},
	} {
		enc := encodeASCII85(src)
		got, err := decodeASCII85(enc)
		if err != nil {
			t.Fatalf("decode %q: %v", src, err)
		}
		if !bytes.Equal(got, src) {
			t.Fatalf("got %q, want %q", got, src)
		}
	}
}

func TestRunLengthRoundTrip(t *testing.T) {
	src := []byte("aaaaaaaaaabbbccddddddddddddddddeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeefg")
	enc := encodeRunLength(src)
	got, err := decodeRunLength(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("got %q, want %q", got, src)
	}
}

func TestRunLengthMissingEOD(t *testing.T) {
	if _, err := decodeRunLength([]byte{0x00, 'a'}); err == nil {
		t.Fatalf("expected error for missing EOD marker")
	}
}

func TestFlateRoundTrip(t *testing.T) {
	src := []byte("the quick brown fox jumps over the lazy dog, repeated: the quick brown fox jumps over the lazy dog")
	enc, err := encodeFlate(src, defaultParams())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeFlate(enc, defaultParams())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("got %q, want %q", got, src)
	}
}

func TestFlateWithPNGUpPredictor(t *testing.T) {
	// two 3-byte rows, "Up" filter (type 2): row1 raw, row2 = row1 + delta
	row1 := []byte{2, 10, 20, 30}
	row2 := []byte{2, 1, 1, 1}
	raw := append(append([]byte{}, row1...), row2...)
	enc, err := encodeFlate(raw, Params{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	p := Params{Predictor: 15, Colors: 1, BitsPerComponent: 8, Columns: 3}
	got, err := decodeFlate(enc, p)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []byte{10, 20, 30, 11, 21, 31}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLZWRoundTrip(t *testing.T) {
	src := []byte("aaaaaaaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbbbbbbbbbccccccccccccccc")
	enc, err := encodeLZW(src, defaultParams())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeLZW(enc, defaultParams())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("got %q, want %q", got, src)
	}
}

func TestDCTPassesThrough(t *testing.T) {
	src := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	got, err := Decode(DCT, src, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("got %x, want %x", got, src)
	}
}

func TestUnknownFilter(t *testing.T) {
	if _, err := Decode("NoSuchFilter", nil, nil); err == nil {
		t.Fatalf("expected error for unknown filter")
	}
}
