package filter

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"
)

// decodeLZW reverses LZWDecode using the same third-party codec wired
// for this filter in reader/parser/filters/lzwDecode.go:
// github.com/hhrutter/lzw, a PDF/TIFF-variant LZW implementation not
// covered by the standard library's compress/lzw (which only speaks the
// GIF variant).
func decodeLZW(data []byte, p Params) ([]byte, error) {
	earlyChange := p.EarlyChange != 0
	rc := lzw.NewReader(bytes.NewReader(data), earlyChange)
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("filter: LZWDecode: %w", err)
	}
	return applyPredictor(raw, p)
}

func encodeLZW(data []byte, p Params) ([]byte, error) {
	var buf bytes.Buffer
	earlyChange := p.EarlyChange != 0
	w := lzw.NewWriter(&buf, earlyChange)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("filter: LZWDecode encode: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("filter: LZWDecode encode: %w", err)
	}
	return buf.Bytes(), nil
}
