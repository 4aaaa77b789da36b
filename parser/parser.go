// Package parser builds the PDF object tree out of the tokenizer's token
// stream, plus the xref/trailer and object-stream parsing
// that sit directly on top of it. Grounded on reader/parser/parser.go and
// reader/file/read.go, generalized from an in-memory-byte-slice design to
// operate over an io.ReadSeeker shared with a tokenizer.Tokenizer.
//
// A separate top-level parser package (pdfcpu-derived
// content-stream operator parsing: commands.go, content.go, and a
// duplicate tokenizer/Object model) occupied this same package path and
// directly conflicted with the types this one defines; it covered
// content-stream graphics operators, which fall outside this library's
// scope (graphical rendering and layout are excluded), so it was removed
// rather than adapted — see DESIGN.md.
package parser

import (
	"bufio"
	"fmt"
	"io"

	"github.com/hexapdf-go/hexacore/tokenizer"
	"github.com/hexapdf-go/hexacore/types"
)

// Parser turns tokens from a shared tokenizer into the object model.
// Not safe for concurrent use: the parser and tokenizer share a
// single read cursor.
type Parser struct {
	tk  *tokenizer.Tokenizer
	src io.ReadSeeker

	// OnError is forwarded to the tokenizer and also consulted for
	// parser-level relaxations (e.g. a missing endobj keyword).
	OnError tokenizer.OnCorrectableError

	// ResolveInt resolves an indirect reference to a plain integer value,
	// used wherever a PDF scalar is allowed to be indirect: a stream's
	// Length, or a trailer's Prev/Size when a non-conforming
	// writer emits "NNN 0 R" instead of a direct integer. The
	// document layer wires this to its xref-aware loader; left nil, an
	// indirect scalar is simply treated as absent (an indirect Length
	// falls back to scanning for "endstream").
	ResolveInt func(types.Reference) (int64, bool)
}

// New creates a Parser reading tokens and raw bytes from the same
// underlying source.
func New(src io.ReadSeeker) *Parser {
	p := &Parser{src: src}
	p.tk = tokenizer.New(src)
	p.tk.OnError = func(msg string, pos int64) bool {
		if p.OnError != nil {
			return p.OnError(msg, pos)
		}
		return false
	}
	return p
}

// Tokenizer exposes the underlying tokenizer, e.g. for callers that need
// to peek ahead before deciding what to parse (xref-section dispatch).
func (p *Parser) Tokenizer() *tokenizer.Tokenizer { return p.tk }

func (p *Parser) correctable(msg string, pos int64) error {
	if p.OnError != nil && p.OnError(msg, pos) {
		return fmt.Errorf("parser: %s (at %d)", msg, pos)
	}
	return nil
}

// ParseObject parses one value at the tokenizer's current position:
// any primitive, Array, or Dictionary. It never promotes a Dictionary to
// a Stream — that promotion is specific to indirect-object bodies and is
// handled by ParseIndirectObject, since a bare "stream" keyword only has
// meaning directly after an object's top-level dictionary.
func (p *Parser) ParseObject() (types.Object, error) {
	tok, err := p.tk.NextToken()
	if err != nil {
		return nil, err
	}
	return p.parseFromToken(tok)
}

func (p *Parser) parseFromToken(tok tokenizer.Token) (types.Object, error) {
	switch tok.Kind {
	case tokenizer.EOF:
		return nil, fmt.Errorf("parser: unexpected end of input (at %d)", p.tk.Pos())
	case tokenizer.NullTok:
		return types.Null{}, nil
	case tokenizer.True:
		return types.Boolean(true), nil
	case tokenizer.False:
		return types.Boolean(false), nil
	case tokenizer.Integer:
		return types.Integer(tok.Int), nil
	case tokenizer.Real:
		return types.Real(tok.Real), nil
	case tokenizer.NameTok:
		return types.Name(tok.Bytes), nil
	case tokenizer.StringLit, tokenizer.HexStringTok:
		return types.NewString(tok.Bytes), nil
	case tokenizer.RefTok:
		return types.Reference{Oid: tok.Ref.Oid, Gen: tok.Ref.Gen}, nil
	case tokenizer.StartArray:
		return p.parseArray()
	case tokenizer.StartDict:
		return p.parseDict()
	default:
		return nil, fmt.Errorf("parser: unexpected token %v (at %d)", tok, p.tk.Pos())
	}
}

func (p *Parser) parseArray() (types.Object, error) {
	var out types.Array
	for {
		tok, err := p.tk.NextToken()
		if err != nil {
			return nil, err
		}
		if tok.Kind == tokenizer.EndArray {
			return out, nil
		}
		if tok.Kind == tokenizer.EOF {
			if err := p.correctable("unterminated array", p.tk.Pos()); err != nil {
				return nil, err
			}
			return out, nil
		}
		v, err := p.parseFromToken(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (p *Parser) parseDict() (types.Object, error) {
	dict := types.NewDictionary()
	for {
		keyTok, err := p.tk.NextToken()
		if err != nil {
			return nil, err
		}
		if keyTok.Kind == tokenizer.EndDict {
			return dict, nil
		}
		if keyTok.Kind == tokenizer.EOF {
			if err := p.correctable("unterminated dictionary", p.tk.Pos()); err != nil {
				return nil, err
			}
			return dict, nil
		}
		if keyTok.Kind != tokenizer.NameTok {
			if err := p.correctable(fmt.Sprintf("expected a Name key in dictionary, got %v", keyTok), p.tk.Pos()); err != nil {
				return nil, err
			}
			continue // relaxed: skip the stray token and try again
		}
		valTok, err := p.tk.NextToken()
		if err != nil {
			return nil, err
		}
		if valTok.Kind == tokenizer.EndDict {
			// relaxed: a key with no value before '>>' (			// "retry on EOL-before-value" case) — treat as Null and stop.
			if err := p.correctable("dictionary key with no value", p.tk.Pos()); err != nil {
				return nil, err
			}
			dict.Set(types.Name(keyTok.Bytes), types.Null{})
			return dict, nil
		}
		val, err := p.parseFromToken(valTok)
		if err != nil {
			return nil, err
		}
		dict.Set(types.Name(keyTok.Bytes), val)
	}
}

// ParseIndirectObject implements's parse_indirect_object:
// seek to offset, expect "oid gen obj", parse one value, optionally read
// a stream body, expect "endobj".
func (p *Parser) ParseIndirectObject(offset int64) (types.IndirectObject, error) {
	p.tk.SetPos(offset)

	oidTok, err := p.tk.NextToken()
	if err != nil {
		return types.IndirectObject{}, err
	}
	genTok, err := p.tk.NextToken()
	if err != nil {
		return types.IndirectObject{}, err
	}
	objTok, err := p.tk.NextToken()
	if err != nil {
		return types.IndirectObject{}, err
	}
	if oidTok.Kind != tokenizer.Integer || genTok.Kind != tokenizer.Integer || !objTok.IsKeyword("obj") {
		return types.IndirectObject{}, fmt.Errorf("parser: expected \"oid gen obj\" at %d, got %v %v %v", offset, oidTok, genTok, objTok)
	}

	value, err := p.ParseObject()
	if err != nil {
		return types.IndirectObject{}, err
	}

	if dict, ok := value.(*types.Dictionary); ok {
		if peeked, _ := p.tk.PeekToken(); peeked.IsKeyword("stream") {
			p.tk.NextToken() // consume "stream"
			raw, err := p.readStreamBody(dict)
			if err != nil {
				return types.IndirectObject{}, err
			}
			value = types.NewStream(dict, raw)
		}
	}

	endTok, err := p.tk.NextToken()
	if err != nil {
		return types.IndirectObject{}, err
	}
	if !endTok.IsKeyword("endobj") {
		if err := p.correctable(fmt.Sprintf("missing endobj keyword at %d, got %v", p.tk.Pos(), endTok), p.tk.Pos()); err != nil {
			return types.IndirectObject{}, err
		}
	}

	return types.IndirectObject{Oid: uint32(oidTok.Int), Gen: uint32(genTok.Int), Obj: value}, nil
}

// readStreamBody reads the raw (still filter-encoded) bytes following
// "stream" in an indirect object. The tokenizer's cursor is positioned right after the "stream"
// keyword token; per PDF syntax, the keyword is followed by CRLF or a
// bare LF before the data starts (a bare CR is accepted as a relaxation).
func (p *Parser) readStreamBody(dict *types.Dictionary) ([]byte, error) {
	pos := p.tk.Pos()
	b, err := p.readByteAt(pos)
	if err != nil {
		return nil, fmt.Errorf("parser: reading stream data at %d: %w", pos, err)
	}
	dataStart := pos + 1
	if b == '\r' {
		b2, err2 := p.readByteAt(dataStart)
		if err2 == nil && b2 == '\n' {
			dataStart++
		} else if err := p.correctable("stream keyword followed by bare CR, not CRLF", pos); err != nil {
			return nil, err
		}
	} else if b != '\n' {
		if err := p.correctable("stream keyword not followed by EOL", pos); err != nil {
			return nil, err
		}
		dataStart = pos // no EOL consumed at all; relaxed recovery
	}

	if length, ok := p.streamLength(dict); ok {
		raw, rerr := p.readExactly(dataStart, length)
		if rerr == nil && p.followsWithEndstream(dataStart+length) {
			p.tk.SetPos(dataStart + length)
			if err := p.expectEndstream(); err != nil {
				return nil, err
			}
			return raw, nil
		}
		if err := p.correctable("stream Length did not match actual data, scanning for endstream", dataStart); err != nil {
			return nil, err
		}
	}

	return p.scanToEndstream(dataStart)
}

func (p *Parser) streamLength(dict *types.Dictionary) (int64, bool) {
	v, ok := dict.Get("Length")
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case types.Integer:
		if n < 0 {
			return 0, false
		}
		return int64(n), true
	case types.Reference:
		if p.ResolveInt == nil {
			return 0, false
		}
		return p.ResolveInt(n)
	default:
		return 0, false
	}
}

func (p *Parser) followsWithEndstream(pos int64) bool {
	buf, err := p.peekBytes(pos, 32)
	if err != nil && len(buf) == 0 {
		return false
	}
	i := 0
	for i < len(buf) && isLexWhitespace(buf[i]) {
		i++
	}
	return hasPrefix(buf[i:], "endstream")
}

func (p *Parser) expectEndstream() error {
	tok, err := p.tk.NextToken()
	if err != nil {
		return err
	}
	if !tok.IsKeyword("endstream") {
		return p.correctable(fmt.Sprintf("expected endstream, got %v", tok), p.tk.Pos())
	}
	return nil
}

// scanToEndstream implements readStreamBlindly /
// readStreamMaxLength recovery: when Length is missing or wrong, scan
// forward byte-by-byte for the literal marker "endstream".
func (p *Parser) scanToEndstream(dataStart int64) ([]byte, error) {
	const marker = "endstream"
	r := bufio.NewReader(&offsetReader{src: p.src, pos: dataStart})
	var window []byte
	pos := dataStart
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("parser: reached end of input without finding endstream (started at %d)", dataStart)
		}
		window = append(window, b)
		pos++
		if len(window) >= len(marker) && string(window[len(window)-len(marker):]) == marker {
			end := pos - int64(len(marker))
			raw, err := p.readExactly(dataStart, end-dataStart)
			if err != nil {
				return nil, err
			}
			raw = trimTrailingEOL(raw)
			p.tk.SetPos(pos)
			return raw, nil
		}
	}
}

// offsetReader adapts an io.ReadSeeker positioned arbitrarily into a
// plain io.Reader starting at pos, without disturbing callers that also
// use absolute Seek/Read against the same source between reads.
type offsetReader struct {
	src io.ReadSeeker
	pos int64
}

func (r *offsetReader) Read(p []byte) (int, error) {
	if _, err := r.src.Seek(r.pos, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := r.src.Read(p)
	r.pos += int64(n)
	return n, err
}

func trimTrailingEOL(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		b = b[:len(b)-1]
		if len(b) > 0 && b[len(b)-1] == '\r' {
			b = b[:len(b)-1]
		}
		return b
	}
	if len(b) > 0 && b[len(b)-1] == '\r' {
		b = b[:len(b)-1]
	}
	return b
}

func isLexWhitespace(c byte) bool {
	switch c {
	case 0, 9, 10, 12, 13, 32:
		return true
	}
	return false
}

func hasPrefix(b []byte, s string) bool {
	if len(b) < len(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if b[i] != s[i] {
			return false
		}
	}
	return true
}

// readByteAt, readExactly and peekBytes read directly from the shared
// source, independent of the tokenizer's lexical state, for the raw
// (non-tokenized) stream payload.
func (p *Parser) readByteAt(pos int64) (byte, error) {
	buf, err := p.peekBytes(pos, 1)
	if len(buf) == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	return buf[0], nil
}

func (p *Parser) peekBytes(pos int64, n int) ([]byte, error) {
	if _, err := p.src.Seek(pos, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	r, err := io.ReadFull(p.src, buf)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return buf[:r], err
}

func (p *Parser) readExactly(pos int64, n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("parser: negative length %d", n)
	}
	if _, err := p.src.Seek(pos, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(p.src, buf)
	return buf, err
}
