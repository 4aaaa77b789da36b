// Package tokenizer implements byte-accurate lexing of PDF tokens from a
// seekable input.1. The lexical rules (delimiters,
// escapes, number/name/string grammars) are ported from // parser/tokenizer/token.go (itself ported from the Java PDFTK library),
// adapted to read through a bounded sliding window over an io.ReadSeeker
// instead of a fully-buffered byte slice, and to collapse "INT WS INT WS
// R" into a single Reference token inside the tokenizer itself, rather
// than one layer up in the parser.
package tokenizer

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/hexapdf-go/hexacore/types"
)

// Kind identifies the lexical class of a Token.
type Kind uint8

const (
	EOF Kind = iota
	Integer
	Real
	NameTok
	StringLit
	HexStringTok
	StartArray
	EndArray
	StartDict
	EndDict
	Keyword // any non-whitespace, non-delimiter run that isn't special-cased below
	True
	False
	NullTok
	RefTok // collapsed "oid gen R"
)

// Token is one lexical unit. Only the fields relevant to Kind are
// populated; see the field comments for interpretation.
type Token struct {
	Kind  Kind
	Bytes []byte // Name/String/HexString/Keyword payload, already unescaped
	Int   int64  // Integer
	Real  float64
	Ref   types.Reference // RefTok
}

func (t Token) String() string {
	switch t.Kind {
	case EOF:
		return "<EOF>"
	case Integer:
		return fmt.Sprintf("Integer(%d)", t.Int)
	case Real:
		return fmt.Sprintf("Real(%g)", t.Real)
	case NameTok:
		return fmt.Sprintf("Name(%s)", t.Bytes)
	case StringLit, HexStringTok:
		return fmt.Sprintf("String(%q)", t.Bytes)
	case Keyword:
		return fmt.Sprintf("Keyword(%s)", t.Bytes)
	case RefTok:
		return t.Ref.String()
	default:
		return fmt.Sprintf("Kind(%d)", t.Kind)
	}
}

// IsKeyword reports whether t is a Keyword token with the given text.
func (t Token) IsKeyword(s string) bool {
	return t.Kind == Keyword && string(t.Bytes) == s
}

// OnCorrectableError is consulted whenever the tokenizer encounters a
// relaxable malformation. Returning true raises it as fatal; returning
// false (or a nil callback) lets the tokenizer recover with a reasonable
// guess.1 "Error policy".
type OnCorrectableError func(msg string, pos int64) bool

const bufSize = 8192

// Tokenizer lexes tokens from a seekable byte source.1.
// It is not safe for concurrent use.
type Tokenizer struct {
	rs  io.ReadSeeker
	buf []byte
	// start is the logical offset of buf[0]; n is the number of valid
	// bytes currently held in buf.
	start int64
	n     int
	// cur is the logical read cursor; it may be <start or >=start+n, in
	// which case the next read reloads the window.
	cur int64

	OnError OnCorrectableError

	// pending holds already-lexed raw tokens (before Reference collapsing)
	// that sit ahead of consumedPos, used to look ahead for "int int R".
	// tk.cur runs ahead of consumedPos by exactly len(pending) raw tokens.
	pending []rawTok
	// consumedPos is the logical position after the last token handed back
	// by NextToken; this, not tk.cur, is what Pos() reports.
	consumedPos int64
}

type rawTok struct {
	tok Token
	// pos is the logical position immediately after this raw token.
	pos int64
}

// New creates a Tokenizer reading from rs, starting at the current
// position of rs.
func New(rs io.ReadSeeker) *Tokenizer {
	p, _ := rs.Seek(0, io.SeekCurrent)
	return &Tokenizer{rs: rs, buf: make([]byte, bufSize), cur: p, consumedPos: p, start: -1}
}

// Pos returns the logical byte position immediately after the last token
// returned by NextToken.
func (tk *Tokenizer) Pos() int64 {
	return tk.consumedPos
}

// SetPos seeks the tokenizer to a new logical position, discarding any
// pending lookahead tokens. The byte window is kept and is reloaded only
// when the new position falls outside it.
func (tk *Tokenizer) SetPos(p int64) {
	tk.cur = p
	tk.consumedPos = p
	tk.pending = nil
}

func (tk *Tokenizer) ensure(p int64) bool {
	if tk.start >= 0 && p >= tk.start && p < tk.start+int64(tk.n) {
		return true
	}
	if _, err := tk.rs.Seek(p, io.SeekStart); err != nil {
		tk.start, tk.n = p, 0
		return false
	}
	n, _ := io.ReadFull(tk.rs, tk.buf)
	tk.start, tk.n = p, n
	return n > 0
}

func (tk *Tokenizer) readByte() (byte, bool) {
	if !tk.ensure(tk.cur) {
		return 0, false
	}
	b := tk.buf[tk.cur-tk.start]
	tk.cur++
	return b, true
}

func (tk *Tokenizer) unreadByte() {
	tk.cur--
}

func isWhitespace(ch byte) bool {
	switch ch {
	case 0, 9, 10, 12, 13, 32:
		return true
	default:
		return false
	}
}

func isDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(ch)
	}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

// NextToken reads and consumes the next token, collapsing "oid gen R"
// into a single RefTok.1. At end of input it returns an
// EOF token with a nil error (not an error condition).
func (tk *Tokenizer) NextToken() (Token, error) {
	if err := tk.fillPending(3); err != nil && len(tk.pending) == 0 {
		return Token{}, err
	}
	if len(tk.pending) == 0 {
		return Token{Kind: EOF}, nil
	}

	first := tk.pending[0]
	if first.tok.Kind == Integer && len(tk.pending) >= 2 && tk.pending[1].tok.Kind == Integer &&
		len(tk.pending) >= 3 && tk.pending[2].tok.IsKeyword("R") {
		ref := types.Reference{Oid: uint32(first.tok.Int), Gen: uint16(tk.pending[1].tok.Int)}
		tk.consumedPos = tk.pending[2].pos
		tk.pending = tk.pending[3:]
		return Token{Kind: RefTok, Ref: ref}, nil
	}
	tk.consumedPos = first.pos
	tk.pending = tk.pending[1:]
	return first.tok, nil
}

// PeekToken returns the next token without consuming it.
func (tk *Tokenizer) PeekToken() (Token, error) {
	if err := tk.fillPending(3); err != nil && len(tk.pending) == 0 {
		return Token{}, err
	}
	if len(tk.pending) == 0 {
		return Token{Kind: EOF}, nil
	}
	first := tk.pending[0]
	if first.tok.Kind == Integer && len(tk.pending) >= 2 && tk.pending[1].tok.Kind == Integer &&
		len(tk.pending) >= 3 && tk.pending[2].tok.IsKeyword("R") {
		return Token{Kind: RefTok, Ref: types.Reference{Oid: uint32(first.tok.Int), Gen: uint16(tk.pending[1].tok.Int)}}, nil
	}
	return first.tok, nil
}

// fillPending ensures at least min raw (pre-collapse) tokens are buffered
// ahead of consumedPos, or as many as are available before EOF. tk.cur is
// the shared byte-stream read cursor: it advances monotonically as each
// raw token is lexed, regardless of how many are buffered ahead of what
// NextToken has actually handed back.
func (tk *Tokenizer) fillPending(min int) error {
	for len(tk.pending) < min {
		raw, err := tk.lexRaw()
		if err != nil {
			return err
		}
		if raw.Kind == EOF {
			return nil
		}
		tk.pending = append(tk.pending, rawTok{tok: raw, pos: tk.cur})
	}
	return nil
}

// lexRaw lexes exactly one pre-collapse token starting at tk.cur,
// advancing tk.cur past it.
func (tk *Tokenizer) lexRaw() (Token, error) {
	ch, ok := tk.readByte()
	for ok && isWhitespace(ch) {
		ch, ok = tk.readByte()
	}
	if !ok {
		return Token{Kind: EOF}, nil
	}

	switch ch {
	case '[':
		return Token{Kind: StartArray}, nil
	case ']':
		return Token{Kind: EndArray}, nil
	case '/':
		return tk.lexName()
	case '<':
		nxt, ok := tk.readByte()
		if ok && nxt == '<' {
			return Token{Kind: StartDict}, nil
		}
		if ok {
			tk.unreadByte()
		}
		return tk.lexHexString()
	case '>':
		nxt, ok := tk.readByte()
		if !ok || nxt != '>' {
			return Token{}, tk.fatal("'>' not expected")
		}
		return Token{Kind: EndDict}, nil
	case '(':
		return tk.lexLiteralString()
	case '%':
		for ok && ch != '\r' && ch != '\n' {
			ch, ok = tk.readByte()
		}
		return tk.lexRaw()
	default:
		tk.unreadByte()
		if tok, ok := tk.lexNumber(); ok {
			return tok, nil
		}
		return tk.lexKeyword()
	}
}

func (tk *Tokenizer) fatal(msg string) error {
	return fmt.Errorf("tokenizer: %s (at %d)", msg, tk.cur)
}

func (tk *Tokenizer) correctable(msg string) error {
	if tk.OnError != nil && tk.OnError(msg, tk.cur) {
		return tk.fatal(msg)
	}
	return nil
}

func (tk *Tokenizer) lexName() (Token, error) {
	var out []byte
	for {
		ch, ok := tk.readByte()
		if !ok || isDelimiter(ch) {
			if ok {
				tk.unreadByte()
			}
			break
		}
		if ch == '#' {
			h1, ok1 := tk.readByte()
			h2, ok2 := tk.readByte()
			if ok1 && ok2 {
				if v, err := hex.DecodeString(string([]byte{h1, h2})); err == nil {
					out = append(out, v[0])
					continue
				}
			}
			if err := tk.correctable("malformed #HH escape in name"); err != nil {
				return Token{}, err
			}
			out = append(out, '#')
			continue
		}
		out = append(out, ch)
	}
	return Token{Kind: NameTok, Bytes: out}, nil
}

func (tk *Tokenizer) lexHexString() (Token, error) {
	var out []byte
	var hi byte
	haveHi := false
	for {
		ch, ok := tk.readByte()
		if !ok {
			if err := tk.correctable("unterminated hex string"); err != nil {
				return Token{}, err
			}
			break
		}
		if ch == '>' {
			break
		}
		if isWhitespace(ch) {
			continue
		}
		v, isHex := hexVal(ch)
		if !isHex {
			if err := tk.correctable("invalid hex digit in hex string"); err != nil {
				return Token{}, err
			}
			continue
		}
		if !haveHi {
			hi, haveHi = v, true
		} else {
			out = append(out, hi<<4|v)
			haveHi = false
		}
	}
	if haveHi { // odd last nibble treated as 0.1
		out = append(out, hi<<4)
	}
	return Token{Kind: HexStringTok, Bytes: out}, nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (tk *Tokenizer) lexLiteralString() (Token, error) {
	var out []byte
	nesting := 0
	for {
		ch, ok := tk.readByte()
		if !ok {
			if err := tk.correctable("unterminated literal string"); err != nil {
				return Token{}, err
			}
			break
		}
		switch {
		case ch == '(':
			nesting++
			out = append(out, ch)
		case ch == ')':
			if nesting == 0 {
				return Token{Kind: StringLit, Bytes: out}, nil
			}
			nesting--
			out = append(out, ch)
		case ch == '\\':
			b, consumed := tk.lexEscape()
			if consumed {
				out = append(out, b...)
			}
		case ch == '\r':
			// raw \r and \r\n collapse to \n.1
			if nxt, ok := tk.readByte(); !ok || nxt != '\n' {
				if ok {
					tk.unreadByte()
				}
			}
			out = append(out, '\n')
		default:
			out = append(out, ch)
		}
	}
	return Token{Kind: StringLit, Bytes: out}, nil
}

// lexEscape lexes the bytes following a literal-string backslash.
// consumed is false only for a trailing backslash at EOF.
func (tk *Tokenizer) lexEscape() (out []byte, consumed bool) {
	ch, ok := tk.readByte()
	if !ok {
		return nil, false
	}
	switch ch {
	case 'n':
		return []byte{'\n'}, true
	case 'r':
		return []byte{'\r'}, true
	case 't':
		return []byte{'\t'}, true
	case 'b':
		return []byte{'\b'}, true
	case 'f':
		return []byte{'\f'}, true
	case '(', ')', '\\':
		return []byte{ch}, true
	case '\r':
		// line-continuation: \<CR> or \<CR><LF> is swallowed entirely
		if nxt, ok := tk.readByte(); ok && nxt != '\n' {
			tk.unreadByte()
		}
		return nil, true
	case '\n':
		return nil, true
	default:
		if ch < '0' || ch > '7' {
			return []byte{ch}, true
		}
		val := ch - '0'
		for i := 0; i < 2; i++ {
			c, ok := tk.readByte()
			if !ok || c < '0' || c > '7' {
				if ok {
					tk.unreadByte()
				}
				break
			}
			val = (val << 3) + (c - '0')
		}
		return []byte{val}, true
	}
}

func (tk *Tokenizer) lexNumber() (Token, bool) {
	markPos := tk.cur
	var sb []byte
	hasDigit := false

	c, ok := tk.readByte()
	if c == '+' || c == '-' {
		sb = append(sb, c)
		c, ok = tk.readByte()
	}
	for ok && isDigit(c) {
		sb = append(sb, c)
		hasDigit = true
		c, ok = tk.readByte()
	}
	isReal := false
	if c == '.' {
		isReal = true
		sb = append(sb, c)
		c, ok = tk.readByte()
		for ok && isDigit(c) {
			sb = append(sb, c)
			hasDigit = true
			c, ok = tk.readByte()
		}
	}
	if !hasDigit {
		tk.cur = markPos
		return Token{}, false
	}
	if ok {
		tk.unreadByte()
	}
	if isReal {
		if len(sb) > 0 && sb[len(sb)-1] == '.' {
			sb = append(sb, '0', '0') // trailing '.' becomes '.0'; second 0 trimmed below
			sb = sb[:len(sb)-1]
		}
		f, _ := parseFloatASCII(sb)
		return Token{Kind: Real, Real: f}, true
	}
	i, _ := parseIntASCII(sb)
	return Token{Kind: Integer, Int: i}, true
}

func parseIntASCII(b []byte) (int64, error) {
	neg := false
	i := 0
	if len(b) > 0 && (b[0] == '+' || b[0] == '-') {
		neg = b[0] == '-'
		i = 1
	}
	var v int64
	for ; i < len(b); i++ {
		v = v*10 + int64(b[i]-'0')
	}
	if neg {
		v = -v
	}
	return v, nil
}

func parseFloatASCII(b []byte) (float64, error) {
	neg := false
	i := 0
	if len(b) > 0 && (b[0] == '+' || b[0] == '-') {
		neg = b[0] == '-'
		i = 1
	}
	var ipart float64
	for ; i < len(b) && isDigit(b[i]); i++ {
		ipart = ipart*10 + float64(b[i]-'0')
	}
	var frac float64
	var scale float64 = 1
	if i < len(b) && b[i] == '.' {
		i++
		for ; i < len(b) && isDigit(b[i]); i++ {
			frac = frac*10 + float64(b[i]-'0')
			scale *= 10
		}
	}
	v := ipart + frac/scale
	if neg {
		v = -v
	}
	return v, nil
}

func (tk *Tokenizer) lexKeyword() (Token, error) {
	ch, ok := tk.readByte()
	if !ok {
		return Token{Kind: EOF}, nil
	}
	out := []byte{ch}
	for {
		c, ok := tk.readByte()
		if !ok || isDelimiter(c) {
			if ok {
				tk.unreadByte()
			}
			break
		}
		out = append(out, c)
	}
	switch string(out) {
	case "true":
		return Token{Kind: True}, nil
	case "false":
		return Token{Kind: False}, nil
	case "null":
		return Token{Kind: NullTok}, nil
	}
	return Token{Kind: Keyword, Bytes: out}, nil
}
