// Package serializer converts the types package's object model back into
// PDF syntax bytes. Grounded on model/write.go's pdfWriter (WriteObject,
// WriteStream, EncodeString, writeHeader/writeFooter) and
// model/writeutils.go's FmtFloat/DateTimeString, generalized from "build
// one fresh file, objects numbered as they are discovered" into "emit any
// already-numbered object, recursively, with self-reference short
// circuiting and an optional encryption hook" so that a Serializer can be
// driven by document.Document.Write's existing revision/xref bookkeeping
// instead of owning its own object-numbering cache.
package serializer

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/hexapdf-go/hexacore/internal/pdfdocenc"
	"github.com/hexapdf-go/hexacore/types"
)

// Encryptor transforms the plaintext bytes of a string or stream body
// belonging to the indirect object ref before they are written. A nil
// Encryptor leaves strings and streams in the clear.
type Encryptor interface {
	Crypt(ref types.Reference, data []byte) ([]byte, error)
}

// Serializer emits PDF syntax for object trees. The zero value is usable
// (no encryption, no self-reference context).
type Serializer struct {
	// Encrypt, if set, is consulted for every string and stream body
	// written while an indirect object is being serialized.
	Encrypt Encryptor

	current    types.Reference
	inIndirect bool
}

var utf16Enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)

var literalReplacer = strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)", "\r", "\\r")

// Serialize writes obj with no enclosing indirect-object context: strings
// are never encrypted and a self-referencing IndirectObject cannot be
// short-circuited. Use WriteIndirect to serialize a top-level object
// under its own (oid, gen).
func (s *Serializer) Serialize(w io.Writer, obj types.Object) error {
	return s.writeValue(w, obj, types.Reference{})
}

// WriteIndirect writes "oid gen obj\n<value>\nendobj\n", recording
// (oid, gen) as the "currently being serialized" handle so that the
// object's own identity, if it recurs inside its own value tree, is
// emitted as a reference instead of looping.
func (s *Serializer) WriteIndirect(w io.Writer, obj types.IndirectObject) error {
	ref := types.Reference{Oid: obj.Oid, Gen: uint16(obj.Gen)}

	prevRef, prevIn := s.current, s.inIndirect
	s.current, s.inIndirect = ref, true
	defer func() { s.current, s.inIndirect = prevRef, prevIn }()

	if _, err := fmt.Fprintf(w, "%d %d obj\n", obj.Oid, obj.Gen); err != nil {
		return err
	}
	if err := s.writeValue(w, obj.Obj, ref); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendobj\n")
	return err
}

// WriteHeader writes the "%PDF-X.Y" banner followed by a binary-marker
// comment line, matching output.writeHeader.
func (s *Serializer) WriteHeader(w io.Writer, version string) error {
	if _, err := fmt.Fprintf(w, "%%PDF-%s\n", version); err != nil {
		return err
	}
	_, err := w.Write([]byte{'%', 200, 200, 200, 200, '\n'})
	return err
}

// WriteXRefAndTrailer writes a classic (table-based) cross-reference
// section plus trailer dictionary for the given oid->byte-offset map,
// followed by startxref/%%EOF. It assumes a single, non-incremental
// subsection starting at object 0 (the free-list head); a document with
// gaps in its object numbering or carrying forward a Prev chain needs a
// richer subsectioning scheme than this exercise's write path requires.
func (s *Serializer) WriteXRefAndTrailer(w io.Writer, offsets map[uint32]int64, trailer map[types.Name]types.Object, startOfThisSection int64) error {
	oids := make([]uint32, 0, len(offsets))
	for oid := range offsets {
		oids = append(oids, oid)
	}
	sort.Slice(oids, func(i, j int) bool { return oids[i] < oids[j] })

	var b bytes.Buffer
	b.WriteString("xref\n")
	fmt.Fprintf(&b, "0 %d\n", len(oids)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, oid := range oids {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[oid])
	}
	b.WriteString("trailer\n")

	dict := types.NewDictionary()
	for _, k := range sortedNames(trailer) {
		dict.Set(k, trailer[k])
	}
	if err := s.writeDict(&b, dict, types.Reference{}); err != nil {
		return err
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "startxref\n%d\n%%%%EOF", startOfThisSection)

	_, err := w.Write(b.Bytes())
	return err
}

func sortedNames(m map[types.Name]types.Object) []types.Name {
	out := make([]types.Name, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Serializer) writeValue(w io.Writer, obj types.Object, ref types.Reference) error {
	switch v := obj.(type) {
	case types.Null:
		_, err := io.WriteString(w, "null")
		return err
	case types.Boolean, types.Integer:
		_, err := io.WriteString(w, v.String())
		return err
	case types.Real:
		return s.writeReal(w, v)
	case types.Name:
		return writeName(w, v)
	case types.String:
		return s.writeString(w, v, ref)
	case types.Reference:
		_, err := io.WriteString(w, v.String())
		return err
	case types.Array:
		return s.writeArray(w, v, ref)
	case *types.Dictionary:
		return s.writeDict(w, v, ref)
	case *types.Stream:
		return s.writeStream(w, v, ref)
	case types.IndirectObject:
		if v.IsIndirect() && v.Reference() == ref {
			_, err := io.WriteString(w, v.Reference().String())
			return err
		}
		return s.writeValue(w, v.Obj, ref)
	default:
		return fmt.Errorf("serializer: unsupported object type %T", obj)
	}
}

// writeReal implements the rounding rule: values with magnitude below
// 1e-4 are rendered as a fixed 6-decimal sprintf so they do not collapse
// to "0" or switch to scientific notation; everything else is rounded to
// 6 decimal places with trailing zeros stripped. A Real is always
// written with a decimal point even when its value is integral (5.0, not
// 5), since a bare "5" would tokenize as an Integer and break the
// round-trip law.
func (s *Serializer) writeReal(w io.Writer, r types.Real) error {
	f := float64(r)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("serializer: non-finite real cannot be serialized: %v", f)
	}
	var formatted string
	switch {
	case f == 0:
		formatted = "0"
	case math.Abs(f) < 1e-4:
		formatted = fmt.Sprintf("%.6f", f)
	default:
		rounded := math.Round(f*1e6) / 1e6
		formatted = strconv.FormatFloat(rounded, 'f', -1, 64)
	}
	if !strings.Contains(formatted, ".") {
		formatted += ".0"
	}
	_, err := io.WriteString(w, formatted)
	return err
}

// isDelimiter reports whether b is one of the PDF syntax delimiter
// characters, which are self-terminating tokens on their own.
func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isWhitespace(b byte) bool {
	switch b {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

// writeName hex-escapes every byte outside the regular-character range
// (or that is itself '#'), per the Name serialization rule. An empty
// name is written as "/ " so the following token is not swallowed by a
// bare trailing slash.
func writeName(w io.Writer, n types.Name) error {
	if len(n) == 0 {
		_, err := io.WriteString(w, "/ ")
		return err
	}
	var b bytes.Buffer
	b.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c == '#' || c < '!' || c > '~' || isDelimiter(c) || isWhitespace(c) {
			fmt.Fprintf(&b, "#%02X", c)
		} else {
			b.WriteByte(c)
		}
	}
	_, err := w.Write(b.Bytes())
	return err
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

func escapeLiteral(b []byte) []byte {
	return []byte("(" + literalReplacer.Replace(string(b)) + ")")
}

// writeString picks the PDF text-string encoding for a Textual string:
// PDFDocEncoding when every rune is representable in it (the common
// case for Latin text), else UTF-16BE with a leading BOM. Plain ASCII
// text strings are left alone, since PDFDocEncoding's low half is ASCII
// anyway. Binary strings are never transcoded. The (possibly nil)
// encryption hook runs after transcoding, then literal-string escaping.
func (s *Serializer) writeString(w io.Writer, str types.String, ref types.Reference) error {
	data := str.Bytes
	if str.Encoding == types.Textual && !isASCII(data) {
		if enc, ok := pdfdocenc.Encode(string(data)); ok {
			data = enc
		} else {
			encoded, err := utf16Enc.NewEncoder().Bytes(data)
			if err != nil {
				return fmt.Errorf("serializer: encoding text string: %w", err)
			}
			data = encoded
		}
	}
	if s.Encrypt != nil && s.inIndirect {
		encrypted, err := s.Encrypt.Crypt(ref, append([]byte(nil), data...))
		if err != nil {
			return fmt.Errorf("serializer: encrypting string: %w", err)
		}
		data = encrypted
	}
	_, err := w.Write(escapeLiteral(data))
	return err
}

// isCloser/isOpener implement the delimiter-aware spacing rule shared by
// Array and Dictionary: a space is needed between two adjacent tokens
// only when neither side is already self-delimiting.
func isCloser(b byte) bool { return b == ')' || b == ']' || b == '>' }
func isOpener(b byte) bool { return b == '(' || b == '[' || b == '<' || b == '/' }

func joinTokens(toks []string) string {
	var b bytes.Buffer
	for i, t := range toks {
		if i > 0 {
			left := toks[i-1][len(toks[i-1])-1]
			right := t[0]
			if !isCloser(left) && !isOpener(right) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(t)
	}
	return b.String()
}

func (s *Serializer) writeArray(w io.Writer, a types.Array, ref types.Reference) error {
	toks := make([]string, len(a))
	for i, el := range a {
		var buf bytes.Buffer
		if err := s.writeValue(&buf, el, ref); err != nil {
			return err
		}
		toks[i] = buf.String()
	}
	_, err := fmt.Fprintf(w, "[%s]", joinTokens(toks))
	return err
}

// writeDict omits Null-valued pairs, per the Dictionary rule.
func (s *Serializer) writeDict(w io.Writer, d *types.Dictionary, ref types.Reference) error {
	var toks []string
	for _, k := range d.Keys() {
		v, _ := d.Get(k)
		if types.IsNull(v) {
			continue
		}
		var kb bytes.Buffer
		if err := writeName(&kb, k); err != nil {
			return err
		}
		var vb bytes.Buffer
		if err := s.writeValue(&vb, v, ref); err != nil {
			return err
		}
		toks = append(toks, kb.String(), vb.String())
	}
	_, err := fmt.Fprintf(w, "<<%s>>", joinTokens(toks))
	return err
}

// writeStream recomputes Length to match the (possibly now-encrypted)
// encoded byte length before writing the dictionary, matching
// pdfWriter.WriteStream's "adjust Length, then write" ordering.
func (s *Serializer) writeStream(w io.Writer, st *types.Stream, ref types.Reference) error {
	data := st.RawBytes
	if s.Encrypt != nil && s.inIndirect {
		encrypted, err := s.Encrypt.Crypt(ref, append([]byte(nil), data...))
		if err != nil {
			return fmt.Errorf("serializer: encrypting stream: %w", err)
		}
		data = encrypted
	}
	st.Dict.Set("Length", types.Integer(len(data)))

	if err := s.writeDict(w, st.Dict, ref); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\nstream\n"); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendstream")
	return err
}

// FormatTime renders t using the PDF date-string rule: D:YYYYMMDDHHMMSS
// followed by a +HH'MM' (or -HH'MM') offset suffix, or no suffix at all
// for UTC.
func FormatTime(t time.Time) string {
	_, offset := t.Zone()
	if offset == 0 {
		return t.Format("D:20060102150405")
	}
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	h, m := offset/3600, (offset%3600)/60
	return fmt.Sprintf("%s%s%02d'%02d'", t.Format("D:20060102150405"), sign, h, m)
}
