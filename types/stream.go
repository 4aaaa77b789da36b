package types

import "strconv"

// Stream is a Dictionary plus the raw (still filter-encoded) bytes that
// follow it in the file, or that were set programmatically. Decoding is
// lazy and is not this package's concern: the filter pipeline (package
// filter) and the parser/document layers own turning RawBytes into
// application data, since that requires resolving DecodeParms references
// and choosing filter implementations. Keeping Stream itself filter-agnostic
// avoids an import cycle between types and filter.
type Stream struct {
	Dict *Dictionary
	// RawBytes holds the encoded stream payload exactly as read from (or
	// to be written to) the file: no filters have been applied.
	RawBytes []byte
}

// NewStream wraps dict and raw bytes into a Stream. It neither sets nor
// checks dict's Length entry; the serializer recomputes Length from the
// bytes it writes.
func NewStream(dict *Dictionary, raw []byte) *Stream {
	return &Stream{Dict: dict, RawBytes: raw}
}

func (s *Stream) Value() Object { return s }

func (s *Stream) Clone() Object {
	raw := make([]byte, len(s.RawBytes))
	copy(raw, s.RawBytes)
	dict := s.Dict.Clone().(*Dictionary)
	return &Stream{Dict: dict, RawBytes: raw}
}

func (s *Stream) String() string {
	return s.Dict.String() + " stream(" + strconv.Itoa(len(s.RawBytes)) + " bytes)"
}
