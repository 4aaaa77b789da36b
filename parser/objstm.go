package parser

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/hexapdf-go/hexacore/types"
)

// ObjectStreamEntry is one compressed object materialized out of an
// object stream.
type ObjectStreamEntry struct {
	Oid   uint32
	Value types.Object
}

// ParseObjectStream decodes every object embedded in stream: the
// stream's dictionary carries N (count) and First (byte offset of the
// first object's data within the decoded content); the first N
// whitespace-separated integer pairs in the prolog give each object's
// (oid, offset), and the i-th object's data runs from First+offset to the
// next such boundary (or end of stream). Ported near-verbatim from
// processObjectStream.
func (p *Parser) ParseObjectStream(stream *types.Stream) ([]ObjectStreamEntry, error) {
	n, ok := intEntry(stream.Dict, "N")
	if !ok {
		return nil, fmt.Errorf("parser: object stream missing N")
	}
	first, ok := intEntry(stream.Dict, "First")
	if !ok {
		return nil, fmt.Errorf("parser: object stream missing First")
	}
	if _, has := stream.Dict.Get("Extends"); has {
		return nil, fmt.Errorf("parser: chained object streams (Extends) are not supported")
	}

	decoded, err := p.decodeStream(stream)
	if err != nil {
		return nil, fmt.Errorf("parser: decoding object stream: %w", err)
	}
	if int(first) > len(decoded) {
		return nil, fmt.Errorf("parser: object stream First %d exceeds decoded length %d", first, len(decoded))
	}

	// The separator between prolog pairs is whitespace, but some writers
	// use 0x00 instead.
	prolog := bytes.ReplaceAll(decoded[:first], []byte{0x00}, []byte{' '})
	fields := bytes.Fields(prolog)
	if len(fields) < 2*int(n) {
		return nil, fmt.Errorf("parser: object stream prolog has %d fields, want at least %d", len(fields), 2*n)
	}

	oids := make([]uint32, n)
	offsets := make([]int, n)
	for i := int64(0); i < n; i++ {
		oid, err := strconv.ParseUint(string(fields[2*i]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parser: invalid object number in object stream prolog: %q", fields[2*i])
		}
		off, err := strconv.Atoi(string(fields[2*i+1]))
		if err != nil {
			return nil, fmt.Errorf("parser: invalid object offset in object stream prolog: %q", fields[2*i+1])
		}
		off += int(first)
		if off > len(decoded) {
			return nil, fmt.Errorf("parser: object stream offset %d exceeds decoded length %d", off, len(decoded))
		}
		oids[i] = uint32(oid)
		offsets[i] = off
	}

	out := make([]ObjectStreamEntry, n)
	for i := int64(0); i < n; i++ {
		start := offsets[i]
		end := len(decoded)
		if i+1 < n {
			end = offsets[i+1]
		}
		sub := New(bytes.NewReader(decoded[start:end]))
		val, err := sub.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("parser: parsing object %d in object stream: %w", oids[i], err)
		}
		if _, isStream := val.(*types.Stream); isStream {
			return nil, fmt.Errorf("parser: object stream entry %d is a stream, which is never valid", oids[i])
		}
		out[i] = ObjectStreamEntry{Oid: oids[i], Value: val}
	}
	return out, nil
}

func intEntry(dict *types.Dictionary, key types.Name) (int64, bool) {
	v, ok := dict.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(types.Integer)
	if !ok {
		return 0, false
	}
	return int64(n), true
}
