package parser

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/hexapdf-go/hexacore/filter"
	"github.com/hexapdf-go/hexacore/tokenizer"
	"github.com/hexapdf-go/hexacore/types"
	"github.com/hexapdf-go/hexacore/xref"
)

// Trailer is the parsed content of a revision's trailer dictionary (a
// textual "trailer <<...>>" or a cross-reference stream's own
// dictionary). Fields absent from the source dict are
// left at their zero value.
type Trailer struct {
	Root              types.Object // indirect reference to the Catalog
	Info              types.Object // indirect reference, optional
	ID                types.Array
	Size              int
	Encrypt           types.Object
	AdditionalStreams types.Array

	Prev    int64 // byte offset of the previous xref section, 0 if none
	XRefStm int64 // byte offset of a hybrid-file xref stream, 0 if none
}

// StartxrefOffset finds the file offset of the last cross-reference
// section by scanning backwards from fileSize for "startxref ... %%EOF",
// ported from offsetLastXRefSection. skip
// lets a caller re-search further back after a previously found offset
// turns out to be part of a cycle.
func (p *Parser) StartxrefOffset(fileSize, skip int64) (int64, error) {
	var bufSize int64 = 512
	if fileSize < bufSize {
		bufSize = fileSize
	}
	if bufSize <= 0 {
		return 0, fmt.Errorf("parser: empty input, no startxref")
	}

	var prevBuf, workBuf []byte
	for i := int64(1); ; i++ {
		at := -i*bufSize - skip
		pos, err := p.src.Seek(at, io.SeekEnd)
		if err != nil {
			return 0, fmt.Errorf("parser: can't find startxref: %w", err)
		}
		cur := make([]byte, bufSize)
		n, _ := io.ReadFull(p.src, cur)
		cur = cur[:n]

		workBuf = append(cur, prevBuf...)
		j := bytes.LastIndex(workBuf, []byte("startxref"))
		if j == -1 {
			prevBuf = cur
			if pos <= 0 {
				return 0, fmt.Errorf("parser: no startxref keyword found")
			}
			continue
		}

		rest := workBuf[j+len("startxref"):]
		eof := bytes.Index(rest, []byte("%%EOF"))
		if eof == -1 {
			return 0, fmt.Errorf("parser: no matching %%%%EOF for startxref")
		}
		rest = bytes.TrimSpace(rest[:eof])
		offset, err := strconv.ParseInt(string(rest), 10, 64)
		if err != nil || offset < 0 || offset >= fileSize {
			return 0, fmt.Errorf("parser: corrupt startxref offset %q", rest)
		}
		return offset, nil
	}
}

// ParseXRefSectionAndTrailer parses one cross-reference section at
// offset — textual ("xref\n0 3\n...trailer<<...>>") or a cross-reference
// stream — and its trailer. It does not follow Prev
// chains; callers (document.Revisions) drive that loop.
func (p *Parser) ParseXRefSectionAndTrailer(offset int64) (*xref.Section, Trailer, error) {
	p.tk.SetPos(offset)
	peek, err := p.tk.PeekToken()
	if err != nil {
		return nil, Trailer{}, err
	}
	if peek.IsKeyword("xref") {
		return p.parseTextualXRefSection()
	}
	return p.parseXRefStreamSection(offset)
}

func (p *Parser) parseTextualXRefSection() (*xref.Section, Trailer, error) {
	p.tk.NextToken() // consume "xref"
	section := xref.NewSection()
	ssCount := 0
	for {
		ok, err := p.parseXRefSubsection(section)
		if err != nil {
			return nil, Trailer{}, err
		}
		if !ok {
			break
		}
		ssCount++
		next, err := p.tk.PeekToken()
		if err != nil {
			return nil, Trailer{}, err
		}
		if next.IsKeyword("trailer") {
			break
		}
	}
	p.tk.NextToken() // consume "trailer"

	obj, err := p.ParseObject()
	if err != nil {
		return nil, Trailer{}, fmt.Errorf("parser: trailer dict: %w", err)
	}
	dict, ok := obj.(*types.Dictionary)
	if !ok {
		return nil, Trailer{}, fmt.Errorf("parser: expected trailer dictionary, got %T", obj)
	}

	// Hack for HP scanner output: a
	// single subsection that omits object 0 is shifted down by one.
	if ssCount == 1 {
		if _, has := section.Lookup(0); !has {
			shifted := xref.NewSection()
			for _, oid := range section.Oids() {
				if oid == 0 {
					continue
				}
				e, _ := section.Lookup(oid)
				e.Oid = oid - 1
				shifted.Add(e)
			}
			section = shifted
		}
	}

	trailer, err := p.parseTrailerDict(dict)
	return section, trailer, err
}

func (p *Parser) parseXRefSubsection(section *xref.Section) (bool, error) {
	startTok, err := p.tk.PeekToken()
	if err != nil {
		return false, err
	}
	if startTok.Kind != tokenizer.Integer {
		return false, nil
	}
	p.tk.NextToken()
	countTok, err := p.tk.NextToken()
	if err != nil {
		return false, err
	}
	if countTok.Kind != tokenizer.Integer {
		return false, fmt.Errorf("parser: expected subsection object count, got %v", countTok)
	}
	start, count := uint32(startTok.Int), countTok.Int
	for i := int64(0); i < count; i++ {
		offTok, err := p.tk.NextToken()
		if err != nil {
			return false, err
		}
		genTok, err := p.tk.NextToken()
		if err != nil {
			return false, err
		}
		kindTok, err := p.tk.NextToken()
		if err != nil {
			return false, err
		}
		if offTok.Kind != tokenizer.Integer || genTok.Kind != tokenizer.Integer ||
			!(kindTok.IsKeyword("n") || kindTok.IsKeyword("f")) {
			return false, fmt.Errorf("parser: corrupt xref subsection entry at object %d", start+uint32(i))
		}
		oid := start + uint32(i)
		if kindTok.IsKeyword("f") {
			section.Add(xref.NewFree(oid, uint16(genTok.Int)))
			continue
		}
		if offTok.Int == 0 {
			continue // skip a bogus in-use entry at offset 0
		}
		if _, exists := section.Lookup(oid); exists {
			continue // earlier (more recent) subsection already set this
		}
		section.Add(xref.NewInUse(oid, uint16(genTok.Int), offTok.Int))
	}
	return true, nil
}

func (p *Parser) parseTrailerDict(dict *types.Dictionary) (Trailer, error) {
	var t Trailer

	if size, ok := dict.Get("Size"); ok {
		if n, ok := p.offsetFromObject(size); ok {
			t.Size = int(n)
		}
	}
	if root, ok := dict.Get("Root"); ok {
		t.Root = root
	}
	if info, ok := dict.Get("Info"); ok {
		t.Info = info
	}
	if id, ok := dict.Get("ID"); ok {
		if arr, ok := id.(types.Array); ok {
			t.ID = arr
		}
	}
	if enc, ok := dict.Get("Encrypt"); ok {
		t.Encrypt = enc
	}
	if streams, ok := dict.Get("AdditionalStreams"); ok {
		if arr, ok := streams.(types.Array); ok {
			t.AdditionalStreams = arr
		}
	}

	if prev, ok := dict.Get("Prev"); ok {
		t.Prev, _ = p.offsetFromObject(prev)
	}
	if xrefStm, ok := dict.Get("XRefStm"); ok {
		if n, ok := xrefStm.(types.Integer); ok {
			t.XRefStm = int64(n)
		}
	}
	return t, nil
}

// offsetFromObject accepts either a direct Integer or an indirect
// reference to one (some non-conforming writers emit "/Prev NNN 0 R").
func (p *Parser) offsetFromObject(o types.Object) (int64, bool) {
	switch v := o.(type) {
	case types.Integer:
		return int64(v), true
	case types.Reference:
		if p.ResolveInt == nil {
			return 0, false
		}
		return p.ResolveInt(v)
	default:
		return 0, false
	}
}

// xrefStreamDict is the parsed W/Index/Size/Length header of a
// cross-reference stream.
type xrefStreamDict struct {
	w      [3]int
	index  [][2]int
	size   int
	length int64
}

func (x xrefStreamDict) entrySize() int { return x.w[0] + x.w[1] + x.w[2] }

func (x xrefStreamDict) count() int {
	n := 0
	for _, sub := range x.index {
		n += sub[1]
	}
	return n
}

func (p *Parser) parseXRefStreamSection(offset int64) (*xref.Section, Trailer, error) {
	ind, err := p.ParseIndirectObject(offset)
	if err != nil {
		return nil, Trailer{}, fmt.Errorf("parser: xref stream: %w", err)
	}
	stream, ok := ind.Obj.(*types.Stream)
	if !ok {
		return nil, Trailer{}, fmt.Errorf("parser: expected xref stream object, got %T", ind.Obj)
	}

	xd, err := parseXRefStreamDict(stream.Dict)
	if err != nil {
		return nil, Trailer{}, err
	}

	decoded, err := p.decodeStream(stream)
	if err != nil {
		return nil, Trailer{}, fmt.Errorf("parser: decoding xref stream: %w", err)
	}

	section, err := extractXRefEntriesFromXRefStream(decoded, xd)
	if err != nil {
		return nil, Trailer{}, err
	}

	if _, has := section.Lookup(ind.Oid); !has {
		section.Add(xref.NewInUse(ind.Oid, uint16(ind.Gen), offset))
	}

	trailer, err := p.parseTrailerDict(stream.Dict)
	return section, trailer, err
}

func parseXRefStreamDict(dict *types.Dictionary) (xrefStreamDict, error) {
	var out xrefStreamDict

	length, ok := dict.Get("Length")
	if !ok {
		return out, fmt.Errorf("parser: xref stream missing Length")
	}
	if n, ok := length.(types.Integer); ok {
		out.length = int64(n)
	}

	size, ok := dict.Get("Size")
	if !ok {
		return out, fmt.Errorf("parser: xref stream missing Size")
	}
	n, ok := size.(types.Integer)
	if !ok {
		return out, fmt.Errorf("parser: xref stream Size is not an integer")
	}
	out.size = int(n)

	if idx, ok := dict.Get("Index"); ok {
		arr, ok := idx.(types.Array)
		if !ok || len(arr)%2 != 0 {
			return out, fmt.Errorf("parser: corrupt xref stream Index entry")
		}
		for i := 0; i < len(arr); i += 2 {
			start, ok1 := arr[i].(types.Integer)
			count, ok2 := arr[i+1].(types.Integer)
			if !ok1 || !ok2 {
				return out, fmt.Errorf("parser: corrupt xref stream Index entry")
			}
			out.index = append(out.index, [2]int{int(start), int(count)})
		}
	} else {
		out.index = [][2]int{{0, out.size}}
	}

	w, ok := dict.Get("W")
	if !ok {
		return out, fmt.Errorf("parser: xref stream missing W")
	}
	arr, ok := w.(types.Array)
	if !ok || len(arr) < 3 {
		return out, fmt.Errorf("parser: xref stream W must be an array of 3 integers")
	}
	for i := 0; i < 3; i++ {
		v, ok := arr[i].(types.Integer)
		if !ok || v < 0 {
			return out, fmt.Errorf("parser: xref stream W entry %d is invalid", i)
		}
		out.w[i] = int(v)
	}
	return out, nil
}

func bufToInt64(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// extractXRefEntriesFromXRefStream decodes a cross-reference stream's
// fixed-width binary records into xref.Entry values.5,
// ported from extractXRefTableEntriesFromXRefStream.
func extractXRefEntriesFromXRefStream(buf []byte, xd xrefStreamDict) (*xref.Section, error) {
	entrySize, count := xd.entrySize(), xd.count()
	if entrySize == 0 {
		return nil, fmt.Errorf("parser: xref stream has zero-width entries")
	}
	want := entrySize * count
	if len(buf) < want {
		return nil, fmt.Errorf("parser: corrupt xref stream: need %d bytes, have %d", want, len(buf))
	}
	buf = buf[:want]

	i1, i2, i3 := xd.w[0], xd.w[1], xd.w[2]
	section := xref.NewSection()

	j := 0
	for _, sub := range xd.index {
		first, n := uint32(sub[0]), sub[1]
		for i := 0; i < n; i++ {
			oid := first + uint32(i)
			rec := buf[j*entrySize : (j+1)*entrySize]

			typeField := int64(1) // default
			if i1 > 0 {
				typeField = bufToInt64(rec[:i1])
			}
			f2 := bufToInt64(rec[i1 : i1+i2])
			f3 := bufToInt64(rec[i1+i2 : i1+i2+i3])

			switch typeField {
			case 0:
				section.Add(xref.NewFree(oid, uint16(f3)))
			case 1:
				section.Add(xref.NewInUse(oid, uint16(f3), f2))
			case 2:
				section.Add(xref.NewCompressed(oid, uint32(f2), int(f3)))
			}
			j++
		}
	}
	return section, nil
}

// decodeStream reads a stream's raw bytes and runs them through its
// Filter/DecodeParms pipeline. Only single-filter streams are supported
// here, since cross-reference streams (the only streams this package
// decodes directly; application streams go through document+filter) are
// never chained per the PDF spec.
func (p *Parser) decodeStream(s *types.Stream) ([]byte, error) {
	name, parms, err := filterOf(s.Dict)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return s.RawBytes, nil
	}
	// Go through the chunked Decoder/ChunkSource contract rather than
	// calling filter.Decode directly: this package is a consumer, and the
	// pipeline's restartable-producer contract is meant to be exercised
	// by callers, not just available to them.
	src := filter.NewDecoder(name, s.RawBytes, parms, decodeChunkSize)()
	return filter.Drain(src)
}

// decodeChunkSize bounds how much decoded stream data decodeStream pulls
// out of a ChunkSource per Next call; it is not a correctness knob, only
// a throttle on how eagerly a consumer drains the producer.
const decodeChunkSize = 64 * 1024

func filterOf(dict *types.Dictionary) (string, *filter.Params, error) {
	f, ok := dict.Get("Filter")
	if !ok {
		return "", nil, nil
	}
	var name types.Name
	switch v := f.(type) {
	case types.Name:
		name = v
	case types.Array:
		if len(v) == 0 {
			return "", nil, nil
		}
		n, ok := v[0].(types.Name)
		if !ok {
			return "", nil, fmt.Errorf("parser: non-Name filter entry %v", v[0])
		}
		name = n
	default:
		return "", nil, fmt.Errorf("parser: Filter has unexpected type %T", f)
	}

	var params *filter.Params
	if dp, ok := dict.Get("DecodeParms"); ok {
		switch v := dp.(type) {
		case *types.Dictionary:
			params = paramsFromDict(v)
		case types.Array:
			if len(v) > 0 {
				if d, ok := v[0].(*types.Dictionary); ok {
					params = paramsFromDict(d)
				}
			}
		}
	}
	return string(name), params, nil
}

func paramsFromDict(d *types.Dictionary) *filter.Params {
	p := &filter.Params{}
	if v, ok := d.Get("Predictor"); ok {
		if n, ok := v.(types.Integer); ok {
			p.Predictor = int(n)
		}
	}
	if v, ok := d.Get("Colors"); ok {
		if n, ok := v.(types.Integer); ok {
			p.Colors = int(n)
		}
	}
	if v, ok := d.Get("BitsPerComponent"); ok {
		if n, ok := v.(types.Integer); ok {
			p.BitsPerComponent = int(n)
		}
	}
	if v, ok := d.Get("Columns"); ok {
		if n, ok := v.(types.Integer); ok {
			p.Columns = int(n)
		}
	}
	if v, ok := d.Get("EarlyChange"); ok {
		if n, ok := v.(types.Integer); ok {
			p.EarlyChange = int(n)
		}
	}
	return p
}

// ReconstructRevision rebuilds a Section and Trailer by scanning the
// entire input from byte 0 for "oid gen obj" declarations and a trailer
// dictionary, bypassing a corrupt or missing cross-reference section
// entirely, ported from bypassXrefSection + lineReader. Reconstruction
// only succeeds if the resulting trailer's Root resolves to an object
// number the scan actually found: a trailer with a missing or dangling
// Catalog reference is not a usable result, even if it parsed.
func (p *Parser) ReconstructRevision() (*xref.Section, Trailer, error) {
	section := xref.NewSection()
	section.Add(xref.NewFree(0, 65535))

	var candidates []Trailer

	p.tk.SetPos(0)
	for {
		startPos := p.tk.Pos()
		tok, err := p.tk.NextToken()
		if err != nil {
			return nil, Trailer{}, err
		}
		if tok.Kind == tokenizer.EOF {
			break
		}
		if tok.IsKeyword("trailer") {
			obj, err := p.ParseObject()
			if err != nil {
				continue // relaxed: a malformed trailer keeps the scan going
			}
			if dict, ok := obj.(*types.Dictionary); ok {
				if trailer, err := p.parseTrailerDict(dict); err == nil {
					candidates = append(candidates, trailer)
				}
			}
			continue
		}
		if tok.Kind != tokenizer.Integer {
			continue
		}
		genTok, err := p.tk.PeekToken()
		if err != nil || genTok.Kind != tokenizer.Integer {
			continue
		}
		p.tk.NextToken()
		objTok, err := p.tk.PeekToken()
		if err != nil || !objTok.IsKeyword("obj") {
			continue
		}
		p.tk.NextToken()

		oid, gen := uint32(tok.Int), uint16(genTok.Int)
		if _, exists := section.Lookup(oid); !exists {
			section.Add(xref.NewInUse(oid, gen, startPos))
		}

		// Skip to "endobj" so a stray number inside the object's own
		// content isn't mistaken for another declaration.
		for {
			t, err := p.tk.NextToken()
			if err != nil || t.Kind == tokenizer.EOF || t.IsKeyword("endobj") {
				break
			}
		}
	}

	// Prefer the trailer found latest in the file (the ordinary case: a
	// single trailer just before EOF), falling back to an earlier
	// candidate whose Root actually resolves against the complete scan.
	for i := len(candidates) - 1; i >= 0; i-- {
		ref, ok := candidates[i].Root.(types.Reference)
		if !ok {
			continue
		}
		if _, exists := section.Lookup(ref.Oid); exists {
			return section, candidates[i], nil
		}
	}
	return nil, Trailer{}, fmt.Errorf("parser: reconstruction found no trailer with a resolvable Catalog")
}
