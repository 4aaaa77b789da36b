package document

import (
	"fmt"
	"io"
	"strings"

	"github.com/hexapdf-go/hexacore/config"
	"github.com/hexapdf-go/hexacore/internal/xlog"
	"github.com/hexapdf-go/hexacore/parser"
	"github.com/hexapdf-go/hexacore/types"
	"github.com/hexapdf-go/hexacore/xref"
)

// Open reads an existing PDF file from rs and returns a ready-to-use
// Document: the header version, the chain of cross-reference
// sections/streams reached by following startxref and each trailer's
// Prev offset, and a lazy per-revision Loader wired to a shared Parser.
// A nil cfg installs config.Default(); TryXRefReconstruction governs
// whether a missing or corrupt xref section falls back to a full-file
// object scan instead of failing outright.
//
// Grounded on reader/file/read.go's headerVersion and
// context.buildXRefTableStartingAt: the header-version sniff, the
// backward startxref search, and the Prev-offset walk with a
// visited-offsets cycle guard are reworked from "flatten every
// generation into one map as we go" into "keep each generation as its
// own Revision, oldest first", matching this package's Revisions model.
func Open(rs io.ReadSeeker, cfg *config.Config) (*Document, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	version, err := headerVersion(rs)
	if err != nil {
		return nil, err
	}

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("document: seeking to end of file: %w", err)
	}

	p := parser.New(rs)
	osc := &objStreamCache{parser: p, cache: map[uint32][]parser.ObjectStreamEntry{}}

	offset, err := p.StartxrefOffset(size, 0)
	if err != nil {
		return openReconstructed(p, osc, cfg, version, fmt.Errorf("locating startxref: %w", err))
	}

	var sections []*xref.Section
	var trailers []parser.Trailer
	seen := map[int64]bool{}

	for offset != 0 {
		if seen[offset] {
			break
		}
		seen[offset] = true

		section, trailer, err := p.ParseXRefSectionAndTrailer(offset)
		if err != nil {
			return openReconstructed(p, osc, cfg, version, fmt.Errorf("parsing cross-reference section at %d: %w", offset, err))
		}

		sections = append(sections, section)
		trailers = append(trailers, trailer)
		offset = trailer.Prev
	}

	if len(sections) == 0 {
		return openReconstructed(p, osc, cfg, version, fmt.Errorf("no cross-reference section found"))
	}

	revisions := &Revisions{}
	osc.revisions = revisions

	// sections/trailers were collected newest-first, following Prev;
	// Revisions wants oldest first.
	for i := len(sections) - 1; i >= 0; i-- {
		revisions.Append(NewRevision(sections[i], trailers[i], osc.load))
	}

	doc := New(revisions, version)
	doc.SetConfig(cfg)
	return doc, nil
}

// openReconstructed is the fallback path taken when the xref chain
// cannot be followed at all: it abandons incremental structure and
// builds a single synthetic revision from a full-file scan for
// "oid gen obj" declarations, per ReconstructRevision.
func openReconstructed(p *parser.Parser, osc *objStreamCache, cfg *config.Config, version string, cause error) (*Document, error) {
	if !cfg.TryXRefReconstruction {
		return nil, fmt.Errorf("document: %w", cause)
	}
	xlog.Warn(cfg.Logger, "cross-reference section unusable, reconstructing from object declarations", "err", cause)

	section, trailer, err := p.ReconstructRevision()
	if err != nil {
		return nil, fmt.Errorf("document: reconstructing cross-reference section: %w (original cause: %v)", err, cause)
	}

	revisions := &Revisions{}
	osc.revisions = revisions
	revisions.Append(NewRevision(section, trailer, osc.load))

	doc := New(revisions, version)
	doc.SetConfig(cfg)
	return doc, nil
}

// objStreamCache wires a shared Parser and the owning Revisions into a
// Loader, decoding each compressed object's object stream at most once
// regardless of how many of its entries are later requested.
type objStreamCache struct {
	parser    *parser.Parser
	revisions *Revisions
	cache     map[uint32][]parser.ObjectStreamEntry
}

func (c *objStreamCache) load(entry xref.Entry) (types.Object, error) {
	switch entry.Kind {
	case xref.InUse:
		ind, err := c.parser.ParseIndirectObject(entry.Offset)
		if err != nil {
			return nil, err
		}
		return ind.Obj, nil
	case xref.Compressed:
		entries, ok := c.cache[entry.StreamOid]
		if !ok {
			streamObj, err := c.revisions.Object(entry.StreamOid)
			if err != nil {
				return nil, fmt.Errorf("loading object stream %d: %w", entry.StreamOid, err)
			}
			stream, ok := streamObj.(*types.Stream)
			if !ok {
				return nil, fmt.Errorf("object %d is not a stream, cannot hold compressed objects", entry.StreamOid)
			}
			entries, err = c.parser.ParseObjectStream(stream)
			if err != nil {
				return nil, fmt.Errorf("decoding object stream %d: %w", entry.StreamOid, err)
			}
			c.cache[entry.StreamOid] = entries
		}
		if entry.IndexInStream < 0 || entry.IndexInStream >= len(entries) {
			return nil, fmt.Errorf("object stream %d has no entry at index %d", entry.StreamOid, entry.IndexInStream)
		}
		return entries[entry.IndexInStream].Value, nil
	default:
		return types.Null{}, nil
	}
}

// headerVersion sniffs the "%PDF-X.X" banner from the first line of the
// file, ported from reader/file/read.go's headerVersion.
func headerVersion(rs io.ReadSeeker) (string, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("document: seeking to start of file: %w", err)
	}
	buf := make([]byte, 100)
	n, err := rs.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("document: reading header: %w", err)
	}
	buf = buf[:n]

	const prefix = "%PDF-"
	s := string(buf)
	if len(s) < len(prefix)+3 || !strings.HasPrefix(s, prefix) {
		return "", fmt.Errorf("document: missing %%PDF- header")
	}
	return s[len(prefix) : len(prefix)+3], nil
}
