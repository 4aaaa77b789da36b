// Package document implements the layered Revision/Revisions model and
// the Document facade on top of the parser, xref and object-stream
// machinery: one Document is a chain of Revisions (oldest first), each
// owning a trailer, an xref section, and a cache of objects loaded from
// it. Grounded on reader/file.xRefTable/xrefEntry/resolveObjectNumber
// (the cache-and-lazy-resolve pattern) and context.buildXRefTableStartingAt
// (the Prev/XRefStm chain-following loop with a visited-offset cycle
// guard), generalized from a single flat object map into an explicit,
// ordered list of Revisions so that "newest wins, scanning newest to
// oldest" is a property of the data structure rather than an
// overwrite-in-place map.
package document

import (
	"fmt"

	"golang.org/x/exp/maps"

	"github.com/hexapdf-go/hexacore/parser"
	"github.com/hexapdf-go/hexacore/types"
	"github.com/hexapdf-go/hexacore/xref"
)

// Loader resolves one xref entry into the object it denotes. Revision
// dispatches In-use entries to parser.ParseIndirectObject, Compressed
// entries to parser.ParseObjectStream (via the owning Revisions, so that
// the decoded object stream itself can be cached), and Free entries to
// Null without ever calling the loader.
type Loader func(xref.Entry) (types.Object, error)

// Revision is one generation of a document: a trailer, an xref section,
// a loader, and an in-memory cache of objects already materialized from
// it. A Revision owns its parsed objects, sharing them by pointer/handle
// with the owning Document.
type Revision struct {
	Trailer parser.Trailer
	Section *xref.Section

	loader Loader
	cache  map[uint32]types.Object

	// nextOid caches one past the largest object number in this
	// revision's xref (lower unused numbers are not reused), the number
	// this revision's own inserts start from, independent of any sibling
	// revision; the
	// owning Revisions combines these via next_oid.
	nextOid uint32
}

// NewRevision wraps a parsed xref section and trailer with a loader
// function, ready for lazy object resolution.
func NewRevision(section *xref.Section, trailer parser.Trailer, loader Loader) *Revision {
	r := &Revision{
		Trailer: trailer,
		Section: section,
		loader:  loader,
		cache:   make(map[uint32]types.Object),
	}
	r.nextOid = r.computeNextFreeOid()
	return r
}

func (r *Revision) computeNextFreeOid() uint32 {
	var max uint32
	for _, oid := range r.Section.Oids() {
		if oid > max {
			max = oid
		}
	}
	return max + 1
}

// Object returns the value currently denoted by oid within this
// revision: Null if oid is unknown to this revision's xref, consulting
// the cache on hit and the loader on miss.
func (r *Revision) Object(oid uint32) (types.Object, error) {
	if v, ok := r.cache[oid]; ok {
		return v, nil
	}
	entry, ok := r.Section.Lookup(oid)
	if !ok {
		return types.Null{}, nil
	}
	if entry.Kind == xref.Free {
		r.cache[oid] = types.Null{}
		return types.Null{}, nil
	}
	// Assign Null before recursing so a cyclic/self-referential object
	// graph terminates instead of looping forever (resolveObjectNumber).
	r.cache[oid] = types.Null{}
	v, err := r.loader(entry)
	if err != nil {
		return nil, fmt.Errorf("document: loading object %d: %w", oid, err)
	}
	r.cache[oid] = v
	return v, nil
}

// Add inserts obj at a freshly allocated object number in this revision
// and returns it.
func (r *Revision) Add(obj types.Object) uint32 {
	oid := r.nextOid
	r.nextOid++
	r.Section.Add(xref.NewInUse(oid, 0, 0))
	r.cache[oid] = obj
	return oid
}

// Delete removes oid from this revision. markAsFree is accepted to
// mirror the Document-level contract (mark_as_free defaults to true);
// Section has no representation for "absent" short of a Free entry, so
// both cases turn oid into a Free entry, preserving the free-list
// skeleton instead of vanishing from the xref entirely.
func (r *Revision) Delete(oid uint32, markAsFree bool) {
	delete(r.cache, oid)
	r.Section.Add(xref.NewFree(oid, 0))
}

// NextFreeOid returns the next object number this revision would assign
// on Add.
func (r *Revision) NextFreeOid() uint32 { return r.nextOid }

// Each calls fn for every object number known to this revision's xref
// (cached or not yet loaded).
func (r *Revision) Each(fn func(oid uint32)) {
	for _, oid := range r.Section.Oids() {
		fn(oid)
	}
}

// Revisions is the ordered chain of Revision generations that make up a
// Document: oldest at index 0, newest last.
type Revisions struct {
	list []*Revision
}

// Current returns the newest revision, or nil if none have been loaded
// yet.
func (rs *Revisions) Current() *Revision {
	if len(rs.list) == 0 {
		return nil
	}
	return rs.list[len(rs.list)-1]
}

// Append adds rev as the newest revision (used both at parse time, for
// every generation on disk, and when appending an incremental update).
func (rs *Revisions) Append(rev *Revision) { rs.list = append(rs.list, rev) }

// Len returns the number of revisions.
func (rs *Revisions) Len() int { return len(rs.list) }

// At returns the i-th revision, oldest first.
func (rs *Revisions) At(i int) *Revision { return rs.list[i] }

// Object scans revisions newest-to-oldest, returning the value from the
// first one whose xref names oid.
func (rs *Revisions) Object(oid uint32) (types.Object, error) {
	for i := len(rs.list) - 1; i >= 0; i-- {
		if _, ok := rs.list[i].Section.Lookup(oid); ok {
			return rs.list[i].Object(oid)
		}
	}
	return nil, fmt.Errorf("document: object number %d is unknown in every revision", oid)
}

// NextOid returns max(rev.NextFreeOid() for every revision), so that a
// freshly assigned oid never collides with any object number already
// known anywhere in the chain.
func (rs *Revisions) NextOid() uint32 {
	var max uint32
	for _, r := range rs.list {
		if n := r.NextFreeOid(); n > max {
			max = n
		}
	}
	if max == 0 {
		return 1
	}
	return max
}

// Merge collapses revisions [from, to] (inclusive, oldest-first indices)
// into a single revision, newest entries winning per oid, and splices it
// back into the chain in place of the merged range.
func (rs *Revisions) Merge(from, to int) error {
	if from < 0 || to >= len(rs.list) || from > to {
		return fmt.Errorf("document: invalid revision merge range [%d,%d]", from, to)
	}
	merged := xref.NewSection()
	for i := from; i <= to; i++ {
		merged.Merge(rs.list[i].Section)
	}
	newest := rs.list[to]
	collapsed := &Revision{
		Trailer: newest.Trailer,
		Section: merged,
		loader:  newest.loader,
		cache:   make(map[uint32]types.Object),
	}
	for i := from; i <= to; i++ {
		maps.Copy(collapsed.cache, rs.list[i].cache)
	}
	collapsed.nextOid = collapsed.computeNextFreeOid()

	out := make([]*Revision, 0, len(rs.list)-(to-from))
	out = append(out, rs.list[:from]...)
	out = append(out, collapsed)
	out = append(out, rs.list[to+1:]...)
	rs.list = out
	return nil
}
