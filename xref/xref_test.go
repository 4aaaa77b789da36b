package xref

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddAndLookup(t *testing.T) {
	s := NewSection()
	s.Add(NewInUse(3, 0, 120))
	e, ok := s.Lookup(3)
	if !ok || e.Kind != InUse || e.Offset != 120 {
		t.Fatalf("got %+v, %v", e, ok)
	}
	if _, ok := s.Lookup(99); ok {
		t.Fatalf("expected miss")
	}
}

func TestDeleteHeadOfFreeList(t *testing.T) {
	s := NewSection()
	s.Add(NewFree(0, 65535))
	s.Add(NewInUse(1, 0, 10))
	s.DeleteHeadOfFreeList()
	if _, ok := s.Lookup(0); ok {
		t.Fatalf("expected oid 0 removed")
	}
	if s.Len() != 1 {
		t.Fatalf("got len %d", s.Len())
	}
}

func TestMergeNewerWins(t *testing.T) {
	older := NewSection()
	older.Add(NewInUse(1, 0, 10))
	older.Add(NewInUse(2, 0, 20))

	newer := NewSection()
	newer.Add(NewInUse(2, 0, 200))
	newer.Add(NewInUse(3, 0, 30))

	older.Merge(newer)
	e, _ := older.Lookup(2)
	if e.Offset != 200 {
		t.Fatalf("expected newer entry to win, got %+v", e)
	}
	if older.Len() != 3 {
		t.Fatalf("got len %d", older.Len())
	}
}

func TestSubsectionsSplitsOnGaps(t *testing.T) {
	s := NewSection()
	for _, oid := range []uint32{0, 1, 2, 5, 6, 10} {
		s.Add(NewInUse(oid, 0, int64(oid)*100))
	}
	want := []Subsection{
		{Start: 0, Entries: []Entry{NewInUse(0, 0, 0), NewInUse(1, 0, 100), NewInUse(2, 0, 200)}},
		{Start: 5, Entries: []Entry{NewInUse(5, 0, 500), NewInUse(6, 0, 600)}},
		{Start: 10, Entries: []Entry{NewInUse(10, 0, 1000)}},
	}
	if diff := cmp.Diff(want, s.Subsections()); diff != "" {
		t.Fatalf("subsections mismatch (-want +got):\n%s", diff)
	}
}

func TestCompressedEntryAlwaysHasZeroGen(t *testing.T) {
	e := NewCompressed(7, 4, 2)
	if e.Gen != 0 {
		t.Fatalf("expected gen 0 for compressed entry, got %d", e.Gen)
	}
	if e.StreamOid != 4 || e.IndexInStream != 2 {
		t.Fatalf("got %+v", e)
	}
}
