package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hexapdf-go/hexacore/filter"
	"github.com/hexapdf-go/hexacore/types"
	"github.com/hexapdf-go/hexacore/xref"
)

func TestParseTextualXRefSectionAndTrailer(t *testing.T) {
	src := "xref\n" +
		"0 4\n" +
		"0000000000 65535 f \n" +
		"0000000010 00000 n \n" +
		"0000000020 00000 n \n" +
		"0000000030 00000 n \n" +
		"trailer\n" +
		"<< /Size 4 /Root 1 0 R >>\n"

	p := New(strings.NewReader(src))
	section, trailer, err := p.ParseXRefSectionAndTrailer(0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	e, ok := section.Lookup(1)
	if !ok || e.Kind != xref.InUse || e.Offset != 10 {
		t.Fatalf("oid 1: got %+v, %v", e, ok)
	}
	e, ok = section.Lookup(0)
	if !ok || e.Kind != xref.Free {
		t.Fatalf("oid 0: got %+v, %v", e, ok)
	}

	if trailer.Size != 4 {
		t.Fatalf("got size %d", trailer.Size)
	}
	ref, ok := trailer.Root.(types.Reference)
	if !ok || ref.Oid != 1 {
		t.Fatalf("got root %+v", trailer.Root)
	}
}

func TestParseTextualXRefSectionSkipsZeroOffsetEntry(t *testing.T) {
	src := "xref\n0 2\n0000000000 65535 f \n0000000000 00000 n \ntrailer\n<< /Size 2 >>\n"
	p := New(strings.NewReader(src))
	section, _, err := p.ParseXRefSectionAndTrailer(0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := section.Lookup(1); ok {
		t.Fatalf("expected oid 1 to be skipped (bogus offset 0)")
	}
}

func TestStartxrefOffset(t *testing.T) {
	src := "%PDF-1.7\n1 0 obj\n<<>>\nendobj\nxref\n0 1\n0000000000 65535 f \ntrailer\n<<>>\nstartxref\n9\n%%EOF"
	p := New(strings.NewReader(src))
	offset, err := p.StartxrefOffset(int64(len(src)), 0)
	if err != nil {
		t.Fatalf("startxref: %v", err)
	}
	if offset != 9 {
		t.Fatalf("got %d, want 9", offset)
	}
}

func TestParseXRefStreamSection(t *testing.T) {
	// three entries, W = [1 1 1]: oid0 free, oid1 in-use at offset 10,
	// oid2 compressed in stream 5 at index 2.
	raw := []byte{
		0x00, 0x00, 0xFF, // free, next free obj 0, gen 255
		0x01, 0x0A, 0x00, // in use, offset 10, gen 0
		0x02, 0x05, 0x02, // compressed, stream oid 5, index 2
	}
	encoded, err := filter.Encode(filter.Flate, raw, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	src := fmt.Sprintf("1 0 obj\n<< /Type /XRef /Length %d /W [1 1 1] /Size 3 /Filter /FlateDecode >>\nstream\n%s\nendstream\nendobj\n",
		len(encoded), string(encoded))

	p := New(strings.NewReader(src))
	section, trailer, err := p.ParseXRefSectionAndTrailer(0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	e, ok := section.Lookup(0)
	if !ok || e.Kind != xref.Free {
		t.Fatalf("oid 0: got %+v, %v", e, ok)
	}
	e, ok = section.Lookup(1)
	if !ok || e.Kind != xref.InUse || e.Offset != 10 {
		t.Fatalf("oid 1: got %+v, %v", e, ok)
	}
	e, ok = section.Lookup(2)
	if !ok || e.Kind != xref.Compressed || e.StreamOid != 5 || e.IndexInStream != 2 {
		t.Fatalf("oid 2: got %+v, %v", e, ok)
	}
	if trailer.Size != 3 {
		t.Fatalf("got size %d", trailer.Size)
	}
}

func TestReconstructRevisionScansWholeFile(t *testing.T) {
	src := "%PDF-1.7\n" +
		"1 0 obj\n<< /Type /Catalog >>\nendobj\n" +
		"2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n" +
		"trailer\n<< /Size 3 /Root 1 0 R >>\n"
	p := New(strings.NewReader(src))
	section, trailer, err := p.ReconstructRevision()
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if _, ok := section.Lookup(1); !ok {
		t.Fatalf("expected oid 1 found")
	}
	if _, ok := section.Lookup(2); !ok {
		t.Fatalf("expected oid 2 found")
	}
	ref, ok := trailer.Root.(types.Reference)
	if !ok || ref.Oid != 1 {
		t.Fatalf("got root %+v", trailer.Root)
	}
}

func TestReconstructRevisionFailsWithoutResolvableCatalog(t *testing.T) {
	src := "%PDF-1.7\n" +
		"2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n" +
		"trailer\n<< /Size 3 /Root 1 0 R >>\n"
	p := New(strings.NewReader(src))
	if _, _, err := p.ReconstructRevision(); err == nil {
		t.Fatalf("expected reconstruction to fail when Root does not resolve")
	}
}
