package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/hexapdf-go/hexacore/types"
)

func TestParseObjectStream(t *testing.T) {
	objectsData := "42 /Name"
	prolog := "1 0 5 3 "
	decoded := prolog + objectsData

	src := fmt.Sprintf("4 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n",
		len(prolog), len(decoded), decoded)

	p := New(strings.NewReader(src))
	ind, err := p.ParseIndirectObject(0)
	if err != nil {
		t.Fatalf("parse indirect object: %v", err)
	}
	stream, ok := ind.Obj.(*types.Stream)
	if !ok {
		t.Fatalf("got %T, want *types.Stream", ind.Obj)
	}

	entries, err := p.ParseObjectStream(stream)
	if err != nil {
		t.Fatalf("parse object stream: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Oid != 1 || entries[0].Value != types.Integer(42) {
		t.Fatalf("entry 0: got %+v", entries[0])
	}
	if entries[1].Oid != 5 || entries[1].Value != types.Name("Name") {
		t.Fatalf("entry 1: got %+v", entries[1])
	}
}

func TestParseObjectStreamWithNullSeparatedProlog(t *testing.T) {
	objectsData := "7"
	prolog := "3\x000\x00" // 0x00 used as separator instead of whitespace
	decoded := prolog + objectsData

	src := fmt.Sprintf("4 0 obj\n<< /Type /ObjStm /N 1 /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n",
		len(prolog), len(decoded), decoded)

	p := New(strings.NewReader(src))
	ind, err := p.ParseIndirectObject(0)
	if err != nil {
		t.Fatalf("parse indirect object: %v", err)
	}
	entries, err := p.ParseObjectStream(ind.Obj.(*types.Stream))
	if err != nil {
		t.Fatalf("parse object stream: %v", err)
	}
	if len(entries) != 1 || entries[0].Oid != 3 || entries[0].Value != types.Integer(7) {
		t.Fatalf("got %+v", entries)
	}
}

func TestParseObjectStreamRejectsExtends(t *testing.T) {
	src := "4 0 obj\n<< /Type /ObjStm /N 0 /First 0 /Length 0 /Extends 9 0 R >>\nstream\n\nendstream\nendobj\n"
	p := New(strings.NewReader(src))
	ind, err := p.ParseIndirectObject(0)
	if err != nil {
		t.Fatalf("parse indirect object: %v", err)
	}
	if _, err := p.ParseObjectStream(ind.Obj.(*types.Stream)); err == nil {
		t.Fatalf("expected error for Extends")
	}
}
