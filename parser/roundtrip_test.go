package parser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hexapdf-go/hexacore/serializer"
	"github.com/hexapdf-go/hexacore/types"
)

// TestSerializeThenParseRoundTripsObjectTree serializes a nested
// Array/Dictionary/String/Reference tree and reparses the result,
// asserting the two trees are deep-equal via go-cmp rather than
// field-by-field, since the tree is recursive and several branches carry
// slices of interfaces.
func TestSerializeThenParseRoundTripsObjectTree(t *testing.T) {
	dict := types.NewDictionary()
	dict.Set("Name", types.Name("Widget"))
	dict.Set("Count", types.Integer(7))
	dict.Set("Ref", types.Reference{Oid: 9, Gen: 0})

	want := types.Array{
		types.Integer(1),
		types.Real(2.5),
		types.Real(5), // integral Real: must stay lexically distinct from an Integer
		types.String{Bytes: []byte("hi there"), Encoding: types.Binary},
		dict,
	}

	var buf bytes.Buffer
	if err := new(serializer.Serializer).Serialize(&buf, want); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	p := New(strings.NewReader(buf.String()))
	got, err := p.ParseObject()
	if err != nil {
		t.Fatalf("parse %q: %v", buf.String(), err)
	}

	// Dictionary keeps its key-order slice unexported, so compare it by
	// its own ordered Keys()/Get rather than asking cmp to reach into it.
	dictsEqual := cmp.Comparer(func(a, b *types.Dictionary) bool {
		ak, bk := a.Keys(), b.Keys()
		if len(ak) != len(bk) {
			return false
		}
		for i, k := range ak {
			if k != bk[i] {
				return false
			}
			av, _ := a.Get(k)
			bv, _ := b.Get(k)
			if av != bv {
				return false
			}
		}
		return true
	})

	if diff := cmp.Diff(want, got, dictsEqual); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
