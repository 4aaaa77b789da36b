package document

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/hexapdf-go/hexacore/config"
	"github.com/hexapdf-go/hexacore/internal/xlog"
	"github.com/hexapdf-go/hexacore/parser"
	"github.com/hexapdf-go/hexacore/types"
	"github.com/hexapdf-go/hexacore/xref"
)

func newDocFromObjects(objects map[uint32]types.Object, root types.Reference) *Document {
	section := xref.NewSection()
	for oid := range objects {
		section.Add(xref.NewInUse(oid, 0, int64(oid)))
	}
	loader := func(e xref.Entry) (types.Object, error) { return objects[e.Oid], nil }
	rev := NewRevision(section, parser.Trailer{Root: root, Size: len(objects) + 1}, loader)
	rs := &Revisions{}
	rs.Append(rev)
	return New(rs, "1.7")
}

func TestDocumentObjectAndDeref(t *testing.T) {
	dict := types.NewDictionary()
	dict.Set("Type", types.Name("Catalog"))
	d := newDocFromObjects(map[uint32]types.Object{1: dict}, types.Reference{Oid: 1})

	v, err := d.Object(types.Reference{Oid: 1})
	if err != nil || v != types.Object(dict) {
		t.Fatalf("got %v, %v", v, err)
	}

	same := d.Deref(types.Reference{Oid: 1})
	if same != types.Object(dict) {
		t.Fatalf("deref mismatch: %v", same)
	}

	if lit := d.Deref(types.Integer(5)); lit != types.Integer(5) {
		t.Fatalf("deref of a non-reference should be identity, got %v", lit)
	}
}

func TestDocumentAddAssignsFreshOidAndIsIdempotent(t *testing.T) {
	d := newDocFromObjects(map[uint32]types.Object{1: types.NewDictionary()}, types.Reference{Oid: 1})

	ind, err := d.Add(types.Name("hello"), nil, AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if ind.Oid == 0 {
		t.Fatalf("expected a fresh oid, got direct object")
	}

	again, err := d.Add(ind, nil, AddOptions{})
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if again.Oid != ind.Oid {
		t.Fatalf("re-adding an already-wrapped object should return it unchanged, got oid %d want %d", again.Oid, ind.Oid)
	}
}

func TestDocumentWrapPrefersSubtypeOverType(t *testing.T) {
	d := New(&Revisions{}, "1.7")
	d.RegisterType("Annot", func(doc *Document, oid uint32, gen uint16, v types.Object) types.Object {
		return types.Name(fmt.Sprintf("generic-annot:%v", v))
	})
	d.RegisterSubtype("Link", func(doc *Document, oid uint32, gen uint16, v types.Object) types.Object {
		return types.Name(fmt.Sprintf("link-annot:%v", v))
	})

	dict := types.NewDictionary()
	got := d.Wrap(dict, "Annot", "Link", 1, 0)
	if got != types.Name("link-annot:<<>>") {
		t.Fatalf("got %v, want subtype wrapper to win", got)
	}

	got = d.Wrap(dict, "Annot", "", 1, 0)
	if got != types.Name("generic-annot:<<>>") {
		t.Fatalf("got %v, want type wrapper", got)
	}
}

func TestDocumentSetConfigAppliesStagedTypeAndSubtypeMaps(t *testing.T) {
	d := New(&Revisions{}, "1.7")
	cfg := config.Default()
	cfg.TypeMap["Annot"] = WrapperFunc(func(doc *Document, oid uint32, gen uint16, v types.Object) types.Object {
		return types.Name("staged-type")
	})
	cfg.SubtypeMap["Link"] = WrapperFunc(func(doc *Document, oid uint32, gen uint16, v types.Object) types.Object {
		return types.Name("staged-subtype")
	})

	d.SetConfig(cfg)

	dict := types.NewDictionary()
	if got := d.Wrap(dict, "Annot", "Link", 1, 0); got != types.Name("staged-subtype") {
		t.Fatalf("got %v, want staged subtype wrapper to be applied", got)
	}
	if got := d.Wrap(dict, "Annot", "", 2, 0); got != types.Name("staged-type") {
		t.Fatalf("got %v, want staged type wrapper to be applied", got)
	}
}

func TestDocumentSetConfigIgnoresWronglyTypedMapEntries(t *testing.T) {
	d := New(&Revisions{}, "1.7")
	cfg := config.Default()
	cfg.TypeMap["Annot"] = "not a WrapperFunc"

	d.SetConfig(cfg) // must not panic

	dict := types.NewDictionary()
	if got := d.Wrap(dict, "Annot", "", 1, 0); got != dict {
		t.Fatalf("got %v, want value passed through unchanged", got)
	}
}

func TestDocumentRunTaskInvokesRegisteredTask(t *testing.T) {
	d := New(&Revisions{}, "1.7")
	cfg := config.Default()
	ran := false
	cfg.TaskMap["ping"] = func(doc any) error {
		if doc.(*Document) != d {
			t.Fatalf("task received a different document")
		}
		ran = true
		return nil
	}
	d.SetConfig(cfg)

	if err := d.RunTask("ping"); err != nil {
		t.Fatalf("run task: %v", err)
	}
	if !ran {
		t.Fatalf("expected task to run")
	}
	if err := d.RunTask("missing"); err == nil {
		t.Fatalf("expected an error for an unregistered task")
	}
}

func TestDocumentTrailerAndCatalog(t *testing.T) {
	catalog := types.NewDictionary()
	catalog.Set("Type", types.Name("Catalog"))
	d := newDocFromObjects(map[uint32]types.Object{1: catalog}, types.Reference{Oid: 1})

	want := types.Reference{Oid: 1}
	if got := d.Trailer().Root; got != types.Object(want) {
		t.Fatalf("got root %v", got)
	}
	got, err := d.Catalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if got != types.Object(catalog) {
		t.Fatalf("got %v, want the catalog dictionary", got)
	}
}

func TestDocumentCatalogFailsWithoutRootReference(t *testing.T) {
	d := New(&Revisions{}, "1.7")
	if _, err := d.Catalog(); err == nil {
		t.Fatalf("expected an error when the trailer has no Root")
	}
}

func TestDocumentDeleteMarksFreeInCurrentRevision(t *testing.T) {
	d := newDocFromObjects(map[uint32]types.Object{1: types.Integer(7)}, types.Reference{Oid: 1})
	d.Delete(types.Reference{Oid: 1}, DeleteCurrent, true)

	v, err := d.Object(types.Reference{Oid: 1})
	if err != nil || !types.IsNull(v) {
		t.Fatalf("got %v, %v, want Null after delete", v, err)
	}
}

func TestDocumentImportDeepCopiesAndMemoizes(t *testing.T) {
	leaf := types.NewDictionary()
	leaf.Set("Value", types.Integer(9))
	src := newDocFromObjects(map[uint32]types.Object{1: leaf}, types.Reference{Oid: 1})

	dstDict := types.NewDictionary()
	dst := newDocFromObjects(map[uint32]types.Object{1: dstDict}, types.Reference{Oid: 1})

	imported1, err := dst.Import(src, types.IndirectObject{Oid: 1, Gen: 0, Obj: leaf})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	ref1, ok := imported1.(types.Reference)
	if !ok {
		t.Fatalf("expected a Reference back from importing an indirect object, got %T", imported1)
	}

	imported2, err := dst.Import(src, types.IndirectObject{Oid: 1, Gen: 0, Obj: leaf})
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	ref2 := imported2.(types.Reference)
	if ref1 != ref2 {
		t.Fatalf("re-importing the same source object should be memoized: got %v and %v", ref1, ref2)
	}

	copied, err := dst.Object(ref1)
	if err != nil {
		t.Fatalf("resolving imported object: %v", err)
	}
	copiedDict, ok := copied.(*types.Dictionary)
	if !ok {
		t.Fatalf("got %T, want *types.Dictionary", copied)
	}
	if v, _ := copiedDict.Get("Value"); v != types.Integer(9) {
		t.Fatalf("got %v", v)
	}
	// Mutating the copy must not affect the source.
	copiedDict.Set("Value", types.Integer(0))
	if v, _ := leaf.Get("Value"); v != types.Integer(9) {
		t.Fatalf("import must deep-copy, source was mutated: %v", v)
	}
}

func TestDocumentImportRefusesCatalog(t *testing.T) {
	catalog := types.NewDictionary()
	catalog.Set("Type", types.Name("Catalog"))
	src := newDocFromObjects(map[uint32]types.Object{1: catalog}, types.Reference{Oid: 1})
	dst := newDocFromObjects(map[uint32]types.Object{1: types.NewDictionary()}, types.Reference{Oid: 1})

	_, err := dst.Import(src, types.IndirectObject{Oid: 1, Gen: 0, Obj: catalog})
	if err != ErrForeignDocument {
		t.Fatalf("got %v, want ErrForeignDocument", err)
	}
}

func TestDocumentEachCurrentYieldsUniqueOids(t *testing.T) {
	d := newDocFromObjects(map[uint32]types.Object{1: types.Integer(1), 2: types.Integer(2)}, types.Reference{Oid: 1})
	seen := map[uint32]bool{}
	d.Each(true, func(oid uint32, gen uint16) { seen[oid] = true })
	if len(seen) != 2 || !seen[1] || !seen[2] {
		t.Fatalf("got %v", seen)
	}
}

func TestDocumentVersionFallsBackToHeaderVersion(t *testing.T) {
	d := newDocFromObjects(map[uint32]types.Object{1: types.NewDictionary()}, types.Reference{Oid: 1})
	if got := d.Version(); got != "1.7" {
		t.Fatalf("got %q", got)
	}
}

func TestDocumentVersionPrefersCatalogVersionWhenNewer(t *testing.T) {
	catalog := types.NewDictionary()
	catalog.Set("Version", types.Name("2.0"))
	d := newDocFromObjects(map[uint32]types.Object{1: catalog}, types.Reference{Oid: 1})
	if got := d.Version(); got != "2.0" {
		t.Fatalf("got %q, want catalog's newer /Version to win", got)
	}
}

func TestDocumentValidateFlagsStreamLengthMismatch(t *testing.T) {
	dict := types.NewDictionary()
	dict.Set("Length", types.Integer(999))
	stream := types.NewStream(dict, []byte("abc"))
	d := newDocFromObjects(map[uint32]types.Object{1: stream}, types.Reference{Oid: 1})

	var problems []Problem
	if err := d.Validate(true, func(p Problem) { problems = append(problems, p) }); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(problems) != 1 || problems[0].Fatal {
		t.Fatalf("got %+v", problems)
	}
	if v, _ := dict.Get("Length"); v != types.Integer(3) {
		t.Fatalf("auto-correct should have fixed Length, got %v", v)
	}
}

func TestDocumentValidateLogsThroughConfiguredLogger(t *testing.T) {
	dict := types.NewDictionary()
	dict.Set("Length", types.Integer(999))
	stream := types.NewStream(dict, []byte("abc"))
	d := newDocFromObjects(map[uint32]types.Object{1: stream}, types.Reference{Oid: 1})

	var warned bool
	cfg := config.Default()
	cfg.Logger = xlog.Func(func(level xlog.Level, msg string, keyvals ...any) {
		if level == xlog.Warn {
			warned = true
		}
	})
	d.SetConfig(cfg)

	if err := d.Validate(true, func(Problem) {}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !warned {
		t.Fatalf("expected Validate to log the Length mismatch through the configured logger")
	}
}

func TestDocumentDefaultConfigIsReadyToUse(t *testing.T) {
	d := newDocFromObjects(map[uint32]types.Object{1: types.NewDictionary()}, types.Reference{Oid: 1})
	if d.Config() == nil {
		t.Fatalf("expected New to install a default configuration")
	}
	d.SetConfig(nil)
	if d.Config() == nil {
		t.Fatalf("expected SetConfig(nil) to fall back to config.Default()")
	}
}

type fakeSerializer struct {
	headerVersion string
	written       []uint32
	trailer       map[types.Name]types.Object
}

func (f *fakeSerializer) WriteHeader(w io.Writer, version string) error {
	f.headerVersion = version
	_, err := w.Write([]byte("%PDF-" + version + "\n"))
	return err
}

func (f *fakeSerializer) WriteIndirect(w io.Writer, obj types.IndirectObject) error {
	f.written = append(f.written, obj.Oid)
	_, err := w.Write([]byte(obj.String()))
	return err
}

func (f *fakeSerializer) WriteXRefAndTrailer(w io.Writer, offsets map[uint32]int64, trailer map[types.Name]types.Object, startOfThisSection int64) error {
	f.trailer = trailer
	_, err := w.Write([]byte("xref\n"))
	return err
}

func TestDocumentWriteDrivesSerializer(t *testing.T) {
	d := newDocFromObjects(map[uint32]types.Object{1: types.Integer(42)}, types.Reference{Oid: 1})
	ser := &fakeSerializer{}
	var buf bytes.Buffer

	if err := d.Write(&buf, ser, true, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(ser.written) != 1 || ser.written[0] != 1 {
		t.Fatalf("got %v", ser.written)
	}
	if ser.trailer["Root"] != types.Object(types.Reference{Oid: 1}) {
		t.Fatalf("got trailer %+v", ser.trailer)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected bytes written to sink")
	}
}
