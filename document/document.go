package document

import (
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/hexapdf-go/hexacore/config"
	"github.com/hexapdf-go/hexacore/internal/xlog"
	"github.com/hexapdf-go/hexacore/parser"
	"github.com/hexapdf-go/hexacore/serializer"
	"github.com/hexapdf-go/hexacore/types"
)

// ErrDifferentDocument is the error for moving an object that belongs to
// a different Document. Add does not return it: an IndirectObject carries
// no link to an owning Document, so Add cannot tell where one came from.
var ErrDifferentDocument = fmt.Errorf("document: object belongs to a different document")

// ErrOidCollision is returned by Add when re-adding an already-wrapped
// object under a different wrapper at the same object number.
var ErrOidCollision = fmt.Errorf("document: object number collision")

// ErrForeignDocument is returned by Import for values that must never be
// imported: the source Catalog or a PageTreeNode.
var ErrForeignDocument = fmt.Errorf("document: refusing to import a Catalog or PageTreeNode")

// SecurityHandler is the interface for encrypting/decrypting strings and
// stream bytes on behalf of a Document. A Document stores the handler it
// is given but never calls it: loaded objects are not decrypted and Write
// does not encrypt.
type SecurityHandler interface {
	Decrypt(oid, gen uint32, b []byte) ([]byte, error)
	Encrypt(oid, gen uint32, b []byte) ([]byte, error)
}

// Serializer is the minimal surface Document.Write needs from package
// serializer. It is declared locally, rather than naming
// *serializer.Serializer directly, so Write stays testable with a fake
// that never touches real PDF syntax.
type Serializer interface {
	WriteIndirect(w io.Writer, obj types.IndirectObject) error
	WriteHeader(w io.Writer, version string) error
	WriteXRefAndTrailer(w io.Writer, offsets map[uint32]int64, trailer map[types.Name]types.Object, startOfThisSection int64) error
}

// WrapperFunc builds a typed Go value out of a raw parsed Object, the
// indirect identity it was (or will be) stored at, and a back-reference
// to the owning Document for further dereferencing. The zero-value
// registry falls back to returning value unchanged, so every wrap call
// is total.
type WrapperFunc func(doc *Document, oid uint32, gen uint16, value types.Object) types.Object

// Document is the facade orchestrating Revisions, the parser and the
// serializer: object(), deref(), add(), delete(), import(), wrap(),
// each(), version(), validate() and write(), per the Document facade's
// contract.
type Document struct {
	revisions *Revisions
	version   string
	security  SecurityHandler
	config    *config.Config

	typeMap    map[types.Name]WrapperFunc
	subtypeMap map[types.Name]WrapperFunc

	// importCache memoizes already-imported objects, keyed by the
	// source document and its object number, so re-importing the same
	// source object returns the same destination object instead of
	// duplicating it. Entries are pruned by ForgetSource, e.g. once the
	// source document is no longer reachable, rather than via a
	// process-wide weak-reference table.
	importCache map[importKey]types.Reference
}

type importKey struct {
	source *Document
	oid    uint32
}

// New creates an empty Document around an already-built revision chain,
// configured with config.Default() until SetConfig overrides it.
func New(revisions *Revisions, version string) *Document {
	return &Document{
		revisions:   revisions,
		version:     version,
		config:      config.Default(),
		typeMap:     make(map[types.Name]WrapperFunc),
		subtypeMap:  make(map[types.Name]WrapperFunc),
		importCache: make(map[importKey]types.Reference),
	}
}

// SetConfig replaces the document's configuration. A nil c resets it to
// config.Default().
func (d *Document) SetConfig(c *config.Config) {
	if c == nil {
		c = config.Default()
	}
	d.config = c
	for typ, fn := range c.TypeMap {
		if wrap, ok := fn.(WrapperFunc); ok {
			d.RegisterType(types.Name(typ), wrap)
		}
	}
	for subtype, fn := range c.SubtypeMap {
		if wrap, ok := fn.(WrapperFunc); ok {
			d.RegisterSubtype(types.Name(subtype), wrap)
		}
	}
}

// Config returns the document's current configuration.
func (d *Document) Config() *config.Config { return d.config }

// RunTask looks up name in the configuration's TaskMap and runs it
// against this Document, per spec.md §6.4's task.map registry.
func (d *Document) RunTask(name string) error {
	task, ok := d.config.TaskMap[name]
	if !ok {
		return fmt.Errorf("document: no task registered under %q", name)
	}
	return task(d)
}

// SetSecurityHandler stores h on the document. Neither loading nor Write
// calls it (see SecurityHandler).
func (d *Document) SetSecurityHandler(h SecurityHandler) { d.security = h }

// RegisterType maps a dictionary's /Type name to a wrapper, for Wrap's
// type_map lookup.
func (d *Document) RegisterType(typ types.Name, fn WrapperFunc) { d.typeMap[typ] = fn }

// RegisterSubtype maps a dictionary's /Subtype name to a wrapper, for
// Wrap's subtype_map lookup (tried before type_map).
func (d *Document) RegisterSubtype(subtype types.Name, fn WrapperFunc) {
	d.subtypeMap[subtype] = fn
}

// Resolve implements types.Resolver, letting Dictionary/Array transparently
// dereference through a Document without importing it.
func (d *Document) Resolve(o types.Object) types.Object {
	ref, ok := o.(types.Reference)
	if !ok {
		return o
	}
	v, err := d.Object(ref)
	if err != nil || v == nil {
		return types.Null{}
	}
	return v
}

// Object returns the current value of ref: Null for a free entry. The
// error is non-nil when oid is unknown in every revision, and also when
// loading the object's entry fails; a failed load is returned as that
// error, not replaced by Null.
func (d *Document) Object(ref types.Reference) (types.Object, error) {
	if ref.Oid == 0 {
		return types.Null{}, nil
	}
	return d.revisions.Object(ref.Oid)
}

// Deref returns v unchanged unless it is a Reference, in which case it
// returns Object(v).
func (d *Document) Deref(v types.Object) types.Object {
	ref, ok := v.(types.Reference)
	if !ok {
		return v
	}
	return d.Resolve(ref)
}

// AddOptions configures Add/Wrap, mirroring **wrap_opts in the facade
// contract.
type AddOptions struct {
	Type    types.Name
	Subtype types.Name
}

// Add wraps obj (choosing its concrete wrapper via Wrap) and assigns it
// a fresh object number in revision (the current revision when nil) if
// it is not already indirect. Calling Add again on an already-added
// object returns it unchanged; calling with a different wrapper at the
// same oid fails with ErrOidCollision.
func (d *Document) Add(obj types.Object, revision *Revision, opts AddOptions) (types.IndirectObject, error) {
	if revision == nil {
		revision = d.revisions.Current()
	}
	if ind, ok := obj.(types.IndirectObject); ok {
		if ind.Oid != 0 {
			existing, err := d.Object(ind.Reference())
			if err == nil && !types.IsNull(existing) {
				wrapped := d.Wrap(existing, opts.Type, opts.Subtype, ind.Oid, uint16(ind.Gen))
				if reflect.TypeOf(wrapped) != reflect.TypeOf(ind.Obj) {
					return types.IndirectObject{}, ErrOidCollision
				}
			}
			return ind, nil
		}
		obj = ind.Obj
	}
	oid := revision.Add(obj)
	wrapped := d.Wrap(obj, opts.Type, opts.Subtype, oid, 0)
	return types.IndirectObject{Oid: oid, Gen: 0, Obj: wrapped}, nil
}

// Wrap chooses a class from the static registry keyed by (type,
// subtype) with precedence subtype > type; otherwise it falls back to
// value unchanged (the caller already has a Stream, Dictionary, or
// scalar Object — there is no narrower Go type to promote to).
func (d *Document) Wrap(value types.Object, typ, subtype types.Name, oid uint32, gen uint16) types.Object {
	if subtype != "" {
		if fn, ok := d.subtypeMap[subtype]; ok {
			return fn(d, oid, gen, value)
		}
	}
	if typ != "" {
		if fn, ok := d.typeMap[typ]; ok {
			return fn(d, oid, gen, value)
		}
	}
	if dict, ok := asDictionary(value); ok {
		if t, ok := dict.Get("Type"); ok {
			if name, ok := t.(types.Name); ok {
				if fn, ok := d.typeMap[name]; ok {
					return fn(d, oid, gen, value)
				}
			}
		}
	}
	return value
}

func asDictionary(v types.Object) (*types.Dictionary, bool) {
	switch o := v.(type) {
	case *types.Dictionary:
		return o, true
	case *types.Stream:
		return o.Dict, true
	default:
		return nil, false
	}
}

// Delete removes ref, by default turning the entry into a free entry
// (preserving the free-list skeleton) rather than erasing all trace of
// it. scope selects which revisions are affected.
type DeleteScope int

const (
	// DeleteCurrent removes ref from only the newest revision.
	DeleteCurrent DeleteScope = iota
	// DeleteAll removes ref from every revision that names it.
	DeleteAll
)

func (d *Document) Delete(ref types.Reference, scope DeleteScope, markAsFree bool) {
	switch scope {
	case DeleteAll:
		for i := 0; i < d.revisions.Len(); i++ {
			d.revisions.At(i).Delete(ref.Oid, markAsFree)
		}
	default:
		d.revisions.Current().Delete(ref.Oid, markAsFree)
	}
}

// Import deep-copies src's value obj into d, reusing any object already
// imported from src (memoized by (src, source oid)). It never imports
// src's own Catalog or a PageTreeNode.
func (d *Document) Import(src *Document, obj types.Object) (types.Object, error) {
	if ind, ok := obj.(types.IndirectObject); ok && ind.Oid != 0 {
		key := importKey{source: src, oid: ind.Oid}
		if ref, ok := d.importCache[key]; ok {
			return ref, nil
		}
		if isForeignRestricted(src, ind) {
			return nil, ErrForeignDocument
		}
		// Reserve the destination slot before recursing into obj's own
		// value so that cyclic references between imported objects
		// terminate instead of re-importing forever.
		placeholderOid := d.revisions.Current().Add(types.Null{})
		d.importCache[key] = types.Reference{Oid: placeholderOid}

		inner, err := d.Import(src, ind.Obj)
		if err != nil {
			delete(d.importCache, key)
			return nil, err
		}
		d.revisions.Current().cache[placeholderOid] = inner
		return types.Reference{Oid: placeholderOid}, nil
	}

	switch v := obj.(type) {
	case types.Reference:
		resolved := src.Resolve(v)
		if v.Oid != 0 {
			// Go through the indirect-object path so the referenced object
			// is memoized by its source oid and cycles terminate.
			return d.Import(src, types.IndirectObject{Oid: v.Oid, Gen: uint32(v.Gen), Obj: resolved})
		}
		imported, err := d.Import(src, resolved)
		if err != nil {
			return nil, err
		}
		if ref, ok := imported.(types.Reference); ok {
			return ref, nil
		}
		return imported, nil
	case types.Array:
		out := make(types.Array, len(v))
		for i, e := range v {
			ie, err := d.Import(src, e)
			if err != nil {
				return nil, err
			}
			out[i] = ie
		}
		return out, nil
	case *types.Dictionary:
		out := types.NewDictionary()
		for _, k := range v.Keys() {
			raw, _ := v.Get(k)
			iv, err := d.Import(src, raw)
			if err != nil {
				return nil, err
			}
			out.Set(k, iv)
		}
		return out, nil
	case *types.Stream:
		dict, err := d.Import(src, v.Dict)
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(v.RawBytes))
		copy(cp, v.RawBytes)
		return types.NewStream(dict.(*types.Dictionary), cp), nil
	default:
		return obj.Clone(), nil
	}
}

func isForeignRestricted(src *Document, ind types.IndirectObject) bool {
	dict, ok := asDictionary(ind.Obj)
	if !ok {
		return false
	}
	t, ok := dict.Get("Type")
	if !ok {
		return false
	}
	name, ok := t.(types.Name)
	return ok && (name == "Catalog" || name == "Pages")
}

// ForgetSource drops every cached import from src, letting src (and
// everything it alone keeps alive) be garbage-collected without this
// Document holding a live reference forever.
func (d *Document) ForgetSource(src *Document) {
	for k := range d.importCache {
		if k.source == src {
			delete(d.importCache, k)
		}
	}
}

// Each yields every object number known to the document: each object
// number once, newest revision first, when current is true, or every
// stored version from newest to oldest otherwise.
func (d *Document) Each(current bool, fn func(oid uint32, gen uint16)) {
	if current {
		seen := make(map[uint32]bool)
		for i := d.revisions.Len() - 1; i >= 0; i-- {
			d.revisions.At(i).Each(func(oid uint32) {
				if !seen[oid] {
					seen[oid] = true
					fn(oid, 0)
				}
			})
		}
		return
	}
	for i := d.revisions.Len() - 1; i >= 0; i-- {
		d.revisions.At(i).Each(func(oid uint32) { fn(oid, 0) })
	}
}

// Version returns max(file-header version, Catalog./Version).
func (d *Document) Version() string {
	cur := d.revisions.Current()
	if cur == nil {
		return d.version
	}
	root, ok := cur.Trailer.Root.(types.Reference)
	if !ok {
		return d.version
	}
	catalog, err := d.Object(root)
	if err != nil {
		return d.version
	}
	dict, ok := asDictionary(catalog)
	if !ok {
		return d.version
	}
	v, ok := dict.Get("Version")
	if !ok {
		return d.version
	}
	name, ok := v.(types.Name)
	if !ok {
		return d.version
	}
	if string(name) > d.version {
		return string(name)
	}
	return d.version
}

// Problem is one issue surfaced by Validate: Fatal problems always stop
// validation; Correctable problems are reported but, when autoCorrect is
// true, the in-place fix is applied and validation continues.
type Problem struct {
	Oid     uint32
	Message string
	Fatal   bool
}

// Validate walks every object depth-first (each object number is
// validated once, at its most current value) and
// reports problems via onProblem. The only structural invariant checked
// here — the rest is delegated to per-type validators registered
// alongside their WrapperFunc, which this generic walk has no visibility
// into — is that every Stream's /Length matches its RawBytes, since that
// invariant is owned by the object model rather than any particular
// wrapper type.
func (d *Document) Validate(autoCorrect bool, onProblem func(Problem)) error {
	var fatal error
	d.Each(true, func(oid uint32, gen uint16) {
		if fatal != nil {
			return
		}
		v, err := d.Object(types.Reference{Oid: oid, Gen: gen})
		if err != nil {
			xlog.Error(d.config.Logger, "validate: failed to load object", "oid", oid, "err", err)
			onProblem(Problem{Oid: oid, Message: err.Error(), Fatal: true})
			fatal = err
			return
		}
		stream, ok := v.(*types.Stream)
		if !ok {
			return
		}
		want := types.Integer(len(stream.RawBytes))
		got, _ := stream.Dict.Get("Length")
		if got != want {
			if autoCorrect {
				stream.Dict.Set("Length", want)
			}
			xlog.Warn(d.config.Logger, "validate: stream Length does not match encoded byte length", "oid", oid)
			onProblem(Problem{Oid: oid, Message: "stream Length does not match encoded byte length", Fatal: false})
		}
	})
	return fatal
}

// Write serializes the document through ser: when validate is true it
// runs Validate first (aborting on a fatal problem); when updateFields
// is true it refreshes the Info dictionary's ModDate before writing. The
// trailer's ID is written as it stands and is never regenerated. See
// package serializer for wire format.
func (d *Document) Write(sink io.Writer, ser Serializer, validate, updateFields bool) error {
	if updateFields {
		d.touchModDate()
	}
	if validate {
		if err := d.Validate(true, func(Problem) {}); err != nil {
			return fmt.Errorf("document: validation failed: %w", err)
		}
	}
	offsets := make(map[uint32]int64)
	var pos int64
	countingSink := &countingWriter{w: sink, n: &pos}

	if err := ser.WriteHeader(countingSink, d.Version()); err != nil {
		return err
	}

	d.Each(true, func(oid uint32, gen uint16) {
		v, err := d.Object(types.Reference{Oid: oid, Gen: gen})
		if err != nil || types.IsNull(v) {
			return
		}
		offsets[oid] = pos
		_ = ser.WriteIndirect(countingSink, types.IndirectObject{Oid: oid, Gen: uint32(gen), Obj: v})
	})

	startOfXref := pos
	trailer := d.trailerDict()
	return ser.WriteXRefAndTrailer(sink, offsets, trailer, startOfXref)
}

// Trailer returns the current revision's trailer record (Root, Info, ID
// and friends), as last parsed from the file or produced by New/Open.
// The page tree itself is out of scope; Trailer and Catalog stop at
// exposing the document's own entry points.
func (d *Document) Trailer() parser.Trailer {
	cur := d.revisions.Current()
	if cur == nil {
		return parser.Trailer{}
	}
	return cur.Trailer
}

// Catalog resolves and returns the object the current trailer's Root
// entry points to.
func (d *Document) Catalog() (types.Object, error) {
	root := d.Trailer().Root
	ref, ok := root.(types.Reference)
	if !ok {
		return nil, fmt.Errorf("document: trailer has no Root reference")
	}
	return d.Object(ref)
}

func (d *Document) touchModDate() {
	cur := d.revisions.Current()
	if cur == nil {
		return
	}
	infoRef, ok := cur.Trailer.Info.(types.Reference)
	if !ok {
		return
	}
	info, err := d.Object(infoRef)
	if err != nil {
		return
	}
	dict, ok := asDictionary(info)
	if !ok {
		return
	}
	dict.Set("ModDate", types.NewString([]byte(serializer.FormatTime(time.Now()))))
}

func (d *Document) trailerDict() map[types.Name]types.Object {
	cur := d.revisions.Current()
	out := map[types.Name]types.Object{
		"Size": types.Integer(d.revisions.NextOid()),
		"Root": cur.Trailer.Root,
	}
	if cur.Trailer.Info != nil {
		out["Info"] = cur.Trailer.Info
	}
	if len(cur.Trailer.ID) > 0 {
		out["ID"] = cur.Trailer.ID
	}
	return out
}

type countingWriter struct {
	w io.Writer
	n *int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	*c.n += int64(n)
	return n, err
}
