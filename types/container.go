package types

// Array is an ordered sequence of PDF values, possibly including
// references. Grounded on model.ObjArray / parser.Array,
// generalized to transparently dereference through a Resolver:
// Dictionaries and Arrays transparently dereference indirect references
// on read and preserve them on write.
type Array []Object

func (a Array) Value() Object { return a }

func (a Array) Clone() Object {
	out := make(Array, len(a))
	for i, v := range a {
		out[i] = v.Clone()
	}
	return out
}

func (a Array) String() string {
	s := "["
	for i, v := range a {
		if i > 0 {
			s += " "
		}
		s += v.String()
	}
	return s + "]"
}

// Resolved returns the element at index i, dereferenced through r if it is
// a Reference. A nil Resolver, or an unresolvable reference, yields Null.
func (a Array) Resolved(r Resolver, i int) Object {
	if i < 0 || i >= len(a) {
		return Null{}
	}
	return resolve(r, a[i])
}

func resolve(r Resolver, o Object) Object {
	ref, ok := o.(Reference)
	if !ok {
		return o
	}
	if r == nil {
		return Null{}
	}
	return r.Resolve(ref)
}

// Dictionary maps Name to Object. Keys are unique; insertion order is
// preserved only to support byte-exact round-tripping in test scenarios
// — Go's map does not preserve order, so Dictionary keeps
// a parallel key-order slice; the underlying model is otherwise a plain
// map (model.ObjDict).
type Dictionary struct {
	values map[Name]Object
	order  []Name
}

// NewDictionary returns an empty dictionary ready for inserts.
func NewDictionary() *Dictionary {
	return &Dictionary{values: map[Name]Object{}}
}

func (d *Dictionary) Value() Object { return d }

func (d *Dictionary) Clone() Object {
	out := NewDictionary()
	for _, k := range d.order {
		out.Set(k, d.values[k].Clone())
	}
	return out
}

func (d *Dictionary) String() string {
	s := "<<"
	for i, k := range d.order {
		if i > 0 {
			s += " "
		}
		s += k.String() + " " + d.values[k].String()
	}
	return s + ">>"
}

// Get returns the raw (possibly a Reference) value stored under key, and
// whether it is present.
func (d *Dictionary) Get(key Name) (Object, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// Resolved returns the value stored under key, dereferenced through r.
// Absent keys resolve to Null, matching "Specifying the null object as
// the value of a dictionary entry shall be equivalent to omitting the
// entry entirely" (reader/parser/parser.go comment, ported verbatim in
// spirit).
func (d *Dictionary) Resolved(r Resolver, key Name) Object {
	v, ok := d.Get(key)
	if !ok {
		return Null{}
	}
	return resolve(r, v)
}

// Set inserts or overwrites key. A Null value is equivalent to Delete,
// matching the PDF semantics above.
func (d *Dictionary) Set(key Name, value Object) {
	if IsNull(value) {
		d.Delete(key)
		return
	}
	if _, exists := d.values[key]; !exists {
		d.order = append(d.order, key)
	}
	d.values[key] = value
}

// Delete removes key, if present.
func (d *Dictionary) Delete(key Name) {
	if _, exists := d.values[key]; !exists {
		return
	}
	delete(d.values, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Keys returns the dictionary keys in insertion order.
func (d *Dictionary) Keys() []Name {
	out := make([]Name, len(d.order))
	copy(out, d.order)
	return out
}

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.order) }
