package types

// IndirectObject wraps a value with (oid, gen), giving it an identity
// independent of its content. An object with Oid == 0 is
// direct (inline) and is never looked up by identity.
type IndirectObject struct {
	Oid, Gen uint32
	Obj      Object
}

func (o IndirectObject) Value() Object { return o.Obj.Value() }

func (o IndirectObject) Clone() Object {
	return IndirectObject{Oid: o.Oid, Gen: o.Gen, Obj: o.Obj.Clone()}
}

func (o IndirectObject) String() string {
	if o.Oid == 0 {
		return o.Obj.String()
	}
	return Reference{Oid: o.Oid, Gen: uint16(o.Gen)}.String()
}

// IsIndirect reports whether this object carries its own identity.
func (o IndirectObject) IsIndirect() bool { return o.Oid != 0 }

// Reference returns the (oid, gen) pair naming this object. Only
// meaningful when IsIndirect is true.
func (o IndirectObject) Reference() Reference {
	return Reference{Oid: o.Oid, Gen: uint16(o.Gen)}
}

// Identity returns the pair (oid, gen) used for equality and hashing of
// indirect objects: two indirect objects with the same identity compare
// equal regardless of wrapped value.
type Identity struct {
	Oid uint32
	Gen uint32
}

func (o IndirectObject) Identity() Identity { return Identity{Oid: o.Oid, Gen: o.Gen} }

// Equal implements the identity-based equality rule for indirect objects.
// Two direct objects (Oid == 0) fall back to comparing their String
// form, since they carry no identity of their own.
func (o IndirectObject) Equal(other IndirectObject) bool {
	if o.Oid != 0 || other.Oid != 0 {
		return o.Identity() == other.Identity()
	}
	return o.Obj.String() == other.Obj.String()
}
