package ir

import "github.com/dolthub/swiss"

// AttrID is an interned attribute-name id, per spec.md §4.1.
type AttrID int32

// WellKnown holds the Program's well-known attribute-name ids (the
// dunder-like names listed in spec.md §3.1): populated exactly once, the
// first time each name is interned.
type WellKnown struct {
	ToStr     AttrID
	Len       AttrID
	Init      AttrID
	OnDestroy AttrID
	Equals    AttrID
	ToHash    AttrID
	Add       AttrID
	Del       AttrID
	IsA       AttrID
	AsStr     AttrID
}

// attrTableInitialSize is the starting capacity handed to the backing
// swiss.Map; attribute tables tend to stay small (a few dozen names per
// compile unit) so this just avoids a couple of early grow-and-rehash
// cycles.
const attrTableInitialSize = 64

// AttrTable is the process-wide (really: per-Program) map from attribute
// name strings to small non-negative ids, plus the reverse array. Backed
// by swiss.Map rather than a builtin map, per the runtime's own attribute
// lookup choice (machine.Map).
type AttrTable struct {
	byName *swiss.Map[string, AttrID]
	names  []string
	Known  WellKnown
}

// NewAttrTable returns an empty AttrTable.
func NewAttrTable() AttrTable {
	return AttrTable{byName: swiss.NewMap[string, AttrID](attrTableInitialSize)}
}

// Intern returns the id for name, allocating a new one if addIfMissing is
// true and name is not yet known; otherwise returns (0, false) when name is
// unknown. When a new id is allocated and name matches one of the
// well-known dunder-like names, the corresponding WellKnown field is
// populated.
func (t *AttrTable) Intern(name string, addIfMissing bool) (AttrID, bool) {
	if id, ok := t.byName.Get(name); ok {
		return id, true
	}
	if !addIfMissing {
		return 0, false
	}
	id := AttrID(len(t.names))
	t.names = append(t.names, name)
	t.byName.Put(name, id)
	t.populateWellKnown(name, id)
	return id, true
}

// Name returns the string for id, or "" if id is out of range.
func (t *AttrTable) Name(id AttrID) string {
	if int(id) < 0 || int(id) >= len(t.names) {
		return ""
	}
	return t.names[id]
}

func (t *AttrTable) populateWellKnown(name string, id AttrID) {
	switch name {
	case "to_str":
		t.Known.ToStr = id
	case "len":
		t.Known.Len = id
	case "init":
		t.Known.Init = id
	case "on_destroy":
		t.Known.OnDestroy = id
	case "equals":
		t.Known.Equals = id
	case "to_hash":
		t.Known.ToHash = id
	case "add":
		t.Known.Add = id
	case "del":
		t.Known.Del = id
	case "is_a":
		t.Known.IsA = id
	case "as_str":
		t.Known.AsStr = id
	}
}

// HashSize is the fixed bucket count of a per-class attribute hash map, per
// spec.md §4.2.
const HashSize = 64

// noAttr is the bucket-chain terminator sentinel, "{name_id = -1}".
const noAttr AttrID = -1

type attrHashEntry struct {
	NameID AttrID
	Slot   int // var-attr index, or MethodOffset+func-attr index
}

// AttrHashTable is the per-class attribute lookup table of spec.md §4.2: a
// fixed HashSize bucket array, each a collision chain terminated by a
// {name_id: -1} sentinel entry.
type AttrHashTable struct {
	buckets [HashSize][]attrHashEntry
}

func bucketOf(id AttrID) int { return int(uint32(id)) % HashSize }

// Lookup scans the bucket for name, returning its slot (a var-attr index
// below MethodOffset, or MethodOffset+func-attr-index) and whether found.
func (h *AttrHashTable) Lookup(name AttrID) (slot int, ok bool) {
	for _, e := range h.buckets[bucketOf(name)] {
		if e.NameID == noAttr {
			break
		}
		if e.NameID == name {
			return e.Slot, true
		}
	}
	return 0, false
}

// Rebuild regenerates the hash map from cl's current var-attr and func-attr
// arrays, per spec.md §4.2; called after inheritance propagation (§4.6)
// modifies those arrays.
func (h *AttrHashTable) Rebuild(cl *Class) {
	for i := range h.buckets {
		h.buckets[i] = h.buckets[i][:0]
	}
	for i, va := range cl.VarAttrs {
		b := bucketOf(va.NameID)
		h.buckets[b] = append(h.buckets[b], attrHashEntry{NameID: va.NameID, Slot: i})
	}
	for i, fa := range cl.FuncAttrs {
		b := bucketOf(fa.NameID)
		h.buckets[b] = append(h.buckets[b], attrHashEntry{NameID: fa.NameID, Slot: MethodOffset + i})
	}
	for i := range h.buckets {
		h.buckets[i] = append(h.buckets[i], attrHashEntry{NameID: noAttr})
	}
}

// MethodOffset distinguishes a method slot from a variable-attribute slot
// within a single AttrHashTable/FuncAttr lookup result, per spec.md §3.5.
const MethodOffset = 1 << 30
