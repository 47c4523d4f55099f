// Package model holds the canonical, wire-agnostic data types for projects,
// entities, schemas, policies, templates and template links (spec component A).
package model

import (
	"fmt"
	"strings"
)

// EntityUid is the pair (type name, id) identifying a Cedar entity.
type EntityUid struct {
	Type string
	ID   string
}

// NewEntityUid constructs an EntityUid, requiring both sides non-empty.
func NewEntityUid(typ, id string) (EntityUid, error) {
	if typ == "" || id == "" {
		return EntityUid{}, fmt.Errorf("%w: entity type and id must be non-empty", ErrInvalidEncoding)
	}
	return EntityUid{Type: typ, ID: id}, nil
}

// String renders the canonical "type::id" form.
func (u EntityUid) String() string {
	return u.Type + `::"` + u.ID + `"`
}

// ShortString renders "type::id" without quoting, used as a map key and in JSON {"type","id"} pairs it is not used directly.
func (u EntityUid) ShortString() string {
	return u.Type + "::" + u.ID
}

// ParseEntityUidColon parses the "type::id" form used by cache/store composite keys.
func ParseEntityUidColon(s string) (EntityUid, error) {
	i := strings.LastIndex(s, "::")
	if i < 0 {
		return EntityUid{}, fmt.Errorf("%w: malformed entity uid %q", ErrInvalidEncoding, s)
	}
	return NewEntityUid(s[:i], s[i+2:])
}

// AttrKind discriminates the EntityAttr variant set. The zero value is invalid;
// always construct via the New* helpers below.
type AttrKind uint8

const (
	AttrInvalid AttrKind = iota
	AttrString
	AttrLong
	AttrBool
	AttrSet
	AttrRecord
	AttrEntity       // bare entity uid literal
	AttrEntityEscape // {"__entity": {...}} wrapper form
	AttrExtn         // extension-function call, e.g. decimal("1.0") or ip("1.2.3.0/24")
	AttrExtnEscape   // {"__extn": {...}} wrapper form
)

// EntityAttr is the recursive tagged value used for entity attributes, tags,
// and record literals inside policy conditions.
//
// Only one of the typed fields is meaningful, selected by Kind. The
// bare/escape distinction on entity references and extension calls exists
// because the external JSON grammar is ambiguous without it.
type EntityAttr struct {
	Kind AttrKind

	Str  string
	Long int64
	Bool bool

	Set    []EntityAttr
	Record map[string]EntityAttr

	Entity EntityUid // AttrEntity / AttrEntityEscape

	ExtnFn  string // AttrExtn / AttrExtnEscape: function name, e.g. "decimal"
	ExtnArg string // single string argument
}

func NewStringAttr(s string) EntityAttr    { return EntityAttr{Kind: AttrString, Str: s} }
func NewLongAttr(n int64) EntityAttr       { return EntityAttr{Kind: AttrLong, Long: n} }
func NewBoolAttr(b bool) EntityAttr        { return EntityAttr{Kind: AttrBool, Bool: b} }
func NewSetAttr(v []EntityAttr) EntityAttr { return EntityAttr{Kind: AttrSet, Set: v} }
func NewRecordAttr(m map[string]EntityAttr) EntityAttr {
	return EntityAttr{Kind: AttrRecord, Record: m}
}
func NewEntityAttr(u EntityUid) EntityAttr       { return EntityAttr{Kind: AttrEntity, Entity: u} }
func NewEntityEscapeAttr(u EntityUid) EntityAttr { return EntityAttr{Kind: AttrEntityEscape, Entity: u} }
func NewExtnAttr(fn, arg string) EntityAttr      { return EntityAttr{Kind: AttrExtn, ExtnFn: fn, ExtnArg: arg} }
func NewExtnEscapeAttr(fn, arg string) EntityAttr {
	return EntityAttr{Kind: AttrExtnEscape, ExtnFn: fn, ExtnArg: arg}
}

// Equal compares two EntityAttr values structurally.
func (a EntityAttr) Equal(b EntityAttr) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AttrString:
		return a.Str == b.Str
	case AttrLong:
		return a.Long == b.Long
	case AttrBool:
		return a.Bool == b.Bool
	case AttrSet:
		if len(a.Set) != len(b.Set) {
			return false
		}
		for i := range a.Set {
			if !a.Set[i].Equal(b.Set[i]) {
				return false
			}
		}
		return true
	case AttrRecord:
		if len(a.Record) != len(b.Record) {
			return false
		}
		for k, v := range a.Record {
			bv, ok := b.Record[k]
			if !ok || !v.Equal(bv) {
				return false
			}
		}
		return true
	case AttrEntity, AttrEntityEscape:
		return a.Entity == b.Entity
	case AttrExtn, AttrExtnEscape:
		return a.ExtnFn == b.ExtnFn && a.ExtnArg == b.ExtnArg
	}
	return false
}

// Entity is a subject/resource/group/action instance: uid, attributes,
// parent hierarchy and tags. Equality and hashing is by Uid alone.
type Entity struct {
	Uid     EntityUid
	Attrs   map[string]EntityAttr
	Parents map[EntityUid]struct{}
	Tags    map[string]EntityAttr
}

// NewEntity constructs an Entity with empty maps/sets ready for population.
func NewEntity(uid EntityUid) *Entity {
	return &Entity{
		Uid:     uid,
		Attrs:   map[string]EntityAttr{},
		Parents: map[EntityUid]struct{}{},
		Tags:    map[string]EntityAttr{},
	}
}

// ParentSlice returns Parents as a deterministic-order-free slice.
func (e *Entity) ParentSlice() []EntityUid {
	out := make([]EntityUid, 0, len(e.Parents))
	for p := range e.Parents {
		out = append(out, p)
	}
	return out
}

// AddParent inserts a parent uid, satisfying the invariant that entities[uid].Uid == uid
// is the caller's responsibility (enforced at the store/codec boundary).
func (e *Entity) AddParent(p EntityUid) {
	if e.Parents == nil {
		e.Parents = map[EntityUid]struct{}{}
	}
	e.Parents[p] = struct{}{}
}
