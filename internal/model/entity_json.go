package model

import (
	"encoding/json"
	"fmt"
)

// entityUidJSON is the wire shape {"type": "...", "id": "..."} used for bare
// entity uids throughout the external JSON grammar.
type entityUidJSON struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// MarshalJSON renders the bare "{\"type\":..,\"id\":..}" form.
func (u EntityUid) MarshalJSON() ([]byte, error) {
	return json.Marshal(entityUidJSON{Type: u.Type, ID: u.ID})
}

// UnmarshalJSON parses the bare form.
func (u *EntityUid) UnmarshalJSON(b []byte) error {
	var w entityUidJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: entity uid: %v", ErrInvalidEncoding, err)
	}
	if w.Type == "" || w.ID == "" {
		return fmt.Errorf("%w: entity uid missing type or id", ErrInvalidEncoding)
	}
	u.Type, u.ID = w.Type, w.ID
	return nil
}

// entityEscapeJSON is the {"__entity": {...}} wrapper form.
type entityEscapeJSON struct {
	Entity entityUidJSON `json:"__entity"`
}

// extnJSON is the {"fn": "arg"} extension-call shape, e.g. {"decimal": "1.0"}.
type extnJSON map[string]string

// extnEscapeJSON is the {"__extn": {"fn": "...", "arg": "..."}} wrapper form.
type extnEscapeJSON struct {
	Extn struct {
		Fn  string `json:"fn"`
		Arg string `json:"arg"`
	} `json:"__extn"`
}

// MarshalJSON preserves which of the bare/escaped forms this value was
// decoded from or constructed as.
func (a EntityAttr) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AttrString:
		return json.Marshal(a.Str)
	case AttrLong:
		return json.Marshal(a.Long)
	case AttrBool:
		return json.Marshal(a.Bool)
	case AttrSet:
		return json.Marshal(a.Set)
	case AttrRecord:
		return json.Marshal(a.Record)
	case AttrEntity:
		return json.Marshal(entityUidJSON{Type: a.Entity.Type, ID: a.Entity.ID})
	case AttrEntityEscape:
		return json.Marshal(entityEscapeJSON{Entity: entityUidJSON{Type: a.Entity.Type, ID: a.Entity.ID}})
	case AttrExtn:
		return json.Marshal(extnJSON{a.ExtnFn: a.ExtnArg})
	case AttrExtnEscape:
		w := extnEscapeJSON{}
		w.Extn.Fn = a.ExtnFn
		w.Extn.Arg = a.ExtnArg
		return json.Marshal(w)
	default:
		return nil, fmt.Errorf("%w: unknown EntityAttr kind %d", ErrInvalidEncoding, a.Kind)
	}
}

// UnmarshalJSON decodes any of the grammar's forms, producing the escape
// variant only for an explicit "__entity"/"__extn" wrapper.
func (a *EntityAttr) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: entity attr: %v", ErrInvalidEncoding, err)
	}
	return a.fromRaw(b, raw)
}

func (a *EntityAttr) fromRaw(b []byte, raw any) error {
	switch v := raw.(type) {
	case string:
		*a = NewStringAttr(v)
		return nil
	case bool:
		*a = NewBoolAttr(v)
		return nil
	case float64:
		*a = NewLongAttr(int64(v))
		return nil
	case []any:
		var set []json.RawMessage
		if err := json.Unmarshal(b, &set); err != nil {
			return fmt.Errorf("%w: set: %v", ErrInvalidEncoding, err)
		}
		out := make([]EntityAttr, len(set))
		for i, elem := range set {
			if err := json.Unmarshal(elem, &out[i]); err != nil {
				return err
			}
		}
		*a = NewSetAttr(out)
		return nil
	case map[string]any:
		if entity, ok := v["__entity"]; ok {
			eb, _ := json.Marshal(entity)
			var u EntityUid
			if err := json.Unmarshal(eb, &u); err != nil {
				return err
			}
			*a = NewEntityEscapeAttr(u)
			return nil
		}
		if extn, ok := v["__extn"]; ok {
			m, ok := extn.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: malformed __extn", ErrInvalidEncoding)
			}
			fn, _ := m["fn"].(string)
			arg, _ := m["arg"].(string)
			if fn == "" {
				return fmt.Errorf("%w: __extn missing fn", ErrInvalidEncoding)
			}
			*a = NewExtnEscapeAttr(fn, arg)
			return nil
		}
		if _, ok := v["type"]; ok {
			if _, ok := v["id"]; ok {
				var u EntityUid
				if err := json.Unmarshal(b, &u); err != nil {
					return err
				}
				*a = NewEntityAttr(u)
				return nil
			}
		}
		// Bare extension-call shorthand: exactly one key, string value, not a
		// plain record (we cannot always distinguish a genuine one-key record
		// from a bare extn call; Cedar's grammar resolves this via schema
		// context, which the codec does not have. We decode conservatively
		// as a record here and let the evaluator layer reinterpret single-key
		// records that match a known extension name during conversion).
		rec := map[string]EntityAttr{}
		var rawRec map[string]json.RawMessage
		if err := json.Unmarshal(b, &rawRec); err != nil {
			return fmt.Errorf("%w: record: %v", ErrInvalidEncoding, err)
		}
		for k, rv := range rawRec {
			var elem EntityAttr
			if err := json.Unmarshal(rv, &elem); err != nil {
				return err
			}
			rec[k] = elem
		}
		*a = NewRecordAttr(rec)
		return nil
	case nil:
		return fmt.Errorf("%w: null is not a valid EntityAttr", ErrInvalidEncoding)
	default:
		return fmt.Errorf("%w: unsupported json value for EntityAttr", ErrInvalidEncoding)
	}
}

// entityJSON is the wire shape of Entity: {"uid","attrs","parents","tags"}.
type entityJSON struct {
	Uid     EntityUid             `json:"uid"`
	Attrs   map[string]EntityAttr `json:"attrs"`
	Parents []EntityUid           `json:"parents"`
	Tags    map[string]EntityAttr `json:"tags,omitempty"`
}

// MarshalJSON renders Entity in the Cedar-compatible external form.
func (e Entity) MarshalJSON() ([]byte, error) {
	parents := make([]EntityUid, 0, len(e.Parents))
	for p := range e.Parents {
		parents = append(parents, p)
	}
	return json.Marshal(entityJSON{
		Uid:     e.Uid,
		Attrs:   e.Attrs,
		Parents: parents,
		Tags:    e.Tags,
	})
}

// UnmarshalJSON parses Entity and enforces entities[uid].Uid == uid implicitly
// (the uid is taken directly from the payload by construction).
func (e *Entity) UnmarshalJSON(b []byte) error {
	var w entityJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: entity: %v", ErrInvalidEncoding, err)
	}
	e.Uid = w.Uid
	e.Attrs = w.Attrs
	if e.Attrs == nil {
		e.Attrs = map[string]EntityAttr{}
	}
	e.Tags = w.Tags
	if e.Tags == nil {
		e.Tags = map[string]EntityAttr{}
	}
	e.Parents = make(map[EntityUid]struct{}, len(w.Parents))
	for _, p := range w.Parents {
		e.Parents[p] = struct{}{}
	}
	return nil
}
