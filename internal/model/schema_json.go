package model

import (
	"encoding/json"
	"fmt"
)

// schemaTypeJSON mirrors the Cedar JSON schema type grammar. "type" selects
// the variant; the remaining fields are populated per-variant.
type schemaTypeJSON struct {
	Type       string                     `json:"type"`
	Name       string                     `json:"name,omitempty"`       // Entity / Extension / EntityOrCommon
	Element    *schemaTypeJSON            `json:"element,omitempty"`    // Set
	Attributes map[string]schemaAttrJSON  `json:"attributes,omitempty"` // Record
	Required   *bool                      `json:"required,omitempty"`
}

type schemaAttrJSON struct {
	schemaTypeJSON
	Required *bool `json:"required,omitempty"`
}

func (t SchemaType) MarshalJSON() ([]byte, error) {
	w, err := t.toWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (t SchemaType) toWire() (schemaTypeJSON, error) {
	w := schemaTypeJSON{}
	if t.RequiredSet {
		r := t.Required
		w.Required = &r
	}
	switch t.Kind {
	case TypeLong:
		w.Type = "Long"
	case TypeString:
		w.Type = "String"
	case TypeBoolean:
		w.Type = "Boolean"
	case TypeSet:
		w.Type = "Set"
		if t.Element == nil {
			return w, fmt.Errorf("%w: Set type missing element", ErrInvalidEncoding)
		}
		ew, err := t.Element.toWire()
		if err != nil {
			return w, err
		}
		w.Element = &ew
	case TypeEntity:
		w.Type = "Entity"
		w.Name = t.Name
	case TypeEntityOrCommon:
		w.Type = "EntityOrCommon"
		w.Name = t.Name
	case TypeExtension:
		w.Type = "Extension"
		w.Name = t.Name
	case TypeRecord:
		w.Type = "Record"
		w.Attributes = map[string]schemaAttrJSON{}
		for k, attr := range t.Attributes {
			inner, err := attr.Type.toWire()
			if err != nil {
				return w, err
			}
			aw := schemaAttrJSON{schemaTypeJSON: inner}
			if attr.RequiredSet {
				r := attr.Required
				aw.Required = &r
			}
			w.Attributes[k] = aw
		}
	default:
		return w, fmt.Errorf("%w: unknown schema type kind %d", ErrInvalidEncoding, t.Kind)
	}
	return w, nil
}

func (t *SchemaType) UnmarshalJSON(b []byte) error {
	var w schemaTypeJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: schema type: %v", ErrInvalidEncoding, err)
	}
	return t.fromWire(w)
}

func (t *SchemaType) fromWire(w schemaTypeJSON) error {
	if w.Required != nil {
		t.RequiredSet = true
		t.Required = *w.Required
	} else {
		t.RequiredSet = false
		t.Required = true // default when absent from JSON
	}

	switch w.Type {
	case "Long":
		t.Kind = TypeLong
	case "String":
		t.Kind = TypeString
	case "Boolean":
		t.Kind = TypeBoolean
	case "Set":
		t.Kind = TypeSet
		if w.Element == nil {
			return fmt.Errorf("%w: Set type missing element", ErrInvalidEncoding)
		}
		elem := &SchemaType{}
		if err := elem.fromWire(*w.Element); err != nil {
			return err
		}
		t.Element = elem
	case "Entity":
		t.Kind = TypeEntity
		t.Name = w.Name
	case "EntityOrCommon":
		t.Kind = TypeEntityOrCommon
		t.Name = w.Name
	case "Extension":
		t.Kind = TypeExtension
		t.Name = w.Name
	case "Record":
		t.Kind = TypeRecord
		t.Attributes = map[string]SchemaAttribute{}
		for k, aw := range w.Attributes {
			var inner SchemaType
			if err := inner.fromWire(aw.schemaTypeJSON); err != nil {
				return err
			}
			attr := SchemaAttribute{Type: inner}
			if aw.Required != nil {
				attr.RequiredSet = true
				attr.Required = *aw.Required
			} else {
				attr.RequiredSet = false
				attr.Required = true
			}
			t.Attributes[k] = attr
		}
	case "":
		return fmt.Errorf("%w: schema type missing discriminator", ErrInvalidEncoding)
	default:
		return fmt.Errorf("%w: unknown schema type %q", ErrInvalidEncoding, w.Type)
	}
	return nil
}

// namespaceJSON mirrors one namespace's declarations.
type namespaceJSON struct {
	EntityTypes map[string]entityTypeJSON `json:"entityTypes"`
	Actions     map[string]actionJSON     `json:"actions"`
	CommonTypes map[string]SchemaType     `json:"commonTypes,omitempty"`
}

type entityTypeJSON struct {
	MemberOfTypes []string        `json:"memberOfTypes,omitempty"`
	Shape         *SchemaType     `json:"shape,omitempty"`
	Tags          *SchemaType     `json:"tags,omitempty"`
}

type actionJSON struct {
	MemberOf  []entityUidJSON `json:"memberOf,omitempty"`
	AppliesTo *appliesToJSON  `json:"appliesTo,omitempty"`
}

type appliesToJSON struct {
	PrincipalTypes []string    `json:"principalTypes,omitempty"`
	ResourceTypes  []string    `json:"resourceTypes,omitempty"`
	Context        *SchemaType `json:"context,omitempty"`
}

// MarshalJSON renders Schema, remapping the internal default-namespace
// sentinel back to the empty string.
func (s Schema) MarshalJSON() ([]byte, error) {
	out := map[string]namespaceJSON{}
	for name, ns := range s.Namespaces {
		wireName := name
		if wireName == DefaultNamespaceSentinel {
			wireName = ""
		}
		nsw := namespaceJSON{
			EntityTypes: map[string]entityTypeJSON{},
			Actions:     map[string]actionJSON{},
			CommonTypes: ns.CommonTypes,
		}
		for tn, et := range ns.EntityTypes {
			nsw.EntityTypes[tn] = entityTypeJSON{
				MemberOfTypes: et.MemberOfTypes,
				Shape:         et.Shape,
				Tags:          et.Tags,
			}
		}
		for an, act := range ns.Actions {
			aw := actionJSON{}
			for _, m := range act.MemberOf {
				aw.MemberOf = append(aw.MemberOf, entityUidJSON{Type: m.Type, ID: m.ID})
			}
			if act.AppliesTo != nil {
				aw.AppliesTo = &appliesToJSON{
					PrincipalTypes: act.AppliesTo.PrincipalTypes,
					ResourceTypes:  act.AppliesTo.ResourceTypes,
					Context:        act.AppliesTo.Context,
				}
			}
			nsw.Actions[an] = aw
		}
		out[wireName] = nsw
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses Schema, remapping an empty-string namespace to the
// internal sentinel so map-backed stores can key on it;
// conversion is lossless because MarshalJSON reverses it.
func (s *Schema) UnmarshalJSON(b []byte) error {
	var raw map[string]namespaceJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: schema: %v", ErrInvalidEncoding, err)
	}
	s.Namespaces = map[string]Namespace{}
	for wireName, nsw := range raw {
		name := wireName
		if name == "" {
			name = DefaultNamespaceSentinel
		}
		ns := Namespace{
			EntityTypes: map[string]EntityTypeDecl{},
			Actions:     map[string]ActionDecl{},
			CommonTypes: nsw.CommonTypes,
		}
		for tn, et := range nsw.EntityTypes {
			ns.EntityTypes[tn] = EntityTypeDecl{
				MemberOfTypes: et.MemberOfTypes,
				Shape:         et.Shape,
				Tags:          et.Tags,
			}
		}
		for an, act := range nsw.Actions {
			decl := ActionDecl{}
			for _, m := range act.MemberOf {
				decl.MemberOf = append(decl.MemberOf, EntityUid{Type: m.Type, ID: m.ID})
			}
			if act.AppliesTo != nil {
				decl.AppliesTo = &AppliesTo{
					PrincipalTypes: act.AppliesTo.PrincipalTypes,
					ResourceTypes:  act.AppliesTo.ResourceTypes,
					Context:        act.AppliesTo.Context,
				}
			}
			ns.Actions[an] = decl
		}
		s.Namespaces[name] = ns
	}
	return nil
}
