// Package schemacheck type-checks entities and request contexts against a
// compiled Schema. Cedar's evaluator itself exposes no schema-validation
// entry point, so this is hand-rolled business logic over internal/model's
// own types rather than a wrapper around a third-party validator.
package schemacheck

import (
	"fmt"
	"sort"
	"strings"

	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

// ValidateEntity type-checks one entity's attrs against its declared shape.
// Entity types absent from the schema are accepted without constraint —
// the schema only narrows types it actually declares.
func ValidateEntity(e model.Entity, schema model.Schema) error {
	decl, ok := findEntityType(schema, e.Uid.Type)
	if !ok || decl.Shape == nil {
		return nil
	}
	if err := checkRecord(e.Attrs, *decl.Shape, "attrs"); err != nil {
		return cedruserr.Wrap(cedruserr.KindEntityInvalid, fmt.Sprintf("entity %s", e.Uid), err)
	}
	return nil
}

// ValidateContext type-checks a request context against the Context record
// declared for the given action's AppliesTo clause. If the action carries no
// explicit context type, or is absent from the schema, the context passes
// unconstrained — it is still attached to the request as a typing hint.
func ValidateContext(ctx map[string]model.EntityAttr, schema model.Schema, action model.EntityUid) error {
	decl, ok := findAction(schema, action)
	if !ok || decl.AppliesTo == nil || decl.AppliesTo.Context == nil {
		return nil
	}
	if err := checkRecord(ctx, *decl.AppliesTo.Context, "context"); err != nil {
		return cedruserr.Wrap(cedruserr.KindContextInvalid, "context", err)
	}
	return nil
}

func findEntityType(schema model.Schema, entityType string) (model.EntityTypeDecl, bool) {
	ns, name := splitQualified(entityType)
	n, ok := schema.Namespaces[ns]
	if !ok && ns == "" {
		n, ok = schema.Namespaces[model.DefaultNamespaceSentinel]
	}
	if !ok {
		return model.EntityTypeDecl{}, false
	}
	decl, ok := n.EntityTypes[name]
	return decl, ok
}

func findAction(schema model.Schema, action model.EntityUid) (model.ActionDecl, bool) {
	ns, name := splitQualified(action.Type)
	n, ok := schema.Namespaces[ns]
	if !ok && ns == "" {
		n, ok = schema.Namespaces[model.DefaultNamespaceSentinel]
	}
	if !ok {
		return model.ActionDecl{}, false
	}
	decl, ok := n.Actions[action.ID]
	if ok {
		return decl, true
	}
	_ = name
	return model.ActionDecl{}, false
}

// splitQualified divides "NS::Type" into ("NS", "Type"), or ("", "Type") for
// an unqualified name; the lookups above find "" under either the empty key
// or model.DefaultNamespaceSentinel.
func splitQualified(qualified string) (string, string) {
	i := strings.LastIndex(qualified, "::")
	if i < 0 {
		return "", qualified
	}
	return qualified[:i], qualified[i+2:]
}

func checkRecord(attrs map[string]model.EntityAttr, t model.SchemaType, path string) error {
	if t.Kind != model.TypeRecord {
		return fmt.Errorf("%s: schema type is not a record", path)
	}
	seen := make(map[string]struct{}, len(attrs))
	for name, v := range attrs {
		seen[name] = struct{}{}
		field, ok := t.Attributes[name]
		if !ok {
			continue // schemas here are non-strict: unexpected attrs are tolerated
		}
		if err := checkValue(v, field.Type, path+"."+name); err != nil {
			return err
		}
	}
	missing := make([]string, 0)
	for name, field := range t.Attributes {
		if _, ok := seen[name]; ok {
			continue
		}
		required := field.Required
		if !field.RequiredSet {
			required = true
		}
		if required {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%s: missing required attribute(s) %s", path, strings.Join(missing, ", "))
	}
	return nil
}

func checkValue(v model.EntityAttr, t model.SchemaType, path string) error {
	switch t.Kind {
	case model.TypeLong:
		if v.Kind != model.AttrLong {
			return fmt.Errorf("%s: expected long", path)
		}
	case model.TypeString:
		if v.Kind != model.AttrString {
			return fmt.Errorf("%s: expected string", path)
		}
	case model.TypeBoolean:
		if v.Kind != model.AttrBool {
			return fmt.Errorf("%s: expected boolean", path)
		}
	case model.TypeSet:
		if v.Kind != model.AttrSet {
			return fmt.Errorf("%s: expected set", path)
		}
		if t.Element == nil {
			return nil
		}
		for i, elem := range v.Set {
			if err := checkValue(elem, *t.Element, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case model.TypeEntity, model.TypeEntityOrCommon:
		if v.Kind != model.AttrEntity && v.Kind != model.AttrEntityEscape {
			return fmt.Errorf("%s: expected entity reference", path)
		}
	case model.TypeRecord:
		if v.Kind != model.AttrRecord {
			return fmt.Errorf("%s: expected record", path)
		}
		return checkRecord(v.Record, t, path)
	case model.TypeExtension:
		if v.Kind != model.AttrExtn && v.Kind != model.AttrExtnEscape {
			return fmt.Errorf("%s: expected extension value", path)
		}
	default:
		return fmt.Errorf("%s: unknown schema type", path)
	}
	return nil
}
