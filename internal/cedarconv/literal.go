// Package cedarconv renders the internal/model policy and entity
// representation into cedar-go's own types: a *cedar.PolicySet and a
// cedar.EntityMap ready for cedar.Authorize. Policies are rendered to Cedar
// source text, each parsed with cedar.Policy.UnmarshalCedar and added to the
// set under its own id; entities travel
// through the attrs JSON grammar cedar.EntityMap's own decoder understands.
package cedarconv

import (
	"fmt"
	"strconv"
	"strings"

	"cedrus/internal/model"
)

func escapeCedarString(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func quoted(s string) string {
	return `"` + escapeCedarString(s) + `"`
}

func entityUidLiteral(u model.EntityUid) string {
	return u.Type + "::" + quoted(u.ID)
}

// attrLiteral renders an EntityAttr as a Cedar value-expression literal,
// used both for `when`/`unless` body constants and for nested set/record
// elements.
func attrLiteral(a model.EntityAttr) (string, error) {
	switch a.Kind {
	case model.AttrString:
		return quoted(a.Str), nil
	case model.AttrLong:
		return strconv.FormatInt(a.Long, 10), nil
	case model.AttrBool:
		if a.Bool {
			return "true", nil
		}
		return "false", nil
	case model.AttrSet:
		parts := make([]string, len(a.Set))
		for i, e := range a.Set {
			lit, err := attrLiteral(e)
			if err != nil {
				return "", err
			}
			parts[i] = lit
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case model.AttrRecord:
		return recordLiteral(a.Record)
	case model.AttrEntity, model.AttrEntityEscape:
		return entityUidLiteral(a.Entity), nil
	case model.AttrExtn, model.AttrExtnEscape:
		return a.ExtnFn + "(" + quoted(a.ExtnArg) + ")", nil
	default:
		return "", fmt.Errorf("cedarconv: unknown attr kind %d", a.Kind)
	}
}

func recordLiteral(rec map[string]model.EntityAttr) (string, error) {
	parts := make([]string, 0, len(rec))
	for k, v := range rec {
		lit, err := attrLiteral(v)
		if err != nil {
			return "", err
		}
		parts = append(parts, quoted(k)+": "+lit)
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}
