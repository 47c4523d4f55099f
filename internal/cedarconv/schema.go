package cedarconv

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"cedrus/internal/model"
)

// SchemaText renders a Schema as Cedar schema DSL, namespaces and
// declarations in sorted order so the output is stable across calls.
func SchemaText(s model.Schema) (string, error) {
	names := make([]string, 0, len(s.Namespaces))
	for n := range s.Namespaces {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		ns := s.Namespaces[name]
		wireName := name
		if wireName == model.DefaultNamespaceSentinel {
			wireName = ""
		}
		if wireName == "" {
			if err := namespaceBodyText(&b, ns); err != nil {
				return "", err
			}
			continue
		}
		fmt.Fprintf(&b, "namespace %s {\n", wireName)
		if err := namespaceBodyText(&b, ns); err != nil {
			return "", err
		}
		b.WriteString("}\n")
	}
	return b.String(), nil
}

func namespaceBodyText(b *strings.Builder, ns model.Namespace) error {
	typeNames := make([]string, 0, len(ns.CommonTypes))
	for n := range ns.CommonTypes {
		typeNames = append(typeNames, n)
	}
	sort.Strings(typeNames)
	for _, n := range typeNames {
		txt, err := schemaTypeText(ns.CommonTypes[n])
		if err != nil {
			return fmt.Errorf("common type %s: %w", n, err)
		}
		fmt.Fprintf(b, "type %s = %s;\n", n, txt)
	}

	entNames := make([]string, 0, len(ns.EntityTypes))
	for n := range ns.EntityTypes {
		entNames = append(entNames, n)
	}
	sort.Strings(entNames)
	for _, n := range entNames {
		et := ns.EntityTypes[n]
		fmt.Fprintf(b, "entity %s", n)
		if len(et.MemberOfTypes) > 0 {
			sorted := append([]string(nil), et.MemberOfTypes...)
			sort.Strings(sorted)
			fmt.Fprintf(b, " in [%s]", strings.Join(sorted, ", "))
		}
		if et.Shape != nil {
			txt, err := schemaTypeText(*et.Shape)
			if err != nil {
				return fmt.Errorf("entity %s shape: %w", n, err)
			}
			fmt.Fprintf(b, " %s", txt)
		}
		if et.Tags != nil {
			txt, err := schemaTypeText(*et.Tags)
			if err != nil {
				return fmt.Errorf("entity %s tags: %w", n, err)
			}
			fmt.Fprintf(b, " tags %s", txt)
		}
		b.WriteString(";\n")
	}

	actNames := make([]string, 0, len(ns.Actions))
	for n := range ns.Actions {
		actNames = append(actNames, n)
	}
	sort.Strings(actNames)
	for _, n := range actNames {
		act := ns.Actions[n]
		fmt.Fprintf(b, "action %s", quoted(n))
		if len(act.MemberOf) > 0 {
			parts := make([]string, len(act.MemberOf))
			for i, u := range act.MemberOf {
				parts[i] = entityUidLiteral(u)
			}
			fmt.Fprintf(b, " in [%s]", strings.Join(parts, ", "))
		}
		if act.AppliesTo != nil {
			var clauses []string
			if len(act.AppliesTo.PrincipalTypes) > 0 {
				sorted := append([]string(nil), act.AppliesTo.PrincipalTypes...)
				sort.Strings(sorted)
				clauses = append(clauses, "principal: ["+strings.Join(sorted, ", ")+"]")
			}
			if len(act.AppliesTo.ResourceTypes) > 0 {
				sorted := append([]string(nil), act.AppliesTo.ResourceTypes...)
				sort.Strings(sorted)
				clauses = append(clauses, "resource: ["+strings.Join(sorted, ", ")+"]")
			}
			if act.AppliesTo.Context != nil {
				txt, err := schemaTypeText(*act.AppliesTo.Context)
				if err != nil {
					return fmt.Errorf("action %s context: %w", n, err)
				}
				clauses = append(clauses, "context: "+txt)
			}
			if len(clauses) > 0 {
				fmt.Fprintf(b, " appliesTo { %s }", strings.Join(clauses, ", "))
			}
		}
		b.WriteString(";\n")
	}
	return nil
}

func schemaTypeText(t model.SchemaType) (string, error) {
	switch t.Kind {
	case model.TypeLong:
		return "Long", nil
	case model.TypeString:
		return "String", nil
	case model.TypeBoolean:
		return "Bool", nil
	case model.TypeSet:
		if t.Element == nil {
			return "", fmt.Errorf("set type missing element")
		}
		inner, err := schemaTypeText(*t.Element)
		if err != nil {
			return "", err
		}
		return "Set<" + inner + ">", nil
	case model.TypeEntity, model.TypeEntityOrCommon:
		return t.Name, nil
	case model.TypeExtension:
		return t.Name, nil
	case model.TypeRecord:
		names := make([]string, 0, len(t.Attributes))
		for n := range t.Attributes {
			names = append(names, n)
		}
		sort.Strings(names)
		fields := make([]string, len(names))
		for i, n := range names {
			attr := t.Attributes[n]
			inner, err := schemaTypeText(attr.Type)
			if err != nil {
				return "", err
			}
			opt := ""
			if attr.RequiredSet && !attr.Required {
				opt = "?"
			}
			fields[i] = n + opt + ": " + inner
		}
		return "{ " + strings.Join(fields, ", ") + " }", nil
	default:
		return "", fmt.Errorf("unknown schema type kind %d", t.Kind)
	}
}

// ParseSchemaText parses Cedar schema DSL text into a Schema. It supports the
// declaration forms SchemaText renders: namespace blocks, entity
// declarations with an optional "in [...]" and record shape/tags, action
// declarations with an optional appliesTo clause, and common type aliases.
// There is no schema-DSL parser in the evaluator's public surface to lean
// on, so this is a small hand-rolled tokenizer/parser (see DESIGN.md).
func ParseSchemaText(text string) (model.Schema, error) {
	p := &schemaParser{toks: tokenizeSchema(text)}
	return p.parseSchema()
}

type schemaToken struct {
	text string
}

func tokenizeSchema(text string) []schemaToken {
	var toks []schemaToken
	runes := []rune(text)
	i := 0
	n := len(runes)
	for i < n {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '/' && i+1 < n && runes[i+1] == '/':
			for i < n && runes[i] != '\n' {
				i++
			}
		case c == '"':
			j := i + 1
			for j < n && runes[j] != '"' {
				if runes[j] == '\\' {
					j++
				}
				j++
			}
			toks = append(toks, schemaToken{text: string(runes[i : j+1])})
			i = j + 1
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < n && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			toks = append(toks, schemaToken{text: string(runes[i:j])})
			i = j
		case strings.ContainsRune("{}[]<>;:,=?", c):
			toks = append(toks, schemaToken{text: string(c)})
			i++
		default:
			i++
		}
	}
	return toks
}

type schemaParser struct {
	toks []schemaToken
	pos  int
}

func (p *schemaParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos].text
}

func (p *schemaParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *schemaParser) expect(tok string) error {
	if p.peek() != tok {
		return fmt.Errorf("cedarconv: expected %q, got %q", tok, p.peek())
	}
	p.pos++
	return nil
}

func unquote(tok string) string {
	s := strings.TrimPrefix(tok, `"`)
	s = strings.TrimSuffix(s, `"`)
	unq, err := strconv.Unquote(`"` + s + `"`)
	if err != nil {
		return s
	}
	return unq
}

func (p *schemaParser) parseSchema() (model.Schema, error) {
	s := model.Schema{Namespaces: map[string]model.Namespace{}}
	defaultNS := model.Namespace{
		EntityTypes: map[string]model.EntityTypeDecl{},
		Actions:     map[string]model.ActionDecl{},
		CommonTypes: map[string]model.SchemaType{},
	}
	for p.peek() != "" {
		if p.peek() == "namespace" {
			p.next()
			name := p.next()
			if err := p.expect("{"); err != nil {
				return model.Schema{}, err
			}
			ns := model.Namespace{
				EntityTypes: map[string]model.EntityTypeDecl{},
				Actions:     map[string]model.ActionDecl{},
				CommonTypes: map[string]model.SchemaType{},
			}
			if err := p.parseNamespaceBody(&ns); err != nil {
				return model.Schema{}, err
			}
			if err := p.expect("}"); err != nil {
				return model.Schema{}, err
			}
			s.Namespaces[name] = ns
			continue
		}
		if err := p.parseDecl(&defaultNS); err != nil {
			return model.Schema{}, err
		}
	}
	if len(defaultNS.EntityTypes) > 0 || len(defaultNS.Actions) > 0 || len(defaultNS.CommonTypes) > 0 {
		s.Namespaces[model.DefaultNamespaceSentinel] = defaultNS
	}
	return s, nil
}

func (p *schemaParser) parseNamespaceBody(ns *model.Namespace) error {
	for p.peek() != "}" && p.peek() != "" {
		if err := p.parseDecl(ns); err != nil {
			return err
		}
	}
	return nil
}

func (p *schemaParser) parseDecl(ns *model.Namespace) error {
	switch p.peek() {
	case "entity":
		p.next()
		name := p.next()
		decl := model.EntityTypeDecl{}
		if p.peek() == "in" {
			p.next()
			types, err := p.parseTypeList()
			if err != nil {
				return err
			}
			decl.MemberOfTypes = types
		}
		if p.peek() == "{" {
			shape, err := p.parseRecordType()
			if err != nil {
				return err
			}
			decl.Shape = &shape
		}
		if p.peek() == "tags" {
			p.next()
			tags, err := p.parseType()
			if err != nil {
				return err
			}
			decl.Tags = &tags
		}
		if err := p.expect(";"); err != nil {
			return err
		}
		ns.EntityTypes[name] = decl
		return nil

	case "action":
		p.next()
		name := unquote(p.next())
		decl := model.ActionDecl{}
		if p.peek() == "in" {
			p.next()
			uids, err := p.parseActionUidList()
			if err != nil {
				return err
			}
			decl.MemberOf = uids
		}
		if p.peek() == "appliesTo" {
			p.next()
			if err := p.expect("{"); err != nil {
				return err
			}
			at := &model.AppliesTo{}
			for p.peek() != "}" {
				switch p.peek() {
				case "principal":
					p.next()
					p.expect(":")
					types, err := p.parseTypeList()
					if err != nil {
						return err
					}
					at.PrincipalTypes = types
				case "resource":
					p.next()
					p.expect(":")
					types, err := p.parseTypeList()
					if err != nil {
						return err
					}
					at.ResourceTypes = types
				case "context":
					p.next()
					p.expect(":")
					ctx, err := p.parseType()
					if err != nil {
						return err
					}
					at.Context = &ctx
				default:
					return fmt.Errorf("cedarconv: unexpected token in appliesTo: %q", p.peek())
				}
				if p.peek() == "," {
					p.next()
				}
			}
			if err := p.expect("}"); err != nil {
				return err
			}
			decl.AppliesTo = at
		}
		if err := p.expect(";"); err != nil {
			return err
		}
		ns.Actions[name] = decl
		return nil

	case "type":
		p.next()
		name := p.next()
		if err := p.expect("="); err != nil {
			return err
		}
		t, err := p.parseType()
		if err != nil {
			return err
		}
		if err := p.expect(";"); err != nil {
			return err
		}
		ns.CommonTypes[name] = t
		return nil

	default:
		return fmt.Errorf("cedarconv: unexpected token %q", p.peek())
	}
}

func (p *schemaParser) parseTypeList() ([]string, error) {
	if p.peek() == "[" {
		p.next()
		var out []string
		for p.peek() != "]" {
			out = append(out, p.next())
			if p.peek() == "," {
				p.next()
			}
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		return out, nil
	}
	return []string{p.next()}, nil
}

func (p *schemaParser) parseActionUidList() ([]model.EntityUid, error) {
	names, err := p.parseQuotedList()
	if err != nil {
		return nil, err
	}
	out := make([]model.EntityUid, len(names))
	for i, n := range names {
		out[i] = model.EntityUid{Type: "Action", ID: n}
	}
	return out, nil
}

func (p *schemaParser) parseQuotedList() ([]string, error) {
	if p.peek() == "[" {
		p.next()
		var out []string
		for p.peek() != "]" {
			out = append(out, unquote(p.next()))
			if p.peek() == "," {
				p.next()
			}
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		return out, nil
	}
	return []string{unquote(p.next())}, nil
}

func (p *schemaParser) parseRecordType() (model.SchemaType, error) {
	if err := p.expect("{"); err != nil {
		return model.SchemaType{}, err
	}
	t := model.SchemaType{Kind: model.TypeRecord, Attributes: map[string]model.SchemaAttribute{}}
	for p.peek() != "}" {
		fieldName := p.next()
		required := true
		if p.peek() == "?" {
			p.next()
			required = false
		}
		if err := p.expect(":"); err != nil {
			return model.SchemaType{}, err
		}
		fieldType, err := p.parseType()
		if err != nil {
			return model.SchemaType{}, err
		}
		t.Attributes[fieldName] = model.SchemaAttribute{Type: fieldType, Required: required, RequiredSet: !required}
		if p.peek() == "," {
			p.next()
		}
	}
	if err := p.expect("}"); err != nil {
		return model.SchemaType{}, err
	}
	return t, nil
}

func (p *schemaParser) parseType() (model.SchemaType, error) {
	switch p.peek() {
	case "{":
		return p.parseRecordType()
	case "Set":
		p.next()
		if err := p.expect("<"); err != nil {
			return model.SchemaType{}, err
		}
		elem, err := p.parseType()
		if err != nil {
			return model.SchemaType{}, err
		}
		if err := p.expect(">"); err != nil {
			return model.SchemaType{}, err
		}
		return model.SchemaType{Kind: model.TypeSet, Element: &elem}, nil
	case "":
		return model.SchemaType{}, fmt.Errorf("cedarconv: unexpected end of input parsing type")
	default:
		name := p.next()
		switch name {
		case "Long":
			return model.SchemaType{Kind: model.TypeLong}, nil
		case "String":
			return model.SchemaType{Kind: model.TypeString}, nil
		case "Bool", "Boolean":
			return model.SchemaType{Kind: model.TypeBoolean}, nil
		default:
			return model.SchemaType{Kind: model.TypeEntityOrCommon, Name: name}, nil
		}
	}
}
