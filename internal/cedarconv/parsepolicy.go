package cedarconv

import (
	"fmt"
	"strconv"
	"strings"

	"cedrus/internal/model"
)

// ParsePolicyText parses a single permit/forbid statement rendered by
// PolicyText back into a Policy. Cedar's own parser only builds its
// internal AST (see parsePolicy, used one-way by ToPolicySet); there is no
// exported path from policy-DSL text back to a structured value, so this is
// a hand-rolled recursive-descent parser over the same grammar PolicyText
// emits (see DESIGN.md).
func ParsePolicyText(text string) (model.Policy, error) {
	parsed, err := parseOnePolicy(text)
	if err != nil {
		return model.Policy{}, err
	}
	return model.Policy{
		Effect:      parsed.Effect,
		Principal:   parsed.Principal,
		Action:      parsed.Action,
		Resource:    parsed.Resource,
		Conditions:  parsed.Conditions,
		Annotations: parsed.Annotations,
	}, nil
}

// ParseTemplateText is ParsePolicyText for a template body; the grammar is
// identical, slots included.
func ParseTemplateText(text string) (model.Template, error) {
	parsed, err := parseOnePolicy(text)
	if err != nil {
		return model.Template{}, err
	}
	return model.Template{
		Effect:      parsed.Effect,
		Principal:   parsed.Principal,
		Action:      parsed.Action,
		Resource:    parsed.Resource,
		Conditions:  parsed.Conditions,
		Annotations: parsed.Annotations,
	}, nil
}

type parsedPolicy struct {
	Effect      model.Effect
	Principal   model.PrincipalOrResource
	Action      model.ActionScope
	Resource    model.PrincipalOrResource
	Conditions  []model.Condition
	Annotations map[string]string
}

func parseOnePolicy(text string) (parsedPolicy, error) {
	p := &polParser{toks: tokenizePolicy(text)}
	out, err := p.parseStatement()
	if err != nil {
		return parsedPolicy{}, err
	}
	if p.peek() != "" {
		return parsedPolicy{}, fmt.Errorf("cedarconv: unexpected trailing content %q", p.peek())
	}
	return out, nil
}

type polToken struct {
	text string
}

var polMultiCharOps = []string{"==", "!=", "<=", ">=", "&&", "||", "::"}

func tokenizePolicy(text string) []polToken {
	var toks []polToken
	runes := []rune(text)
	i := 0
	n := len(runes)
	for i < n {
		c := runes[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
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
			toks = append(toks, polToken{text: string(runes[i : j+1])})
			i = j + 1
		case c >= '0' && c <= '9':
			j := i
			for j < n && runes[j] >= '0' && runes[j] <= '9' {
				j++
			}
			toks = append(toks, polToken{text: string(runes[i:j])})
			i = j
		case isIdentStart(c):
			j := i
			for j < n && isIdentPart(runes[j]) {
				j++
			}
			toks = append(toks, polToken{text: string(runes[i:j])})
			i = j
		default:
			matched := false
			for _, op := range polMultiCharOps {
				if i+len(op) <= n && string(runes[i:i+len(op)]) == op {
					toks = append(toks, polToken{text: op})
					i += len(op)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			if strings.ContainsRune("(){}[],.;!+-*<>?:@", c) {
				toks = append(toks, polToken{text: string(c)})
			}
			i++
		}
	}
	return toks
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

type polParser struct {
	toks []polToken
	pos  int
}

func (p *polParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos].text
}

func (p *polParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *polParser) expect(tok string) error {
	if p.peek() != tok {
		return fmt.Errorf("cedarconv: expected %q, got %q", tok, p.peek())
	}
	p.pos++
	return nil
}

func (p *polParser) parseStatement() (parsedPolicy, error) {
	out := parsedPolicy{}

	for p.peek() == "@" {
		p.next()
		name := p.next()
		if err := p.expect("("); err != nil {
			return out, err
		}
		val := unquote(p.next())
		if err := p.expect(")"); err != nil {
			return out, err
		}
		if out.Annotations == nil {
			out.Annotations = map[string]string{}
		}
		out.Annotations[name] = val
	}

	switch p.peek() {
	case "permit":
		out.Effect = model.Permit
	case "forbid":
		out.Effect = model.Forbid
	default:
		return out, fmt.Errorf("cedarconv: expected permit or forbid, got %q", p.peek())
	}
	p.next()

	if err := p.expect("("); err != nil {
		return out, err
	}
	if err := p.expect("principal"); err != nil {
		return out, err
	}
	principal, err := p.parseScopeClause()
	if err != nil {
		return out, fmt.Errorf("principal: %w", err)
	}
	out.Principal = principal
	if err := p.expect(","); err != nil {
		return out, err
	}
	if err := p.expect("action"); err != nil {
		return out, err
	}
	action, err := p.parseActionClause()
	if err != nil {
		return out, fmt.Errorf("action: %w", err)
	}
	out.Action = action
	if err := p.expect(","); err != nil {
		return out, err
	}
	if err := p.expect("resource"); err != nil {
		return out, err
	}
	resource, err := p.parseScopeClause()
	if err != nil {
		return out, fmt.Errorf("resource: %w", err)
	}
	out.Resource = resource
	if err := p.expect(")"); err != nil {
		return out, err
	}

	for p.peek() == "when" || p.peek() == "unless" {
		kind := model.When
		if p.peek() == "unless" {
			kind = model.Unless
		}
		p.next()
		if err := p.expect("{"); err != nil {
			return out, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return out, fmt.Errorf("condition: %w", err)
		}
		if err := p.expect("}"); err != nil {
			return out, err
		}
		out.Conditions = append(out.Conditions, model.Condition{Kind: kind, Expr: expr})
	}

	if err := p.expect(";"); err != nil {
		return out, err
	}
	return out, nil
}

func (p *polParser) parseScopeClause() (model.PrincipalOrResource, error) {
	switch p.peek() {
	case "==":
		p.next()
		return p.parseScopeOperand(model.OpEq)
	case "in":
		p.next()
		return p.parseScopeOperand(model.OpIn)
	case "is":
		p.next()
		typ := p.next()
		out := model.PrincipalOrResource{Op: model.OpIs, EntityType: typ}
		if p.peek() == "in" {
			p.next()
			e, err := p.parseEntityUid()
			if err != nil {
				return out, err
			}
			out.InEntity = &e
		}
		return out, nil
	default:
		return model.PrincipalOrResource{Op: model.OpAll}, nil
	}
}

func (p *polParser) parseScopeOperand(op model.ScopeOp) (model.PrincipalOrResource, error) {
	if p.peek() == "?" {
		p.next()
		name := p.next()
		slot := model.SlotResource
		if name == "principal" {
			slot = model.SlotPrincipal
		}
		return model.PrincipalOrResource{Op: op, Slot: slot}, nil
	}
	e, err := p.parseEntityUid()
	if err != nil {
		return model.PrincipalOrResource{}, err
	}
	return model.PrincipalOrResource{Op: op, Entity: e}, nil
}

func (p *polParser) parseActionClause() (model.ActionScope, error) {
	switch p.peek() {
	case "==":
		p.next()
		e, err := p.parseEntityUid()
		if err != nil {
			return model.ActionScope{}, err
		}
		return model.ActionScope{Op: model.OpEq, Entities: []model.EntityUid{e}}, nil
	case "in":
		p.next()
		if p.peek() == "[" {
			p.next()
			var entities []model.EntityUid
			for p.peek() != "]" {
				e, err := p.parseEntityUid()
				if err != nil {
					return model.ActionScope{}, err
				}
				entities = append(entities, e)
				if p.peek() == "," {
					p.next()
				}
			}
			if err := p.expect("]"); err != nil {
				return model.ActionScope{}, err
			}
			return model.ActionScope{Op: model.OpIn, Entities: entities}, nil
		}
		e, err := p.parseEntityUid()
		if err != nil {
			return model.ActionScope{}, err
		}
		return model.ActionScope{Op: model.OpIn, Entities: []model.EntityUid{e}}, nil
	default:
		return model.ActionScope{Op: model.OpAll}, nil
	}
}

func (p *polParser) parseEntityUid() (model.EntityUid, error) {
	return p.parseEntityUidFrom(p.next())
}

func (p *polParser) parseEntityUidFrom(first string) (model.EntityUid, error) {
	typeParts := []string{first}
	for p.peek() == "::" {
		p.next()
		nxt := p.peek()
		if strings.HasPrefix(nxt, `"`) {
			id := unquote(p.next())
			return model.EntityUid{Type: strings.Join(typeParts, "::"), ID: id}, nil
		}
		typeParts = append(typeParts, p.next())
	}
	return model.EntityUid{}, fmt.Errorf("cedarconv: expected entity id after %q", strings.Join(typeParts, "::"))
}

func (p *polParser) parseExpr() (model.JsonExpr, error) {
	return p.parseOr()
}

func (p *polParser) parseOr() (model.JsonExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return left, err
	}
	for p.peek() == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return left, err
		}
		l, r := left, right
		left = model.JsonExpr{Kind: model.ExprBinary, Op: model.BinOr, Left: &l, Right: &r}
	}
	return left, nil
}

func (p *polParser) parseAnd() (model.JsonExpr, error) {
	left, err := p.parseRelation()
	if err != nil {
		return left, err
	}
	for p.peek() == "&&" {
		p.next()
		right, err := p.parseRelation()
		if err != nil {
			return left, err
		}
		l, r := left, right
		left = model.JsonExpr{Kind: model.ExprBinary, Op: model.BinAnd, Left: &l, Right: &r}
	}
	return left, nil
}

var relOps = map[string]model.BinOp{
	"==": model.BinEq,
	"!=": model.BinNotEq,
	"<":  model.BinLess,
	"<=": model.BinLessEq,
	">":  model.BinGreater,
	">=": model.BinGreaterEq,
	"in": model.BinIn,
}

func (p *polParser) parseRelation() (model.JsonExpr, error) {
	left, err := p.parseAdd()
	if err != nil {
		return left, err
	}
	switch p.peek() {
	case "has":
		p.next()
		attr := unquote(p.next())
		l := left
		return model.JsonExpr{Kind: model.ExprHas, Inner: &l, Attr: attr}, nil
	case "like":
		p.next()
		pattern := unquote(p.next())
		l := left
		return model.JsonExpr{Kind: model.ExprLike, Inner: &l, Pattern: pattern}, nil
	case "is":
		p.next()
		typ := p.next()
		l := left
		node := model.JsonExpr{Kind: model.ExprIs, Inner: &l, IsType: typ}
		if p.peek() == "in" {
			p.next()
			in, err := p.parseAdd()
			if err != nil {
				return node, err
			}
			node.IsInEntity = &in
		}
		return node, nil
	}
	if op, ok := relOps[p.peek()]; ok {
		p.next()
		right, err := p.parseAdd()
		if err != nil {
			return left, err
		}
		l, r := left, right
		return model.JsonExpr{Kind: model.ExprBinary, Op: op, Left: &l, Right: &r}, nil
	}
	return left, nil
}

func (p *polParser) parseAdd() (model.JsonExpr, error) {
	left, err := p.parseMult()
	if err != nil {
		return left, err
	}
	for p.peek() == "+" || p.peek() == "-" {
		opTok := p.next()
		right, err := p.parseMult()
		if err != nil {
			return left, err
		}
		op := model.BinAdd
		if opTok == "-" {
			op = model.BinSub
		}
		l, r := left, right
		left = model.JsonExpr{Kind: model.ExprBinary, Op: op, Left: &l, Right: &r}
	}
	return left, nil
}

func (p *polParser) parseMult() (model.JsonExpr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return left, err
	}
	for p.peek() == "*" {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return left, err
		}
		l, r := left, right
		left = model.JsonExpr{Kind: model.ExprBinary, Op: model.BinMul, Left: &l, Right: &r}
	}
	return left, nil
}

func (p *polParser) parseUnary() (model.JsonExpr, error) {
	if p.peek() == "!" {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return inner, err
		}
		return model.JsonExpr{Kind: model.ExprNot, Inner: &inner}, nil
	}
	if p.peek() == "-" {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return inner, err
		}
		return model.JsonExpr{Kind: model.ExprNeg, Inner: &inner}, nil
	}
	return p.parseMember()
}

var methodBinOps = map[string]model.BinOp{
	"contains":    model.BinContains,
	"containsAll": model.BinContainsAll,
	"containsAny": model.BinContainsAny,
}

func (p *polParser) parseMember() (model.JsonExpr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return left, err
	}
	for {
		switch p.peek() {
		case ".":
			p.next()
			name := p.next()
			if p.peek() == "(" {
				p.next()
				args, err := p.parseArgs()
				if err != nil {
					return left, err
				}
				if err := p.expect(")"); err != nil {
					return left, err
				}
				op, ok := methodBinOps[name]
				if !ok {
					return left, fmt.Errorf("cedarconv: unsupported method %q", name)
				}
				if len(args) != 1 {
					return left, fmt.Errorf("cedarconv: %s takes exactly one argument", name)
				}
				l := left
				left = model.JsonExpr{Kind: model.ExprBinary, Op: op, Left: &l, Right: &args[0]}
				continue
			}
			l := left
			left = model.JsonExpr{Kind: model.ExprDot, Inner: &l, Attr: name}
		case "[":
			p.next()
			attr := unquote(p.next())
			if err := p.expect("]"); err != nil {
				return left, err
			}
			l := left
			left = model.JsonExpr{Kind: model.ExprDot, Inner: &l, Attr: attr}
		default:
			return left, nil
		}
	}
}

func (p *polParser) parseArgs() ([]model.JsonExpr, error) {
	var out []model.JsonExpr
	for p.peek() != ")" && p.peek() != "" {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if p.peek() == "," {
			p.next()
		}
	}
	return out, nil
}

func (p *polParser) parsePrimary() (model.JsonExpr, error) {
	tok := p.peek()
	switch tok {
	case "":
		return model.JsonExpr{}, fmt.Errorf("cedarconv: unexpected end of input parsing expression")
	case "if":
		p.next()
		cond, err := p.parseExpr()
		if err != nil {
			return cond, err
		}
		if err := p.expect("then"); err != nil {
			return cond, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return then, err
		}
		if err := p.expect("else"); err != nil {
			return then, err
		}
		els, err := p.parseExpr()
		if err != nil {
			return els, err
		}
		return model.JsonExpr{Kind: model.ExprIfThenElse, If: &cond, Then: &then, Else: &els}, nil
	case "true":
		p.next()
		return model.JsonExpr{Kind: model.ExprValue, Value: model.NewBoolAttr(true)}, nil
	case "false":
		p.next()
		return model.JsonExpr{Kind: model.ExprValue, Value: model.NewBoolAttr(false)}, nil
	case "principal", "action", "resource", "context":
		p.next()
		return model.JsonExpr{Kind: model.ExprVar, Var: model.Var(tok)}, nil
	case "?":
		p.next()
		name := p.next()
		slot := model.SlotResource
		if name == "principal" {
			slot = model.SlotPrincipal
		}
		return model.JsonExpr{Kind: model.ExprSlot, Slot: slot}, nil
	case "(":
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return e, err
		}
		if err := p.expect(")"); err != nil {
			return e, err
		}
		return e, nil
	case "[":
		p.next()
		var elems []model.JsonExpr
		for p.peek() != "]" {
			e, err := p.parseExpr()
			if err != nil {
				return e, err
			}
			elems = append(elems, e)
			if p.peek() == "," {
				p.next()
			}
		}
		if err := p.expect("]"); err != nil {
			return model.JsonExpr{}, err
		}
		return model.JsonExpr{Kind: model.ExprSet, Elements: elems}, nil
	case "{":
		return p.parseRecordLiteral()
	}

	if strings.HasPrefix(tok, `"`) {
		p.next()
		return model.JsonExpr{Kind: model.ExprValue, Value: model.NewStringAttr(unquote(tok))}, nil
	}
	if tok[0] >= '0' && tok[0] <= '9' {
		p.next()
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return model.JsonExpr{}, fmt.Errorf("cedarconv: invalid integer literal %q", tok)
		}
		return model.JsonExpr{Kind: model.ExprValue, Value: model.NewLongAttr(n)}, nil
	}

	ident := p.next()
	if p.peek() == "::" {
		uid, err := p.parseEntityUidFrom(ident)
		if err != nil {
			return model.JsonExpr{}, err
		}
		return model.JsonExpr{Kind: model.ExprValue, Value: model.NewEntityAttr(uid)}, nil
	}
	if p.peek() == "(" {
		p.next()
		args, err := p.parseArgs()
		if err != nil {
			return model.JsonExpr{}, err
		}
		if err := p.expect(")"); err != nil {
			return model.JsonExpr{}, err
		}
		return model.JsonExpr{Kind: model.ExprExtensionCall, ExtnFn: ident, ExtnArgs: args}, nil
	}
	return model.JsonExpr{}, fmt.Errorf("cedarconv: unexpected identifier %q in expression", ident)
}

func (p *polParser) parseRecordLiteral() (model.JsonExpr, error) {
	if err := p.expect("{"); err != nil {
		return model.JsonExpr{}, err
	}
	fields := map[string]model.JsonExpr{}
	for p.peek() != "}" {
		key := unquote(p.next())
		if err := p.expect(":"); err != nil {
			return model.JsonExpr{}, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return model.JsonExpr{}, err
		}
		fields[key] = val
		if p.peek() == "," {
			p.next()
		}
	}
	if err := p.expect("}"); err != nil {
		return model.JsonExpr{}, err
	}
	return model.JsonExpr{Kind: model.ExprRecord, Fields: fields}, nil
}
