package cedarconv

import (
	"fmt"
	"sort"
	"strings"

	cedar "github.com/cedar-policy/cedar-go"

	"cedrus/internal/model"
)

func principalOrResourceText(varName string, p model.PrincipalOrResource) (string, error) {
	switch p.Op {
	case model.OpAll:
		return varName, nil
	case model.OpEq, model.OpIn:
		op := "=="
		if p.Op == model.OpIn {
			op = "in"
		}
		if p.Slot != model.SlotNone {
			return varName + " " + op + " " + p.Slot.String(), nil
		}
		return varName + " " + op + " " + entityUidLiteral(p.Entity), nil
	case model.OpIs:
		out := varName + " is " + p.EntityType
		if p.InEntity != nil {
			out += " in " + entityUidLiteral(*p.InEntity)
		}
		return out, nil
	default:
		return "", fmt.Errorf("cedarconv: unknown scope op %d", p.Op)
	}
}

func actionScopeText(a model.ActionScope) (string, error) {
	switch a.Op {
	case model.OpAll:
		return "action", nil
	case model.OpEq:
		if len(a.Entities) != 1 {
			return "", fmt.Errorf("cedarconv: == action scope requires exactly one entity")
		}
		return "action == " + entityUidLiteral(a.Entities[0]), nil
	case model.OpIn:
		lits := make([]string, len(a.Entities))
		for i, e := range a.Entities {
			lits[i] = entityUidLiteral(e)
		}
		return "action in [" + strings.Join(lits, ", ") + "]", nil
	default:
		return "", fmt.Errorf("cedarconv: unknown action scope op %d", a.Op)
	}
}

// PolicyText renders one permit/forbid statement as Cedar source, annotations
// included, ready for cedar.Policy.UnmarshalCedar.
func PolicyText(effect model.Effect, principal model.PrincipalOrResource, action model.ActionScope, resource model.PrincipalOrResource, conditions []model.Condition, annotations map[string]string) (string, error) {
	var b strings.Builder

	keys := make([]string, 0, len(annotations))
	for k := range annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "@%s(%s)\n", k, quoted(annotations[k]))
	}

	b.WriteString(effect.String())
	b.WriteString(" (\n  ")

	pText, err := principalOrResourceText("principal", principal)
	if err != nil {
		return "", fmt.Errorf("principal: %w", err)
	}
	aText, err := actionScopeText(action)
	if err != nil {
		return "", fmt.Errorf("action: %w", err)
	}
	rText, err := principalOrResourceText("resource", resource)
	if err != nil {
		return "", fmt.Errorf("resource: %w", err)
	}
	b.WriteString(pText)
	b.WriteString(",\n  ")
	b.WriteString(aText)
	b.WriteString(",\n  ")
	b.WriteString(rText)
	b.WriteString("\n)")

	for _, c := range conditions {
		body, err := exprText(c.Expr)
		if err != nil {
			return "", fmt.Errorf("condition: %w", err)
		}
		kw := "when"
		if c.Kind == model.Unless {
			kw = "unless"
		}
		fmt.Fprintf(&b, "\n%s { %s }", kw, body)
	}
	b.WriteString(";\n")
	return b.String(), nil
}

// linkedScopes substitutes a TemplateLink's bound entities for its
// template's open slots, returning the concrete principal/resource scopes
// the linked policy evaluates under. Cedar's own slot/link machinery is not
// exercised: every link is flattened into an ordinary policy, parsed through
// the same UnmarshalCedar entry point as static policies, and added to the
// set under the link's own id — so diagnostics report our PolicyId
// directly instead of an id we'd have to translate back.
func linkedScopes(link model.TemplateLink, tmpl model.Template) (model.PrincipalOrResource, model.PrincipalOrResource) {
	principal := tmpl.Principal
	if uid, ok := link.Values[model.SlotPrincipal]; ok {
		principal.Slot = model.SlotNone
		principal.Entity = uid
	}
	resource := tmpl.Resource
	if uid, ok := link.Values[model.SlotResource]; ok {
		resource.Slot = model.SlotNone
		resource.Entity = uid
	}
	return principal, resource
}

// LinkedPolicyText renders a TemplateLink materialized against its Template.
func LinkedPolicyText(link model.TemplateLink, tmpl model.Template) (string, error) {
	principal, resource := linkedScopes(link, tmpl)
	return PolicyText(tmpl.Effect, principal, tmpl.Action, resource, tmpl.Conditions, tmpl.Annotations)
}

func parsePolicy(id, text string) (*cedar.Policy, error) {
	var p cedar.Policy
	if err := p.UnmarshalCedar([]byte(text)); err != nil {
		return nil, fmt.Errorf("cedarconv: parse policy %s: %w", id, err)
	}
	return &p, nil
}

// ToPolicySet compiles a model.PolicySet (static policies plus every
// template link expanded against its template) into the *cedar.PolicySet
// cedar.Authorize expects, keyed by the same PolicyIds the admin API uses.
func ToPolicySet(ps model.PolicySet) (*cedar.PolicySet, error) {
	out := cedar.NewPolicySet()

	ids := make([]string, 0, len(ps.StaticPolicies))
	for id := range ps.StaticPolicies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := ps.StaticPolicies[id]
		text, err := PolicyText(p.Effect, p.Principal, p.Action, p.Resource, p.Conditions, p.Annotations)
		if err != nil {
			return nil, fmt.Errorf("cedarconv: policy %s: %w", id, err)
		}
		cp, err := parsePolicy(id, text)
		if err != nil {
			return nil, err
		}
		out.Add(cedar.PolicyID(id), cp)
	}

	links := make([]model.TemplateLink, len(ps.TemplateLinks))
	copy(links, ps.TemplateLinks)
	sort.Slice(links, func(i, j int) bool { return links[i].NewID < links[j].NewID })
	for _, link := range links {
		tmpl, ok := ps.Templates[link.TemplateID]
		if !ok {
			return nil, fmt.Errorf("cedarconv: template link %s references unknown template %s", link.NewID, link.TemplateID)
		}
		text, err := LinkedPolicyText(link, tmpl)
		if err != nil {
			return nil, fmt.Errorf("cedarconv: template link %s: %w", link.NewID, err)
		}
		cp, err := parsePolicy(link.NewID, text)
		if err != nil {
			return nil, err
		}
		out.Add(cedar.PolicyID(link.NewID), cp)
	}

	return out, nil
}
