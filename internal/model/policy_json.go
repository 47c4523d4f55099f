package model

import (
	"encoding/json"
	"fmt"
)

// scopeJSON is the wire shape of a principal/resource scope clause:
// {"op":"==","entity":{...}}, {"op":"in","slot":"?principal"},
// {"op":"is","entityType":"User","in":{...}}, or {"op":"All"}.
type scopeJSON struct {
	Op         string         `json:"op"`
	Entity     *entityUidJSON `json:"entity,omitempty"`
	Slot       string         `json:"slot,omitempty"`
	EntityType string         `json:"entityType,omitempty"`
	In         *entityUidJSON `json:"in,omitempty"`
}

func parseSlot(s string) (SlotId, error) {
	switch s {
	case "?principal":
		return SlotPrincipal, nil
	case "?resource":
		return SlotResource, nil
	default:
		return SlotNone, fmt.Errorf("%w: unknown slot %q", ErrInvalidEncoding, s)
	}
}

func (p PrincipalOrResource) MarshalJSON() ([]byte, error) {
	w := scopeJSON{}
	switch p.Op {
	case OpAll:
		w.Op = "All"
	case OpEq:
		w.Op = "=="
		if p.Slot != SlotNone {
			w.Slot = p.Slot.String()
		} else {
			w.Entity = &entityUidJSON{Type: p.Entity.Type, ID: p.Entity.ID}
		}
	case OpIn:
		w.Op = "in"
		if p.Slot != SlotNone {
			w.Slot = p.Slot.String()
		} else {
			w.Entity = &entityUidJSON{Type: p.Entity.Type, ID: p.Entity.ID}
		}
	case OpIs:
		w.Op = "is"
		w.EntityType = p.EntityType
		if p.InEntity != nil {
			w.In = &entityUidJSON{Type: p.InEntity.Type, ID: p.InEntity.ID}
		}
	default:
		return nil, fmt.Errorf("%w: unknown scope op %d", ErrInvalidEncoding, p.Op)
	}
	return json.Marshal(w)
}

func (p *PrincipalOrResource) UnmarshalJSON(b []byte) error {
	var w scopeJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: scope: %v", ErrInvalidEncoding, err)
	}
	switch w.Op {
	case "All", "all", "":
		p.Op = OpAll
	case "==":
		p.Op = OpEq
		if w.Slot != "" {
			slot, err := parseSlot(w.Slot)
			if err != nil {
				return err
			}
			p.Slot = slot
		} else if w.Entity != nil {
			p.Entity = EntityUid{Type: w.Entity.Type, ID: w.Entity.ID}
		} else {
			return fmt.Errorf("%w: == scope missing entity or slot", ErrInvalidEncoding)
		}
	case "in":
		p.Op = OpIn
		if w.Slot != "" {
			slot, err := parseSlot(w.Slot)
			if err != nil {
				return err
			}
			p.Slot = slot
		} else if w.Entity != nil {
			p.Entity = EntityUid{Type: w.Entity.Type, ID: w.Entity.ID}
		} else {
			return fmt.Errorf("%w: in scope missing entity or slot", ErrInvalidEncoding)
		}
	case "is":
		p.Op = OpIs
		if w.EntityType == "" {
			return fmt.Errorf("%w: is scope missing entityType", ErrInvalidEncoding)
		}
		p.EntityType = w.EntityType
		if w.In != nil {
			in := EntityUid{Type: w.In.Type, ID: w.In.ID}
			p.InEntity = &in
		}
	default:
		return fmt.Errorf("%w: unknown scope op %q", ErrInvalidEncoding, w.Op)
	}
	return nil
}

// actionScopeJSON is the wire shape of an action clause:
// {"op":"==","entity":{...}} or {"op":"in","entities":[...]} or {"op":"All"}.
type actionScopeJSON struct {
	Op       string          `json:"op"`
	Entity   *entityUidJSON  `json:"entity,omitempty"`
	Entities []entityUidJSON `json:"entities,omitempty"`
}

func (a ActionScope) MarshalJSON() ([]byte, error) {
	w := actionScopeJSON{}
	switch a.Op {
	case OpAll:
		w.Op = "All"
	case OpEq:
		w.Op = "=="
		if len(a.Entities) != 1 {
			return nil, fmt.Errorf("%w: == action scope requires exactly one entity", ErrInvalidEncoding)
		}
		w.Entity = &entityUidJSON{Type: a.Entities[0].Type, ID: a.Entities[0].ID}
	case OpIn:
		w.Op = "in"
		for _, e := range a.Entities {
			w.Entities = append(w.Entities, entityUidJSON{Type: e.Type, ID: e.ID})
		}
	default:
		return nil, fmt.Errorf("%w: unknown action scope op %d", ErrInvalidEncoding, a.Op)
	}
	return json.Marshal(w)
}

func (a *ActionScope) UnmarshalJSON(b []byte) error {
	var w actionScopeJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: action scope: %v", ErrInvalidEncoding, err)
	}
	switch w.Op {
	case "All", "all", "":
		a.Op = OpAll
	case "==":
		a.Op = OpEq
		if w.Entity == nil {
			return fmt.Errorf("%w: == action scope missing entity", ErrInvalidEncoding)
		}
		a.Entities = []EntityUid{{Type: w.Entity.Type, ID: w.Entity.ID}}
	case "in":
		a.Op = OpIn
		for _, e := range w.Entities {
			a.Entities = append(a.Entities, EntityUid{Type: e.Type, ID: e.ID})
		}
	default:
		return fmt.Errorf("%w: unknown action scope op %q", ErrInvalidEncoding, w.Op)
	}
	return nil
}

// conditionJSON is a ("when"|"unless", expr) pair: {"kind":"when","body":{...}}.
type conditionJSON struct {
	Kind string   `json:"kind"`
	Body JsonExpr `json:"body"`
}

func (c Condition) MarshalJSON() ([]byte, error) {
	kind := "when"
	if c.Kind == Unless {
		kind = "unless"
	}
	return json.Marshal(conditionJSON{Kind: kind, Body: c.Expr})
}

func (c *Condition) UnmarshalJSON(b []byte) error {
	var w conditionJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: condition: %v", ErrInvalidEncoding, err)
	}
	switch w.Kind {
	case "when":
		c.Kind = When
	case "unless":
		c.Kind = Unless
	default:
		return fmt.Errorf("%w: unknown condition kind %q", ErrInvalidEncoding, w.Kind)
	}
	c.Expr = w.Body
	return nil
}

type policyJSON struct {
	Effect      string        `json:"effect"`
	Principal   PrincipalOrResource `json:"principal"`
	Action      ActionScope   `json:"action"`
	Resource    PrincipalOrResource `json:"resource"`
	Conditions  []Condition   `json:"conditions"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

func effectFromWire(s string) (Effect, error) {
	switch s {
	case "permit":
		return Permit, nil
	case "forbid":
		return Forbid, nil
	default:
		return EffectInvalid, fmt.Errorf("%w: unknown effect %q", ErrInvalidEncoding, s)
	}
}

func (p Policy) MarshalJSON() ([]byte, error) {
	return json.Marshal(policyJSON{
		Effect:      p.Effect.String(),
		Principal:   p.Principal,
		Action:      p.Action,
		Resource:    p.Resource,
		Conditions:  p.Conditions,
		Annotations: p.Annotations,
	})
}

func (p *Policy) UnmarshalJSON(b []byte) error {
	var w policyJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: policy: %v", ErrInvalidEncoding, err)
	}
	eff, err := effectFromWire(w.Effect)
	if err != nil {
		return err
	}
	p.Effect = eff
	p.Principal = w.Principal
	p.Action = w.Action
	p.Resource = w.Resource
	p.Conditions = w.Conditions
	p.Annotations = w.Annotations
	return nil
}

func (t Template) MarshalJSON() ([]byte, error) {
	return json.Marshal(policyJSON{
		Effect:      t.Effect.String(),
		Principal:   t.Principal,
		Action:      t.Action,
		Resource:    t.Resource,
		Conditions:  t.Conditions,
		Annotations: t.Annotations,
	})
}

func (t *Template) UnmarshalJSON(b []byte) error {
	var w policyJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: template: %v", ErrInvalidEncoding, err)
	}
	eff, err := effectFromWire(w.Effect)
	if err != nil {
		return err
	}
	t.Effect = eff
	t.Principal = w.Principal
	t.Action = w.Action
	t.Resource = w.Resource
	t.Conditions = w.Conditions
	t.Annotations = w.Annotations
	return nil
}

// templateLinkJSON is the wire shape of a template link:
// {"templateId":"t1","newId":"l1","values":{"?principal":{...},"?resource":{...}}}.
type templateLinkJSON struct {
	TemplateID string                   `json:"templateId"`
	NewID      string                   `json:"newId"`
	Values     map[string]entityUidJSON `json:"values"`
}

func (l TemplateLink) MarshalJSON() ([]byte, error) {
	w := templateLinkJSON{TemplateID: l.TemplateID, NewID: l.NewID, Values: map[string]entityUidJSON{}}
	for slot, uid := range l.Values {
		w.Values[slot.String()] = entityUidJSON{Type: uid.Type, ID: uid.ID}
	}
	return json.Marshal(w)
}

func (l *TemplateLink) UnmarshalJSON(b []byte) error {
	var w templateLinkJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: template link: %v", ErrInvalidEncoding, err)
	}
	if w.TemplateID == "" || w.NewID == "" {
		return fmt.Errorf("%w: template link missing templateId or newId", ErrInvalidEncoding)
	}
	l.TemplateID = w.TemplateID
	l.NewID = w.NewID
	l.Values = map[SlotId]EntityUid{}
	for slotStr, uid := range w.Values {
		slot, err := parseSlot(slotStr)
		if err != nil {
			return err
		}
		l.Values[slot] = EntityUid{Type: uid.Type, ID: uid.ID}
	}
	return nil
}

// policySetJSON is the union used for the /policy-set endpoint.
type policySetJSON struct {
	StaticPolicies map[string]Policy   `json:"static_policies"`
	Templates      map[string]Template `json:"templates"`
	TemplateLinks  []TemplateLink      `json:"template_links"`
}

func (ps PolicySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(policySetJSON{
		StaticPolicies: ps.StaticPolicies,
		Templates:      ps.Templates,
		TemplateLinks:  ps.TemplateLinks,
	})
}

func (ps *PolicySet) UnmarshalJSON(b []byte) error {
	var w policySetJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: policy set: %v", ErrInvalidEncoding, err)
	}
	ps.StaticPolicies = w.StaticPolicies
	if ps.StaticPolicies == nil {
		ps.StaticPolicies = map[string]Policy{}
	}
	ps.Templates = w.Templates
	if ps.Templates == nil {
		ps.Templates = map[string]Template{}
	}
	ps.TemplateLinks = w.TemplateLinks
	return nil
}
