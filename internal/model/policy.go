package model

// Effect is Permit or Forbid.
type Effect uint8

const (
	EffectInvalid Effect = iota
	Permit
	Forbid
)

func (e Effect) String() string {
	if e == Forbid {
		return "forbid"
	}
	return "permit"
}

// ScopeOp is the operator carried by a principal/resource/action scope clause.
type ScopeOp uint8

const (
	OpInvalid ScopeOp = iota
	OpAll
	OpEq
	OpIn
	OpIs // principal/resource only
)

// PrincipalOrResource is a principal or resource scope constraint:
// `op` plus an operand that is one of a bare entity, a template slot, or a
// type name with an optional `in` clause (for `is ... in ...`).
type PrincipalOrResource struct {
	Op ScopeOp

	Entity EntityUid // OpEq / OpIn operand when concrete
	Slot   SlotId    // OpEq / OpIn operand when this is a template

	// OpIs operand: the required type, and an optional "in" entity.
	EntityType string
	InEntity   *EntityUid
}

// SlotId names a template slot: either the principal or resource slot.
type SlotId uint8

const (
	SlotNone SlotId = iota
	SlotPrincipal
	SlotResource
)

func (s SlotId) String() string {
	switch s {
	case SlotPrincipal:
		return "?principal"
	case SlotResource:
		return "?resource"
	default:
		return ""
	}
}

// ActionScope constrains the action clause: All, Eq (one entity) or In (one or many).
type ActionScope struct {
	Op       ScopeOp // OpAll, OpEq, OpIn
	Entities []EntityUid
}

// ConditionKind distinguishes `when` from `unless` clauses.
type ConditionKind uint8

const (
	When ConditionKind = iota
	Unless
)

// Condition is one `(when|unless) { <expr> }` clause.
type Condition struct {
	Kind ConditionKind
	Expr JsonExpr
}

// Policy is a single permit/forbid rule.
type Policy struct {
	ID          string
	Effect      Effect
	Principal   PrincipalOrResource
	Action      ActionScope
	Resource    PrincipalOrResource
	Conditions  []Condition
	Annotations map[string]string
}

// Template is shaped like Policy but principal/resource may reference slots.
type Template struct {
	ID          string
	Effect      Effect
	Principal   PrincipalOrResource
	Action      ActionScope
	Resource    PrincipalOrResource
	Conditions  []Condition
	Annotations map[string]string
}

// TemplateLink materializes a Template by binding its slots to concrete entities.
type TemplateLink struct {
	TemplateID string
	NewID      string
	Values     map[SlotId]EntityUid
}

// PolicySet is the union of static policies, templates and template links
// that together form the policies evaluated for a project.
type PolicySet struct {
	StaticPolicies map[string]Policy
	Templates      map[string]Template
	TemplateLinks  []TemplateLink
}

// NewPolicySet returns an empty, ready-to-populate PolicySet.
func NewPolicySet() PolicySet {
	return PolicySet{
		StaticPolicies: map[string]Policy{},
		Templates:      map[string]Template{},
		TemplateLinks:  nil,
	}
}
