package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalOrResourceJSON_AllVariants(t *testing.T) {
	tests := []struct {
		name string
		p    PrincipalOrResource
	}{
		{"all", PrincipalOrResource{Op: OpAll}},
		{"eq entity", PrincipalOrResource{Op: OpEq, Entity: EntityUid{Type: "User", ID: "alice"}}},
		{"eq slot", PrincipalOrResource{Op: OpEq, Slot: SlotPrincipal}},
		{"in entity", PrincipalOrResource{Op: OpIn, Entity: EntityUid{Type: "Group", ID: "admins"}}},
		{"is with in", PrincipalOrResource{Op: OpIs, EntityType: "User", InEntity: &EntityUid{Type: "Group", ID: "admins"}}},
		{"is without in", PrincipalOrResource{Op: OpIs, EntityType: "User"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.p)
			require.NoError(t, err)

			var got PrincipalOrResource
			require.NoError(t, json.Unmarshal(b, &got))
			assert.Equal(t, tt.p, got)
		})
	}
}

func TestActionScopeJSON_Variants(t *testing.T) {
	all := ActionScope{Op: OpAll}
	b, err := json.Marshal(all)
	require.NoError(t, err)
	var gotAll ActionScope
	require.NoError(t, json.Unmarshal(b, &gotAll))
	assert.Equal(t, OpAll, gotAll.Op)

	eq := ActionScope{Op: OpEq, Entities: []EntityUid{{Type: "Action", ID: "view"}}}
	b, err = json.Marshal(eq)
	require.NoError(t, err)
	var gotEq ActionScope
	require.NoError(t, json.Unmarshal(b, &gotEq))
	assert.Equal(t, eq, gotEq)

	in := ActionScope{Op: OpIn, Entities: []EntityUid{{Type: "Action", ID: "view"}, {Type: "Action", ID: "edit"}}}
	b, err = json.Marshal(in)
	require.NoError(t, err)
	var gotIn ActionScope
	require.NoError(t, json.Unmarshal(b, &gotIn))
	assert.Equal(t, in, gotIn)
}

func TestActionScopeJSON_EqRequiresExactlyOneEntity(t *testing.T) {
	_, err := json.Marshal(ActionScope{Op: OpEq, Entities: []EntityUid{{Type: "Action", ID: "view"}, {Type: "Action", ID: "edit"}}})
	assert.Error(t, err)
}

func TestConditionJSON_WhenUnless(t *testing.T) {
	when := Condition{Kind: When, Expr: JsonExpr{Kind: ExprValue, Value: NewBoolAttr(true)}}
	b, err := json.Marshal(when)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"when"`)

	var got Condition
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, When, got.Kind)

	unless := Condition{Kind: Unless, Expr: JsonExpr{Kind: ExprValue, Value: NewBoolAttr(false)}}
	b, err = json.Marshal(unless)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, Unless, got.Kind)
}

func TestPolicyJSONRoundTrip(t *testing.T) {
	p := Policy{
		ID:        "allow-owner",
		Effect:    Permit,
		Principal: PrincipalOrResource{Op: OpEq, Entity: EntityUid{Type: "User", ID: "alice"}},
		Action:    ActionScope{Op: OpEq, Entities: []EntityUid{{Type: "Action", ID: "view"}}},
		Resource:  PrincipalOrResource{Op: OpAll},
		Conditions: []Condition{
			{Kind: When, Expr: JsonExpr{Kind: ExprHas, Inner: &JsonExpr{Kind: ExprVar, Var: VarResource}, Attr: "owner"}},
		},
		Annotations: map[string]string{"note": "bootstrap"},
	}

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var got Policy
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, p.Effect, got.Effect)
	assert.Equal(t, p.Principal, got.Principal)
	assert.Equal(t, p.Action, got.Action)
	assert.Equal(t, p.Resource, got.Resource)
	assert.Equal(t, p.Annotations, got.Annotations)
	require.Len(t, got.Conditions, 1)
	assert.Equal(t, When, got.Conditions[0].Kind)
	assert.Equal(t, "owner", got.Conditions[0].Expr.Attr)
}

func TestPolicyUnmarshal_RejectsUnknownEffect(t *testing.T) {
	var p Policy
	err := json.Unmarshal([]byte(`{"effect":"maybe","principal":{"op":"All"},"action":{"op":"All"},"resource":{"op":"All"}}`), &p)
	assert.Error(t, err)
}

func TestTemplateLinkJSONRoundTrip(t *testing.T) {
	l := TemplateLink{
		TemplateID: "doc-viewer",
		NewID:      "link-1",
		Values: map[SlotId]EntityUid{
			SlotPrincipal: {Type: "User", ID: "alice"},
			SlotResource:  {Type: "Document", ID: "doc-1"},
		},
	}

	b, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"?principal"`)
	assert.Contains(t, string(b), `"?resource"`)

	var got TemplateLink
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, l, got)
}

func TestTemplateLinkUnmarshal_RequiresTemplateIDAndNewID(t *testing.T) {
	var l TemplateLink
	err := json.Unmarshal([]byte(`{"templateId":"","newId":"link-1","values":{}}`), &l)
	assert.Error(t, err)
}

func TestPolicySetJSONRoundTrip(t *testing.T) {
	ps := NewPolicySet()
	ps.StaticPolicies["p1"] = Policy{
		ID:        "p1",
		Effect:    Forbid,
		Principal: PrincipalOrResource{Op: OpAll},
		Action:    ActionScope{Op: OpAll},
		Resource:  PrincipalOrResource{Op: OpAll},
	}
	ps.Templates["t1"] = Template{
		ID:        "t1",
		Effect:    Permit,
		Principal: PrincipalOrResource{Op: OpEq, Slot: SlotPrincipal},
		Action:    ActionScope{Op: OpAll},
		Resource:  PrincipalOrResource{Op: OpEq, Slot: SlotResource},
	}
	ps.TemplateLinks = []TemplateLink{
		{TemplateID: "t1", NewID: "link-1", Values: map[SlotId]EntityUid{
			SlotPrincipal: {Type: "User", ID: "bob"},
			SlotResource:  {Type: "Document", ID: "doc-2"},
		}},
	}

	b, err := json.Marshal(ps)
	require.NoError(t, err)

	var got PolicySet
	require.NoError(t, json.Unmarshal(b, &got))

	require.Contains(t, got.StaticPolicies, "p1")
	assert.Equal(t, Forbid, got.StaticPolicies["p1"].Effect)
	require.Contains(t, got.Templates, "t1")
	assert.Equal(t, Permit, got.Templates["t1"].Effect)
	require.Len(t, got.TemplateLinks, 1)
	assert.Equal(t, "t1", got.TemplateLinks[0].TemplateID)
}

func TestPolicySetUnmarshal_DefaultsNilMapsToEmpty(t *testing.T) {
	var got PolicySet
	require.NoError(t, json.Unmarshal([]byte(`{}`), &got))
	assert.NotNil(t, got.StaticPolicies)
	assert.NotNil(t, got.Templates)
}
