package cedarconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedrus/internal/model"
)

func TestParsePolicyText_RoundTripsThroughPolicyText(t *testing.T) {
	principal := model.PrincipalOrResource{Op: model.OpEq, Entity: model.EntityUid{Type: "User", ID: "alice"}}
	action := model.ActionScope{Op: model.OpIn, Entities: []model.EntityUid{{Type: "Action", ID: "view"}, {Type: "Action", ID: "edit"}}}
	resource := model.PrincipalOrResource{Op: model.OpIs, EntityType: "Document"}
	conditions := []model.Condition{
		{Kind: model.When, Expr: model.JsonExpr{
			Kind: model.ExprBinary,
			Op:   model.BinEq,
			Left: &model.JsonExpr{Kind: model.ExprDot, Inner: &model.JsonExpr{Kind: model.ExprVar, Var: model.VarResource}, Attr: "owner"},
			Right: &model.JsonExpr{Kind: model.ExprDot, Inner: &model.JsonExpr{Kind: model.ExprVar, Var: model.VarPrincipal}, Attr: "id"},
		}},
	}
	annotations := map[string]string{"id": "doc-owner-view"}

	text, err := PolicyText(model.Permit, principal, action, resource, conditions, annotations)
	require.NoError(t, err)

	got, err := ParsePolicyText(text)
	require.NoError(t, err)

	assert.Equal(t, model.Permit, got.Effect)
	assert.Equal(t, principal, got.Principal)
	assert.Equal(t, action, got.Action)
	assert.Equal(t, resource, got.Resource)
	assert.Equal(t, annotations, got.Annotations)
	require.Len(t, got.Conditions, 1)
	assert.Equal(t, model.When, got.Conditions[0].Kind)
	assert.Equal(t, model.BinEq, got.Conditions[0].Expr.Op)
}

func TestParsePolicyText_ScopeVariants(t *testing.T) {
	tests := []struct {
		name string
		text string
		want model.Policy
	}{
		{
			name: "all-wildcard scopes",
			text: `permit (principal, action, resource);`,
			want: model.Policy{
				Effect:    model.Permit,
				Principal: model.PrincipalOrResource{Op: model.OpAll},
				Action:    model.ActionScope{Op: model.OpAll},
				Resource:  model.PrincipalOrResource{Op: model.OpAll},
			},
		},
		{
			name: "forbid with in scopes",
			text: `forbid (
  principal in Group::"banned",
  action == Action::"delete",
  resource in Folder::"trash"
);`,
			want: model.Policy{
				Effect:    model.Forbid,
				Principal: model.PrincipalOrResource{Op: model.OpIn, Entity: model.EntityUid{Type: "Group", ID: "banned"}},
				Action:    model.ActionScope{Op: model.OpEq, Entities: []model.EntityUid{{Type: "Action", ID: "delete"}}},
				Resource:  model.PrincipalOrResource{Op: model.OpIn, Entity: model.EntityUid{Type: "Folder", ID: "trash"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePolicyText(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Effect, got.Effect)
			assert.Equal(t, tt.want.Principal, got.Principal)
			assert.Equal(t, tt.want.Action, got.Action)
			assert.Equal(t, tt.want.Resource, got.Resource)
		})
	}
}

func TestParseTemplateText_Slots(t *testing.T) {
	text := `permit (
  principal == ?principal,
  action,
  resource == ?resource
);`
	tmpl, err := ParseTemplateText(text)
	require.NoError(t, err)
	assert.Equal(t, model.SlotPrincipal, tmpl.Principal.Slot)
	assert.Equal(t, model.OpEq, tmpl.Principal.Op)
	assert.Equal(t, model.SlotResource, tmpl.Resource.Slot)
	assert.Equal(t, model.OpEq, tmpl.Resource.Op)
}

func TestParsePolicyText_ExpressionGrammar(t *testing.T) {
	text := `permit (principal, action, resource)
when {
  (principal has "role" && principal.role == "admin") ||
  resource.tags.contains("public") ||
  context.count in [1, 2, 3]
};`
	p, err := ParsePolicyText(text)
	require.NoError(t, err)
	require.Len(t, p.Conditions, 1)
	assert.Equal(t, model.ExprBinary, p.Conditions[0].Expr.Kind)
	assert.Equal(t, model.BinOr, p.Conditions[0].Expr.Op)
}

func TestParsePolicyText_RejectsTrailingGarbage(t *testing.T) {
	_, err := ParsePolicyText(`permit (principal, action, resource); garbage`)
	assert.Error(t, err)
}
