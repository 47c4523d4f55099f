package cedarconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedrus/internal/model"
)

func TestAuthorize_EndToEndPermit(t *testing.T) {
	ps := model.NewPolicySet()
	ps.StaticPolicies["allow-owner"] = model.Policy{
		ID:        "allow-owner",
		Effect:    model.Permit,
		Principal: model.PrincipalOrResource{Op: model.OpEq, Entity: model.EntityUid{Type: "User", ID: "alice"}},
		Action:    model.ActionScope{Op: model.OpEq, Entities: []model.EntityUid{{Type: "Action", ID: "view"}}},
		Resource:  model.PrincipalOrResource{Op: model.OpEq, Entity: model.EntityUid{Type: "Document", ID: "doc-1"}},
	}

	cedarPS, err := ToPolicySet(ps)
	require.NoError(t, err)

	entityMap, err := ToEntityMap([]model.Entity{
		{Uid: model.EntityUid{Type: "User", ID: "alice"}, Attrs: map[string]model.EntityAttr{}, Parents: map[model.EntityUid]struct{}{}, Tags: map[string]model.EntityAttr{}},
		{Uid: model.EntityUid{Type: "Document", ID: "doc-1"}, Attrs: map[string]model.EntityAttr{}, Parents: map[model.EntityUid]struct{}{}, Tags: map[string]model.EntityAttr{}},
	})
	require.NoError(t, err)

	req, err := ToRequest(
		model.EntityUid{Type: "User", ID: "alice"},
		model.EntityUid{Type: "Action", ID: "view"},
		model.EntityUid{Type: "Document", ID: "doc-1"},
		nil,
	)
	require.NoError(t, err)

	decision := Authorize(cedarPS, entityMap, req)
	assert.Equal(t, "Allow", decision.Decision)
	assert.Equal(t, []string{"allow-owner"}, decision.Reason)
	assert.Equal(t, []string{}, decision.Errors)
}

func TestAuthorize_EndToEndDeniesWithoutMatchingPolicy(t *testing.T) {
	ps := model.NewPolicySet()
	ps.StaticPolicies["allow-owner"] = model.Policy{
		ID:        "allow-owner",
		Effect:    model.Permit,
		Principal: model.PrincipalOrResource{Op: model.OpEq, Entity: model.EntityUid{Type: "User", ID: "alice"}},
		Action:    model.ActionScope{Op: model.OpEq, Entities: []model.EntityUid{{Type: "Action", ID: "view"}}},
		Resource:  model.PrincipalOrResource{Op: model.OpEq, Entity: model.EntityUid{Type: "Document", ID: "doc-1"}},
	}

	cedarPS, err := ToPolicySet(ps)
	require.NoError(t, err)

	entityMap, err := ToEntityMap(nil)
	require.NoError(t, err)

	req, err := ToRequest(
		model.EntityUid{Type: "User", ID: "mallory"},
		model.EntityUid{Type: "Action", ID: "view"},
		model.EntityUid{Type: "Document", ID: "doc-1"},
		nil,
	)
	require.NoError(t, err)

	decision := Authorize(cedarPS, entityMap, req)
	assert.Equal(t, "Deny", decision.Decision)
}

func TestAuthorize_ForbidOverridesPermit(t *testing.T) {
	ps := model.NewPolicySet()
	ps.StaticPolicies["allow-all-view"] = model.Policy{
		ID:        "allow-all-view",
		Effect:    model.Permit,
		Principal: model.PrincipalOrResource{Op: model.OpAll},
		Action:    model.ActionScope{Op: model.OpEq, Entities: []model.EntityUid{{Type: "Action", ID: "view"}}},
		Resource:  model.PrincipalOrResource{Op: model.OpAll},
	}
	ps.StaticPolicies["forbid-banned"] = model.Policy{
		ID:        "forbid-banned",
		Effect:    model.Forbid,
		Principal: model.PrincipalOrResource{Op: model.OpEq, Entity: model.EntityUid{Type: "User", ID: "mallory"}},
		Action:    model.ActionScope{Op: model.OpAll},
		Resource:  model.PrincipalOrResource{Op: model.OpAll},
	}

	cedarPS, err := ToPolicySet(ps)
	require.NoError(t, err)
	entityMap, err := ToEntityMap(nil)
	require.NoError(t, err)

	req, err := ToRequest(
		model.EntityUid{Type: "User", ID: "mallory"},
		model.EntityUid{Type: "Action", ID: "view"},
		model.EntityUid{Type: "Document", ID: "doc-1"},
		nil,
	)
	require.NoError(t, err)

	decision := Authorize(cedarPS, entityMap, req)
	assert.Equal(t, "Deny", decision.Decision)
}

func TestToPolicySet_MaterializesTemplateLinks(t *testing.T) {
	ps := model.NewPolicySet()
	ps.Templates["doc-viewer"] = model.Template{
		ID:        "doc-viewer",
		Effect:    model.Permit,
		Principal: model.PrincipalOrResource{Op: model.OpEq, Slot: model.SlotPrincipal},
		Action:    model.ActionScope{Op: model.OpEq, Entities: []model.EntityUid{{Type: "Action", ID: "view"}}},
		Resource:  model.PrincipalOrResource{Op: model.OpEq, Slot: model.SlotResource},
	}
	ps.TemplateLinks = []model.TemplateLink{
		{
			TemplateID: "doc-viewer",
			NewID:      "link-1",
			Values: map[model.SlotId]model.EntityUid{
				model.SlotPrincipal: {Type: "User", ID: "alice"},
				model.SlotResource:  {Type: "Document", ID: "doc-1"},
			},
		},
	}

	cedarPS, err := ToPolicySet(ps)
	require.NoError(t, err)

	entityMap, err := ToEntityMap(nil)
	require.NoError(t, err)

	req, err := ToRequest(
		model.EntityUid{Type: "User", ID: "alice"},
		model.EntityUid{Type: "Action", ID: "view"},
		model.EntityUid{Type: "Document", ID: "doc-1"},
		nil,
	)
	require.NoError(t, err)

	decision := Authorize(cedarPS, entityMap, req)
	assert.Equal(t, "Allow", decision.Decision)
	assert.Equal(t, []string{"link-1"}, decision.Reason)
}

func TestToPolicySet_UnknownTemplateReferenceErrors(t *testing.T) {
	ps := model.NewPolicySet()
	ps.TemplateLinks = []model.TemplateLink{
		{TemplateID: "missing", NewID: "link-1"},
	}
	_, err := ToPolicySet(ps)
	assert.Error(t, err)
}
