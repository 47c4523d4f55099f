package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exprRoundTrip(t *testing.T, e JsonExpr) JsonExpr {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	var got JsonExpr
	require.NoError(t, json.Unmarshal(b, &got))
	return got
}

func TestJsonExprRoundTrip_Value(t *testing.T) {
	e := JsonExpr{Kind: ExprValue, Value: NewLongAttr(5)}
	got := exprRoundTrip(t, e)
	assert.Equal(t, ExprValue, got.Kind)
	assert.True(t, e.Value.Equal(got.Value))
}

func TestJsonExprRoundTrip_Var(t *testing.T) {
	e := JsonExpr{Kind: ExprVar, Var: VarPrincipal}
	got := exprRoundTrip(t, e)
	assert.Equal(t, VarPrincipal, got.Var)
}

func TestJsonExprRoundTrip_Slot(t *testing.T) {
	e := JsonExpr{Kind: ExprSlot, Slot: SlotResource}
	got := exprRoundTrip(t, e)
	assert.Equal(t, SlotResource, got.Slot)
}

func TestJsonExprRoundTrip_BinaryAnd(t *testing.T) {
	left := JsonExpr{Kind: ExprVar, Var: VarPrincipal}
	right := JsonExpr{Kind: ExprValue, Value: NewBoolAttr(true)}
	e := JsonExpr{Kind: ExprBinary, Op: BinAnd, Left: &left, Right: &right}

	got := exprRoundTrip(t, e)
	require.Equal(t, ExprBinary, got.Kind)
	assert.Equal(t, BinAnd, got.Op)
	assert.Equal(t, VarPrincipal, got.Left.Var)
	assert.True(t, right.Value.Equal(got.Right.Value))
}

func TestJsonExprRoundTrip_HasAndDot(t *testing.T) {
	base := JsonExpr{Kind: ExprVar, Var: VarResource}
	has := JsonExpr{Kind: ExprHas, Inner: &base, Attr: "owner"}
	gotHas := exprRoundTrip(t, has)
	assert.Equal(t, "owner", gotHas.Attr)
	assert.Equal(t, VarResource, gotHas.Inner.Var)

	dot := JsonExpr{Kind: ExprDot, Inner: &base, Attr: "owner"}
	gotDot := exprRoundTrip(t, dot)
	assert.Equal(t, ExprDot, gotDot.Kind)
	assert.Equal(t, "owner", gotDot.Attr)
}

func TestJsonExprRoundTrip_IfThenElse(t *testing.T) {
	cond := JsonExpr{Kind: ExprValue, Value: NewBoolAttr(true)}
	then := JsonExpr{Kind: ExprValue, Value: NewLongAttr(1)}
	els := JsonExpr{Kind: ExprValue, Value: NewLongAttr(2)}
	e := JsonExpr{Kind: ExprIfThenElse, If: &cond, Then: &then, Else: &els}

	got := exprRoundTrip(t, e)
	require.Equal(t, ExprIfThenElse, got.Kind)
	assert.True(t, then.Value.Equal(got.Then.Value))
	assert.True(t, els.Value.Equal(got.Else.Value))
}

func TestJsonExprRoundTrip_SetAndRecord(t *testing.T) {
	set := JsonExpr{Kind: ExprSet, Elements: []JsonExpr{
		{Kind: ExprValue, Value: NewLongAttr(1)},
		{Kind: ExprValue, Value: NewLongAttr(2)},
	}}
	gotSet := exprRoundTrip(t, set)
	require.Len(t, gotSet.Elements, 2)
	assert.True(t, set.Elements[1].Value.Equal(gotSet.Elements[1].Value))

	rec := JsonExpr{Kind: ExprRecord, Fields: map[string]JsonExpr{
		"ip": {Kind: ExprValue, Value: NewStringAttr("127.0.0.1")},
	}}
	gotRec := exprRoundTrip(t, rec)
	require.Contains(t, gotRec.Fields, "ip")
	assert.True(t, rec.Fields["ip"].Value.Equal(gotRec.Fields["ip"].Value))
}

func TestJsonExprRoundTrip_ExtensionCall(t *testing.T) {
	e := JsonExpr{
		Kind:   ExprExtensionCall,
		ExtnFn: "decimal",
		ExtnArgs: []JsonExpr{
			{Kind: ExprValue, Value: NewStringAttr("1.5")},
		},
	}
	got := exprRoundTrip(t, e)
	assert.Equal(t, ExprExtensionCall, got.Kind)
	assert.Equal(t, "decimal", got.ExtnFn)
	require.Len(t, got.ExtnArgs, 1)
	assert.True(t, e.ExtnArgs[0].Value.Equal(got.ExtnArgs[0].Value))
}

func TestJsonExprUnmarshal_RejectsUnrecognizedShape(t *testing.T) {
	var e JsonExpr
	err := json.Unmarshal([]byte(`{}`), &e)
	assert.Error(t, err)
}

func TestJsonExprUnmarshal_InContainsLeftAndRightField(t *testing.T) {
	raw := `{"in": {"left": {"Var": "principal"}, "right": {"Var": "resource"}}}`
	var e JsonExpr
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	assert.Equal(t, ExprBinary, e.Kind)
	assert.Equal(t, BinIn, e.Op)
	assert.Equal(t, VarPrincipal, e.Left.Var)
	assert.Equal(t, VarResource, e.Right.Var)
}
