package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityAttrJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		attr EntityAttr
	}{
		{"string", NewStringAttr("hi")},
		{"long", NewLongAttr(7)},
		{"bool", NewBoolAttr(true)},
		{"set", NewSetAttr([]EntityAttr{NewLongAttr(1), NewStringAttr("x")})},
		{"record", NewRecordAttr(map[string]EntityAttr{"k": NewBoolAttr(false)})},
		{"bare entity", NewEntityAttr(EntityUid{Type: "User", ID: "alice"})},
		{"escaped entity", NewEntityEscapeAttr(EntityUid{Type: "User", ID: "alice"})},
		{"escaped extension", NewExtnEscapeAttr("decimal", "1.5")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.attr)
			require.NoError(t, err)

			var got EntityAttr
			require.NoError(t, json.Unmarshal(b, &got))
			assert.True(t, tt.attr.Equal(got), "expected %+v to equal %+v", tt.attr, got)
		})
	}
}

func TestEntityAttrUnmarshal_BareExtnShorthandDecodesAsRecord(t *testing.T) {
	var got EntityAttr
	require.NoError(t, json.Unmarshal([]byte(`{"decimal": "1.5"}`), &got))
	assert.Equal(t, AttrRecord, got.Kind)
}

func TestEntityAttrUnmarshal_RejectsNull(t *testing.T) {
	var got EntityAttr
	assert.Error(t, json.Unmarshal([]byte(`null`), &got))
}

func TestEntityJSONRoundTrip(t *testing.T) {
	e := Entity{
		Uid:   EntityUid{Type: "Document", ID: "doc-1"},
		Attrs: map[string]EntityAttr{"owner": NewEntityAttr(EntityUid{Type: "User", ID: "alice"})},
		Parents: map[EntityUid]struct{}{
			{Type: "Folder", ID: "root"}: {},
		},
		Tags: map[string]EntityAttr{"sensitive": NewBoolAttr(true)},
	}

	b, err := json.Marshal(e)
	require.NoError(t, err)

	var got Entity
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, e.Uid, got.Uid)
	assert.True(t, e.Attrs["owner"].Equal(got.Attrs["owner"]))
	assert.True(t, e.Tags["sensitive"].Equal(got.Tags["sensitive"]))
	_, ok := got.Parents[EntityUid{Type: "Folder", ID: "root"}]
	assert.True(t, ok)
}

func TestEntityUnmarshal_DefaultsNilMapsToEmpty(t *testing.T) {
	var got Entity
	require.NoError(t, json.Unmarshal([]byte(`{"uid":{"type":"User","id":"bob"},"attrs":null,"parents":null}`), &got))
	assert.NotNil(t, got.Attrs)
	assert.NotNil(t, got.Tags)
	assert.Empty(t, got.Parents)
}

func TestEntityUidUnmarshal_RejectsMissingFields(t *testing.T) {
	var u EntityUid
	assert.Error(t, json.Unmarshal([]byte(`{"type":"User"}`), &u))
	assert.Error(t, json.Unmarshal([]byte(`{"id":"alice"}`), &u))
}

func TestNewEntityUidRejectsEmptyFields(t *testing.T) {
	_, err := NewEntityUid("", "alice")
	assert.Error(t, err)
	_, err = NewEntityUid("User", "")
	assert.Error(t, err)
}

func TestParseEntityUidColon(t *testing.T) {
	u, err := ParseEntityUidColon("Cedrus::Project::proj-1")
	require.NoError(t, err)
	assert.Equal(t, "Cedrus::Project", u.Type)
	assert.Equal(t, "proj-1", u.ID)

	_, err = ParseEntityUidColon("malformed")
	assert.Error(t, err)
}

func TestEntityUidStringForms(t *testing.T) {
	u := EntityUid{Type: "User", ID: "alice"}
	assert.Equal(t, `User::"alice"`, u.String())
	assert.Equal(t, "User::alice", u.ShortString())
}
