package cedarconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedrus/internal/model"
)

func TestQuotedEscapesSpecialCharacters(t *testing.T) {
	assert.Equal(t, `"a\"b\\c\nd"`, quoted("a\"b\\c\nd"))
}

func TestEntityUidLiteral(t *testing.T) {
	assert.Equal(t, `User::"alice"`, entityUidLiteral(model.EntityUid{Type: "User", ID: "alice"}))
}

func TestAttrLiteral(t *testing.T) {
	tests := []struct {
		name string
		attr model.EntityAttr
		want string
	}{
		{"string", model.NewStringAttr("hi"), `"hi"`},
		{"long", model.NewLongAttr(42), "42"},
		{"bool true", model.NewBoolAttr(true), "true"},
		{"bool false", model.NewBoolAttr(false), "false"},
		{"entity", model.NewEntityAttr(model.EntityUid{Type: "User", ID: "bob"}), `User::"bob"`},
		{"extension", model.NewExtnAttr("decimal", "1.0"), `decimal("1.0")`},
		{"set", model.NewSetAttr([]model.EntityAttr{model.NewLongAttr(1), model.NewLongAttr(2)}), "[1, 2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := attrLiteral(tt.attr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordLiteralSingleField(t *testing.T) {
	got, err := recordLiteral(map[string]model.EntityAttr{"k": model.NewLongAttr(1)})
	require.NoError(t, err)
	assert.Equal(t, `{"k": 1}`, got)
}
