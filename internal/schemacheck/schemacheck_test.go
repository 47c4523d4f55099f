package schemacheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

func documentSchema() model.Schema {
	return model.Schema{
		Namespaces: map[string]model.Namespace{
			"": {
				EntityTypes: map[string]model.EntityTypeDecl{
					"Document": {
						Shape: &model.SchemaType{
							Kind: model.TypeRecord,
							Attributes: map[string]model.SchemaAttribute{
								"owner":      {Type: model.SchemaType{Kind: model.TypeEntity, Name: "User"}, Required: true, RequiredSet: true},
								"classified": {Type: model.SchemaType{Kind: model.TypeBoolean}, Required: false, RequiredSet: true},
							},
						},
					},
				},
				Actions: map[string]model.ActionDecl{
					"view": {
						AppliesTo: &model.AppliesTo{
							Context: &model.SchemaType{
								Kind: model.TypeRecord,
								Attributes: map[string]model.SchemaAttribute{
									"ip": {Type: model.SchemaType{Kind: model.TypeString}, Required: true, RequiredSet: true},
								},
							},
						},
					},
				},
			},
		},
	}
}

func TestValidateEntity(t *testing.T) {
	schema := documentSchema()

	t.Run("valid entity passes", func(t *testing.T) {
		e := model.Entity{
			Uid: model.EntityUid{Type: "Document", ID: "doc-1"},
			Attrs: map[string]model.EntityAttr{
				"owner": model.NewEntityAttr(model.EntityUid{Type: "User", ID: "alice"}),
			},
		}
		assert.NoError(t, ValidateEntity(e, schema))
	})

	t.Run("missing required attribute fails", func(t *testing.T) {
		e := model.Entity{
			Uid:   model.EntityUid{Type: "Document", ID: "doc-2"},
			Attrs: map[string]model.EntityAttr{},
		}
		err := ValidateEntity(e, schema)
		require.Error(t, err)
		assert.Equal(t, cedruserr.KindEntityInvalid, cedruserr.KindOf(err))
	})

	t.Run("wrong attribute type fails", func(t *testing.T) {
		e := model.Entity{
			Uid: model.EntityUid{Type: "Document", ID: "doc-3"},
			Attrs: map[string]model.EntityAttr{
				"owner": model.NewStringAttr("not-an-entity"),
			},
		}
		assert.Error(t, ValidateEntity(e, schema))
	})

	t.Run("unknown entity type is unconstrained", func(t *testing.T) {
		e := model.Entity{Uid: model.EntityUid{Type: "Widget", ID: "w1"}}
		assert.NoError(t, ValidateEntity(e, schema))
	})

	t.Run("extra attributes are tolerated", func(t *testing.T) {
		e := model.Entity{
			Uid: model.EntityUid{Type: "Document", ID: "doc-4"},
			Attrs: map[string]model.EntityAttr{
				"owner": model.NewEntityAttr(model.EntityUid{Type: "User", ID: "alice"}),
				"extra": model.NewStringAttr("whatever"),
			},
		}
		assert.NoError(t, ValidateEntity(e, schema))
	})
}

func TestValidateContext(t *testing.T) {
	schema := documentSchema()
	action := model.EntityUid{Type: "Action", ID: "view"}

	t.Run("valid context passes", func(t *testing.T) {
		ctx := map[string]model.EntityAttr{"ip": model.NewStringAttr("10.0.0.1")}
		assert.NoError(t, ValidateContext(ctx, schema, action))
	})

	t.Run("missing context field fails", func(t *testing.T) {
		assert.Error(t, ValidateContext(map[string]model.EntityAttr{}, schema, action))
	})

	t.Run("action with no context constraint passes anything", func(t *testing.T) {
		unconstrained := model.EntityUid{Type: "Action", ID: "delete"}
		assert.NoError(t, ValidateContext(map[string]model.EntityAttr{"anything": model.NewBoolAttr(true)}, schema, unconstrained))
	})
}
