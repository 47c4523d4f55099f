package inproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedrus/internal/model"
)

func TestSchemaGetPutDelete(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	_, ok, err := c.SchemaGet(ctx, "proj-1")
	require.NoError(t, err)
	assert.False(t, ok)

	schema := model.Schema{Namespaces: map[string]model.Namespace{"": {EntityTypes: map[string]model.EntityTypeDecl{"User": {}}}}}
	require.NoError(t, c.SchemaPut(ctx, "proj-1", schema))

	got, ok, err := c.SchemaGet(ctx, "proj-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, got.Namespaces[""].EntityTypes, "User")

	require.NoError(t, c.SchemaDelete(ctx, "proj-1"))
	_, ok, err = c.SchemaGet(ctx, "proj-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEntitiesRoundTrip(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	entities := []model.Entity{
		{Uid: model.EntityUid{Type: "User", ID: "alice"}},
		{Uid: model.EntityUid{Type: "User", ID: "bob"}},
	}
	require.NoError(t, c.EntitiesPut(ctx, "proj-1", entities))

	got, ok, err := c.EntitiesGet(ctx, "proj-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, entities[0].Uid, got[0].Uid)
}

func TestClearRemovesEveryKind(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SchemaPut(ctx, "proj-1", model.Schema{}))
	require.NoError(t, c.PolicySetPut(ctx, "proj-1", model.NewPolicySet()))
	require.NoError(t, c.EntitiesPut(ctx, "proj-1", nil))

	require.NoError(t, c.Clear(ctx, "proj-1"))

	_, ok, _ := c.SchemaGet(ctx, "proj-1")
	assert.False(t, ok)
	_, ok, _ = c.PolicySetGet(ctx, "proj-1")
	assert.False(t, ok)
	_, ok, _ = c.EntitiesGet(ctx, "proj-1")
	assert.False(t, ok)
}

func TestProjectsRoundTrip(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	projects := []model.Project{{ID: "p1", Name: "first"}}
	require.NoError(t, c.ProjectsPut(ctx, projects))

	got, ok, err := c.ProjectsGet(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, projects, got)
}
