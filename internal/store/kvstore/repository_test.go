package kvstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

// fakeDynamoClient is an in-memory stand-in for the narrowed Client
// interface, covering just the single-table access patterns the
// repository issues (keyed get/put/delete, begins_with prefix query,
// conditional put, batched delete).
type fakeDynamoClient struct {
	mu    sync.Mutex
	items map[string]map[string]ddbtypes.AttributeValue
}

func newFakeDynamoClient() *fakeDynamoClient {
	return &fakeDynamoClient{items: map[string]map[string]ddbtypes.AttributeValue{}}
}

func attrString(av ddbtypes.AttributeValue) string {
	s, ok := av.(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return s.Value
}

func itemKey(pk, sk string) string { return pk + "\x00" + sk }

func (c *fakeDynamoClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := itemKey(attrString(in.Key[attrPK]), attrString(in.Key[attrSK]))
	it, ok := c.items[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: it}, nil
}

func (c *fakeDynamoClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pk := attrString(in.Item[attrPK])
	sk := attrString(in.Item[attrSK])
	key := itemKey(pk, sk)

	if in.ConditionExpression != nil {
		expected := attrString(in.ExpressionAttributeValues[":expected"])
		existing, ok := c.items[key]
		var existingUpdatedAt string
		if ok {
			existingUpdatedAt = attrString(existing["UpdatedAt"])
		}
		if !ok || existingUpdatedAt != expected {
			return nil, &ddbtypes.ConditionalCheckFailedException{}
		}
	}

	c.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (c *fakeDynamoClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := itemKey(attrString(in.Key[attrPK]), attrString(in.Key[attrSK]))
	delete(c.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (c *fakeDynamoClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pk := attrString(in.ExpressionAttributeValues[":pk"])
	prefix := attrString(in.ExpressionAttributeValues[":prefix"])

	var out []map[string]ddbtypes.AttributeValue
	for _, it := range c.items {
		if attrString(it[attrPK]) != pk {
			continue
		}
		sk := attrString(it[attrSK])
		if len(sk) < len(prefix) || sk[:len(prefix)] != prefix {
			continue
		}
		out = append(out, it)
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (c *fakeDynamoClient) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for table, reqs := range in.RequestItems {
		_ = table
		for _, req := range reqs {
			if req.DeleteRequest == nil {
				continue
			}
			key := itemKey(attrString(req.DeleteRequest.Key[attrPK]), attrString(req.DeleteRequest.Key[attrSK]))
			delete(c.items, key)
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func newTestRepository() *Repository {
	return New("cedrus-test", newFakeDynamoClient())
}

func TestRepository_ProjectSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository()

	p := model.Project{
		ID:        "proj-1",
		Name:      "acme",
		APIKey:    "key-1",
		Owner:     model.EntityUid{Type: "User", ID: "alice"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, r.ProjectSave(ctx, p, nil))

	got, err := r.ProjectLoad(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Owner, got.Owner)
}

func TestRepository_ProjectLoadMissingReturnsNotFound(t *testing.T) {
	r := newTestRepository()
	_, err := r.ProjectLoad(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, cedruserr.ErrNotFound)
}

func TestRepository_ProjectSaveRejectsStaleExpectedUpdatedAt(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository()

	p := model.Project{ID: "proj-2", Name: "v1", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, r.ProjectSave(ctx, p, nil))

	stale := time.Now().UTC().Add(-time.Hour)
	p.Name = "v2"
	err := r.ProjectSave(ctx, p, &stale)
	assert.ErrorIs(t, err, cedruserr.ErrConflict)
}

func TestRepository_ProjectListReturnsEveryProject(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository()

	require.NoError(t, r.ProjectSave(ctx, model.Project{ID: "p1", Name: "one", CreatedAt: time.Now().UTC()}, nil))
	require.NoError(t, r.ProjectSave(ctx, model.Project{ID: "p2", Name: "two", CreatedAt: time.Now().UTC()}, nil))

	list, err := r.ProjectList(ctx)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, p := range list {
		names[p.Name] = true
	}
	assert.True(t, names["one"])
	assert.True(t, names["two"])
}

func TestRepository_ProjectRemoveDeletesEveryPartitionItem(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository()

	const projectID = "proj-3"
	require.NoError(t, r.ProjectSave(ctx, model.Project{ID: projectID, Name: "gone", CreatedAt: time.Now().UTC()}, nil))
	require.NoError(t, r.SchemaSave(ctx, projectID, model.Schema{}))

	require.NoError(t, r.ProjectRemove(ctx, projectID))

	_, err := r.ProjectLoad(ctx, projectID)
	assert.ErrorIs(t, err, cedruserr.ErrNotFound)

	_, ok, err := r.SchemaLoad(ctx, projectID)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := r.ProjectList(ctx)
	require.NoError(t, err)
	for _, p := range list {
		assert.NotEqual(t, projectID, p.ID)
	}
}

func TestRepository_EntitiesSaveLoadAndRemove(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository()
	const projectID = "proj-4"

	entities := []model.Entity{
		*model.NewEntity(model.EntityUid{Type: "User", ID: "alice"}),
		*model.NewEntity(model.EntityUid{Type: "Document", ID: "doc1"}),
	}
	require.NoError(t, r.EntitiesSave(ctx, projectID, entities))

	got, err := r.EntitiesLoad(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, r.EntitiesRemove(ctx, projectID, []model.EntityUid{entities[0].Uid}))
	got, err = r.EntitiesLoad(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entities[1].Uid, got[0].Uid)
}

func TestRepository_PoliciesTemplatesAndTemplateLinksRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository()
	const projectID = "proj-5"

	require.NoError(t, r.PoliciesSave(ctx, projectID, map[string]model.Policy{
		"p1": {ID: "p1", Effect: model.Permit, Principal: model.PrincipalOrResource{Op: model.OpAll}, Action: model.ActionScope{Op: model.OpAll}, Resource: model.PrincipalOrResource{Op: model.OpAll}},
	}))
	policies, err := r.PoliciesLoad(ctx, projectID)
	require.NoError(t, err)
	assert.Contains(t, policies, "p1")

	require.NoError(t, r.TemplatesSave(ctx, projectID, map[string]model.Template{
		"t1": {ID: "t1", Effect: model.Permit, Principal: model.PrincipalOrResource{Op: model.OpEq, Slot: model.SlotPrincipal}, Action: model.ActionScope{Op: model.OpAll}, Resource: model.PrincipalOrResource{Op: model.OpEq, Slot: model.SlotResource}},
	}))
	templates, err := r.TemplatesLoad(ctx, projectID)
	require.NoError(t, err)
	assert.Contains(t, templates, "t1")

	link := model.TemplateLink{TemplateID: "t1", NewID: "link-1", Values: map[model.SlotId]model.EntityUid{
		model.SlotPrincipal: {Type: "User", ID: "bob"},
		model.SlotResource:  {Type: "Document", ID: "doc1"},
	}}
	require.NoError(t, r.TemplateLinksSave(ctx, projectID, []model.TemplateLink{link}))
	links, err := r.TemplateLinksLoad(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "link-1", links[0].NewID)

	require.NoError(t, r.PoliciesRemove(ctx, projectID, []string{"p1"}))
	policies, err = r.PoliciesLoad(ctx, projectID)
	require.NoError(t, err)
	assert.NotContains(t, policies, "p1")

	require.NoError(t, r.TemplateLinksRemove(ctx, projectID, []string{"link-1"}))
	links, err = r.TemplateLinksLoad(ctx, projectID)
	require.NoError(t, err)
	assert.Empty(t, links)
}
