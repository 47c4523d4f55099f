package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cedrus/internal/cache/inproc"
	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

// memStore is a minimal in-memory store.Store used only to exercise
// Bootstrap/repopulateCache without a real Postgres or DynamoDB backend.
type memStore struct {
	mu             sync.Mutex
	projects       map[string]model.Project
	identitySources map[string]model.IdentitySource
	schemas        map[string]model.Schema
	entities       map[string][]model.Entity
	policies       map[string]map[string]model.Policy
	templates      map[string]map[string]model.Template
	templateLinks  map[string][]model.TemplateLink
}

func newMemStore() *memStore {
	return &memStore{
		projects:        map[string]model.Project{},
		identitySources: map[string]model.IdentitySource{},
		schemas:         map[string]model.Schema{},
		entities:        map[string][]model.Entity{},
		policies:        map[string]map[string]model.Policy{},
		templates:       map[string]map[string]model.Template{},
		templateLinks:   map[string][]model.TemplateLink{},
	}
}

func (m *memStore) ProjectLoad(_ context.Context, id string) (model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return model.Project{}, cedruserr.ErrNotFound
	}
	return p, nil
}

func (m *memStore) ProjectList(_ context.Context) ([]model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) ProjectSave(_ context.Context, p model.Project, _ *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
	return nil
}

func (m *memStore) ProjectRemove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
	return nil
}

func (m *memStore) IdentitySourceLoad(_ context.Context, projectID string) (model.IdentitySource, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.identitySources[projectID]
	return src, ok, nil
}

func (m *memStore) IdentitySourceSave(_ context.Context, projectID string, src model.IdentitySource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identitySources[projectID] = src
	return nil
}

func (m *memStore) IdentitySourceRemove(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identitySources, projectID)
	return nil
}

func (m *memStore) SchemaLoad(_ context.Context, projectID string) (model.Schema, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schemas[projectID]
	return s, ok, nil
}

func (m *memStore) SchemaSave(_ context.Context, projectID string, s model.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[projectID] = s
	return nil
}

func (m *memStore) SchemaRemove(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schemas, projectID)
	return nil
}

func (m *memStore) EntitiesLoad(_ context.Context, projectID string) ([]model.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entities[projectID], nil
}

func (m *memStore) EntitiesSave(_ context.Context, projectID string, entities []model.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[projectID] = append(m.entities[projectID], entities...)
	return nil
}

func (m *memStore) EntitiesRemove(_ context.Context, projectID string, uids []model.EntityUid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	remove := make(map[model.EntityUid]struct{}, len(uids))
	for _, u := range uids {
		remove[u] = struct{}{}
	}
	var next []model.Entity
	for _, e := range m.entities[projectID] {
		if _, drop := remove[e.Uid]; !drop {
			next = append(next, e)
		}
	}
	m.entities[projectID] = next
	return nil
}

func (m *memStore) PoliciesLoad(_ context.Context, projectID string) (map[string]model.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policies[projectID], nil
}

func (m *memStore) PoliciesSave(_ context.Context, projectID string, policies map[string]model.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.policies[projectID] == nil {
		m.policies[projectID] = map[string]model.Policy{}
	}
	for k, v := range policies {
		m.policies[projectID][k] = v
	}
	return nil
}

func (m *memStore) PoliciesRemove(_ context.Context, projectID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.policies[projectID], id)
	}
	return nil
}

func (m *memStore) TemplatesLoad(_ context.Context, projectID string) (map[string]model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.templates[projectID], nil
}

func (m *memStore) TemplatesSave(_ context.Context, projectID string, templates map[string]model.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.templates[projectID] == nil {
		m.templates[projectID] = map[string]model.Template{}
	}
	for k, v := range templates {
		m.templates[projectID][k] = v
	}
	return nil
}

func (m *memStore) TemplatesRemove(_ context.Context, projectID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.templates[projectID], id)
	}
	return nil
}

func (m *memStore) TemplateLinksLoad(_ context.Context, projectID string) ([]model.TemplateLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.templateLinks[projectID], nil
}

func (m *memStore) TemplateLinksSave(_ context.Context, projectID string, links []model.TemplateLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templateLinks[projectID] = append(m.templateLinks[projectID], links...)
	return nil
}

func (m *memStore) TemplateLinksRemove(_ context.Context, projectID string, newIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	remove := make(map[string]struct{}, len(newIDs))
	for _, id := range newIDs {
		remove[id] = struct{}{}
	}
	var next []model.TemplateLink
	for _, l := range m.templateLinks[projectID] {
		if _, drop := remove[l.NewID]; !drop {
			next = append(next, l)
		}
	}
	m.templateLinks[projectID] = next
	return nil
}

func TestEngine_BootstrapSeedsNilProjectOnFirstRun(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	c := inproc.New(time.Hour)
	e := New("node-1", c)

	require.NoError(t, e.Bootstrap(ctx, st, nil))

	nilProject, err := st.ProjectLoad(ctx, model.NilProjectID)
	require.NoError(t, err)
	assert.NotEmpty(t, nilProject.APIKey)
	assert.Equal(t, model.AdminGroupUid, nilProject.Owner)

	_, hasSchema := e.schema(model.NilProjectID)
	assert.True(t, hasSchema)
}

func TestEngine_BootstrapIsIdempotentForJoiningNode(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	c1 := inproc.New(time.Hour)
	e1 := New("node-1", c1)
	require.NoError(t, e1.Bootstrap(ctx, st, nil))

	first, err := st.ProjectLoad(ctx, model.NilProjectID)
	require.NoError(t, err)

	c2 := inproc.New(time.Hour)
	e2 := New("node-2", c2)
	require.NoError(t, e2.Bootstrap(ctx, st, nil))

	second, err := st.ProjectLoad(ctx, model.NilProjectID)
	require.NoError(t, err)
	assert.Equal(t, first.APIKey, second.APIKey)
}

func TestEngine_BootstrapAppliesOperatorIdentitySource(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	c := inproc.New(time.Hour)
	e := New("node-1", c)

	src := model.IdentitySource{
		Kind: model.IdentitySourceOIDC,
		OIDC: &model.OIDCConfig{Issuer: "https://issuer.example.com", TokenSelection: model.AccessTokenOnly, Audiences: []string{"x"}, PrincipalEntityType: "User"},
	}
	require.NoError(t, e.Bootstrap(ctx, st, &src))

	_, ok := e.Authorizer(model.NilProjectID)
	assert.True(t, ok)
}
