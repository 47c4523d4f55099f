// Package admin orchestrates every mutating management operation through
// the sequence validate -> persist -> cache -> local-apply -> publish (spec
// §4.F). Validation compiles the incoming value with internal/cedarconv and
// internal/schemacheck so invalid schemas, policies or entities are rejected
// before anything is written.
package admin

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cedrus/internal/bus"
	"cedrus/internal/cache"
	"cedrus/internal/cedarconv"
	"cedrus/internal/cedruserr"
	"cedrus/internal/engine"
	"cedrus/internal/model"
	"cedrus/internal/schemacheck"
	"cedrus/internal/store"
)

// Controller is the admin orchestration boundary.
type Controller struct {
	nodeID string
	store  store.Store
	cache  cache.Cache
	engine *engine.Engine
	pubsub bus.PubSub
}

func New(nodeID string, st store.Store, c cache.Cache, eng *engine.Engine, pubsub bus.PubSub) *Controller {
	return &Controller{nodeID: nodeID, store: st, cache: c, engine: eng, pubsub: pubsub}
}

// publish applies an event locally (so mutations issued from one node are
// applied to that node's state before publish returns) and then broadcasts
// it for other nodes.
func (c *Controller) publish(ctx context.Context, ev bus.Event) error {
	ev.SenderID = c.nodeID
	if err := c.engine.ApplyEvent(ctx, ev); err != nil {
		return fmt.Errorf("admin: local apply: %w", err)
	}
	if c.pubsub == nil {
		return nil
	}
	return c.pubsub.Publish(ctx, ev)
}

func randomAPIKey() (string, error) {
	buf := make([]byte, 128)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("admin: generate api key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// ListProjects returns every project.
func (c *Controller) ListProjects(ctx context.Context) ([]model.Project, error) {
	return c.store.ProjectList(ctx)
}

// GetProject fetches a single project.
func (c *Controller) GetProject(ctx context.Context, id string) (model.Project, error) {
	return c.store.ProjectLoad(ctx, id)
}

// CreateProject assigns a fresh UUID, fills timestamps, generates an API key
// if none was supplied, grants the owner the built-in admin role, and
// mirrors the project into the nil project as an entity plus an
// admin-role template link.
func (c *Controller) CreateProject(ctx context.Context, name string, owner model.EntityUid, apiKey string) (model.Project, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return model.Project{}, fmt.Errorf("admin: generate project id: %w", err)
	}
	if apiKey == "" {
		apiKey, err = randomAPIKey()
		if err != nil {
			return model.Project{}, err
		}
	}
	now := time.Now().UTC()
	p := model.Project{
		ID:        id.String(),
		Name:      name,
		APIKey:    apiKey,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.AddRole(owner.ShortString(), model.AdminRoleName)

	if err := c.store.ProjectSave(ctx, p, nil); err != nil {
		return model.Project{}, cedruserr.Wrap(cedruserr.KindStorage, "save project", err)
	}
	if err := c.cache.SchemaDelete(ctx, p.ID); err != nil {
		return model.Project{}, err
	}
	if err := c.cache.EntitiesPut(ctx, p.ID, nil); err != nil {
		return model.Project{}, err
	}
	if err := c.cache.PolicySetPut(ctx, p.ID, model.NewPolicySet()); err != nil {
		return model.Project{}, err
	}
	if err := c.refreshProjectsCache(ctx); err != nil {
		return model.Project{}, err
	}

	if err := c.publish(ctx, bus.Event{Type: bus.EventProjectCreate, ProjectID: p.ID, Project: &p}); err != nil {
		return model.Project{}, err
	}

	if err := c.mirrorProjectIntoNil(ctx, p); err != nil {
		return model.Project{}, err
	}

	return p, nil
}

// mirrorProjectIntoNil writes the Cedrus::Project entity and the owner's
// admin-role template link into the nil project.
func (c *Controller) mirrorProjectIntoNil(ctx context.Context, p model.Project) error {
	projectEntity := model.NewEntity(model.ProjectEntityUid(p.ID))
	if err := c.AddEntities(ctx, model.NilProjectID, []model.Entity{*projectEntity}); err != nil {
		return fmt.Errorf("admin: mirror project entity: %w", err)
	}

	link := model.TemplateLink{
		TemplateID: model.TemplateProjectAdminRole,
		NewID:      "project_admin_role:" + p.ID,
		Values: map[model.SlotId]model.EntityUid{
			model.SlotPrincipal: p.Owner,
			model.SlotResource:  model.ProjectEntityUid(p.ID),
		},
	}
	if err := c.AddTemplateLinks(ctx, model.NilProjectID, []model.TemplateLink{link}); err != nil {
		return fmt.Errorf("admin: link project admin role: %w", err)
	}
	return nil
}

// UpdateProject merges name/api_key, failing with ErrConflict if
// expectedUpdatedAt does not match the stored value (optimistic
// concurrency).
func (c *Controller) UpdateProject(ctx context.Context, id string, name, apiKey *string, expectedUpdatedAt time.Time) (model.Project, error) {
	if id == model.NilProjectID {
		return model.Project{}, cedruserr.New(cedruserr.KindForbidden, "nil project cannot be updated")
	}
	p, err := c.store.ProjectLoad(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	if !p.UpdatedAt.Equal(expectedUpdatedAt) {
		return model.Project{}, cedruserr.ErrConflict
	}

	changed := false
	if name != nil && *name != p.Name {
		p.Name = *name
		changed = true
	}
	if apiKey != nil && *apiKey != p.APIKey {
		p.APIKey = *apiKey
		changed = true
	}
	if !changed {
		return p, nil
	}
	p.UpdatedAt = time.Now().UTC()

	if err := c.store.ProjectSave(ctx, p, &expectedUpdatedAt); err != nil {
		return model.Project{}, cedruserr.Wrap(cedruserr.KindStorage, "save project", err)
	}
	if err := c.refreshProjectsCache(ctx); err != nil {
		return model.Project{}, err
	}
	if err := c.publish(ctx, bus.Event{Type: bus.EventProjectUpdate, ProjectID: p.ID, Project: &p}); err != nil {
		return model.Project{}, err
	}
	return p, nil
}

// RemoveProject cascades the deletion across the project's own collections,
// its mirrored entity, and its admin-role template link in the nil project.
func (c *Controller) RemoveProject(ctx context.Context, id string) error {
	if id == model.NilProjectID {
		return cedruserr.New(cedruserr.KindForbidden, "nil project cannot be removed")
	}
	p, err := c.store.ProjectLoad(ctx, id)
	if err != nil {
		return err
	}

	if err := c.RemoveTemplateLinks(ctx, model.NilProjectID, []string{"project_admin_role:" + id}); err != nil {
		return fmt.Errorf("admin: unlink project admin role: %w", err)
	}
	if err := c.RemoveEntities(ctx, model.NilProjectID, []model.EntityUid{model.ProjectEntityUid(id)}); err != nil {
		return fmt.Errorf("admin: remove project entity: %w", err)
	}

	if err := c.store.ProjectRemove(ctx, id); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "remove project", err)
	}
	if err := c.cache.Clear(ctx, id); err != nil {
		return err
	}
	if err := c.refreshProjectsCache(ctx); err != nil {
		return err
	}

	return c.publish(ctx, bus.Event{Type: bus.EventProjectRemove, ProjectID: id, Project: &p})
}

func (c *Controller) refreshProjectsCache(ctx context.Context) error {
	projects, err := c.store.ProjectList(ctx)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "list projects", err)
	}
	return c.cache.ProjectsPut(ctx, projects)
}

// GetIdentitySource fetches a project's identity source, if any.
func (c *Controller) GetIdentitySource(ctx context.Context, projectID string) (model.IdentitySource, bool, error) {
	return c.store.IdentitySourceLoad(ctx, projectID)
}

// PutIdentitySource validates nothing beyond shape (the factory that builds
// a JWT authorizer from it runs lazily, at apply time) and installs it.
func (c *Controller) PutIdentitySource(ctx context.Context, projectID string, src model.IdentitySource) error {
	if err := c.store.IdentitySourceSave(ctx, projectID, src); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "save identity source", err)
	}
	if err := c.cache.IdentitySourcePut(ctx, projectID, src); err != nil {
		return err
	}
	return c.publish(ctx, bus.Event{Type: bus.EventProjectPutIdentitySource, ProjectID: projectID, IdentitySource: &src})
}

func (c *Controller) RemoveIdentitySource(ctx context.Context, projectID string) error {
	if err := c.store.IdentitySourceRemove(ctx, projectID); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "remove identity source", err)
	}
	if err := c.cache.IdentitySourceDelete(ctx, projectID); err != nil {
		return err
	}
	return c.publish(ctx, bus.Event{Type: bus.EventProjectRemoveIdentitySource, ProjectID: projectID})
}

// GetSchema fetches a project's schema, if any.
func (c *Controller) GetSchema(ctx context.Context, projectID string) (model.Schema, bool, error) {
	return c.store.SchemaLoad(ctx, projectID)
}

// PutSchema re-type-checks every existing entity against the schema before
// committing — the update aborts on the first failure,
// leaving durable/cache/local state untouched.
func (c *Controller) PutSchema(ctx context.Context, projectID string, s model.Schema) error {
	entities, err := c.store.EntitiesLoad(ctx, projectID)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "load entities", err)
	}
	for _, e := range entities {
		if err := schemacheck.ValidateEntity(e, s); err != nil {
			return err
		}
	}

	if err := c.store.SchemaSave(ctx, projectID, s); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "save schema", err)
	}
	if err := c.cache.SchemaPut(ctx, projectID, s); err != nil {
		return err
	}
	return c.publish(ctx, bus.Event{Type: bus.EventProjectPutSchema, ProjectID: projectID, Schema: &s})
}

func (c *Controller) RemoveSchema(ctx context.Context, projectID string) error {
	if err := c.store.SchemaRemove(ctx, projectID); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "remove schema", err)
	}
	if err := c.cache.SchemaDelete(ctx, projectID); err != nil {
		return err
	}
	return c.publish(ctx, bus.Event{Type: bus.EventProjectRemoveSchema, ProjectID: projectID})
}

// ListEntities returns every entity stored for a project.
func (c *Controller) ListEntities(ctx context.Context, projectID string) ([]model.Entity, error) {
	return c.store.EntitiesLoad(ctx, projectID)
}

// AddEntities compiles each entity against the project's current schema (if
// any) before writing.
func (c *Controller) AddEntities(ctx context.Context, projectID string, entities []model.Entity) error {
	if schema, ok, err := c.store.SchemaLoad(ctx, projectID); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "load schema", err)
	} else if ok {
		for _, e := range entities {
			if err := schemacheck.ValidateEntity(e, schema); err != nil {
				return err
			}
		}
	}

	if err := c.store.EntitiesSave(ctx, projectID, entities); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "save entities", err)
	}
	all, err := c.store.EntitiesLoad(ctx, projectID)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "reload entities", err)
	}
	if err := c.cache.EntitiesPut(ctx, projectID, all); err != nil {
		return err
	}

	uids := make([]model.EntityUid, len(entities))
	for i, e := range entities {
		uids[i] = e.Uid
	}
	return c.publish(ctx, bus.Event{Type: bus.EventProjectAddEntities, ProjectID: projectID, EntityUids: uids})
}

func (c *Controller) RemoveEntities(ctx context.Context, projectID string, uids []model.EntityUid) error {
	if err := c.store.EntitiesRemove(ctx, projectID, uids); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "remove entities", err)
	}
	all, err := c.store.EntitiesLoad(ctx, projectID)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "reload entities", err)
	}
	if err := c.cache.EntitiesPut(ctx, projectID, all); err != nil {
		return err
	}
	return c.publish(ctx, bus.Event{Type: bus.EventProjectRemoveEntities, ProjectID: projectID, EntityUids: uids})
}

// compilePolicySet runs ps through cedar-go's own parser/compiler, wrapping
// any failure as KindPolicySetInvalid. Callers that are about to persist a
// new policy/template/template-link must compile the merged candidate set
// with this before writing anything, so a bad addition never reaches the
// durable store. Templates with no link are rendered to Cedar text, which
// rejects a malformed scope, but are not parsed.
func compilePolicySet(ps model.PolicySet) error {
	for id, t := range ps.Templates {
		if _, err := cedarconv.PolicyText(t.Effect, t.Principal, t.Action, t.Resource, t.Conditions, t.Annotations); err != nil {
			return cedruserr.Wrap(cedruserr.KindPolicyInvalid, "render template "+id, err)
		}
	}
	if _, err := cedarconv.ToPolicySet(ps); err != nil {
		return cedruserr.Wrap(cedruserr.KindPolicySetInvalid, "compile policy set", err)
	}
	return nil
}

func mergedPolicies(existing, additions map[string]model.Policy) map[string]model.Policy {
	out := make(map[string]model.Policy, len(existing)+len(additions))
	for id, p := range existing {
		out[id] = p
	}
	for id, p := range additions {
		out[id] = p
	}
	return out
}

func mergedTemplates(existing, additions map[string]model.Template) map[string]model.Template {
	out := make(map[string]model.Template, len(existing)+len(additions))
	for id, t := range existing {
		out[id] = t
	}
	for id, t := range additions {
		out[id] = t
	}
	return out
}

func mergedTemplateLinks(existing []model.TemplateLink, additions []model.TemplateLink) []model.TemplateLink {
	byID := make(map[string]model.TemplateLink, len(existing)+len(additions))
	order := make([]string, 0, len(existing)+len(additions))
	for _, l := range existing {
		if _, ok := byID[l.NewID]; !ok {
			order = append(order, l.NewID)
		}
		byID[l.NewID] = l
	}
	for _, l := range additions {
		if _, ok := byID[l.NewID]; !ok {
			order = append(order, l.NewID)
		}
		byID[l.NewID] = l
	}
	out := make([]model.TemplateLink, len(order))
	for i, id := range order {
		out[i] = byID[id]
	}
	return out
}

// GetPolicySet assembles the full policy set (static policies, templates and
// template links) currently stored for a project.
func (c *Controller) GetPolicySet(ctx context.Context, projectID string) (model.PolicySet, error) {
	return c.loadPolicySet(ctx, projectID)
}

func (c *Controller) loadPolicySet(ctx context.Context, projectID string) (model.PolicySet, error) {
	policies, err := c.store.PoliciesLoad(ctx, projectID)
	if err != nil {
		return model.PolicySet{}, cedruserr.Wrap(cedruserr.KindStorage, "load policies", err)
	}
	templates, err := c.store.TemplatesLoad(ctx, projectID)
	if err != nil {
		return model.PolicySet{}, cedruserr.Wrap(cedruserr.KindStorage, "load templates", err)
	}
	links, err := c.store.TemplateLinksLoad(ctx, projectID)
	if err != nil {
		return model.PolicySet{}, cedruserr.Wrap(cedruserr.KindStorage, "load template links", err)
	}
	ps := model.NewPolicySet()
	ps.StaticPolicies = policies
	ps.Templates = templates
	ps.TemplateLinks = links
	return ps, nil
}

func (c *Controller) refreshPolicySetCache(ctx context.Context, projectID string) error {
	ps, err := c.loadPolicySet(ctx, projectID)
	if err != nil {
		return err
	}
	return c.cache.PolicySetPut(ctx, projectID, ps)
}

// ListPolicies returns every static policy stored for a project.
func (c *Controller) ListPolicies(ctx context.Context, projectID string) (map[string]model.Policy, error) {
	return c.store.PoliciesLoad(ctx, projectID)
}

// AddPolicies compiles the project's existing policy set merged with the
// candidate policies before writing anything; if compilation fails, the
// store is left untouched.
func (c *Controller) AddPolicies(ctx context.Context, projectID string, policies map[string]model.Policy) error {
	existing, err := c.loadPolicySet(ctx, projectID)
	if err != nil {
		return err
	}
	candidate := existing
	candidate.StaticPolicies = mergedPolicies(existing.StaticPolicies, policies)
	if err := compilePolicySet(candidate); err != nil {
		return err
	}

	if err := c.store.PoliciesSave(ctx, projectID, policies); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "save policies", err)
	}
	if err := c.refreshPolicySetCache(ctx, projectID); err != nil {
		return err
	}
	ids := policyIDs(policies)
	return c.publish(ctx, bus.Event{Type: bus.EventProjectAddPolicies, ProjectID: projectID, PolicyIDs: ids})
}

func (c *Controller) RemovePolicies(ctx context.Context, projectID string, ids []string) error {
	if err := c.store.PoliciesRemove(ctx, projectID, ids); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "remove policies", err)
	}
	if err := c.refreshPolicySetCache(ctx, projectID); err != nil {
		return err
	}
	return c.publish(ctx, bus.Event{Type: bus.EventProjectRemovePolicies, ProjectID: projectID, PolicyIDs: ids})
}

// ListTemplates returns every template stored for a project.
func (c *Controller) ListTemplates(ctx context.Context, projectID string) (map[string]model.Template, error) {
	return c.store.TemplatesLoad(ctx, projectID)
}

// AddTemplates compiles the project's existing policy set merged with the
// candidate templates before writing anything; if compilation fails, the
// store is left untouched.
func (c *Controller) AddTemplates(ctx context.Context, projectID string, templates map[string]model.Template) error {
	existing, err := c.loadPolicySet(ctx, projectID)
	if err != nil {
		return err
	}
	candidate := existing
	candidate.Templates = mergedTemplates(existing.Templates, templates)
	if err := compilePolicySet(candidate); err != nil {
		return err
	}

	if err := c.store.TemplatesSave(ctx, projectID, templates); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "save templates", err)
	}
	if err := c.refreshPolicySetCache(ctx, projectID); err != nil {
		return err
	}
	ids := make([]string, 0, len(templates))
	for id := range templates {
		ids = append(ids, id)
	}
	return c.publish(ctx, bus.Event{Type: bus.EventProjectAddTemplates, ProjectID: projectID, TemplateIDs: ids})
}

func (c *Controller) RemoveTemplates(ctx context.Context, projectID string, ids []string) error {
	if err := c.store.TemplatesRemove(ctx, projectID, ids); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "remove templates", err)
	}
	if err := c.refreshPolicySetCache(ctx, projectID); err != nil {
		return err
	}
	return c.publish(ctx, bus.Event{Type: bus.EventProjectRemoveTemplates, ProjectID: projectID, TemplateIDs: ids})
}

// ListTemplateLinks returns every template link stored for a project.
func (c *Controller) ListTemplateLinks(ctx context.Context, projectID string) ([]model.TemplateLink, error) {
	return c.store.TemplateLinksLoad(ctx, projectID)
}

// AddTemplateLinks validates that every link's template_id exists in the
// same project, then compiles the project's existing policy set merged with
// the candidate links, before persisting anything.
func (c *Controller) AddTemplateLinks(ctx context.Context, projectID string, links []model.TemplateLink) error {
	existing, err := c.loadPolicySet(ctx, projectID)
	if err != nil {
		return err
	}
	for _, l := range links {
		if _, ok := existing.Templates[l.TemplateID]; !ok {
			return cedruserr.New(cedruserr.KindPolicySetInvalid, fmt.Sprintf("template link %s references unknown template %s", l.NewID, l.TemplateID))
		}
	}

	candidate := existing
	candidate.TemplateLinks = mergedTemplateLinks(existing.TemplateLinks, links)
	if err := compilePolicySet(candidate); err != nil {
		return err
	}

	if err := c.store.TemplateLinksSave(ctx, projectID, links); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "save template links", err)
	}
	if err := c.refreshPolicySetCache(ctx, projectID); err != nil {
		return err
	}
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.NewID
	}
	return c.publish(ctx, bus.Event{Type: bus.EventProjectAddTemplateLinks, ProjectID: projectID, TemplateLinkIDs: ids})
}

func (c *Controller) RemoveTemplateLinks(ctx context.Context, projectID string, newIDs []string) error {
	if err := c.store.TemplateLinksRemove(ctx, projectID, newIDs); err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "remove template links", err)
	}
	if err := c.refreshPolicySetCache(ctx, projectID); err != nil {
		return err
	}
	return c.publish(ctx, bus.Event{Type: bus.EventProjectRemoveTemplateLinks, ProjectID: projectID, TemplateLinkIDs: newIDs})
}

func policyIDs(policies map[string]model.Policy) []string {
	ids := make([]string, 0, len(policies))
	for id := range policies {
		ids = append(ids, id)
	}
	return ids
}
