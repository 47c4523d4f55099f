// Package engine holds the per-node materialized state that answers
// authorization requests without external I/O. Every per-project
// collection is a sync.Map keyed by ProjectId; writers install a new
// immutable value wholesale rather than mutating in place, so a reader
// either observes the old or the new snapshot, never a torn mix — the same
// atomic-replace discipline a *cedar.PolicySet swap uses for a single
// policy set, generalized here to four per-project collections (schemas,
// entities, policies, authorizers). The API-key index is one
// mutex-guarded map keyed by API key.
package engine

import (
	"context"
	"fmt"
	"sync"

	cedar "github.com/cedar-policy/cedar-go"

	"cedrus/internal/bus"
	"cedrus/internal/cache"
	"cedrus/internal/cedarconv"
	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
	"cedrus/internal/schemacheck"
)

// projectEntities is the immutable per-project entity index: native entities
// keyed by uid, installed wholesale on every mutation.
type projectEntities map[model.EntityUid]model.Entity

// Engine is the node-local decision engine.
type Engine struct {
	nodeID string
	cache  cache.Cache

	schemas    sync.Map // projectID string -> *model.Schema (nil entry means "present but empty" never stored; absent means no schema)
	entities   sync.Map // projectID string -> projectEntities
	policies   sync.Map // projectID string -> *cedar.PolicySet
	authorizers sync.Map // projectID string -> *jwtAuthorizer

	apiKeysMu sync.RWMutex
	apiKeys   map[string]model.EntityUid // api key -> owner uid
}

// New builds an Engine that applies events under nodeID and reads through
// cache for the data it doesn't yet hold locally.
func New(nodeID string, c cache.Cache) *Engine {
	return &Engine{
		nodeID:  nodeID,
		cache:   c,
		apiKeys: map[string]model.EntityUid{},
	}
}

func (e *Engine) schema(projectID string) (model.Schema, bool) {
	v, ok := e.schemas.Load(projectID)
	if !ok {
		return model.Schema{}, false
	}
	return *v.(*model.Schema), true
}

func (e *Engine) projectEntities(projectID string) projectEntities {
	v, ok := e.entities.Load(projectID)
	if !ok {
		return nil
	}
	return v.(projectEntities)
}

func (e *Engine) policySet(projectID string) *cedar.PolicySet {
	v, ok := e.policies.Load(projectID)
	if !ok {
		return cedar.NewPolicySet()
	}
	return v.(*cedar.PolicySet)
}

// Authorizer returns the compiled JWT authorizer installed for projectID, if any.
func (e *Engine) Authorizer(projectID string) (*jwtAuthorizer, bool) {
	v, ok := e.authorizers.Load(projectID)
	if !ok {
		return nil, false
	}
	return v.(*jwtAuthorizer), true
}

// ResolveAPIKey maps an API key to the project owner it authenticates as.
func (e *Engine) ResolveAPIKey(key string) (model.EntityUid, bool) {
	e.apiKeysMu.RLock()
	defer e.apiKeysMu.RUnlock()
	u, ok := e.apiKeys[key]
	return u, ok
}

func (e *Engine) indexAPIKey(key string, owner model.EntityUid) {
	if key == "" {
		return
	}
	e.apiKeysMu.Lock()
	e.apiKeys[key] = owner
	e.apiKeysMu.Unlock()
}

func (e *Engine) unindexAPIKey(key string) {
	if key == "" {
		return
	}
	e.apiKeysMu.Lock()
	delete(e.apiKeys, key)
	e.apiKeysMu.Unlock()
}

// closeEntities starting from seeds, follows Parents transitively through
// idx, visiting each uid at most once. Unknown uids are
// silently omitted; cycles terminate because visited is a set.
func closeEntities(idx projectEntities, seeds []model.EntityUid) []model.Entity {
	visited := make(map[model.EntityUid]struct{}, len(seeds)*2)
	queue := append([]model.EntityUid(nil), seeds...)
	var out []model.Entity
	for len(queue) > 0 {
		uid := queue[0]
		queue = queue[1:]
		if _, ok := visited[uid]; ok {
			continue
		}
		visited[uid] = struct{}{}
		ent, ok := idx[uid]
		if !ok {
			continue
		}
		out = append(out, ent)
		for p := range ent.Parents {
			if _, ok := visited[p]; !ok {
				queue = append(queue, p)
			}
		}
	}
	return out
}

// Decision is the result of an authorization check.
type Decision = cedarconv.Decision

// IsAuthorized evaluates a single (principal, action, resource, context) request.
func (e *Engine) IsAuthorized(ctx context.Context, projectID string, principal, action, resource model.EntityUid, reqCtx map[string]model.EntityAttr) (Decision, error) {
	if schema, ok := e.schema(projectID); ok && reqCtx != nil {
		if err := schemacheck.ValidateContext(reqCtx, schema, action); err != nil {
			return Decision{}, err
		}
	}

	idx := e.projectEntities(projectID)
	closure := closeEntities(idx, []model.EntityUid{principal, resource})
	entityMap, err := cedarconv.ToEntityMap(closure)
	if err != nil {
		return Decision{}, fmt.Errorf("engine: build entity map: %w", err)
	}
	req, err := cedarconv.ToRequest(principal, action, resource, reqCtx)
	if err != nil {
		return Decision{}, fmt.Errorf("engine: build request: %w", err)
	}

	ps := e.policySet(projectID)
	return cedarconv.Authorize(ps, entityMap, req), nil
}

// Request is one member of an IsAuthorizedBatch call.
type Request struct {
	Principal model.EntityUid
	Action    model.EntityUid
	Resource  model.EntityUid
	Context   map[string]model.EntityAttr
}

// IsAuthorizedBatch evaluates many requests against a shared entity closure
// built from the union of every principal and resource.
func (e *Engine) IsAuthorizedBatch(ctx context.Context, projectID string, reqs []Request) ([]Decision, error) {
	idx := e.projectEntities(projectID)
	seeds := make([]model.EntityUid, 0, len(reqs)*2)
	for _, r := range reqs {
		seeds = append(seeds, r.Principal, r.Resource)
	}
	closure := closeEntities(idx, seeds)
	entityMap, err := cedarconv.ToEntityMap(closure)
	if err != nil {
		return nil, fmt.Errorf("engine: build entity map: %w", err)
	}
	ps := e.policySet(projectID)
	schema, hasSchema := e.schema(projectID)

	out := make([]Decision, len(reqs))
	for i, r := range reqs {
		if hasSchema && r.Context != nil {
			if err := schemacheck.ValidateContext(r.Context, schema, r.Action); err != nil {
				return nil, err
			}
		}
		req, err := cedarconv.ToRequest(r.Principal, r.Action, r.Resource, r.Context)
		if err != nil {
			return nil, fmt.Errorf("engine: build request %d: %w", i, err)
		}
		out[i] = cedarconv.Authorize(ps, entityMap, req)
	}
	return out, nil
}

// IsAuthorizedBatchFromResources evaluates a shared principal/action against
// many resources.
func (e *Engine) IsAuthorizedBatchFromResources(ctx context.Context, projectID string, principal, action model.EntityUid, resources []model.EntityUid, reqCtx map[string]model.EntityAttr) ([]Decision, error) {
	reqs := make([]Request, len(resources))
	for i, r := range resources {
		reqs[i] = Request{Principal: principal, Action: action, Resource: r, Context: reqCtx}
	}
	return e.IsAuthorizedBatch(ctx, projectID, reqs)
}

// IsAdmin reports whether principal is a direct parent-member of
// Cedrus::Group::"Admins" in the nil project's entity index. This is
// intentionally non-transitive: multi-hop group nesting does not confer
// admin rights, only direct membership in the reserved group; see
// DESIGN.md.
func (e *Engine) IsAdmin(principal model.EntityUid) bool {
	idx := e.projectEntities(model.NilProjectID)
	if idx == nil {
		return false
	}
	ent, ok := idx[principal]
	if !ok {
		return false
	}
	_, ok = ent.Parents[model.AdminGroupUid]
	return ok
}

// IsAllow is the internal admin authorization check used by the admin
// controller: Allow immediately for admins, otherwise evaluate normally
// against the nil project's policy set.
func (e *Engine) IsAllow(ctx context.Context, principal, action, resource model.EntityUid, reqCtx map[string]model.EntityAttr) (Decision, error) {
	if e.IsAdmin(principal) {
		return Decision{Decision: "Allow", Reason: []string{}, Errors: []string{}}, nil
	}
	return e.IsAuthorized(ctx, model.NilProjectID, principal, action, resource, reqCtx)
}

// ApplyEvent dispatches one bus.Event against local state.
// Self-suppression is the caller's responsibility: the Redis bus delivers
// every event on its channel, this node's own publications included.
func (e *Engine) ApplyEvent(ctx context.Context, ev bus.Event) error {
	switch ev.Type {
	case bus.EventReloadAll:
		return e.ReloadAll(ctx)
	case bus.EventProjectCreate, bus.EventProjectUpdate:
		return e.applyProjectUpsert(ctx, ev)
	case bus.EventProjectRemove:
		return e.applyProjectRemove(ev)
	case bus.EventProjectPutIdentitySource:
		return e.applyPutIdentitySource(ctx, ev.ProjectID)
	case bus.EventProjectRemoveIdentitySource:
		e.authorizers.Delete(ev.ProjectID)
		return nil
	case bus.EventProjectPutSchema:
		return e.applyPutSchema(ctx, ev.ProjectID)
	case bus.EventProjectRemoveSchema:
		e.schemas.Delete(ev.ProjectID)
		return nil
	case bus.EventProjectAddEntities:
		return e.applyAddEntities(ctx, ev.ProjectID, ev.EntityUids)
	case bus.EventProjectRemoveEntities:
		return e.applyRemoveEntities(ev.ProjectID, ev.EntityUids)
	case bus.EventProjectAddPolicies, bus.EventProjectRemovePolicies,
		bus.EventProjectAddTemplates, bus.EventProjectRemoveTemplates,
		bus.EventProjectAddTemplateLinks, bus.EventProjectRemoveTemplateLinks:
		return e.applyRecompilePolicySet(ctx, ev.ProjectID)
	default:
		return cedruserr.New(cedruserr.KindBadRequest, "unknown event type")
	}
}

func (e *Engine) applyProjectUpsert(ctx context.Context, ev bus.Event) error {
	if ev.Project == nil {
		return cedruserr.New(cedruserr.KindBadRequest, "project event missing payload")
	}
	p := *ev.Project
	if _, ok := e.entities.Load(p.ID); !ok {
		e.entities.Store(p.ID, projectEntities{})
	}
	if _, ok := e.policies.Load(p.ID); !ok {
		e.policies.Store(p.ID, cedar.NewPolicySet())
	}
	e.indexAPIKey(p.APIKey, p.Owner)
	return nil
}

func (e *Engine) applyProjectRemove(ev bus.Event) error {
	e.entities.Delete(ev.ProjectID)
	e.policies.Delete(ev.ProjectID)
	e.schemas.Delete(ev.ProjectID)
	e.authorizers.Delete(ev.ProjectID)
	if ev.Project != nil {
		e.unindexAPIKey(ev.Project.APIKey)
	}
	return nil
}

func (e *Engine) applyPutIdentitySource(ctx context.Context, projectID string) error {
	src, ok, err := e.cache.IdentitySourceGet(ctx, projectID)
	if err != nil {
		return err
	}
	if !ok {
		e.authorizers.Delete(projectID)
		return nil
	}
	a, err := newJWTAuthorizer(src)
	if err != nil {
		return err
	}
	e.authorizers.Store(projectID, a)
	return nil
}

func (e *Engine) applyPutSchema(ctx context.Context, projectID string) error {
	s, ok, err := e.cache.SchemaGet(ctx, projectID)
	if err != nil {
		return err
	}
	if !ok {
		e.schemas.Delete(projectID)
		return nil
	}
	e.schemas.Store(projectID, &s)
	return nil
}

func (e *Engine) applyAddEntities(ctx context.Context, projectID string, uids []model.EntityUid) error {
	all, ok, err := e.cache.EntitiesGet(ctx, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	byUID := make(map[model.EntityUid]model.Entity, len(all))
	for _, ent := range all {
		byUID[ent.Uid] = ent
	}

	existing := e.projectEntities(projectID)
	next := make(projectEntities, len(existing)+len(uids))
	for k, v := range existing {
		next[k] = v
	}
	for _, uid := range uids {
		if ent, ok := byUID[uid]; ok {
			next[uid] = ent
		}
	}
	e.entities.Store(projectID, next)
	return nil
}

func (e *Engine) applyRemoveEntities(projectID string, uids []model.EntityUid) error {
	existing := e.projectEntities(projectID)
	next := make(projectEntities, len(existing))
	for k, v := range existing {
		next[k] = v
	}
	for _, uid := range uids {
		delete(next, uid)
	}
	e.entities.Store(projectID, next)
	return nil
}

func (e *Engine) applyRecompilePolicySet(ctx context.Context, projectID string) error {
	ps, ok, err := e.cache.PolicySetGet(ctx, projectID)
	if err != nil {
		return err
	}
	if !ok {
		ps = model.NewPolicySet()
	}
	compiled, err := cedarconv.ToPolicySet(ps)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindPolicySetInvalid, "recompile policy set", err)
	}
	e.policies.Store(projectID, compiled)
	return nil
}

// ReloadAll rebuilds every projection from the cache.
func (e *Engine) ReloadAll(ctx context.Context) error {
	projects, ok, err := e.cache.ProjectsGet(ctx)
	if err != nil {
		return err
	}
	if !ok {
		projects = nil
	}

	newAPIKeys := make(map[string]model.EntityUid, len(projects))
	seenProjects := make(map[string]struct{}, len(projects))

	for _, p := range projects {
		seenProjects[p.ID] = struct{}{}
		if p.APIKey != "" {
			newAPIKeys[p.APIKey] = p.Owner
		}

		entities, ok, err := e.cache.EntitiesGet(ctx, p.ID)
		if err != nil {
			return err
		}
		idx := make(projectEntities, len(entities))
		if ok {
			for _, ent := range entities {
				idx[ent.Uid] = ent
			}
		}
		e.entities.Store(p.ID, idx)

		ps, ok, err := e.cache.PolicySetGet(ctx, p.ID)
		if err != nil {
			return err
		}
		if !ok {
			ps = model.NewPolicySet()
		}
		compiled, err := cedarconv.ToPolicySet(ps)
		if err != nil {
			return cedruserr.Wrap(cedruserr.KindPolicySetInvalid, fmt.Sprintf("project %s", p.ID), err)
		}
		e.policies.Store(p.ID, compiled)

		if schema, ok, err := e.cache.SchemaGet(ctx, p.ID); err != nil {
			return err
		} else if ok {
			e.schemas.Store(p.ID, &schema)
		} else {
			e.schemas.Delete(p.ID)
		}

		if src, ok, err := e.cache.IdentitySourceGet(ctx, p.ID); err != nil {
			return err
		} else if ok {
			if a, err := newJWTAuthorizer(src); err == nil {
				e.authorizers.Store(p.ID, a)
			}
		} else {
			e.authorizers.Delete(p.ID)
		}
	}

	e.apiKeysMu.Lock()
	e.apiKeys = newAPIKeys
	e.apiKeysMu.Unlock()

	e.dropStaleProjects(seenProjects)
	return nil
}

func (e *Engine) dropStaleProjects(seen map[string]struct{}) {
	var stale []string
	e.entities.Range(func(k, _ any) bool {
		id := k.(string)
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
		return true
	})
	for _, id := range stale {
		e.entities.Delete(id)
		e.policies.Delete(id)
		e.schemas.Delete(id)
		e.authorizers.Delete(id)
	}
}
