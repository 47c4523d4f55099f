// Package inproc is the single-node L1 materialized cache: a TTL'd
// in-process map, used standalone in single-node deployments and as the L1
// tier in front of internal/cache/redis in clustered ones.
package inproc

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"cedrus/internal/cedruserr"
	"cedrus/internal/codec"
	"cedrus/internal/model"
)

// Cache is an in-process cache.Cache implementation.
type Cache struct {
	c *gocache.Cache
}

// New builds an in-process cache with the given default TTL; pass 0 for no
// expiration (the single-node deployment's steady-state mode, since the
// durable store remains authoritative and entries are invalidated
// explicitly by the admin controller, not aged out).
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Cache{c: gocache.New(ttl, 10*time.Minute)}
}

func identitySourceKey(projectID string) string { return "identitysource:" + projectID }
func schemaKey(projectID string) string      { return "schema:" + projectID }
func policySetKey(projectID string) string   { return "policyset:" + projectID }
func entitiesKey(projectID string) string    { return "entities:" + projectID }
func projectsKey() string                    { return "projects" }

func (c *Cache) IdentitySourceGet(_ context.Context, projectID string) (model.IdentitySource, bool, error) {
	v, ok := c.c.Get(identitySourceKey(projectID))
	if !ok {
		return model.IdentitySource{}, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return model.IdentitySource{}, false, nil
	}
	s, err := codec.DecodeIdentitySource(b)
	if err != nil {
		return model.IdentitySource{}, false, cedruserr.Wrap(cedruserr.KindCache, "decode identity source", err)
	}
	return s, true, nil
}

func (c *Cache) IdentitySourcePut(_ context.Context, projectID string, s model.IdentitySource) error {
	b, err := codec.EncodeIdentitySource(s)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "encode identity source", err)
	}
	c.c.SetDefault(identitySourceKey(projectID), b)
	return nil
}

func (c *Cache) IdentitySourceDelete(_ context.Context, projectID string) error {
	c.c.Delete(identitySourceKey(projectID))
	return nil
}

func (c *Cache) SchemaGet(_ context.Context, projectID string) (model.Schema, bool, error) {
	v, ok := c.c.Get(schemaKey(projectID))
	if !ok {
		return model.Schema{}, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return model.Schema{}, false, nil
	}
	s, err := codec.DecodeSchema(b)
	if err != nil {
		return model.Schema{}, false, cedruserr.Wrap(cedruserr.KindCache, "decode schema", err)
	}
	return s, true, nil
}

func (c *Cache) SchemaPut(_ context.Context, projectID string, s model.Schema) error {
	b, err := codec.EncodeSchema(s)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "encode schema", err)
	}
	c.c.SetDefault(schemaKey(projectID), b)
	return nil
}

func (c *Cache) SchemaDelete(_ context.Context, projectID string) error {
	c.c.Delete(schemaKey(projectID))
	return nil
}

func (c *Cache) PolicySetGet(_ context.Context, projectID string) (model.PolicySet, bool, error) {
	v, ok := c.c.Get(policySetKey(projectID))
	if !ok {
		return model.PolicySet{}, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return model.PolicySet{}, false, nil
	}
	ps, err := codec.DecodePolicySet(b)
	if err != nil {
		return model.PolicySet{}, false, cedruserr.Wrap(cedruserr.KindCache, "decode policy set", err)
	}
	return ps, true, nil
}

func (c *Cache) PolicySetPut(_ context.Context, projectID string, ps model.PolicySet) error {
	b, err := codec.EncodePolicySet(ps)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "encode policy set", err)
	}
	c.c.SetDefault(policySetKey(projectID), b)
	return nil
}

func (c *Cache) PolicySetDelete(_ context.Context, projectID string) error {
	c.c.Delete(policySetKey(projectID))
	return nil
}

func (c *Cache) EntitiesGet(_ context.Context, projectID string) ([]model.Entity, bool, error) {
	v, ok := c.c.Get(entitiesKey(projectID))
	if !ok {
		return nil, false, nil
	}
	blobs, ok := v.([][]byte)
	if !ok {
		return nil, false, nil
	}
	out := make([]model.Entity, 0, len(blobs))
	for _, b := range blobs {
		e, err := codec.DecodeEntity(b)
		if err != nil {
			return nil, false, cedruserr.Wrap(cedruserr.KindCache, "decode entity", err)
		}
		out = append(out, e)
	}
	return out, true, nil
}

func (c *Cache) EntitiesPut(_ context.Context, projectID string, entities []model.Entity) error {
	blobs := make([][]byte, 0, len(entities))
	for _, e := range entities {
		b, err := codec.EncodeEntity(e)
		if err != nil {
			return cedruserr.Wrap(cedruserr.KindCache, "encode entity", err)
		}
		blobs = append(blobs, b)
	}
	c.c.SetDefault(entitiesKey(projectID), blobs)
	return nil
}

func (c *Cache) EntitiesDelete(_ context.Context, projectID string) error {
	c.c.Delete(entitiesKey(projectID))
	return nil
}

func (c *Cache) ProjectsGet(_ context.Context) ([]model.Project, bool, error) {
	v, ok := c.c.Get(projectsKey())
	if !ok {
		return nil, false, nil
	}
	projects, ok := v.([]model.Project)
	if !ok {
		return nil, false, nil
	}
	return projects, true, nil
}

func (c *Cache) ProjectsPut(_ context.Context, projects []model.Project) error {
	c.c.SetDefault(projectsKey(), projects)
	return nil
}

func (c *Cache) ProjectsDelete(_ context.Context) error {
	c.c.Delete(projectsKey())
	return nil
}

func (c *Cache) Clear(_ context.Context, projectID string) error {
	c.c.Delete(identitySourceKey(projectID))
	c.c.Delete(schemaKey(projectID))
	c.c.Delete(policySetKey(projectID))
	c.c.Delete(entitiesKey(projectID))
	return nil
}
