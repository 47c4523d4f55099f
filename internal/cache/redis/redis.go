// Package redis is the distributed L2 cache tier backing internal/cache,
// storing codec-encoded binary payloads as base64 strings (go-redis has no
// native byte-string distinction worth relying on across client versions).
package redis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"cedrus/internal/cedruserr"
	"cedrus/internal/codec"
	"cedrus/internal/model"
)

// Cache is the Redis-backed cache.Cache implementation.
type Cache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// New wraps an existing redis client. ttl of 0 means entries never expire;
// the admin controller clears stale entries explicitly via Clear.
func New(rdb *goredis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func identitySourceKey(projectID string) string { return "cedrus:p:" + projectID + ":identitysource" }
func schemaKey(projectID string) string    { return "cedrus:p:" + projectID + ":schema" }
func policySetKey(projectID string) string { return "cedrus:p:" + projectID + ":policyset" }
func entitiesKey(projectID string) string  { return "cedrus:p:" + projectID + ":entities" }
func projectsKey() string                  { return "cedrus:projects" }

func (c *Cache) getBytes(ctx context.Context, key string) ([]byte, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cedruserr.Wrap(cedruserr.KindCache, "get", err)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, false, cedruserr.Wrap(cedruserr.KindCache, "decode base64", err)
	}
	return b, true, nil
}

func (c *Cache) setBytes(ctx context.Context, key string, b []byte) error {
	if err := c.rdb.Set(ctx, key, base64.StdEncoding.EncodeToString(b), c.ttl).Err(); err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "set", err)
	}
	return nil
}

func (c *Cache) IdentitySourceGet(ctx context.Context, projectID string) (model.IdentitySource, bool, error) {
	b, ok, err := c.getBytes(ctx, identitySourceKey(projectID))
	if err != nil || !ok {
		return model.IdentitySource{}, ok, err
	}
	s, err := codec.DecodeIdentitySource(b)
	if err != nil {
		return model.IdentitySource{}, false, cedruserr.Wrap(cedruserr.KindCache, "decode identity source", err)
	}
	return s, true, nil
}

func (c *Cache) IdentitySourcePut(ctx context.Context, projectID string, s model.IdentitySource) error {
	b, err := codec.EncodeIdentitySource(s)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "encode identity source", err)
	}
	return c.setBytes(ctx, identitySourceKey(projectID), b)
}

func (c *Cache) IdentitySourceDelete(ctx context.Context, projectID string) error {
	return c.del(ctx, identitySourceKey(projectID))
}

func (c *Cache) SchemaGet(ctx context.Context, projectID string) (model.Schema, bool, error) {
	b, ok, err := c.getBytes(ctx, schemaKey(projectID))
	if err != nil || !ok {
		return model.Schema{}, ok, err
	}
	s, err := codec.DecodeSchema(b)
	if err != nil {
		return model.Schema{}, false, cedruserr.Wrap(cedruserr.KindCache, "decode schema", err)
	}
	return s, true, nil
}

func (c *Cache) SchemaPut(ctx context.Context, projectID string, s model.Schema) error {
	b, err := codec.EncodeSchema(s)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "encode schema", err)
	}
	return c.setBytes(ctx, schemaKey(projectID), b)
}

func (c *Cache) SchemaDelete(ctx context.Context, projectID string) error {
	return c.del(ctx, schemaKey(projectID))
}

func (c *Cache) PolicySetGet(ctx context.Context, projectID string) (model.PolicySet, bool, error) {
	b, ok, err := c.getBytes(ctx, policySetKey(projectID))
	if err != nil || !ok {
		return model.PolicySet{}, ok, err
	}
	ps, err := codec.DecodePolicySet(b)
	if err != nil {
		return model.PolicySet{}, false, cedruserr.Wrap(cedruserr.KindCache, "decode policy set", err)
	}
	return ps, true, nil
}

func (c *Cache) PolicySetPut(ctx context.Context, projectID string, ps model.PolicySet) error {
	b, err := codec.EncodePolicySet(ps)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "encode policy set", err)
	}
	return c.setBytes(ctx, policySetKey(projectID), b)
}

func (c *Cache) PolicySetDelete(ctx context.Context, projectID string) error {
	return c.del(ctx, policySetKey(projectID))
}

func (c *Cache) EntitiesGet(ctx context.Context, projectID string) ([]model.Entity, bool, error) {
	s, err := c.rdb.Get(ctx, entitiesKey(projectID)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cedruserr.Wrap(cedruserr.KindCache, "get entities", err)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, false, cedruserr.Wrap(cedruserr.KindCache, "decode base64", err)
	}
	var lens []int
	var buf []byte
	if err := json.Unmarshal(raw, &struct {
		Lens *[]int  `json:"lens"`
		Buf  *[]byte `json:"buf"`
	}{&lens, &buf}); err != nil {
		return nil, false, cedruserr.Wrap(cedruserr.KindCache, "decode entity bundle envelope", err)
	}
	entities := make([]model.Entity, 0, len(lens))
	off := 0
	for _, n := range lens {
		e, err := codec.DecodeEntity(buf[off : off+n])
		if err != nil {
			return nil, false, cedruserr.Wrap(cedruserr.KindCache, "decode entity", err)
		}
		entities = append(entities, e)
		off += n
	}
	return entities, true, nil
}

func (c *Cache) EntitiesPut(ctx context.Context, projectID string, entities []model.Entity) error {
	var buf []byte
	lens := make([]int, 0, len(entities))
	for _, e := range entities {
		b, err := codec.EncodeEntity(e)
		if err != nil {
			return cedruserr.Wrap(cedruserr.KindCache, "encode entity", err)
		}
		buf = append(buf, b...)
		lens = append(lens, len(b))
	}
	raw, err := json.Marshal(struct {
		Lens []int  `json:"lens"`
		Buf  []byte `json:"buf"`
	}{lens, buf})
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "encode entity bundle envelope", err)
	}
	return c.setBytes(ctx, entitiesKey(projectID), raw)
}

func (c *Cache) EntitiesDelete(ctx context.Context, projectID string) error {
	return c.del(ctx, entitiesKey(projectID))
}

func (c *Cache) ProjectsGet(ctx context.Context) ([]model.Project, bool, error) {
	s, err := c.rdb.Get(ctx, projectsKey()).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cedruserr.Wrap(cedruserr.KindCache, "get projects", err)
	}
	var projects []model.Project
	if err := json.Unmarshal([]byte(s), &projects); err != nil {
		return nil, false, cedruserr.Wrap(cedruserr.KindCache, "decode projects", err)
	}
	return projects, true, nil
}

func (c *Cache) ProjectsPut(ctx context.Context, projects []model.Project) error {
	b, err := json.Marshal(projects)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "encode projects", err)
	}
	if err := c.rdb.Set(ctx, projectsKey(), b, c.ttl).Err(); err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "set projects", err)
	}
	return nil
}

func (c *Cache) ProjectsDelete(ctx context.Context) error {
	return c.del(ctx, projectsKey())
}

func (c *Cache) Clear(ctx context.Context, projectID string) error {
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, identitySourceKey(projectID), schemaKey(projectID), policySetKey(projectID), entitiesKey(projectID))
	if _, err := pipe.Exec(ctx); err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "clear project cache", err)
	}
	return nil
}

func (c *Cache) del(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return cedruserr.Wrap(cedruserr.KindCache, "delete", err)
	}
	return nil
}
