// Package tiered composes the in-process cache as an L1 in front of a
// distributed L2 (normally internal/cache/redis), so a clustered deployment
// gets single-node cache latency on repeat reads while still converging
// through the shared L2 after a write from any node.
package tiered

import (
	"context"

	"cedrus/internal/cache"
	"cedrus/internal/model"
)

// Cache layers l1 in front of l2. Writes go to both tiers; reads check l1
// first and populate it from l2 on miss.
type Cache struct {
	l1 cache.Cache
	l2 cache.Cache
}

func New(l1, l2 cache.Cache) *Cache {
	return &Cache{l1: l1, l2: l2}
}

func (c *Cache) IdentitySourceGet(ctx context.Context, projectID string) (model.IdentitySource, bool, error) {
	if s, ok, err := c.l1.IdentitySourceGet(ctx, projectID); ok || err != nil {
		return s, ok, err
	}
	s, ok, err := c.l2.IdentitySourceGet(ctx, projectID)
	if err != nil || !ok {
		return s, ok, err
	}
	_ = c.l1.IdentitySourcePut(ctx, projectID, s)
	return s, true, nil
}

func (c *Cache) IdentitySourcePut(ctx context.Context, projectID string, s model.IdentitySource) error {
	if err := c.l2.IdentitySourcePut(ctx, projectID, s); err != nil {
		return err
	}
	return c.l1.IdentitySourcePut(ctx, projectID, s)
}

func (c *Cache) IdentitySourceDelete(ctx context.Context, projectID string) error {
	if err := c.l2.IdentitySourceDelete(ctx, projectID); err != nil {
		return err
	}
	return c.l1.IdentitySourceDelete(ctx, projectID)
}

func (c *Cache) SchemaGet(ctx context.Context, projectID string) (model.Schema, bool, error) {
	if s, ok, err := c.l1.SchemaGet(ctx, projectID); ok || err != nil {
		return s, ok, err
	}
	s, ok, err := c.l2.SchemaGet(ctx, projectID)
	if err != nil || !ok {
		return s, ok, err
	}
	_ = c.l1.SchemaPut(ctx, projectID, s)
	return s, true, nil
}

func (c *Cache) SchemaPut(ctx context.Context, projectID string, s model.Schema) error {
	if err := c.l2.SchemaPut(ctx, projectID, s); err != nil {
		return err
	}
	return c.l1.SchemaPut(ctx, projectID, s)
}

func (c *Cache) SchemaDelete(ctx context.Context, projectID string) error {
	if err := c.l2.SchemaDelete(ctx, projectID); err != nil {
		return err
	}
	return c.l1.SchemaDelete(ctx, projectID)
}

func (c *Cache) PolicySetGet(ctx context.Context, projectID string) (model.PolicySet, bool, error) {
	if ps, ok, err := c.l1.PolicySetGet(ctx, projectID); ok || err != nil {
		return ps, ok, err
	}
	ps, ok, err := c.l2.PolicySetGet(ctx, projectID)
	if err != nil || !ok {
		return ps, ok, err
	}
	_ = c.l1.PolicySetPut(ctx, projectID, ps)
	return ps, true, nil
}

func (c *Cache) PolicySetPut(ctx context.Context, projectID string, ps model.PolicySet) error {
	if err := c.l2.PolicySetPut(ctx, projectID, ps); err != nil {
		return err
	}
	return c.l1.PolicySetPut(ctx, projectID, ps)
}

func (c *Cache) PolicySetDelete(ctx context.Context, projectID string) error {
	if err := c.l2.PolicySetDelete(ctx, projectID); err != nil {
		return err
	}
	return c.l1.PolicySetDelete(ctx, projectID)
}

func (c *Cache) EntitiesGet(ctx context.Context, projectID string) ([]model.Entity, bool, error) {
	if e, ok, err := c.l1.EntitiesGet(ctx, projectID); ok || err != nil {
		return e, ok, err
	}
	e, ok, err := c.l2.EntitiesGet(ctx, projectID)
	if err != nil || !ok {
		return e, ok, err
	}
	_ = c.l1.EntitiesPut(ctx, projectID, e)
	return e, true, nil
}

func (c *Cache) EntitiesPut(ctx context.Context, projectID string, entities []model.Entity) error {
	if err := c.l2.EntitiesPut(ctx, projectID, entities); err != nil {
		return err
	}
	return c.l1.EntitiesPut(ctx, projectID, entities)
}

func (c *Cache) EntitiesDelete(ctx context.Context, projectID string) error {
	if err := c.l2.EntitiesDelete(ctx, projectID); err != nil {
		return err
	}
	return c.l1.EntitiesDelete(ctx, projectID)
}

func (c *Cache) ProjectsGet(ctx context.Context) ([]model.Project, bool, error) {
	if p, ok, err := c.l1.ProjectsGet(ctx); ok || err != nil {
		return p, ok, err
	}
	p, ok, err := c.l2.ProjectsGet(ctx)
	if err != nil || !ok {
		return p, ok, err
	}
	_ = c.l1.ProjectsPut(ctx, p)
	return p, true, nil
}

func (c *Cache) ProjectsPut(ctx context.Context, projects []model.Project) error {
	if err := c.l2.ProjectsPut(ctx, projects); err != nil {
		return err
	}
	return c.l1.ProjectsPut(ctx, projects)
}

func (c *Cache) ProjectsDelete(ctx context.Context) error {
	if err := c.l2.ProjectsDelete(ctx); err != nil {
		return err
	}
	return c.l1.ProjectsDelete(ctx)
}

func (c *Cache) Clear(ctx context.Context, projectID string) error {
	if err := c.l2.Clear(ctx, projectID); err != nil {
		return err
	}
	return c.l1.Clear(ctx, projectID)
}
