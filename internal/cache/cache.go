// Package cache defines the distributed-cache contract that sits between
// the durable store and each node's decision engine. Per-project values
// (identity source, schema, policy set, entities) are stored in their
// codec-encoded binary form so reads never re-run JSON's type-switch
// decoding; the project list does not go through the codec.
package cache

import (
	"context"

	"cedrus/internal/model"
)

// Cache is the per-project materialized-cache boundary.
type Cache interface {
	IdentitySourceGet(ctx context.Context, projectID string) (model.IdentitySource, bool, error)
	IdentitySourcePut(ctx context.Context, projectID string, src model.IdentitySource) error
	IdentitySourceDelete(ctx context.Context, projectID string) error

	SchemaGet(ctx context.Context, projectID string) (model.Schema, bool, error)
	SchemaPut(ctx context.Context, projectID string, s model.Schema) error
	SchemaDelete(ctx context.Context, projectID string) error

	PolicySetGet(ctx context.Context, projectID string) (model.PolicySet, bool, error)
	PolicySetPut(ctx context.Context, projectID string, ps model.PolicySet) error
	PolicySetDelete(ctx context.Context, projectID string) error

	EntitiesGet(ctx context.Context, projectID string) ([]model.Entity, bool, error)
	EntitiesPut(ctx context.Context, projectID string, entities []model.Entity) error
	EntitiesDelete(ctx context.Context, projectID string) error

	ProjectsGet(ctx context.Context) ([]model.Project, bool, error)
	ProjectsPut(ctx context.Context, projects []model.Project) error
	ProjectsDelete(ctx context.Context) error

	// Clear drops every cached key for projectID, used on project removal.
	Clear(ctx context.Context, projectID string) error
}

// key builds the "cedrus:p:<projectId>:<kind>" composite key shape
// ("cedrus:<kind>" when projectID is empty). Neither the in-process nor the
// Redis implementation calls it; each builds its own keys.
func key(projectID, kind string) string {
	if projectID == "" {
		return "cedrus:" + kind
	}
	return "cedrus:p:" + projectID + ":" + kind
}
