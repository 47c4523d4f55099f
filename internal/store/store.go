// Package store defines the durable-storage contract. Two backends satisfy
// it: internal/store/document (Postgres/JSONB) and internal/store/kvstore
// (DynamoDB single-table). Callers depend only on this interface.
package store

import (
	"context"
	"time"

	"cedrus/internal/model"
)

// Store is the durable persistence boundary for every project-scoped
// collection plus the project registry itself.
type Store interface {
	ProjectLoad(ctx context.Context, id string) (model.Project, error)
	ProjectList(ctx context.Context) ([]model.Project, error)
	ProjectSave(ctx context.Context, p model.Project, expectedUpdatedAt *time.Time) error
	ProjectRemove(ctx context.Context, id string) error

	IdentitySourceLoad(ctx context.Context, projectID string) (model.IdentitySource, bool, error)
	IdentitySourceSave(ctx context.Context, projectID string, src model.IdentitySource) error
	IdentitySourceRemove(ctx context.Context, projectID string) error

	SchemaLoad(ctx context.Context, projectID string) (model.Schema, bool, error)
	SchemaSave(ctx context.Context, projectID string, s model.Schema) error
	SchemaRemove(ctx context.Context, projectID string) error

	EntitiesLoad(ctx context.Context, projectID string) ([]model.Entity, error)
	EntitiesSave(ctx context.Context, projectID string, entities []model.Entity) error
	EntitiesRemove(ctx context.Context, projectID string, uids []model.EntityUid) error

	PoliciesLoad(ctx context.Context, projectID string) (map[string]model.Policy, error)
	PoliciesSave(ctx context.Context, projectID string, policies map[string]model.Policy) error
	PoliciesRemove(ctx context.Context, projectID string, ids []string) error

	TemplatesLoad(ctx context.Context, projectID string) (map[string]model.Template, error)
	TemplatesSave(ctx context.Context, projectID string, templates map[string]model.Template) error
	TemplatesRemove(ctx context.Context, projectID string, ids []string) error

	TemplateLinksLoad(ctx context.Context, projectID string) ([]model.TemplateLink, error)
	TemplateLinksSave(ctx context.Context, projectID string, links []model.TemplateLink) error
	TemplateLinksRemove(ctx context.Context, projectID string, newIDs []string) error
}

// BatchSize is the DynamoDB API's own 25-item BatchWriteItem limit, which
// kvstore's batched deletes stay within. document sends each pgx batch
// whole, without chunking.
const BatchSize = 25

// Chunk splits items into groups of size (BatchSize when size <= 0),
// preserving order.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = BatchSize
	}
	var out [][]T
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}
