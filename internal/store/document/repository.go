package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

const (
	kindProject        = "project"
	kindIdentitySource = "identity_source"
	kindSchema         = "schema"
	kindEntity         = "entity"
	kindPolicy         = "policy"
	kindTemplate       = "template"
	kindTemplateLink   = "template_link"
)

// Repository is the Postgres-backed store.Store implementation.
type Repository struct {
	db *DB
}

// New constructs a document-store-backed repository.
func New(db *DB) *Repository {
	return &Repository{db: db}
}

type projectDoc struct {
	ID        string                          `json:"id"`
	Name      string                          `json:"name"`
	APIKey    string                          `json:"api_key"`
	Owner     model.EntityUid                 `json:"owner"`
	Roles     map[string]map[string]struct{}  `json:"roles"`
	CreatedAt time.Time                       `json:"created_at"`
}

func (r *Repository) ProjectLoad(ctx context.Context, id string) (model.Project, error) {
	row := r.db.readPool.QueryRow(ctx, `
		SELECT body, updated_at FROM cedrus_documents
		WHERE project_id = $1 AND kind = $2 AND doc_id = $1
	`, id, kindProject)
	var body []byte
	var updatedAt time.Time
	if err := row.Scan(&body, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, cedruserr.ErrNotFound
		}
		return model.Project{}, cedruserr.Wrap(cedruserr.KindStorage, "load project", err)
	}
	var doc projectDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return model.Project{}, cedruserr.Wrap(cedruserr.KindStorage, "decode project", err)
	}
	return model.Project{
		ID: doc.ID, Name: doc.Name, APIKey: doc.APIKey, Owner: doc.Owner,
		Roles: doc.Roles, CreatedAt: doc.CreatedAt, UpdatedAt: updatedAt,
	}, nil
}

func (r *Repository) ProjectList(ctx context.Context) ([]model.Project, error) {
	rows, err := r.db.readPool.Query(ctx, `
		SELECT body, updated_at FROM cedrus_documents WHERE kind = $1
	`, kindProject)
	if err != nil {
		return nil, cedruserr.Wrap(cedruserr.KindStorage, "list projects", err)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		var body []byte
		var updatedAt time.Time
		if err := rows.Scan(&body, &updatedAt); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "scan project", err)
		}
		var doc projectDoc
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "decode project", err)
		}
		out = append(out, model.Project{
			ID: doc.ID, Name: doc.Name, APIKey: doc.APIKey, Owner: doc.Owner,
			Roles: doc.Roles, CreatedAt: doc.CreatedAt, UpdatedAt: updatedAt,
		})
	}
	return out, rows.Err()
}

func (r *Repository) ProjectSave(ctx context.Context, p model.Project, expectedUpdatedAt *time.Time) error {
	body, err := json.Marshal(projectDoc{ID: p.ID, Name: p.Name, APIKey: p.APIKey, Owner: p.Owner, Roles: p.Roles, CreatedAt: p.CreatedAt})
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "encode project", err)
	}

	if expectedUpdatedAt == nil {
		_, err = r.db.writePool.Exec(ctx, `
			INSERT INTO cedrus_documents (project_id, kind, doc_id, body, updated_at)
			VALUES ($1, $2, $1, $3, now())
			ON CONFLICT (project_id, kind, doc_id)
			DO UPDATE SET body = EXCLUDED.body, updated_at = now()
		`, p.ID, kindProject, body)
	} else {
		var tag pgconn.CommandTag
		tag, err = r.db.writePool.Exec(ctx, `
			UPDATE cedrus_documents SET body = $3, updated_at = now()
			WHERE project_id = $1 AND kind = $2 AND doc_id = $1 AND updated_at = $4
		`, p.ID, kindProject, body, *expectedUpdatedAt)
		if err == nil && tag.RowsAffected() == 0 {
			return cedruserr.ErrConflict
		}
	}
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "save project", err)
	}
	return nil
}

func (r *Repository) ProjectRemove(ctx context.Context, id string) error {
	_, err := r.db.writePool.Exec(ctx, `DELETE FROM cedrus_documents WHERE project_id = $1`, id)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "remove project", err)
	}
	return nil
}

func (r *Repository) IdentitySourceLoad(ctx context.Context, projectID string) (model.IdentitySource, bool, error) {
	body, ok, err := r.loadOne(ctx, projectID, kindIdentitySource, projectID)
	if err != nil || !ok {
		return model.IdentitySource{}, ok, err
	}
	var src model.IdentitySource
	if err := json.Unmarshal(body, &src); err != nil {
		return model.IdentitySource{}, false, cedruserr.Wrap(cedruserr.KindStorage, "decode identity source", err)
	}
	return src, true, nil
}

func (r *Repository) IdentitySourceSave(ctx context.Context, projectID string, src model.IdentitySource) error {
	body, err := json.Marshal(src)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "encode identity source", err)
	}
	return r.upsertOne(ctx, projectID, kindIdentitySource, projectID, body)
}

func (r *Repository) IdentitySourceRemove(ctx context.Context, projectID string) error {
	return r.removeOne(ctx, projectID, kindIdentitySource, projectID)
}

func (r *Repository) SchemaLoad(ctx context.Context, projectID string) (model.Schema, bool, error) {
	body, ok, err := r.loadOne(ctx, projectID, kindSchema, projectID)
	if err != nil || !ok {
		return model.Schema{}, ok, err
	}
	var s model.Schema
	if err := json.Unmarshal(body, &s); err != nil {
		return model.Schema{}, false, cedruserr.Wrap(cedruserr.KindStorage, "decode schema", err)
	}
	return s, true, nil
}

func (r *Repository) SchemaSave(ctx context.Context, projectID string, s model.Schema) error {
	body, err := json.Marshal(s)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, "encode schema", err)
	}
	return r.upsertOne(ctx, projectID, kindSchema, projectID, body)
}

func (r *Repository) SchemaRemove(ctx context.Context, projectID string) error {
	return r.removeOne(ctx, projectID, kindSchema, projectID)
}

func (r *Repository) EntitiesLoad(ctx context.Context, projectID string) ([]model.Entity, error) {
	rows, err := r.db.readPool.Query(ctx, `
		SELECT body FROM cedrus_documents WHERE project_id = $1 AND kind = $2
	`, projectID, kindEntity)
	if err != nil {
		return nil, cedruserr.Wrap(cedruserr.KindStorage, "load entities", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "scan entity", err)
		}
		var e model.Entity
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "decode entity", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) EntitiesSave(ctx context.Context, projectID string, entities []model.Entity) error {
	batch := &pgx.Batch{}
	for _, e := range entities {
		body, err := json.Marshal(e)
		if err != nil {
			return cedruserr.Wrap(cedruserr.KindStorage, "encode entity", err)
		}
		batch.Queue(`
			INSERT INTO cedrus_documents (project_id, kind, doc_id, entity_type, body, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (project_id, kind, doc_id)
			DO UPDATE SET body = EXCLUDED.body, entity_type = EXCLUDED.entity_type, updated_at = now()
		`, projectID, kindEntity, e.Uid.String(), e.Uid.Type, body)
	}
	br := r.db.writePool.SendBatch(ctx, batch)
	defer br.Close()
	for range entities {
		if _, err := br.Exec(); err != nil {
			return cedruserr.Wrap(cedruserr.KindStorage, "save entity batch", err)
		}
	}
	return nil
}

func (r *Repository) EntitiesRemove(ctx context.Context, projectID string, uids []model.EntityUid) error {
	batch := &pgx.Batch{}
	for _, u := range uids {
		batch.Queue(`DELETE FROM cedrus_documents WHERE project_id = $1 AND kind = $2 AND doc_id = $3`,
			projectID, kindEntity, u.String())
	}
	br := r.db.writePool.SendBatch(ctx, batch)
	defer br.Close()
	for range uids {
		if _, err := br.Exec(); err != nil {
			return cedruserr.Wrap(cedruserr.KindStorage, "remove entity batch", err)
		}
	}
	return nil
}

func (r *Repository) PoliciesLoad(ctx context.Context, projectID string) (map[string]model.Policy, error) {
	return loadKeyed[model.Policy](r, ctx, projectID, kindPolicy)
}

func (r *Repository) PoliciesSave(ctx context.Context, projectID string, policies map[string]model.Policy) error {
	return saveKeyed(r, ctx, projectID, kindPolicy, policies)
}

func (r *Repository) PoliciesRemove(ctx context.Context, projectID string, ids []string) error {
	return r.removeKeyed(ctx, projectID, kindPolicy, ids)
}

func (r *Repository) TemplatesLoad(ctx context.Context, projectID string) (map[string]model.Template, error) {
	return loadKeyed[model.Template](r, ctx, projectID, kindTemplate)
}

func (r *Repository) TemplatesSave(ctx context.Context, projectID string, templates map[string]model.Template) error {
	return saveKeyed(r, ctx, projectID, kindTemplate, templates)
}

func (r *Repository) TemplatesRemove(ctx context.Context, projectID string, ids []string) error {
	return r.removeKeyed(ctx, projectID, kindTemplate, ids)
}

func (r *Repository) TemplateLinksLoad(ctx context.Context, projectID string) ([]model.TemplateLink, error) {
	rows, err := r.db.readPool.Query(ctx, `
		SELECT body FROM cedrus_documents WHERE project_id = $1 AND kind = $2
	`, projectID, kindTemplateLink)
	if err != nil {
		return nil, cedruserr.Wrap(cedruserr.KindStorage, "load template links", err)
	}
	defer rows.Close()

	var out []model.TemplateLink
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "scan template link", err)
		}
		var l model.TemplateLink
		if err := json.Unmarshal(body, &l); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, "decode template link", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) TemplateLinksSave(ctx context.Context, projectID string, links []model.TemplateLink) error {
	batch := &pgx.Batch{}
	for _, l := range links {
		body, err := json.Marshal(l)
		if err != nil {
			return cedruserr.Wrap(cedruserr.KindStorage, "encode template link", err)
		}
		batch.Queue(`
			INSERT INTO cedrus_documents (project_id, kind, doc_id, body, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (project_id, kind, doc_id)
			DO UPDATE SET body = EXCLUDED.body, updated_at = now()
		`, projectID, kindTemplateLink, l.NewID, body)
	}
	br := r.db.writePool.SendBatch(ctx, batch)
	defer br.Close()
	for range links {
		if _, err := br.Exec(); err != nil {
			return cedruserr.Wrap(cedruserr.KindStorage, "save template link batch", err)
		}
	}
	return nil
}

func (r *Repository) TemplateLinksRemove(ctx context.Context, projectID string, newIDs []string) error {
	return r.removeKeyed(ctx, projectID, kindTemplateLink, newIDs)
}

// --- shared helpers ---

func (r *Repository) loadOne(ctx context.Context, projectID, kind, docID string) ([]byte, bool, error) {
	row := r.db.readPool.QueryRow(ctx, `
		SELECT body FROM cedrus_documents WHERE project_id = $1 AND kind = $2 AND doc_id = $3
	`, projectID, kind, docID)
	var body []byte
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, cedruserr.Wrap(cedruserr.KindStorage, fmt.Sprintf("load %s", kind), err)
	}
	return body, true, nil
}

func (r *Repository) upsertOne(ctx context.Context, projectID, kind, docID string, body []byte) error {
	_, err := r.db.writePool.Exec(ctx, `
		INSERT INTO cedrus_documents (project_id, kind, doc_id, body, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (project_id, kind, doc_id)
		DO UPDATE SET body = EXCLUDED.body, updated_at = now()
	`, projectID, kind, docID, body)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, fmt.Sprintf("save %s", kind), err)
	}
	return nil
}

func (r *Repository) removeOne(ctx context.Context, projectID, kind, docID string) error {
	_, err := r.db.writePool.Exec(ctx, `
		DELETE FROM cedrus_documents WHERE project_id = $1 AND kind = $2 AND doc_id = $3
	`, projectID, kind, docID)
	if err != nil {
		return cedruserr.Wrap(cedruserr.KindStorage, fmt.Sprintf("remove %s", kind), err)
	}
	return nil
}

func (r *Repository) removeKeyed(ctx context.Context, projectID, kind string, ids []string) error {
	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`DELETE FROM cedrus_documents WHERE project_id = $1 AND kind = $2 AND doc_id = $3`,
			projectID, kind, id)
	}
	br := r.db.writePool.SendBatch(ctx, batch)
	defer br.Close()
	for range ids {
		if _, err := br.Exec(); err != nil {
			return cedruserr.Wrap(cedruserr.KindStorage, fmt.Sprintf("remove %s batch", kind), err)
		}
	}
	return nil
}

func loadKeyed[T any](r *Repository, ctx context.Context, projectID, kind string) (map[string]T, error) {
	rows, err := r.db.readPool.Query(ctx, `
		SELECT doc_id, body FROM cedrus_documents WHERE project_id = $1 AND kind = $2
	`, projectID, kind)
	if err != nil {
		return nil, cedruserr.Wrap(cedruserr.KindStorage, fmt.Sprintf("load %s", kind), err)
	}
	defer rows.Close()

	out := map[string]T{}
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, fmt.Sprintf("scan %s", kind), err)
		}
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindStorage, fmt.Sprintf("decode %s", kind), err)
		}
		out[id] = v
	}
	return out, rows.Err()
}

func saveKeyed[T any](r *Repository, ctx context.Context, projectID, kind string, items map[string]T) error {
	batch := &pgx.Batch{}
	for id, v := range items {
		body, err := json.Marshal(v)
		if err != nil {
			return cedruserr.Wrap(cedruserr.KindStorage, fmt.Sprintf("encode %s", kind), err)
		}
		batch.Queue(`
			INSERT INTO cedrus_documents (project_id, kind, doc_id, body, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (project_id, kind, doc_id)
			DO UPDATE SET body = EXCLUDED.body, updated_at = now()
		`, projectID, kind, id, body)
	}
	br := r.db.writePool.SendBatch(ctx, batch)
	defer br.Close()
	for range items {
		if _, err := br.Exec(); err != nil {
			return cedruserr.Wrap(cedruserr.KindStorage, fmt.Sprintf("save %s batch", kind), err)
		}
	}
	return nil
}
