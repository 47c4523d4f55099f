package engine

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"cedrus/internal/bootstrap"
	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
	"cedrus/internal/store"
)

// Bootstrap runs the startup sequence: ensure the nil project
// exists, seeding embedded defaults if missing; write the operator-supplied
// identity source into it; clear and repopulate the cache from the durable
// store for every project; then reload local state. A node joining a
// running cluster reaches steady state from steps 3 and 4 alone, since step
// 1 and 2 are no-ops once another node has already run them.
func (e *Engine) Bootstrap(ctx context.Context, st store.Store, operatorIdentitySource *model.IdentitySource) error {
	if err := ensureNilProject(ctx, st); err != nil {
		return fmt.Errorf("engine: bootstrap nil project: %w", err)
	}

	if operatorIdentitySource != nil {
		if err := st.IdentitySourceSave(ctx, model.NilProjectID, *operatorIdentitySource); err != nil {
			return fmt.Errorf("engine: bootstrap identity source: %w", err)
		}
	}

	if err := e.repopulateCache(ctx, st); err != nil {
		return fmt.Errorf("engine: bootstrap cache repopulation: %w", err)
	}

	return e.ReloadAll(ctx)
}

func ensureNilProject(ctx context.Context, st store.Store) error {
	_, err := st.ProjectLoad(ctx, model.NilProjectID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, cedruserr.ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	apiKey, err := randomAPIKey()
	if err != nil {
		return err
	}
	nilProject := model.Project{
		ID:        model.NilProjectID,
		Name:      "nil",
		APIKey:    apiKey,
		Owner:     model.AdminGroupUid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	nilProject.AddRole(model.AdminGroupUid.ShortString(), model.AdminRoleName)
	if err := st.ProjectSave(ctx, nilProject, nil); err != nil {
		return err
	}

	schema, err := bootstrap.Schema()
	if err != nil {
		return err
	}
	if err := st.SchemaSave(ctx, model.NilProjectID, schema); err != nil {
		return err
	}

	entities, err := bootstrap.Entities()
	if err != nil {
		return err
	}
	if err := st.EntitiesSave(ctx, model.NilProjectID, entities); err != nil {
		return err
	}

	ps, err := bootstrap.PolicySet()
	if err != nil {
		return err
	}
	if len(ps.StaticPolicies) > 0 {
		if err := st.PoliciesSave(ctx, model.NilProjectID, ps.StaticPolicies); err != nil {
			return err
		}
	}
	if len(ps.Templates) > 0 {
		if err := st.TemplatesSave(ctx, model.NilProjectID, ps.Templates); err != nil {
			return err
		}
	}
	if len(ps.TemplateLinks) > 0 {
		if err := st.TemplateLinksSave(ctx, model.NilProjectID, ps.TemplateLinks); err != nil {
			return err
		}
	}
	return nil
}

func randomAPIKey() (string, error) {
	buf := make([]byte, 128)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("engine: generate api key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// repopulateCache clears and refills the distributed cache from the durable
// store for every project, the authoritative read path for fan-out reloads.
func (e *Engine) repopulateCache(ctx context.Context, st store.Store) error {
	projects, err := st.ProjectList(ctx)
	if err != nil {
		return err
	}

	for _, p := range projects {
		if err := e.cache.Clear(ctx, p.ID); err != nil {
			return err
		}

		if src, ok, err := st.IdentitySourceLoad(ctx, p.ID); err != nil {
			return err
		} else if ok {
			if err := e.cache.IdentitySourcePut(ctx, p.ID, src); err != nil {
				return err
			}
		}

		if schema, ok, err := st.SchemaLoad(ctx, p.ID); err != nil {
			return err
		} else if ok {
			if err := e.cache.SchemaPut(ctx, p.ID, schema); err != nil {
				return err
			}
		}

		entities, err := st.EntitiesLoad(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := e.cache.EntitiesPut(ctx, p.ID, entities); err != nil {
			return err
		}

		ps, err := loadPolicySet(ctx, st, p.ID)
		if err != nil {
			return err
		}
		if err := e.cache.PolicySetPut(ctx, p.ID, ps); err != nil {
			return err
		}
	}

	return e.cache.ProjectsPut(ctx, projects)
}

func loadPolicySet(ctx context.Context, st store.Store, projectID string) (model.PolicySet, error) {
	policies, err := st.PoliciesLoad(ctx, projectID)
	if err != nil {
		return model.PolicySet{}, err
	}
	templates, err := st.TemplatesLoad(ctx, projectID)
	if err != nil {
		return model.PolicySet{}, err
	}
	links, err := st.TemplateLinksLoad(ctx, projectID)
	if err != nil {
		return model.PolicySet{}, err
	}
	ps := model.NewPolicySet()
	ps.StaticPolicies = policies
	ps.Templates = templates
	ps.TemplateLinks = links
	return ps, nil
}
