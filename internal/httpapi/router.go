// Package httpapi exposes the management and authorization HTTP surface
// over internal/admin and internal/engine. Handlers decode/encode JSON by
// hand rather than reaching for a render/response-framework library.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cedrus/internal/admin"
	"cedrus/internal/engine"
)

// Config carries the HTTP-layer knobs that do not belong to any single
// handler: allowed CORS origins and the per-caller rate limit.
type Config struct {
	CORSOrigins       string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the full Cedrus HTTP surface.
func NewRouter(cfg Config, ctrl *admin.Controller, eng *engine.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	h := &handlers{ctrl: ctrl, eng: eng}

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware(eng))
		if limiter := rateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow); limiter != nil {
			r.Use(limiter)
		}

		r.Route("/projects", func(r chi.Router) {
			r.With(requireAdmin(eng, "project_list", adminResource)).Get("/", h.listProjects)
			r.With(requireAdmin(eng, "project_create", adminResource)).Post("/", h.createProject)

			r.Route("/{id}", func(r chi.Router) {
				r.With(requireAdmin(eng, "project_get", adminResource)).Get("/", h.getProject)
				r.With(requireAdmin(eng, "project_update", adminResource)).Put("/", h.updateProject)
				r.With(requireAdmin(eng, "project_remove", adminResource)).Delete("/", h.removeProject)

				r.Route("/identity-source", func(r chi.Router) {
					r.With(requireAdmin(eng, "identity_source_get", adminResource)).Get("/", h.getIdentitySource)
					r.With(requireAdmin(eng, "identity_source_put", adminResource)).Put("/", h.putIdentitySource)
					r.With(requireAdmin(eng, "identity_source_remove", adminResource)).Delete("/", h.removeIdentitySource)
				})

				r.Route("/schema", func(r chi.Router) {
					r.With(requireAdmin(eng, "schema_get", adminResource)).Get("/", h.getSchema)
					r.With(requireAdmin(eng, "schema_put", adminResource)).Put("/", h.putSchema)
					r.With(requireAdmin(eng, "schema_remove", adminResource)).Delete("/", h.removeSchema)
					r.With(requireAdmin(eng, "schema_get", adminResource)).Get("/cedar", h.getSchemaCedar)
					r.With(requireAdmin(eng, "schema_put", adminResource)).Put("/cedar", h.putSchemaCedar)
				})

				r.Route("/entities", func(r chi.Router) {
					r.With(requireAdmin(eng, "entities_get", adminResource)).Get("/", h.listEntities)
					r.With(requireAdmin(eng, "entities_add", adminResource)).Post("/", h.addEntities)
					r.With(requireAdmin(eng, "entities_remove", adminResource)).Delete("/", h.removeEntities)
				})

				r.Route("/policies", func(r chi.Router) {
					r.With(requireAdmin(eng, "policies_get", adminResource)).Get("/", h.listPolicies)
					r.With(requireAdmin(eng, "policies_add", adminResource)).Post("/", h.addPolicies)
					r.With(requireAdmin(eng, "policies_remove", adminResource)).Delete("/", h.removePolicies)
					r.With(requireAdmin(eng, "policies_get", adminResource)).Get("/{policyId}/cedar", h.getPolicyCedar)
					r.With(requireAdmin(eng, "policies_add", adminResource)).Put("/{policyId}/cedar", h.putPolicyCedar)
				})

				r.Route("/templates", func(r chi.Router) {
					r.With(requireAdmin(eng, "templates_get", adminResource)).Get("/", h.listTemplates)
					r.With(requireAdmin(eng, "templates_add", adminResource)).Post("/", h.addTemplates)
					r.With(requireAdmin(eng, "templates_remove", adminResource)).Delete("/", h.removeTemplates)
					r.With(requireAdmin(eng, "templates_get", adminResource)).Get("/{templateId}/cedar", h.getTemplateCedar)
					r.With(requireAdmin(eng, "templates_add", adminResource)).Put("/{templateId}/cedar", h.putTemplateCedar)
				})

				r.Route("/template-links", func(r chi.Router) {
					r.With(requireAdmin(eng, "template_links_get", adminResource)).Get("/", h.listTemplateLinks)
					r.With(requireAdmin(eng, "template_links_add", adminResource)).Post("/", h.addTemplateLinks)
					r.With(requireAdmin(eng, "template_links_remove", adminResource)).Delete("/", h.removeTemplateLinks)
				})

				r.With(requireAdmin(eng, "policy_set_get", adminResource)).Get("/policy-set", h.getPolicySet)
				r.With(requireAdmin(eng, "policy_set_get", adminResource)).Get("/policy-set/cedar", h.getPolicySetCedar)

				r.Post("/is-authorized", h.isAuthorized)
				r.Post("/is-authorized-batch", h.isAuthorizedBatch)
			})
		})
	})

	return r
}
