package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cedrus/internal/admin"
	"cedrus/internal/cedruserr"
	"cedrus/internal/engine"
	"cedrus/internal/model"
)

type handlers struct {
	ctrl *admin.Controller
	eng  *engine.Engine
}

func (h *handlers) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.ctrl.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

type createProjectRequest struct {
	Name   string          `json:"name"`
	Owner  model.EntityUid `json:"owner"`
	APIKey string          `json:"api_key,omitempty"`
}

func (h *handlers) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" || req.Owner.Type == "" || req.Owner.ID == "" {
		writeError(w, cedruserr.New(cedruserr.KindBadRequest, "name and owner are required"))
		return
	}
	p, err := h.ctrl.CreateProject(r.Context(), req.Name, req.Owner, req.APIKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handlers) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.ctrl.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateProjectRequest struct {
	Name      *string   `json:"name,omitempty"`
	APIKey    *string   `json:"api_key,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *handlers) updateProject(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.ctrl.UpdateProject(r.Context(), chi.URLParam(r, "id"), req.Name, req.APIKey, req.UpdatedAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) removeProject(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.RemoveProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
