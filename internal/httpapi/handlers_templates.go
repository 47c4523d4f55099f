package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cedrus/internal/cedarconv"
	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

func (h *handlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.ctrl.ListTemplates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *handlers) addTemplates(w http.ResponseWriter, r *http.Request) {
	var templates map[string]model.Template
	if err := decodeJSON(r, &templates); err != nil {
		writeError(w, err)
		return
	}
	if err := h.ctrl.AddTemplates(r.Context(), chi.URLParam(r, "id"), templates); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

type removeTemplatesRequest struct {
	Ids []string `json:"ids"`
}

func (h *handlers) removeTemplates(w http.ResponseWriter, r *http.Request) {
	var req removeTemplatesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Ids) == 0 {
		writeError(w, cedruserr.New(cedruserr.KindBadRequest, "ids is required"))
		return
	}
	if err := h.ctrl.RemoveTemplates(r.Context(), chi.URLParam(r, "id"), req.Ids); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) getTemplateCedar(w http.ResponseWriter, r *http.Request) {
	templates, err := h.ctrl.ListTemplates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	t, ok := templates[chi.URLParam(r, "templateId")]
	if !ok {
		writeError(w, cedruserr.ErrNotFound)
		return
	}
	text, err := cedarconv.PolicyText(t.Effect, t.Principal, t.Action, t.Resource, t.Conditions, t.Annotations)
	if err != nil {
		writeError(w, cedruserr.Wrap(cedruserr.KindPolicyInvalid, "render template", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

func (h *handlers) putTemplateCedar(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, cedruserr.Wrap(cedruserr.KindBadRequest, "read request body", err))
		return
	}
	t, err := cedarconv.ParseTemplateText(string(body))
	if err != nil {
		writeError(w, cedruserr.Wrap(cedruserr.KindPolicyInvalid, "parse template", err))
		return
	}
	id := chi.URLParam(r, "templateId")
	if err := h.ctrl.AddTemplates(r.Context(), chi.URLParam(r, "id"), map[string]model.Template{id: t}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
