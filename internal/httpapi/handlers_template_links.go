package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

func (h *handlers) listTemplateLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.ctrl.ListTemplateLinks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *handlers) addTemplateLinks(w http.ResponseWriter, r *http.Request) {
	var links []model.TemplateLink
	if err := decodeJSON(r, &links); err != nil {
		writeError(w, err)
		return
	}
	if err := h.ctrl.AddTemplateLinks(r.Context(), chi.URLParam(r, "id"), links); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

type removeTemplateLinksRequest struct {
	NewIds []string `json:"new_ids"`
}

func (h *handlers) removeTemplateLinks(w http.ResponseWriter, r *http.Request) {
	var req removeTemplateLinksRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.NewIds) == 0 {
		writeError(w, cedruserr.New(cedruserr.KindBadRequest, "new_ids is required"))
		return
	}
	if err := h.ctrl.RemoveTemplateLinks(r.Context(), chi.URLParam(r, "id"), req.NewIds); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
