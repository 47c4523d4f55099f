package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

func (h *handlers) listEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.ctrl.ListEntities(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities)
}

func (h *handlers) addEntities(w http.ResponseWriter, r *http.Request) {
	var entities []model.Entity
	if err := decodeJSON(r, &entities); err != nil {
		writeError(w, err)
		return
	}
	if err := h.ctrl.AddEntities(r.Context(), chi.URLParam(r, "id"), entities); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities)
}

type removeEntitiesRequest struct {
	Uids []model.EntityUid `json:"uids"`
}

func (h *handlers) removeEntities(w http.ResponseWriter, r *http.Request) {
	var req removeEntitiesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Uids) == 0 {
		writeError(w, cedruserr.New(cedruserr.KindBadRequest, "uids is required"))
		return
	}
	if err := h.ctrl.RemoveEntities(r.Context(), chi.URLParam(r, "id"), req.Uids); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
