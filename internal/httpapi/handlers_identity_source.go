package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

func (h *handlers) getIdentitySource(w http.ResponseWriter, r *http.Request) {
	src, ok, err := h.ctrl.GetIdentitySource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, cedruserr.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (h *handlers) putIdentitySource(w http.ResponseWriter, r *http.Request) {
	var src model.IdentitySource
	if err := decodeJSON(r, &src); err != nil {
		writeError(w, err)
		return
	}
	if err := h.ctrl.PutIdentitySource(r.Context(), chi.URLParam(r, "id"), src); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (h *handlers) removeIdentitySource(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.RemoveIdentitySource(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
