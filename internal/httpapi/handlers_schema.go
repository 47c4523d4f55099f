package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cedrus/internal/cedarconv"
	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

func (h *handlers) getSchema(w http.ResponseWriter, r *http.Request) {
	s, ok, err := h.ctrl.GetSchema(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, cedruserr.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) putSchema(w http.ResponseWriter, r *http.Request) {
	var s model.Schema
	if err := decodeJSON(r, &s); err != nil {
		writeError(w, err)
		return
	}
	if err := h.ctrl.PutSchema(r.Context(), chi.URLParam(r, "id"), s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) removeSchema(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.RemoveSchema(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) getSchemaCedar(w http.ResponseWriter, r *http.Request) {
	s, ok, err := h.ctrl.GetSchema(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, cedruserr.ErrNotFound)
		return
	}
	text, err := cedarconv.SchemaText(s)
	if err != nil {
		writeError(w, cedruserr.Wrap(cedruserr.KindSchemaInvalid, "render schema", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

func (h *handlers) putSchemaCedar(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, cedruserr.Wrap(cedruserr.KindBadRequest, "read request body", err))
		return
	}
	s, err := cedarconv.ParseSchemaText(string(body))
	if err != nil {
		writeError(w, cedruserr.Wrap(cedruserr.KindSchemaInvalid, "parse schema", err))
		return
	}
	if err := h.ctrl.PutSchema(r.Context(), chi.URLParam(r, "id"), s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
