package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cedrus/internal/cedarconv"
	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

func (h *handlers) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.ctrl.ListPolicies(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h *handlers) addPolicies(w http.ResponseWriter, r *http.Request) {
	var policies map[string]model.Policy
	if err := decodeJSON(r, &policies); err != nil {
		writeError(w, err)
		return
	}
	if err := h.ctrl.AddPolicies(r.Context(), chi.URLParam(r, "id"), policies); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

type removePoliciesRequest struct {
	Ids []string `json:"ids"`
}

func (h *handlers) removePolicies(w http.ResponseWriter, r *http.Request) {
	var req removePoliciesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Ids) == 0 {
		writeError(w, cedruserr.New(cedruserr.KindBadRequest, "ids is required"))
		return
	}
	if err := h.ctrl.RemovePolicies(r.Context(), chi.URLParam(r, "id"), req.Ids); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) getPolicyCedar(w http.ResponseWriter, r *http.Request) {
	policies, err := h.ctrl.ListPolicies(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	p, ok := policies[chi.URLParam(r, "policyId")]
	if !ok {
		writeError(w, cedruserr.ErrNotFound)
		return
	}
	text, err := cedarconv.PolicyText(p.Effect, p.Principal, p.Action, p.Resource, p.Conditions, p.Annotations)
	if err != nil {
		writeError(w, cedruserr.Wrap(cedruserr.KindPolicyInvalid, "render policy", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

func (h *handlers) putPolicyCedar(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, cedruserr.Wrap(cedruserr.KindBadRequest, "read request body", err))
		return
	}
	p, err := cedarconv.ParsePolicyText(string(body))
	if err != nil {
		writeError(w, cedruserr.Wrap(cedruserr.KindPolicyInvalid, "parse policy", err))
		return
	}
	id := chi.URLParam(r, "policyId")
	if err := h.ctrl.AddPolicies(r.Context(), chi.URLParam(r, "id"), map[string]model.Policy{id: p}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
