package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cedrus/internal/cedruserr"
	"cedrus/internal/engine"
	"cedrus/internal/model"
)

type authorizeRequest struct {
	Principal model.EntityUid             `json:"principal"`
	Action    model.EntityUid             `json:"action"`
	Resource  model.EntityUid             `json:"resource"`
	Context   map[string]model.EntityAttr `json:"context,omitempty"`
}

type authorizeResponse struct {
	Decision string   `json:"decision"`
	Reason   []string `json:"reason"`
	Errors   []string `json:"errors"`
}

func toAuthorizeResponse(d engine.Decision) authorizeResponse {
	return authorizeResponse{Decision: d.Decision, Reason: d.Reason, Errors: d.Errors}
}

func (h *handlers) isAuthorized(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d, err := h.eng.IsAuthorized(r.Context(), chi.URLParam(r, "id"), req.Principal, req.Action, req.Resource, req.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthorizeResponse(d))
}

type authorizeBatchRequest struct {
	Requests []authorizeRequest `json:"requests"`
}

type authorizeBatchResponse struct {
	Decisions []authorizeResponse `json:"decisions"`
}

func (h *handlers) isAuthorizedBatch(w http.ResponseWriter, r *http.Request) {
	var req authorizeBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, cedruserr.New(cedruserr.KindBadRequest, "requests is required"))
		return
	}
	reqs := make([]engine.Request, len(req.Requests))
	for i, ar := range req.Requests {
		reqs[i] = engine.Request{Principal: ar.Principal, Action: ar.Action, Resource: ar.Resource, Context: ar.Context}
	}
	decisions, err := h.eng.IsAuthorizedBatch(r.Context(), chi.URLParam(r, "id"), reqs)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]authorizeResponse, len(decisions))
	for i, d := range decisions {
		out[i] = toAuthorizeResponse(d)
	}
	writeJSON(w, http.StatusOK, authorizeBatchResponse{Decisions: out})
}
