package httpapi

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"cedrus/internal/cedarconv"
	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

func (h *handlers) getPolicySet(w http.ResponseWriter, r *http.Request) {
	ps, err := h.ctrl.GetPolicySet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// getPolicySetCedar renders every static policy followed by every template
// link materialized against its template, in id order, as one Cedar source
// blob — GET-only, there is no bulk PUT for a whole set's Cedar text.
func (h *handlers) getPolicySetCedar(w http.ResponseWriter, r *http.Request) {
	ps, err := h.ctrl.GetPolicySet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var out []byte

	ids := make([]string, 0, len(ps.StaticPolicies))
	for id := range ps.StaticPolicies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := ps.StaticPolicies[id]
		text, err := cedarconv.PolicyText(p.Effect, p.Principal, p.Action, p.Resource, p.Conditions, p.Annotations)
		if err != nil {
			writeError(w, cedruserr.Wrap(cedruserr.KindPolicyInvalid, "render policy "+id, err))
			return
		}
		out = append(out, []byte(text)...)
		out = append(out, '\n')
	}

	links := make([]model.TemplateLink, len(ps.TemplateLinks))
	copy(links, ps.TemplateLinks)
	sort.Slice(links, func(i, j int) bool { return links[i].NewID < links[j].NewID })
	for _, link := range links {
		tmpl, ok := ps.Templates[link.TemplateID]
		if !ok {
			writeError(w, cedruserr.New(cedruserr.KindPolicySetInvalid, "template link "+link.NewID+" references unknown template "+link.TemplateID))
			return
		}
		text, err := cedarconv.LinkedPolicyText(link, tmpl)
		if err != nil {
			writeError(w, cedruserr.Wrap(cedruserr.KindPolicyInvalid, "render template link "+link.NewID, err))
			return
		}
		out = append(out, []byte(text)...)
		out = append(out, '\n')
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
