package cedarconv

import (
	cedar "github.com/cedar-policy/cedar-go"
)

// Decision is the wire-transport result of an authorization check:
// {"decision":"Allow","reason":["p1"],"errors":[]}. Reason carries the bare
// policy/template-link ids that contributed to the decision, in the shape
// cedar.DiagnosticReason.PolicyID already is.
type Decision struct {
	Decision string   `json:"decision"`
	Reason   []string `json:"reason"`
	Errors   []string `json:"errors"`
}

// Authorize wraps cedar.Authorize: load a policy set and entity map, build a
// request, run the evaluator, translate the decision.
func Authorize(ps *cedar.PolicySet, entities cedar.EntityMap, req cedar.Request) Decision {
	decision, diag := cedar.Authorize(ps, entities, req)

	verdict := "Deny"
	if decision == cedar.Allow {
		verdict = "Allow"
	}

	d := Decision{Decision: verdict, Reason: []string{}, Errors: []string{}}
	for _, r := range diag.Reasons {
		d.Reason = append(d.Reason, string(r.PolicyID))
	}
	for _, e := range diag.Errors {
		d.Errors = append(d.Errors, e.String())
	}
	return d
}
