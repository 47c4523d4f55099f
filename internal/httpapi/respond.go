package httpapi

import (
	"encoding/json"
	"net/http"

	"cedrus/internal/cedruserr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(cedruserr.KindOf(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps a Kind to its HTTP status per the error-handling design's
// Kind/Triggers/status table. internal/httpapi is the only package that
// knows this mapping; every other boundary works in terms of Kind alone.
func statusFor(k cedruserr.Kind) int {
	switch k {
	case cedruserr.KindBadRequest:
		return http.StatusBadRequest
	case cedruserr.KindUnauthorized:
		return http.StatusUnauthorized
	case cedruserr.KindForbidden:
		return http.StatusForbidden
	case cedruserr.KindNotFound:
		return http.StatusNotFound
	case cedruserr.KindConflict:
		return http.StatusConflict
	case cedruserr.KindSchemaInvalid, cedruserr.KindEntityInvalid,
		cedruserr.KindPolicyInvalid, cedruserr.KindPolicySetInvalid,
		cedruserr.KindContextInvalid:
		return http.StatusUnprocessableEntity
	case cedruserr.KindStorage, cedruserr.KindCache, cedruserr.KindBus:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return cedruserr.Wrap(cedruserr.KindBadRequest, "decode request body", err)
	}
	return nil
}
