package cedarconv

import (
	"encoding/json"
	"fmt"

	cedar "github.com/cedar-policy/cedar-go"

	"cedrus/internal/model"
)

// ToEntityMap builds a cedar.EntityMap the same way a repository would:
// Entity already marshals to the Cedar entity JSON grammar
// (uid/attrs/parents/tags), so a plain JSON array round-trip through
// cedar.EntityMap's own decoder is lossless and needs no field-by-field
// construction.
func ToEntityMap(entities []model.Entity) (cedar.EntityMap, error) {
	if len(entities) == 0 {
		return cedar.EntityMap{}, nil
	}
	data, err := json.Marshal(entities)
	if err != nil {
		return nil, fmt.Errorf("cedarconv: marshal entities: %w", err)
	}
	var out cedar.EntityMap
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cedarconv: decode entity map: %w", err)
	}
	return out, nil
}

// ToEntityUID converts a model entity reference to cedar-go's uid type via
// cedar.NewEntityUID(cedar.EntityType(...), cedar.String(...)).
func ToEntityUID(u model.EntityUid) cedar.EntityUID {
	return cedar.NewEntityUID(cedar.EntityType(u.Type), cedar.String(u.ID))
}

// ToContextRecord renders a request context the same way entity attrs are
// decoded: each EntityAttr already marshals to the Cedar value JSON
// grammar, so building a record is a JSON round trip through cedar.Record's
// own decoder rather than a hand-rolled per-kind switch over untyped
// map[string]any.
func ToContextRecord(ctx map[string]model.EntityAttr) (cedar.Record, error) {
	if len(ctx) == 0 {
		return cedar.NewRecord(cedar.RecordMap{}), nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return cedar.Record{}, fmt.Errorf("cedarconv: marshal context: %w", err)
	}
	var rec cedar.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return cedar.Record{}, fmt.Errorf("cedarconv: decode context record: %w", err)
	}
	return rec, nil
}

// ToRequest builds a cedar.Request for a principal/action/resource/context
// authorization check.
func ToRequest(principal, action, resource model.EntityUid, ctx map[string]model.EntityAttr) (cedar.Request, error) {
	rec, err := ToContextRecord(ctx)
	if err != nil {
		return cedar.Request{}, err
	}
	return cedar.Request{
		Principal: ToEntityUID(principal),
		Action:    ToEntityUID(action),
		Resource:  ToEntityUID(resource),
		Context:   rec,
	}, nil
}
