// Package bootstrap carries the nil project's default admin schema, entity
// set and policy set as embedded JSON blobs, re-embeddable verbatim. They
// are read once at process start and never re-read from disk.
package bootstrap

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cedrus/internal/model"
)

//go:embed testdata/schema.json
var schemaJSON []byte

//go:embed testdata/entities.json
var entitiesJSON []byte

//go:embed testdata/policyset.json
var policySetJSON []byte

// Schema decodes the embedded nil-project schema.
func Schema() (model.Schema, error) {
	var s model.Schema
	if err := json.Unmarshal(schemaJSON, &s); err != nil {
		return model.Schema{}, fmt.Errorf("bootstrap: decode schema: %w", err)
	}
	return s, nil
}

// Entities decodes the embedded nil-project entity set.
func Entities() ([]model.Entity, error) {
	var e []model.Entity
	if err := json.Unmarshal(entitiesJSON, &e); err != nil {
		return nil, fmt.Errorf("bootstrap: decode entities: %w", err)
	}
	return e, nil
}

// PolicySet decodes the embedded nil-project policy set.
func PolicySet() (model.PolicySet, error) {
	var ps model.PolicySet
	if err := json.Unmarshal(policySetJSON, &ps); err != nil {
		return model.PolicySet{}, fmt.Errorf("bootstrap: decode policy set: %w", err)
	}
	return ps, nil
}
