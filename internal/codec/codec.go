// Package codec implements the binary encoding used for cache payloads.
// JSON remains the wire format for HTTP and durable storage; entries that
// pass through the distributed cache are additionally gob-encoded so the
// cache never has to re-run JSON's type-switch decoding on every read.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"cedrus/internal/model"
)

// EncodeEntity gob-encodes a single entity for storage in the distributed cache.
func EncodeEntity(e model.Entity) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("codec: encode entity: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEntity reverses EncodeEntity.
func DecodeEntity(b []byte) (model.Entity, error) {
	var e model.Entity
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&e); err != nil {
		return model.Entity{}, fmt.Errorf("codec: decode entity: %w", err)
	}
	return e, nil
}

// EncodePolicySet gob-encodes a project's full compiled policy set.
func EncodePolicySet(ps model.PolicySet) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ps); err != nil {
		return nil, fmt.Errorf("codec: encode policy set: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePolicySet reverses EncodePolicySet.
func DecodePolicySet(b []byte) (model.PolicySet, error) {
	var ps model.PolicySet
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&ps); err != nil {
		return model.PolicySet{}, fmt.Errorf("codec: decode policy set: %w", err)
	}
	return ps, nil
}

// EncodeIdentitySource gob-encodes a project's identity source.
func EncodeIdentitySource(s model.IdentitySource) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("codec: encode identity source: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeIdentitySource reverses EncodeIdentitySource.
func DecodeIdentitySource(b []byte) (model.IdentitySource, error) {
	var s model.IdentitySource
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return model.IdentitySource{}, fmt.Errorf("codec: decode identity source: %w", err)
	}
	return s, nil
}

// EncodeSchema gob-encodes a project's schema.
func EncodeSchema(s model.Schema) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("codec: encode schema: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSchema reverses EncodeSchema.
func DecodeSchema(b []byte) (model.Schema, error) {
	var s model.Schema
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return model.Schema{}, fmt.Errorf("codec: decode schema: %w", err)
	}
	return s, nil
}
