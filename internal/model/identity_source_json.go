package model

import (
	"encoding/json"
	"fmt"
)

func (k IdentitySourceKind) String() string {
	switch k {
	case IdentitySourceCognito:
		return "cognito"
	case IdentitySourceOIDC:
		return "oidc"
	default:
		return "invalid"
	}
}

func identitySourceKindFromWire(s string) (IdentitySourceKind, error) {
	switch s {
	case "cognito":
		return IdentitySourceCognito, nil
	case "oidc":
		return IdentitySourceOIDC, nil
	default:
		return IdentitySourceInvalid, fmt.Errorf("%w: unknown identity source kind %q", ErrInvalidEncoding, s)
	}
}

func (t OIDCTokenSelection) String() string {
	switch t {
	case AccessTokenOnly:
		return "access_token"
	case IdentityTokenOnly:
		return "identity_token"
	default:
		return "invalid"
	}
}

func tokenSelectionFromWire(s string) (OIDCTokenSelection, error) {
	switch s {
	case "access_token":
		return AccessTokenOnly, nil
	case "identity_token":
		return IdentityTokenOnly, nil
	default:
		return TokenSelectionInvalid, fmt.Errorf("%w: unknown token selection %q", ErrInvalidEncoding, s)
	}
}

type identitySourceJSON struct {
	Kind    string          `json:"kind"`
	Cognito *CognitoConfig  `json:"cognito,omitempty"`
	OIDC    *oidcConfigJSON `json:"oidc,omitempty"`
}

type oidcConfigJSON struct {
	Issuer              string   `json:"issuer"`
	TokenSelection      string   `json:"token_selection"`
	Audiences           []string `json:"audiences,omitempty"`
	ClientIDs           []string `json:"client_ids,omitempty"`
	PrincipalIDClaim    string   `json:"principal_id_claim,omitempty"`
	PrincipalEntityType string   `json:"principal_entity_type"`
	EntityIDPrefix      string   `json:"entity_id_prefix,omitempty"`
	GroupClaim          string   `json:"group_claim,omitempty"`
	GroupEntityType     string   `json:"group_entity_type,omitempty"`
}

func (s IdentitySource) MarshalJSON() ([]byte, error) {
	w := identitySourceJSON{Kind: s.Kind.String()}
	switch s.Kind {
	case IdentitySourceCognito:
		w.Cognito = s.Cognito
	case IdentitySourceOIDC:
		if s.OIDC != nil {
			w.OIDC = &oidcConfigJSON{
				Issuer:              s.OIDC.Issuer,
				TokenSelection:      s.OIDC.TokenSelection.String(),
				Audiences:           s.OIDC.Audiences,
				ClientIDs:           s.OIDC.ClientIDs,
				PrincipalIDClaim:    s.OIDC.PrincipalIDClaim,
				PrincipalEntityType: s.OIDC.PrincipalEntityType,
				EntityIDPrefix:      s.OIDC.EntityIDPrefix,
				GroupClaim:          s.OIDC.GroupClaim,
				GroupEntityType:     s.OIDC.GroupEntityType,
			}
		}
	default:
		return nil, fmt.Errorf("%w: identity source missing kind", ErrInvalidEncoding)
	}
	return json.Marshal(w)
}

func (s *IdentitySource) UnmarshalJSON(b []byte) error {
	var w identitySourceJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: identity source: %v", ErrInvalidEncoding, err)
	}
	kind, err := identitySourceKindFromWire(w.Kind)
	if err != nil {
		return err
	}
	s.Kind = kind
	switch kind {
	case IdentitySourceCognito:
		if w.Cognito == nil {
			return fmt.Errorf("%w: cognito identity source missing cognito config", ErrInvalidEncoding)
		}
		s.Cognito = w.Cognito
	case IdentitySourceOIDC:
		if w.OIDC == nil {
			return fmt.Errorf("%w: oidc identity source missing oidc config", ErrInvalidEncoding)
		}
		sel, err := tokenSelectionFromWire(w.OIDC.TokenSelection)
		if err != nil {
			return err
		}
		s.OIDC = &OIDCConfig{
			Issuer:              w.OIDC.Issuer,
			TokenSelection:      sel,
			Audiences:           w.OIDC.Audiences,
			ClientIDs:           w.OIDC.ClientIDs,
			PrincipalIDClaim:    w.OIDC.PrincipalIDClaim,
			PrincipalEntityType: w.OIDC.PrincipalEntityType,
			EntityIDPrefix:      w.OIDC.EntityIDPrefix,
			GroupClaim:          w.OIDC.GroupClaim,
			GroupEntityType:     w.OIDC.GroupEntityType,
		}
	}
	return nil
}
