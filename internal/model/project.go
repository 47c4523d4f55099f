package model

import "time"

// NilProjectID is the reserved UUID of the administrative meta-project.
const NilProjectID = "00000000-0000-0000-0000-000000000000"

// AdminRoleName is the built-in role granted to a project's owner.
const AdminRoleName = "admin"

// AdminGroupUid is the nil project's entity that gates access to the
// management API; a principal that is a direct parent-member of this group
// is always allowed.
var AdminGroupUid = EntityUid{Type: "Cedrus::Group", ID: "Admins"}

// TemplateProjectAdminRole names the template in the nil project that, when
// linked, binds a project's owner to that project's Cedrus::Project entity.
const TemplateProjectAdminRole = "project_admin_role"

// Project is a tenant.
type Project struct {
	ID        string                          `json:"id"`
	Name      string                          `json:"name"`
	APIKey    string                          `json:"api_key"`
	Owner     EntityUid                       `json:"owner"`
	Roles     map[string]map[string]struct{}  `json:"roles"` // principal string -> set of role names
	CreatedAt time.Time                       `json:"created_at"`
	UpdatedAt time.Time                       `json:"updated_at"`
}

// AddRole grants role to the given principal string key ("Type::id").
func (p *Project) AddRole(principal, role string) {
	if p.Roles == nil {
		p.Roles = map[string]map[string]struct{}{}
	}
	if p.Roles[principal] == nil {
		p.Roles[principal] = map[string]struct{}{}
	}
	p.Roles[principal][role] = struct{}{}
}

// ProjectEntityUid is the Cedrus::Project::<uuid> entity mirrored into the
// nil project for every non-nil project.
func ProjectEntityUid(projectID string) EntityUid {
	return EntityUid{Type: "Cedrus::Project", ID: projectID}
}

// IdentitySourceKind discriminates the two IdentitySource variants.
type IdentitySourceKind uint8

const (
	IdentitySourceInvalid IdentitySourceKind = iota
	IdentitySourceCognito
	IdentitySourceOIDC
)

// IdentitySource is the JWT-issuing configuration used to derive a principal
// from an incoming token. Exactly one of Cognito/OIDC is populated,
// discriminated by Kind.
type IdentitySource struct {
	Kind IdentitySourceKind

	Cognito *CognitoConfig
	OIDC    *OIDCConfig
}

// CognitoConfig identifies an AWS Cognito user pool.
type CognitoConfig struct {
	UserPoolARN         string   `json:"user_pool_arn"`
	ClientIDs           []string `json:"client_ids,omitempty"`
	PrincipalEntityType string   `json:"principal_entity_type"`
	GroupEntityType     string   `json:"group_entity_type,omitempty"`
}

// OIDCTokenSelection chooses which token the identity source validates.
type OIDCTokenSelection uint8

const (
	TokenSelectionInvalid OIDCTokenSelection = iota
	AccessTokenOnly
	IdentityTokenOnly
)

// OIDCConfig identifies a generic OIDC issuer and how to derive a principal.
type OIDCConfig struct {
	Issuer             string
	TokenSelection      OIDCTokenSelection
	Audiences           []string // used when TokenSelection == AccessTokenOnly
	ClientIDs           []string // used when TokenSelection == IdentityTokenOnly
	PrincipalIDClaim    string   // optional claim name, defaults to "sub"
	PrincipalEntityType string   // entity type the derived principal is minted as
	EntityIDPrefix      string   // optional prefix prepended before the claim value, joined with "|"
	GroupClaim          string   // optional claim carrying group membership
	GroupEntityType     string   // optional entity type for derived group uids
}
