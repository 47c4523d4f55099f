package engine

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cedrus/internal/cedruserr"
	"cedrus/internal/model"
)

// jwtAuthorizer verifies bearer tokens issued by one project's IdentitySource
// and derives the principal entity they authenticate as. The JWKS-fetch and
// key-cache shape generalizes a JWT validator built for a single hardcoded
// tenant into one that serves any Cognito pool or OIDC issuer.
type jwtAuthorizer struct {
	is model.IdentitySource

	issuer  string
	jwksURL string

	httpClient *http.Client

	keysMu   sync.RWMutex
	keys     map[string]*rsa.PublicKey
	keysExp  time.Time
	cacheTTL time.Duration
}

func newJWTAuthorizer(is model.IdentitySource) (*jwtAuthorizer, error) {
	a := &jwtAuthorizer{
		is:         is,
		httpClient: http.DefaultClient,
		keys:       map[string]*rsa.PublicKey{},
		cacheTTL:   time.Hour,
	}
	switch is.Kind {
	case model.IdentitySourceCognito:
		region, poolID, err := parseCognitoUserPoolARN(is.Cognito.UserPoolARN)
		if err != nil {
			return nil, cedruserr.Wrap(cedruserr.KindBadRequest, "cognito identity source", err)
		}
		a.issuer = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, poolID)
		a.jwksURL = a.issuer + "/.well-known/jwks.json"
	case model.IdentitySourceOIDC:
		if is.OIDC.Issuer == "" {
			return nil, cedruserr.New(cedruserr.KindBadRequest, "oidc identity source missing issuer")
		}
		a.issuer = strings.TrimRight(is.OIDC.Issuer, "/")
		a.jwksURL = a.issuer + "/.well-known/jwks.json"
	default:
		return nil, cedruserr.New(cedruserr.KindBadRequest, "unknown identity source kind")
	}
	return a, nil
}

// parseCognitoUserPoolARN extracts region and pool id from
// "arn:aws:cognito-idp:<region>:<account>:userpool/<poolId>".
func parseCognitoUserPoolARN(arn string) (region, poolID string, err error) {
	parts := strings.Split(arn, ":")
	if len(parts) != 6 || parts[0] != "arn" || parts[2] != "cognito-idp" {
		return "", "", fmt.Errorf("malformed cognito user pool arn %q", arn)
	}
	region = parts[3]
	resource := parts[5]
	slash := strings.LastIndex(resource, "/")
	if slash < 0 {
		return "", "", fmt.Errorf("malformed cognito user pool arn resource %q", resource)
	}
	poolID = resource[slash+1:]
	if region == "" || poolID == "" {
		return "", "", fmt.Errorf("malformed cognito user pool arn %q", arn)
	}
	return region, poolID, nil
}

// Claims is the principal (and, where configured, group membership) derived
// from a verified token.
type Claims struct {
	Principal model.EntityUid
	Groups    []model.EntityUid
}

func (a *jwtAuthorizer) Authenticate(ctx context.Context, tokenString string) (Claims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing kid in token header")
		}
		return a.getKey(ctx, kid)
	})
	if err != nil {
		return Claims{}, cedruserr.Wrap(cedruserr.KindUnauthorized, "parse token", err)
	}
	if !token.Valid {
		return Claims{}, cedruserr.New(cedruserr.KindUnauthorized, "invalid token")
	}

	iss, _ := claims.GetIssuer()
	if iss != a.issuer {
		return Claims{}, cedruserr.New(cedruserr.KindUnauthorized, "unexpected issuer")
	}

	var principalEntityType, claimName, prefix string
	var groupClaim, groupEntityType string

	if a.is.Kind == model.IdentitySourceOIDC {
		oidc := a.is.OIDC
		aud, _ := claims.GetAudience()
		switch oidc.TokenSelection {
		case model.AccessTokenOnly:
			if !audienceAllowed(aud, oidc.Audiences) && !audienceAllowed(aud, oidc.ClientIDs) {
				return Claims{}, cedruserr.New(cedruserr.KindUnauthorized, "unexpected audience")
			}
		case model.IdentityTokenOnly:
			if !audienceAllowed(aud, oidc.ClientIDs) {
				return Claims{}, cedruserr.New(cedruserr.KindUnauthorized, "unexpected audience")
			}
		}
		principalEntityType = oidc.PrincipalEntityType
		claimName = oidc.PrincipalIDClaim
		prefix = oidc.EntityIDPrefix
		groupClaim = oidc.GroupClaim
		groupEntityType = oidc.GroupEntityType
	} else {
		cognito := a.is.Cognito
		principalEntityType = cognito.PrincipalEntityType
		claimName = "sub"
		groupClaim = "cognito:groups"
		groupEntityType = cognito.GroupEntityType
		if !audienceAllowedAny(claims, cognito.ClientIDs) {
			return Claims{}, cedruserr.New(cedruserr.KindUnauthorized, "unexpected client id")
		}
	}
	if claimName == "" {
		claimName = "sub"
	}
	claimValue, _ := claims[claimName].(string)
	if claimValue == "" {
		return Claims{}, cedruserr.New(cedruserr.KindUnauthorized, "missing principal claim")
	}
	entityID := claimValue
	if prefix != "" {
		entityID = prefix + "|" + claimValue
	}

	out := Claims{Principal: model.EntityUid{Type: principalEntityType, ID: entityID}}
	if groupClaim != "" && groupEntityType != "" {
		if raw, ok := claims[groupClaim].([]any); ok {
			for _, g := range raw {
				if s, ok := g.(string); ok {
					out.Groups = append(out.Groups, model.EntityUid{Type: groupEntityType, ID: s})
				}
			}
		}
	}
	return out, nil
}

func audienceAllowed(aud []string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, a := range aud {
		for _, ok := range allowed {
			if a == ok {
				return true
			}
		}
	}
	return false
}

// audienceAllowedAny checks the token's client id claim (Cognito access
// tokens carry "client_id" rather than a standard "aud") against the
// configured allow-list.
func audienceAllowedAny(claims jwt.MapClaims, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	cid, _ := claims["client_id"].(string)
	for _, ok := range allowed {
		if cid == ok {
			return true
		}
	}
	return false
}

func (a *jwtAuthorizer) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	a.keysMu.RLock()
	if key, ok := a.keys[kid]; ok && time.Now().Before(a.keysExp) {
		a.keysMu.RUnlock()
		return key, nil
	}
	a.keysMu.RUnlock()

	if err := a.refreshKeys(ctx); err != nil {
		return nil, err
	}

	a.keysMu.RLock()
	defer a.keysMu.RUnlock()
	key, ok := a.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key not found: %s", kid)
	}
	return key, nil
}

func (a *jwtAuthorizer) refreshKeys(ctx context.Context) error {
	a.keysMu.Lock()
	defer a.keysMu.Unlock()

	if time.Now().Before(a.keysExp) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks request failed with status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	a.keys = keys
	a.keysExp = time.Now().Add(a.cacheTTL)
	return nil
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	n := new(big.Int).SetBytes(nBytes)
	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}
