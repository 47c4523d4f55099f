package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"cedrus/internal/cedruserr"
	"cedrus/internal/engine"
	"cedrus/internal/model"
)

type contextKey string

const principalContextKey contextKey = "principal"

// adminResource is the resource used for management operations that are not
// scoped to a single project (list, create).
var adminResource = model.ProjectEntityUid(model.NilProjectID)

func principalFromContext(ctx context.Context) (model.EntityUid, bool) {
	u, ok := ctx.Value(principalContextKey).(model.EntityUid)
	return u, ok
}

// authMiddleware resolves the caller's principal: an X-API-Key header is
// looked up in the engine's global API-key index; otherwise a bearer JWT is
// verified by the authorizer installed for the project named in the route
// (the nil project's, for routes with no {id}).
func authMiddleware(eng *engine.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := r.Header.Get("X-API-Key"); key != "" {
				owner, ok := eng.ResolveAPIKey(key)
				if !ok {
					writeError(w, cedruserr.New(cedruserr.KindUnauthorized, "invalid api key"))
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalContextKey, owner)))
				return
			}

			token := bearerToken(r)
			if token == "" {
				writeError(w, cedruserr.New(cedruserr.KindUnauthorized, "missing credentials"))
				return
			}

			projectID := chi.URLParam(r, "id")
			if projectID == "" {
				projectID = model.NilProjectID
			}
			authorizer, ok := eng.Authorizer(projectID)
			if !ok {
				writeError(w, cedruserr.New(cedruserr.KindUnauthorized, "no identity source configured for project"))
				return
			}
			claims, err := authorizer.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalContextKey, claims.Principal)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

// requireAdmin runs the nil project's is_allow check for a management
// operation, admitting immediately if the caller is a direct member of the
// admin group and otherwise evaluating the nil project's own policy set.
func requireAdmin(eng *engine.Engine, action string, resource model.EntityUid) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := principalFromContext(r.Context())
			if !ok {
				writeError(w, cedruserr.New(cedruserr.KindUnauthorized, "missing credentials"))
				return
			}
			actionUid := model.EntityUid{Type: "Cedrus::Action", ID: action}
			res := resource
			if id := chi.URLParam(r, "id"); id != "" {
				res = model.ProjectEntityUid(id)
			}
			decision, err := eng.IsAllow(r.Context(), principal, actionUid, res, nil)
			if err != nil {
				writeError(w, err)
				return
			}
			if decision.Decision != "Allow" {
				writeError(w, cedruserr.New(cedruserr.KindForbidden, "not authorized for this management operation"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter rate-limits by authenticated principal, falling back to the
// caller's IP for unauthenticated requests, the same key strategy the
// teacher's auth middleware used for its own NewRateLimiter.
func rateLimiter(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return nil
	}
	limiter := httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if p, ok := principalFromContext(r.Context()); ok {
				return p.ShortString(), nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		}),
	)
	return limiter
}
