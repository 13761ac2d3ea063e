package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/universal-market/internal/apperr"
	"github.com/ariefcatur/universal-market/internal/auth"
	"github.com/ariefcatur/universal-market/internal/authctx"
	"github.com/ariefcatur/universal-market/internal/config"
)

type TokenVerifier interface {
	Parse(token string) (auth.Claims, error)
}

type AdminChecker interface {
	CheckAdmin(ctx context.Context, userID int64) (auth.AdminStatus, error)
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireToken answers 401 without a bearer token and 403 when the token does
// not verify; otherwise the caller's identity is put in the request context.
func RequireToken(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearer(r)
			if tok == "" {
				writeError(w, r, nil, apperr.New(apperr.KindUnauthorized, "Access token required"))
				return
			}
			c, err := v.Parse(tok)
			if err != nil {
				writeError(w, r, nil, apperr.New(apperr.KindForbidden, "Invalid or expired token"))
				return
			}
			ctx := authctx.WithIdentity(r.Context(), authctx.Identity{UserID: c.UserID, Email: c.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalToken attaches the identity when a valid token is present and
// otherwise lets the request through unchanged.
func OptionalToken(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := bearer(r); tok != "" {
				if c, err := v.Parse(tok); err == nil {
					r = r.WithContext(authctx.WithIdentity(r.Context(), authctx.Identity{UserID: c.UserID, Email: c.Email}))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin must run after RequireToken.
func RequireAdmin(a AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := authctx.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, r, nil, apperr.New(apperr.KindUnauthorized, "Access token required"))
				return
			}
			st, err := a.CheckAdmin(r.Context(), id.UserID)
			if err != nil {
				writeError(w, r, nil, err)
				return
			}
			if !st.IsAdmin {
				writeError(w, r, nil, apperr.New(apperr.KindForbidden, "Admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// catalogWriteGuard picks the middleware chain for catalog writes.
func catalogWriteGuard(mode string, v TokenVerifier, a AdminChecker) []func(http.Handler) http.Handler {
	switch mode {
	case config.CatalogWriteToken:
		return []func(http.Handler) http.Handler{RequireToken(v)}
	case config.CatalogWriteAdmin:
		return []func(http.Handler) http.Handler{RequireToken(v), RequireAdmin(a)}
	default:
		return []func(http.Handler) http.Handler{OptionalToken(v)}
	}
}

func identity(r *http.Request) authctx.Identity {
	id, _ := authctx.IdentityFromContext(r.Context())
	return id
}
