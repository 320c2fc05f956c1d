package auth

import (
	"context"
	"net/http"
	"strings"
)

// Cookie names shared by the middleware and the handlers that set them.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the values stored under it.
type contextKey string

const claimsKey contextKey = "accessClaims"

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the access token from the "accessToken" HttpOnly cookie, falling
// back to an "Authorization: Bearer <token>" header for non-browser clients.
// A missing, expired or invalid token ends the request with 401.
//
// Chi applies middlewares in a chain: req -> M1 -> M2 -> Handler -> M2 -> M1 -> resp
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := accessTokenFromRequest(r)
			if raw == "" {
				unauthorized(w, "Unauthorized request")
				return
			}

			claims, err := tokens.VerifyAccessToken(raw)
			if err != nil {
				unauthorized(w, "Invalid access token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
//
// Returns ("", false) if RequireAuth did not run for this request.
func UserIDFromContext(ctx context.Context) (string, bool) {
	c, ok := ctx.Value(claimsKey).(*AccessClaims)
	if !ok || c.Subject == "" {
		return "", false
	}
	return c.Subject, true
}

// ClaimsFromContext returns the full access-token claims, if any.
func ClaimsFromContext(ctx context.Context) (*AccessClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*AccessClaims)
	return c, ok
}

// WithClaims stores claims in ctx the way RequireAuth does. Tests use it to
// call protected handlers directly.
func WithClaims(ctx context.Context, c *AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func accessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// unauthorized writes the same envelope the handlers use for failures. The
// body is a constant shape, so it is written directly rather than importing
// the handler package.
func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"statusCode":401,"message":"` + message + `","success":false,"errors":[]}`))
}
