package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const claimsKey contextKey = "claims"

// claims is the payload the token issuer signs into every session
// token. TenantID and UserID travel together so a handler never has
// to trust a client-supplied tenant header.
type claims struct {
	UserID   string `json:"sub"`
	TenantID string `json:"tenantId"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		raw := strings.TrimSpace(header[len("bearer "):])

		var c claims
		token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
			return h.jwtSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, c)))
	})
}

func claimsFromContext(ctx context.Context) (claims, bool) {
	c, ok := ctx.Value(claimsKey).(claims)
	return c, ok
}
