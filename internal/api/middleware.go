package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/intermernet/clubportal/internal/auth"
)

// contextKey is a private type for request context keys.
type contextKey string

// principalContextKey stores the authenticated caller.
const principalContextKey = contextKey("principal")

// authMiddleware validates the bearer token from the Authorization header,
// or from the `token` query parameter for EventSource connections that
// cannot set headers, and stores the caller's Principal in the context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) == 2 && strings.ToLower(headerParts[0]) == "bearer" {
			tokenString = headerParts[1]
		}
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			s.errorJSON(w, errors.New("authorization token is required"), http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateJWT(tokenString, s.config.JwtSecret)
		if err != nil {
			s.errorJSON(w, errors.New("invalid or expired token"), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, auth.PrincipalFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// require rejects callers whose role lacks c with 403.
func (s *Server) require(c auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := principalFromContext(r)
			if err != nil {
				s.errorJSON(w, err, http.StatusUnauthorized)
				return
			}
			if !p.Can(c) {
				s.errorJSON(w, fmt.Errorf("forbidden: your role may not %s", c), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// principalFromContext returns the caller stored by authMiddleware.
func principalFromContext(r *http.Request) (auth.Principal, error) {
	p, ok := r.Context().Value(principalContextKey).(auth.Principal)
	if !ok {
		return auth.Principal{}, errors.New("could not retrieve member from context")
	}
	return p, nil
}
