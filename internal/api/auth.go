package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "user_id"

// userIDFrom returns the authenticated user id stored by the auth
// middleware.
func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// auth verifies the bearer session token and injects the user id into the
// request context. A missing session secret is fatal misconfiguration and
// fails the request with a 500 rather than silently allowing access.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.sessionSecret) == 0 {
			s.writeError(w, http.StatusInternalServerError, "server misconfigured: session secret is not set")
			return
		}

		header := r.Header.Get("Authorization")

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := s.verifySession(raw)
		if err != nil {
			s.logger.Debug("rejected session token", slog.String("error", err.Error()))
			s.writeError(w, http.StatusUnauthorized, "invalid session token")

			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

// verifySession parses and validates an HS256 session JWT and returns its
// subject claim.
func (s *Server) verifySession(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return s.sessionSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}

	if sub == "" {
		return "", jwt.ErrTokenRequiredClaimMissing
	}

	return sub, nil
}

// IssueSession mints an HS256 session token for a user. Used by the CLI
// to produce tokens for local API access.
func IssueSession(secret []byte, userID string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}

	claims["sub"] = userID

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
