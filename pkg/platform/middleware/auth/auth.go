// Package auth validates bearer tokens from the upstream identity layer and
// records the caller identity that ingestion stamps as submittedBy/createdBy.
//
// Token issuance is owned by the authentication service; this middleware only
// verifies signatures and extracts the subject. When no signing key is
// configured (local development) the middleware falls back to the
// X-Submitted-By header so the pipeline stays exercisable without an IdP.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "registro/pkg/domain-errors"
	"registro/pkg/platform/httputil"
	"registro/pkg/requestcontext"
)

// Claims are the token claims the registry cares about.
type Claims struct {
	Subject string `json:"sub_name,omitempty"`
	jwt.RegisteredClaims
}

// Middleware validates JWTs and stores the caller identity in the context.
type Middleware struct {
	signingKey []byte
	logger     *slog.Logger
}

// New constructs the middleware. An empty signingKey enables dev mode.
func New(signingKey string, logger *slog.Logger) *Middleware {
	return &Middleware{signingKey: []byte(signingKey), logger: logger}
}

// Handler wraps next with bearer-token validation.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.signingKey) == 0 {
			submittedBy := r.Header.Get("X-Submitted-By")
			if submittedBy == "" {
				submittedBy = "anonymous"
			}
			ctx := requestcontext.WithSubmittedBy(r.Context(), submittedBy)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
			return
		}

		subject, err := m.validate(raw)
		if err != nil {
			if m.logger != nil {
				m.logger.WarnContext(r.Context(), "token validation failed",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err,
				)
			}
			httputil.WriteError(w, err)
			return
		}

		ctx := requestcontext.WithSubmittedBy(r.Context(), subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) validate(raw string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return m.signingKey, nil
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	subject := claims.Subject
	if subject == "" {
		subject = claims.RegisteredClaims.Subject
	}
	if subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return subject, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
