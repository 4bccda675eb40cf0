package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wesm/msgscope/internal/tenant"
)

// ErrInvalidToken is returned for any token that fails signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid token")

// Viewer is the authenticated caller of a request.
type Viewer struct {
	ID     uuid.UUID
	Schema tenant.Schema
	Admin  bool
}

// Claims are the JWT claims carried by viewer tokens. The subject is the
// provider user id.
type Claims struct {
	Tenant string `json:"tenant,omitempty"`
	Admin  bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for v. A zero ttl issues a token without
// an expiry.
func IssueToken(secret []byte, v Viewer, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := &Claims{
		Tenant: v.Schema.String(),
		Admin:  v.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  v.ID.String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates a token and returns the viewer it names. Tokens
// without a tenant claim address the default schema.
func ParseToken(secret []byte, tokenString string) (Viewer, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Viewer{}, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Viewer{}, fmt.Errorf("%w: subject: %v", ErrInvalidToken, err)
	}
	schema := tenant.Default
	if claims.Tenant != "" {
		if schema, err = tenant.Parse(claims.Tenant); err != nil {
			return Viewer{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	return Viewer{ID: id, Schema: schema, Admin: claims.Admin}, nil
}

type viewerKey struct{}

// WithViewer returns a context carrying v.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFromContext returns the viewer set by the auth middleware.
func ViewerFromContext(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(viewerKey{}).(Viewer)
	return v, ok
}

// authMiddleware validates the bearer token and stores the viewer in the
// request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
			return
		}

		viewer, err := ParseToken([]byte(s.cfg.Server.JWTSecret), tokenString)
		if err != nil {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewer)))
	})
}
