package operations

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/louisbranch/opsroom/internal/platform/errors"
	"github.com/louisbranch/opsroom/internal/platform/requestctx"
)

// DefaultAudience is the audience carried by player access tokens.
const DefaultAudience = "authenticated"

var (
	errMissingToken = errors.New("missing bearer token")
	errTokenSubject = errors.New("token has no subject")
)

// TokenVerifier validates HS256 access tokens and extracts the caller id.
type TokenVerifier struct {
	secret   []byte
	audience string
	now      func() time.Time
}

// NewTokenVerifier creates a verifier for tokens signed with secret.
func NewTokenVerifier(secret, audience string) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	audience = strings.TrimSpace(audience)
	if audience == "" {
		audience = DefaultAudience
	}
	return &TokenVerifier{secret: []byte(secret), audience: audience, now: time.Now}, nil
}

// Verify parses raw and returns its subject.
func (v *TokenVerifier) Verify(raw string) (string, error) {
	if v == nil {
		return "", fmt.Errorf("token verifier is not configured")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", errTokenSubject
	}
	return subject, nil
}

// bearerToken reads the Authorization header. Websocket clients that cannot
// set headers may pass access_token in the query instead.
func bearerToken(r *http.Request, allowQuery bool) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, nil
		}
	}
	if allowQuery {
		if token := strings.TrimSpace(r.URL.Query().Get("access_token")); token != "" {
			return token, nil
		}
	}
	return "", errMissingToken
}

// requireAuth rejects requests without a valid token and stores the caller id
// in the request context.
func (h *Handler) requireAuth(allowQuery bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r, allowQuery)
		if err == nil {
			var userID string
			if userID, err = h.verifier.Verify(raw); err == nil {
				next(w, r.WithContext(requestctx.WithUserID(r.Context(), userID)))
				return
			}
		}
		h.logger.DebugContext(r.Context(), "rejected request token", "path", r.URL.Path, "err", err)
		h.writeError(w, r, apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid or missing access token", err))
	}
}
