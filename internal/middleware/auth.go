package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/logger"
)

// Headers trusted when identity is asserted by an upstream gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

var (
	ErrMissingToken   = errors.New("authorization token required")
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token subject missing")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   domain.Role
}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller stored on ctx.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// Claims is the token payload. The subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a verifier. An empty issuer skips the issuer check.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Sign issues a token for id valid for ttl.
func (v *TokenVerifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify parses a raw token and returns the identity it carries.
func (v *TokenVerifier) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Identity{}, ErrMissingSubject
	}
	return Identity{UserID: claims.Subject, Role: domain.Role(strings.ToLower(claims.Role))}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Auth requires a valid bearer token on every request except /health.
func Auth(verifier *TokenVerifier, log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			id, err := verifier.Verify(BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				msg := "invalid token"
				switch {
				case errors.Is(err, ErrMissingToken):
					msg = "authorization header must be Bearer {token}"
				case errors.Is(err, jwt.ErrTokenExpired):
					msg = "token has expired"
				}
				log.Warn().
					Err(err).
					Str("request_id", RequestIDFrom(r.Context())).
					Str("path", r.URL.Path).
					Msg("Rejected unauthenticated request")
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// TrustedHeaders reads the caller from X-User-ID and X-User-Role. It is only
// installed when no token secret is configured outside production.
func TrustedHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID != "" {
			role := domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
			r = r.WithContext(WithIdentity(r.Context(), Identity{UserID: userID, Role: role}))
		}
		next.ServeHTTP(w, r)
	})
}
