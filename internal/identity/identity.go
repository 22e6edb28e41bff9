package identity

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"messaging-service/internal/apperrors"
)

// Claims is the authenticated identity attached to every operation.
type Claims struct {
	UserID      string
	DisplayName string
	Email       string
}

// EmailLocalPart returns the part of the email before the @, empty when the
// email is missing or malformed.
func (c Claims) EmailLocalPart() string {
	at := strings.Index(c.Email, "@")
	if at <= 0 {
		return ""
	}
	return c.Email[:at]
}

// Provider verifies bearer tokens and yields identity claims.
type Provider interface {
	Verify(token string) (Claims, error)
}

type tokenClaims struct {
	DisplayName string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider validates HS256 tokens issued by the auth service.
type JWTProvider struct {
	secret []byte
}

// NewJWTProvider constructs a provider with the shared signing secret.
func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the claims.
func (p *JWTProvider) Verify(token string) (Claims, error) {
	if token == "" {
		return Claims{}, apperrors.Unauthenticated("missing token")
	}

	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.Unauthenticated("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid token", err)
	}
	if claims.Subject == "" {
		return Claims{}, apperrors.Unauthenticated("token has no subject")
	}

	return Claims{
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
		Email:       claims.Email,
	}, nil
}

// Issue signs a token for the given identity. Used by tests and local tooling.
func (p *JWTProvider) Issue(userID, displayName, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		DisplayName: displayName,
		Email:       email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
