// Package token issues and validates the bearer tokens callers present.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"certgate/internal/identity"
	dErrors "certgate/pkg/domain-errors"
)

// Claims are the JWT claims carried in caller tokens. Groups and
// attributes feed policy validators like server_group.
type Claims struct {
	Groups     []string          `json:"groups,omitempty"`
	Attributes map[string]string `json:"attrs,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and validates caller tokens with a shared HMAC key.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewService(signingKey, issuer, audience string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// Generate mints a token for the given caller.
func (s *Service) Generate(caller identity.Caller, expiresIn time.Duration) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Groups:     caller.Groups,
		Attributes: caller.Attributes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.Subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return newToken.SignedString(s.signingKey)
}

// Validate parses a token and returns the caller it identifies.
func (s *Service) Validate(tokenString string) (identity.Caller, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return identity.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return identity.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return identity.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return identity.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return identity.Caller{
		Subject:    claims.Subject,
		Groups:     claims.Groups,
		Attributes: claims.Attributes,
	}, nil
}
