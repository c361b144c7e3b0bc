package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"device-relay/internal/apperr"
)

// DefaultTokenTTL is the lifetime of an operator token.
const DefaultTokenTTL = 24 * time.Hour

// Claims represents JWT claims used by this service.
type Claims struct {
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an operator token for a verified email.
func IssueToken(secret []byte, email string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	expiresAt := now.Add(ttl)
	claims := Claims{
		Email:    email,
		Verified: true,
		Role:     string(RoleUser),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, apperr.Internal(err, "Failed to sign token")
	}
	return signed, expiresAt, nil
}

// ParseJWT validates an operator token at the given instant and returns claims.
func ParseJWT(tokenString string, secret []byte, now time.Time) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, apperr.Wrap(err, apperr.KindUnauthenticated, ErrInvalidToken.Code, ErrInvalidToken.Message)
	}
	if !token.Valid || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	if _, ok := NormalizeRole(claims.Role); !ok {
		return nil, ErrInvalidToken
	}
	if !claims.Verified {
		return nil, ErrNotVerified
	}
	return claims, nil
}

// Identity converts verified claims into a request identity.
func (c *Claims) Identity() Identity {
	role, _ := NormalizeRole(c.Role)
	identity := Identity{
		Email:      c.Email,
		Verified:   c.Verified,
		Role:       role,
		AuthMethod: MethodToken,
	}
	if c.IssuedAt != nil {
		identity.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		identity.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return identity
}
