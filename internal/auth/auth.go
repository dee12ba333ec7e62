// Package auth issues and validates the bearer tokens that identify console users.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/core/access"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents JWT token claims
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// User returns the user the token was issued to.
func (c *Claims) User() (uuid.UUID, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, internal.ErrInvalidToken
	}
	return id, nil
}

type JWTTokenGenerator struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	clock  access.Clock
}

func NewJWTTokenGenerator(secret string, ttl time.Duration) *JWTTokenGenerator {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &JWTTokenGenerator{
		Secret: []byte(secret),
		TTL:    ttl,
		Issuer: "care-access",
		clock:  access.SystemClock,
	}
}

func (j *JWTTokenGenerator) WithClock(clock access.Clock) *JWTTokenGenerator {
	j.clock = clock
	return j
}

// GenerateAccessToken signs an HS256 token for user.
func (j *JWTTokenGenerator) GenerateAccessToken(user uuid.UUID) (string, time.Time, error) {
	if user == uuid.Nil {
		return "", time.Time{}, internal.NewValidationError("user id is required", internal.ErrCodeInvalidIdentifier)
	}
	now := j.clock()
	expiresAt := now.Add(j.TTL)

	claims := &Claims{
		UserID: user.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.Issuer,
			Subject:   user.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	}, jwt.WithTimeFunc(j.clock), jwt.WithIssuer(j.Issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}
