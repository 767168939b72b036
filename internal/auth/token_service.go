package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"taskapi/internal/clock"
	apperrors "taskapi/internal/errors"
)

// DefaultTokenLifetime is used when no lifetime is configured.
const DefaultTokenLifetime = time.Hour

// Claims represents JWT claims.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenService issues and resolves signed, time-bounded identity tokens.
// Tokens are stateless: expiry is the only way a token stops being valid.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	clock    clock.Clock
	parser   *jwt.Parser
}

// NewTokenService creates a token service signing with secret.
func NewTokenService(secret string, lifetime time.Duration, clk clock.Clock) *TokenService {
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &TokenService{
		secret:   []byte(secret),
		lifetime: lifetime,
		clock:    clk,
		// Time-based claims are checked against s.clock in Resolve.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Lifetime returns how long issued tokens stay valid.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}

// Issue generates a token whose subject is userID.
func (s *TokenService) Issue(userID uuid.UUID) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.lifetime)
	claims := &Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Resolve validates tokenString and returns its subject. A token that is
// well formed and correctly signed but past its expiry yields
// ErrExpiredToken; every other failure yields ErrInvalidToken.
func (s *TokenService) Resolve(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, apperrors.ErrInvalidToken
	}

	token, err := s.parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return uuid.Nil, apperrors.ErrInvalidToken
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil || claims.UserID != claims.Subject {
		return uuid.Nil, apperrors.ErrInvalidToken
	}

	now := s.clock.Now()
	if claims.ExpiresAt == nil {
		return uuid.Nil, apperrors.ErrInvalidToken
	}
	if !claims.VerifyNotBefore(now, false) {
		return uuid.Nil, apperrors.ErrInvalidToken
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return uuid.Nil, apperrors.ErrExpiredToken
	}

	return subject, nil
}
