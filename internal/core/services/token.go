package services

import (
	"context"
	"fmt"
	"time"

	"pulse/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "pulse-realtime"

// TokenService issues and verifies HS256 JWTs whose subject is the principal id.
type TokenService struct {
	secretKey []byte
	issuer    string
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{
		secretKey: []byte(secret),
		issuer:    issuer,
	}
}

func (s *TokenService) GenerateToken(principal domain.PrincipalID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(principal),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// Authenticate implements contracts.Authenticator. Every failure wraps
// domain.ErrAuthentication.
func (s *TokenService) Authenticate(ctx context.Context, tokenStr string) (domain.PrincipalID, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}
	if tokenStr == "" {
		return "", fmt.Errorf("%w: missing token", domain.ErrAuthentication)
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid token: %v", domain.ErrAuthentication, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: subject not found in token", domain.ErrAuthentication)
	}
	return domain.PrincipalID(claims.Subject), nil
}
