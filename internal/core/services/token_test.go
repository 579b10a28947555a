package services

import (
	"context"
	"testing"
	"time"

	"pulse/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenService_Authenticate(t *testing.T) {
	req := require.New(t)
	svc := NewTokenService("top-secret")

	token, err := svc.GenerateToken("alice", time.Hour)
	req.NoError(err)

	principal, err := svc.Authenticate(context.Background(), token)
	req.NoError(err)
	req.Equal(domain.PrincipalID("alice"), principal)
}

func TestTokenService_Authenticate_Rejects(t *testing.T) {
	svc := NewTokenService("top-secret")
	other := NewTokenService("another-secret")

	expired, err := svc.GenerateToken("alice", -time.Minute)
	require.NoError(t, err)
	foreign, err := other.GenerateToken("alice", time.Hour)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("top-secret"))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "alice",
		Issuer:  issuer,
	}).SignedString([]byte("top-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong secret", foreign},
		{"missing subject", noSubject},
		{"missing expiry", noExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), tt.token)
			require.ErrorIs(t, err, domain.ErrAuthentication)
		})
	}
}

func TestTokenService_Authenticate_CanceledContext(t *testing.T) {
	svc := NewTokenService("top-secret")
	token, err := svc.GenerateToken("alice", time.Hour)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = svc.Authenticate(ctx, token)
	require.ErrorIs(t, err, domain.ErrAuthentication)
}
