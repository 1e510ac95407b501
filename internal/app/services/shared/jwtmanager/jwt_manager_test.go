package jwtmanager

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rsaPEM(t *testing.T) string {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func ecPEM(t *testing.T) string {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
}

func TestJWTManager_CreateClientAssertion(t *testing.T) {
	cases := []struct {
		name string
		pem  string
		alg  string
	}{
		{name: "rsa key signs RS384", pem: rsaPEM(t), alg: algRS384},
		{name: "ec key signs ES384", pem: ecPEM(t), alg: algES384},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			manager, err := NewJWTManager(tc.pem, "kid-1", zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, tc.alg, manager.Algorithm())

			out, err := manager.CreateClientAssertion(context.Background(), &CreateClientAssertionInput{
				ClientID: "client-1",
				TokenUrl: "https://ehr.example/token",
			})
			require.NoError(t, err)

			claims := &jwt.RegisteredClaims{}
			parsed, err := jwt.ParseWithClaims(out.Token, claims, func(token *jwt.Token) (interface{}, error) {
				return manager.PublicKey(), nil
			})
			require.NoError(t, err)
			assert.True(t, parsed.Valid)
			assert.Equal(t, tc.alg, parsed.Method.Alg())
			assert.Equal(t, "kid-1", parsed.Header["kid"])
			assert.Equal(t, "client-1", claims.Issuer)
			assert.Equal(t, "client-1", claims.Subject)
			assert.True(t, claims.VerifyAudience("https://ehr.example/token", true))
			assert.NotEmpty(t, claims.ID)
		})
	}

	t.Run("rejects missing client id", func(t *testing.T) {
		manager, err := NewJWTManager(rsaPEM(t), "", zap.NewNop())
		require.NoError(t, err)
		_, err = manager.CreateClientAssertion(context.Background(), &CreateClientAssertionInput{TokenUrl: "https://ehr.example/token"})
		assert.Error(t, err)
	})

	t.Run("rejects garbage pem", func(t *testing.T) {
		_, err := NewJWTManager("not a key", "", zap.NewNop())
		assert.Error(t, err)
	})
}
