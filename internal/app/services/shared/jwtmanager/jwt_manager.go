package jwtmanager

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"discharge-export-service/internal/pkg/constvars"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	algES256 = "ES256"
	algES384 = "ES384"
	algRS384 = "RS384"

	// ClientAssertionType is the SMART backend services assertion type.
	ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// JWTManager signs the client assertions a backend service presents to a
// SMART token endpoint. The algorithm follows the key: RS384 for RSA, ES256
// or ES384 for EC depending on the curve.
type JWTManager struct {
	log   *zap.Logger
	alg   string
	keyID string
	ttl   time.Duration
	key   crypto.Signer
}

type CreateClientAssertionInput struct {
	ClientID string
	TokenUrl string
}

type CreateClientAssertionOutput struct {
	Token     string
	ExpiresAt time.Time
}

func NewJWTManager(privateKeyPEM, keyID string, log *zap.Logger) (*JWTManager, error) {
	pemKey := strings.TrimSpace(privateKeyPEM)
	if pemKey == "" {
		return nil, fmt.Errorf("private key is empty")
	}

	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM private key")
	}

	jm := &JWTManager{
		log:   log,
		keyID: keyID,
		ttl:   5 * time.Minute,
	}

	if rsaKey, err := parseRSAPrivateKey(block); err == nil {
		jm.alg = algRS384
		jm.key = rsaKey
		return jm, nil
	}
	ecKey, err := parseECPrivateKey(block)
	if err != nil {
		return nil, fmt.Errorf("private key is neither RSA nor EC: %w", err)
	}
	jm.alg = algES384
	if ecKey.Curve.Params().BitSize == 256 {
		jm.alg = algES256
	}
	jm.key = ecKey
	return jm, nil
}

func (j *JWTManager) Algorithm() string {
	return j.alg
}

// CreateClientAssertion signs a single-use assertion with iss and sub set to
// the client id and aud set to the token endpoint.
func (j *JWTManager) CreateClientAssertion(ctx context.Context, in *CreateClientAssertionInput) (*CreateClientAssertionOutput, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	j.log.Info("JWTManager.CreateClientAssertion called", zap.String(constvars.LoggingRequestIDKey, requestID))

	if in == nil || strings.TrimSpace(in.ClientID) == "" || strings.TrimSpace(in.TokenUrl) == "" {
		return nil, fmt.Errorf("client id and token url are required")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(j.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    in.ClientID,
		Subject:   in.ClientID,
		Audience:  jwt.ClaimStrings{in.TokenUrl},
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}

	method := jwt.GetSigningMethod(j.alg)
	token := jwt.NewWithClaims(method, claims)
	if j.keyID != "" {
		token.Header["kid"] = j.keyID
	}

	signed, err := token.SignedString(j.key)
	if err != nil {
		j.log.Error("JWTManager.CreateClientAssertion error signing token",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return nil, err
	}
	return &CreateClientAssertionOutput{Token: signed, ExpiresAt: expiresAt}, nil
}

// PublicKey exposes the verification key, used when registering the client.
func (j *JWTManager) PublicKey() crypto.PublicKey {
	return j.key.Public()
}

func parseECPrivateKey(block *pem.Block) (*ecdsa.PrivateKey, error) {
	if block.Type == "EC PRIVATE KEY" {
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse EC private key: %w", err)
		}
		return key, nil
	}
	if block.Type == "PRIVATE KEY" { // PKCS#8 which may wrap EC
		keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS8 private key: %w", err)
		}
		if ec, ok := keyAny.(*ecdsa.PrivateKey); ok {
			return ec, nil
		}
		return nil, fmt.Errorf("PKCS8 key is not ECDSA")
	}
	return nil, fmt.Errorf("unsupported EC PEM type: %s", block.Type)
}

func parseRSAPrivateKey(block *pem.Block) (*rsa.PrivateKey, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS1 private key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY": // PKCS#8
		keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS8 private key: %w", err)
		}
		if rsaKey, ok := keyAny.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("PKCS8 key is not RSA")
	default:
		return nil, fmt.Errorf("unsupported RSA PEM type: %s", block.Type)
	}
}
