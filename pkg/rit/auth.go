package rit

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type AuthType string

const (
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeJWT    AuthType = "jwt"
)

// Authenticator decorates venue requests with credentials.
type Authenticator interface {
	AddAuthHeaders(req *http.Request) error
}

// APIKeyAuthenticator sends the RIT client key in the X-API-Key header.
type APIKeyAuthenticator struct {
	apiKey string
}

func NewAPIKeyAuthenticator(apiKey string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{apiKey: apiKey}
}

func (a *APIKeyAuthenticator) AddAuthHeaders(req *http.Request) error {
	req.Header.Set("X-API-Key", a.apiKey)
	return nil
}

// JWTAuthenticator signs a short-lived ES256 bearer token per request and
// sends it in the Authorization header instead of an API key.
type JWTAuthenticator struct {
	keyName    string
	issuer     string
	privateKey *ecdsa.PrivateKey
	ttl        time.Duration
}

func NewJWTAuthenticator(keyName, issuer, privateKeyPEM string) (*JWTAuthenticator, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block containing the private key")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC private key: %w", err)
		}
		var ok bool
		privateKey, ok = key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an EC private key")
		}
	}

	return &JWTAuthenticator{
		keyName:    keyName,
		issuer:     issuer,
		privateKey: privateKey,
		ttl:        2 * time.Minute,
	}, nil
}

func (j *JWTAuthenticator) AddAuthHeaders(req *http.Request) error {
	token, err := j.token(req.Method, req.URL.Host, req.URL.Path)
	if err != nil {
		return fmt.Errorf("failed to generate JWT: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (j *JWTAuthenticator) token(method, host, path string) (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   j.keyName,
		"iss":   j.issuer,
		"nbf":   now.Unix(),
		"exp":   now.Add(j.ttl).Unix(),
		"uri":   method + " " + host + path,
		"nonce": nonce,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = j.keyName

	signed, err := token.SignedString(j.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
