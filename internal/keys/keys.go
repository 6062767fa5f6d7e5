// Package keys manages the actor's RSA keypair: load-or-generate on
// first run, and PEM encode/decode helpers shared by the signature
// engine.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

const keyBits = 2048
const webhookSecretBytes = 32

// LoadOrGenerate reads privatePath if present, or generates a fresh
// RSA-2048 keypair and writes both files (mode 0600 for the private
// key). publicPath is only written, never read. Keys are regenerated
// only by operator action, never implicitly once privatePath exists.
func LoadOrGenerate(privatePath, publicPath string) (*rsa.PrivateKey, error) {
	if _, err := os.Stat(privatePath); err == nil {
		return LoadPrivateKey(privatePath)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keys: stat %s: %w", privatePath, err)
	}

	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	if err := writePrivateKey(privatePath, priv); err != nil {
		return nil, err
	}
	if err := writePublicKey(publicPath, &priv.PublicKey); err != nil {
		return nil, err
	}
	return priv, nil
}

// Generate unconditionally creates a fresh RSA-2048 keypair and
// overwrites privatePath/publicPath, for explicit operator-triggered
// rotation. Keys are regenerated only by operator action, never
// implicitly.
func Generate(privatePath, publicPath string) (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	if err := writePrivateKey(privatePath, priv); err != nil {
		return nil, err
	}
	if err := writePublicKey(publicPath, &priv.PublicKey); err != nil {
		return nil, err
	}
	return priv, nil
}

// LoadPrivateKey reads and PKCS#1-decodes an RSA private key PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keys: read %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("keys: %s is not valid PEM", path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse %s: %w", path, err)
	}
	return key, nil
}

func writePrivateKey(path string, priv *rsa.PrivateKey) error {
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

func writePublicKey(path string, pub *rsa.PublicKey) error {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("keys: marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o644)
}

// LoadOrGenerateWebhookSecret reads a 32-byte hex secret from path, or
// generates and writes one (mode 0600) if the file is absent. Used for
// the inbound VCS webhook's HMAC-SHA-256 key.
func LoadOrGenerateWebhookSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		secret, decodeErr := hex.DecodeString(strings.TrimSpace(string(data)))
		if decodeErr != nil {
			return nil, fmt.Errorf("keys: %s is not valid hex: %w", path, decodeErr)
		}
		return secret, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keys: stat %s: %w", path, err)
	}

	secret := make([]byte, webhookSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("keys: generating webhook secret: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(secret)), 0o600); err != nil {
		return nil, fmt.Errorf("keys: writing %s: %w", path, err)
	}
	return secret, nil
}

// ParsePublicKeyPEM decodes a PEM-encoded PKIX or PKCS#1 RSA public key.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("keys: not valid PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("keys: not an RSA public key")
	}
	return rsaPub, nil
}

// PublicKeyPEM renders pub as a PEM-encoded PKIX public key string.
func PublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("keys: marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}
