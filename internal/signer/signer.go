// Package signer produces the login signature sent in the STOMP CONNECT frame:
// an RSA PKCS#1 v1.5 SHA-1 signature over the identity, base64 encoded.
package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrInvalidKey = errors.New("invalid private key")

// Sign signs identity with privateKey. The key may be a PEM block or the bare
// base64 body of one, as handed out by the broker's developer console.
func Sign(privateKey, identity string) (string, error) {
	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	return SignWithKey(key, identity)
}

// SignWithKey signs identity with an already parsed key.
func SignWithKey(key *rsa.PrivateKey, identity string) (string, error) {
	digest := sha1.Sum([]byte(identity))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign identity: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// LoadPrivateKey reads a key file and returns its contents for Sign.
func LoadPrivateKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	return string(data), nil
}

// ParsePrivateKey accepts PKCS#8 or PKCS#1 keys, PEM wrapped or bare base64.
func ParsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	var der []byte
	if block, _ := pem.Decode([]byte(raw)); block != nil {
		der = block.Bytes
	} else {
		decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(raw), ""))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		der = decoded
	}

	// Try PKCS#8 first (newer format)
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidKey)
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return rsaKey, nil
}
