package wise

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/phygrid/wiserecon/internal/domain"
)

// Signer signs SCA one-time tokens with the profile's RSA private key.
type Signer struct {
	key *rsa.PrivateKey
}

// NewSignerFromFile loads a PEM-encoded RSA private key.
func NewSignerFromFile(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read private key: %v", domain.ErrAuthRequired, err)
	}
	return NewSigner(data)
}

// NewSigner parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func NewSigner(pemData []byte) (*Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in private key", domain.ErrAuthRequired)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &Signer{key: key}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", domain.ErrAuthRequired, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not RSA", domain.ErrAuthRequired)
	}
	return &Signer{key: key}, nil
}

// SignOTT signs the one-time token bytes with RSA-SHA256 (PKCS#1 v1.5) and
// returns the base64 signature for the X-Signature header.
func (s *Signer) SignOTT(ott string) (string, error) {
	digest := sha256.Sum256([]byte(ott))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// PublicKey exposes the matching public key for verification in tests.
func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}
