package wise

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/phygrid/wiserecon/internal/domain"
)

func testKeyPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func TestSigner_SignOTT(t *testing.T) {
	signer, err := NewSigner(testKeyPEM(t))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	ott := "one-time-token-abc123"
	sigB64, err := signer.SignOTT(ott)
	if err != nil {
		t.Fatalf("SignOTT: %v", err)
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}

	digest := sha256.Sum256([]byte(ott))
	if err := rsa.VerifyPKCS1v15(signer.PublicKey(), crypto.SHA256, digest[:], sig); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestNewSigner_BadInput(t *testing.T) {
	if _, err := NewSigner([]byte("not pem")); !errors.Is(err, domain.ErrAuthRequired) {
		t.Errorf("error = %v, want ErrAuthRequired", err)
	}
}

func TestNewSignerFromFile_Missing(t *testing.T) {
	if _, err := NewSignerFromFile("/nonexistent/key.pem"); !errors.Is(err, domain.ErrAuthRequired) {
		t.Errorf("error = %v, want ErrAuthRequired", err)
	}
}
