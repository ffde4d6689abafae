// Package licensetest provides throwaway OpenPGP keys and clear-signed
// license documents for tests.
package licensetest

import (
	"bytes"
	"crypto"
	"encoding/base64"
	"encoding/json"
	"testing"

	"golang.org/x/crypto/openpgp"           //nolint:staticcheck // clear-signed license format requires OpenPGP
	"golang.org/x/crypto/openpgp/armor"     //nolint:staticcheck
	"golang.org/x/crypto/openpgp/clearsign" //nolint:staticcheck
	"golang.org/x/crypto/openpgp/packet"    //nolint:staticcheck
)

// Signer holds a freshly generated signing key.
type Signer struct {
	entity *openpgp.Entity
	config *packet.Config
}

// NewSigner generates a small RSA key suitable for tests only.
func NewSigner(tb testing.TB) *Signer {
	tb.Helper()

	cfg := &packet.Config{RSABits: 1024, DefaultHash: crypto.SHA256}
	entity, err := openpgp.NewEntity("License Test", "test only", "license-test@example.com", cfg)
	if err != nil {
		tb.Fatalf("generate signing key: %v", err)
	}
	return &Signer{entity: entity, config: cfg}
}

// PublicKeyArmored returns the armored public key block for the signer.
func (s *Signer) PublicKeyArmored(tb testing.TB) []byte {
	tb.Helper()

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		tb.Fatalf("armor public key: %v", err)
	}
	if err := s.entity.Serialize(w); err != nil {
		tb.Fatalf("serialize public key: %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("close armor: %v", err)
	}
	return buf.Bytes()
}

// ClearSign returns payload wrapped in an armored clear-signed message.
func (s *Signer) ClearSign(tb testing.TB, payload []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, s.entity.PrivateKey, s.config)
	if err != nil {
		tb.Fatalf("start clear-sign: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		tb.Fatalf("write payload: %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("finish clear-sign: %v", err)
	}
	return buf.Bytes()
}

// ClearSignJSON marshals v with indentation and clear-signs the result.
func (s *Signer) ClearSignJSON(tb testing.TB, v any) []byte {
	tb.Helper()

	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		tb.Fatalf("marshal payload: %v", err)
	}
	return s.ClearSign(tb, append(payload, '\n'))
}

// SecretValue encodes a signed document the way it is stored in a secret.
func SecretValue(signed []byte) string {
	return base64.StdEncoding.EncodeToString(signed)
}
