package license

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/openpgp"        //nolint:staticcheck // clear-signed license format requires OpenPGP
	"golang.org/x/crypto/openpgp/armor"  //nolint:staticcheck
	"golang.org/x/crypto/openpgp/packet" //nolint:staticcheck

	licerrors "github.com/rcourtman/license-watcher/internal/errors"
	"github.com/rcourtman/license-watcher/internal/license/clearsign"
)

const signatureBlockType = "PGP SIGNATURE"

var (
	errNoTrustAnchor    = errors.New("no trust anchor configured")
	errNoIssuer         = errors.New("signature carries no issuer key ID")
	errNotSignature     = errors.New("signature block does not contain a signature packet")
	errHashNotAnnounced = errors.New("signature hash is not listed in the message Hash header")
)

// hashNames maps RFC 4880 armor header names to digests.
var hashNames = map[string]crypto.Hash{
	"MD5":       crypto.MD5,
	"SHA1":      crypto.SHA1,
	"RIPEMD160": crypto.RIPEMD160,
	"SHA224":    crypto.SHA224,
	"SHA256":    crypto.SHA256,
	"SHA384":    crypto.SHA384,
	"SHA512":    crypto.SHA512,
}

// impliedHashes is the announcement of a message without a Hash header.
var impliedHashes = []string{"MD5"}

// TrustAnchor is an immutable OpenPGP keyring whose keys are authoritative
// for license signatures.
type TrustAnchor struct {
	keyring openpgp.EntityList
}

// ParseTrustAnchor reads an armored public key block.
func ParseTrustAnchor(armored []byte) (*TrustAnchor, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armored))
	if err != nil {
		return nil, licerrors.Verification("parse_trust_anchor", err)
	}
	if len(keyring) == 0 {
		return nil, licerrors.Verification("parse_trust_anchor", errors.New("key block contains no keys"))
	}
	return &TrustAnchor{keyring: keyring}, nil
}

// KeyIDs returns the primary key IDs in the anchor as upper-case hex.
func (a *TrustAnchor) KeyIDs() []string {
	if a == nil {
		return nil
	}
	ids := make([]string, 0, len(a.keyring))
	for _, e := range a.keyring {
		ids = append(ids, e.PrimaryKey.KeyIdString())
	}
	return ids
}

// Verify checks an armored signature block against the canonical hash input
// of a clear-signed message. A nil error means the signature was made by a
// key in anchor over exactly hashInput.
func Verify(hashInput, signature []byte, anchor *TrustAnchor) error {
	return verify(hashInput, signature, nil, anchor)
}

// VerifyMessage is Verify for a decoded message. It additionally rejects a
// signature whose digest the message did not announce in its Hash header.
// A message without a Hash header announces MD5 only.
func VerifyMessage(msg *clearsign.Message, anchor *TrustAnchor) error {
	if msg == nil {
		return licerrors.Verification("verify_signature", errors.New("no message"))
	}
	announced := msg.Hashes
	if len(announced) == 0 {
		announced = impliedHashes
	}
	return verify(msg.HashInput, msg.Signature, announced, anchor)
}

func verify(hashInput, signature []byte, announced []string, anchor *TrustAnchor) error {
	const op = "verify_signature"

	if anchor == nil || len(anchor.keyring) == 0 {
		return licerrors.Verification(op, errNoTrustAnchor)
	}

	block, err := armor.Decode(bytes.NewReader(signature))
	if err != nil {
		return licerrors.Verification(op, fmt.Errorf("decode signature armor: %w", err))
	}
	if block.Type != signatureBlockType {
		return licerrors.Verification(op, fmt.Errorf("unexpected armor type %q", block.Type))
	}
	// Reading the whole body validates the armor checksum.
	body, err := io.ReadAll(block.Body)
	if err != nil {
		return licerrors.Verification(op, fmt.Errorf("read signature armor: %w", err))
	}

	p, err := packet.Read(bytes.NewReader(body))
	if err != nil {
		return licerrors.Verification(op, fmt.Errorf("read signature packet: %w", err))
	}

	var (
		keyID    uint64
		hashFunc crypto.Hash
	)
	switch sig := p.(type) {
	case *packet.Signature:
		if sig.IssuerKeyId == nil {
			return licerrors.Verification(op, errNoIssuer)
		}
		keyID, hashFunc = *sig.IssuerKeyId, sig.Hash
	case *packet.SignatureV3:
		keyID, hashFunc = sig.IssuerKeyId, sig.Hash
	default:
		return licerrors.Verification(op, errNotSignature)
	}

	if len(announced) > 0 && !announces(announced, hashFunc) {
		return licerrors.Verification(op, errHashNotAnnounced)
	}
	if !hashFunc.Available() {
		return licerrors.Verification(op, fmt.Errorf("hash function %v is not available", hashFunc))
	}

	keys := anchor.keyring.KeysById(keyID)
	if len(keys) == 0 {
		return licerrors.Verification(op, fmt.Errorf("signing key %016X is not in the trust anchor", keyID))
	}

	var lastErr error
	for _, key := range keys {
		h := hashFunc.New()
		h.Write(hashInput)

		switch sig := p.(type) {
		case *packet.Signature:
			lastErr = key.PublicKey.VerifySignature(h, sig)
		case *packet.SignatureV3:
			lastErr = key.PublicKey.VerifySignatureV3(h, sig)
		}
		if lastErr == nil {
			return nil
		}
	}
	return licerrors.Verification(op, lastErr)
}

func announces(names []string, h crypto.Hash) bool {
	for _, name := range names {
		if hashNames[strings.ToUpper(name)] == h {
			return true
		}
	}
	return false
}
