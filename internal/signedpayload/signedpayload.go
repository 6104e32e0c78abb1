// Package signedpayload implements the Ed25519-signed envelope used to
// authenticate every request between commanders, executors, and the task
// server: payload bytes bound to a nonce and an expiry, grounded on
// original_source/common/src/crypto/signed_payload.rs.
package signedpayload

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// DefaultValidity is applied when the caller does not specify one (§4.3).
const DefaultValidity = 60 * time.Second

// ErrSystemClockBeforeEpoch is returned when the local clock reports a time
// before the Unix epoch, making an expiry timestamp impossible to compute.
var ErrSystemClockBeforeEpoch = errors.New("system clock is before unix epoch")

// Envelope is the wire-level signed payload: (key_id, payload_bytes, nonce,
// valid_until_secs, signature).
type Envelope struct {
	KeyID          string
	Payload        []byte
	Nonce          uint64
	ValidUntilSecs uint64
	Signature      []byte
}

// signingInput reconstructs payload_bytes ∥ nonce_le ∥ valid_until_secs_le,
// the exact byte sequence that is signed and verified.
func signingInput(payload []byte, nonce, validUntilSecs uint64) []byte {
	buf := make([]byte, len(payload)+8+8)
	n := copy(buf, payload)
	binary.LittleEndian.PutUint64(buf[n:], nonce)
	binary.LittleEndian.PutUint64(buf[n+8:], validUntilSecs)
	return buf
}

// Sign signs message with key, valid for the given duration from now.
func Sign(message []byte, key ed25519.PrivateKey, keyID string, validity time.Duration) (*Envelope, error) {
	now := time.Now()
	if now.Before(time.Unix(0, 0)) {
		return nil, ErrSystemClockBeforeEpoch
	}
	validUntil := now.Add(validity)
	validUntilSecs := uint64(validUntil.Unix())

	var nonceBytes [8]byte
	if _, err := rand.Read(nonceBytes[:]); err != nil {
		return nil, fmt.Errorf("sample nonce: %w", err)
	}
	nonce := binary.LittleEndian.Uint64(nonceBytes[:])

	signature := ed25519.Sign(key, signingInput(message, nonce, validUntilSecs))

	return &Envelope{
		KeyID:          keyID,
		Payload:        message,
		Nonce:          nonce,
		ValidUntilSecs: validUntilSecs,
		Signature:      signature,
	}, nil
}

// SignDefault signs with DefaultValidity.
func SignDefault(message []byte, key ed25519.PrivateKey, keyID string) (*Envelope, error) {
	return Sign(message, key, keyID, DefaultValidity)
}

// KeyLookup resolves a key_id to its Ed25519 public key bytes. Implemented
// by internal/keystore.Store.
type KeyLookup interface {
	Lookup(keyID string) (ed25519.PublicKey, bool)
}

// Verification errors, classified per §7.
var (
	ErrExpiredSignature = errors.New("expired signature")
	ErrKeyNotFound      = errors.New("key not found")
	ErrWrongSignature   = errors.New("wrong signature")
)

// Verify checks expiry, resolves the signing key, and verifies the
// signature. It does not decode the payload — callers do that themselves
// once verification succeeds, per §4.3 step 4.
func Verify(env *Envelope, keys KeyLookup) error {
	nowSecs := uint64(time.Now().Unix())
	if nowSecs > env.ValidUntilSecs {
		return ErrExpiredSignature
	}

	pub, ok := keys.Lookup(env.KeyID)
	if !ok {
		return ErrKeyNotFound
	}

	input := signingInput(env.Payload, env.Nonce, env.ValidUntilSecs)
	if !ed25519.Verify(pub, input, env.Signature) {
		return ErrWrongSignature
	}
	return nil
}
