package signedpayload_test

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/funtonic/taskserver/internal/signedpayload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryKeys is a minimal KeyLookup for tests.
type memoryKeys map[string]ed25519.PublicKey

func (m memoryKeys) Lookup(keyID string) (ed25519.PublicKey, bool) {
	pub, ok := m[keyID]
	return pub, ok
}

func generateKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv := generateKey(t)
	keys := memoryKeys{"op1": pub}

	env, err := signedpayload.Sign([]byte("hello"), priv, "op1", signedpayload.DefaultValidity)
	require.NoError(t, err)

	require.NoError(t, signedpayload.Verify(env, keys))
}

func TestVerifyRejectsExpiredSignature(t *testing.T) {
	pub, priv := generateKey(t)
	keys := memoryKeys{"op1": pub}

	env, err := signedpayload.Sign([]byte("hello"), priv, "op1", -time.Second)
	require.NoError(t, err)

	assert.ErrorIs(t, signedpayload.Verify(env, keys), signedpayload.ErrExpiredSignature)
}

func TestVerifyRejectsUnknownKey(t *testing.T) {
	_, priv := generateKey(t)
	env, err := signedpayload.Sign([]byte("hello"), priv, "absent", signedpayload.DefaultValidity)
	require.NoError(t, err)

	assert.ErrorIs(t, signedpayload.Verify(env, memoryKeys{}), signedpayload.ErrKeyNotFound)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	pub, priv := generateKey(t)
	keys := memoryKeys{"op1": pub}

	env, err := signedpayload.Sign([]byte("hello"), priv, "op1", signedpayload.DefaultValidity)
	require.NoError(t, err)

	env.Payload = []byte("tampered")
	assert.ErrorIs(t, signedpayload.Verify(env, keys), signedpayload.ErrWrongSignature)
}

func TestVerifyRejectsWrongSigningKey(t *testing.T) {
	signerPub, signerPriv := generateKey(t)
	_ = signerPub
	otherPub, _ := generateKey(t)

	keys := memoryKeys{"op1": otherPub}
	env, err := signedpayload.Sign([]byte("hello"), signerPriv, "op1", signedpayload.DefaultValidity)
	require.NoError(t, err)

	assert.ErrorIs(t, signedpayload.Verify(env, keys), signedpayload.ErrWrongSignature)
}
