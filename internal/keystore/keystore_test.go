package keystore_test

import (
	"crypto/ed25519"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/funtonic/taskserver/internal/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}

// storeConformanceSuite runs the same assertions against any Store
// implementation, exercising both Memory and File through one code path.
func storeConformanceSuite(t *testing.T, store keystore.Store) {
	pub, priv := newKeyPair(t)

	require.NoError(t, store.Insert("op1", pub))
	assert.True(t, store.Has("op1", pub))

	sig := ed25519.Sign(priv, []byte("payload"))
	assert.NoError(t, store.Verify("op1", []byte("payload"), sig))

	var notFound *keystore.ErrKeyNotFound
	assert.ErrorAs(t, store.Verify("nobody", []byte("payload"), sig), &notFound)

	var wrongSig *keystore.ErrWrongSignature
	assert.ErrorAs(t, store.Verify("op1", []byte("tampered"), sig), &wrongSig)

	got, ok := store.Lookup("op1")
	require.True(t, ok)
	assert.True(t, got.Equal(pub))

	all := store.ListAll()
	assert.Len(t, all, 1)

	removed, ok := store.Remove("op1")
	require.True(t, ok)
	assert.True(t, removed.Equal(pub))
	assert.False(t, store.Has("op1", pub))
}

func TestMemoryStoreConformance(t *testing.T) {
	storeConformanceSuite(t, keystore.NewMemory())
}

func TestFileStoreConformance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yml")
	store, err := keystore.OpenFile(path)
	require.NoError(t, err)
	storeConformanceSuite(t, store)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yml")
	pub, _ := newKeyPair(t)

	store, err := keystore.OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, store.Insert("op1", pub))

	reopened, err := keystore.OpenFile(path)
	require.NoError(t, err)
	assert.True(t, reopened.Has("op1", pub))
}

func TestLoadMemoryFromConfig(t *testing.T) {
	pub, _ := newKeyPair(t)
	cfg := map[string]string{
		"op1": base64.StdEncoding.EncodeToString(pub),
	}

	store, err := keystore.LoadMemoryFromConfig(cfg)
	require.NoError(t, err)
	assert.True(t, store.Has("op1", pub))
}

func TestLoadMemoryFromConfigRejectsBadEncoding(t *testing.T) {
	_, err := keystore.LoadMemoryFromConfig(map[string]string{"op1": "not-base64!!"})
	require.Error(t, err)
	var encErr *keystore.KeyEncodingError
	assert.ErrorAs(t, err, &encErr)
}
