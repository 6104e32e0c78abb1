// Package keystore implements the key_id -> Ed25519 public key maps backing
// commander/admin/executor identity (§4.4), in two backends behind one
// interface: a mutex-guarded in-memory map and a YAML-file-backed map with
// atomic rewrite-on-mutation. Grounded on
// original_source/common/src/crypto/keystore.rs's KeyStoreBackend trait,
// generalized with the list_all/remove/has operations spec.md adds.
package keystore

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sync"
)

// Store is the shared interface for both backends.
type Store interface {
	// Insert registers (or overwrites) a key_id -> public key mapping.
	Insert(keyID string, keyBytes ed25519.PublicKey) error
	// Verify checks an Ed25519 signature over message using the key
	// registered under keyID.
	Verify(keyID string, message, signature []byte) error
	// ListAll returns a snapshot of every registered key.
	ListAll() map[string]ed25519.PublicKey
	// Remove deletes key_id, returning the key bytes that were removed.
	Remove(keyID string) (ed25519.PublicKey, bool)
	// Has reports whether key_id is registered with exactly keyBytes.
	Has(keyID string, keyBytes ed25519.PublicKey) bool
	// Lookup implements signedpayload.KeyLookup.
	Lookup(keyID string) (ed25519.PublicKey, bool)
}

// ErrKeyNotFound is returned by Verify when key_id is not registered.
type ErrKeyNotFound struct{ KeyID string }

func (e *ErrKeyNotFound) Error() string { return fmt.Sprintf("key %s does not exist", e.KeyID) }

// ErrWrongSignature is returned by Verify when the signature does not
// validate against the registered key.
type ErrWrongSignature struct{ KeyID string }

func (e *ErrWrongSignature) Error() string {
	return fmt.Sprintf("provided signature cannot be verified with key %s", e.KeyID)
}

// Memory is an in-memory Store guarded by a single RWMutex, readers
// concurrent — grounded on the teacher's internal/cluster/registry.go
// mutex discipline.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewMemory returns an empty in-memory key store.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]ed25519.PublicKey)}
}

// LoadMemoryFromConfig builds an in-memory Store from a key_id ->
// base64-public-key map, the shape authorized_keys/admin_authorized_keys
// take in configuration (§3: "in-memory, loaded from config").
func LoadMemoryFromConfig(keys map[string]string) (*Memory, error) {
	m := NewMemory()
	for keyID, encoded := range keys {
		pub, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, &KeyEncodingError{KeyID: keyID, Err: err}
		}
		if err := m.Insert(keyID, ed25519.PublicKey(pub)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Memory) Insert(keyID string, keyBytes ed25519.PublicKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[keyID] = append(ed25519.PublicKey(nil), keyBytes...)
	return nil
}

func (m *Memory) Verify(keyID string, message, signature []byte) error {
	m.mu.RLock()
	pub, ok := m.keys[keyID]
	m.mu.RUnlock()
	if !ok {
		return &ErrKeyNotFound{KeyID: keyID}
	}
	if !ed25519.Verify(pub, message, signature) {
		return &ErrWrongSignature{KeyID: keyID}
	}
	return nil
}

func (m *Memory) ListAll() map[string]ed25519.PublicKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ed25519.PublicKey, len(m.keys))
	for k, v := range m.keys {
		out[k] = v
	}
	return out
}

func (m *Memory) Remove(keyID string) (ed25519.PublicKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pub, ok := m.keys[keyID]
	if ok {
		delete(m.keys, keyID)
	}
	return pub, ok
}

func (m *Memory) Has(keyID string, keyBytes ed25519.PublicKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pub, ok := m.keys[keyID]
	if !ok {
		return false
	}
	return pub.Equal(keyBytes)
}

func (m *Memory) Lookup(keyID string) (ed25519.PublicKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pub, ok := m.keys[keyID]
	return pub, ok
}
