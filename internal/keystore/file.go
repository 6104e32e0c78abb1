package keystore

import (
	"crypto/ed25519"
	"encoding/base64"
	"sync"

	"github.com/funtonic/taskserver/internal/fileyaml"
)

// onDiskRecord is the YAML-serializable form: base64 public key bytes,
// matching §6's "trusted_executors_keys.yml ... key_id -> base64 public
// key".
type onDiskRecord = string

// File is a YAML-file-backed Store. Every mutation rewrites the whole file
// atomically (write-temp-then-rename via internal/fileyaml); readers see a
// consistent snapshot under the same lock.
type File struct {
	mu   sync.RWMutex
	path string
	keys map[string]ed25519.PublicKey
}

// OpenFile loads path if it exists, or creates an empty file there.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, keys: make(map[string]ed25519.PublicKey)}

	raw := make(map[string]onDiskRecord)
	if err := fileyaml.EnsureExists(path, raw); err != nil {
		return nil, err
	}
	if err := fileyaml.Load(path, &raw); err != nil {
		return nil, err
	}
	for keyID, encoded := range raw {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, &KeyEncodingError{KeyID: keyID, Err: err}
		}
		f.keys[keyID] = ed25519.PublicKey(decoded)
	}
	return f, nil
}

// KeyEncodingError reports a malformed base64 public key on disk.
type KeyEncodingError struct {
	KeyID string
	Err   error
}

func (e *KeyEncodingError) Error() string {
	return "wrong key encoding for " + e.KeyID + ": " + e.Err.Error()
}
func (e *KeyEncodingError) Unwrap() error { return e.Err }

func (f *File) save() error {
	raw := make(map[string]onDiskRecord, len(f.keys))
	for keyID, pub := range f.keys {
		raw[keyID] = base64.StdEncoding.EncodeToString(pub)
	}
	return fileyaml.Save(f.path, raw)
}

func (f *File) Insert(keyID string, keyBytes ed25519.PublicKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[keyID] = append(ed25519.PublicKey(nil), keyBytes...)
	return f.save()
}

func (f *File) Verify(keyID string, message, signature []byte) error {
	f.mu.RLock()
	pub, ok := f.keys[keyID]
	f.mu.RUnlock()
	if !ok {
		return &ErrKeyNotFound{KeyID: keyID}
	}
	if !ed25519.Verify(pub, message, signature) {
		return &ErrWrongSignature{KeyID: keyID}
	}
	return nil
}

func (f *File) ListAll() map[string]ed25519.PublicKey {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]ed25519.PublicKey, len(f.keys))
	for k, v := range f.keys {
		out[k] = v
	}
	return out
}

func (f *File) Remove(keyID string) (ed25519.PublicKey, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pub, ok := f.keys[keyID]
	if !ok {
		return nil, false
	}
	delete(f.keys, keyID)
	if err := f.save(); err != nil {
		// Re-insert to keep the in-memory view consistent with disk on a
		// failed mutation; the failure is reported as (nil, false), the same
		// result as for an absent key.
		f.keys[keyID] = pub
		return nil, false
	}
	return pub, true
}

func (f *File) Has(keyID string, keyBytes ed25519.PublicKey) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	pub, ok := f.keys[keyID]
	if !ok {
		return false
	}
	return pub.Equal(keyBytes)
}

func (f *File) Lookup(keyID string) (ed25519.PublicKey, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	pub, ok := f.keys[keyID]
	return pub, ok
}
