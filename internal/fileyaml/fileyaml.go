// Package fileyaml provides crash-safe YAML-file persistence for the small
// key-value stores backing the task server (known executors, trusted/
// unapproved executor keys): write a temp file in the same directory, then
// rename over the target, so a crash mid-write never corrupts the file.
// Grounded on the teacher's own write-to-temp-then-swap idiom used for
// on-disk artifacts (e.g. internal/firecracker/code_drive.go), generalized
// to a rename instead of a debugfs write.
package fileyaml

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load decodes path into dst. If path does not exist, dst is left
// untouched and Load returns nil (callers treat a missing file as "start
// empty"). Any other read or decode error is returned verbatim so the
// caller can refuse to start on corruption, per §6.
func Load(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Save encodes src as YAML and atomically replaces path's contents.
func Save(path string, src interface{}) error {
	data, err := yaml.Marshal(src)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// EnsureExists creates an empty file at path (encoding empty) if it does
// not already exist, mirroring the original keystore's "initialize or load"
// behavior on first start.
func EnsureExists(path string, empty interface{}) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return Save(path, empty)
}
