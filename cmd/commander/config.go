package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// commanderConfig holds everything the commander CLI needs to sign
// requests and reach the task server, grounded on
// original_source/common/src/config.rs's CommanderConfig (server_url,
// ed25519_key, optional tls).
type commanderConfig struct {
	ServerAddr string `json:"server_addr"`
	KeyID      string `json:"key_id"`
	PrivateKey string `json:"private_key"` // base64-encoded 64-byte ed25519.PrivateKey

	TLSCert      string `json:"tls_cert"`
	TLSKey       string `json:"tls_key"`
	TLSCA        string `json:"tls_ca"`
	TLSServerName string `json:"tls_server_name"`
}

func defaultCommanderConfig() *commanderConfig {
	return &commanderConfig{ServerAddr: "127.0.0.1:4242"}
}

func loadCommanderConfig(path string) (*commanderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg := defaultCommanderConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

func (c *commanderConfig) signingKey() (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(c.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode private_key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private_key must decode to %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}
