// Package config loads the task server's configuration, layered the way
// the teacher does: compiled-in defaults, overridden by an optional JSON
// file, overridden by FUNTONIC_* environment variables.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// GRPCConfig holds the task server's gRPC listener settings (§6).
type GRPCConfig struct {
	Addr    string `json:"addr"`     // :4242
	TLSCert string `json:"tls_cert"` // empty disables TLS
	TLSKey  string `json:"tls_key"`
	TLSCA   string `json:"tls_ca"` // client CA, for mutual TLS
}

// KeysConfig holds the two in-memory commander key stores (§3: authorized_keys
// and admin_authorized_keys are "in-memory, loaded from config", unlike the
// executor key stores which are file-backed). Each maps key_id to a
// base64-encoded Ed25519 public key, mirroring
// original_source/common/src/config.rs's ServerConfig.authorized_keys /
// admin_authorized_keys BTreeMap<String, String>.
type KeysConfig struct {
	AuthorizedKeys      map[string]string `json:"authorized_keys"`
	AdminAuthorizedKeys map[string]string `json:"admin_authorized_keys"`
}

// StorageConfig holds the on-disk locations of the three YAML stores (§6).
type StorageConfig struct {
	DataDir                string `json:"data_dir"` // parent of the files below
	KnownExecutorsFile     string `json:"known_executors_file"`
	TrustedExecutorsFile   string `json:"trusted_executors_file"`
	UnapprovedExecutorsFile string `json:"unapproved_executors_file"`
}

// SigningConfig holds default signed-payload validity (§4.3).
type SigningConfig struct {
	DefaultValidity time.Duration `json:"default_validity"` // 60s
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint"`     // localhost:4318
	ServiceName string  `json:"service_name"` // funtonic-taskserver
	SampleRate  float64 `json:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"` // funtonic
	Addr      string `json:"addr"`      // :9091, serves /metrics
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// ObservabilityConfig groups the observability ambient stack.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

// Config is the task server's full configuration tree.
type Config struct {
	GRPC          GRPCConfig          `json:"grpc"`
	Keys          KeysConfig          `json:"keys"`
	Storage       StorageConfig       `json:"storage"`
	Signing       SigningConfig       `json:"signing"`
	Observability ObservabilityConfig `json:"observability"`
}

// DefaultConfig returns a Config with sensible defaults, mirroring the
// teacher's DefaultConfig shape.
func DefaultConfig() *Config {
	return &Config{
		GRPC: GRPCConfig{
			Addr: ":4242",
		},
		Keys: KeysConfig{
			AuthorizedKeys:      map[string]string{},
			AdminAuthorizedKeys: map[string]string{},
		},
		Storage: StorageConfig{
			DataDir:                 "/var/lib/funtonic",
			KnownExecutorsFile:      "known_executors.yml",
			TrustedExecutorsFile:    "trusted_executors_keys.yml",
			UnapprovedExecutorsFile: "unapproved_executors_keys.yml",
		},
		Signing: SigningConfig{
			DefaultValidity: 60 * time.Second,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "localhost:4318",
				ServiceName: "funtonic-taskserver",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "funtonic",
				Addr:      ":9091",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// LoadFromFile decodes a JSON config file over DefaultConfig's values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies FUNTONIC_* environment variable overrides.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FUNTONIC_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("FUNTONIC_TLS_CERT"); v != "" {
		cfg.GRPC.TLSCert = v
	}
	if v := os.Getenv("FUNTONIC_TLS_KEY"); v != "" {
		cfg.GRPC.TLSKey = v
	}
	if v := os.Getenv("FUNTONIC_TLS_CA"); v != "" {
		cfg.GRPC.TLSCA = v
	}
	if v := os.Getenv("FUNTONIC_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("FUNTONIC_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("FUNTONIC_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("FUNTONIC_METRICS_ADDR"); v != "" {
		cfg.Observability.Metrics.Addr = v
	}
	if v := os.Getenv("FUNTONIC_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("FUNTONIC_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("FUNTONIC_SIGNING_VALIDITY_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Signing.DefaultValidity = time.Duration(secs) * time.Second
		}
	}
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return v
}
