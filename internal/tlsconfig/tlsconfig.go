// Package tlsconfig builds grpc.ServerOption/grpc.DialOption transport
// credentials from PEM file paths, grounded on
// original_source/common/src/config.rs's TlsConfig (ca_cert/key/cert,
// optional server_domain) translated from tonic's ClientTlsConfig/
// ServerTlsConfig to Go's crypto/tls + google.golang.org/grpc/credentials.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"
)

// Config holds PEM file paths for mutual TLS. Empty Cert/Key/CA means TLS
// is disabled at the call site — callers check this before building
// credentials, mirroring the original's Option<TlsConfig>.
type Config struct {
	CACert       string
	Cert         string
	Key          string
	ServerDomain string // overrides the dialed host's name for verification
}

// Enabled reports whether this Config describes a usable TLS setup.
func (c Config) Enabled() bool {
	return c.CACert != "" && c.Cert != "" && c.Key != ""
}

func (c Config) loadCAPool() (*x509.CertPool, error) {
	pem, err := os.ReadFile(c.CACert)
	if err != nil {
		return nil, fmt.Errorf("read ca_cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("parse ca_cert %s: no certificates found", c.CACert)
	}
	return pool, nil
}

// ServerCredentials builds mutual-TLS server transport credentials: the
// server presents Cert/Key and requires client certificates signed by CA.
func (c Config) ServerCredentials() (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(c.Cert, c.Key)
	if err != nil {
		return nil, fmt.Errorf("load server identity: %w", err)
	}
	pool, err := c.loadCAPool()
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}), nil
}

// ClientCredentials builds mutual-TLS client transport credentials: the
// client presents Cert/Key and verifies the server against CA.
func (c Config) ClientCredentials() (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(c.Cert, c.Key)
	if err != nil {
		return nil, fmt.Errorf("load client identity: %w", err)
	}
	pool, err := c.loadCAPool()
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   c.ServerDomain,
	}), nil
}
