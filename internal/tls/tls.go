// Package tls builds the server-side TLS configuration for the control API.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	certName = "tls.crt"
	keyName  = "tls.key"
	caName   = "tls_ca.crt"

	defaultValidity = 5 * 365 * 24 * time.Hour
)

var ErrNoCertificate = errors.New("tls: enabled but no certificate configured")

// Options selects where the key pair comes from. CertFile and KeyFile win over
// Dir. With AutoGenerate a missing pair in Dir is created self-signed for Hosts.
type Options struct {
	CertFile     string
	KeyFile      string
	Dir          string
	AutoGenerate bool
	Hosts        []string
}

// Paths returns the certificate and key file Setup will load.
func (o Options) Paths() (cert, key string) {
	if o.CertFile != "" && o.KeyFile != "" {
		return o.CertFile, o.KeyFile
	}
	if o.Dir == "" {
		return "", ""
	}
	return filepath.Join(o.Dir, certName), filepath.Join(o.Dir, keyName)
}

// Setup returns a tls.Config that rereads the key pair on every handshake, so
// a renewed certificate is picked up without a restart.
func Setup(o Options) (*tls.Config, error) {
	certPath, keyPath := o.Paths()
	if certPath == "" {
		return nil, ErrNoCertificate
	}
	if o.CertFile == "" && o.AutoGenerate && !exists(certPath, keyPath) {
		hosts := o.Hosts
		if len(hosts) == 0 {
			hosts = []string{"localhost", "127.0.0.1"}
		}
		err := GenerateSelfSigned(CertConfig{
			Hosts:      hosts,
			NotAfter:   time.Now().Add(defaultValidity),
			CertPath:   certPath,
			KeyPath:    keyPath,
			CACertPath: filepath.Join(o.Dir, caName),
		})
		if err != nil {
			return nil, fmt.Errorf("generate certificate: %w", err)
		}
	}
	// fail at startup rather than on the first handshake
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: reloader(certPath, keyPath),
	}, nil
}

func reloader(certPath, keyPath string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	certPath, keyPath = filepath.Clean(certPath), filepath.Clean(keyPath)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, err
		}
		return &c, nil
	}
}

func exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
