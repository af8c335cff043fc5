// Package identity manages the client's self-signed trust material used
// during the handshake (see internal/handshake) to authenticate the
// headset to a streaming server.
package identity

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/alvr-go/headset-client/internal/logging"
)

var log = logging.L("identity")

// Identity is the headset's persisted trust material: a human-readable
// hostname advertised during discovery, and a PEM certificate/key pair
// used to authenticate the control channel.
type Identity struct {
	Hostname      string
	CertificatePEM string
	KeyPEM         string
	IssuedAt       string
	ExpiresAt      string
}

// LoadClientCert parses a PEM-encoded certificate and private key pair.
func LoadClientCert(certPEM, keyPEM string) (*tls.Certificate, error) {
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse client identity key pair: %w", err)
	}
	return &cert, nil
}

// ParseCertificate loads the tls.Certificate for this identity, or returns
// nil if no certificate material is configured (anonymous discovery-only
// client).
func (id *Identity) ParseCertificate() (*tls.Certificate, error) {
	if id.CertificatePEM == "" || id.KeyPEM == "" {
		return nil, nil
	}
	return LoadClientCert(id.CertificatePEM, id.KeyPEM)
}

// BuildTLSConfig returns a TLS config carrying the identity's client
// certificate. Returns nil if no certificate is configured.
func BuildTLSConfig(certPEM, keyPEM string) (*tls.Config, error) {
	if certPEM == "" || keyPEM == "" {
		return nil, nil
	}

	cert, err := LoadClientCert(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
	}, nil
}

// parseExpiryTime parses a timestamp in RFC 3339 or bare ISO 8601 format.
func parseExpiryTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", s)
	}
	return t, err
}

// IsExpired reports whether this identity's certificate has passed its
// expiry time. Fails closed: an unparseable expiry is treated as expired
// so stale material is never trusted.
func (id *Identity) IsExpired() bool {
	if id.ExpiresAt == "" {
		return false
	}
	t, err := parseExpiryTime(id.ExpiresAt)
	if err != nil {
		log.Warn("unable to parse identity cert expiry, treating as expired for safety",
			"expires", id.ExpiresAt, "error", err)
		return true
	}
	return time.Now().After(t)
}

// NeedsRenewal reports whether this identity has passed 2/3 of its
// certificate lifetime.
func (id *Identity) NeedsRenewal() bool {
	if id.IssuedAt == "" || id.ExpiresAt == "" {
		return false
	}
	issued, err := parseExpiryTime(id.IssuedAt)
	if err != nil {
		return false
	}
	expires, err := parseExpiryTime(id.ExpiresAt)
	if err != nil {
		return false
	}

	lifetime := expires.Sub(issued)
	threshold := issued.Add(lifetime * 2 / 3)
	return time.Now().After(threshold)
}
