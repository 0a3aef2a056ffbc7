// Package identity creates and verifies the ephemeral self-signed TLS
// identity a sender presents for one transfer session. Nothing here is
// persisted: the key, certificate, and fingerprint live only as long as
// the process that created them.
package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

const (
	commonName  = "LocalSend CLI"
	rsaKeyBits  = 2048
	maxValidity = 24 * time.Hour
)

// Identity is the ephemeral {private_key, certificate_pem, fingerprint}
// tuple spec.md §3 defines. Create one per sender session; discard it on
// exit.
type Identity struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
	der  []byte

	CertPEM     []byte
	KeyPEM      []byte
	Fingerprint string
}

// New generates a fresh RSA key pair and a self-signed certificate valid for
// at most 24 hours, then computes its DER fingerprint.
func New() (*Identity, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("identity: generate serial: %w", err)
	}

	notBefore := time.Now().Add(-5 * time.Minute)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(maxValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("identity: self-sign certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("identity: parse certificate: %w", err)
	}

	sum := sha256.Sum256(der)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	return &Identity{
		key:         key,
		cert:        cert,
		der:         der,
		CertPEM:     certPEM,
		KeyPEM:      keyPEM,
		Fingerprint: hex.EncodeToString(sum[:]),
	}, nil
}

// ServerTLSConfig builds the TLS configuration the transfer server
// terminates connections with.
func (id *Identity) ServerTLSConfig() (*tls.Config, error) {
	pair, err := tls.X509KeyPair(id.CertPEM, id.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("identity: build key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientTLSConfig builds a TLS client configuration that accepts one and
// only one peer certificate: whichever self-signed certificate hashes to
// expectedFingerprint (lowercase hex SHA-256 of its DER encoding). Every
// other certificate, including a validly-chained one signed by a public CA,
// is rejected.
func ClientTLSConfig(expectedFingerprint string) *tls.Config {
	want, _ := hex.DecodeString(expectedFingerprint)
	return &tls.Config{
		InsecureSkipVerify: true, // fingerprint pinning replaces chain validation
		MinVersion:         tls.VersionTLS12,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("identity: peer presented no certificate")
			}
			sum := sha256.Sum256(rawCerts[0])
			if subtle.ConstantTimeCompare(sum[:], want) != 1 {
				return fmt.Errorf("identity: certificate fingerprint mismatch")
			}
			return nil
		},
	}
}
