package secure

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	CertFile = "certificate.pem"
	KeyFile  = "private_key.pem"

	certValidity = 365 * 24 * time.Hour
)

// CertStore manages the self-signed TLS key pair: generated once, persisted
// as PEM under the config dir, reused until deleted externally.
type CertStore struct {
	certPath string
	keyPath  string

	// extraHosts are added to the certificate SANs alongside localhost,
	// typically the detected LAN address.
	extraHosts []string
}

// NewCertStore creates a store persisting under dir.
func NewCertStore(dir string, extraHosts ...string) *CertStore {
	return &CertStore{
		certPath:   filepath.Join(dir, CertFile),
		keyPath:    filepath.Join(dir, KeyFile),
		extraHosts: extraHosts,
	}
}

// Load returns the persisted key pair, generating a fresh self-signed one if
// either file is missing. Errors here are startup-fatal for the caller; TLS
// problems are never reported per-request.
func (s *CertStore) Load() (tls.Certificate, error) {
	if _, err := os.Stat(s.certPath); err == nil {
		if _, err := os.Stat(s.keyPath); err == nil {
			cert, err := tls.LoadX509KeyPair(s.certPath, s.keyPath)
			if err != nil {
				return tls.Certificate{}, fmt.Errorf("load key pair: %w", err)
			}
			return cert, nil
		}
	}
	if err := s.generate(); err != nil {
		return tls.Certificate{}, err
	}
	cert, err := tls.LoadX509KeyPair(s.certPath, s.keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load generated key pair: %w", err)
	}
	return cert, nil
}

func (s *CertStore) generate() error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "vortex"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(certValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	for _, h := range s.extraHosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else if h != "" {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := writeFileAtomic(s.certPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("persist certificate: %w", err)
	}
	if err := writeFileAtomic(s.keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("persist key: %w", err)
	}
	return nil
}
