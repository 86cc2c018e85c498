package tool

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/moyoez/localsend-session/types"
)

// CertValidity is how long a generated self-signed certificate lasts.
var CertValidity = 365 * 24 * time.Hour

// CertFingerprint is the SHA-256 of the DER certificate, hex encoded.
func CertFingerprint(certDER []byte) string {
	hash := sha256.Sum256(certDER)
	return hex.EncodeToString(hash[:])
}

// EnsureCertificate returns the key pair stored in cfg. A missing, broken or expired pair
// is replaced by a fresh self-signed one written back into cfg.CertPEM and cfg.KeyPEM.
func EnsureCertificate(cfg *types.AppConfig) (tls.Certificate, error) {
	if cfg.CertPEM != "" && cfg.KeyPEM != "" {
		cert, err := parseStoredCertificate(cfg.CertPEM, cfg.KeyPEM)
		if err == nil {
			return cert, nil
		}
		DefaultLogger.Warnf("Stored TLS certificate unusable (%v), generating a new one", err)
	}

	certPEM, keyPEM, err := newSelfSignedPEM(cfg.Alias)
	if err != nil {
		return tls.Certificate{}, err
	}
	cert, err := parseStoredCertificate(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, err
	}
	cfg.CertPEM, cfg.KeyPEM = certPEM, keyPEM
	DefaultLogger.Infof("TLS certificate generated and stored in config")
	return cert, nil
}

// IdentityFingerprint is the fingerprint peers see for cfg: the certificate hash in https mode.
// If no certificate can be produced a random 32 character value is returned instead.
func IdentityFingerprint(cfg *types.AppConfig) string {
	cert, err := EnsureCertificate(cfg)
	if err != nil || len(cert.Certificate) == 0 {
		DefaultLogger.Warnf("No TLS certificate (%v), using a random fingerprint", err)
		return generateRandomFingerprintForConfig()
	}
	return CertFingerprint(cert.Certificate[0])
}

// LoadServerCertificate is EnsureCertificate with the error wrapped for the server.
func LoadServerCertificate(cfg *types.AppConfig) (tls.Certificate, error) {
	cert, err := EnsureCertificate(cfg)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to get TLS certificate: %w", err)
	}
	return cert, nil
}

func parseStoredCertificate(certPEM, keyPEM string) (tls.Certificate, error) {
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return tls.Certificate{}, err
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse certificate: %w", err)
	}
	if time.Now().After(leaf.NotAfter) {
		return tls.Certificate{}, errors.New("certificate has expired")
	}
	cert.Leaf = leaf
	return cert, nil
}

// newSelfSignedPEM creates a P-256 key and a certificate for it, both PEM encoded.
func newSelfSignedPEM(alias string) (certPEM, keyPEM string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return "", "", fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "localsend-session", Organization: []string{alias}},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(CertValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return "", "", fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("marshal key: %w", err)
	}

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	return certPEM, keyPEM, nil
}
