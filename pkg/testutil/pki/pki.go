// Package pki generates throwaway key material for tests. Nothing here is
// suitable for production use; key sizes are chosen for test speed.
package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"
)

// CSROption mutates the request template before it is signed.
type CSROption func(*x509.CertificateRequest)

// WithDNSNames sets the DNS subject alternative names.
func WithDNSNames(names ...string) CSROption {
	return func(tmpl *x509.CertificateRequest) {
		tmpl.DNSNames = names
	}
}

// WithIPAddresses sets IP subject alternative names.
func WithIPAddresses(ips ...string) CSROption {
	return func(tmpl *x509.CertificateRequest) {
		for _, raw := range ips {
			if ip := net.ParseIP(raw); ip != nil {
				tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
			}
		}
	}
}

// WithKeyUsageBits requests a keyUsage extension with the given RFC 5280 bit
// positions set (0 = digitalSignature, 5 = keyCertSign, ...).
func WithKeyUsageBits(bits ...int) CSROption {
	return func(tmpl *x509.CertificateRequest) {
		max := 0
		for _, b := range bits {
			if b > max {
				max = b
			}
		}
		raw := make([]byte, max/8+1)
		for _, b := range bits {
			raw[b/8] |= 1 << uint(7-b%8)
		}
		value, err := asn1.Marshal(asn1.BitString{Bytes: raw, BitLength: max + 1})
		if err != nil {
			panic(err)
		}
		tmpl.ExtraExtensions = append(tmpl.ExtraExtensions, pkix.Extension{
			Id:    asn1.ObjectIdentifier{2, 5, 29, 15},
			Value: value,
		})
	}
}

// WithExtKeyUsageOIDs requests an extendedKeyUsage extension.
func WithExtKeyUsageOIDs(oids ...asn1.ObjectIdentifier) CSROption {
	return func(tmpl *x509.CertificateRequest) {
		value, err := asn1.Marshal(oids)
		if err != nil {
			panic(err)
		}
		tmpl.ExtraExtensions = append(tmpl.ExtraExtensions, pkix.Extension{
			Id:    asn1.ObjectIdentifier{2, 5, 29, 37},
			Value: value,
		})
	}
}

// WithCAFlag requests a basicConstraints extension with the CA flag set.
func WithCAFlag() CSROption {
	return func(tmpl *x509.CertificateRequest) {
		value, err := asn1.Marshal(struct {
			IsCA bool `asn1:"optional"`
		}{IsCA: true})
		if err != nil {
			panic(err)
		}
		tmpl.ExtraExtensions = append(tmpl.ExtraExtensions, pkix.Extension{
			Id:       asn1.ObjectIdentifier{2, 5, 29, 19},
			Critical: true,
			Value:    value,
		})
	}
}

// GenerateCSR produces a PEM-encoded CSR and its private key.
func GenerateCSR(t *testing.T, commonName string, keyBits int, opts ...CSROption) ([]byte, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	tmpl := &x509.CertificateRequest{
		Subject: pkix.Name{CommonName: commonName},
	}
	for _, opt := range opts {
		opt(tmpl)
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, tmpl, key)
	if err != nil {
		t.Fatalf("create csr: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), key
}

// GenerateCA produces a self-signed CA certificate and key, both PEM-encoded,
// valid for the given duration.
func GenerateCA(t *testing.T, commonName string, validity time.Duration) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate ca key: %v", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Exp(big.NewInt(2), big.NewInt(159), nil))
	if err != nil {
		t.Fatalf("generate ca serial: %v", err)
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		t.Fatalf("create ca certificate: %v", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal ca key: %v", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}
