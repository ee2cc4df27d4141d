package signing

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// LocalCA signs requests with authority material held in-process.
type LocalCA struct {
	keys    *KeyManager
	serials SerialSource
	clock   func() time.Time
}

type LocalCAOption func(*LocalCA)

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) LocalCAOption {
	return func(c *LocalCA) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func NewLocalCA(keys *KeyManager, serials SerialSource, opts ...LocalCAOption) (*LocalCA, error) {
	if keys == nil {
		return nil, fmt.Errorf("key manager is required")
	}
	if serials == nil {
		return nil, fmt.Errorf("serial source is required")
	}
	c := &LocalCA{keys: keys, serials: serials, clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issuer identifies the authority by its certificate subject.
func (c *LocalCA) Issuer() string {
	return c.keys.Current().Cert.Subject.String()
}

// Certificate returns the authority certificate in PEM form, for callers
// that need to install the trust anchor. The key never leaves this package.
func (c *LocalCA) Certificate() []byte {
	cert := c.keys.Current().Cert
	return pem.EncodeToMemory(&pem.Block{Type: certBlockType, Bytes: cert.Raw})
}

// Sign issues one certificate from the approved request. The requested TTL
// must fit inside the authority's own validity window.
func (c *LocalCA) Sign(ctx context.Context, req Request) (*IssuedCertificate, error) {
	material := c.keys.Current()
	now := c.clock()

	if now.After(material.Cert.NotAfter) {
		return nil, newSigningError("authority certificate has expired", false, nil)
	}
	if req.TTL <= 0 {
		return nil, newSigningError("certificate lifetime must be positive", false, nil)
	}

	notAfter := now.Add(req.TTL)
	if notAfter.After(material.Cert.NotAfter) {
		return nil, newSigningError(
			fmt.Sprintf("requested lifetime ends %s, after the authority's own expiry %s",
				notAfter.Format(time.RFC3339), material.Cert.NotAfter.Format(time.RFC3339)),
			false, nil)
	}

	serial, err := c.serials.ReserveSerial(ctx)
	if err != nil {
		return nil, newSigningError("could not reserve a serial number", true, err)
	}

	parsed := req.CSR.CertificateRequest()
	isCA, err := req.CSR.RequestsCA()
	if err != nil {
		return nil, newSigningError("malformed basicConstraints in request", false, err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      parsed.Subject,
		NotBefore:    now,
		NotAfter:     notAfter,

		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},

		BasicConstraintsValid: true,
		IsCA:                  isCA,

		DNSNames:       parsed.DNSNames,
		IPAddresses:    parsed.IPAddresses,
		EmailAddresses: parsed.EmailAddresses,
		URIs:           parsed.URIs,
	}
	if isCA {
		template.KeyUsage |= x509.KeyUsageCertSign | x509.KeyUsageCRLSign
		template.MaxPathLen = 0
		template.MaxPathLenZero = true
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, material.Cert, parsed.PublicKey, material.Key)
	if err != nil {
		return nil, newSigningError("certificate construction failed", false, err)
	}

	return &IssuedCertificate{
		DER:         der,
		PEM:         pem.EncodeToMemory(&pem.Block{Type: certBlockType, Bytes: der}),
		Serial:      serial,
		Issuer:      material.Cert.Subject.String(),
		Fingerprint: req.CSR.Fingerprint(),
		IssuedAt:    now,
		ExpiresAt:   notAfter,
	}, nil
}
