// Package csr parses submitted PKCS#10 data into an immutable request
// representation used by the validation pipeline and signing backends.
package csr

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	dErrors "certgate/pkg/domain-errors"
)

const pemBlockType = "CERTIFICATE REQUEST"

// KeyAlgorithm names the public key algorithm of a request.
type KeyAlgorithm string

const (
	KeyRSA     KeyAlgorithm = "rsa"
	KeyECDSA   KeyAlgorithm = "ecdsa"
	KeyEd25519 KeyAlgorithm = "ed25519"
	KeyUnknown KeyAlgorithm = "unknown"
)

// Request is a successfully parsed certificate signing request. It is
// immutable once constructed; validators and backends only read from it.
type Request struct {
	raw         []byte
	fingerprint string
	parsed      *x509.CertificateRequest
}

// Parse decodes raw CSR bytes, accepting either a PEM "CERTIFICATE REQUEST"
// block or bare DER. A failure here is a ParseError, distinct from any
// validator outcome.
func Parse(raw []byte) (*Request, error) {
	if len(raw) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "empty certificate request")
	}

	der := raw
	if block, rest := pem.Decode(raw); block != nil {
		if block.Type != pemBlockType {
			return nil, dErrors.New(dErrors.CodeBadRequest,
				fmt.Sprintf("expected %q PEM block, found %q", pemBlockType, block.Type))
		}
		if len(rest) > 0 {
			return nil, dErrors.New(dErrors.CodeBadRequest, "trailing data after PEM block")
		}
		der = block.Bytes
	}

	parsed, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeBadRequest, "malformed certificate request", err)
	}

	sum := sha256.Sum256(der)
	return &Request{
		raw:         der,
		fingerprint: hex.EncodeToString(sum[:]),
		parsed:      parsed,
	}, nil
}

// Fingerprint is the hex SHA-256 of the DER request bytes. The same CSR
// bytes always produce the same fingerprint, which the store uses for
// idempotent retries.
func (r *Request) Fingerprint() string { return r.fingerprint }

// Raw returns the DER bytes the request was parsed from.
func (r *Request) Raw() []byte { return r.raw }

// Certificate request accessors. The underlying x509 value is shared;
// callers must not mutate it.
func (r *Request) CertificateRequest() *x509.CertificateRequest { return r.parsed }

// CommonName returns the subject CN, which may be empty when the request
// relies on subject alternative names only.
func (r *Request) CommonName() string { return r.parsed.Subject.CommonName }

// CommonNames returns every CN attribute in the subject. RFC 5280 permits
// more than one; policies usually refuse that.
func (r *Request) CommonNames() []string {
	var cns []string
	for _, atv := range r.parsed.Subject.Names {
		if atv.Type.Equal(oidCommonName) {
			if s, ok := atv.Value.(string); ok {
				cns = append(cns, s)
			}
		}
	}
	return cns
}

// HasSubjectAltNames reports whether any SAN entry is present.
func (r *Request) HasSubjectAltNames() bool {
	return len(r.parsed.DNSNames) > 0 ||
		len(r.parsed.IPAddresses) > 0 ||
		len(r.parsed.EmailAddresses) > 0 ||
		len(r.parsed.URIs) > 0
}

// DNSNames returns the DNS subject alternative names.
func (r *Request) DNSNames() []string { return r.parsed.DNSNames }

// CheckSignature verifies the self-signature on the request.
func (r *Request) CheckSignature() error {
	return r.parsed.CheckSignature()
}

// KeyAlgorithm classifies the request's public key.
func (r *Request) KeyAlgorithm() KeyAlgorithm {
	switch r.parsed.PublicKey.(type) {
	case *rsa.PublicKey:
		return KeyRSA
	case *ecdsa.PublicKey:
		return KeyECDSA
	case ed25519.PublicKey:
		return KeyEd25519
	default:
		return KeyUnknown
	}
}

// KeyBits returns the key size in bits: the modulus size for RSA, the curve
// size for ECDSA, and the fixed key length for Ed25519. Unknown key types
// report zero.
func (r *Request) KeyBits() int {
	switch key := r.parsed.PublicKey.(type) {
	case *rsa.PublicKey:
		return key.N.BitLen()
	case *ecdsa.PublicKey:
		return key.Curve.Params().BitSize
	case ed25519.PublicKey:
		return len(key) * 8
	default:
		return 0
	}
}
