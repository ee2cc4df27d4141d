// Package signing turns approved certificate requests into signed
// certificates. Backends own the authority key material exclusively; the
// rest of the system only ever sees the sign capability.
package signing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"certgate/internal/csr"
)

// Request is one approved signing request. Callers must only construct it
// after an accepting verdict; the backend itself has no visibility into
// policy.
type Request struct {
	CSR *csr.Request
	// TTL is the requested certificate lifetime from the policy's signing
	// profile.
	TTL time.Duration
}

// IssuedCertificate is the immutable result of one successful signing call.
type IssuedCertificate struct {
	// DER and PEM encodings of the signed certificate.
	DER []byte
	PEM []byte
	// Serial is the unique serial number the authority assigned.
	Serial *big.Int
	// Issuer identifies the issuing authority.
	Issuer string
	// Fingerprint of the originating request, for idempotent lookup.
	Fingerprint string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Backend produces a signed certificate from an approved request.
type Backend interface {
	// Sign issues exactly one certificate, or fails with a *SigningError.
	Sign(ctx context.Context, req Request) (*IssuedCertificate, error)
}

// SigningError reports that a backend could not produce a certificate.
// Retryable failures (timeouts, transient upstream errors) may be submitted
// again unchanged; others need operator attention.
type SigningError struct {
	Reason    string
	Retryable bool
	cause     error
}

func (e *SigningError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("signing failed: %s: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("signing failed: %s", e.Reason)
}

func (e *SigningError) Unwrap() error { return e.cause }

func newSigningError(reason string, retryable bool, cause error) *SigningError {
	return &SigningError{Reason: reason, Retryable: retryable, cause: cause}
}

// IsRetryable reports whether err is a retryable signing failure.
func IsRetryable(err error) bool {
	var se *SigningError
	return errors.As(err, &se) && se.Retryable
}

// SerialSource reserves unique serial numbers. Uniqueness across concurrent
// requests is the store's responsibility; the backend just asks.
type SerialSource interface {
	ReserveSerial(ctx context.Context) (*big.Int, error)
}
