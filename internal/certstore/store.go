// Package certstore persists issued certificates and tracks their
// revocation and expiry state. Stores are interface-driven so in-memory,
// PostgreSQL, or external persistence can be swapped without rewiring
// domain code.
package certstore

import (
	"context"
	"math/big"
	"time"

	"certgate/internal/signing"
	dErrors "certgate/pkg/domain-errors"
)

var (
	// ErrNotFound keeps store 404s consistent across implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "certificate not found")
	// ErrDuplicateSerial reports a serial collision on persist. With a
	// correctly reserving store this indicates a bug, not bad input.
	ErrDuplicateSerial = dErrors.New(dErrors.CodeConflict, "serial already persisted")
)

// Status of a stored certificate at a point in time.
type Status string

const (
	StatusValid   Status = "valid"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Record is one issued certificate as the store keeps it. Certificates are
// keyed by serial and additionally looked up by request fingerprint for
// idempotent retries of the same CSR.
type Record struct {
	Serial      string
	Fingerprint string
	PEM         []byte
	Issuer      string
	Policy      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

// StatusAt computes the record's state at the given time. Revocation wins
// over expiry.
func (r Record) StatusAt(now time.Time) Status {
	if r.RevokedAt != nil && !r.RevokedAt.After(now) {
		return StatusRevoked
	}
	if now.After(r.ExpiresAt) {
		return StatusExpired
	}
	return StatusValid
}

// NewRecord builds a Record from a signing result.
func NewRecord(cert *signing.IssuedCertificate, policy string) Record {
	return Record{
		Serial:      cert.Serial.String(),
		Fingerprint: cert.Fingerprint,
		PEM:         cert.PEM,
		Issuer:      cert.Issuer,
		Policy:      policy,
		IssuedAt:    cert.IssuedAt,
		ExpiresAt:   cert.ExpiresAt,
	}
}

// Store is the certificate persistence collaborator. ReserveSerial must
// hand out serials that are unique across concurrent requests; it is the
// single point of the pipeline that requires serialization or a
// retry-on-conflict loop.
type Store interface {
	signing.SerialSource
	Persist(ctx context.Context, rec Record) error
	BySerial(ctx context.Context, serial string) (Record, error)
	ByFingerprint(ctx context.Context, fingerprint string) (Record, error)
	Revoke(ctx context.Context, serial string, at time.Time) error
}

// serialBits sizes randomly drawn serials. 160 bits matches common CA
// practice and keeps the collision probability negligible even before the
// store's uniqueness check.
const serialBits = 160

var serialCeiling = new(big.Int).Exp(big.NewInt(2), big.NewInt(serialBits), nil)
