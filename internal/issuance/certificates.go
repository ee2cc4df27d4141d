package issuance

import (
	"context"
	"time"

	"certgate/internal/audit"
	"certgate/internal/certstore"
)

// StatusCache is an optional shared revocation marker consulted before the
// store on status lookups. Lookups degrade to store-only when the cache
// errors.
type StatusCache interface {
	MarkRevoked(ctx context.Context, serial string, until time.Time) error
	IsRevoked(ctx context.Context, serial string) (bool, error)
}

// WithStatusCache attaches a shared revocation cache.
func WithStatusCache(cache StatusCache) Option {
	return func(o *Orchestrator) { o.statusCache = cache }
}

// Lookup returns a stored certificate and its state as of now.
func (o *Orchestrator) Lookup(ctx context.Context, serial string) (certstore.Record, certstore.Status, error) {
	record, err := o.store.BySerial(ctx, serial)
	if err != nil {
		return certstore.Record{}, "", err
	}

	status := record.StatusAt(o.clock())
	if status == certstore.StatusValid && o.statusCache != nil {
		// The store may lag a revocation recorded by another replica.
		revoked, err := o.statusCache.IsRevoked(ctx, serial)
		if err != nil {
			o.logger.Warn("revocation cache lookup failed", "serial", serial, "error", err)
		} else if revoked {
			status = certstore.StatusRevoked
		}
	}
	return record, status, nil
}

// Revoke marks a certificate revoked, effective immediately. Revoking an
// already revoked certificate is a no-op that keeps the original timestamp.
func (o *Orchestrator) Revoke(ctx context.Context, serial string) error {
	record, err := o.store.BySerial(ctx, serial)
	if err != nil {
		return err
	}

	now := o.clock()
	if err := o.store.Revoke(ctx, serial, now); err != nil {
		return err
	}

	if o.statusCache != nil {
		if err := o.statusCache.MarkRevoked(ctx, serial, record.ExpiresAt); err != nil {
			o.logger.Warn("revocation cache update failed", "serial", serial, "error", err)
		}
	}

	o.emit(ctx, audit.Event{
		Fingerprint: record.Fingerprint,
		Policy:      record.Policy,
		Stage:       audit.StageIssuance,
		Decision:    audit.DecisionRevoked,
		Serial:      serial,
	})

	o.logger.Info("certificate revoked", "serial", serial, "policy", record.Policy)
	return nil
}
