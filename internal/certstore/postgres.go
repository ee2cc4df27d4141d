package certstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres persists issued certificates. Expected schema:
//
//	CREATE TABLE certificate_serials (
//	    serial TEXT PRIMARY KEY,
//	    reserved_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE certificates (
//	    serial TEXT PRIMARY KEY,
//	    fingerprint TEXT NOT NULL,
//	    pem TEXT NOT NULL,
//	    issuer TEXT NOT NULL,
//	    policy TEXT NOT NULL,
//	    issued_at TIMESTAMPTZ NOT NULL,
//	    expires_at TIMESTAMPTZ NOT NULL,
//	    revoked_at TIMESTAMPTZ
//	);
//	CREATE INDEX certificates_fingerprint_idx ON certificates (fingerprint);
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ReserveSerial claims a fresh random serial. The unique constraint on
// certificate_serials arbitrates collisions across replicas; a losing
// insert simply draws again.
func (p *Postgres) ReserveSerial(ctx context.Context) (*big.Int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		serial, err := rand.Int(rand.Reader, serialCeiling)
		if err != nil {
			return nil, fmt.Errorf("draw serial: %w", err)
		}

		tag, err := p.pool.Exec(ctx,
			`INSERT INTO certificate_serials (serial) VALUES ($1) ON CONFLICT (serial) DO NOTHING`,
			serial.String(),
		)
		if err != nil {
			return nil, fmt.Errorf("reserve serial: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return serial, nil
		}
	}
}

func (p *Postgres) Persist(ctx context.Context, rec Record) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO certificates (serial, fingerprint, pem, issuer, policy, issued_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Serial, rec.Fingerprint, rec.PEM, rec.Issuer, rec.Policy,
		rec.IssuedAt, rec.ExpiresAt, rec.RevokedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSerial
		}
		return fmt.Errorf("persist certificate %s: %w", rec.Serial, err)
	}
	return nil
}

func (p *Postgres) BySerial(ctx context.Context, serial string) (Record, error) {
	return p.scanOne(ctx, `
		SELECT serial, fingerprint, pem, issuer, policy, issued_at, expires_at, revoked_at
		FROM certificates WHERE serial = $1`, serial)
}

func (p *Postgres) ByFingerprint(ctx context.Context, fingerprint string) (Record, error) {
	return p.scanOne(ctx, `
		SELECT serial, fingerprint, pem, issuer, policy, issued_at, expires_at, revoked_at
		FROM certificates WHERE fingerprint = $1
		ORDER BY issued_at DESC LIMIT 1`, fingerprint)
}

func (p *Postgres) Revoke(ctx context.Context, serial string, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE certificates SET revoked_at = COALESCE(revoked_at, $2) WHERE serial = $1`,
		serial, at,
	)
	if err != nil {
		return fmt.Errorf("revoke certificate %s: %w", serial, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) scanOne(ctx context.Context, query, arg string) (Record, error) {
	var rec Record
	err := p.pool.QueryRow(ctx, query, arg).Scan(
		&rec.Serial, &rec.Fingerprint, &rec.PEM, &rec.Issuer, &rec.Policy,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load certificate: %w", err)
	}
	return rec, nil
}
