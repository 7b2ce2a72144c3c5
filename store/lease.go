package store

import (
	"context"
	"time"
)

// AcquireLease tries to take the per-site check lease. It succeeds when no
// lease exists or the existing one has expired, and reports false otherwise.
// The single UPSERT makes the take-over atomic under concurrent schedulers.
func (s *Store) AcquireLease(ctx context.Context, siteID, holder string, ttl time.Duration, now time.Time) (bool, error) {
	nowMs := now.UnixMilli()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO check_leases (site_id, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(site_id) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE check_leases.expires_at < ?`,
		siteID, holder, now.Add(ttl).UnixMilli(), nowMs,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseLease drops the lease if this holder still owns it. Releasing a
// lease taken over by another holder is a no-op.
func (s *Store) ReleaseLease(ctx context.Context, siteID, holder string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM check_leases WHERE site_id = ? AND holder = ?`, siteID, holder)
	return err
}
