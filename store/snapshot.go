package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertSnapshot stores the normalized content of one capture.
func (s *Store) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.CreatedAt == 0 {
		snap.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO snapshots (id, site_id, content, markdown, title, screenshot_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.SiteID, snap.Content, snap.Markdown, snap.Title,
		snap.ScreenshotURL, snap.CreatedAt,
	)
	return err
}

// LatestSnapshot returns the most recent snapshot of a site, or nil, nil
// when the site has never been captured.
func (s *Store) LatestSnapshot(ctx context.Context, siteID string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, site_id, content, markdown, title, screenshot_url, created_at
		FROM snapshots WHERE site_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, siteID)

	var snap Snapshot
	err := row.Scan(&snap.ID, &snap.SiteID, &snap.Content, &snap.Markdown,
		&snap.Title, &snap.ScreenshotURL, &snap.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshotsBySite returns a site's snapshots, newest first, capped at limit.
func (s *Store) ListSnapshotsBySite(ctx context.Context, siteID string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, site_id, content, markdown, title, screenshot_url, created_at
		FROM snapshots WHERE site_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, siteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		var snap Snapshot
		err := rows.Scan(&snap.ID, &snap.SiteID, &snap.Content, &snap.Markdown,
			&snap.Title, &snap.ScreenshotURL, &snap.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}
