package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/sitewatch/dbopen"
)

// InsertSite adds a new monitored site.
func (s *Store) InsertSite(ctx context.Context, site *Site) error {
	now := time.Now().UnixMilli()
	if site.CreatedAt == 0 {
		site.CreatedAt = now
	}
	if site.UpdatedAt == 0 {
		site.UpdatedAt = now
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sites (id, tenant_id, name, url, is_active, last_checked_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		site.ID, site.TenantID, site.Name, site.URL, site.IsActive,
		site.LastCheckedAt, site.CreatedAt, site.UpdatedAt,
	)
	return err
}

// GetSite retrieves a site by ID. Returns nil, nil when absent.
func (s *Store) GetSite(ctx context.Context, id string) (*Site, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, url, is_active, last_checked_at, created_at, updated_at
		FROM sites WHERE id = ?`, id)
	return scanSite(row)
}

// ListSitesByTenant returns all of a tenant's sites, newest first.
func (s *Store) ListSitesByTenant(ctx context.Context, tenantID string) ([]*Site, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, tenant_id, name, url, is_active, last_checked_at, created_at, updated_at
		FROM sites WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSites(rows)
}

// ListActiveSites returns every active site across all tenants, stalest
// first. Never-checked sites sort before everything else.
func (s *Store) ListActiveSites(ctx context.Context) ([]*Site, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, tenant_id, name, url, is_active, last_checked_at, created_at, updated_at
		FROM sites WHERE is_active = 1
		ORDER BY last_checked_at ASC NULLS FIRST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSites(rows)
}

// UpdateSite updates a site's mutable fields.
func (s *Store) UpdateSite(ctx context.Context, site *Site) error {
	site.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sites SET name=?, url=?, is_active=?, updated_at=? WHERE id=?`,
		site.Name, site.URL, site.IsActive, site.UpdatedAt, site.ID,
	)
	return err
}

// TouchSiteChecked records a completed successful check.
func (s *Store) TouchSiteChecked(ctx context.Context, id string, at int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sites SET last_checked_at=?, updated_at=? WHERE id=?`, at, at, id)
	return err
}

// CountSitesByTenant returns how many sites a tenant has.
func (s *Store) CountSitesByTenant(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sites WHERE tenant_id = ?`, tenantID).Scan(&count)
	return count, err
}

// DeleteSiteCascade removes a site and everything hanging off it, and
// returns the distinct screenshot URLs that were referenced so the caller
// can delete the blobs. The URL collection and the delete run in one
// transaction; row deletion cascades through foreign keys.
func (s *Store) DeleteSiteCascade(ctx context.Context, id string) ([]string, error) {
	var urls []string
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT screenshot_url FROM snapshots WHERE site_id = ?1 AND screenshot_url != ''
			UNION
			SELECT screenshot_url FROM check_history WHERE site_id = ?1 AND screenshot_url != ''
			UNION
			SELECT screenshot_before_url FROM check_history WHERE site_id = ?1 AND screenshot_before_url != ''`,
			id)
		if err != nil {
			return err
		}

		urls = urls[:0]
		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				rows.Close()
				return fmt.Errorf("scan screenshot url: %w", err)
			}
			urls = append(urls, u)
		}
		// Close before the DELETE: the tx holds a single connection.
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		if err := rows.Close(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

func scanSite(row *sql.Row) (*Site, error) {
	var site Site
	var active int
	err := row.Scan(&site.ID, &site.TenantID, &site.Name, &site.URL,
		&active, &site.LastCheckedAt, &site.CreatedAt, &site.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan site: %w", err)
	}
	site.IsActive = active != 0
	return &site, nil
}

func collectSites(rows *sql.Rows) ([]*Site, error) {
	var sites []*Site
	for rows.Next() {
		var site Site
		var active int
		err := rows.Scan(&site.ID, &site.TenantID, &site.Name, &site.URL,
			&active, &site.LastCheckedAt, &site.CreatedAt, &site.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		site.IsActive = active != 0
		sites = append(sites, &site)
	}
	return sites, rows.Err()
}
