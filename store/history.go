package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertCheckRecord appends one row to the check audit trail.
func (s *Store) InsertCheckRecord(ctx context.Context, r *CheckRecord) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO check_history (id, site_id, change_id, has_changes, has_error,
		error_message, importance, changes_count, ai_summary, ai_intent, ai_suggestions,
		duration_ms, screenshot_url, screenshot_before_url, compared_snapshot_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SiteID, r.ChangeID, r.HasChanges, r.HasError,
		r.ErrorMessage, r.Importance, r.ChangesCount, r.AISummary, r.AIIntent,
		linesToJSON(r.AISuggestions), r.DurationMs, r.ScreenshotURL,
		r.ScreenshotBeforeURL, r.ComparedSnapshotAt, r.CreatedAt,
	)
	return err
}

// CountChecksSince counts a tenant's check records created at or after
// sinceMs. Every attempt counts against the quota, failures included.
func (s *Store) CountChecksSince(ctx context.Context, tenantID string, sinceMs int64) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM check_history h
		JOIN sites s ON s.id = h.site_id
		WHERE s.tenant_id = ? AND h.created_at >= ?`, tenantID, sinceMs).Scan(&count)
	return count, err
}

// CheckCountsSince returns per-tenant check counts since sinceMs, for the
// scheduler's quota gate. Tenants with zero checks are absent from the map.
func (s *Store) CheckCountsSince(ctx context.Context, sinceMs int64) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT s.tenant_id, COUNT(*) FROM check_history h
		JOIN sites s ON s.id = h.site_id
		WHERE h.created_at >= ?
		GROUP BY s.tenant_id`, sinceMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var tenantID string
		var n int
		if err := rows.Scan(&tenantID, &n); err != nil {
			return nil, fmt.Errorf("scan check count: %w", err)
		}
		counts[tenantID] = n
	}
	return counts, rows.Err()
}

// ListHistoryBySite returns a site's check records, newest first, capped at limit.
func (s *Store) ListHistoryBySite(ctx context.Context, siteID string, limit int) ([]*CheckRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, site_id, change_id, has_changes, has_error, error_message,
		importance, changes_count, ai_summary, ai_intent, ai_suggestions,
		duration_ms, screenshot_url, screenshot_before_url, compared_snapshot_at, created_at
		FROM check_history WHERE site_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, siteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCheckRecords(rows)
}

// ListScreenshotHistory returns a tenant's check records that carry a
// screenshot, newest first, optionally filtered to one site.
func (s *Store) ListScreenshotHistory(ctx context.Context, tenantID, siteID string, limit int) ([]*CheckRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT h.id, h.site_id, h.change_id, h.has_changes, h.has_error, h.error_message,
		h.importance, h.changes_count, h.ai_summary, h.ai_intent, h.ai_suggestions,
		h.duration_ms, h.screenshot_url, h.screenshot_before_url, h.compared_snapshot_at, h.created_at
		FROM check_history h
		JOIN sites s ON s.id = h.site_id
		WHERE s.tenant_id = ? AND h.screenshot_url != ''`
	args := []any{tenantID}
	if siteID != "" {
		query += ` AND h.site_id = ?`
		args = append(args, siteID)
	}
	query += ` ORDER BY h.created_at DESC, h.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCheckRecords(rows)
}

func collectCheckRecords(rows *sql.Rows) ([]*CheckRecord, error) {
	var records []*CheckRecord
	for rows.Next() {
		var r CheckRecord
		var hasChanges, hasError int
		var suggestions string
		err := rows.Scan(&r.ID, &r.SiteID, &r.ChangeID, &hasChanges, &hasError,
			&r.ErrorMessage, &r.Importance, &r.ChangesCount, &r.AISummary, &r.AIIntent,
			&suggestions, &r.DurationMs, &r.ScreenshotURL, &r.ScreenshotBeforeURL,
			&r.ComparedSnapshotAt, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan check record: %w", err)
		}
		r.HasChanges = hasChanges != 0
		r.HasError = hasError != 0
		r.AISuggestions = linesFromJSON(suggestions)
		records = append(records, &r)
	}
	return records, rows.Err()
}
