package store

import (
	"context"
	"fmt"
	"time"
)

// InsertChange records a detected change.
func (s *Store) InsertChange(ctx context.Context, c *Change) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	if c.Importance == "" {
		c.Importance = "low"
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO changes (id, site_id, previous_snapshot_id, current_snapshot_id,
		changes_count, added_lines, removed_lines, summary, importance,
		ai_summary, ai_intent, ai_suggestions, notified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SiteID, c.PreviousSnapshotID, c.CurrentSnapshotID,
		c.ChangesCount, linesToJSON(c.AddedLines), linesToJSON(c.RemovedLines),
		c.Summary, c.Importance, c.AISummary, c.AIIntent,
		linesToJSON(c.AISuggestions), c.Notified, c.CreatedAt,
	)
	return err
}

// MarkChangeNotified flags a change as delivered to at least one sink.
func (s *Store) MarkChangeNotified(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE changes SET notified = 1 WHERE id = ?`, id)
	return err
}

// ListChangesBySite returns a site's changes, newest first, capped at limit.
func (s *Store) ListChangesBySite(ctx context.Context, siteID string, limit int) ([]*Change, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, site_id, previous_snapshot_id, current_snapshot_id,
		changes_count, added_lines, removed_lines, summary, importance,
		ai_summary, ai_intent, ai_suggestions, notified, created_at
		FROM changes WHERE site_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, siteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*Change
	for rows.Next() {
		var c Change
		var added, removed, suggestions string
		var notified int
		err := rows.Scan(&c.ID, &c.SiteID, &c.PreviousSnapshotID, &c.CurrentSnapshotID,
			&c.ChangesCount, &added, &removed, &c.Summary, &c.Importance,
			&c.AISummary, &c.AIIntent, &suggestions, &notified, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.AddedLines = linesFromJSON(added)
		c.RemovedLines = linesFromJSON(removed)
		c.AISuggestions = linesFromJSON(suggestions)
		c.Notified = notified != 0
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}
