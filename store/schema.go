package store

import "database/sql"

// Schema is the complete monitoring schema. Timestamps are Unix
// milliseconds. Line lists and suggestion lists are stored as JSON arrays.
const Schema = `
-- Tenants own sites and carry the plan that gates quotas
CREATE TABLE IF NOT EXISTS tenants (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    plan        TEXT NOT NULL DEFAULT 'free',
    token_hash  TEXT NOT NULL DEFAULT '',
    webhook_url TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);

-- Monitored sites
CREATE TABLE IF NOT EXISTS sites (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
    name            TEXT NOT NULL,
    url             TEXT NOT NULL,
    is_active       INTEGER NOT NULL DEFAULT 1,
    last_checked_at INTEGER,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sites_tenant ON sites(tenant_id);
CREATE INDEX IF NOT EXISTS idx_sites_active ON sites(is_active, last_checked_at);

-- Content snapshots: one per successful capture
CREATE TABLE IF NOT EXISTS snapshots (
    id             TEXT PRIMARY KEY,
    site_id        TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
    content        TEXT NOT NULL,
    markdown       TEXT NOT NULL DEFAULT '',
    title          TEXT NOT NULL DEFAULT '',
    screenshot_url TEXT NOT NULL DEFAULT '',
    created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_site ON snapshots(site_id, created_at DESC);

-- Detected changes between two snapshots
CREATE TABLE IF NOT EXISTS changes (
    id                   TEXT PRIMARY KEY,
    site_id              TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
    previous_snapshot_id TEXT NOT NULL,
    current_snapshot_id  TEXT NOT NULL,
    changes_count        INTEGER NOT NULL DEFAULT 0,
    added_lines          TEXT NOT NULL DEFAULT '[]',
    removed_lines        TEXT NOT NULL DEFAULT '[]',
    summary              TEXT NOT NULL DEFAULT '',
    importance           TEXT NOT NULL DEFAULT 'low',
    ai_summary           TEXT NOT NULL DEFAULT '',
    ai_intent            TEXT NOT NULL DEFAULT '',
    ai_suggestions       TEXT NOT NULL DEFAULT '[]',
    notified             INTEGER NOT NULL DEFAULT 0,
    created_at           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changes_site ON changes(site_id, created_at DESC);

-- Check audit trail: exactly one row per check attempt that ran
CREATE TABLE IF NOT EXISTS check_history (
    id                    TEXT PRIMARY KEY,
    site_id               TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
    change_id             TEXT NOT NULL DEFAULT '',
    has_changes           INTEGER NOT NULL DEFAULT 0,
    has_error             INTEGER NOT NULL DEFAULT 0,
    error_message         TEXT NOT NULL DEFAULT '',
    importance            TEXT NOT NULL DEFAULT '',
    changes_count         INTEGER NOT NULL DEFAULT 0,
    ai_summary            TEXT NOT NULL DEFAULT '',
    ai_intent             TEXT NOT NULL DEFAULT '',
    ai_suggestions        TEXT NOT NULL DEFAULT '[]',
    duration_ms           INTEGER NOT NULL DEFAULT 0,
    screenshot_url        TEXT NOT NULL DEFAULT '',
    screenshot_before_url TEXT NOT NULL DEFAULT '',
    compared_snapshot_at  INTEGER,
    created_at            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_check_history_site ON check_history(site_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_check_history_time ON check_history(created_at);

-- Per-site check leases: at most one in-flight check per site
CREATE TABLE IF NOT EXISTS check_leases (
    site_id    TEXT PRIMARY KEY,
    holder     TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
