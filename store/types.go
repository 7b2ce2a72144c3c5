package store

import "encoding/json"

// Tenant owns sites. Plan gates both the site count and the daily check quota.
type Tenant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Plan       string `json:"plan"`
	TokenHash  string `json:"-"`
	WebhookURL string `json:"webhook_url,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// Site is one monitored page.
type Site struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	IsActive bool   `json:"is_active"`
	// LastCheckedAt is nil for sites never checked.
	LastCheckedAt *int64 `json:"last_checked_at,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// Snapshot is the normalized content of one successful capture.
type Snapshot struct {
	ID            string `json:"id"`
	SiteID        string `json:"site_id"`
	Content       string `json:"content"`
	Markdown      string `json:"markdown,omitempty"`
	Title         string `json:"title,omitempty"`
	ScreenshotURL string `json:"screenshot_url,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

// Change records a detected difference between two snapshots of a site.
type Change struct {
	ID                 string   `json:"id"`
	SiteID             string   `json:"site_id"`
	PreviousSnapshotID string   `json:"previous_snapshot_id"`
	CurrentSnapshotID  string   `json:"current_snapshot_id"`
	ChangesCount       int      `json:"changes_count"`
	AddedLines         []string `json:"added_lines"`
	RemovedLines       []string `json:"removed_lines"`
	Summary            string   `json:"summary"`
	Importance         string   `json:"importance"`
	AISummary          string   `json:"ai_summary,omitempty"`
	AIIntent           string   `json:"ai_intent,omitempty"`
	AISuggestions      []string `json:"ai_suggestions,omitempty"`
	Notified           bool     `json:"notified"`
	CreatedAt          int64    `json:"created_at"`
}

// CheckRecord is one row of the per-check audit trail. Exactly one record
// exists for every check attempt that actually ran, success or failure.
type CheckRecord struct {
	ID           string `json:"id"`
	SiteID       string `json:"site_id"`
	ChangeID     string `json:"change_id,omitempty"`
	HasChanges   bool   `json:"has_changes"`
	HasError     bool   `json:"has_error"`
	ErrorMessage string `json:"error_message,omitempty"`
	Importance   string `json:"importance,omitempty"`
	ChangesCount int    `json:"changes_count"`

	// AI copies are denormalized here so history listings need no join.
	AISummary     string   `json:"ai_summary,omitempty"`
	AIIntent      string   `json:"ai_intent,omitempty"`
	AISuggestions []string `json:"ai_suggestions,omitempty"`

	DurationMs          int64  `json:"duration_ms"`
	ScreenshotURL       string `json:"screenshot_url,omitempty"`
	ScreenshotBeforeURL string `json:"screenshot_before_url,omitempty"`
	// ComparedSnapshotAt is the creation time of the snapshot this check
	// was diffed against. Nil for first checks and failures.
	ComparedSnapshotAt *int64 `json:"compared_snapshot_at,omitempty"`
	CreatedAt          int64  `json:"created_at"`
}

// linesToJSON serializes a string list for storage. A nil list stores as [].
func linesToJSON(lines []string) string {
	if len(lines) == 0 {
		return "[]"
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// linesFromJSON deserializes a stored string list. Malformed data yields nil.
func linesFromJSON(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var lines []string
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil
	}
	return lines
}
