// Package notify defines output backends for detected site changes.
package notify

import (
	"context"
	"time"
)

// ChangeAlert is the notification payload for one detected change.
type ChangeAlert struct {
	SiteID       string    `json:"site_id"`
	SiteName     string    `json:"site_name"`
	URL          string    `json:"url"`
	Importance   string    `json:"importance"`
	ChangesCount int       `json:"changes_count"`
	Summary      string    `json:"summary"`
	Intent       string    `json:"intent"`
	Suggestions  []string  `json:"suggestions"`
	DetectedAt   time.Time `json:"detected_at"`
}

// Sink is the delivery interface. Implementations deliver alerts to
// different backends (webhook, stdout).
type Sink interface {
	Send(ctx context.Context, alert ChangeAlert) error
	Close() error
}
