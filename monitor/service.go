package monitor

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/sitewatch/blob"
	"github.com/hazyhaar/sitewatch/capture"
	"github.com/hazyhaar/sitewatch/idgen"
	"github.com/hazyhaar/sitewatch/notify"
	"github.com/hazyhaar/sitewatch/store"
	"github.com/hazyhaar/sitewatch/summarize"
)

// Deps are the collaborators of the orchestration engine.
type Deps struct {
	Store   *store.Store
	Capture capture.Service
	// Analyzer is optional; without it every change gets the fallback
	// narrative.
	Analyzer summarize.Analyzer
	// Blobs is optional; it is used to delete screenshots on site removal.
	Blobs blob.Store
	// Sink receives every change alert regardless of tenant webhooks.
	// Optional.
	Sink notify.Sink
	// NewWebhook builds a sink for a tenant's webhook URL. Optional;
	// defaults to notify.NewWebhook.
	NewWebhook func(url string) notify.Sink

	Logger *slog.Logger
	// Now is the clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Service runs checks and enforces quotas.
type Service struct {
	cfg   Config
	deps  Deps
	pacer *Pacer

	// holder identifies this process in check leases.
	holder string

	newSiteID   idgen.Generator
	newSnapID   idgen.Generator
	newChangeID idgen.Generator
	newCheckID  idgen.Generator
	newTenantID idgen.Generator
}

// New creates a Service.
func New(cfg Config, deps Deps) *Service {
	cfg.defaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewWebhook == nil {
		deps.NewWebhook = func(url string) notify.Sink { return notify.NewWebhook(url) }
	}
	return &Service{
		cfg:         cfg,
		deps:        deps,
		pacer:       NewPacer(cfg.PaceInterval),
		holder:      "sitewatch-" + idgen.Default(),
		newSiteID:   idgen.Prefixed("site_", idgen.Default),
		newSnapID:   idgen.Prefixed("snap_", idgen.Default),
		newChangeID: idgen.Prefixed("chg_", idgen.Default),
		newCheckID:  idgen.Prefixed("chk_", idgen.Default),
		newTenantID: idgen.Prefixed("tnt_", idgen.Default),
	}
}

// startOfDayUTC returns midnight UTC of t's day in Unix milliseconds.
// Daily quotas reset on this boundary.
func startOfDayUTC(t time.Time) int64 {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
}
