package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/sitewatch/capture"
	"github.com/hazyhaar/sitewatch/diffcheck"
	"github.com/hazyhaar/sitewatch/notify"
	"github.com/hazyhaar/sitewatch/store"
	"github.com/hazyhaar/sitewatch/summarize"
)

// Outcome summarizes one completed check.
type Outcome struct {
	SiteID     string
	SiteName   string
	HasChanges bool
	// Change is set when HasChanges is true.
	Change *store.Change

	ScreenshotURL       string
	ScreenshotBeforeURL string
	// ComparedSnapshotAt is the prior snapshot's capture time in Unix
	// milliseconds; nil on a first-ever check.
	ComparedSnapshotAt *int64
}

// CheckSite runs the full pipeline for one site: lease, capture, snapshot,
// diff, analyze, persist, notify. Exactly one check_history row is written
// for every attempt that got past the lease; a refused lease writes
// nothing and returns ErrCheckInProgress.
//
// The snapshot from a successful capture is always persisted, even when
// nothing changed, so the next comparison baseline is fresh.
func (s *Service) CheckSite(ctx context.Context, site *store.Site) (*Outcome, error) {
	log := s.deps.Logger.With("site_id", site.ID, "url", site.URL)
	now := s.deps.Now()

	ok, err := s.deps.Store.AcquireLease(ctx, site.ID, s.holder, s.cfg.LeaseTTL, now)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire lease: %v", ErrStorage, err)
	}
	if !ok {
		log.Info("check skipped, lease held elsewhere")
		return nil, ErrCheckInProgress
	}
	defer func() {
		if err := s.deps.Store.ReleaseLease(context.WithoutCancel(ctx), site.ID, s.holder); err != nil {
			log.Warn("release lease failed", "error", err)
		}
	}()

	started := time.Now()

	res, err := s.deps.Capture.Capture(ctx, capture.Request{
		URL:            site.URL,
		TakeScreenshot: true,
		SiteID:         site.ID,
	})
	if err != nil {
		s.recordFailure(ctx, site.ID, err, started)
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}

	prior, err := s.deps.Store.LatestSnapshot(ctx, site.ID)
	if err != nil {
		s.recordFailure(ctx, site.ID, err, started)
		return nil, fmt.Errorf("%w: load snapshot: %v", ErrStorage, err)
	}

	snap := &store.Snapshot{
		ID:            s.newSnapID(),
		SiteID:        site.ID,
		Content:       res.Content,
		Markdown:      res.Markdown,
		Title:         res.Title,
		ScreenshotURL: res.ScreenshotURL,
		CreatedAt:     res.CapturedAt,
	}
	if err := s.deps.Store.InsertSnapshot(ctx, snap); err != nil {
		s.recordFailure(ctx, site.ID, err, started)
		return nil, fmt.Errorf("%w: insert snapshot: %v", ErrStorage, err)
	}

	outcome := &Outcome{SiteID: site.ID, SiteName: site.Name, ScreenshotURL: res.ScreenshotURL}
	record := &store.CheckRecord{
		ID:            s.newCheckID(),
		SiteID:        site.ID,
		ScreenshotURL: res.ScreenshotURL,
		CreatedAt:     now.UnixMilli(),
	}

	if prior == nil {
		// First capture: baseline only, nothing to compare against.
		log.Info("first snapshot stored", "snapshot_id", snap.ID)
	} else {
		record.ScreenshotBeforeURL = prior.ScreenshotURL
		comparedAt := prior.CreatedAt
		record.ComparedSnapshotAt = &comparedAt
		outcome.ScreenshotBeforeURL = prior.ScreenshotURL
		outcome.ComparedSnapshotAt = &comparedAt

		diff := diffcheck.Compare(prior.Content, snap.Content)
		if diff.HasChanges {
			change, err := s.persistChange(ctx, site, prior, snap, diff)
			if err != nil {
				s.recordFailure(ctx, site.ID, err, started)
				return nil, err
			}
			outcome.HasChanges = true
			outcome.Change = change

			record.HasChanges = true
			record.ChangeID = change.ID
			record.Importance = change.Importance
			record.ChangesCount = change.ChangesCount
			record.AISummary = change.AISummary
			record.AIIntent = change.AIIntent
			record.AISuggestions = change.AISuggestions

			s.dispatchAlert(ctx, site, change)
		} else {
			log.Info("no changes detected")
		}
	}

	record.DurationMs = time.Since(started).Milliseconds()
	if err := s.deps.Store.InsertCheckRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: insert check record: %v", ErrStorage, err)
	}
	if err := s.deps.Store.TouchSiteChecked(ctx, site.ID, now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("%w: touch site: %v", ErrStorage, err)
	}

	log.Info("check complete",
		"has_changes", outcome.HasChanges,
		"duration_ms", record.DurationMs)
	return outcome, nil
}

// persistChange classifies the diff, obtains the narrative, and stores the
// change. Analysis failures fall back to the fixed placeholder so the
// change itself is never lost.
func (s *Service) persistChange(ctx context.Context, site *store.Site, prior, snap *store.Snapshot, diff *diffcheck.Result) (*store.Change, error) {
	analysis := s.analyze(ctx, site.Name, diff)

	change := &store.Change{
		ID:                 s.newChangeID(),
		SiteID:             site.ID,
		PreviousSnapshotID: prior.ID,
		CurrentSnapshotID:  snap.ID,
		ChangesCount:       diff.ChangesCount,
		AddedLines:         diff.AddedLines,
		RemovedLines:       diff.RemovedLines,
		Summary:            diff.Summary,
		Importance:         string(diffcheck.Classify(diff.ChangesCount)),
		AISummary:          analysis.Summary,
		AIIntent:           analysis.Intent,
		AISuggestions:      analysis.Suggestions,
		CreatedAt:          snap.CreatedAt,
	}
	if err := s.deps.Store.InsertChange(ctx, change); err != nil {
		return nil, fmt.Errorf("%w: insert change: %v", ErrStorage, err)
	}
	return change, nil
}

func (s *Service) analyze(ctx context.Context, siteName string, diff *diffcheck.Result) *summarize.Analysis {
	if s.deps.Analyzer == nil {
		return summarize.Fallback()
	}
	analysis, err := s.deps.Analyzer.Analyze(ctx, siteName, diff.AddedLines, diff.RemovedLines)
	if err != nil {
		s.deps.Logger.Warn("analysis failed, using fallback", "site", siteName, "error", err)
		return summarize.Fallback()
	}
	return analysis
}

// dispatchAlert delivers the change to the global sink and the tenant's
// webhook. Delivery is best effort: failures are logged, and the notified
// flag is set only when at least one sink accepted the alert.
func (s *Service) dispatchAlert(ctx context.Context, site *store.Site, change *store.Change) {
	log := s.deps.Logger.With("site_id", site.ID, "change_id", change.ID)

	alert := notify.ChangeAlert{
		SiteID:       site.ID,
		SiteName:     site.Name,
		URL:          site.URL,
		Importance:   change.Importance,
		ChangesCount: change.ChangesCount,
		Summary:      change.AISummary,
		Intent:       change.AIIntent,
		Suggestions:  change.AISuggestions,
		DetectedAt:   time.UnixMilli(change.CreatedAt).UTC(),
	}

	delivered := false
	if s.deps.Sink != nil {
		if err := s.deps.Sink.Send(ctx, alert); err != nil {
			log.Warn("sink delivery failed", "error", err)
		} else {
			delivered = true
		}
	}

	tenant, err := s.deps.Store.GetTenant(ctx, site.TenantID)
	if err != nil {
		log.Warn("load tenant for webhook failed", "error", err)
	} else if tenant != nil && tenant.WebhookURL != "" {
		hook := s.deps.NewWebhook(tenant.WebhookURL)
		if err := hook.Send(ctx, alert); err != nil {
			log.Warn("webhook delivery failed", "url", tenant.WebhookURL, "error", err)
		} else {
			delivered = true
		}
		hook.Close()
	}

	if delivered {
		if err := s.deps.Store.MarkChangeNotified(ctx, change.ID); err != nil {
			log.Warn("mark notified failed", "error", err)
		}
	}
}

// recordFailure writes the error row for a check that ran but did not
// complete. last_checked_at is deliberately left untouched so the site
// keeps its scheduling priority.
func (s *Service) recordFailure(ctx context.Context, siteID string, cause error, started time.Time) {
	record := &store.CheckRecord{
		ID:           s.newCheckID(),
		SiteID:       siteID,
		HasError:     true,
		ErrorMessage: cause.Error(),
		DurationMs:   time.Since(started).Milliseconds(),
		CreatedAt:    s.deps.Now().UnixMilli(),
	}
	if err := s.deps.Store.InsertCheckRecord(context.WithoutCancel(ctx), record); err != nil {
		s.deps.Logger.Error("record check failure", "site_id", siteID, "error", err)
	}
}
