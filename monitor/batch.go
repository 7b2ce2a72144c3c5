package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hazyhaar/sitewatch/store"
)

// BatchItem is the per-site line of a batch report.
type BatchItem struct {
	SiteID     string `json:"siteId"`
	SiteName   string `json:"siteName"`
	UserPlan   string `json:"userPlan"`
	Success    bool   `json:"success"`
	HasChanges bool   `json:"hasChanges"`
	Error      string `json:"error,omitempty"`
}

// BatchReport is the scheduler run summary returned to the cron caller.
// CheckedCount is the number of sites attempted; EligibleSites counts the
// quota-eligible population before the BatchSize cap.
type BatchReport struct {
	Success          bool        `json:"success"`
	CheckedCount     int         `json:"checkedCount"`
	TotalActiveSites int         `json:"totalActiveSites"`
	EligibleSites    int         `json:"eligibleSites"`
	BatchSize        int         `json:"batchSize"`
	Results          []BatchItem `json:"results"`
	Timestamp        string      `json:"timestamp"`
}

// candidate is a site scored for scheduling.
type candidate struct {
	site  *store.Site
	plan  string
	score float64
}

// RunBatch selects the highest-priority quota-eligible sites and checks
// them sequentially with pacing. One failing site never aborts the batch;
// only a failure to load the scheduling inputs does.
func (s *Service) RunBatch(ctx context.Context) (*BatchReport, error) {
	log := s.deps.Logger
	now := s.deps.Now()

	sites, err := s.deps.Store.ListActiveSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list sites: %v", ErrStorage, err)
	}
	plans, err := s.deps.Store.TenantPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load plans: %v", ErrStorage, err)
	}
	used, err := s.deps.Store.CheckCountsSince(ctx, startOfDayUTC(now))
	if err != nil {
		return nil, fmt.Errorf("%w: load check counts: %v", ErrStorage, err)
	}

	selected, eligible := s.selectBatch(sites, plans, used, now)
	log.Info("batch selected",
		"total_active", len(sites),
		"eligible", eligible,
		"selected", len(selected),
		"batch_size", s.cfg.BatchSize)

	report := &BatchReport{
		Success:          true,
		TotalActiveSites: len(sites),
		EligibleSites:    eligible,
		BatchSize:        s.cfg.BatchSize,
		Results:          []BatchItem{},
		Timestamp:        now.UTC().Format(time.RFC3339),
	}

	for i, c := range selected {
		if i > 0 {
			if err := s.pacer.Wait(ctx); err != nil {
				log.Warn("batch aborted", "checked", report.CheckedCount, "error", err)
				break
			}
		}

		item := BatchItem{SiteID: c.site.ID, SiteName: c.site.Name, UserPlan: c.plan}
		outcome, err := s.CheckSite(ctx, c.site)
		report.CheckedCount++
		switch {
		case err == nil:
			item.Success = true
			item.HasChanges = outcome.HasChanges
		case errors.Is(err, ErrCheckInProgress):
			item.Error = "check already in progress"
		default:
			item.Error = err.Error()
			log.Error("batch item failed", "site_id", c.site.ID, "error", err)
		}
		report.Results = append(report.Results, item)
	}

	return report, nil
}

// selectBatch filters quota-eligible sites, orders them by priority, and
// caps the result at BatchSize. The eligible count is returned separately
// so the report can surface the pre-cap population. Quota is consumed as
// sites are picked so one tenant's fleet cannot overrun its daily
// allowance within a batch.
func (s *Service) selectBatch(sites []*store.Site, plans map[string]string, used map[string]int, now time.Time) ([]candidate, int) {
	remaining := make(map[string]int, len(used))

	var cands []candidate
	for _, site := range sites {
		plan, limit := planOrFree(s.cfg.DailyCheckLimits, plans[site.TenantID])
		if _, ok := remaining[site.TenantID]; !ok {
			remaining[site.TenantID] = limit - used[site.TenantID]
		}
		if remaining[site.TenantID] <= 0 {
			continue
		}
		cands = append(cands, candidate{
			site:  site,
			plan:  plan,
			score: s.score(plan, site.LastCheckedAt, now),
		})
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	var selected []candidate
	for _, c := range cands {
		if len(selected) >= s.cfg.BatchSize {
			break
		}
		if remaining[c.site.TenantID] <= 0 {
			continue
		}
		remaining[c.site.TenantID]--
		selected = append(selected, c)
	}
	return selected, len(cands)
}

// score ranks a site for scheduling: plan weight dominates, staleness in
// hours breaks ties within a tier, and never-checked sites jump ahead of
// every checked site in their tier.
func (s *Service) score(plan string, lastCheckedAt *int64, now time.Time) float64 {
	weight, ok := s.cfg.TierWeights[plan]
	if !ok {
		weight = s.cfg.TierWeights["free"]
	}
	age := s.cfg.NeverCheckedHours
	if lastCheckedAt != nil {
		age = now.Sub(time.UnixMilli(*lastCheckedAt)).Hours()
		if age < 0 {
			age = 0
		}
		if age > s.cfg.NeverCheckedHours {
			age = s.cfg.NeverCheckedHours
		}
	}
	return weight*1000 + age
}
