package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/sitewatch/capture"
	"github.com/hazyhaar/sitewatch/store"
)

func seedTenantSites(t *testing.T, st *store.Store, tenantID, plan string, sites map[string]*int64) {
	t.Helper()
	ctx := context.Background()
	if err := st.InsertTenant(ctx, &store.Tenant{ID: tenantID, Name: tenantID, Plan: plan}); err != nil {
		t.Fatal(err)
	}
	for id, lastChecked := range sites {
		err := st.InsertSite(ctx, &store.Site{
			ID: id, TenantID: tenantID, Name: id,
			URL: "https://example.com/" + id, IsActive: true, LastCheckedAt: lastChecked,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func msAgo(d time.Duration) *int64 {
	v := time.Now().Add(-d).UnixMilli()
	return &v
}

func TestRunBatchRespectsQuota(t *testing.T) {
	svc, st := newTestService(t, staticCapture("content"))
	ctx := context.Background()

	// Free tenant with two sites and quota 1: only one may be checked.
	seedTenantSites(t, st, "tnt_free", "free", map[string]*int64{
		"site_f1": msAgo(48 * time.Hour),
		"site_f2": msAgo(24 * time.Hour),
	})
	// Pro tenant already at its quota today: excluded entirely.
	seedTenantSites(t, st, "tnt_spent", "pro", map[string]*int64{
		"site_s1": msAgo(48 * time.Hour),
	})
	for i := 0; i < 5; i++ {
		st.InsertCheckRecord(ctx, &store.CheckRecord{
			ID: "chk_spent_" + string(rune('a'+i)), SiteID: "site_s1",
			CreatedAt: time.Now().UnixMilli(),
		})
	}

	report, err := svc.RunBatch(ctx)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if report.CheckedCount != 1 {
		t.Errorf("checked = %d, want 1 (free quota)", report.CheckedCount)
	}
	if len(report.Results) != 1 || report.Results[0].SiteID != "site_f1" {
		t.Errorf("results = %+v, want the stalest free site only", report.Results)
	}
	if report.TotalActiveSites != 3 {
		t.Errorf("total active = %d", report.TotalActiveSites)
	}
}

func TestRunBatchTierDominatesStaleness(t *testing.T) {
	svc, st := newTestService(t, staticCapture("content"))

	// Very stale free site vs a fresh business site: plan weight wins.
	seedTenantSites(t, st, "tnt_free", "free", map[string]*int64{
		"site_free": msAgo(200 * time.Hour),
	})
	seedTenantSites(t, st, "tnt_biz", "business", map[string]*int64{
		"site_biz": msAgo(time.Hour),
	})

	report, err := svc.RunBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 2 || report.Results[0].SiteID != "site_biz" {
		t.Errorf("order = %+v, want business first", report.Results)
	}
}

func TestRunBatchNeverCheckedFirstWithinTier(t *testing.T) {
	svc, st := newTestService(t, staticCapture("content"))

	seedTenantSites(t, st, "tnt_biz", "business", map[string]*int64{
		"site_old":   msAgo(72 * time.Hour),
		"site_never": nil,
	})

	report, err := svc.RunBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 2 || report.Results[0].SiteID != "site_never" {
		t.Errorf("order = %+v, want never-checked first", report.Results)
	}
}

func TestRunBatchCapsAtBatchSize(t *testing.T) {
	svc, st := newTestService(t, staticCapture("content"))
	svc.cfg.BatchSize = 3

	sites := make(map[string]*int64)
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		sites["site_"+id] = msAgo(24 * time.Hour)
	}
	seedTenantSites(t, st, "tnt_biz", "business", sites)

	report, err := svc.RunBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.CheckedCount != 3 || len(report.Results) != 3 {
		t.Errorf("checked = %d results = %d, want 3", report.CheckedCount, len(report.Results))
	}
	// eligibleSites reports the quota-eligible population, not the capped
	// selection: 5 eligible, batch of 3.
	if report.EligibleSites != 5 {
		t.Errorf("eligible = %d, want 5 before cap", report.EligibleSites)
	}
	if report.BatchSize != 3 {
		t.Errorf("batch size = %d, want 3", report.BatchSize)
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	cap := &fakeCapture{fn: func(req capture.Request) (*capture.Result, error) {
		if req.SiteID == "site_bad" {
			return nil, errors.New("tls handshake failed")
		}
		return &capture.Result{Content: "ok", RawHTML: "ok",
			CapturedAt: time.Now().UnixMilli()}, nil
	}}
	svc, st := newTestService(t, cap)

	seedTenantSites(t, st, "tnt_biz", "business", map[string]*int64{
		"site_bad":  nil,
		"site_good": msAgo(time.Hour),
	})

	report, err := svc.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("one bad site must not abort the batch: %v", err)
	}
	// checkedCount counts attempts, failures included.
	if report.CheckedCount != 2 {
		t.Errorf("checked = %d, want 2 attempted", report.CheckedCount)
	}
	byID := map[string]BatchItem{}
	for _, item := range report.Results {
		byID[item.SiteID] = item
	}
	if byID["site_bad"].Success || byID["site_bad"].Error == "" {
		t.Errorf("bad item = %+v", byID["site_bad"])
	}
	if !byID["site_good"].Success {
		t.Errorf("good item = %+v", byID["site_good"])
	}
}

func TestRunBatchFailedChecksStillConsumeQuota(t *testing.T) {
	cap := &fakeCapture{fn: func(capture.Request) (*capture.Result, error) {
		return nil, errors.New("down")
	}}
	svc, st := newTestService(t, cap)
	seedTenantSites(t, st, "tnt_free", "free", map[string]*int64{"site_f1": nil})

	if _, err := svc.RunBatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	// The failed attempt wrote a history row, so the next batch finds the
	// tenant over quota.
	report, err := svc.RunBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.EligibleSites != 0 || len(report.Results) != 0 {
		t.Errorf("report = %+v, want empty after quota spent on failure", report)
	}
}
