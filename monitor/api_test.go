package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/sitewatch/capture"
	"github.com/hazyhaar/sitewatch/store"
)

func newAPIServer(t *testing.T, svc *Service) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(svc.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func seedAuthedTenant(t *testing.T, st *store.Store, plan string) (id, token string) {
	t.Helper()
	hash, err := HashToken("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	err = st.InsertTenant(context.Background(), &store.Tenant{
		ID: "tnt_api", Name: "acme", Plan: plan, TokenHash: hash,
	})
	if err != nil {
		t.Fatal(err)
	}
	return "tnt_api", "tnt_api:s3cret"
}

func doJSON(t *testing.T, method, url, token, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var obj map[string]json.RawMessage
	json.NewDecoder(resp.Body).Decode(&obj)
	return resp, obj
}

func TestCronEndpointAuth(t *testing.T) {
	svc, _ := newTestService(t, staticCapture("x"))
	srv := newAPIServer(t, svc)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/cron/daily-check", "wrong-token", "")
	if resp.StatusCode != 401 {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/cron/daily-check", "svc-token", "")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, key := range []string{"success", "checkedCount", "totalActiveSites", "eligibleSites", "batchSize", "results", "timestamp"} {
		if _, ok := body[key]; !ok {
			t.Errorf("report missing %q", key)
		}
	}
}

func TestTenantAuthRejectsBadSecret(t *testing.T) {
	svc, st := newTestService(t, staticCapture("x"))
	seedAuthedTenant(t, st, "free")
	srv := newAPIServer(t, svc)

	for _, token := range []string{"", "tnt_api:wrong", "nosuch:s3cret", "garbage"} {
		resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/sites", token, "")
		if resp.StatusCode != 401 {
			t.Errorf("token %q: status = %d, want 401", token, resp.StatusCode)
		}
	}
}

func TestSiteCreateEnforcesPlanLimit(t *testing.T) {
	svc, st := newTestService(t, staticCapture("x"))
	_, token := seedAuthedTenant(t, st, "free")
	srv := newAPIServer(t, svc)

	// Free plan allows 3 sites.
	for i := 0; i < 3; i++ {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sites", token,
			`{"name":"n","url":"https://93.184.216.34/"}`)
		if resp.StatusCode != 201 {
			t.Fatalf("create %d: status = %d", i, resp.StatusCode)
		}
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sites", token,
		`{"name":"n","url":"https://93.184.216.34/"}`)
	if resp.StatusCode != 429 {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	var limit, current int
	json.Unmarshal(body["limit"], &limit)
	json.Unmarshal(body["currentCount"], &current)
	if limit != 3 || current != 3 {
		t.Errorf("limit = %d current = %d", limit, current)
	}
}

func TestSiteCreateRejectsUnsafeURL(t *testing.T) {
	svc, st := newTestService(t, staticCapture("x"))
	_, token := seedAuthedTenant(t, st, "free")
	srv := newAPIServer(t, svc)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sites", token,
		`{"name":"n","url":"http://127.0.0.1/internal"}`)
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestForeignSiteIs404(t *testing.T) {
	svc, st := newTestService(t, staticCapture("x"))
	_, token := seedAuthedTenant(t, st, "free")
	srv := newAPIServer(t, svc)

	ctx := context.Background()
	st.InsertTenant(ctx, &store.Tenant{ID: "tnt_other", Name: "other"})
	st.InsertSite(ctx, &store.Site{ID: "site_x", TenantID: "tnt_other",
		Name: "x", URL: "https://example.com", IsActive: true})

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/sites/site_x", token, "")
	if resp.StatusCode != 404 {
		t.Errorf("foreign site status = %d, want 404", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/sites/site_x", token, "")
	if resp.StatusCode != 404 {
		t.Errorf("foreign delete status = %d, want 404", resp.StatusCode)
	}
}

func TestInteractiveCheckQuota(t *testing.T) {
	svc, st := newTestService(t, staticCapture("content"))
	tenantID, token := seedAuthedTenant(t, st, "free")
	srv := newAPIServer(t, svc)

	ctx := context.Background()
	site := &store.Site{ID: "site_1", TenantID: tenantID, Name: "n",
		URL: "https://example.com", IsActive: true}
	st.InsertSite(ctx, site)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sites/site_1/check", token, "")
	if resp.StatusCode != 200 {
		t.Fatalf("first check status = %d (%v)", resp.StatusCode, body)
	}

	// Free quota is 1/day; the successful check consumed it.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/sites/site_1/check", token, "")
	if resp.StatusCode != 429 {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	var plan string
	var limit, current int
	json.Unmarshal(body["plan"], &plan)
	json.Unmarshal(body["limit"], &limit)
	json.Unmarshal(body["currentCount"], &current)
	if plan != "free" || limit != 1 || current != 1 {
		t.Errorf("quota detail = %s/%d/%d", plan, limit, current)
	}
}

// The interactive check payload has two shapes: a message plus screenshot
// context when nothing changed, the diff and analysis when something did.
func TestInteractiveCheckResponseShape(t *testing.T) {
	versions := []string{"Pricing\nBasic: $10/mo", "Pricing\nBasic: $8/mo"}
	i := 0
	cap := &fakeCapture{fn: func(req capture.Request) (*capture.Result, error) {
		content := versions[i]
		if i < len(versions)-1 {
			i++
		}
		return &capture.Result{Content: content, RawHTML: content,
			ScreenshotURL: "mem://" + req.SiteID + "/shot.jpg",
			CapturedAt:    time.Now().UnixMilli()}, nil
	}}
	svc, st := newTestService(t, cap)
	tenantID, token := seedAuthedTenant(t, st, "business")
	srv := newAPIServer(t, svc)

	ctx := context.Background()
	st.InsertSite(ctx, &store.Site{ID: "site_1", TenantID: tenantID, Name: "n",
		URL: "https://example.com", IsActive: true})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sites/site_1/check", token, "")
	if resp.StatusCode != 200 {
		t.Fatalf("first check status = %d (%v)", resp.StatusCode, body)
	}
	var hasChanges bool
	json.Unmarshal(body["hasChanges"], &hasChanges)
	if hasChanges {
		t.Error("first check must not report changes")
	}
	if _, ok := body["message"]; !ok {
		t.Error("no-change payload must carry a message")
	}
	if _, ok := body["screenshotUrl"]; !ok {
		t.Error("payload must carry the screenshot url")
	}
	if _, ok := body["diffResult"]; ok {
		t.Error("no-change payload must not carry a diff")
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/sites/site_1/check", token, "")
	if resp.StatusCode != 200 {
		t.Fatalf("second check status = %d (%v)", resp.StatusCode, body)
	}
	json.Unmarshal(body["hasChanges"], &hasChanges)
	if !hasChanges {
		t.Fatal("changed content must report hasChanges")
	}
	for _, key := range []string{"diffResult", "aiAnalysis", "importance", "screenshotUrl", "screenshotBeforeUrl", "comparedDate"} {
		if _, ok := body[key]; !ok {
			t.Errorf("change payload missing %q", key)
		}
	}
	var diff struct {
		ChangesCount int      `json:"changesCount"`
		AddedLines   []string `json:"addedLines"`
		RemovedLines []string `json:"removedLines"`
	}
	json.Unmarshal(body["diffResult"], &diff)
	if diff.ChangesCount != 2 || len(diff.AddedLines) != 1 || len(diff.RemovedLines) != 1 {
		t.Errorf("diff = %+v", diff)
	}
	var comparedDate string
	json.Unmarshal(body["comparedDate"], &comparedDate)
	if _, err := time.Parse(time.RFC3339, comparedDate); err != nil {
		t.Errorf("comparedDate %q: %v", comparedDate, err)
	}
}

func TestDeleteSiteRemovesScreenshots(t *testing.T) {
	svc, st := newTestService(t, staticCapture("x"))
	tenantID, token := seedAuthedTenant(t, st, "free")

	blobs := newTrackingBlobs()
	svc.deps.Blobs = blobs
	srv := newAPIServer(t, svc)

	ctx := context.Background()
	st.InsertSite(ctx, &store.Site{ID: "site_1", TenantID: tenantID, Name: "n",
		URL: "https://example.com", IsActive: true})
	st.InsertSnapshot(ctx, &store.Snapshot{ID: "snap_1", SiteID: "site_1",
		Content: "x", ScreenshotURL: "mem://site_1/1.jpg", CreatedAt: 1})

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/sites/site_1", token, "")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != "mem://site_1/1.jpg" {
		t.Errorf("deleted blobs = %v", blobs.deleted)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	svc, st := newTestService(t, staticCapture("Pricing"))
	tenantID, token := seedAuthedTenant(t, st, "business")
	srv := newAPIServer(t, svc)

	ctx := context.Background()
	site := &store.Site{ID: "site_1", TenantID: tenantID, Name: "n",
		URL: "https://example.com", IsActive: true}
	st.InsertSite(ctx, site)
	if _, err := svc.CheckSite(ctx, site); err != nil {
		t.Fatal(err)
	}

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/sites/site_1/history", token, "")
	if resp.StatusCode != 200 {
		t.Errorf("history status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/sites/site_1/snapshots", token, "")
	if resp.StatusCode != 200 {
		t.Errorf("snapshots status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/screenshots?siteId=site_1", token, "")
	if resp.StatusCode != 200 {
		t.Errorf("screenshots status = %d", resp.StatusCode)
	}
}

type trackingBlobs struct {
	deleted []string
}

func newTrackingBlobs() *trackingBlobs { return &trackingBlobs{} }

func (b *trackingBlobs) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return "mem://" + key, nil
}

func (b *trackingBlobs) Delete(_ context.Context, url string) error {
	b.deleted = append(b.deleted, url)
	return nil
}
