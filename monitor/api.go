package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sitewatch/safeurl"
	"github.com/hazyhaar/sitewatch/store"
	"github.com/hazyhaar/sitewatch/summarize"
)

// Routes returns the engine's HTTP API.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Scheduler trigger, authenticated by the service token. GET is kept
	// alongside POST because common cron runners only issue GETs.
	r.Post("/api/cron/daily-check", s.handleDailyCheck)
	r.Get("/api/cron/daily-check", s.handleDailyCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireTenant)

		r.Route("/sites", func(r chi.Router) {
			r.Get("/", s.handleListSites)
			r.Post("/", s.handleCreateSite)
			r.Get("/{siteID}", s.handleGetSite)
			r.Put("/{siteID}", s.handleUpdateSite)
			r.Patch("/{siteID}", s.handleUpdateSite)
			r.Delete("/{siteID}", s.handleDeleteSite)
			r.Post("/{siteID}/check", s.handleCheckNow)
			r.Get("/{siteID}/history", s.handleSiteHistory)
			r.Get("/{siteID}/snapshots", s.handleSiteSnapshots)
			r.Get("/{siteID}/changes", s.handleSiteChanges)
		})
		r.Get("/screenshots", s.handleScreenshots)
	})

	return r
}

func (s *Service) handleDailyCheck(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ServiceToken == "" || !safeurl.TokenEqual(bearerToken(r), s.cfg.ServiceToken) {
		writeError(w, 401, "unauthorized")
		return
	}

	report, err := s.RunBatch(r.Context())
	if err != nil {
		s.deps.Logger.Error("batch run failed", "error", err)
		writeJSON(w, 500, map[string]string{
			"error":     "batch run failed",
			"timestamp": s.deps.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, 200, report)
}

type siteRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	IsActive *bool  `json:"is_active,omitempty"`
}

func (s *Service) handleListSites(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFrom(r.Context())
	sites, err := s.deps.Store.ListSitesByTenant(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	if sites == nil {
		sites = []*store.Site{}
	}
	writeJSON(w, 200, sites)
}

func (s *Service) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFrom(r.Context())

	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, 400, "name and url are required")
		return
	}
	if err := safeurl.ValidateURL(req.URL); err != nil {
		writeError(w, 400, "invalid url: "+err.Error())
		return
	}

	count, err := s.deps.Store.CountSitesByTenant(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	plan, limit := planOrFree(s.cfg.SiteLimits, tenant.Plan)
	if count >= limit {
		writeJSON(w, 429, map[string]any{
			"error":        "site limit reached",
			"plan":         plan,
			"limit":        limit,
			"currentCount": count,
		})
		return
	}

	site := &store.Site{
		ID:       s.newSiteID(),
		TenantID: tenant.ID,
		Name:     req.Name,
		URL:      req.URL,
		IsActive: true,
	}
	if req.IsActive != nil {
		site.IsActive = *req.IsActive
	}
	if err := s.deps.Store.InsertSite(r.Context(), site); err != nil {
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, site)
}

func (s *Service) handleGetSite(w http.ResponseWriter, r *http.Request) {
	site := s.ownedSite(w, r)
	if site == nil {
		return
	}
	writeJSON(w, 200, site)
}

func (s *Service) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	site := s.ownedSite(w, r)
	if site == nil {
		return
	}

	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid request body")
		return
	}
	if req.Name != "" {
		site.Name = req.Name
	}
	if req.URL != "" {
		if err := safeurl.ValidateURL(req.URL); err != nil {
			writeError(w, 400, "invalid url: "+err.Error())
			return
		}
		site.URL = req.URL
	}
	if req.IsActive != nil {
		site.IsActive = *req.IsActive
	}
	if err := s.deps.Store.UpdateSite(r.Context(), site); err != nil {
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, site)
}

func (s *Service) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	site := s.ownedSite(w, r)
	if site == nil {
		return
	}

	urls, err := s.deps.Store.DeleteSiteCascade(r.Context(), site.ID)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	// Blob cleanup after the rows are gone; a failed delete only strands
	// a file, never a dangling row.
	if s.deps.Blobs != nil {
		for _, u := range urls {
			if err := s.deps.Blobs.Delete(r.Context(), u); err != nil {
				s.deps.Logger.Warn("delete screenshot failed", "url", u, "error", err)
			}
		}
	}
	writeJSON(w, 200, map[string]string{"status": "deleted"})
}

func (s *Service) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFrom(r.Context())
	site := s.ownedSite(w, r)
	if site == nil {
		return
	}

	used, err := s.deps.Store.CountChecksSince(r.Context(), tenant.ID, startOfDayUTC(s.deps.Now()))
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	plan, limit := planOrFree(s.cfg.DailyCheckLimits, tenant.Plan)
	if used >= limit {
		writeJSON(w, 429, map[string]any{
			"error":        "daily check quota exceeded",
			"plan":         plan,
			"limit":        limit,
			"currentCount": used,
		})
		return
	}

	outcome, err := s.CheckSite(r.Context(), site)
	switch {
	case errors.Is(err, ErrCheckInProgress):
		writeError(w, 409, "check already in progress")
	case err != nil:
		s.deps.Logger.Error("interactive check failed", "site_id", site.ID, "error", err)
		writeError(w, 502, "check failed: "+err.Error())
	default:
		writeJSON(w, 200, checkResponseFrom(outcome))
	}
}

// checkDiff is the diff block of an interactive check payload.
type checkDiff struct {
	ChangesCount int      `json:"changesCount"`
	AddedLines   []string `json:"addedLines"`
	RemovedLines []string `json:"removedLines"`
	Summary      string   `json:"summary"`
}

// checkResponse has two shapes: a message when nothing changed, the diff
// and analysis when something did. Screenshot URLs and the comparison date
// ride along on both so the compare view can render either way.
type checkResponse struct {
	SiteID              string              `json:"siteId"`
	HasChanges          bool                `json:"hasChanges"`
	Message             string              `json:"message,omitempty"`
	DiffResult          *checkDiff          `json:"diffResult,omitempty"`
	AIAnalysis          *summarize.Analysis `json:"aiAnalysis,omitempty"`
	Importance          string              `json:"importance,omitempty"`
	ScreenshotURL       string              `json:"screenshotUrl,omitempty"`
	ScreenshotBeforeURL string              `json:"screenshotBeforeUrl,omitempty"`
	ComparedDate        string              `json:"comparedDate,omitempty"`
}

func checkResponseFrom(outcome *Outcome) checkResponse {
	resp := checkResponse{
		SiteID:              outcome.SiteID,
		HasChanges:          outcome.HasChanges,
		ScreenshotURL:       outcome.ScreenshotURL,
		ScreenshotBeforeURL: outcome.ScreenshotBeforeURL,
	}
	if outcome.ComparedSnapshotAt != nil {
		resp.ComparedDate = time.UnixMilli(*outcome.ComparedSnapshotAt).UTC().Format(time.RFC3339)
	}

	if !outcome.HasChanges {
		resp.Message = "No changes detected"
		if outcome.ComparedSnapshotAt == nil {
			resp.Message = "First snapshot captured"
		}
		return resp
	}

	ch := outcome.Change
	resp.DiffResult = &checkDiff{
		ChangesCount: ch.ChangesCount,
		AddedLines:   ch.AddedLines,
		RemovedLines: ch.RemovedLines,
		Summary:      ch.Summary,
	}
	resp.AIAnalysis = &summarize.Analysis{
		Summary:     ch.AISummary,
		Intent:      ch.AIIntent,
		Suggestions: ch.AISuggestions,
	}
	resp.Importance = ch.Importance
	return resp
}

func (s *Service) handleSiteHistory(w http.ResponseWriter, r *http.Request) {
	site := s.ownedSite(w, r)
	if site == nil {
		return
	}
	records, err := s.deps.Store.ListHistoryBySite(r.Context(), site.ID, 100)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	if records == nil {
		records = []*store.CheckRecord{}
	}
	writeJSON(w, 200, records)
}

func (s *Service) handleSiteSnapshots(w http.ResponseWriter, r *http.Request) {
	site := s.ownedSite(w, r)
	if site == nil {
		return
	}
	snaps, err := s.deps.Store.ListSnapshotsBySite(r.Context(), site.ID, 100)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	if snaps == nil {
		snaps = []*store.Snapshot{}
	}
	writeJSON(w, 200, snaps)
}

func (s *Service) handleSiteChanges(w http.ResponseWriter, r *http.Request) {
	site := s.ownedSite(w, r)
	if site == nil {
		return
	}
	changes, err := s.deps.Store.ListChangesBySite(r.Context(), site.ID, 100)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	if changes == nil {
		changes = []*store.Change{}
	}
	writeJSON(w, 200, changes)
}

func (s *Service) handleScreenshots(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFrom(r.Context())
	records, err := s.deps.Store.ListScreenshotHistory(r.Context(), tenant.ID, r.URL.Query().Get("siteId"), 100)
	if err != nil {
		writeError(w, 500, "internal error")
		return
	}
	if records == nil {
		records = []*store.CheckRecord{}
	}
	writeJSON(w, 200, records)
}

// ownedSite loads the site from the URL and enforces tenant ownership.
// Foreign sites 404 rather than 403 so IDs are not probeable.
func (s *Service) ownedSite(w http.ResponseWriter, r *http.Request) *store.Site {
	tenant := TenantFrom(r.Context())
	site, err := s.deps.Store.GetSite(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		writeError(w, 500, "internal error")
		return nil
	}
	if site == nil || site.TenantID != tenant.ID {
		writeError(w, 404, "site not found")
		return nil
	}
	return site
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
