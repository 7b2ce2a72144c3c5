package capture

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sitewatch/safeurl"
)

// Handler exposes a Service over HTTP using the agent wire contract.
type Handler struct {
	service Service
	token   string
	logger  *slog.Logger
}

// NewHandler creates a Handler. token, when non-empty, is required as a
// bearer token on every request.
func NewHandler(service Service, token string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, token: token, logger: logger}
}

// Routes returns the agent's HTTP routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/capture", h.handleCapture)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request) {
	if h.token != "" && !safeurl.TokenEqual(bearerToken(r), h.token) {
		writeAgentError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAgentError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := safeurl.ValidateURL(req.URL); err != nil {
		writeAgentError(w, http.StatusBadRequest, "invalid url: "+err.Error())
		return
	}

	res, err := h.service.Capture(r.Context(), req)
	if err != nil {
		h.logger.Error("capture failed", "url", req.URL, "site_id", req.SiteID, "error", err)
		writeAgentError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agentResponse{
		HTML:          res.RawHTML,
		Title:         res.Title,
		ScreenshotURL: res.ScreenshotURL,
		Timestamp:     res.CapturedAt,
	})
}

func writeAgentError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(agentResponse{Error: msg})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
