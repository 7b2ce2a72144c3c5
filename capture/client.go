package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/sitewatch/blob"
	"github.com/hazyhaar/sitewatch/normalize"
	"github.com/hazyhaar/sitewatch/safeurl"
)

// ClientConfig configures the remote capture client.
type ClientConfig struct {
	// Endpoint is the capture agent's /capture URL.
	Endpoint string
	// AuthToken, when set, is sent as a bearer token.
	AuthToken string
	// Timeout bounds the whole capture round trip. It must cover the
	// agent's own navigation budget. Default: 90s.
	Timeout time.Duration

	Logger *slog.Logger
}

func (c *ClientConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 90 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// agentResponse is the capture agent's wire shape. Untrusted: every field
// is validated before use.
type agentResponse struct {
	HTML          string `json:"html"`
	Title         string `json:"title"`
	ScreenshotURL string `json:"screenshotUrl"`
	// ScreenshotB64 carries inline image data from agents without their
	// own storage. Preferred over screenshotUrl only when the latter is empty.
	ScreenshotB64 string `json:"screenshot,omitempty"`
	Timestamp     int64  `json:"timestamp"`
	Error         string `json:"error,omitempty"`
}

// Client delegates captures to a remote agent over HTTP and normalizes
// the returned HTML locally.
type Client struct {
	cfg        ClientConfig
	client     *http.Client
	normalizer *normalize.Normalizer
	blobs      blob.Store
}

// NewClient creates a Client. blobs may be nil; it is only used to store
// inline screenshot data returned by agents without their own storage.
func NewClient(cfg ClientConfig, blobs blob.Store) *Client {
	cfg.defaults()
	return &Client{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		normalizer: normalize.New(),
		blobs:      blobs,
	}
}

// Capture sends the request to the agent and validates its response.
func (c *Client) Capture(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("capture: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("capture: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("capture: agent request: %w", err)
	}
	defer resp.Body.Close()

	body, err := safeurl.LimitedReadAll(resp.Body, safeurl.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("capture: read agent response: %w", err)
	}

	var ar agentResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("capture: decode agent response (status %d): %w", resp.StatusCode, err)
	}
	if ar.Error != "" {
		return nil, fmt.Errorf("capture: agent error: %s", ar.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capture: agent status %d", resp.StatusCode)
	}
	if ar.HTML == "" {
		return nil, ErrEmptyPage
	}

	capturedAt := ar.Timestamp
	if capturedAt <= 0 {
		capturedAt = time.Now().UnixMilli()
	}

	res := &Result{
		RawHTML:       ar.HTML,
		Title:         ar.Title,
		ScreenshotURL: ar.ScreenshotURL,
		CapturedAt:    capturedAt,
	}
	content, err := c.normalizer.Text(ar.HTML)
	if err != nil {
		return nil, fmt.Errorf("capture: normalize: %w", err)
	}
	res.Content = content
	if md, err := c.normalizer.Markdown(ar.HTML); err == nil {
		res.Markdown = md
	} else {
		c.cfg.Logger.Warn("capture: markdown rendition failed", "url", req.URL, "error", err)
	}

	if res.ScreenshotURL == "" && ar.ScreenshotB64 != "" && c.blobs != nil {
		res.ScreenshotURL = c.storeInline(ctx, req.SiteID, capturedAt, ar.ScreenshotB64)
	}

	return res, nil
}

func (c *Client) storeInline(ctx context.Context, siteID string, capturedAt int64, b64 string) string {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		c.cfg.Logger.Warn("capture: invalid inline screenshot", "site_id", siteID, "error", err)
		return ""
	}
	key := fmt.Sprintf("%s/%d.jpg", siteID, capturedAt)
	url, err := c.blobs.Put(ctx, key, data, "image/jpeg")
	if err != nil {
		c.cfg.Logger.Warn("capture: inline screenshot upload failed", "site_id", siteID, "error", err)
		return ""
	}
	return url
}
