package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/sitewatch/blob"
	"github.com/hazyhaar/sitewatch/normalize"
)

// EngineConfig configures the local Rod capture engine.
type EngineConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// UserAgent overrides the browser user agent. Empty = Chrome default.
	UserAgent string

	// ViewportWidth/ViewportHeight set the emulated viewport. Default: 1280x800.
	ViewportWidth  int
	ViewportHeight int

	// NavTimeout bounds navigation plus load. Default: 60s.
	NavTimeout time.Duration
	// IdleTimeout bounds the network-idle wait. Exceeding it is tolerated.
	// Default: 20s.
	IdleTimeout time.Duration
	// SettleBudget bounds lazy-load scrolling. Default: 10s.
	SettleBudget time.Duration
	// ImageWait bounds waiting for images to finish loading. Default: 10s.
	ImageWait time.Duration

	// JPEGQuality for full-page screenshots. Default: 80.
	JPEGQuality int

	Logger *slog.Logger
}

func (c *EngineConfig) defaults() {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 800
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 20 * time.Second
	}
	if c.SettleBudget <= 0 {
		c.SettleBudget = 10 * time.Second
	}
	if c.ImageWait <= 0 {
		c.ImageWait = 10 * time.Second
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 80
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine drives a headless Chrome via Rod. Each capture runs in its own
// incognito context so sites never share cookies or storage.
type Engine struct {
	cfg        EngineConfig
	normalizer *normalize.Normalizer
	blobs      blob.Store

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewEngine creates an Engine. Call Start to launch Chrome. blobs may be
// nil, in which case screenshots are skipped.
func NewEngine(cfg EngineConfig, blobs blob.Store) *Engine {
	cfg.defaults()
	return &Engine{
		cfg:        cfg,
		normalizer: normalize.New(),
		blobs:      blobs,
	}
}

// Start launches Chrome or connects to a remote instance.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("capture: engine is closed")
	}
	if e.browser != nil {
		return nil
	}

	log := e.cfg.Logger
	wsURL := e.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("capture: launch chrome: %w", err)
		}
		wsURL = u
		e.lnch = l
		log.Info("capture: launched local chrome", "url", wsURL)
	} else {
		log.Info("capture: connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("capture: connect: %w", err)
	}
	e.browser = b
	return nil
}

// Close shuts down Chrome.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.browser != nil {
		e.browser.Close()
		e.browser = nil
	}
	if e.lnch != nil {
		e.lnch.Cleanup()
		e.lnch = nil
	}
	return nil
}

// Capture renders the page, waits for it to settle, and returns the DOM
// with its normalized renditions. Screenshot storage failures are logged
// and leave ScreenshotURL empty rather than failing the capture.
func (e *Engine) Capture(ctx context.Context, req Request) (*Result, error) {
	e.mu.Lock()
	b := e.browser
	e.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("capture: engine not started")
	}

	log := e.cfg.Logger

	// Fresh incognito context per capture: no shared cookies or storage
	// between monitored sites.
	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("capture: incognito: %w", err)
	}

	page, err := stealth.Page(incognito)
	if err != nil {
		return nil, fmt.Errorf("capture: create page: %w", err)
	}
	defer page.Close()

	if e.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: e.cfg.UserAgent}); err != nil {
			log.Warn("capture: set user agent failed", "error", err)
		}
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             e.cfg.ViewportWidth,
		Height:            e.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		log.Warn("capture: set viewport failed", "error", err)
	}

	navCtx, cancelNav := context.WithTimeout(ctx, e.cfg.NavTimeout)
	defer cancelNav()
	if err := page.Context(navCtx).Navigate(req.URL); err != nil {
		return nil, fmt.Errorf("capture: navigate %s: %w", req.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("capture: wait load timeout", "url", req.URL, "error", err)
	}

	// Network idle is best effort: heavy pages with long-polling never go
	// idle, and the capture proceeds with whatever has rendered.
	idleCtx, cancelIdle := context.WithTimeout(ctx, e.cfg.IdleTimeout)
	page.Context(idleCtx).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	cancelIdle()

	e.settle(ctx, page)

	capturedAt := time.Now()
	res := &Result{CapturedAt: capturedAt.UnixMilli()}

	if title, err := page.Context(ctx).Eval(`() => document.title`); err == nil {
		res.Title = title.Value.Str()
	} else {
		log.Warn("capture: read title failed", "url", req.URL, "error", err)
	}

	htmlRes, err := page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("capture: serialize DOM: %w", err)
	}
	res.RawHTML = htmlRes.Value.Str()
	if res.RawHTML == "" {
		return nil, ErrEmptyPage
	}

	content, err := e.normalizer.Text(res.RawHTML)
	if err != nil {
		return nil, fmt.Errorf("capture: normalize: %w", err)
	}
	res.Content = content
	if md, err := e.normalizer.Markdown(res.RawHTML); err == nil {
		res.Markdown = md
	} else {
		log.Warn("capture: markdown rendition failed", "url", req.URL, "error", err)
	}

	if req.TakeScreenshot && e.blobs != nil {
		res.ScreenshotURL = e.screenshot(ctx, page, req.SiteID, capturedAt)
	}

	return res, nil
}

// settle scrolls through the page to trigger lazy-loaded content, waits
// for images, and scrolls back to the top. Failures here degrade the
// screenshot, not the capture.
func (e *Engine) settle(ctx context.Context, page *rod.Page) {
	log := e.cfg.Logger

	scrollCtx, cancel := context.WithTimeout(ctx, e.cfg.SettleBudget)
	defer cancel()
	if _, err := page.Context(scrollCtx).Eval(`async () => {
		const step = 300;
		const delay = ms => new Promise(r => setTimeout(r, ms));
		let pos = 0;
		while (pos < document.body.scrollHeight) {
			window.scrollTo(0, pos);
			pos += step;
			await delay(100);
		}
		window.scrollTo(0, 0);
	}`); err != nil {
		log.Debug("capture: lazy-load scroll interrupted", "error", err)
	}

	imgCtx, cancelImg := context.WithTimeout(ctx, e.cfg.ImageWait)
	defer cancelImg()
	if _, err := page.Context(imgCtx).Eval(`async () => {
		const imgs = Array.from(document.images).filter(i => !i.complete);
		await Promise.all(imgs.map(i => new Promise(r => {
			i.addEventListener('load', r, { once: true });
			i.addEventListener('error', r, { once: true });
		})));
	}`); err != nil {
		log.Debug("capture: image wait interrupted", "error", err)
	}
}

// screenshot takes a full-page JPEG and stores it under <siteID>/<unixms>.jpg.
func (e *Engine) screenshot(ctx context.Context, page *rod.Page, siteID string, at time.Time) string {
	log := e.cfg.Logger

	// Unpin fixed and sticky elements so they render once instead of
	// repeating on every viewport of the stitched full-page image.
	if _, err := page.Context(ctx).Eval(`() => {
		for (const el of document.querySelectorAll('*')) {
			const pos = getComputedStyle(el).position;
			if (pos === 'fixed' || pos === 'sticky') {
				el.style.position = 'static';
			}
		}
		document.body.style.height = 'auto';
		document.body.style.overflow = 'visible';
		document.documentElement.style.height = 'auto';
		document.documentElement.style.overflow = 'visible';
	}`); err != nil {
		log.Debug("capture: unpin overlays failed", "error", err)
	}

	quality := e.cfg.JPEGQuality
	data, err := page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &quality,
	})
	if err != nil {
		log.Warn("capture: screenshot failed", "site_id", siteID, "error", err)
		return ""
	}

	key := fmt.Sprintf("%s/%d.jpg", siteID, at.UnixMilli())
	url, err := e.blobs.Put(ctx, key, data, "image/jpeg")
	if err != nil {
		log.Warn("capture: screenshot upload failed", "site_id", siteID, "error", err)
		return ""
	}
	return url
}
