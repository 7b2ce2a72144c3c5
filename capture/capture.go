// Package capture fetches a fully rendered web page and produces the
// normalized artifacts the rest of the pipeline consumes. Two
// implementations exist: Engine drives a local headless Chrome via Rod,
// Client delegates to a remote capture agent over HTTP. Both satisfy
// Service.
package capture

import (
	"context"
	"errors"
)

// Request describes one page capture. The JSON shape is the wire contract
// with the capture agent.
type Request struct {
	URL            string `json:"url"`
	TakeScreenshot bool   `json:"takeScreenshot"`
	SiteID         string `json:"siteId"`
}

// Result holds the rendered page plus its normalized renditions.
type Result struct {
	// RawHTML is the serialized DOM after rendering.
	RawHTML string
	// Content is the normalized comparison text, one line per block.
	Content string
	// Markdown is a readable rendition of the cleaned page.
	Markdown string
	// Title is the document title.
	Title string
	// ScreenshotURL is the public URL of the stored screenshot, or empty
	// when none was taken or storage failed.
	ScreenshotURL string
	// CapturedAt is the capture time in Unix milliseconds.
	CapturedAt int64
}

// Service captures one page.
type Service interface {
	Capture(ctx context.Context, req Request) (*Result, error)
}

// ErrEmptyPage is returned when rendering produced no usable document.
var ErrEmptyPage = errors.New("capture: rendered page is empty")
