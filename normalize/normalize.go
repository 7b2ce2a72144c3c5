// Package normalize turns raw rendered markup into comparison-stable
// representations: a flat line-oriented text form used by the diff engine,
// a cleaned HTML form, and a markdown rendition for history/compare views.
//
// Comparing rendered text rather than markup structure keeps the diff
// robust against attribute reordering, whitespace churn, and auto-generated
// ids while still catching copy and pricing changes.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// noiseElements are dropped entirely, subtree included.
var noiseElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"meta":     true,
	"link":     true,
}

// noiseMarkers flag advertising, tracking, analytics, and cookie-consent
// widgets by class or id substring.
var noiseMarkers = []string{"ad", "advertisement", "tracking", "analytics", "cookie"}

// blockElements delimit lines in the text form.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figcaption": true, "figure": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "td": true, "th": true, "tr": true,
	"ul": true,
}

// Normalizer holds the sanitizer policy and markdown converter, both safe
// for reuse across captures.
type Normalizer struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Text produces the flat text representation used as the diff baseline:
// noise elements removed, one line per block element, whitespace runs
// collapsed, blank lines dropped.
func (n *Normalizer) Text(rawHTML string) (string, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("normalize: parse: %w", err)
	}
	prune(root)

	var lines []string
	var cur strings.Builder
	flush := func() {
		if line := CleanText(cur.String()); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			cur.WriteString(node.Data)
			cur.WriteByte(' ')
			return
		}
		isBlock := node.Type == html.ElementNode && blockElements[node.Data]
		if isBlock {
			flush()
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if isBlock {
			flush()
		}
	}
	walk(root)
	flush()

	return strings.Join(lines, "\n"), nil
}

// Clean strips noise elements and volatile attributes from rawHTML and
// sanitizes the result. The output is stored alongside snapshots for the
// markdown rendition; it is not the diff input (Text is).
func (n *Normalizer) Clean(rawHTML string) (string, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("normalize: parse: %w", err)
	}
	prune(root)
	stripAttrs(root)

	var buf strings.Builder
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("normalize: render: %w", err)
	}
	return n.policy.Sanitize(buf.String()), nil
}

// Markdown renders the cleaned markup as markdown for human-facing
// history and compare payloads.
func (n *Normalizer) Markdown(rawHTML string) (string, error) {
	cleaned, err := n.Clean(rawHTML)
	if err != nil {
		return "", err
	}
	md, err := n.md.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("normalize: markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

var multiSpaceRe = regexp.MustCompile(`\s+`)

// CleanText collapses whitespace runs to single spaces, removes zero-width
// characters, and trims.
func CleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(text, " "))
}

// prune removes noise elements and anything whose class or id marks it as
// an ad, tracker, analytics, or cookie-consent widget.
func prune(node *html.Node) {
	var next *html.Node
	for c := node.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && (noiseElements[c.Data] || hasNoiseMarker(c)) {
			node.RemoveChild(c)
			continue
		}
		prune(c)
	}
}

func hasNoiseMarker(node *html.Node) bool {
	for _, attr := range node.Attr {
		if attr.Key != "class" && attr.Key != "id" {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, marker := range noiseMarkers {
			if strings.Contains(val, marker) {
				return true
			}
		}
	}
	return false
}

// stripAttrs drops event handlers, inline styling, custom data attributes,
// and class/id — all noise for textual comparison.
func stripAttrs(node *html.Node) {
	if node.Type == html.ElementNode && len(node.Attr) > 0 {
		kept := node.Attr[:0]
		for _, attr := range node.Attr {
			key := strings.ToLower(attr.Key)
			switch {
			case strings.HasPrefix(key, "on"):
			case strings.HasPrefix(key, "data-"):
			case key == "style", key == "class", key == "id":
			default:
				kept = append(kept, attr)
			}
		}
		node.Attr = kept
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		stripAttrs(c)
	}
}
