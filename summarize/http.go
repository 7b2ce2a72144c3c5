package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/sitewatch/safeurl"
)

// Config configures the HTTPAnalyzer.
type Config struct {
	// Endpoint is an OpenAI-compatible chat completions URL.
	Endpoint string
	// APIKey is sent as a bearer token. Optional for local models.
	APIKey string
	// Model is the model identifier requested from the endpoint.
	Model string
	// Timeout bounds the whole completion call. Default: 60s.
	Timeout time.Duration
	// MaxPromptLines caps how many added/removed lines enter the prompt.
	// Default: 20.
	MaxPromptLines int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxPromptLines <= 0 {
		c.MaxPromptLines = 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// HTTPAnalyzer calls an OpenAI-compatible chat endpoint and parses the
// model output into an Analysis.
type HTTPAnalyzer struct {
	config Config
	client *http.Client
}

// NewHTTP creates an HTTPAnalyzer.
func NewHTTP(cfg Config) *HTTPAnalyzer {
	cfg.defaults()
	return &HTTPAnalyzer{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze sends the diff to the model and parses the JSON it returns.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, siteName string, added, removed []string) (*Analysis, error) {
	payload, err := json.Marshal(chatRequest{
		Model: a.config.Model,
		Messages: []chatMessage{
			{Role: "user", Content: a.buildPrompt(siteName, added, removed)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("summarize: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summarize: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := safeurl.LimitedReadAll(resp.Body, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("summarize: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summarize: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("summarize: decode response: %w", err)
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("summarize: upstream error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("summarize: empty choices")
	}

	analysis, err := ParseModelOutput(cr.Choices[0].Message.Content)
	if err != nil {
		a.config.Logger.Warn("summarize: unparseable model output", "error", err)
		return nil, err
	}
	return analysis, nil
}

func (a *HTTPAnalyzer) buildPrompt(siteName string, added, removed []string) string {
	limit := a.config.MaxPromptLines
	var b strings.Builder
	b.WriteString("You are a web marketing analyst. The monitored site \"")
	b.WriteString(siteName)
	b.WriteString("\" changed.\n\nAdded content:\n")
	writeLines(&b, added, limit)
	b.WriteString("\nRemoved content:\n")
	writeLines(&b, removed, limit)
	b.WriteString(`
Analyze the change. Respond with JSON only, in this exact shape:
{"summary": "up to three bullet points of what changed", "intent": "one or two sentences on the likely intent", "suggestions": ["up to three concrete counter-actions"]}`)
	return b.String()
}

func writeLines(b *strings.Builder, lines []string, limit int) {
	if len(lines) > limit {
		lines = lines[:limit]
	}
	if len(lines) == 0 {
		b.WriteString("(none)\n")
		return
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
}

// ParseModelOutput extracts an Analysis from raw model text. Markdown code
// fences are stripped and the first balanced-brace region is parsed, since
// models routinely wrap or prefix their JSON.
func ParseModelOutput(text string) (*Analysis, error) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("summarize: no JSON object in model output")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &analysis); err != nil {
		return nil, fmt.Errorf("summarize: parse model JSON: %w", err)
	}
	if analysis.Summary == "" {
		return nil, fmt.Errorf("summarize: model JSON missing summary")
	}
	return &analysis, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
