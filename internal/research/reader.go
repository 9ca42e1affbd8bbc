package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	fetchTimeout = 30 * time.Second

	// Pages are truncated so a single source cannot dominate a research
	// artifact.
	maxPageChars = 5000
)

// PageFetcher turns a URL into markdown suitable for prompt context.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

type Page struct {
	Url      string `json:"url"`
	Markdown string `json:"markdown"`
}

// PageReader fetches pages through a Crawl4AI markdown endpoint.
type PageReader struct {
	client *resty.Client
}

var _ PageFetcher = &PageReader{}

func NewPageReader(baseURL string) *PageReader {
	return &PageReader{client: resty.New().SetBaseURL(baseURL)}
}

type readerResponse struct {
	Success  bool   `json:"success"`
	Markdown string `json:"markdown"`
	Error    string `json:"error"`
}

func (r *PageReader) Fetch(ctx context.Context, url string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	rb := map[string]string{"url": url, "f": "fit"}

	res, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(rb).
		Post("/md")

	if err != nil {
		slog.Error("page fetch failed", "url", url, "error", err)
		return Page{}, fmt.Errorf("page fetch failed: %w", err)
	}

	if !res.IsSuccess() {
		slog.Error("page reader returned error", "status_code", res.StatusCode(), "body", res.String())
		return Page{}, fmt.Errorf("page reader returned status %d", res.StatusCode())
	}

	var parsed readerResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return Page{}, fmt.Errorf("error parsing page reader response: %w", err)
	}

	if !parsed.Success {
		return Page{}, fmt.Errorf("page reader failed to convert %s: %s", url, parsed.Error)
	}

	markdown := parsed.Markdown
	if runes := []rune(markdown); len(runes) > maxPageChars {
		markdown = string(runes[:maxPageChars])
	}

	return Page{Url: url, Markdown: markdown}, nil
}
