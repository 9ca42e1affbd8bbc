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
	searchTimeout     = 15 * time.Second
	DefaultMaxResults = 5
	defaultCategories = "general"
	defaultLanguage   = "zh-CN"
)

// Searcher is the part of the research toolkit that finds candidate sources
// for a query.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

type SearchResult struct {
	Title   string `json:"title"`
	Url     string `json:"url"`
	Content string `json:"content"`
}

type SearchOptions struct {
	Categories string
	Language   string
	Engines    string
	MaxResults int
}

// SearxClient queries a SearXNG instance through its JSON API.
type SearxClient struct {
	client *resty.Client
}

var _ Searcher = &SearxClient{}

func NewSearxClient(baseURL string) *SearxClient {
	return &SearxClient{client: resty.New().SetBaseURL(baseURL)}
}

type searxResponse struct {
	Results []SearchResult `json:"results"`
}

func (s *SearxClient) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if opts.Categories == "" {
		opts.Categories = defaultCategories
	}
	if opts.Language == "" {
		opts.Language = defaultLanguage
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	params := map[string]string{
		"q":          query,
		"format":     "json",
		"categories": opts.Categories,
		"language":   opts.Language,
	}
	if opts.Engines != "" {
		params["engines"] = opts.Engines
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/search")

	if err != nil {
		slog.Error("search request failed", "query", query, "error", err)
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	if !res.IsSuccess() {
		slog.Error("search engine returned error", "status_code", res.StatusCode(), "body", res.String())
		return nil, fmt.Errorf("search engine returned status %d", res.StatusCode())
	}

	var parsed searxResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("error parsing search response: %w", err)
	}

	results := parsed.Results
	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}

	return results, nil
}
