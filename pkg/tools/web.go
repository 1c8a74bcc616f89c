package tools

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

const webTimeout = 30 * time.Second

// fetchURLHandler retrieves a URL's body over plain HTTP (§4.F
// fetch_url). Only http/https schemes are accepted; everything else is
// rejected before a request is ever made.
func fetchURLHandler(ctx context.Context, _ CallContext, args map[string]any) Result {
	raw := argString(args, "url")
	if raw == "" {
		return Result{Success: false, Error: "url is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Result{Success: false, Error: "url must be an http(s) URL"}
	}

	reqCtx, cancel := context.WithTimeout(ctx, webTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, raw, nil)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOutputBytes*4))
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	return Result{Success: true, Output: map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(body),
	}}
}

// WebSearcher is implemented by a search backend the Engine wires in
// (e.g. a chromedp-driven SERP scraper for JS-rendered results pages).
// web_search is a no-op stub without one configured, never a panic.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// SearchResult is one web_search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// newWebSearchHandler closes over an optional WebSearcher so
// ProjectExtras can register web_search even when no backend is
// configured yet (returns a clear error rather than refusing to
// register the tool at all).
func newWebSearchHandler(searcher WebSearcher) Handler {
	return func(ctx context.Context, _ CallContext, args map[string]any) Result {
		query := argString(args, "query")
		if query == "" {
			return Result{Success: false, Error: "query is required"}
		}
		if searcher == nil {
			return Result{Success: false, Error: "web search is not configured"}
		}
		limit := argInt(args, "limit", 5)
		reqCtx, cancel := context.WithTimeout(ctx, webTimeout)
		defer cancel()
		results, err := searcher.Search(reqCtx, query, limit)
		if err != nil {
			return Result{Success: false, Error: err.Error()}
		}
		return Result{Success: true, Output: map[string]any{"results": results}}
	}
}
