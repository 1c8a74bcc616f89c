package tools

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromedpSearcher implements WebSearcher by driving a headless Chrome
// instance against a JS-rendered results page, for queries the plain
// fetch_url handler can't resolve on its own (§4.F). Grounded on
// tests/common/browser.go's headless-allocator setup.
type ChromedpSearcher struct {
	resultsURL string // e.g. "https://html.duckduckgo.com/html/?q=%s"
	timeout    time.Duration
}

// NewChromedpSearcher builds a searcher against resultsURL, a template
// containing exactly one "%s" for the URL-escaped query. An empty
// resultsURL defaults to DuckDuckGo's HTML results endpoint, which
// renders without JS and so doesn't strictly need a browser, but is
// driven through chromedp anyway to share one code path with
// JS-rendered engines.
func NewChromedpSearcher(resultsURL string) *ChromedpSearcher {
	if resultsURL == "" {
		resultsURL = "https://html.duckduckgo.com/html/?q=%s"
	}
	return &ChromedpSearcher{resultsURL: resultsURL, timeout: webTimeout}
}

// Search navigates to the results page and scrapes the first limit
// result links and snippets.
func (c *ChromedpSearcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, c.timeout)
	defer cancelTimeout()

	target := fmt.Sprintf(c.resultsURL, url.QueryEscape(query))

	var titles, links, snippets []string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(resultExtractionScript(limit), &titles),
		chromedp.Evaluate(resultLinkScript(limit), &links),
		chromedp.Evaluate(resultSnippetScript(limit), &snippets),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp search: %w", err)
	}

	out := make([]SearchResult, 0, len(titles))
	for i := range titles {
		r := SearchResult{Title: titles[i]}
		if i < len(links) {
			r.URL = links[i]
		}
		if i < len(snippets) {
			r.Snippet = snippets[i]
		}
		out = append(out, r)
	}
	return out, nil
}

func resultExtractionScript(limit int) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll('.result__title')).slice(0, %d).map(e => e.innerText.trim())`, limit)
}

func resultLinkScript(limit int) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll('.result__title a')).slice(0, %d).map(e => e.href)`, limit)
}

func resultSnippetScript(limit int) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll('.result__snippet')).slice(0, %d).map(e => e.innerText.trim())`, limit)
}
