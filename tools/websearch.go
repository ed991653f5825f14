package tools

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/m4xw311/tinker/config"
	"github.com/m4xw311/tinker/errors"
)

const (
	defaultSearchEndpoint  = "https://html.duckduckgo.com/html/"
	defaultSearchUserAgent = "Mozilla/5.0 (compatible; tinker/1.0)"
	maxSearchCount         = 10
	searchTimeout          = 15 * time.Second
)

type searchResult struct {
	Title       string
	URL         string
	Description string
}

// WebSearchTool queries the DuckDuckGo HTML endpoint. Results are cached per
// query and count, and outgoing requests are rate limited.
type WebSearchTool struct {
	client       *http.Client
	endpoint     string
	userAgent    string
	defaultCount int
	cache        *expirable.LRU[string, string]
	limiter      *rate.Limiter
}

func NewWebSearchTool(cfg config.WebSearch) *WebSearchTool {
	entries := cfg.CacheEntries
	if entries <= 0 {
		entries = 100
	}
	count := cfg.MaxResults
	if count <= 0 || count > maxSearchCount {
		count = 5
	}

	limit := rate.Inf
	burst := 1
	if cfg.RatePerMin > 0 {
		limit = rate.Limit(float64(cfg.RatePerMin) / 60.0)
		burst = cfg.RatePerMin
	}

	t := &WebSearchTool{
		client:       &http.Client{Timeout: searchTimeout},
		endpoint:     cfg.EndpointURL,
		userAgent:    cfg.UserAgent,
		defaultCount: count,
		cache:        expirable.NewLRU[string, string](entries, nil, cfg.CacheTTL),
		limiter:      rate.NewLimiter(limit, burst),
	}
	if t.endpoint == "" {
		t.endpoint = defaultSearchEndpoint
	}
	if t.userAgent == "" {
		t.userAgent = defaultSearchUserAgent
	}
	return t
}

func (t *WebSearchTool) Name() string { return "web_search" }
func (t *WebSearchTool) Description() string {
	return "Searches the web and returns titles, URLs and snippets of the top results. Use it for research and documentation only."
}
func (t *WebSearchTool) Params() []Param {
	return []Param{
		{Name: "query", Type: ParamString, Description: "Search query string."},
		{Name: "count", Type: ParamNumber, Description: fmt.Sprintf("Number of results to return (1-%d).", maxSearchCount), Default: t.defaultCount},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return Failure(errors.ErrCapabilityArgumentInvalid, "query is required")
	}
	count := intArg(args, "count")
	if count < 1 || count > maxSearchCount {
		count = t.defaultCount
	}

	key := fmt.Sprintf("%s:%d", query, count)
	if cached, ok := t.cache.Get(key); ok {
		return Ok(cached)
	}

	if !t.limiter.Allow() {
		return Failure(errors.ErrCapabilityExecutionFailed, "web search rate limit exceeded, try again later")
	}

	results, err := t.search(ctx, query, count)
	if err != nil {
		return Failuref(errors.ErrCapabilityExecutionFailed, "web search failed: %v", err)
	}

	formatted := formatSearchResults(query, results)
	t.cache.Add(key, formatted)
	return Ok(formatted)
}

func (t *WebSearchTool) search(ctx context.Context, query string, count int) ([]searchResult, error) {
	searchURL := t.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return extractResults(string(body), count), nil
}

var (
	resultLinkRe    = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	resultSnippetRe = regexp.MustCompile(`<a class="result__snippet[^"]*".*?>([\s\S]*?)</a>`)
	htmlTagRe       = regexp.MustCompile(`<[^>]+>`)
)

func extractResults(page string, count int) []searchResult {
	links := resultLinkRe.FindAllStringSubmatch(page, count+5)
	snippets := resultSnippetRe.FindAllStringSubmatch(page, count+5)

	var results []searchResult
	for i := 0; i < len(links) && i < count; i++ {
		r := searchResult{
			Title: cleanHTML(links[i][2]),
			URL:   unwrapRedirect(html.UnescapeString(links[i][1])),
		}
		if i < len(snippets) {
			r.Description = cleanHTML(snippets[i][1])
		}
		results = append(results, r)
	}
	return results
}

func cleanHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTagRe.ReplaceAllString(s, "")))
}

// unwrapRedirect extracts the target of a //duckduckgo.com/l/?uddg=... link.
func unwrapRedirect(raw string) string {
	if !strings.Contains(raw, "uddg=") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return raw
}

func formatSearchResults(query string, results []searchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for: %s", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for: %s\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Description)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
