// Package websearch queries the DuckDuckGo HTML endpoint, which needs no API key.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultBaseURL   = "https://html.duckduckgo.com/html/"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodyBytes     = 5 << 20
	maxLimit         = 10
)

var (
	titleRe      = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.+?)</a>`)
	snippetRe    = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.+?)</a>`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// DuckDuckGo searches the web.
type DuckDuckGo struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
}

// New builds a DuckDuckGo searcher. Empty baseURL uses DefaultBaseURL.
func New(baseURL string, timeout time.Duration) *DuckDuckGo {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DuckDuckGo{
		BaseURL:   baseURL,
		Timeout:   timeout,
		UserAgent: defaultUserAgent,
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
	}
}

// Search returns up to limit results (at most 10).
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search http status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	results := parseResults(string(body))
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// parseResults pairs result titles with snippets in page order.
func parseResults(page string) []Result {
	titles := titleRe.FindAllStringSubmatch(page, 30)
	snippets := snippetRe.FindAllStringSubmatch(page, 30)

	var out []Result
	for i, m := range titles {
		target := resolveURL(strings.ReplaceAll(m[1], "&amp;", "&"))
		title := cleanHTML(m[2])
		if target == "" || title == "" {
			continue
		}
		r := Result{Title: title, URL: target}
		if i < len(snippets) {
			r.Snippet = cleanHTML(snippets[i][1])
		}
		out = append(out, r)
	}
	return out
}

// resolveURL unwraps DuckDuckGo's //duckduckgo.com/l/?uddg=... redirect.
func resolveURL(raw string) string {
	if strings.Contains(raw, "uddg=") {
		if strings.HasPrefix(raw, "//") {
			raw = "https:" + raw
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return ""
}

func cleanHTML(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
