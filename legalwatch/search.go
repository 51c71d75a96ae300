package legalwatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// duckDuckGoBaseURL is the HTML (non-JS) search endpoint.
const duckDuckGoBaseURL = "https://html.duckduckgo.com"

const (
	// maxResultsPerQuery bounds how many hits are enriched per topic.
	maxResultsPerQuery = 3
	// maxSnippetLength bounds the markdown excerpt per article.
	maxSnippetLength = 1500
	// maxFetchSize bounds article downloads.
	maxFetchSize = 2 << 20
)

// searchUserAgent identifies the watch to fetched sites.
const searchUserAgent = "contractwatch/1.0 (legal update monitor)"

// SearchResult is one enriched search hit.
type SearchResult struct {
	Title   string
	URL     string
	Excerpt string
}

// Searcher finds and extracts recent web content for legal topics. Results
// feed the watch prompt as grounding material.
type Searcher struct {
	httpClient *http.Client
	baseURL    string
	converter  *md.Converter
}

// NewSearcher creates a web searcher. baseURL overrides the search endpoint
// for tests; empty uses DuckDuckGo.
func NewSearcher(baseURL string) *Searcher {
	if baseURL == "" {
		baseURL = duckDuckGoBaseURL
	}

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &Searcher{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		converter:  converter,
	}
}

// Search runs a query and returns enriched results. Individual article
// failures are skipped; the search degrades rather than fails.
func (s *Searcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	searchURL := fmt.Sprintf("%s/html/?q=%s", s.baseURL, url.QueryEscape(query))
	body, err := s.fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	hits := parseResultLinks(body)
	if len(hits) > maxResultsPerQuery {
		hits = hits[:maxResultsPerQuery]
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		excerpt := s.extractArticle(ctx, hit.URL)
		results = append(results, SearchResult{
			Title:   hit.Title,
			URL:     hit.URL,
			Excerpt: excerpt,
		})
	}
	return results, nil
}

// extractArticle downloads a page and reduces it to a markdown excerpt.
// Returns empty on any failure.
func (s *Searcher) extractArticle(ctx context.Context, pageURL string) string {
	body, err := s.fetch(ctx, pageURL)
	if err != nil {
		return ""
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
	if err != nil {
		return ""
	}

	markdown, err := s.converter.ConvertString(article.Content)
	if err != nil {
		markdown = article.TextContent
	}

	markdown = strings.TrimSpace(markdown)
	if len(markdown) > maxSnippetLength {
		markdown = markdown[:maxSnippetLength]
	}
	return markdown
}

// fetch downloads a URL with size and time bounds.
func (s *Searcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
}

// resultLink is a raw search hit before enrichment.
type resultLink struct {
	Title string
	URL   string
}

// parseResultLinks pulls result anchors out of a DuckDuckGo HTML response.
func parseResultLinks(body []byte) []resultLink {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var links []resultLink
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			href := attr(n, "href")
			title := strings.TrimSpace(nodeText(n))
			if href != "" && title != "" {
				links = append(links, resultLink{Title: title, URL: resolveRedirect(href)})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

// resolveRedirect unwraps DuckDuckGo's uddg redirect parameter.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
