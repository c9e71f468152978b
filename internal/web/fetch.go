// Package web fetches page text for the urlContent pipeline stage.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

var (
	// URLPattern matches http(s) URLs the way the urlContent stage scans
	// raw user input.
	URLPattern = regexp.MustCompile(`https?://[^\s]+`)

	multiNewlinePattern = regexp.MustCompile("\n{3,}")
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

// Fetcher retrieves the readable text of a page. The pipeline depends on
// this interface; tests substitute fakes.
type Fetcher interface {
	FetchSiteText(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages over plain HTTP and strips markup.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	maxLength int
}

// NewHTTPFetcher creates a fetcher with bounded response size and a
// 60 second per-request timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: 60 * time.Second},
		maxBytes:  2 << 20,
		maxLength: 50000,
	}
}

// FetchSiteText fetches the URL and returns its readable text content.
func (f *HTTPFetcher) FetchSiteText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; compass/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	var text string
	if strings.Contains(contentType, "text/plain") || strings.Contains(contentType, "text/markdown") {
		text = string(body)
	} else {
		text, err = extractPageText(string(body))
		if err != nil {
			return "", fmt.Errorf("failed to extract text: %w", err)
		}
	}

	text = cleanText(text)
	if len(text) > f.maxLength {
		text = text[:f.maxLength] + "\n\n[...truncated...]"
	}
	return text, nil
}

// extractPageText walks the HTML tree and collects visible text,
// skipping chrome elements.
func extractPageText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	walkText(doc, &sb, 0)
	return sb.String(), nil
}

func walkText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 50 {
		return
	}

	switch n.Type {
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header":
			return
		case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "tr":
			sb.WriteString("\n")
		case "br":
			sb.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb, depth+1)
	}
}

// cleanText collapses runs of whitespace left behind by markup removal.
func cleanText(s string) string {
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	s = multiSpacePattern.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
