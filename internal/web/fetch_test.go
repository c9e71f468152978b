package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestURLPattern(t *testing.T) {
	message := "read https://example.com/a then http://example.com/b and https://example.com/a again"
	got := URLPattern.FindAllString(message, -1)
	want := []string{"https://example.com/a", "http://example.com/b", "https://example.com/a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("matches = %v, want %v (order and duplicates preserved)", got, want)
	}

	if URLPattern.FindAllString("no links here, ftp://x does not count", -1) != nil {
		t.Fatal("matched a non-http scheme")
	}
}

func TestHTTPFetcher_FetchSiteText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>t</title><script>var x = 1;</script></head>
<body><nav>menu items</nav>
<h1>Heading</h1>
<p>First paragraph.</p>
<p>Second   paragraph.</p>
<footer>copyright</footer></body></html>`)
	}))
	defer server.Close()

	f := NewHTTPFetcher()
	text, err := f.FetchSiteText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchSiteText() error = %v", err)
	}

	for _, want := range []string{"Heading", "First paragraph.", "Second paragraph."} {
		if !strings.Contains(text, want) {
			t.Fatalf("text %q missing %q", text, want)
		}
	}
	for _, skip := range []string{"var x", "menu items", "copyright"} {
		if strings.Contains(text, skip) {
			t.Fatalf("text %q contains chrome content %q", text, skip)
		}
	}
}

func TestHTTPFetcher_PlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "just plain text\n<b>kept literally</b>")
	}))
	defer server.Close()

	f := NewHTTPFetcher()
	text, err := f.FetchSiteText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchSiteText() error = %v", err)
	}
	if !strings.Contains(text, "<b>kept literally</b>") {
		t.Fatalf("plain text was HTML-stripped: %q", text)
	}
}

func TestHTTPFetcher_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := NewHTTPFetcher()
	if _, err := f.FetchSiteText(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}

func TestHTTPFetcher_Truncation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, strings.Repeat("a", 60000))
	}))
	defer server.Close()

	f := NewHTTPFetcher()
	text, err := f.FetchSiteText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchSiteText() error = %v", err)
	}
	if !strings.HasSuffix(text, "[...truncated...]") {
		t.Fatal("oversized body not truncated")
	}
}

func TestSearchClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		fmt.Fprint(w, `{"results":[{"title":"a","url":"https://a","content":"first"},{"title":"b","url":"https://b","content":"second"}]}`)
	}))
	defer server.Close()

	c := NewSearchClient(server.URL, "key")
	hits, err := c.Search(context.Background(), "query")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 || hits[0].Content != "first" || hits[1].Content != "second" {
		t.Fatalf("hits = %+v, want backend order", hits)
	}
}
