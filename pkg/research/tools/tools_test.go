package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/config"
)

func TestFirecrawlSearch(t *testing.T) {
	var got firecrawlRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"success":true,"data":[
			{"url":"https://a.example","title":"A","description":"first","markdown":"# A"},
			{"url":"https://b.example","title":"B","description":"second","markdown":""}
		]}`)
	}))
	defer ts.Close()

	fc := NewFirecrawl("fc-key", ts.URL+"/")
	docs, err := fc.Search(context.Background(), "solid state batteries", 15*time.Second, 5)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "https://a.example", docs[0].URL)
	assert.Equal(t, "# A", docs[0].Markdown)
	assert.Equal(t, "first", docs[0].Description)
	assert.Equal(t, "solid state batteries", got.Query)
	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, int64(15000), got.Timeout)
	assert.Equal(t, []string{"markdown"}, got.ScrapeOptions.Formats)
}

func TestFirecrawlErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusPaymentRequired, `{"error":"insufficient credits"}`},
		{"unsuccessful", http.StatusOK, `{"success":false,"error":"bad query"}`},
		{"malformed", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer ts.Close()

			_, err := NewFirecrawl("", ts.URL).Search(context.Background(), "q", time.Second, 1)

			assert.Error(t, err)
		})
	}
}

const arxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <published>2024-01-01T00:00:00Z</published>
    <title>Sodium-ion
      Batteries</title>
    <summary>  We study sodium-ion cells.  </summary>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <link href="http://arxiv.org/abs/2401.00001v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00001v1" rel="related" type="application/pdf"/>
  </entry>
</feed>`

func TestArxivSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all:sodium ion", r.URL.Query().Get("search_query"))
		assert.Equal(t, "3", r.URL.Query().Get("max_results"))
		fmt.Fprint(w, arxivFeed)
	}))
	defer ts.Close()

	a := NewArxiv(nil)
	a.BaseURL = ts.URL
	docs, err := a.Search(context.Background(), "sodium ion", time.Second, 3)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "http://arxiv.org/abs/2401.00001v1", docs[0].URL)
	assert.Equal(t, "Sodium-ion Batteries", docs[0].Title)
	assert.Equal(t, "We study sodium-ion cells.", docs[0].Markdown)
	assert.Equal(t, "Published 2024-01-01T00:00:00Z by Ada Lovelace, Alan Turing", docs[0].Description)
}

func TestArxivSearchWithFullText(t *testing.T) {
	ocr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		doc := body["document"].(map[string]any)
		assert.Equal(t, "https://arxiv.org/pdf/2401.00001v1", doc["document_url"])
		fmt.Fprint(w, `{"pages":[{"index":0,"markdown":"Full text page one"},{"index":1,"markdown":"page two"}]}`)
	}))
	defer ocr.Close()
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, arxivFeed)
	}))
	defer feed.Close()

	scraper := NewPDFScraper("mistral-key")
	scraper.BaseURL = ocr.URL
	a := NewArxiv(scraper)
	a.BaseURL = feed.URL

	docs, err := a.Search(context.Background(), "sodium ion", time.Second, 3)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "- Page 0 -\nFull text page one\n\n- Page 1 -\npage two", docs[0].Markdown)
}

func TestArxivScrapeFailureKeepsAbstract(t *testing.T) {
	ocr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ocr.Close()
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, arxivFeed)
	}))
	defer feed.Close()

	scraper := NewPDFScraper("mistral-key")
	scraper.BaseURL = ocr.URL
	a := NewArxiv(scraper)
	a.BaseURL = feed.URL

	docs, err := a.Search(context.Background(), "q", time.Second, 1)

	require.NoError(t, err)
	assert.Equal(t, "We study sodium-ion cells.", docs[0].Markdown)
}

func TestNewPDFScraperWithoutKey(t *testing.T) {
	assert.Nil(t, NewPDFScraper(""))
}

func TestNewSearchService(t *testing.T) {
	svc, err := NewSearchService(&config.Config{SearchProvider: "firecrawl"})
	require.NoError(t, err)
	assert.IsType(t, &Firecrawl{}, svc)

	svc, err = NewSearchService(&config.Config{SearchProvider: "arxiv"})
	require.NoError(t, err)
	assert.IsType(t, &Arxiv{}, svc)

	_, err = NewSearchService(&config.Config{SearchProvider: "arxiv", ArxivFullText: true})
	assert.Error(t, err)

	_, err = NewSearchService(&config.Config{SearchProvider: "bing"})
	assert.Error(t, err)
}
