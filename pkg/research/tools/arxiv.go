package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

// DefaultArxivURL is the arXiv export API query endpoint.
const DefaultArxivURL = "https://export.arxiv.org/api/query"

// ArxivEntry holds one entry of the arXiv Atom feed
type ArxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []ArxivAuthor `xml:"author"`
	Link      []ArxivLink   `xml:"link"`
}

type ArxivAuthor struct {
	Name string `xml:"name"`
}

// ArxivLink holds an arXiv entry link
type ArxivLink struct {
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

// ArxivFeed holds the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv searches arXiv papers. The abstract is used as body text unless a
// PDF scraper is configured, in which case the full text replaces it.
type Arxiv struct {
	BaseURL string
	Scraper *PDFScraper
	client  *http.Client
}

// NewArxiv returns an arXiv search service. scraper may be nil.
func NewArxiv(scraper *PDFScraper) *Arxiv {
	return &Arxiv{
		BaseURL: DefaultArxivURL,
		Scraper: scraper,
		client:  &http.Client{},
	}
}

// Search queries the arXiv API and converts every entry to a document.
func (a *Arxiv) Search(ctx context.Context, query string, timeout time.Duration, limit int) ([]research.Document, error) {
	if limit <= 0 {
		limit = research.DefaultSearchLimit
	}

	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(limit))
	params.Add("start", "0")
	apiURL := a.BaseURL + "?" + params.Encode()

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv returned status %d: %s", resp.StatusCode, string(body))
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	slog.Info("arXiv search complete", "query", query, "entries", len(feed.Entry))

	docs := make([]research.Document, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		doc := entryDocument(entry)
		if a.Scraper != nil {
			if pdf := entry.pdfLink(); pdf != "" {
				// The scrape gets the caller's context; the search timeout
				// only bounds the feed lookup.
				text, err := a.Scraper.Scrape(ctx, pdf)
				if err != nil {
					slog.Warn("Failed to scrape PDF, using abstract", "url", pdf, "error", err)
				} else {
					doc.Markdown = text
				}
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func entryDocument(e ArxivEntry) research.Document {
	link := strings.TrimSpace(e.ID)
	for _, l := range e.Link {
		if l.Rel == "alternate" {
			link = l.Href
			break
		}
	}

	names := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		names = append(names, strings.TrimSpace(a.Name))
	}
	description := fmt.Sprintf("Published %s", strings.TrimSpace(e.Published))
	if len(names) > 0 {
		description += " by " + strings.Join(names, ", ")
	}

	return research.Document{
		URL:         link,
		Title:       collapseSpace(e.Title),
		Description: description,
		Markdown:    strings.TrimSpace(e.Summary),
	}
}

func (e ArxivEntry) pdfLink() string {
	for _, l := range e.Link {
		if l.Type == "application/pdf" || l.Title == "pdf" {
			return l.Href
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
