package tools

import (
	"fmt"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// NewSearchService returns the search backend selected by cfg.SearchProvider.
func NewSearchService(cfg *config.Config) (research.SearchService, error) {
	switch cfg.SearchProvider {
	case "", "firecrawl":
		return NewFirecrawl(cfg.FirecrawlApiKey, cfg.FirecrawlURL), nil
	case "arxiv":
		var scraper *PDFScraper
		if cfg.ArxivFullText {
			if cfg.MistralApiKey == "" {
				return nil, fmt.Errorf("ARXIV_FULL_TEXT requires MISTRAL_API_KEY")
			}
			scraper = NewPDFScraper(cfg.MistralApiKey)
		}
		return NewArxiv(scraper), nil
	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.SearchProvider)
	}
}
