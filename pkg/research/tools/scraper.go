package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultOCRURL is the Mistral OCR endpoint.
const DefaultOCRURL = "https://api.mistral.ai/v1/ocr"

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type ocrResponse struct {
	Pages []ocrPage `json:"pages"`
}

// PDFScraper extracts the text of a PDF with the Mistral OCR API.
type PDFScraper struct {
	APIKey  string
	BaseURL string
	client  *http.Client
}

// NewPDFScraper returns a scraper, or nil when apiKey is empty.
func NewPDFScraper(apiKey string) *PDFScraper {
	if apiKey == "" {
		return nil
	}
	return &PDFScraper{APIKey: apiKey, BaseURL: DefaultOCRURL, client: &http.Client{}}
}

// Scrape returns the Markdown of every page of the PDF at pdfURL.
func (s *PDFScraper) Scrape(ctx context.Context, pdfURL string) (string, error) {
	pdfURL = strings.Replace(pdfURL, "http://", "https://", 1)

	reqBody := map[string]any{
		"model": "mistral-ocr-latest",
		"document": map[string]string{
			"type":         "document_url",
			"document_url": pdfURL,
		},
		"include_image_base64": false,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	slog.Info("Scraping PDF", "url", pdfURL)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OCR request failed with status: %s, body: %s", resp.Status, string(body))
	}

	var out ocrResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	var b strings.Builder
	for _, page := range out.Pages {
		b.WriteString(fmt.Sprintf("- Page %d -\n", page.Index))
		b.WriteString(page.Markdown)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}
