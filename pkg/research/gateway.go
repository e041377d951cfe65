package research

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// SearchGateway wraps a SearchService and absorbs its failures. A failed
// lookup yields no documents rather than an error.
type SearchGateway struct {
	Service SearchService
	Timeout time.Duration
	Limit   int
	Logger  *slog.Logger
}

// NewSearchGateway returns a gateway with the default timeout and limit.
func NewSearchGateway(svc SearchService, logger *slog.Logger) *SearchGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchGateway{
		Service: svc,
		Timeout: DefaultSearchTimeout,
		Limit:   DefaultSearchLimit,
		Logger:  logger,
	}
}

// Search runs query and returns the documents that carry body text, in the
// order the service returned them.
func (g *SearchGateway) Search(ctx context.Context, query string) []Document {
	docs, err := g.Service.Search(ctx, query, g.Timeout, g.Limit)
	if err != nil {
		g.Logger.Error("Search failed", "query", query, "error", err)
		return nil
	}

	valid := make([]Document, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Markdown) == "" {
			continue
		}
		valid = append(valid, d)
	}
	if g.Limit > 0 && len(valid) > g.Limit {
		valid = valid[:g.Limit]
	}

	g.Logger.Info("Search complete", "query", query, "returned", len(docs), "usable", len(valid))
	return valid
}
