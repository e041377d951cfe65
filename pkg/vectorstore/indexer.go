package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Kinds of stored findings.
const (
	KindLearning = "learning"
	KindReport   = "report"
)

// Embedder turns text into vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the subset of PGVectorStore used by the Indexer.
type Store interface {
	AddDocuments(ctx context.Context, docs []Document) error
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter Filter) ([]SimilaritySearchResult, error)
	GetContentByMetadata(ctx context.Context, filter Filter) ([]Document, error)
	DeleteByMetadata(ctx context.Context, filter Filter) (int64, error)
}

// Indexer embeds the output of a research job and makes it searchable.
type Indexer struct {
	Store    Store
	Embedder Embedder
	Splitter textsplitter.TextSplitter
}

// NewIndexer creates an indexer that splits reports into overlapping chunks.
func NewIndexer(store Store, embedder Embedder, chunkSize, chunkOverlap int) *Indexer {
	return &Indexer{
		Store:    store,
		Embedder: embedder,
		Splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Findings is what a finished research job contributes to the index.
type Findings struct {
	JobID     string
	Topic     string
	Learnings []string
	Report    string
}

// Index stores every learning as its own document and the report as chunks.
// It returns the number of documents written.
func (ix *Indexer) Index(ctx context.Context, f Findings) (int, error) {
	var contents []string
	var kinds []string
	for _, l := range f.Learnings {
		if strings.TrimSpace(l) == "" {
			continue
		}
		contents = append(contents, l)
		kinds = append(kinds, KindLearning)
	}
	if strings.TrimSpace(f.Report) != "" {
		chunks, err := ix.Splitter.SplitText(f.Report)
		if err != nil {
			return 0, fmt.Errorf("failed to split report: %w", err)
		}
		for _, c := range chunks {
			contents = append(contents, c)
			kinds = append(kinds, KindReport)
		}
	}
	if len(contents) == 0 {
		return 0, nil
	}

	vectors, err := ix.Embedder.EmbedTexts(ctx, contents)
	if err != nil {
		return 0, fmt.Errorf("failed to embed findings: %w", err)
	}

	docs := make([]Document, len(contents))
	for i, content := range contents {
		docs[i] = Document{
			Content: content,
			Metadata: map[string]any{
				"job_id": f.JobID,
				"topic":  f.Topic,
				"kind":   kinds[i],
				"chunk":  i,
			},
			Embedding: vectors[i],
		}
	}
	if err := ix.Store.AddDocuments(ctx, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Search returns the topK stored findings closest to query. A non-empty
// jobID restricts the search to that job.
func (ix *Indexer) Search(ctx context.Context, query string, topK int, jobID string) ([]SimilaritySearchResult, error) {
	vec, err := ix.Embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	return ix.Store.SimilaritySearch(ctx, vec, topK, JobFilter(jobID))
}

// List returns the stored findings of a job, optionally of a single kind.
func (ix *Indexer) List(ctx context.Context, jobID, kind string) ([]Document, error) {
	filter := JobFilter(jobID)
	if kind != "" {
		filter["kind"] = kind
	}
	return ix.Store.GetContentByMetadata(ctx, filter)
}

// Delete removes every stored finding of jobID.
func (ix *Indexer) Delete(ctx context.Context, jobID string) (int64, error) {
	if jobID == "" {
		return 0, fmt.Errorf("job ID is required")
	}
	return ix.Store.DeleteByMetadata(ctx, JobFilter(jobID))
}

// JobFilter returns a metadata filter matching documents of jobID, or an
// empty filter when jobID is empty.
func JobFilter(jobID string) Filter {
	if jobID == "" {
		return Filter{}
	}
	return Filter{"job_id": jobID}
}
