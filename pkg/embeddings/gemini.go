package embeddings

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// MaxBatchSize is the largest number of texts sent in one embedding request.
const MaxBatchSize = 100

// GeminiEmbedder produces fixed-dimension embeddings with the Gemini API.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int32
}

// NewGeminiEmbedder creates an embedder for model with the given output dimension.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimension int) (*GeminiEmbedder, error) {
	return newGeminiEmbedder(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model, dimension)
}

func newGeminiEmbedder(ctx context.Context, cc *genai.ClientConfig, model string, dimension int) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model, dimension: int32(dimension)}, nil
}

// Dimension reports the length of every returned vector.
func (e *GeminiEmbedder) Dimension() int { return int(e.dimension) }

// EmbedText generates the embedding of a single text.
func (e *GeminiEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts generates embeddings for texts, batching requests. The result
// has one vector per input, in input order.
func (e *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		result = append(result, batch...)
	}
	return result, nil
}

func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	res, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &e.dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed texts: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding returned for text %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
