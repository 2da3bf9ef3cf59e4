// Package rag provides retrieval-augmented answering over a local
// document-embedding index. The index itself is an opaque collaborator:
// embedding and similarity search are delegated to langchaingo and
// chromem-go, no vector math lives here.
package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/coach60/internal/identity"
	chromem "github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNoCredential is returned when a query-time embedding is attempted
// without a learner credential in the context.
var ErrNoCredential = errors.New("no credential available for embedding")

func newEmbedder(baseURL, model, apiKey string) (*embeddings.EmbedderImpl, error) {
	client, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(baseURL),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// NewStaticEmbeddingFunc embeds with a fixed API key. Used by the offline
// indexer, which runs with the operator's own key.
func NewStaticEmbeddingFunc(baseURL, model, apiKey string) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		embedder, err := newEmbedder(baseURL, model, apiKey)
		if err != nil {
			return nil, err
		}
		return embedder.EmbedQuery(ctx, text)
	}
}

// NewRequestEmbeddingFunc embeds with the credential carried by the request
// context. Used at query time, where every learner brings their own key.
func NewRequestEmbeddingFunc(baseURL, model string) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		credential := identity.CredentialFromContext(ctx)
		if credential == "" {
			return nil, ErrNoCredential
		}
		embedder, err := newEmbedder(baseURL, model, credential)
		if err != nil {
			return nil, err
		}
		return embedder.EmbedQuery(ctx, text)
	}
}
