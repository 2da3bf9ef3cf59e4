package rag

import (
	"context"
	"errors"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
)

// ErrEmptyIndex is returned when the index holds no documents.
var ErrEmptyIndex = errors.New("document index is empty")

// Document is one chunk of course material to index.
type Document struct {
	ID      string
	Content string
	Source  string
}

// Result is one retrieved chunk with its similarity score.
type Result struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float32 `json:"similarity"`
}

// Index wraps a persistent chromem-go collection.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// OpenIndex opens (or creates) the persistent index at path. The embedding
// function is used for adds and text queries; callers that only query by
// precomputed embedding may pass a function that always errors.
func OpenIndex(path, collectionName string, embed chromem.EmbeddingFunc) (*Index, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collectionName, err)
	}

	return &Index{db: db, collection: collection}, nil
}

// Add embeds and stores document chunks.
func (ix *Index) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	converted := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		converted = append(converted, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: map[string]string{"source": doc.Source},
		})
	}

	if err := ix.collection.AddDocuments(ctx, converted, 2); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// Count returns the number of indexed chunks.
func (ix *Index) Count() int {
	return ix.collection.Count()
}

// Search embeds the query with the collection's embedding function and
// returns the k most similar chunks.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	count := ix.collection.Count()
	if count == 0 {
		return nil, ErrEmptyIndex
	}
	if k > count {
		k = count
	}

	hits, err := ix.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Content:    hit.Content,
			Source:     hit.Metadata["source"],
			Similarity: hit.Similarity,
		})
	}
	return results, nil
}
