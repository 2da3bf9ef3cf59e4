package rag

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"
)

// Chunking parameters for the offline index build.
const (
	chunkSize    = 1000
	chunkOverlap = 100
)

var indexableExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// BuildIndex walks docsDir, splits every supported document into chunks,
// and adds them all to the index. Offline batch operation; meant to run
// once per corpus, not per request.
func BuildIndex(ctx context.Context, index *Index, docsDir string) (int, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	var docs []Document
	err := filepath.WalkDir(docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !indexableExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		chunks, err := splitFile(ctx, path, splitter)
		if err != nil {
			return fmt.Errorf("split %s: %w", path, err)
		}

		rel, err := filepath.Rel(docsDir, path)
		if err != nil {
			rel = path
		}
		for i, chunk := range chunks {
			docs = append(docs, Document{
				ID:      fmt.Sprintf("%s#%d", rel, i),
				Content: chunk,
				Source:  rel,
			})
		}

		slog.Info("Document split", "file", rel, "chunks", len(chunks))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk docs directory: %w", err)
	}

	if err := index.Add(ctx, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func splitFile(ctx context.Context, path string, splitter textsplitter.TextSplitter) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close document file", "path", path, "error", closeErr)
		}
	}()

	loaded, err := documentloaders.NewText(f).LoadAndSplit(ctx, splitter)
	if err != nil {
		return nil, fmt.Errorf("load and split: %w", err)
	}

	chunks := make([]string, 0, len(loaded))
	for _, doc := range loaded {
		chunks = append(chunks, doc.PageContent)
	}
	return chunks, nil
}
