package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/coach60/internal/domain"
	"github.com/ashureev/coach60/internal/llm"
)

// answerInstruction frames the synthesis step: pedagogical Markdown with
// LaTeX-wrapped math, grounded in the retrieved course material.
const answerInstruction = `Answer the following question in a detailed, pedagogical way, strictly in
Markdown format. Always wrap mathematical equations in LaTeX: use $...$ for
inline equations and $$...$$ for display blocks. Base your answer on the
provided course excerpts; say so when they do not cover the question.`

// defaultTopK is how many chunks are retrieved per question.
const defaultTopK = 4

// answerTemperature keeps synthesis factual rather than creative.
const answerTemperature = 0.2

// Answer is a synthesized response with its supporting sources.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Result `json:"sources"`
}

// Service answers subject questions from the document index.
type Service struct {
	index  *Index
	client llm.CompletionClient
	model  string
}

// NewService creates the answering service. The model is the completion
// model used for synthesis (the fast tier by default).
func NewService(index *Index, client llm.CompletionClient, model string) *Service {
	if model == "" {
		model = llm.ModelFast
	}
	return &Service{index: index, client: client, model: model}
}

// Answer retrieves the most similar chunks for the question and synthesizes
// a single reply with the learner's own credential.
func (s *Service) Answer(ctx context.Context, credential, question string) (*Answer, error) {
	results, err := s.index.Search(ctx, question, defaultTopK)
	if err != nil {
		return nil, err
	}

	var prompt strings.Builder
	prompt.WriteString(answerInstruction)
	prompt.WriteString("\n\nCourse excerpts:\n")
	for i, r := range results {
		fmt.Fprintf(&prompt, "\n--- excerpt %d (%s) ---\n%s\n", i+1, r.Source, r.Content)
	}
	fmt.Fprintf(&prompt, "\nQuestion: %s\nAnswer:", question)

	reply, err := s.client.Complete(ctx, credential, s.model, answerTemperature,
		[]domain.Message{{Role: domain.RoleUser, Content: prompt.String()}})
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}

	return &Answer{Text: reply, Sources: results}, nil
}
