package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/answer"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/embedding"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

// DefaultTopK is how many segments feed the answer context.
const DefaultTopK = 3

type RetrievalResult struct {
	Question string      `json:"question"`
	Answer   string      `json:"answer"`
	Sources  []types.Hit `json:"sources"`
}

// Answerer runs the question pipeline: embed, search, build context, answer.
type Answerer struct {
	db       *Database
	embedder embedding.Embedder
	provider answer.Provider
	topK     int
}

func NewAnswerer(db *Database, emb embedding.Embedder, provider answer.Provider, topK int) *Answerer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Answerer{db: db, embedder: emb, provider: provider, topK: topK}
}

// Retrieve embeds question and returns the nearest stored segments.
func (a *Answerer) Retrieve(ctx context.Context, question string) ([]types.Hit, error) {
	vecs, err := a.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("%w: embed question: %w", ErrProviderFailure, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for 1 question", ErrProviderFailure, len(vecs))
	}
	slog.Debug("question embedded", "dim", len(vecs[0]))

	hits, err := a.db.Search(vecs[0], a.topK)
	if err != nil {
		return nil, err
	}
	slog.Debug("search returned", "results", len(hits))
	return hits, nil
}

// Answer retrieves context for question and asks the answer provider.
func (a *Answerer) Answer(ctx context.Context, question string) (*RetrievalResult, error) {
	hits, err := a.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	contextText := BuildContext(hits)
	slog.Debug("context built", "preview", preview(contextText, 100))

	ans, err := a.provider.Answer(ctx, question, contextText)
	if err != nil {
		return nil, fmt.Errorf("%w: answer: %w", ErrProviderFailure, err)
	}
	return &RetrievalResult{Question: question, Answer: ans, Sources: hits}, nil
}

// BuildContext joins hit contents with newlines, closest first.
func BuildContext(hits []types.Hit) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Content
	}
	return strings.Join(parts, "\n")
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
