package app

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/answer"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/chunker"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/config"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/embedding"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/engine"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/ingest"
)

// App bundles the components assembled from one configuration.
type App struct {
	Config   *config.AppConfig
	DB       *engine.Database
	Embedder embedding.Embedder
	Provider answer.Provider
	Answerer *engine.Answerer
	Pipeline *ingest.Pipeline

	closeOnce sync.Once
	closeErr  error
}

// Open assembles every component described by cfg. The database is taken from
// the process registry and released by Close.
func Open(cfg *config.AppConfig) (*App, error) {
	emb, err := cfg.BuildEmbedder()
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if emb.Dimension() != cfg.Dimension {
		return nil, fmt.Errorf("%w: embedder produces %d values, database expects %d",
			engine.ErrDimensionMismatch, emb.Dimension(), cfg.Dimension)
	}

	provider, err := cfg.BuildProvider()
	if err != nil {
		return nil, fmt.Errorf("answer provider: %w", err)
	}

	db, err := engine.OpenShared(cfg.DatabaseOptions())
	if err != nil {
		return nil, err
	}

	slog.Debug("components assembled", "embedder", cfg.Embedder.Type, "answer", cfg.Answer.Type,
		"index", cfg.Index.Kind, "dim", cfg.Dimension)

	return &App{
		Config:   cfg,
		DB:       db,
		Embedder: emb,
		Provider: provider,
		Answerer: engine.NewAnswerer(db, emb, provider, cfg.Retrieval.TopK),
		Pipeline: ingest.NewPipeline(db, emb, chunker.New(cfg.Chunker.TargetSize)),
	}, nil
}

// Close releases this App's reference to the shared database. Later calls
// return the first result without releasing again.
func (a *App) Close() error {
	a.closeOnce.Do(func() { a.closeErr = a.DB.Close() })
	return a.closeErr
}
