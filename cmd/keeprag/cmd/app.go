package cmd

import (
	"github.com/keepstack/keeprag/internal/config"
	"github.com/keepstack/keeprag/internal/embed"
	"github.com/keepstack/keeprag/internal/ingest"
	"github.com/keepstack/keeprag/internal/search"
	"github.com/keepstack/keeprag/internal/store"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg    *config.Config
	store  *store.SQLiteStore
	worker *ingest.Worker
	engine *search.Engine
}

// buildApp loads configuration and wires the store, model client, worker,
// and engine. Callers must Close when done.
func buildApp() (*app, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Path, cfg.Model.Dimensions)
	if err != nil {
		return nil, err
	}

	client, err := embed.NewGeminiClient(embed.GeminiConfig{
		BaseURL:         cfg.Model.BaseURL,
		APIKey:          cfg.Model.APIKey,
		EmbeddingModel:  cfg.Model.EmbeddingModel,
		GenerationModel: cfg.Model.GenerationModel,
		Dimensions:      cfg.Model.Dimensions,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	cached := embed.NewCachedEmbedder(client, cfg.Model.CacheSize)

	worker := ingest.NewWorker(st, cached, client.GeneratorFor(cfg.Model.SummaryModel), ingest.Config{
		BatchSize:      cfg.Ingest.BatchSize,
		StuckThreshold: cfg.Ingest.StuckDuration(),
		ChunkTarget:    cfg.Ingest.ChunkCharTarget,
		ChunkMax:       cfg.Ingest.ChunkCharMax,
	})

	engine := search.NewEngine(st, cached, client, search.Config{
		SummaryTypes:    cfg.Search.SummaryTypes,
		TranscriptTypes: cfg.Search.TranscriptTypes,
		AnswerLanguage:  cfg.Search.AnswerLanguage,
	})

	return &app{cfg: cfg, store: st, worker: worker, engine: engine}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
