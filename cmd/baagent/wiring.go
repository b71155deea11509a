package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"baagent/internal/approval"
	"baagent/internal/config"
	"baagent/internal/embedding"
	"baagent/internal/extract"
	"baagent/internal/llm"
	"baagent/internal/logging"
	"baagent/internal/orchestrator"
	"baagent/internal/store"
	"baagent/internal/usage"
)

// openStore opens the database and attaches the embedding engine when one is
// configured. Semantic search falls back to keyword matching without it.
func openStore(ctx context.Context, c *config.Config) (*store.Store, error) {
	s, err := store.Open(c.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	if !c.Embedding.Enabled || c.Embedding.APIKey == "" {
		logging.BootWarn("Embeddings disabled; search uses keyword matching")
		return s, nil
	}
	engine, err := embedding.NewGenAIEngine(ctx, embedding.GenAIConfig{
		APIKey:  c.Embedding.APIKey,
		Model:   c.Embedding.Model,
		BaseURL: c.Embedding.BaseURL,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create embedding engine: %w", err)
	}
	s.SetEmbeddingEngine(engine)
	logging.Boot("Embedding engine: %s", engine.Name())
	return s, nil
}

// usagePath keeps token totals next to the database.
func usagePath(c *config.Config) string {
	if c.Storage.DatabasePath == "" || c.Storage.DatabasePath == ":memory:" {
		return ""
	}
	return filepath.Join(filepath.Dir(c.Storage.DatabasePath), "usage.json")
}

// newOrchestrator builds the generation pipeline. saver may be nil.
func newOrchestrator(ctx context.Context, c *config.Config, saver orchestrator.AnalysisSaver, tokens *usage.Tracker) (*orchestrator.Orchestrator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	invoker, err := llm.NewGeminiInvoker(ctx, llm.GeminiConfig{
		APIKey:  c.LLM.APIKey,
		Model:   c.LLM.Model,
		BaseURL: c.LLM.BaseURL,
		Timeout: c.GetLLMTimeout(),
		Usage:   tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}
	logging.Boot("Generation model: %s", invoker.Model())

	return orchestrator.New(orchestrator.Config{
		Invoker:     invoker,
		Extractor:   extract.New(),
		Saver:       saver,
		MaxParallel: c.Pipeline.MaxParallel,
	})
}

// startJanitor runs the approval sweep until ctx ends or the returned stop
// func is called. stop blocks until the janitor has exited.
func startJanitor(ctx context.Context, m *approval.Machine, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.RunJanitor(ctx, interval)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
