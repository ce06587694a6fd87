package main

import (
	"fmt"

	"go.uber.org/zap"

	"memoryd/internal/assembler"
	"memoryd/internal/capsule"
	"memoryd/internal/config"
	"memoryd/internal/consolidation"
	"memoryd/internal/embedding"
	"memoryd/internal/graph"
	"memoryd/internal/mode"
	"memoryd/internal/policy"
	"memoryd/internal/recorder"
	"memoryd/internal/retrieval"
	"memoryd/internal/store"
	"memoryd/internal/surgery"
	"memoryd/internal/tools"
)

// stack is the fully wired daemon: storage, services, and the tool registry.
type stack struct {
	store    *store.LocalStore
	policy   *policy.Engine
	embedder embedding.Engine
	registry *tools.Registry
	worker   *consolidation.Worker
}

// newStack opens the database and wires every service against it.
func newStack(c *config.Config) (*stack, error) {
	s, err := store.NewLocalStore(c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	emb, err := embedding.NewEngine(c.Embedding)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start embedding engine: %w", err)
	}
	if emb != nil {
		if err := s.EnsureVectorIndex(emb.Dimensions()); err != nil {
			logger.Warn("vector index unavailable, retrieval stays lexical", zap.Error(err))
		}
	}

	pol := policy.NewEngine(c.Privacy)
	ret := retrieval.New(s, pol, emb, c.Retrieval)
	caps := capsule.New(s, c.Capsules)
	asm := assembler.New(s, ret, caps, mode.NewStickyRegistry(), c.Budget)

	st := &stack{
		store:    s,
		policy:   pol,
		embedder: emb,
		worker:   consolidation.New(s, c.Consolidation),
	}
	st.registry = tools.BuildRegistry(tools.Deps{
		Store:     s,
		Recorder:  recorder.New(s, pol, c.Ingestion),
		Assembler: asm,
		Retrieval: ret,
		Surgery:   surgery.New(s),
		Capsules:  caps,
		Graph:     graph.New(s, c.Graph),
	})
	return st, nil
}

func (st *stack) close() {
	st.worker.Stop()
	if closer, ok := st.embedder.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	_ = st.store.Close()
}
