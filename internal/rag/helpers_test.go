package rag

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"civiccite/internal/models"
	"civiccite/internal/providers"
	"civiccite/internal/vector"
)

var baseTime = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

func scored(id, source string, tier models.TrustTier, score float64) models.ScoredChunk {
	return models.ScoredChunk{
		Chunk: models.Chunk{
			ChunkID:     id,
			SourceID:    source,
			Content:     "content of " + id + ".",
			URL:         "https://" + source + ".gov.in/page",
			Language:    "en",
			TrustTier:   tier,
			LastUpdated: baseTime,
		},
		Score: score,
	}
}

func numbered(chunks ...models.ScoredChunk) models.RetrievalResult {
	for i := range chunks {
		chunks[i].Passage = i + 1
	}
	return models.RetrievalResult{Chunks: chunks}
}

type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, providers.ProviderInfo{}, e.err
	}
	out := make([][]float32, len(req.Inputs))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, providers.ProviderInfo{Name: "test"}, nil
}

type fakeSearcher struct {
	calls   atomic.Int32
	cands   []models.ScoredChunk
	filters vector.Filters
	n       int
}

func (s *fakeSearcher) SearchCandidates(_ context.Context, _ []float32, n int, f vector.Filters) ([]models.ScoredChunk, error) {
	s.calls.Add(1)
	s.filters, s.n = f, n
	return append([]models.ScoredChunk(nil), s.cands...), nil
}

type scriptedLLM struct {
	calls atomic.Int32
	reply func(req providers.GenerateRequest) string
	err   error
}

func (l *scriptedLLM) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	l.calls.Add(1)
	if l.err != nil {
		return providers.GenerateResponse{}, providers.ProviderInfo{}, l.err
	}
	return providers.GenerateResponse{Text: l.reply(req)}, providers.ProviderInfo{Name: "test"}, nil
}

// citeAll answers one line per passage, each citing its passage.
func citeAll(req providers.GenerateRequest) string {
	out := ""
	for i := range req.Context {
		out += fmt.Sprintf("Fact from passage %d [%d].\n", i+1, i+1)
	}
	return out
}
