package rag

import (
	"context"
	"fmt"
	"sort"

	"civiccite/internal/models"
	"civiccite/internal/providers"
	"civiccite/internal/retry"
	"civiccite/internal/util"
	"civiccite/internal/vector"
)

// CandidateSearcher is the similarity index. vector.Searcher implements it.
type CandidateSearcher interface {
	SearchCandidates(ctx context.Context, queryVec []float32, n int, f vector.Filters) ([]models.ScoredChunk, error)
}

type RetrieverConfig struct {
	RawN        int
	Dimension   int
	EmbedRetry  retry.Policy
	SearchRetry retry.Policy
}

type Retriever struct {
	embedder providers.EmbeddingProvider
	searcher CandidateSearcher
	cfg      RetrieverConfig
}

func NewRetriever(e providers.EmbeddingProvider, s CandidateSearcher, cfg RetrieverConfig) *Retriever {
	if cfg.RawN <= 0 {
		cfg.RawN = 50
	}
	return &Retriever{embedder: e, searcher: s, cfg: cfg}
}

// Retrieve embeds the query, fetches RawN candidates and ranks them down to
// q.TopK passages. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (models.RetrievalResult, error) {
	vec, err := retry.Do(ctx, r.cfg.EmbedRetry, "embed query", func(ctx context.Context) ([]float32, error) {
		vecs, _, err := r.embedder.Embed(ctx, providers.EmbedRequest{
			Operation: providers.OperationQuery,
			Inputs:    []string{q.Text},
			Dimension: r.cfg.Dimension,
		})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vecs))
		}
		return vecs[0], nil
	})
	if err != nil {
		return models.RetrievalResult{}, fmt.Errorf("embed query: %w", err)
	}

	rawN := max(r.cfg.RawN, q.TopK+1)
	filters := vector.Filters{Language: q.Language, Region: q.Region, Topic: q.Topic}
	cands, err := retry.Do(ctx, r.cfg.SearchRetry, "search candidates", func(ctx context.Context) ([]models.ScoredChunk, error) {
		return r.searcher.SearchCandidates(ctx, vec, rawN, filters)
	})
	if err != nil {
		return models.RetrievalResult{}, fmt.Errorf("search candidates: %w", err)
	}
	return Rank(cands, q.TopK, q.Channel), nil
}

// Rank collapses near-duplicates, orders by trust then score, keeps one chunk
// per source for sms and voice, cuts to k and numbers the passages from 1.
func Rank(cands []models.ScoredChunk, k int, ch models.Channel) models.RetrievalResult {
	byText := make(map[string]int, len(cands))
	uniq := make([]models.ScoredChunk, 0, len(cands))
	for _, c := range cands {
		key := util.DedupeKey(c.Chunk.Content)
		if i, ok := byText[key]; ok {
			if better(c, uniq[i]) {
				uniq[i] = c
			}
			continue
		}
		byText[key] = len(uniq)
		uniq = append(uniq, c)
	}

	sort.SliceStable(uniq, func(i, j int) bool { return less(uniq[i], uniq[j]) })

	out := make([]models.ScoredChunk, 0, min(k, len(uniq)))
	seenSource := map[string]bool{}
	for _, c := range uniq {
		if len(out) >= k {
			break
		}
		if ch == models.ChannelSMS || ch == models.ChannelVoice {
			if seenSource[c.Chunk.SourceID] {
				continue
			}
			seenSource[c.Chunk.SourceID] = true
		}
		c.Passage = len(out) + 1
		out = append(out, c)
	}
	return models.RetrievalResult{Chunks: out}
}

// better picks which of two duplicates to keep: the higher score, then the
// higher trust.
func better(a, b models.ScoredChunk) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return less(a, b)
}

func less(a, b models.ScoredChunk) bool {
	if a.Chunk.TrustTier != b.Chunk.TrustTier {
		return a.Chunk.TrustTier < b.Chunk.TrustTier
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Chunk.LastUpdated.Equal(b.Chunk.LastUpdated) {
		return a.Chunk.LastUpdated.After(b.Chunk.LastUpdated)
	}
	return a.Chunk.ChunkID < b.Chunk.ChunkID
}
