package ingest

import (
	"fmt"
	"strings"

	"civiccite/internal/util"
)

type ChunkerConfig struct {
	TargetTokens      int
	MinTokens         int
	MaxTokens         int
	OverlapTokens     int
	LookaheadTokens   int
	MinDocumentTokens int
}

func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		TargetTokens:      500,
		MinTokens:         300,
		MaxTokens:         700,
		OverlapTokens:     50,
		LookaheadTokens:   40,
		MinDocumentTokens: 25,
	}
}

// Draft is a chunk before metadata enrichment.
type Draft struct {
	Ordinal int
	Content string
}

type Chunker struct {
	cfg ChunkerConfig
}

func NewChunker(cfg ChunkerConfig) *Chunker {
	d := DefaultChunkerConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.MinTokens <= 0 || cfg.MinTokens > cfg.MaxTokens {
		cfg.MinTokens = min(d.MinTokens, cfg.MaxTokens)
	}
	if cfg.TargetTokens < cfg.MinTokens || cfg.TargetTokens > cfg.MaxTokens {
		cfg.TargetTokens = (cfg.MinTokens + cfg.MaxTokens) / 2
	}
	if cfg.OverlapTokens < 0 || cfg.OverlapTokens >= cfg.MinTokens {
		cfg.OverlapTokens = 0
	}
	if cfg.LookaheadTokens < 0 {
		cfg.LookaheadTokens = 0
	}
	if cfg.MinDocumentTokens <= 0 {
		cfg.MinDocumentTokens = 1
	}
	return &Chunker{cfg: cfg}
}

func (c *Chunker) Config() ChunkerConfig { return c.cfg }

// Chunk canonicalizes text and splits it into overlapping token windows.
// Ordinals start at 0. Text below the minimum document length yields
// util.ErrExtractionTooShort and no chunks.
func (c *Chunker) Chunk(text string) ([]Draft, error) {
	tokens := strings.Fields(util.Canonicalize(text))
	if len(tokens) < c.cfg.MinDocumentTokens {
		return nil, fmt.Errorf("%w: %d tokens, need %d", util.ErrExtractionTooShort, len(tokens), c.cfg.MinDocumentTokens)
	}

	n := len(tokens)
	out := make([]Draft, 0, n/c.cfg.TargetTokens+1)
	start := 0
	for {
		if n-start <= c.cfg.MaxTokens {
			if n-start < c.cfg.MinTokens && len(out) > 0 {
				start = max(0, n-c.cfg.MinTokens)
			}
			out = append(out, Draft{Ordinal: len(out), Content: strings.Join(tokens[start:], " ")})
			break
		}
		cut := c.cutPoint(tokens, start)
		out = append(out, Draft{Ordinal: len(out), Content: strings.Join(tokens[start:cut], " ")})
		next := cut - c.cfg.OverlapTokens
		if next <= start {
			next = cut
		}
		start = next
	}
	return out, nil
}

// cutPoint returns the exclusive end of the window starting at start. It
// prefers the sentence end nearest the target inside the look-ahead span and
// hard-cuts at the target when there is none.
func (c *Chunker) cutPoint(tokens []string, start int) int {
	target := start + c.cfg.TargetTokens
	lo := max(start+c.cfg.MinTokens, target-c.cfg.LookaheadTokens)
	hi := min(start+c.cfg.MaxTokens, target+c.cfg.LookaheadTokens, len(tokens))
	best := -1
	bestDist := 0
	for end := lo; end <= hi; end++ {
		if !util.IsSentenceEnd(tokens[end-1]) {
			continue
		}
		dist := end - target
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist <= bestDist {
			best, bestDist = end, dist
		}
	}
	if best < 0 {
		return min(target, len(tokens))
	}
	return best
}
