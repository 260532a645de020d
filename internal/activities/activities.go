package activities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civiccite/internal/config"
	"civiccite/internal/extract"
	"civiccite/internal/ingest"
	"civiccite/internal/logger"
	"civiccite/internal/models"
	"civiccite/internal/policy"
	"civiccite/internal/providers"
	"civiccite/internal/storage"
	"civiccite/internal/util"

	"go.temporal.io/sdk/activity"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
)

// Application error types the ingest workflow treats as terminal for a document.
const (
	ErrTypeExtractionTooShort = "ExtractionTooShort"
	ErrTypeUnsupportedFormat  = "UnsupportedFormat"
)

type ChunkStore interface {
	ExistingChunkIDs(ctx context.Context, ids []string) (map[string]bool, error)
	ChunkIngestTimes(ctx context.Context, ids []string) (map[string]time.Time, error)
	ReplaceDocumentChunks(ctx context.Context, sourceID string, chunks []models.Chunk) error
}

type DocumentStore interface {
	UpsertDocument(ctx context.Context, d storage.DocumentRecord) error
}

type PolicySource interface {
	Current() *policy.Policy
}

type EmbedProviders interface {
	EmbedProviderByIndex(i int) (providers.EmbeddingProvider, providers.ProviderRef)
	EmbedCount() int
}

type Activities struct {
	cfg       config.Config
	extractor *extract.Extractor
	chunker   *ingest.Chunker
	chunks    ChunkStore
	docs      DocumentStore
	policies  PolicySource
	embedders EmbedProviders
	log       *logger.Logger
}

// New wires the activities against Postgres and the configured embedding
// providers.
func New(cfg config.Config, db *storage.DB, log *logger.Logger) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	policies, err := policy.NewStore(cfg.PolicyFile, cfg.Languages)
	if err != nil {
		return nil, err
	}
	return NewWithStores(cfg, storage.NewChunkRepo(db), storage.NewDocumentRepo(db), policies, pm, log), nil
}

func NewWithStores(cfg config.Config, chunks ChunkStore, docs DocumentStore, policies PolicySource, embedders EmbedProviders, log *logger.Logger) *Activities {
	if log == nil {
		log = logger.NewNop()
	}
	return &Activities{
		cfg:       cfg,
		extractor: extract.New(),
		chunker: ingest.NewChunker(ingest.ChunkerConfig{
			TargetTokens:      cfg.ChunkTargetTokens,
			MinTokens:         cfg.ChunkMinTokens,
			MaxTokens:         cfg.ChunkMaxTokens,
			OverlapTokens:     cfg.ChunkOverlapTokens,
			LookaheadTokens:   cfg.ChunkLookaheadTokens,
			MinDocumentTokens: cfg.MinDocumentTokens,
		}),
		chunks:    chunks,
		docs:      docs,
		policies:  policies,
		embedders: embedders,
		log:       log,
	}
}

// logger returns the activity logger inside a worker and the process logger
// when the pipeline runs in-process.
func (a *Activities) logger(ctx context.Context) tlog.Logger {
	if activity.IsActivity(ctx) {
		return activity.GetLogger(ctx)
	}
	return a.log
}

func (a *Activities) DiscoverDocumentsActivity(ctx context.Context, in DiscoverDocumentsInput) (DiscoverDocumentsOutput, error) {
	_ = ctx
	entries, err := extract.Discover(in.InputDir, extract.Defaults{Language: a.cfg.DefaultLanguage})
	if err != nil {
		return DiscoverDocumentsOutput{}, err
	}
	return DiscoverDocumentsOutput{Entries: entries}, nil
}

// PrepareDocumentActivity extracts, chunks, enriches and classifies one file.
// Documents that can never be indexed fail with a non-retryable application
// error whose details carry the document metadata.
func (a *Activities) PrepareDocumentActivity(ctx context.Context, in PrepareDocumentInput) (PrepareDocumentOutput, error) {
	doc, err := a.extractor.Document(ctx, in.InputDir, in.Entry)
	if err != nil {
		if errors.Is(err, util.ErrUnsupportedFormat) {
			meta := DocumentMeta{Path: in.Entry.Path, URL: in.Entry.URL, Language: in.Entry.Language}
			return PrepareDocumentOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnsupportedFormat, err, meta)
		}
		return PrepareDocumentOutput{}, err
	}
	meta := metaFor(doc, in.Entry)
	chunks, err := ingest.Prepare(a.chunker, a.policies.Current(), doc, in.IngestTime)
	if err != nil {
		if errors.Is(err, util.ErrExtractionTooShort) {
			a.logger(ctx).Warn("document too short to index", "path", in.Entry.Path, "error", err)
			return PrepareDocumentOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeExtractionTooShort, err, meta)
		}
		return PrepareDocumentOutput{}, err
	}
	return PrepareDocumentOutput{Document: meta, Chunks: chunks}, nil
}

func (a *Activities) ExistingChunksActivity(ctx context.Context, in ExistingChunksInput) (ExistingChunksOutput, error) {
	existing, err := a.chunks.ExistingChunkIDs(ctx, in.ChunkIDs)
	if err != nil {
		return ExistingChunksOutput{}, err
	}
	first, err := a.chunks.ChunkIngestTimes(ctx, in.ChunkIDs)
	if err != nil {
		return ExistingChunksOutput{}, err
	}
	return ExistingChunksOutput{Existing: existing, IngestTimes: first}, nil
}

// EmbedChunksActivity embeds texts with the provider at ProviderIndex, in
// batches of EmbedBatchSize.
func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	if a.embedders == nil || a.embedders.EmbedCount() == 0 {
		return EmbedChunksOutput{}, fmt.Errorf("no embedding providers configured")
	}
	provider, ref := a.embedders.EmbedProviderByIndex(in.ProviderIndex)
	op := in.Operation
	if op == "" {
		op = providers.OperationEmbed
	}
	batch := a.cfg.EmbedBatchSize
	if batch <= 0 {
		batch = len(in.Texts)
	}
	out := EmbedChunksOutput{Vectors: make([][]float32, 0, len(in.Texts))}
	for start := 0; start < len(in.Texts); start += batch {
		end := min(start+batch, len(in.Texts))
		vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
			Operation: op,
			Inputs:    in.Texts[start:end],
			Dimension: a.cfg.EmbedDim,
		})
		if err != nil {
			return EmbedChunksOutput{}, fmt.Errorf("embed via %s: %w", ref.Raw, err)
		}
		if len(vectors) != end-start {
			return EmbedChunksOutput{}, fmt.Errorf("embed via %s: got %d vectors for %d inputs", ref.Raw, len(vectors), end-start)
		}
		for _, v := range vectors {
			if a.cfg.EmbedDim > 0 && len(v) != a.cfg.EmbedDim {
				return EmbedChunksOutput{}, temporal.NewNonRetryableApplicationError(
					fmt.Sprintf("embedding dimension %d, index expects %d", len(v), a.cfg.EmbedDim), "DimensionMismatch", nil)
			}
		}
		out.Vectors = append(out.Vectors, vectors...)
		out.ProviderName, out.Model = info.Name, info.Model
	}
	a.logger(ctx).Debug("embedded chunks", "source_id", in.SourceID, "count", len(in.Texts), "provider", out.ProviderName)
	return out, nil
}

func (a *Activities) WriteChunksActivity(ctx context.Context, in WriteChunksInput) error {
	chunks := make([]models.Chunk, len(in.Chunks))
	copy(chunks, in.Chunks)
	for i := range chunks {
		if v, ok := in.Vectors[chunks[i].ChunkID]; ok {
			chunks[i].Embedding = v
		}
	}
	return a.chunks.ReplaceDocumentChunks(ctx, in.SourceID, chunks)
}

func (a *Activities) UpdateDocumentStatusActivity(ctx context.Context, in UpdateDocumentStatusInput) error {
	d := in.Document
	if strings.TrimSpace(d.SourceID) == "" {
		a.logger(ctx).Warn("document status without source id", "path", d.Path, "status", in.Status)
		return nil
	}
	return a.docs.UpsertDocument(ctx, storage.DocumentRecord{
		SourceID:         d.SourceID,
		URL:              d.URL,
		Title:            d.Title,
		Language:         d.Language,
		Region:           d.Region,
		Topic:            d.Topic,
		SourceType:       d.SourceType,
		ExtractionMethod: d.ExtractionMethod,
		Path:             d.Path,
		Status:           in.Status,
		FailReason:       in.FailReason,
		ChunkCount:       in.ChunkCount,
		FetchedAt:        d.FetchedAt,
		LastUpdated:      d.LastUpdated,
	})
}

func metaFor(doc models.Document, e extract.Entry) DocumentMeta {
	meta := DocumentMeta{
		SourceID:         doc.SourceID,
		Path:             e.Path,
		URL:              doc.URL,
		Title:            doc.Title,
		Language:         doc.Language,
		Region:           doc.Region,
		Topic:            doc.Topic,
		SourceType:       doc.SourceType,
		ExtractionMethod: doc.ExtractionMethod,
		LastUpdated:      doc.LastUpdated,
	}
	if !doc.FetchedAt.IsZero() {
		fetched := doc.FetchedAt
		meta.FetchedAt = &fetched
	}
	return meta
}
