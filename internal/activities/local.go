package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civiccite/internal/extract"
	"civiccite/internal/ingest"
	"civiccite/internal/models"
	"civiccite/internal/providers"
	"civiccite/internal/storage"

	"go.temporal.io/sdk/temporal"
)

// DocumentResult is the outcome of indexing one file.
type DocumentResult struct {
	Path       string `json:"path"`
	SourceID   string `json:"source_id,omitempty"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
	Chunks     int    `json:"chunks"`
	Embedded   int    `json:"embedded"`
	Provider   string `json:"provider,omitempty"`
}

// TerminalDocumentError reports whether err marks a document that cannot be
// indexed as it is, and returns the metadata attached to it.
func TerminalDocumentError(err error) (DocumentMeta, bool) {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return DocumentMeta{}, false
	}
	switch appErr.Type() {
	case ErrTypeExtractionTooShort, ErrTypeUnsupportedFormat:
	default:
		return DocumentMeta{}, false
	}
	var meta DocumentMeta
	if appErr.HasDetails() {
		_ = appErr.Details(&meta)
	}
	return meta, true
}

// IngestDocument runs the ingest pipeline for one file in-process, with the
// same steps and status transitions as DocumentIngestWorkflow. Skipped
// documents are not errors.
func (a *Activities) IngestDocument(ctx context.Context, dir string, e extract.Entry, ingestTime time.Time) (DocumentResult, error) {
	res := DocumentResult{Path: e.Path}
	prep, err := a.PrepareDocumentActivity(ctx, PrepareDocumentInput{InputDir: dir, Entry: e, IngestTime: ingestTime})
	if err != nil {
		if meta, ok := TerminalDocumentError(err); ok {
			res.SourceID, res.Status, res.FailReason = meta.SourceID, storage.DocumentSkipped, err.Error()
			if serr := a.UpdateDocumentStatusActivity(ctx, UpdateDocumentStatusInput{Document: meta, Status: res.Status, FailReason: res.FailReason}); serr != nil {
				return res, serr
			}
			return res, nil
		}
		res.Status, res.FailReason = storage.DocumentFailed, err.Error()
		return res, err
	}
	res.SourceID = prep.Document.SourceID
	res.Chunks = len(prep.Chunks)

	fail := func(err error) (DocumentResult, error) {
		res.Status, res.FailReason = storage.DocumentFailed, err.Error()
		_ = a.UpdateDocumentStatusActivity(ctx, UpdateDocumentStatusInput{Document: prep.Document, Status: res.Status, FailReason: res.FailReason})
		return res, err
	}
	if err := a.UpdateDocumentStatusActivity(ctx, UpdateDocumentStatusInput{Document: prep.Document, Status: storage.DocumentProcessing}); err != nil {
		return fail(err)
	}

	ids := make([]string, 0, len(prep.Chunks))
	for _, c := range prep.Chunks {
		ids = append(ids, c.ChunkID)
	}
	existing, err := a.ExistingChunksActivity(ctx, ExistingChunksInput{ChunkIDs: ids})
	if err != nil {
		return fail(err)
	}
	prep.Chunks = ingest.Anchor(prep.Chunks, prep.Document.LastUpdated, existing.IngestTimes)
	pendingIDs, texts := PendingEmbeds(prep.Chunks, existing.Existing)

	vectors := map[string][]float32{}
	if len(texts) > 0 {
		out, err := a.embedWithFailover(ctx, EmbedChunksInput{Operation: providers.OperationEmbed, SourceID: res.SourceID, Texts: texts})
		if err != nil {
			return fail(err)
		}
		for i, id := range pendingIDs {
			vectors[id] = out.Vectors[i]
		}
		res.Embedded, res.Provider = len(texts), out.ProviderName
	}

	if err := a.WriteChunksActivity(ctx, WriteChunksInput{SourceID: res.SourceID, Chunks: prep.Chunks, Vectors: vectors}); err != nil {
		return fail(err)
	}
	res.Status = storage.DocumentIndexed
	if err := a.UpdateDocumentStatusActivity(ctx, UpdateDocumentStatusInput{Document: prep.Document, Status: res.Status, ChunkCount: res.Chunks}); err != nil {
		return res, err
	}
	return res, nil
}

// PendingEmbeds lists, in chunk order, the ids and contents of chunks that have
// no stored embedding yet.
func PendingEmbeds(chunks []models.Chunk, existing map[string]bool) ([]string, []string) {
	ids := make([]string, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if existing[c.ChunkID] {
			continue
		}
		ids = append(ids, c.ChunkID)
		texts = append(texts, c.Content)
	}
	return ids, texts
}

func (a *Activities) embedWithFailover(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	n := 1
	if a.embedders != nil && a.embedders.EmbedCount() > 0 {
		n = a.embedders.EmbedCount()
	}
	var lastErr error
	for idx := 0; idx < n; idx++ {
		in.ProviderIndex = idx
		out, err := a.EmbedChunksActivity(ctx, in)
		if err == nil {
			return out, nil
		}
		lastErr = err
		a.logger(ctx).Warn("embed provider failed", "provider_index", idx, "error_type", string(providers.ClassifyError(err)), "error", err)
	}
	return EmbedChunksOutput{}, fmt.Errorf("all embed providers failed: %w", lastErr)
}
