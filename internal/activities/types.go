package activities

import (
	"time"

	"civiccite/internal/extract"
	"civiccite/internal/models"
)

type DiscoverDocumentsInput struct {
	InputDir string `json:"input_dir"`
}

type DiscoverDocumentsOutput struct {
	Entries []extract.Entry `json:"entries"`
}

type PrepareDocumentInput struct {
	InputDir   string        `json:"input_dir"`
	Entry      extract.Entry `json:"entry"`
	IngestTime time.Time     `json:"ingest_time"`
}

// DocumentMeta is the provenance of one input file, without its text.
type DocumentMeta struct {
	SourceID         string     `json:"source_id"`
	Path             string     `json:"path"`
	URL              string     `json:"url,omitempty"`
	Title            string     `json:"title,omitempty"`
	Language         string     `json:"language"`
	Region           string     `json:"region,omitempty"`
	Topic            string     `json:"topic,omitempty"`
	SourceType       string     `json:"source_type,omitempty"`
	ExtractionMethod string     `json:"extraction_method,omitempty"`
	LastUpdated      *time.Time `json:"last_updated,omitempty"`
	FetchedAt        *time.Time `json:"fetched_at,omitempty"`
}

type PrepareDocumentOutput struct {
	Document DocumentMeta   `json:"document"`
	Chunks   []models.Chunk `json:"chunks"`
}

type ExistingChunksInput struct {
	ChunkIDs []string `json:"chunk_ids"`
}

// ExistingChunksOutput lists the ids that already have an embedding and the
// first ingest time of every id already stored.
type ExistingChunksOutput struct {
	Existing    map[string]bool      `json:"existing"`
	IngestTimes map[string]time.Time `json:"ingest_times,omitempty"`
}

type EmbedChunksInput struct {
	Operation     string   `json:"operation"`
	SourceID      string   `json:"source_id"`
	ProviderIndex int      `json:"provider_index"`
	Texts         []string `json:"texts"`
}

type EmbedChunksOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

// WriteChunksInput carries vectors by chunk id because models.Chunk does not
// serialize its embedding. Chunks without a vector keep the stored one.
type WriteChunksInput struct {
	SourceID string               `json:"source_id"`
	Chunks   []models.Chunk       `json:"chunks"`
	Vectors  map[string][]float32 `json:"vectors,omitempty"`
}

type UpdateDocumentStatusInput struct {
	Document   DocumentMeta `json:"document"`
	Status     string       `json:"status"`
	FailReason string       `json:"fail_reason,omitempty"`
	ChunkCount int          `json:"chunk_count"`
}
