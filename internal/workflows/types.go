package workflows

import (
	"civiccite/internal/config"
	"civiccite/internal/extract"
)

type CorpusIngestInput struct {
	InputDir              string `json:"input_dir"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
	EmbedProviders        int    `json:"embed_providers"`
	CooldownSeconds       int    `json:"cooldown_seconds"`
}

// NewCorpusIngestInput fills the workflow input from the process config.
func NewCorpusIngestInput(cfg config.Config, dir string) CorpusIngestInput {
	return CorpusIngestInput{
		InputDir:              dir,
		MaxConcurrentChildren: cfg.IngestMaxChildren,
		EmbedProviders:        countProviders(cfg.EmbedProviders),
		CooldownSeconds:       cfg.ProviderCooldownSecs,
	}
}

type DocumentIngestInput struct {
	InputDir        string        `json:"input_dir"`
	Entry           extract.Entry `json:"entry"`
	EmbedProviders  int           `json:"embed_providers"`
	CooldownSeconds int           `json:"cooldown_seconds"`
}

type DocumentStatus struct {
	SourceID    string            `json:"source_id"`
	Path        string            `json:"path"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Chunks      int               `json:"chunks"`
	Embedded    int               `json:"embedded"`
	Providers   []string          `json:"providers_used"`
	RetryCounts map[string]int    `json:"retry_counts"`
	Steps       map[string]string `json:"steps"`
}

type CorpusIngestProgress struct {
	InputDir      string            `json:"input_dir"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Indexed       int               `json:"indexed"`
	Skipped       int               `json:"skipped"`
	Failed        int               `json:"failed"`
	PerDocument   map[string]string `json:"per_document_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}
