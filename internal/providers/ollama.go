package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// OllamaEmbeddingProvider embeds through a local Ollama server. One call to
// /api/embed covers the whole batch.
type OllamaEmbeddingProvider struct {
	alias   string
	baseURL string
	model   string
	client  *http.Client
}

var ollamaModelAliases = map[string]string{
	"nomic": "nomic-embed-text",
	"bge":   "bge-m3",
	"e5":    "jeffh/intfloat-multilingual-e5-large",
}

func NewOllamaEmbeddingProvider(alias string) *OllamaEmbeddingProvider {
	return &OllamaEmbeddingProvider{
		alias:   alias,
		baseURL: strings.TrimRight(envOr("CIVICCITE_OLLAMA_BASE_URL", "http://localhost:11434"), "/"),
		model:   resolveOllamaEmbedModel(alias),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (o *OllamaEmbeddingProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.model, Key: o.alias}
	if len(req.Inputs) == 0 {
		return nil, info, fmt.Errorf("no embedding inputs")
	}
	payload := map[string]any{"model": o.model, "input": req.Inputs}
	body, err := postJSON(ctx, o.client, o.baseURL+"/api/embed", "", payload, "ollama", "embedding")
	if err != nil {
		return nil, info, err
	}
	var parsed struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, info, fmt.Errorf("decode ollama embedding response: %w", err)
	}
	if len(parsed.Embeddings) != len(req.Inputs) {
		return nil, info, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(parsed.Embeddings), len(req.Inputs))
	}
	out := make([][]float32, len(parsed.Embeddings))
	for i, v := range parsed.Embeddings {
		if len(v) == 0 {
			return nil, info, fmt.Errorf("ollama returned empty embedding at %d", i)
		}
		out[i] = matchDimension(v, req.Dimension)
	}
	return out, info, nil
}

// resolveOllamaEmbedModel maps a provider alias to a model name. The alias
// may be a per-alias env override, a short name, or a model name itself.
func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		if v := strings.TrimSpace(os.Getenv("CIVICCITE_OLLAMA_EMBED_MODEL_" + sanitizeEnvToken(alias))); v != "" {
			return v
		}
		if m, ok := ollamaModelAliases[strings.ToLower(alias)]; ok {
			return m
		}
		if strings.ContainsAny(alias, "-/.") {
			return alias
		}
	}
	return envOr("CIVICCITE_OLLAMA_EMBED_MODEL", "nomic-embed-text")
}
