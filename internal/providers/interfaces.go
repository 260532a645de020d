package providers

import "context"

// ProviderInfo names the backend that served a call. Key is the alias,
// never the secret.
type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

// GenerateRequest carries one grounded generation call. Context holds the
// numbered passages; providers render them after Prompt.
type GenerateRequest struct {
	Operation   string   `json:"operation"`
	System      string   `json:"system,omitempty"`
	Prompt      string   `json:"prompt"`
	Context     []string `json:"context"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

// LLMProvider produces the grounded answer text.
type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

// EmbeddingProvider returns one vector per input, in input order.
type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}

var (
	_ LLMProvider       = (*OpenAIProvider)(nil)
	_ LLMProvider       = (*GroqProvider)(nil)
	_ LLMProvider       = (*GeminiProvider)(nil)
	_ LLMProvider       = (*MockProvider)(nil)
	_ EmbeddingProvider = (*OpenAIProvider)(nil)
	_ EmbeddingProvider = (*OllamaEmbeddingProvider)(nil)
	_ EmbeddingProvider = (*GeminiProvider)(nil)
	_ EmbeddingProvider = (*MockProvider)(nil)
)
