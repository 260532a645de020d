package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// GroqProvider generates answers through Groq's OpenAI-compatible chat API.
// It has no embedding endpoint.
type GroqProvider struct {
	keyName string
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewGroqProvider(keyName string) *GroqProvider {
	return &GroqProvider{
		keyName: keyName,
		apiKey:  resolveKey("groq", keyName, "GROQ_API_KEY"),
		baseURL: strings.TrimRight(envOr("CIVICCITE_GROQ_BASE_URL", "https://api.groq.com/openai/v1"), "/"),
		model:   envOr("CIVICCITE_GROQ_MODEL", "llama-3.1-8b-instant"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (g *GroqProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "groq", Key: g.keyName, Model: g.model}
	if g.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("groq key missing for alias %q", g.keyName)
	}
	resp, err := completeChat(ctx, g.client, "groq", g.baseURL+"/chat/completions", g.apiKey, g.model, req)
	return resp, info, err
}
