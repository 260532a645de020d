package providers

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider serves both chat and embeddings through the Gemini API.
type GeminiProvider struct {
	keyName    string
	apiKey     string
	chatModel  string
	embedModel string
}

func NewGeminiProvider(keyName string) *GeminiProvider {
	return &GeminiProvider{
		keyName:    keyName,
		apiKey:     resolveKey("gemini", keyName, "GEMINI_API_KEY"),
		chatModel:  envOr("CIVICCITE_GEMINI_MODEL", "gemini-2.0-flash"),
		embedModel: envOr("CIVICCITE_GEMINI_EMBED_MODEL", "text-embedding-004"),
	}
}

func (g *GeminiProvider) client(ctx context.Context) (*genai.Client, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini key missing for alias %q", g.keyName)
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (g *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "gemini", Model: g.chatModel, Key: g.keyName}
	client, err := g.client(ctx)
	if err != nil {
		return GenerateResponse{}, info, err
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt(req)}}},
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	resp, err := client.Models.GenerateContent(
		ctx,
		g.chatModel,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: renderPrompt(req)}}}},
		cfg,
	)
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("gemini generate failed: %w", err)
	}
	return GenerateResponse{Text: strings.TrimSpace(resp.Text())}, info, nil
}

func (g *GeminiProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "gemini", Model: g.embedModel, Key: g.keyName}
	client, err := g.client(ctx)
	if err != nil {
		return nil, info, err
	}
	contents := make([]*genai.Content, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: in}}})
	}
	cfg := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}
	if req.Operation == OperationQuery {
		cfg.TaskType = "RETRIEVAL_QUERY"
	}
	if req.Dimension > 0 {
		d := int32(req.Dimension)
		cfg.OutputDimensionality = &d
	}
	resp, err := client.Models.EmbedContent(ctx, g.embedModel, contents, cfg)
	if err != nil {
		return nil, info, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if len(resp.Embeddings) != len(req.Inputs) {
		return nil, info, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(req.Inputs))
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, matchDimension(e.Values, req.Dimension))
	}
	return out, info, nil
}
