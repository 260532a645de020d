package providers

import (
	"context"
	"strings"
	"testing"
)

func TestGeminiMissingKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	p := NewGeminiProvider("")
	if _, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"x"}}); err == nil || !strings.Contains(err.Error(), "key missing") {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if _, info, err := p.Generate(context.Background(), GenerateRequest{Prompt: "q"}); err == nil || info.Name != "gemini" {
		t.Fatalf("expected gemini error, got %v %+v", err, info)
	}
}
