package rag

import (
	"strings"

	"civiccite/internal/models"
	"civiccite/internal/providers"
)

// BuildPrompt renders the generation request. Passage n of res is Context
// entry n-1, which providers show to the model as [n].
func BuildPrompt(q Query, res models.RetrievalResult, temperature float64, maxTokens int) providers.GenerateRequest {
	passages := make([]string, len(res.Chunks))
	for i, c := range res.Chunks {
		text := c.Chunk.Content
		if t := strings.TrimSpace(c.Chunk.Title); t != "" {
			text = t + ": " + text
		}
		passages[i] = text
	}
	return providers.GenerateRequest{
		Operation:   providers.OperationAnswer,
		Prompt:      "LANGUAGE: " + q.Language + "\nQUESTION: " + q.Text,
		Context:     passages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}
