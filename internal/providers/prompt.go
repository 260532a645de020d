package providers

import (
	"strconv"
	"strings"
)

const (
	OperationAnswer = "rag_answer"
	OperationEmbed  = "embed"
	OperationQuery  = "embed_query"

	// NotEnoughInformation is the exact reply a model gives when the passages
	// cannot answer the question.
	NotEnoughInformation = "NOT_ENOUGH_INFORMATION"
)

const defaultSystemPrompt = "You answer civic questions using ONLY the numbered passages. " +
	"End every sentence with the passage numbers it relies on, like [1] or [1, 2]. " +
	"If the passages do not answer the question, reply exactly " + NotEnoughInformation + "."

func systemPrompt(req GenerateRequest) string {
	if s := strings.TrimSpace(req.System); s != "" {
		return s
	}
	return defaultSystemPrompt
}

// renderPrompt appends the numbered passages to the user prompt.
func renderPrompt(req GenerateRequest) string {
	if len(req.Context) == 0 {
		return req.Prompt
	}
	var b strings.Builder
	b.WriteString(req.Prompt)
	b.WriteString("\n\nPASSAGES:\n")
	for i, c := range req.Context {
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(strings.TrimSpace(c))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func chatMessages(req GenerateRequest) []map[string]string {
	return []map[string]string{
		{"role": "system", "content": systemPrompt(req)},
		{"role": "user", "content": renderPrompt(req)},
	}
}

func chatPayload(model string, req GenerateRequest) map[string]any {
	payload := map[string]any{
		"model":    model,
		"messages": chatMessages(req),
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	return payload
}
