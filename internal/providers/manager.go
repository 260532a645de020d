package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"civiccite/internal/config"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager owns the configured providers. Ingestion workflows address them by
// index; the query path calls Generate and Embed, which fail over in
// preferred order and cool down providers that run out of quota.
type Manager struct {
	llmProviders   []NamedLLMProvider
	embedProviders []NamedEmbedProvider
	dim            int
	cooldown       time.Duration

	mu            sync.Mutex
	disabledUntil map[string]time.Time
	now           func() time.Time
}

func NewManager(cfg config.Config) (*Manager, error) {
	llmRefs := ParseProviderList(cfg.LLMProviders)
	embedRefs := ParseProviderList(cfg.EmbedProviders)

	m := newManager(cfg.EmbedDim, time.Duration(cfg.ProviderCooldownSecs)*time.Second)
	for _, ref := range llmRefs {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support llm", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	for _, ref := range embedRefs {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	if len(m.embedProviders) == 0 {
		m.embedProviders = []NamedEmbedProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(cfg.EmbedDim)}}
	}
	if len(m.llmProviders) == 0 {
		m.llmProviders = []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(cfg.EmbedDim)}}
	}
	return m, nil
}

// NewStaticManager wraps already built providers. Tests and the local CLI use it.
func NewStaticManager(dim int, llms []NamedLLMProvider, embeds []NamedEmbedProvider) *Manager {
	m := newManager(dim, 5*time.Minute)
	m.llmProviders = llms
	m.embedProviders = embeds
	return m
}

func newManager(dim int, cooldown time.Duration) *Manager {
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &Manager{
		dim:           dim,
		cooldown:      cooldown,
		disabledUntil: map[string]time.Time{},
		now:           time.Now,
	}
}

func (m *Manager) EmbedProviderByIndex(i int) (EmbeddingProvider, ProviderRef) {
	if len(m.embedProviders) == 0 {
		return NewMockProvider(m.dim), ProviderRef{Raw: "mock", Name: "mock"}
	}
	if i < 0 || i >= len(m.embedProviders) {
		i = 0
	}
	return m.embedProviders[i].Provider, m.embedProviders[i].Ref
}

func (m *Manager) LLMProviderByIndex(i int) (LLMProvider, ProviderRef) {
	if len(m.llmProviders) == 0 {
		return NewMockProvider(m.dim), ProviderRef{Raw: "mock", Name: "mock"}
	}
	if i < 0 || i >= len(m.llmProviders) {
		i = 0
	}
	return m.llmProviders[i].Provider, m.llmProviders[i].Ref
}

func (m *Manager) EmbedCount() int {
	return len(m.embedProviders)
}

func (m *Manager) LLMCount() int {
	return len(m.llmProviders)
}

func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return strings.ToLower(m.llmProviders[i].Ref.Name) })
}

func (m *Manager) PreferredEmbedOrder() []int {
	return preferredOrder(len(m.embedProviders), func(i int) string { return strings.ToLower(m.embedProviders[i].Ref.Name) })
}

func preferredOrder(n int, nameAt func(i int) string) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func (m *Manager) EmbedProviderRefs() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.embedProviders))
	for i := range m.embedProviders {
		out = append(out, m.embedProviders[i].Ref)
	}
	return out
}

// Generate tries each LLM provider in preferred order.
func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var lastErr error
	var lastInfo ProviderInfo
	for _, idx := range m.PreferredLLMOrder() {
		key := fmt.Sprintf("llm-%d", idx)
		if m.isDisabled(key) {
			continue
		}
		resp, info, err := m.llmProviders[idx].Provider.Generate(ctx, req)
		if err == nil {
			return resp, info, nil
		}
		lastErr, lastInfo = err, info
		if ctx.Err() != nil {
			return GenerateResponse{}, info, err
		}
		if errType := m.penalize(key, err); errType == ErrorContext {
			return GenerateResponse{}, info, err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("all llm providers temporarily unavailable")
	}
	return GenerateResponse{}, lastInfo, lastErr
}

// Embed tries each embedding provider in preferred order.
func (m *Manager) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if req.Dimension <= 0 {
		req.Dimension = m.dim
	}
	var lastErr error
	var lastInfo ProviderInfo
	for _, idx := range m.PreferredEmbedOrder() {
		key := fmt.Sprintf("embed-%d", idx)
		if m.isDisabled(key) {
			continue
		}
		vectors, info, err := m.embedProviders[idx].Provider.Embed(ctx, req)
		if err == nil {
			if len(vectors) != len(req.Inputs) {
				err = fmt.Errorf("%s returned %d vectors for %d inputs", info.Name, len(vectors), len(req.Inputs))
			} else {
				return vectors, info, nil
			}
		}
		lastErr, lastInfo = err, info
		if ctx.Err() != nil {
			return nil, info, err
		}
		m.penalize(key, err)
	}
	if lastErr == nil {
		lastErr = errors.New("all embedding providers temporarily unavailable")
	}
	return nil, lastInfo, lastErr
}

func (m *Manager) penalize(key string, err error) ErrorType {
	errType := ClassifyError(err)
	switch errType {
	case ErrorQuota:
		m.disable(key, m.cooldown)
	case ErrorRate:
		m.disable(key, 30*time.Second)
	case ErrorPermanent:
		m.disable(key, time.Minute)
	}
	return errType
}

func (m *Manager) isDisabled(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.disabledUntil[key]
	return ok && m.now().Before(until)
}

func (m *Manager) disable(key string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabledUntil[key] = m.now().Add(d)
}

func buildProvider(ref ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaEmbeddingProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	case "gemini":
		return NewGeminiProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
