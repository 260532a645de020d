package rag

import (
	"time"

	"civiccite/internal/config"
	"civiccite/internal/providers"
	"civiccite/internal/retry"
	"civiccite/internal/vector"
)

// RetrieverConfigFrom maps process settings onto the retriever.
func RetrieverConfigFrom(cfg config.Config) RetrieverConfig {
	return RetrieverConfig{
		RawN:        cfg.RawN,
		Dimension:   cfg.EmbedDim,
		EmbedRetry:  retryPolicy(cfg, cfg.EmbedTimeout, providers.Retryable),
		SearchRetry: retryPolicy(cfg, cfg.SearchTimeout, vector.Retryable),
	}
}

// EngineConfigFrom maps process settings onto the engine.
func EngineConfigFrom(cfg config.Config) EngineConfig {
	return EngineConfig{
		Normalize: NormalizeOptions{
			MaxQueryRunes: cfg.MaxQueryRunes,
			TopK:          cfg.TopK,
			MaxTopK:       cfg.MaxTopK,
		},
		Gate: GateConfig{
			MinSimilarity:          cfg.MinSimilarity,
			ASRConfidenceThreshold: cfg.ASRConfidenceThreshold,
			MaxSourceAge:           cfg.MaxSourceAge,
		},
		Format: FormatOptions{
			SMSMaxRunes:   cfg.SMSMaxRunes,
			VoiceMaxRunes: cfg.VoiceMaxRunes,
		},
		GenerateRetry:    retryPolicy(cfg, cfg.GenerateTimeout, providers.Retryable),
		Temperature:      cfg.GenTemperature,
		MaxTokens:        cfg.GenMaxTokens,
		RetrievalBudget:  cfg.RetrievalBudget,
		GenerationBudget: cfg.GenerationBudget,
	}
}

func retryPolicy(cfg config.Config, timeout time.Duration, retryable func(error) bool) retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.RetryMaxAttempts,
		BaseDelay:      cfg.RetryBaseDelay,
		MaxDelay:       cfg.RetryMaxDelay,
		AttemptTimeout: timeout,
		Retryable:      retryable,
	}
}
