package rag

import (
	"time"

	"civiccite/internal/models"
	"civiccite/internal/policy"
)

const (
	GuidanceASRLowConfidence   = "refusal_asr_low_confidence"
	GuidanceUnsupportedLang    = "no_info_unsupported_language"
	GuidanceNoSources          = "no_info_no_sources"
	GuidanceLowSimilarity      = "no_info_low_similarity"
	GuidanceStaleSources       = "no_info_stale_sources"
	GuidanceUngrounded         = "no_info_ungrounded"
	GuidanceModelDeclined      = "no_info_model_declined"
	messageASRLowConfidence    = "Sorry, I did not catch that clearly. Please repeat your question"
	messageNoInformation       = "We could not find this in our verified sources"
	messageUnsupportedLanguage = "This language is not supported yet"
)

// Decision is a gate outcome. Proceed is true only for an answer.
type Decision struct {
	Resolution  models.Resolution
	GuidanceKey string
	Message     string
	Category    string
}

func (d Decision) Proceed() bool { return d.Resolution == models.ResolutionAnswer }

var proceed = Decision{Resolution: models.ResolutionAnswer}

func noInfo(key, msg string) Decision {
	return Decision{Resolution: models.ResolutionNoInfo, GuidanceKey: key, Message: msg}
}

type GateConfig struct {
	MinSimilarity          float64
	ASRConfidenceThreshold float64
	MaxSourceAge           time.Duration
	Now                    func() time.Time
}

type Gate struct {
	cfg GateConfig
}

func NewGate(cfg GateConfig) *Gate {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gate{cfg: cfg}
}

// Screen runs the checks that need no retrieval: unsafe intent first, then
// low ASR confidence on voice, then language support. It must be called
// before anything is embedded or generated.
func (g *Gate) Screen(p *policy.Policy, q Query) Decision {
	if m, ok := p.MatchUnsafe(q.Text); ok {
		return Decision{
			Resolution:  models.ResolutionRefused,
			GuidanceKey: m.GuidanceKey,
			Message:     m.Message,
			Category:    m.Category,
		}
	}
	if q.Channel == models.ChannelVoice && q.ASRConfidence != nil && *q.ASRConfidence < g.cfg.ASRConfidenceThreshold {
		return Decision{
			Resolution:  models.ResolutionRefused,
			GuidanceKey: GuidanceASRLowConfidence,
			Message:     messageASRLowConfidence,
			Category:    "asr",
		}
	}
	if !p.SupportsLanguage(q.Language) {
		return noInfo(GuidanceUnsupportedLang, messageUnsupportedLanguage)
	}
	return proceed
}

// Assess decides whether retrieval found enough to answer from.
func (g *Gate) Assess(res models.RetrievalResult) Decision {
	if res.Empty() {
		return noInfo(GuidanceNoSources, messageNoInformation)
	}
	if res.TopScore() < g.cfg.MinSimilarity {
		return noInfo(GuidanceLowSimilarity, messageNoInformation)
	}
	if g.cfg.MaxSourceAge > 0 {
		cutoff := g.cfg.Now().Add(-g.cfg.MaxSourceAge)
		fresh := false
		for _, c := range res.Chunks {
			if c.Chunk.LastUpdated.After(cutoff) {
				fresh = true
				break
			}
		}
		if !fresh {
			return noInfo(GuidanceStaleSources, messageNoInformation)
		}
	}
	return proceed
}
