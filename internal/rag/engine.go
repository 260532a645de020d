package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civiccite/internal/audit"
	"civiccite/internal/logger"
	"civiccite/internal/models"
	"civiccite/internal/policy"
	"civiccite/internal/providers"
	"civiccite/internal/retry"
	"civiccite/internal/util"
)

// PolicySource hands out the current immutable policy. policy.Store
// implements it.
type PolicySource interface {
	Current() *policy.Policy
}

type EngineConfig struct {
	Normalize        NormalizeOptions
	Gate             GateConfig
	Format           FormatOptions
	GenerateRetry    retry.Policy
	Temperature      float64
	MaxTokens        int
	RetrievalBudget  time.Duration
	GenerationBudget time.Duration
}

type Engine struct {
	policies  PolicySource
	retriever *Retriever
	llm       providers.LLMProvider
	gate      *Gate
	audit     *audit.Emitter
	log       *logger.Logger
	cfg       EngineConfig
}

func NewEngine(policies PolicySource, r *Retriever, llm providers.LLMProvider, emitter *audit.Emitter, log *logger.Logger, cfg EngineConfig) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.RetrievalBudget <= 0 {
		cfg.RetrievalBudget = 2500 * time.Millisecond
	}
	if cfg.GenerationBudget <= 0 {
		cfg.GenerationBudget = 4 * time.Second
	}
	return &Engine{
		policies:  policies,
		retriever: r,
		llm:       llm,
		gate:      NewGate(cfg.Gate),
		audit:     emitter,
		log:       log,
		cfg:       cfg,
	}
}

// run tracks one request for logging and auditing.
type run struct {
	q       Query
	pol     *policy.Policy
	timings map[string]int64
	res     models.RetrievalResult
}

func (r *run) stage(name string, start time.Time) time.Duration {
	d := time.Since(start)
	r.timings[name+"_ms"] = d.Milliseconds()
	return d
}

// Answer runs one query end to end. Grounding outcomes (answer, no_info,
// refused) are returned as an Answer with a nil error. Errors are
// util.ErrMalformedRequest, util.ErrTransientBackend or internal failures.
func (e *Engine) Answer(ctx context.Context, req models.QueryRequest) (models.Answer, error) {
	started := time.Now()
	q, err := Normalize(req, e.cfg.Normalize)
	if err != nil {
		return models.Answer{}, err
	}
	r := &run{q: q, pol: e.policies.Current(), timings: map[string]int64{}}
	log := e.log.With("request_id", q.RequestID, "session_id", q.SessionID, "channel", string(q.Channel), "language", q.Language)

	a, err := e.answer(ctx, r, log)
	r.timings["total_ms"] = time.Since(started).Milliseconds()
	e.emit(ctx, r, a, err)
	if err != nil {
		log.Warn("query failed", "error", err, "timing_ms", r.timings)
		return models.Answer{}, err
	}
	log.Info("query answered", "resolution", string(a.Resolution), "guidance_key", a.GuidanceKey, "timing_ms", r.timings)
	return a, nil
}

func (e *Engine) answer(ctx context.Context, r *run, log *logger.Logger) (models.Answer, error) {
	q := r.q
	if d := e.gate.Screen(r.pol, q); !d.Proceed() {
		if d.Resolution == models.ResolutionRefused {
			log.Info("query refused", "category", d.Category, "guidance_key", d.GuidanceKey)
		}
		return e.outcome(q, d, 0), nil
	}

	t := time.Now()
	res, err := e.retriever.Retrieve(ctx, q)
	if d := r.stage("retrieval", t); d > e.cfg.RetrievalBudget {
		log.Warn("slow retrieval", "elapsed_ms", d.Milliseconds(), "budget_ms", e.cfg.RetrievalBudget.Milliseconds())
	}
	if err != nil {
		return models.Answer{}, err
	}
	r.res = res

	if d := e.gate.Assess(res); !d.Proceed() {
		return e.outcome(q, d, res.TopScore()), nil
	}

	t = time.Now()
	gen := BuildPrompt(q, res, e.cfg.Temperature, e.cfg.MaxTokens)
	out, err := retry.Do(ctx, e.cfg.GenerateRetry, "generate answer", func(ctx context.Context) (providers.GenerateResponse, error) {
		resp, _, err := e.llm.Generate(ctx, gen)
		return resp, err
	})
	if d := r.stage("generation", t); d > e.cfg.GenerationBudget {
		log.Warn("slow generation", "elapsed_ms", d.Milliseconds(), "budget_ms", e.cfg.GenerationBudget.Milliseconds())
	}
	if err != nil {
		return models.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	t = time.Now()
	g, err := VerifyCitations(out.Text, res)
	r.stage("verify", t)
	switch {
	case errors.Is(err, ErrModelDeclined):
		return e.outcome(q, noInfo(GuidanceModelDeclined, messageNoInformation), res.TopScore()), nil
	case errors.Is(err, util.ErrUngroundedAnswer):
		log.Warn("ungrounded answer dropped", "passages", len(res.Chunks))
		return e.outcome(q, noInfo(GuidanceUngrounded, messageNoInformation), res.TopScore()), nil
	case err != nil:
		return models.Answer{}, err
	}

	a := models.Answer{
		RequestID:     q.RequestID,
		Resolution:    models.ResolutionAnswer,
		AnswerLines:   g.Lines,
		Citations:     g.Citations,
		TopSimilarity: res.TopScore(),
	}
	a = FormatChannel(a, q.Channel, e.cfg.Format)
	if a.Truncated == models.FalseSafe {
		log.Warn("channel shaping failed, returning web shape", "lines", len(a.AnswerLines))
	}
	return a, nil
}

func (e *Engine) outcome(q Query, d Decision, top float64) models.Answer {
	a := models.Answer{
		RequestID:     q.RequestID,
		Resolution:    d.Resolution,
		AnswerLines:   []string{},
		Citations:     []models.Citation{},
		GuidanceKey:   d.GuidanceKey,
		Message:       d.Message,
		TopSimilarity: top,
	}
	return FormatChannel(a, q.Channel, e.cfg.Format)
}

func (e *Engine) emit(ctx context.Context, r *run, a models.Answer, err error) {
	rec := audit.Record{
		RequestID:     r.q.RequestID,
		SessionHash:   e.log.HashID(r.q.SessionID),
		Language:      r.q.Language,
		Channel:       string(r.q.Channel),
		Resolution:    string(a.Resolution),
		GuidanceKey:   a.GuidanceKey,
		TopSimilarity: a.TopSimilarity,
		TimingsMS:     r.timings,
		PolicyVersion: r.pol.Version(),
	}
	for _, c := range a.Citations {
		rec.UsedChunkIDs = append(rec.UsedChunkIDs, c.ChunkID)
	}
	if err != nil {
		rec.Resolution = "error"
		rec.GuidanceKey = errorKind(err)
	}
	e.audit.Emit(ctx, rec)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, util.ErrTransientBackend):
		return "transient_backend_failure"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "deadline"
	default:
		return "internal"
	}
}
