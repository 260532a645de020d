package models

import (
	"fmt"
	"strings"
	"time"
)

// TrustTier orders sources by authoritativeness. Lower values rank first.
type TrustTier int

const (
	TierGov TrustTier = iota
	TierNGO
	TierStructuredAPI
	TierNews
	TierWeb
)

var tierNames = [...]string{"gov", "ngo", "structured-api", "news", "web"}

func (t TrustTier) String() string {
	if t < TierGov || t > TierWeb {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

func ParseTrustTier(s string) (TrustTier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range tierNames {
		if name == s {
			return TrustTier(i), nil
		}
	}
	return TierWeb, fmt.Errorf("unknown trust tier %q", s)
}

func AllTiers() []TrustTier {
	return []TrustTier{TierGov, TierNGO, TierStructuredAPI, TierNews, TierWeb}
}

func (t TrustTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TrustTier) UnmarshalText(b []byte) error {
	v, err := ParseTrustTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

type Channel string

const (
	ChannelWeb   Channel = "web"
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
)

func ParseChannel(s string) (Channel, bool) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelWeb, ChannelSMS, ChannelVoice:
		return c, true
	}
	return "", false
}

type Resolution string

const (
	ResolutionAnswer  Resolution = "answer"
	ResolutionNoInfo  Resolution = "no_info"
	ResolutionRefused Resolution = "refused"
)

// Document is the extracted form of one public source, as handed over by the
// extraction collaborator.
type Document struct {
	SourceID         string     `json:"source_id"`
	URL              string     `json:"url"`
	RawText          string     `json:"raw_text"`
	Title            string     `json:"title,omitempty"`
	Language         string     `json:"language"`
	Region           string     `json:"region,omitempty"`
	Topic            string     `json:"topic,omitempty"`
	SourceType       string     `json:"source_type,omitempty"`
	ExtractionMethod string     `json:"extraction_method"`
	LastUpdated      *time.Time `json:"last_updated,omitempty"`
	FetchedAt        time.Time  `json:"fetched_at"`
}

type Chunk struct {
	ChunkID          string    `json:"chunk_id"`
	Ordinal          int       `json:"ordinal"`
	Content          string    `json:"content"`
	SourceID         string    `json:"source_id"`
	Title            string    `json:"title"`
	URL              string    `json:"source_url"`
	SourceType       string    `json:"source_type"`
	Language         string    `json:"language"`
	Region           string    `json:"region"`
	Topic            string    `json:"topic"`
	TrustTier        TrustTier `json:"trust_tier"`
	LastUpdated      time.Time `json:"last_updated"`
	IngestTime       time.Time `json:"ingest_time"`
	ExtractionMethod string    `json:"extraction_method"`
	Embedding        []float32 `json:"-"`
}

// ScoredChunk is one retrieval hit. Passage is the 1-based number shown to the
// language model and used by its citation markers.
type ScoredChunk struct {
	Chunk   Chunk   `json:"chunk"`
	Score   float64 `json:"score"`
	Passage int     `json:"passage"`
}

type RetrievalResult struct {
	Chunks []ScoredChunk `json:"chunks"`
}

func (r RetrievalResult) Empty() bool {
	return len(r.Chunks) == 0
}

func (r RetrievalResult) TopScore() float64 {
	top := 0.0
	for i, c := range r.Chunks {
		if i == 0 || c.Score > top {
			top = c.Score
		}
	}
	return top
}

func (r RetrievalResult) ChunkIDs() []string {
	out := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		out = append(out, c.Chunk.ChunkID)
	}
	return out
}

// ByPassage resolves a passage number to its chunk.
func (r RetrievalResult) ByPassage(n int) (ScoredChunk, bool) {
	for _, c := range r.Chunks {
		if c.Passage == n {
			return c, true
		}
	}
	return ScoredChunk{}, false
}

type QueryRequest struct {
	QueryText     string   `json:"query"`
	Language      string   `json:"language"`
	Channel       string   `json:"channel"`
	SessionID     string   `json:"session_id,omitempty"`
	RequestID     string   `json:"request_id,omitempty"`
	Region        string   `json:"region,omitempty"`
	Topic         string   `json:"topic,omitempty"`
	ASRConfidence *float64 `json:"asr_confidence,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
}

type Citation struct {
	Index     int    `json:"citation"`
	ChunkID   string `json:"chunk_id"`
	SourceURL string `json:"source_url"`
}

// SMSPayload is the single message sent to an SMS user.
type SMSPayload struct {
	Message   string `json:"message"`
	Truncated bool   `json:"truncated"`
}

type VoicePayload struct {
	Speech    string `json:"speech"`
	OfferMore bool   `json:"offer_more"`
}

// FalseSafe marks a response that could not be shaped for its channel and
// was returned in the web shape instead.
const FalseSafe = "false-safe"

type Answer struct {
	RequestID     string        `json:"request_id"`
	Resolution    Resolution    `json:"resolution"`
	AnswerLines   []string      `json:"answer_lines"`
	Citations     []Citation    `json:"citations"`
	GuidanceKey   string        `json:"guidance_key,omitempty"`
	Message       string        `json:"message,omitempty"`
	SMS           *SMSPayload   `json:"sms,omitempty"`
	Voice         *VoicePayload `json:"voice,omitempty"`
	Truncated     string        `json:"truncated,omitempty"`
	TopSimilarity float64       `json:"-"`
}
