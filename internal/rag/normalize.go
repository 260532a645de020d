// Package rag answers civic questions from the indexed corpus: it screens the
// query, retrieves trusted passages, generates an answer and keeps only the
// lines that cite what was retrieved.
package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"civiccite/internal/models"
	"civiccite/internal/util"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Query is a validated, canonical QueryRequest.
type Query struct {
	Text          string
	Language      string
	Channel       models.Channel
	SessionID     string
	RequestID     string
	Region        string
	Topic         string
	ASRConfidence *float64
	TopK          int
}

type NormalizeOptions struct {
	MaxQueryRunes int
	TopK          int
	MaxTopK       int
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", util.ErrMalformedRequest, fmt.Sprintf(format, args...))
}

// Normalize validates the request and canonicalizes its text. Every rejection
// wraps util.ErrMalformedRequest. Whether the language is served is decided
// later by the gate, not here.
func Normalize(req models.QueryRequest, opts NormalizeOptions) (Query, error) {
	text := util.Canonicalize(strings.TrimSpace(req.QueryText))
	if text == "" {
		return Query{}, malformed("query is empty")
	}
	if opts.MaxQueryRunes > 0 && utf8.RuneCountInString(text) > opts.MaxQueryRunes {
		return Query{}, malformed("query exceeds %d characters", opts.MaxQueryRunes)
	}

	lang, err := baseLanguage(req.Language)
	if err != nil {
		return Query{}, err
	}

	ch, ok := models.ParseChannel(req.Channel)
	if !ok {
		return Query{}, malformed("unknown channel %q", req.Channel)
	}

	if ch == models.ChannelVoice && req.ASRConfidence == nil {
		return Query{}, malformed("asr_confidence is required for voice")
	}
	if req.ASRConfidence != nil {
		c := *req.ASRConfidence
		if c < 0 || c > 1 {
			return Query{}, malformed("asr_confidence must be within [0,1]")
		}
	}

	k := opts.TopK
	if req.TopK != 0 {
		if req.TopK < 1 || (opts.MaxTopK > 0 && req.TopK > opts.MaxTopK) {
			return Query{}, malformed("top_k must be within [1,%d]", opts.MaxTopK)
		}
		k = req.TopK
	}
	if k <= 0 {
		k = 5
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return Query{
		Text:          text,
		Language:      lang,
		Channel:       ch,
		SessionID:     strings.TrimSpace(req.SessionID),
		RequestID:     requestID,
		Region:        strings.ToLower(strings.TrimSpace(req.Region)),
		Topic:         strings.ToLower(strings.TrimSpace(req.Topic)),
		ASRConfidence: req.ASRConfidence,
		TopK:          k,
	}, nil
}

func baseLanguage(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", malformed("language is required")
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "", malformed("invalid language tag %q", tag)
	}
	base, conf := t.Base()
	if conf == language.No || base.String() == "und" {
		return "", malformed("invalid language tag %q", tag)
	}
	return base.String(), nil
}
