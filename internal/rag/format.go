package rag

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"civiccite/internal/models"
	"civiccite/internal/policy"
	"civiccite/internal/util"
)

const (
	offerMorePrompt  = "Would you like more?"
	voiceFallback    = "Sorry, I cannot provide an answer right now."
	smsRefusalFormat = "We cannot answer that request: %s."
)

var errCannotShape = errors.New("answer cannot be shaped for channel")

type FormatOptions struct {
	SMSMaxRunes   int
	VoiceMaxRunes int
}

func (o FormatOptions) withDefaults() FormatOptions {
	if o.SMSMaxRunes <= 0 {
		o.SMSMaxRunes = 320
	}
	if o.VoiceMaxRunes <= 0 {
		o.VoiceMaxRunes = 400
	}
	return o
}

// FormatChannel shapes a grounded answer for its channel. When shaping fails
// the answer keeps the web shape and is marked models.FalseSafe. no_info and
// refused answers get the channel's message instead.
func FormatChannel(a models.Answer, ch models.Channel, opts FormatOptions) models.Answer {
	opts = opts.withDefaults()
	if a.Resolution != models.ResolutionAnswer {
		return formatOutcome(a, ch, opts)
	}
	switch ch {
	case models.ChannelSMS:
		sms, err := shapeSMS(a, opts.SMSMaxRunes)
		if err != nil {
			a.Truncated = models.FalseSafe
			return a
		}
		a.SMS = &sms
	case models.ChannelVoice:
		voice, err := shapeVoice(a, opts.VoiceMaxRunes)
		if err != nil {
			a.Truncated = models.FalseSafe
			return a
		}
		a.Voice = &voice
	}
	return a
}

func shapeSMS(a models.Answer, maxRunes int) (models.SMSPayload, error) {
	if len(a.Citations) == 0 {
		return models.SMSPayload{}, errCannotShape
	}
	host := policy.Host(a.Citations[0].SourceURL)
	if host == "" {
		return models.SMSPayload{}, fmt.Errorf("%w: citation has no host", errCannotShape)
	}
	suffix := " Source: " + host
	budget := maxRunes - utf8.RuneCountInString(suffix)

	parts := make([]string, 0, len(a.AnswerLines))
	for _, l := range a.AnswerLines {
		if s := StripMarkers(l); s != "" {
			parts = append(parts, s)
		}
	}
	body, cut := util.TruncateAtWord(strings.Join(parts, " "), budget)
	if budget <= 0 || body == "" {
		return models.SMSPayload{}, fmt.Errorf("%w: no room for body", errCannotShape)
	}
	return models.SMSPayload{Message: body + suffix, Truncated: cut}, nil
}

func shapeVoice(a models.Answer, maxRunes int) (models.VoicePayload, error) {
	if len(a.AnswerLines) == 0 {
		return models.VoicePayload{}, errCannotShape
	}
	line := StripMarkers(a.AnswerLines[0])
	line, ok := util.TruncateAtSentence(line, maxRunes)
	if !ok || line == "" {
		return models.VoicePayload{}, fmt.Errorf("%w: no sentence end within %d characters", errCannotShape, maxRunes)
	}
	return models.VoicePayload{Speech: line + " " + offerMorePrompt, OfferMore: true}, nil
}

func formatOutcome(a models.Answer, ch models.Channel, opts FormatOptions) models.Answer {
	switch ch {
	case models.ChannelSMS:
		msg := a.Message
		if a.Resolution == models.ResolutionRefused && msg != "" {
			msg = fmt.Sprintf(smsRefusalFormat, strings.TrimRight(msg, ". "))
		}
		if msg == "" {
			msg = messageNoInformation + "."
		}
		msg, cut := util.TruncateAtWord(msg, opts.SMSMaxRunes)
		a.SMS = &models.SMSPayload{Message: msg, Truncated: cut}
	case models.ChannelVoice:
		speech := voiceFallback
		if a.Resolution == models.ResolutionRefused && a.Message != "" {
			speech = strings.TrimRight(a.Message, ". ") + "."
		}
		a.Voice = &models.VoicePayload{Speech: speech}
	}
	return a
}
