package infrastructure

import (
	"strings"
)

const (
	DefaultConfidence   = 0.8
	UncertainConfidence = 0.3
	HedgedConfidenceCap = 0.5

	// UncertaintyMarker is what the model is told to prefix unsure answers with.
	UncertaintyMarker = "[UNSURE]"
)

var hedgingPhrases = []string{
	"не уверен",
	"не знаю",
	"возможно",
	"вероятно",
	"лучше спросить",
	"свяжитесь с",
	"уточните у",
	"not sure",
	"don't know",
	"maybe",
	"likely",
	"better to ask",
	"contact",
	"please clarify",
}

// ScoreReply strips the uncertainty marker from a raw model reply and
// estimates how much the reply can be trusted.
func ScoreReply(raw string) (string, float64) {
	reply := strings.TrimSpace(raw)
	confidence := DefaultConfidence

	if strings.HasPrefix(reply, UncertaintyMarker) {
		confidence = UncertainConfidence
		reply = strings.TrimSpace(strings.TrimPrefix(reply, UncertaintyMarker))
	}

	lower := strings.ToLower(reply)
	for _, phrase := range hedgingPhrases {
		if strings.Contains(lower, phrase) {
			confidence = min(confidence, HedgedConfidenceCap)
			break
		}
	}

	return reply, confidence
}
