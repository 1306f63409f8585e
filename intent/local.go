package intent

import (
	"context"
	"slices"
	"strings"
	"unicode"

	"github.com/tbxark/surveyagent/types"
)

// MaxExitWords bounds the length of utterances checked for exit phrases, so
// that "done" inside a longer answer is not read as leaving.
const MaxExitWords = 5

type Keywords struct {
	ExitKeywords    []string
	DeclineKeywords []string
	// NegativeKeywords end a conversation only when nothing has been filled yet.
	NegativeKeywords []string
	// FarewellKeywords opening or closing an utterance exit at any length.
	FarewellKeywords []string
}

func NewKeywords() *Keywords {
	return &Keywords{
		ExitKeywords:     []string{"bye", "exit", "quit", "end", "stop", "done", "finish"},
		DeclineKeywords:  []string{"no", "not now", "skip", "maybe later", "not interested", "no thanks"},
		NegativeKeywords: []string{"no", "n"},
		FarewellKeywords: []string{"bye", "goodbye"},
	}
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func (k *Keywords) IsExit(utterance string, filled int) bool {
	ws := words(utterance)
	if len(ws) == 0 {
		return false
	}
	if filled == 0 && len(ws) == 1 && slices.Contains(k.NegativeKeywords, ws[0]) {
		return true
	}
	if len(ws) > MaxExitWords {
		return slices.Contains(k.FarewellKeywords, ws[0]) || slices.Contains(k.FarewellKeywords, ws[len(ws)-1])
	}
	for _, w := range ws {
		if slices.Contains(k.ExitKeywords, w) || slices.Contains(k.FarewellKeywords, w) {
			return true
		}
	}
	return false
}

// IsDecline reports whether the utterance is, or starts with, a decline phrase.
func (k *Keywords) IsDecline(utterance string) bool {
	normalized := strings.Join(words(utterance), " ")
	if normalized == "" {
		return false
	}
	for _, phrase := range k.DeclineKeywords {
		if normalized == phrase || strings.HasPrefix(normalized, phrase+" ") {
			return true
		}
	}
	return false
}

// KeywordRecognizer classifies utterances. Detector is optional; without it no
// new topics are reported.
type KeywordRecognizer struct {
	Keywords *Keywords
	Detector TopicDetector
}

func NewKeywordRecognizer(detector TopicDetector) *KeywordRecognizer {
	return &KeywordRecognizer{Keywords: NewKeywords(), Detector: detector}
}

// Recognize returns Answer together with the detector error when topic
// detection fails.
func (r *KeywordRecognizer) Recognize(ctx context.Context, req *Request) (Intent, error) {
	if r.Keywords.IsExit(req.Utterance, req.Filled) {
		return Intent{Kind: Exit}, nil
	}
	if req.Phase != types.PhaseFollowUp {
		return Intent{Kind: Answer}, nil
	}
	if req.SubCollecting {
		if r.Keywords.IsDecline(req.Utterance) {
			return Intent{Kind: Decline}, nil
		}
		return Intent{Kind: Answer}, nil
	}
	if r.Detector == nil {
		return Intent{Kind: Answer}, nil
	}
	topic, err := r.Detector.DetectTopic(ctx, req)
	if err != nil {
		return Intent{Kind: Answer}, err
	}
	if topic == "" {
		return Intent{Kind: Answer}, nil
	}
	return Intent{Kind: NewTopic, Topic: topic}, nil
}

var _ Recognizer = (*KeywordRecognizer)(nil)
