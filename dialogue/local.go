package dialogue

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultGreeting      = "Hello! I'd love to learn about the AI initiatives you're currently working on. Could you tell me about a specific AI project you're involved with?"
	defaultFollowUpReply = "Thanks for sharing that! Is there anything else about your AI initiatives you'd like to add?"
)

// LocalGenerator answers from fixed templates and never fails.
type LocalGenerator struct{}

func (LocalGenerator) Greeting(ctx context.Context, req *GreetingRequest) (string, error) {
	return defaultGreeting, nil
}

func (LocalGenerator) NextQuestion(ctx context.Context, req *QuestionRequest) (string, error) {
	return FallbackQuestion(req.Field.Definition), nil
}

func (LocalGenerator) FollowUpReply(ctx context.Context, req *FollowUpRequest) (string, error) {
	return defaultFollowUpReply, nil
}

// FallbackQuestion asks about a field using its definition.
func FallbackQuestion(definition string) string {
	definition = strings.TrimSpace(definition)
	if definition == "" {
		definition = "this information"
	}
	return fmt.Sprintf("Could you tell me more about %s?", strings.ToLower(definition))
}

var _ Generator = LocalGenerator{}
