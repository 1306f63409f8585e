package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// NoTopic is the sentinel the model answers with when no new initiative is mentioned.
const NoTopic = "NONE"

const DefaultTopicSystemPrompt = `You help an interviewer who has just finished recording one AI initiative.
Decide whether the user's latest message mentions a different AI initiative that has not been discussed yet.

If it does, answer with a short name for that initiative (at most six words) and nothing else.
If it does not, answer with exactly ` + NoTopic + `.`

type ModelTopicDetector struct {
	chatModel    model.BaseChatModel
	systemPrompt string
}

type DetectorOption func(*ModelTopicDetector)

func WithTopicSystemPrompt(prompt string) DetectorOption {
	return func(d *ModelTopicDetector) {
		d.systemPrompt = prompt
	}
}

func NewModelTopicDetector(chatModel model.BaseChatModel, opts ...DetectorOption) (*ModelTopicDetector, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model must not be nil")
	}
	d := &ModelTopicDetector{chatModel: chatModel, systemPrompt: DefaultTopicSystemPrompt}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *ModelTopicDetector) DetectTopic(ctx context.Context, req *Request) (string, error) {
	messages := []*schema.Message{schema.SystemMessage(d.systemPrompt)}
	messages = append(messages, req.History.Messages()...)
	messages = append(messages, schema.UserMessage(fmt.Sprintf("# User just said:\n%s", req.Utterance)))
	resp, err := d.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("detect topic failed: %w", err)
	}
	topic := strings.Trim(strings.TrimSpace(resp.Content), `"'.`)
	if topic == "" || strings.EqualFold(topic, NoTopic) {
		return "", nil
	}
	return topic, nil
}

var _ TopicDetector = (*ModelTopicDetector)(nil)
