package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// DefaultExtractionSystemPromptTemplate takes the field definitions as its only "%s".
const DefaultExtractionSystemPromptTemplate = `Extract specific information from the user's response ONLY.
Do not extract information from the assistant's questions.

Fields to extract:
%s

Return a JSON object with field names as keys. Use null for fields not mentioned by the user.
Only extract information explicitly stated by the user.

Example format:
{"Initiative": "chatbot project", "Type of AI": "natural language processing", "Department": null}`

// TextExtractor asks the model for a JSON object and scans it out of the reply.
type TextExtractor struct {
	chatModel      model.BaseChatModel
	promptTemplate string
}

type ExtractorOption func(*TextExtractor)

func WithExtractionPromptTemplate(tpl string) ExtractorOption {
	return func(e *TextExtractor) {
		e.promptTemplate = tpl
	}
}

func NewTextExtractor(chatModel model.BaseChatModel, opts ...ExtractorOption) *TextExtractor {
	e := &TextExtractor{
		chatModel:      chatModel,
		promptTemplate: DefaultExtractionSystemPromptTemplate,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *TextExtractor) Extract(ctx context.Context, req *Request) *Result {
	messages := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(e.promptTemplate, req.Schema.Definitions())),
		schema.UserMessage(fmt.Sprintf("User response: %s\n\nExtract information as JSON:", req.Utterance)),
	}
	resp, err := e.chatModel.Generate(ctx, messages)
	if err != nil {
		return failed(CollaboratorError, err)
	}
	result := Decode(resp.Content)
	slog.Debug("extraction parsed", "fields", len(result.Values), "failed", result.Failure != nil)
	return result
}

var _ Extractor = (*TextExtractor)(nil)
