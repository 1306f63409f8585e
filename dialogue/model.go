package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// DefaultInterviewSystemPromptTemplate takes the field order and the reply language.
const DefaultInterviewSystemPromptTemplate = `You are a professional AI consultant representing the AI Centre of Excellence.
Your role is to conduct a structured interview to gather comprehensive information about AI initiatives.

CONVERSATION GUIDELINES:
1. Be conversational, professional, and engaging
2. Ask ONE question at a time to collect specific information
3. Build upon previous responses to show active listening
4. Reference the customer's context and previous initiatives when relevant
5. Keep questions focused and avoid overwhelming the customer

RESPONSE FORMAT:
Always respond with just your question or comment, no special formatting, thoughts, or reasoning sections.
Keep responses concise and natural. Reply in %[2]s.

FIELD COLLECTION ORDER: %[1]s`

const DefaultFollowUpSystemPrompt = `You are a professional AI consultant. The structured interview is complete.
Continue the conversation briefly and warmly: acknowledge what the user said, invite them to elaborate,
and ask whether they are working on any other AI initiatives. Keep it to one or two sentences.`

const DefaultGreetingSystemPrompt = `Generate a warm, professional greeting for an AI initiative interview.
Reference the customer context and any previous initiatives if available.
Ask about their current AI initiatives in a conversational way.
Keep it concise and engaging, just 2-3 sentences.`

var errEmptyReply = errors.New("model returned an empty reply")

type generatorOptions struct {
	lang                 string
	systemPromptTemplate string
	followUpPrompt       string
	greetingPrompt       string
}

type GeneratorOption func(*generatorOptions)

// WithDialogueLang sets the reply language used by the interview prompt.
func WithDialogueLang(lang string) GeneratorOption {
	return func(o *generatorOptions) {
		o.lang = lang
	}
}

// WithInterviewSystemPromptTemplate overrides the interview prompt. The template
// receives the field order as %[1]s and the language as %[2]s.
func WithInterviewSystemPromptTemplate(tpl string) GeneratorOption {
	return func(o *generatorOptions) {
		o.systemPromptTemplate = tpl
	}
}

func WithFollowUpSystemPrompt(prompt string) GeneratorOption {
	return func(o *generatorOptions) {
		o.followUpPrompt = prompt
	}
}

// ModelGenerator produces replies with a chat model.
type ModelGenerator struct {
	chatModel model.BaseChatModel
	options   generatorOptions
}

func NewModelGenerator(chatModel model.BaseChatModel, opts ...GeneratorOption) *ModelGenerator {
	options := generatorOptions{
		lang:                 "English",
		systemPromptTemplate: DefaultInterviewSystemPromptTemplate,
		followUpPrompt:       DefaultFollowUpSystemPrompt,
		greetingPrompt:       DefaultGreetingSystemPrompt,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.lang == "" {
		options.lang = "English"
	}
	return &ModelGenerator{chatModel: chatModel, options: options}
}

func (g *ModelGenerator) Greeting(ctx context.Context, req *GreetingRequest) (string, error) {
	return g.generate(ctx, []*schema.Message{
		schema.SystemMessage(g.options.greetingPrompt),
		schema.UserMessage(formatGreetingInput(req)),
	})
}

func (g *ModelGenerator) NextQuestion(ctx context.Context, req *QuestionRequest) (string, error) {
	fieldOrder := ""
	if req.Schema != nil {
		fieldOrder = strings.Join(req.Schema.Names(), ", ")
	}
	messages := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(g.options.systemPromptTemplate, fieldOrder, g.options.lang)),
	}
	messages = append(messages, req.History.Messages()...)
	messages = append(messages, schema.UserMessage(formatQuestionInput(req)))
	return g.generate(ctx, messages)
}

func (g *ModelGenerator) FollowUpReply(ctx context.Context, req *FollowUpRequest) (string, error) {
	messages := []*schema.Message{schema.SystemMessage(g.options.followUpPrompt)}
	messages = append(messages, req.History.Messages()...)
	messages = append(messages, schema.UserMessage(req.Utterance))
	return g.generate(ctx, messages)
}

func (g *ModelGenerator) generate(ctx context.Context, messages []*schema.Message) (string, error) {
	resp, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errEmptyReply
	}
	return text, nil
}

var _ Generator = (*ModelGenerator)(nil)
