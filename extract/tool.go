package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/surveyagent/structured"
	"github.com/tbxark/surveyagent/types"
)

const (
	recordFieldsToolName        = "record_fields"
	recordFieldsToolDescription = "Record the field values explicitly stated in the user's response. Omit fields the user did not mention."
)

// ToolBasedExtractor forces a tool call whose parameters are the schema fields.
type ToolBasedExtractor struct {
	chain *structured.Chain[*Request, map[string]any]
}

func NewToolBasedExtractor(chatModel model.ToolCallingChatModel, s *types.Schema) (*ToolBasedExtractor, error) {
	params := make(map[string]*schema.ParameterInfo, s.Len())
	for _, f := range s.Fields() {
		params[f.Name] = &schema.ParameterInfo{Type: schema.String, Desc: f.Definition}
	}
	chain, err := structured.NewChainWithToolInfo[*Request, map[string]any](
		chatModel,
		buildToolPrompt,
		&schema.ToolInfo{
			Name:        recordFieldsToolName,
			Desc:        recordFieldsToolDescription,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		},
	)
	if err != nil {
		return nil, err
	}
	return &ToolBasedExtractor{chain: chain}, nil
}

func (e *ToolBasedExtractor) Extract(ctx context.Context, req *Request) *Result {
	values, err := e.chain.Invoke(ctx, req)
	if errors.Is(err, structured.ErrNoToolCall) {
		return failed(NoJSONFound, err)
	}
	if err != nil {
		return failed(CollaboratorError, err)
	}
	if values == nil {
		return failed(NoJSONFound, nil)
	}
	return &Result{Values: *values}
}

func buildToolPrompt(ctx context.Context, req *Request) ([]*schema.Message, error) {
	if req.Schema == nil {
		return nil, fmt.Errorf("request schema is nil")
	}
	systemPrompt := fmt.Sprintf("You extract survey answers. Analyze the user's response ONLY and call %s with the fields it explicitly states.\n\nFields:\n%s",
		recordFieldsToolName, req.Schema.Definitions())
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(req.Utterance),
	}, nil
}

var _ Extractor = (*ToolBasedExtractor)(nil)
