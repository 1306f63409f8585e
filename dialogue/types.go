package dialogue

import (
	"context"

	"github.com/tbxark/surveyagent/types"
)

type GreetingRequest struct {
	CustomerContext string
	// PreviousSummary is a short description of earlier stored records.
	PreviousSummary string
}

type QuestionRequest struct {
	History         types.Turns
	CustomerContext string
	Schema          *types.Schema
	Collected       types.Record
	// Examples holds up to three earlier values of Field.
	Examples  []string
	Field     types.Field
	Utterance string
}

type FollowUpRequest struct {
	History   types.Turns
	Utterance string
}

// Generator produces the assistant's conversational text.
type Generator interface {
	Greeting(ctx context.Context, req *GreetingRequest) (string, error)
	NextQuestion(ctx context.Context, req *QuestionRequest) (string, error)
	FollowUpReply(ctx context.Context, req *FollowUpRequest) (string, error)
}
