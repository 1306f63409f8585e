package dialogue

import (
	"fmt"
	"strings"

	"github.com/tbxark/surveyagent/types"
)

func formatQuestionInput(req *QuestionRequest) string {
	sections := make([]string, 0, 6)
	if req.CustomerContext != "" {
		sections = append(sections, fmt.Sprintf("# Customer context:\n%s", req.CustomerContext))
	}
	if req.Schema != nil {
		if s := types.FormatCollected(req.Schema, req.Collected); s != "" {
			sections = append(sections, s)
		}
		sections = append(sections, types.FormatMissing(req.Schema, req.Collected))
	}
	if len(req.Examples) > 0 {
		sections = append(sections, fmt.Sprintf("# Previous %s examples:\n%s", req.Field.Name, strings.Join(req.Examples, "; ")))
	}
	sections = append(sections, fmt.Sprintf("# Next field needed:\n%s - %s", req.Field.Name, req.Field.Definition))
	sections = append(sections, fmt.Sprintf("# User just said:\n%s", req.Utterance))
	return strings.Join(sections, "\n\n")
}

func formatGreetingInput(req *GreetingRequest) string {
	sections := []string{fmt.Sprintf("# Customer context:\n%s", req.CustomerContext)}
	if req.PreviousSummary != "" {
		sections = append(sections, fmt.Sprintf("# Previous initiatives:\n%s", req.PreviousSummary))
	}
	sections = append(sections, "Generate greeting:")
	return strings.Join(sections, "\n\n")
}
