package extract

import (
	"context"
	"fmt"

	"github.com/tbxark/surveyagent/types"
)

type FailureReason string

const (
	NoJSONFound       FailureReason = "no_json_found"
	ParseError        FailureReason = "parse_error"
	CollaboratorError FailureReason = "collaborator_error"
)

// Failure describes why a turn yielded no extracted fields. It is reported, never raised.
type Failure struct {
	Reason FailureReason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "extraction failed: " + string(f.Reason)
	}
	return fmt.Sprintf("extraction failed: %s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

type Request struct {
	Schema *types.Schema
	Record types.Record
	// Utterance is the latest user text only; assistant questions are never extracted from.
	Utterance string
}

type Result struct {
	Values  map[string]any
	Failure *Failure
}

type Extractor interface {
	Extract(ctx context.Context, req *Request) *Result
}

func failed(reason FailureReason, err error) *Result {
	return &Result{Failure: &Failure{Reason: reason, Err: err}}
}
