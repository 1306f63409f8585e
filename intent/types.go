package intent

import (
	"context"

	"github.com/tbxark/surveyagent/types"
)

type Kind string

const (
	Answer   Kind = "answer"
	Exit     Kind = "exit"
	Decline  Kind = "decline"
	NewTopic Kind = "new_topic"
)

// Intent is the single classification of one user utterance.
type Intent struct {
	Kind Kind `json:"kind"`
	// Topic is set for NewTopic only.
	Topic string `json:"topic,omitempty"`
}

type Request struct {
	Utterance string
	Phase     types.Phase
	// SubCollecting is set while a secondary record is being collected.
	SubCollecting bool
	// Filled counts the filled fields of the record the utterance is aimed at.
	Filled  int
	History types.Turns
}

type Recognizer interface {
	Recognize(ctx context.Context, req *Request) (Intent, error)
}

// TopicDetector names a new initiative mentioned in an utterance, or returns
// an empty string when there is none.
type TopicDetector interface {
	DetectTopic(ctx context.Context, req *Request) (string, error)
}
