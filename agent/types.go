package agent

import (
	"errors"

	"github.com/tbxark/surveyagent/types"
)

var (
	// ErrInternal marks a turn that failed unexpectedly and left the state unchanged.
	ErrInternal = errors.New("internal error while processing turn")
	ErrTerminal = errors.New("conversation has ended")
)

type AdditionalStatus struct {
	Topic         string         `json:"topic,omitempty"`
	Active        bool           `json:"active"`
	CollectedData map[string]any `json:"collected_data,omitempty"`
	MissingFields []string       `json:"missing_fields,omitempty"`
	Completed     int            `json:"completed"`
}

type Response struct {
	Message       string            `json:"message"`
	Status        types.Phase       `json:"status"`
	CollectedData map[string]any    `json:"collected_data"`
	MissingFields []string          `json:"missing_fields"`
	Additional    *AdditionalStatus `json:"additional,omitempty"`
}

// Outcome is the result of one turn. State is a new value unless Err is set,
// in which case it is the untouched input state.
type Outcome struct {
	State    *State
	Response *Response
	// Persist holds snapshots of records that reached a save point this turn.
	Persist []types.Record
	Err     error
}
