package agent

import (
	"github.com/tbxark/surveyagent/types"
)

// SubCollection is a secondary record collected during follow-up.
type SubCollection struct {
	Topic  string       `json:"topic"`
	Record types.Record `json:"record"`
}

type State struct {
	Phase   types.Phase  `json:"phase"`
	Primary types.Record `json:"primary"`
	History *History     `json:"history"`
	// Sub is set while an additional record is being collected.
	Sub            *SubCollection `json:"sub,omitempty"`
	Additional     []types.Record `json:"additional,omitempty"`
	LatestQuestion string         `json:"latest_question,omitempty"`
}

func NewState(schema *types.Schema, maxHistory, tolerance int) *State {
	return &State{
		Phase:   types.PhaseCollecting,
		Primary: schema.NewRecord(),
		History: NewHistory(maxHistory, tolerance),
	}
}

func (s *State) Clone() *State {
	c := &State{
		Phase:          s.Phase,
		Primary:        s.Primary.Clone(),
		LatestQuestion: s.LatestQuestion,
	}
	if s.History != nil {
		c.History = s.History.Clone()
	} else {
		c.History = NewHistory(DefaultMaxHistory, DefaultHistoryTolerance)
	}
	if s.Sub != nil {
		c.Sub = &SubCollection{Topic: s.Sub.Topic, Record: s.Sub.Record.Clone()}
	}
	if len(s.Additional) > 0 {
		c.Additional = make([]types.Record, len(s.Additional))
		for i, rec := range s.Additional {
			c.Additional[i] = rec.Clone()
		}
	}
	return c
}

// ActiveRecord is the record the next answer fills.
func (s *State) ActiveRecord() types.Record {
	if s.Sub != nil {
		return s.Sub.Record
	}
	return s.Primary
}

// Pending lists the records that still need to reach the store: the primary
// record and an in-flight secondary record.
func (s *State) Pending() []types.Record {
	out := []types.Record{s.Primary.Clone()}
	if s.Sub != nil {
		out = append(out, s.Sub.Record.Clone())
	}
	return out
}
