package agent

import (
	"encoding/json"

	"github.com/tbxark/surveyagent/types"
)

const (
	DefaultMaxHistory       = 50
	DefaultHistoryTolerance = 10
	historyHead             = 5
)

type Trimmer interface {
	Trim(history types.Turns) types.Turns
}

// KeepHeadTailTrimmer keeps the first Head turns and the most recent Max-Head
// turns. Histories of at most Max turns are returned unchanged.
type KeepHeadTailTrimmer struct {
	Head int
	Max  int
}

func (t KeepHeadTailTrimmer) Trim(history types.Turns) types.Turns {
	if t.Max <= 0 || len(history) <= t.Max {
		return history
	}
	head := t.Head
	if head > t.Max {
		head = t.Max
	}
	out := make(types.Turns, 0, t.Max)
	out = append(out, history[:head]...)
	out = append(out, history[len(history)-(t.Max-head):]...)
	return out
}

// History is the bounded conversation buffer of one session. It grows up to
// max+tolerance turns before it is compacted back to max.
type History struct {
	turns     types.Turns
	max       int
	tolerance int
	trimmer   Trimmer
}

func NewHistory(max, tolerance int) *History {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	if tolerance < 0 {
		tolerance = 0
	}
	return &History{
		max:       max,
		tolerance: tolerance,
		trimmer:   KeepHeadTailTrimmer{Head: historyHead, Max: max},
	}
}

func (h *History) Append(turns ...types.Turn) {
	for _, turn := range turns {
		h.turns = append(h.turns, turn)
		if len(h.turns) > h.max+h.tolerance {
			h.turns = h.trimmer.Trim(h.turns)
		}
	}
}

func (h *History) Len() int {
	return len(h.turns)
}

// Turns returns a copy of the stored turns.
func (h *History) Turns() types.Turns {
	out := make(types.Turns, len(h.turns))
	copy(out, h.turns)
	return out
}

// Window returns the turns handed to the model: everything up to max turns,
// otherwise the head and the most recent turns.
func (h *History) Window() types.Turns {
	return h.trimmer.Trim(h.Turns())
}

func (h *History) Clone() *History {
	c := *h
	c.turns = h.Turns()
	return &c
}

func (h *History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Turns())
}
