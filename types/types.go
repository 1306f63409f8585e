package types

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseFollowUp   Phase = "follow_up"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
)

// Terminal reports whether no further turns are accepted in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Turns []Turn

// Messages converts turns into chat messages in conversation order.
func (t Turns) Messages() []*schema.Message {
	out := make([]*schema.Message, 0, len(t))
	for _, turn := range t {
		switch turn.Role {
		case RoleUser:
			out = append(out, schema.UserMessage(turn.Text))
		case RoleAssistant:
			out = append(out, schema.AssistantMessage(turn.Text, nil))
		}
	}
	return out
}

// Catalog is the read-only data loaded once at startup.
type Catalog struct {
	Schema   *Schema
	Context  string
	Previous PreviousRecords
}
