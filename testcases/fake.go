// Package testcases holds shared test doubles and the opt-in live model tests.
package testcases

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

// ChatModel is a scripted chat model. Respond takes precedence over Replies.
type ChatModel struct {
	mu      sync.Mutex
	Respond func(ctx context.Context, input []*schema.Message) (*schema.Message, error)
	Replies []*schema.Message
	Err     error
	calls   [][]*schema.Message
}

// Text returns a model answering every call with content.
func Text(content string) *ChatModel {
	return &ChatModel{Respond: func(ctx context.Context, input []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(content, nil), nil
	}}
}

// Failing returns a model whose calls all fail with err.
func Failing(err error) *ChatModel {
	return &ChatModel{Err: err}
}

// ToolCall builds an assistant message calling name with JSON arguments.
func ToolCall(name, arguments string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call-1",
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: arguments},
	}})
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, input)
	respond := m.Respond
	err := m.Err
	var next *schema.Message
	if respond == nil && err == nil && len(m.Replies) > 0 {
		next = m.Replies[0]
		m.Replies = m.Replies[1:]
	}
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if respond != nil {
		return respond(ctx, input)
	}
	if next == nil {
		return nil, errors.New("testcases: no scripted reply left")
	}
	return next, nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// Calls returns the inputs of every Generate call so far.
func (m *ChatModel) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*schema.Message, len(m.calls))
	copy(out, m.calls)
	return out
}
