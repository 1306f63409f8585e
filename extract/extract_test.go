package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/tbxark/surveyagent/normalize"
	"github.com/tbxark/surveyagent/testcases"
	"github.com/tbxark/surveyagent/types"
)

func testSchema() *types.Schema {
	return types.MustSchema("Initiative",
		types.Field{Name: "Initiative", Definition: "The name of the initiative"},
		types.Field{Name: "Budget", Definition: "The budget"},
	)
}

func TestScanObject(t *testing.T) {
	raw, ok := ScanObject(`Sure! {"a": {"b": 1}} hope that helps }`)
	require.True(t, ok)
	require.Equal(t, `{"a": {"b": 1}} hope that helps }`, raw)

	_, ok = ScanObject("no braces here")
	require.False(t, ok)

	_, ok = ScanObject("} reversed {")
	require.False(t, ok)
}

func TestDecode(t *testing.T) {
	res := Decode("Here you go:\n{\"Initiative\": \"chatbot\", \"Budget\": null}\nThanks")
	require.Nil(t, res.Failure)
	require.Equal(t, "chatbot", res.Values["Initiative"])

	res = Decode("nothing")
	require.Equal(t, NoJSONFound, res.Failure.Reason)
	require.Empty(t, res.Values)

	res = Decode("{not json}")
	require.Equal(t, ParseError, res.Failure.Reason)
}

func TestTextExtractor(t *testing.T) {
	cm := testcases.Text(`{"Initiative": "chatbot", "Budget": "500k"}`)
	e := NewTextExtractor(cm)
	s := testSchema()

	res := e.Extract(context.Background(), &Request{Schema: s, Record: s.NewRecord(), Utterance: "We're building a chatbot, budget 500k"})
	require.Nil(t, res.Failure)
	require.Len(t, res.Values, 2)

	calls := cm.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, schema.System, calls[0][0].Role)
	require.Contains(t, calls[0][0].Content, "- Budget: The budget")
	require.Contains(t, calls[0][1].Content, "budget 500k")
}

func TestTextExtractor_CollaboratorError(t *testing.T) {
	e := NewTextExtractor(testcases.Failing(errors.New("boom")))
	s := testSchema()
	res := e.Extract(context.Background(), &Request{Schema: s, Record: s.NewRecord(), Utterance: "hi"})
	require.Equal(t, CollaboratorError, res.Failure.Reason)
	require.ErrorContains(t, res.Failure, "boom")
}

func TestToolBasedExtractor(t *testing.T) {
	s := testSchema()
	cm := &testcases.ChatModel{Replies: []*schema.Message{
		testcases.ToolCall(recordFieldsToolName, `{"Budget": "2m"}`),
		schema.AssistantMessage("I could not find anything", nil),
	}}
	e, err := NewToolBasedExtractor(cm, s)
	require.NoError(t, err)

	res := e.Extract(context.Background(), &Request{Schema: s, Record: s.NewRecord(), Utterance: "budget is 2m"})
	require.Nil(t, res.Failure)
	require.Equal(t, "2m", res.Values["Budget"])

	res = e.Extract(context.Background(), &Request{Schema: s, Record: s.NewRecord(), Utterance: "hello"})
	require.Equal(t, NoJSONFound, res.Failure.Reason)
}

func TestApply_MonotonicFill(t *testing.T) {
	s := testSchema()
	n := normalize.New(s)

	rec, filled, err := Apply(s, n, s.NewRecord(), map[string]any{"Initiative": "chatbot", "Budget": "null"})
	require.NoError(t, err)
	require.Equal(t, []string{"Initiative"}, filled)
	require.Equal(t, []string{"Budget"}, s.Missing(rec))

	rec, filled, err = Apply(s, n, rec, map[string]any{"Initiative": "voice bot", "Budget": "500k", "Other": "x"})
	require.NoError(t, err)
	require.Equal(t, []string{"Budget"}, filled)
	v, _ := rec.Get("Initiative")
	require.Equal(t, "chatbot", v)
	v, _ = rec.Get("Budget")
	require.Equal(t, "$0.5M", v)
}
