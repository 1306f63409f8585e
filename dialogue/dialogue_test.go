package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/tbxark/surveyagent/testcases"
	"github.com/tbxark/surveyagent/types"
)

func TestFallbackQuestion(t *testing.T) {
	require.Equal(t, "Could you tell me more about the approved budget in usd?", FallbackQuestion("The approved budget in USD"))
	require.Equal(t, "Could you tell me more about this information?", FallbackQuestion(" "))
}

func TestLocalGenerator(t *testing.T) {
	g := LocalGenerator{}
	q, err := g.NextQuestion(context.Background(), &QuestionRequest{Field: types.Field{Name: "Budget", Definition: "Budget Amount"}})
	require.NoError(t, err)
	require.Equal(t, "Could you tell me more about budget amount?", q)

	r, err := g.FollowUpReply(context.Background(), &FollowUpRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, r)
}

func TestModelGenerator_NextQuestion(t *testing.T) {
	s := types.MustSchema("",
		types.Field{Name: "Initiative", Definition: "name"},
		types.Field{Name: "Budget", Definition: "The budget"},
	)
	rec := s.NewRecord()
	rec.Set("Initiative", "chatbot")
	cm := testcases.Text("  What budget has been approved?  ")
	g := NewModelGenerator(cm, WithDialogueLang("German"))

	now := time.Now()
	q, err := g.NextQuestion(context.Background(), &QuestionRequest{
		History: types.Turns{
			{Role: types.RoleAssistant, Text: "Hello!", Timestamp: now},
			{Role: types.RoleUser, Text: "a chatbot", Timestamp: now},
		},
		CustomerContext: "Customer context:\nCompany: Acme",
		Schema:          s,
		Collected:       rec,
		Examples:        []string{"$1.0M", "$2.0M"},
		Field:           types.Field{Name: "Budget", Definition: "The budget"},
		Utterance:       "a chatbot",
	})
	require.NoError(t, err)
	require.Equal(t, "What budget has been approved?", q)

	msgs := cm.Calls()[0]
	require.Len(t, msgs, 4)
	require.Contains(t, msgs[0].Content, "FIELD COLLECTION ORDER: Initiative, Budget")
	require.Contains(t, msgs[0].Content, "Reply in German")
	require.Equal(t, schema.Assistant, msgs[1].Role)
	last := msgs[3].Content
	require.Contains(t, last, "Company: Acme")
	require.Contains(t, last, "chatbot")
	require.Contains(t, last, "# Previous Budget examples:\n$1.0M; $2.0M")
	require.Contains(t, last, "Budget - The budget")
	require.Contains(t, last, "# Missing fields:")
	require.NotContains(t, last[strings.Index(last, "# Missing fields:"):strings.Index(last, "# Previous")], "Initiative")
}

func TestModelGenerator_Errors(t *testing.T) {
	g := NewModelGenerator(testcases.Failing(errors.New("down")))
	_, err := g.FollowUpReply(context.Background(), &FollowUpRequest{Utterance: "hi"})
	require.Error(t, err)

	g = NewModelGenerator(testcases.Text("   "))
	_, err = g.Greeting(context.Background(), &GreetingRequest{CustomerContext: "ctx"})
	require.ErrorIs(t, err, errEmptyReply)
}
