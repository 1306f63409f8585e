package testcases

import (
	"context"
	"os"
	"testing"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/tbxark/surveyagent/agent"
	"github.com/tbxark/surveyagent/config"
	"github.com/tbxark/surveyagent/store"
	"github.com/tbxark/surveyagent/types"
)

// InitChatModel connects to the model named in ../config.json. The test is
// skipped unless SURVEYAGENT_RUN_LIVE_TESTS=1.
func InitChatModel(t *testing.T) (*openai.ChatModel, *config.Config) {
	t.Helper()
	if os.Getenv("SURVEYAGENT_RUN_LIVE_TESTS") != "1" {
		t.Skip("set SURVEYAGENT_RUN_LIVE_TESTS=1 to run live LLM tests")
	}
	conf, err := config.Load("../config.json")
	if err != nil {
		t.Skipf("failed to load config: %v", err)
	}
	if conf.APIKey == "" {
		t.Skip("config.json api_key is empty")
	}
	chatModel, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		APIKey:  conf.APIKey,
		Model:   conf.Model,
		BaseURL: conf.BaseURL,
	})
	if err != nil {
		t.Fatalf("failed to init chat model: %v", err)
	}
	return chatModel, conf
}

// NewLiveMachine builds a model-backed machine over the fallback survey fields.
func NewLiveMachine(t *testing.T, toolExtraction bool) *agent.Machine {
	t.Helper()
	chatModel, _ := InitChatModel(t)
	catalog := &types.Catalog{
		Schema:  store.FallbackSchema(),
		Context: store.DefaultContext,
	}
	m, err := agent.NewModelMachine(catalog, chatModel, toolExtraction, nil)
	if err != nil {
		t.Fatalf("failed to create machine: %v", err)
	}
	return m
}
