package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/tbxark/surveyagent/agent"
	"github.com/tbxark/surveyagent/config"
	"github.com/tbxark/surveyagent/dialogue"
	"github.com/tbxark/surveyagent/session"
	"github.com/tbxark/surveyagent/store"
)

func main() {
	conf := flag.String("config", "config.json", "path to config file")
	dir := flag.String("data", "", "directory with slots.csv, context.csv and initiatives.csv")
	flag.Parse()
	cfg, err := config.Load(*conf)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err = startApp(context.Background(), cfg, *dir); err != nil {
		log.Fatalf("start app: %v", err)
	}
}

func startApp(ctx context.Context, cfg *config.Config, dir string) error {
	slog.SetLogLoggerLevel(slog.LevelWarn)
	var recordStore store.RecordStore = store.NewMemoryStore(store.FallbackSchema(), store.DefaultContext)
	if dir != "" {
		csvStore, err := store.NewCSVStore(dir, cfg.KeyField)
		if err != nil {
			return err
		}
		recordStore = csvStore
	}
	catalog, err := store.LoadCatalog(ctx, recordStore, cfg.LoadTimeout.Std(), slog.Default())
	if err != nil {
		return err
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return err
	}
	machine, err := agent.NewModelMachine(catalog, cm, cfg.ToolExtraction,
		[]dialogue.GeneratorOption{dialogue.WithDialogueLang(cfg.Language)})
	if err != nil {
		return err
	}
	persister := session.NewPersister(recordStore, session.PersisterOptions{Timeout: cfg.PersistTimeout.Std()})
	defer persister.Close()
	registry, err := session.NewRegistry(machine, persister, session.Options{
		TurnTimeout:       cfg.TurnTimeout.Std(),
		MaxInternalErrors: cfg.MaxInternalErrors,
		MaxHistory:        cfg.MaxHistory,
		HistoryTolerance:  cfg.HistoryTolerance,
	})
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	s, err := registry.Create(ctx, sessionID, os.Getenv("USER"))
	if err != nil {
		return err
	}
	surveyAgent := session.NewAgent(
		"SurveyInterviewer",
		"An agent that interviews customers about their AI initiatives",
		registry,
	)
	runner := adk.NewRunner(ctx, adk.RunnerConfig{
		Agent: surveyAgent,
	})
	chatCtx := session.WithSessionID(ctx, sessionID)

	fmt.Printf("\nAssistant: %s\n======\n", s.Greet(chatCtx))
	reader := bufio.NewReader(os.Stdin)
	for !s.Phase().Terminal() {
		fmt.Print("You: ")
		input, rErr := reader.ReadString('\n')
		if rErr != nil {
			fmt.Println("Input closed. Saving and exiting.")
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		iter := runner.Run(chatCtx, []adk.Message{schema.UserMessage(input)})
		for {
			event, ok := iter.Next()
			if !ok {
				break
			}
			if event.Err != nil {
				return event.Err
			}
			msg, mErr := event.Output.MessageOutput.GetMessage()
			if mErr != nil {
				return mErr
			}
			fmt.Printf("\nAssistant: %v\n======\n", msg.Content)
		}
	}
	snapshot, err := registry.Delete(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("Survey %s: %d of %d fields collected.\n", snapshot.Status, snapshot.FilledFields, snapshot.TotalFields)
	return nil
}
