package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/tbxark/surveyagent/dialogue"
	"github.com/tbxark/surveyagent/extract"
	"github.com/tbxark/surveyagent/intent"
	"github.com/tbxark/surveyagent/normalize"
	"github.com/tbxark/surveyagent/types"
)

const examplesPerField = 3

// Machine drives one survey conversation turn by turn. It holds no session
// state; every Step works on a copy of the state it is given.
type Machine struct {
	catalog    *types.Catalog
	normalizer *normalize.Normalizer
	extractor  extract.Extractor
	generator  dialogue.Generator
	fallback   dialogue.Generator
	recognizer intent.Recognizer
	events     *EventLogger
	logger     *slog.Logger
	now        func() time.Time
}

type MachineOption func(*Machine)

func WithRecognizer(r intent.Recognizer) MachineOption {
	return func(m *Machine) {
		m.recognizer = r
	}
}

func WithEventLogger(e *EventLogger) MachineOption {
	return func(m *Machine) {
		m.events = e
	}
}

func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

func NewMachine(
	catalog *types.Catalog,
	extractor extract.Extractor,
	generator dialogue.Generator,
	opts ...MachineOption,
) (*Machine, error) {
	if catalog == nil || catalog.Schema == nil {
		return nil, errors.New("catalog with a schema is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if generator == nil {
		generator = dialogue.LocalGenerator{}
	}
	m := &Machine{
		catalog:    catalog,
		normalizer: normalize.New(catalog.Schema),
		extractor:  extractor,
		generator:  generator,
		fallback:   dialogue.LocalGenerator{},
		recognizer: intent.NewKeywordRecognizer(nil),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewModelMachine wires every collaborator to one chat model.
func NewModelMachine(
	catalog *types.Catalog,
	chatModel model.ToolCallingChatModel,
	toolExtraction bool,
	genOpts []dialogue.GeneratorOption,
	opts ...MachineOption,
) (*Machine, error) {
	if catalog == nil || catalog.Schema == nil {
		return nil, errors.New("catalog with a schema is required")
	}
	var extractor extract.Extractor = extract.NewTextExtractor(chatModel)
	if toolExtraction {
		toolExtractor, err := extract.NewToolBasedExtractor(chatModel, catalog.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to create tool-based extractor: %w", err)
		}
		extractor = toolExtractor
	}
	detector, err := intent.NewModelTopicDetector(chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create topic detector: %w", err)
	}
	opts = append([]MachineOption{WithRecognizer(intent.NewKeywordRecognizer(detector))}, opts...)
	return NewMachine(catalog, extractor, dialogue.NewModelGenerator(chatModel, genOpts...), opts...)
}

func (m *Machine) Schema() *types.Schema {
	return m.catalog.Schema
}

// NewState returns the initial state of a conversation.
func (m *Machine) NewState(maxHistory, tolerance int) *State {
	return NewState(m.catalog.Schema, maxHistory, tolerance)
}

// Greet opens the conversation. The greeting is appended to a copy of state;
// a failing or panicking generator yields the local greeting.
func (m *Machine) Greet(ctx context.Context, state *State) (next *State, greeting string) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrInternal, r)
			m.logger.Error("recovered from panic in greeting", "error", err, "stack", string(debug.Stack()))
			m.events.Failure(FailureInternal, err)
			next, greeting = m.FallbackGreet(state)
		}
	}()
	req := m.greetingRequest()
	greeting = m.generate("greeting", func(g dialogue.Generator) (string, error) {
		return g.Greeting(ctx, req)
	})
	return m.greeted(state, greeting)
}

// FallbackGreet opens the conversation with the local greeting template.
func (m *Machine) FallbackGreet(state *State) (*State, string) {
	greeting, _ := m.fallback.Greeting(context.Background(), m.greetingRequest())
	return m.greeted(state, greeting)
}

func (m *Machine) greetingRequest() *dialogue.GreetingRequest {
	req := &dialogue.GreetingRequest{
		CustomerContext: m.catalog.Context,
	}
	if len(m.catalog.Previous) > 0 {
		req.PreviousSummary = m.catalog.Previous.Summary(m.catalog.Schema.KeyField(), 3)
	}
	return req
}

func (m *Machine) greeted(state *State, greeting string) (*State, string) {
	next := state.Clone()
	next.History.Append(m.turn(types.RoleAssistant, greeting))
	next.LatestQuestion = greeting
	return next, greeting
}

// Step processes one user utterance.
func (m *Machine) Step(ctx context.Context, state *State, utterance string) (out *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrInternal, r)
			m.logger.Error("recovered from panic in turn", "error", err, "stack", string(debug.Stack()))
			m.events.Failure(FailureInternal, err)
			out = &Outcome{
				State:    state,
				Response: m.respond(state, dialogue.MessageApology),
				Err:      err,
			}
		}
	}()
	if state.Phase.Terminal() {
		return &Outcome{State: state, Response: m.respond(state, ""), Err: ErrTerminal}
	}

	next := state.Clone()
	utterance = strings.TrimSpace(utterance)
	schema := m.catalog.Schema

	m.logger.Debug("Recognizing intent", "phase", next.Phase, "sub_collecting", next.Sub != nil)
	start := m.now()
	in, err := m.recognizer.Recognize(ctx, &intent.Request{
		Utterance:     utterance,
		Phase:         next.Phase,
		SubCollecting: next.Sub != nil,
		Filled:        schema.Filled(next.ActiveRecord()),
		History:       next.History.Window(),
	})
	m.events.Latency("intent", m.now().Sub(start))
	if err != nil {
		m.events.Failure(FailureIntent, err)
	}
	m.logger.Debug("Recognized intent", "intent", in.Kind, "topic", in.Topic)

	next.History.Append(m.turn(types.RoleUser, utterance))

	var reply string
	var persist []types.Record
	switch in.Kind {
	case intent.Exit:
		reply, persist = m.exit(next)
	case intent.Decline:
		next.Sub = nil
		reply = dialogue.MessageDeclineAck
	case intent.NewTopic:
		rec := schema.NewRecord()
		rec.Set(schema.KeyField(), in.Topic)
		next.Sub = &SubCollection{Topic: in.Topic, Record: rec}
		reply = dialogue.OfferAdditional(in.Topic)
	default:
		reply, persist = m.answer(ctx, next, utterance)
	}

	next.History.Append(m.turn(types.RoleAssistant, reply))
	next.LatestQuestion = reply
	return &Outcome{State: next, Response: m.respond(next, reply), Persist: persist}
}

func (m *Machine) exit(next *State) (string, []types.Record) {
	if next.Phase == types.PhaseCollecting {
		next.Phase = types.PhaseFollowUp
		return dialogue.MessageEarlyExit, []types.Record{next.Primary.Clone()}
	}
	persist := next.Pending()
	next.Sub = nil
	next.Phase = types.PhaseCompleted
	return dialogue.MessageClosing, persist
}

func (m *Machine) answer(ctx context.Context, next *State, utterance string) (string, []types.Record) {
	switch {
	case next.Phase == types.PhaseCollecting:
		rec, done, question := m.collect(ctx, next.History.Window(), next.Primary, utterance)
		next.Primary = rec
		if !done {
			return question, nil
		}
		next.Phase = types.PhaseFollowUp
		return dialogue.MessageCollectionComplete, []types.Record{rec.Clone()}
	case next.Sub != nil:
		rec, done, question := m.collect(ctx, next.History.Window(), next.Sub.Record, utterance)
		if !done {
			next.Sub.Record = rec
			return question, nil
		}
		topic := next.Sub.Topic
		next.Additional = append(next.Additional, rec)
		next.Sub = nil
		return dialogue.AdditionalComplete(topic), []types.Record{rec.Clone()}
	default:
		req := &dialogue.FollowUpRequest{History: next.History.Window(), Utterance: utterance}
		return m.generate("follow_up", func(g dialogue.Generator) (string, error) {
			return g.FollowUpReply(ctx, req)
		}), nil
	}
}

// collect fills rec from the utterance and asks for the next missing field.
// It reports done once rec has no missing fields. rec itself is not modified.
func (m *Machine) collect(ctx context.Context, history types.Turns, rec types.Record, utterance string) (types.Record, bool, string) {
	schema := m.catalog.Schema
	m.logger.Debug("Extracting fields", "missing", schema.Missing(rec))
	start := m.now()
	result := m.extractor.Extract(ctx, &extract.Request{Schema: schema, Record: rec, Utterance: utterance})
	m.events.Latency("extraction", m.now().Sub(start))

	updated := rec
	switch {
	case result == nil:
		m.events.Failure(FailureExtraction+"/"+string(extract.NoJSONFound), nil)
	case result.Failure != nil:
		m.events.Failure(FailureExtraction+"/"+string(result.Failure.Reason), result.Failure.Err)
	default:
		filled, names, err := extract.Apply(schema, m.normalizer, rec, result.Values)
		if err != nil {
			m.events.Failure(FailureExtraction+"/"+string(extract.ParseError), err)
			break
		}
		updated = filled
		m.logger.Debug("Applied extracted fields", "fields", names)
	}

	missing := schema.Missing(updated)
	if len(missing) == 0 {
		return updated, true, ""
	}
	field, _ := schema.Lookup(missing[0])
	req := &dialogue.QuestionRequest{
		History:         history,
		CustomerContext: m.catalog.Context,
		Schema:          schema,
		Collected:       updated,
		Examples:        m.catalog.Previous.Examples(field.Name, examplesPerField),
		Field:           field,
		Utterance:       utterance,
	}
	question := m.generate("next_question", func(g dialogue.Generator) (string, error) {
		return g.NextQuestion(ctx, req)
	})
	return updated, false, question
}

// generate calls the configured generator and falls back to local templates
// when it fails or answers with nothing.
func (m *Machine) generate(op string, call func(g dialogue.Generator) (string, error)) string {
	start := m.now()
	text, err := call(m.generator)
	m.events.Latency("generation/"+op, m.now().Sub(start))
	text = strings.TrimSpace(text)
	if err == nil && text != "" {
		return text
	}
	if err == nil {
		err = errors.New("empty reply")
	}
	m.events.Failure(FailureGeneration+"/"+op, err)
	text, _ = call(m.fallback)
	return text
}

func (m *Machine) respond(state *State, message string) *Response {
	schema := m.catalog.Schema
	resp := &Response{
		Message:       message,
		Status:        state.Phase,
		CollectedData: state.Primary.Plain(),
		MissingFields: schema.Missing(state.Primary),
	}
	if state.Sub != nil || len(state.Additional) > 0 {
		resp.Additional = &AdditionalStatus{Completed: len(state.Additional)}
		if state.Sub != nil {
			resp.Additional.Topic = state.Sub.Topic
			resp.Additional.Active = true
			resp.Additional.CollectedData = state.Sub.Record.Plain()
			resp.Additional.MissingFields = schema.Missing(state.Sub.Record)
		}
	}
	return resp
}

func (m *Machine) turn(role types.Role, text string) types.Turn {
	return types.Turn{Role: role, Text: text, Timestamp: m.now()}
}
