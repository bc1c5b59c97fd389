package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge/retriever"
	"github.com/compozy/docqa/pkg/logger"
)

// DefaultMaxQuestionLength bounds questions in characters.
const DefaultMaxQuestionLength = 1000

// Stage is a step of one question's lifecycle.
type Stage string

// Stages in the order a successful question passes them. StageErrored ends a
// failed one.
const (
	StageReceived     Stage = "received"
	StageValidated    Stage = "validated"
	StageReformulated Stage = "reformulated"
	StageRetrieved    Stage = "retrieved"
	StageSynthesized  Stage = "synthesized"
	StageResponded    Stage = "responded"
	StageErrored      Stage = "errored"
)

// Retriever returns the k chunks most similar to query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]retriever.Result, error)
}

// Options tunes the orchestrator. Zero values fall back to the package defaults.
type Options struct {
	HistoryWindow     int
	MaxQuestionLength int
	TopK              int
}

func (o Options) normalized() Options {
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = DefaultHistoryWindow
	}
	if o.MaxQuestionLength <= 0 {
		o.MaxQuestionLength = DefaultMaxQuestionLength
	}
	if o.TopK <= 0 {
		o.TopK = retriever.DefaultTopK
	}
	return o
}

// SingleRequest is the body of a standalone question.
type SingleRequest struct {
	Question string `json:"question"`
}

// ConversationalRequest carries a question and the chat history it follows.
// Only the most recent turns of ChatHistory are used.
type ConversationalRequest struct {
	Question    string    `json:"question"`
	ChatHistory []RawTurn `json:"chat_history"`
}

// RetrievedDocument is one source chunk in a single-turn answer.
type RetrievedDocument struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// SingleResponse is the single-turn answer. SessionID travels in a header.
type SingleResponse struct {
	SessionID          string              `json:"-"`
	Answer             string              `json:"answer"`
	RetrievedDocuments []RetrievedDocument `json:"retrieved_documents"`
}

// RetrievedDoc is one source chunk in a conversational answer.
type RetrievedDoc struct {
	FileName    string `json:"file_name"`
	PageContent string `json:"page_content"`
}

// ConversationalResponse is the conversational answer. SessionID travels in a header.
type ConversationalResponse struct {
	SessionID     string         `json:"-"`
	Answer        string         `json:"answer"`
	RetrievedDocs []RetrievedDoc `json:"retrieved_docs"`
}

// Orchestrator runs validation, reformulation, retrieval and synthesis for
// one question at a time. It holds no per-request state.
type Orchestrator struct {
	reformulator *Reformulator
	retriever    Retriever
	synthesizer  *Synthesizer
	options      Options
	tracer       trace.Tracer
}

// NewOrchestrator wires the stages around llm and ret.
func NewOrchestrator(llm Generator, ret Retriever, opts Options) (*Orchestrator, error) {
	if ret == nil {
		return nil, errors.New("qa: retriever is required")
	}
	reformulator, err := NewReformulator(llm)
	if err != nil {
		return nil, err
	}
	synthesizer, err := NewSynthesizer(llm)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		reformulator: reformulator,
		retriever:    ret,
		synthesizer:  synthesizer,
		options:      opts.normalized(),
		tracer:       otel.Tracer("docqa.qa"),
	}, nil
}

// ValidateQuestion rejects blank questions and questions longer than maxLen
// characters.
func ValidateQuestion(question string, maxLen int) error {
	if strings.TrimSpace(question) == "" {
		return core.NewValidationError("Question cannot be empty")
	}
	if utf8.RuneCountInString(question) > maxLen {
		return core.NewValidationError(fmt.Sprintf("Question must be less than %d characters", maxLen))
	}
	return nil
}

// AskSingle answers a question without history. An empty retrieval fails with
// NoRelevantDocumentsError.
func (o *Orchestrator) AskSingle(ctx context.Context, req SingleRequest) (resp *SingleResponse, err error) {
	run := o.begin(ctx, "single")
	ctx, span := o.tracer.Start(run.ctx, "docqa.qa.ask_single")
	run.ctx = ctx
	defer func() { run.finish(span, err) }()

	if err = ValidateQuestion(req.Question, o.options.MaxQuestionLength); err != nil {
		return nil, err
	}
	run.advance(StageValidated)
	results, err := o.retriever.Retrieve(ctx, req.Question, o.options.TopK)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, core.NewNoRelevantDocumentsError(req.Question)
	}
	run.advance(StageRetrieved, "documents", len(results))
	answer, err := o.synthesizer.SynthesizeSingle(ctx, req.Question, results)
	if err != nil {
		return nil, err
	}
	run.advance(StageSynthesized)
	docs := make([]RetrievedDocument, len(results))
	for i := range results {
		docs[i] = RetrievedDocument{FileName: results[i].FileName(), Content: results[i].Text}
	}
	return &SingleResponse{SessionID: run.sessionID, Answer: answer, RetrievedDocuments: docs}, nil
}

// AskConversational answers a question in light of the last turns of history.
// An empty retrieval still produces an answer.
func (o *Orchestrator) AskConversational(
	ctx context.Context,
	req ConversationalRequest,
) (resp *ConversationalResponse, err error) {
	run := o.begin(ctx, "conversational")
	ctx, span := o.tracer.Start(run.ctx, "docqa.qa.ask_conversational")
	run.ctx = ctx
	defer func() { run.finish(span, err) }()

	if err = ValidateQuestion(req.Question, o.options.MaxQuestionLength); err != nil {
		return nil, err
	}
	history := Window(ParseHistory(req.ChatHistory), o.options.HistoryWindow)
	run.advance(StageValidated, "history_turns", len(history))
	standalone, err := o.reformulator.Reformulate(ctx, req.Question, history)
	if err != nil {
		return nil, err
	}
	run.advance(StageReformulated)
	results, err := o.retriever.Retrieve(ctx, standalone, o.options.TopK)
	if err != nil {
		return nil, err
	}
	run.advance(StageRetrieved, "documents", len(results))
	answer, err := o.synthesizer.Synthesize(ctx, req.Question, results, history)
	if err != nil {
		return nil, err
	}
	run.advance(StageSynthesized)
	docs := make([]RetrievedDoc, len(results))
	for i := range results {
		docs[i] = RetrievedDoc{FileName: results[i].FileName(), PageContent: results[i].Text}
	}
	return &ConversationalResponse{SessionID: run.sessionID, Answer: answer, RetrievedDocs: docs}, nil
}

type askRun struct {
	ctx       context.Context
	log       logger.Logger
	sessionID string
	mode      string
	stage     Stage
	start     time.Time
}

func (o *Orchestrator) begin(ctx context.Context, mode string) *askRun {
	sessionID := uuid.NewString()
	log := logger.FromContext(ctx).With("session_id", sessionID, "mode", mode)
	run := &askRun{
		ctx:       logger.ContextWithLogger(ctx, log),
		log:       log,
		sessionID: sessionID,
		mode:      mode,
		start:     time.Now(),
	}
	run.advance(StageReceived)
	return run
}

func (r *askRun) advance(stage Stage, keyvals ...any) {
	r.stage = stage
	r.log.Debug("Question stage reached", append([]any{"stage", string(stage)}, keyvals...)...)
}

func (r *askRun) finish(span trace.Span, err error) {
	defer span.End()
	span.SetAttributes(attribute.String("session_id", r.sessionID), attribute.String("mode", r.mode))
	if err != nil {
		failed := r.stage
		r.stage = StageErrored
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if core.IsValidation(err) || core.IsNoRelevantDocuments(err) {
			r.log.Info("Question rejected", "after_stage", string(failed), "error", err)
			return
		}
		r.log.Error("Question failed", "after_stage", string(failed), "error", err)
		return
	}
	r.advance(StageResponded, "duration", time.Since(r.start))
}
