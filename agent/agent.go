package agent

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/llm"
	"github.com/m4xw311/tinker/logging"
	"github.com/m4xw311/tinker/session"
	"github.com/m4xw311/tinker/tools"
	"github.com/m4xw311/tinker/tracing"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// Farewell is the final answer that ends an interactive session.
const Farewell = "bye"

// IsFarewell reports whether a final answer asks the host to exit.
func IsFarewell(text string) bool {
	return text == Farewell
}

// Inferer produces the next model response for a conversation.
type Inferer interface {
	Infer(ctx context.Context, messages []session.Message, stop []string) (llm.Response, error)
}

// ProcessCallbacks lets the host observe a run. Every field is optional.
type ProcessCallbacks struct {
	OnAssistantMessage func(message string)
	OnToolCall         func(call llm.ToolCall)
	OnToolResult       func(call llm.ToolCall, result string)
	// ShouldExecuteTool is asked before each tool call in ModePrompt.
	ShouldExecuteTool func(call llm.ToolCall) bool
	OnWarning         func(warning string)
}

type Agent struct {
	Conversation *session.Conversation
	Model        Inferer
	Tools        *tools.ToolRegistry
	MaxSteps     int
	Stop         []string
	Mode         Mode
	Verbosity    ToolVerbosity

	logger *slog.Logger
	tracer trace.Tracer
}

type Option func(*Agent)

func WithMaxSteps(n int) Option             { return func(a *Agent) { a.MaxSteps = n } }
func WithStop(stop []string) Option         { return func(a *Agent) { a.Stop = stop } }
func WithMode(m Mode) Option                { return func(a *Agent) { a.Mode = m } }
func WithVerbosity(v ToolVerbosity) Option  { return func(a *Agent) { a.Verbosity = v } }
func WithLogger(logger *slog.Logger) Option { return func(a *Agent) { a.logger = logger } }

const defaultMaxSteps = 25

func New(conv *session.Conversation, model Inferer, registry *tools.ToolRegistry, opts ...Option) *Agent {
	a := &Agent{
		Conversation: conv,
		Model:        model,
		Tools:        registry,
		MaxSteps:     defaultMaxSteps,
		Mode:         ModeAuto,
		Verbosity:    ToolVerbosityNone,
		tracer:       tracing.Tracer("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrDefault(a.logger)
	if a.Tools == nil {
		a.Tools = tools.NewToolRegistry(a.logger)
	}
	return a
}

// Run processes one user turn and returns the model's final answer.
func (a *Agent) Run(ctx context.Context, userInput string) (string, error) {
	return a.ProcessUserInput(ctx, userInput, ProcessCallbacks{})
}

// ProcessUserInput appends the user's input and alternates inference and tool
// dispatch until the model answers in plain text.
//
// Tool faults, unknown tools and malformed calls are written back into the
// conversation as tool results so the model can correct itself. Inference
// failures, cancellation and the step limit end the turn with an error; the
// messages appended so far stay in the conversation.
func (a *Agent) ProcessUserInput(ctx context.Context, userInput string, cb ProcessCallbacks) (answer string, err error) {
	ctx, span := a.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("conversation.id", a.Conversation.ID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	a.Conversation.Append(session.Message{Role: session.RoleUser, Content: userInput})

	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if a.MaxSteps > 0 && step >= a.MaxSteps {
			return "", errors.WrapKind(errors.ErrStepLimit, nil, "no final answer after %d steps", a.MaxSteps)
		}

		resp, err := a.infer(ctx, step)
		if err != nil {
			return "", err
		}

		switch r := resp.(type) {
		case llm.FinalText:
			a.Conversation.Append(session.Message{Role: session.RoleAssistant, Content: r.Text})
			if cb.OnAssistantMessage != nil {
				cb.OnAssistantMessage(r.Text)
			}
			span.SetAttributes(attribute.Int("agent.steps", step+1))
			return r.Text, nil

		case llm.ToolCall:
			a.Conversation.Append(session.Message{Role: session.RoleToolCall, Content: EncodeToolCall(r)})
			if cb.OnToolCall != nil {
				cb.OnToolCall(r)
			}
			result := a.dispatch(ctx, r, cb)
			a.Conversation.Append(session.Message{Role: session.RoleToolResult, Content: result})
			if cb.OnToolResult != nil {
				cb.OnToolResult(r, result)
			}

		case llm.MalformedToolCall:
			a.logger.Warn("model sent a malformed tool call", "reason", r.Reason)
			if cb.OnWarning != nil {
				cb.OnWarning("malformed tool call: " + r.Reason)
			}
			a.Conversation.Append(session.Message{Role: session.RoleToolCall, Content: r.Raw})
			a.Conversation.Append(session.Message{
				Role:    session.RoleToolResult,
				Content: tools.Failure(errors.ErrCapabilityArgumentInvalid, "malformed tool call: "+r.Reason).String(),
			})
		}
	}
}

func (a *Agent) infer(ctx context.Context, step int) (llm.Response, error) {
	ctx, span := a.tracer.Start(ctx, "agent.infer", trace.WithAttributes(attribute.Int("agent.step", step)))
	defer span.End()

	a.logger.Debug("inferring", "conversation", a.Conversation.ID, "step", step, "messages", a.Conversation.Len())
	resp, err := a.Model.Infer(ctx, a.Conversation.Messages(), a.Stop)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Warn("inference failed", "conversation", a.Conversation.ID, "error", err)
		return nil, err
	}
	return resp, nil
}

func (a *Agent) dispatch(ctx context.Context, call llm.ToolCall, cb ProcessCallbacks) string {
	ctx, span := a.tracer.Start(ctx, "agent.tool", trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	if a.Mode == ModePrompt && cb.ShouldExecuteTool != nil && !cb.ShouldExecuteTool(call) {
		span.SetAttributes(attribute.Bool("tool.denied", true))
		return tools.Failure(errors.ErrCapabilityExecutionFailed, "the user denied this tool call").String()
	}

	result := a.Tools.Invoke(ctx, call.Name, call.Arguments)
	if result.Failed {
		span.SetStatus(codes.Error, result.Reason)
	}
	return result.String()
}

// EncodeToolCall renders a tool call as the content of a tool-call message.
func EncodeToolCall(call llm.ToolCall) string {
	data, err := json.Marshal(struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}{call.Name, call.Arguments})
	if err != nil {
		return call.Name
	}
	return string(data)
}
