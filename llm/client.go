package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/logging"
	"github.com/m4xw311/tinker/session"
	"github.com/m4xw311/tinker/tools"
)

// Response is what one inference step yields: FinalText, ToolCall or
// MalformedToolCall.
type Response interface {
	isResponse()
}

// FinalText is a plain answer for the user.
type FinalText struct {
	Text string
}

// ToolCall asks the agent to invoke a tool.
type ToolCall struct {
	Name      string
	Arguments map[string]interface{}
}

// MalformedToolCall is an attempted tool call that could not be decoded.
type MalformedToolCall struct {
	Raw    string
	Reason string
}

func (FinalText) isResponse()         {}
func (ToolCall) isResponse()          {}
func (MalformedToolCall) isResponse() {}

// Request is what a Backend receives. Messages are already remapped.
type Request struct {
	Messages []session.Message
	Stop     []string
	Tools    []tools.Definition
}

// Candidate is the first candidate returned by a backend. ToolCall is set when
// the backend produced a native tool call, Malformed when it produced one the
// backend could not decode.
type Candidate struct {
	Content   string
	ToolCall  *ToolCall
	Malformed *MalformedToolCall
}

// Backend is a model provider.
type Backend interface {
	Complete(ctx context.Context, req Request) (*Candidate, error)
}

// EmptyToolResult stands in for a tool result with no text, so that every
// tool call is still answered on the wire.
const EmptyToolResult = "(no output)"

// Remap translates the conversation roles into the reduced vocabulary every
// backend understands: tool-call becomes assistant, tool-result becomes user.
// Blank tool results are replaced with EmptyToolResult. The input is never
// modified.
func Remap(messages []session.Message) []session.Message {
	out := make([]session.Message, len(messages))
	for i, m := range messages {
		switch m.Role {
		case session.RoleToolCall:
			m.Role = session.RoleAssistant
		case session.RoleToolResult:
			m.Role = session.RoleUser
			if strings.TrimSpace(m.Content) == "" {
				m.Content = EmptyToolResult
			}
		}
		out[i] = m
	}
	return out
}

// Adapter turns a conversation into a Response using a Backend.
type Adapter struct {
	backend Backend
	tools   []tools.Definition
	// wire name -> registry name
	names  map[string]string
	logger *slog.Logger
}

func NewAdapter(backend Backend, defs []tools.Definition, logger *slog.Logger) *Adapter {
	names := make(map[string]string, len(defs))
	for _, d := range defs {
		names[wireName(d.Name)] = d.Name
	}
	return &Adapter{backend: backend, tools: defs, names: names, logger: logging.OrDefault(logger)}
}

// registryName maps a function name a backend returned to the registry name
// it was advertised under. Unknown names are returned as given.
func (a *Adapter) registryName(wire string) string {
	if name, ok := a.names[wire]; ok {
		return name
	}
	return wire
}

// Infer remaps the conversation, sends it to the backend and classifies the
// first candidate. Backend faults are returned wrapped in
// errors.ErrInferenceFailed.
func (a *Adapter) Infer(ctx context.Context, messages []session.Message, stop []string) (Response, error) {
	req := Request{
		Messages: Remap(messages),
		Stop:     stop,
		Tools:    a.tools,
	}
	cand, err := a.backend.Complete(ctx, req)
	if err != nil {
		return nil, errors.WrapKind(errors.ErrInferenceFailed, err, "model backend")
	}
	if cand == nil {
		return nil, errors.WrapKind(errors.ErrInferenceFailed, nil, "model backend returned no candidate")
	}

	switch {
	case cand.ToolCall != nil:
		call := *cand.ToolCall
		call.Name = a.registryName(call.Name)
		if call.Arguments == nil {
			call.Arguments = map[string]interface{}{}
		}
		return call, nil
	case cand.Malformed != nil:
		return *cand.Malformed, nil
	}
	resp := ParseContent(cand.Content)
	if _, ok := resp.(FinalText); !ok {
		a.logger.Debug("tool call parsed from content", "response", fmt.Sprintf("%T", resp))
	}
	return resp, nil
}

var fenceRe = regexp.MustCompile("^```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```$")

// ParseContent classifies model text. A JSON object with a "name" (or
// "tool") field is a tool invocation; its arguments come from "arguments"
// (or "args"). The object may be wrapped in a ```json fence. Anything else is
// FinalText holding the raw content.
func ParseContent(content string) Response {
	body := strings.TrimSpace(content)
	if m := fenceRe.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return FinalText{Text: content}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		if looksLikeToolCall(body) {
			return MalformedToolCall{Raw: content, Reason: fmt.Sprintf("invalid JSON: %v", err)}
		}
		return FinalText{Text: content}
	}

	rawName, ok := firstField(fields, "name", "tool")
	if !ok {
		return FinalText{Text: content}
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil || strings.TrimSpace(name) == "" {
		return MalformedToolCall{Raw: content, Reason: "tool name must be a non-empty string"}
	}

	args := map[string]interface{}{}
	if rawArgs, ok := firstField(fields, "arguments", "args"); ok {
		decoded, err := decodeArguments(rawArgs)
		if err != nil {
			return MalformedToolCall{Raw: content, Reason: err.Error()}
		}
		args = decoded
	}
	return ToolCall{Name: name, Arguments: args}
}

// DecodeArguments parses tool arguments given as a JSON object, or as a JSON
// string holding one. Empty input yields an empty map.
func DecodeArguments(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	return decodeArguments(json.RawMessage(raw))
}

func decodeArguments(raw json.RawMessage) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err == nil {
		if args == nil {
			args = map[string]interface{}{}
		}
		return args, nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &args); err == nil && args != nil {
			return args, nil
		}
	}
	return nil, fmt.Errorf("arguments must be a JSON object, got %s", truncate(string(raw), 80))
}

func firstField(fields map[string]json.RawMessage, names ...string) (json.RawMessage, bool) {
	for _, n := range names {
		if v, ok := fields[n]; ok {
			return v, true
		}
	}
	return nil, false
}

func looksLikeToolCall(body string) bool {
	return strings.Contains(body, `"name"`) || strings.Contains(body, `"tool"`)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := 0
	for i := range s {
		if i > max {
			break
		}
		cut = i
	}
	return s[:cut] + "..."
}

// ToolProtocolPrompt describes the available tools and how to call them. It is
// appended to the system prompt so that backends without native tool support
// can still request tools.
func ToolProtocolPrompt(defs []tools.Definition) string {
	if len(defs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("You can use tools. To call one, reply with only a JSON object of the form ")
	sb.WriteString(`{"name": "<tool name>", "arguments": {<parameters>}}`)
	sb.WriteString(" and nothing else. The result is sent back to you in the next message.\n\nAvailable tools:\n")
	for _, d := range defs {
		schema, err := json.Marshal(d.JSONSchema())
		if err != nil {
			schema = []byte("{}")
		}
		fmt.Fprintf(&sb, "- %s: %s\n  parameters: %s\n", d.Name, d.Description, schema)
	}
	return sb.String()
}

// Function names in native tool APIs may not contain dots, which separate
// an MCP server from its tool in registry names. The Adapter maps them back.
func wireName(name string) string {
	return strings.ReplaceAll(name, ".", "__")
}

// nativeCall builds the candidate for a tool call a backend returned natively
// with JSON-encoded arguments. The name stays in wire form.
func nativeCall(name, rawArgs string) *Candidate {
	args, err := DecodeArguments(rawArgs)
	if err != nil {
		return &Candidate{Malformed: &MalformedToolCall{
			Raw:    fmt.Sprintf(`{"name": %q, "arguments": %s}`, name, rawArgs),
			Reason: err.Error(),
		}}
	}
	return &Candidate{ToolCall: &ToolCall{Name: name, Arguments: args}}
}
