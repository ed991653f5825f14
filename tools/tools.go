package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/tinker/config"
	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/logging"
)

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	Params() []Param
	Execute(ctx context.Context, args map[string]interface{}) Result
}

type ParamType string

const (
	ParamString ParamType = "string"
	ParamBool   ParamType = "boolean"
	ParamNumber ParamType = "number"
	ParamObject ParamType = "object"
)

// Param declares one argument of a tool. A param with a Default is optional;
// a param without one is required unless Optional is set.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Default     interface{}
	Optional    bool
	// Aliases are alternative argument names accepted for this param.
	Aliases []string
}

func (p Param) required() bool {
	return p.Default == nil && !p.Optional
}

// Definition is what a model is told about a tool.
type Definition struct {
	Name        string
	Description string
	Params      []Param
}

// JSONSchema renders the params as a JSON Schema object.
func (d Definition) JSONSchema() map[string]interface{} {
	properties := map[string]interface{}{}
	required := []string{}
	for _, p := range d.Params {
		prop := map[string]interface{}{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.required() {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Result is the outcome of a tool invocation. Failures are data, never errors,
// so the model can read them and try again.
type Result struct {
	Value  interface{}
	Failed bool
	Reason string
	// Kind classifies a failure with one of the errors.Err* kinds.
	Kind error
}

func Ok(v interface{}) Result {
	return Result{Value: v}
}

func Failure(kind error, reason string) Result {
	return Result{Failed: true, Reason: reason, Kind: kind}
}

func Failuref(kind error, format string, a ...interface{}) Result {
	return Failure(kind, fmt.Sprintf(format, a...))
}

// String renders the result as the content of a tool-result message.
func (r Result) String() string {
	if r.Failed {
		return "Error: " + r.Reason
	}
	switch v := r.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// ToolRegistry holds all available tools. It is filled once at startup and
// only read afterwards, so it needs no locking.
type ToolRegistry struct {
	tools  map[string]Tool
	logger *slog.Logger
}

func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	return &ToolRegistry{
		tools:  make(map[string]Tool),
		logger: logging.OrDefault(logger),
	}
}

// NewBuiltinRegistry returns a registry holding every built-in tool configured
// by cfg.
func NewBuiltinRegistry(cfg *config.Config, logger *slog.Logger) (*ToolRegistry, error) {
	r := NewToolRegistry(logger)
	runner := newExecutor(cfg, r.logger)

	builtins := []Tool{
		&InstallDepsTool{exec: runner, command: cfg.Install.Command, defaultPackage: cfg.Install.DefaultPackage, timeout: cfg.Install.Timeout, logger: r.logger},
		&CreateFolderTool{logger: r.logger},
		&ListFolderTool{},
		&RenameFolderTool{logger: r.logger},
		&CreateFileTool{logger: r.logger},
		&ReadFileTool{},
		&ModifyFileTool{logger: r.logger},
		&ExecuteShellTool{exec: runner, timeout: cfg.Shell.Timeout},
	}
	if cfg.WebSearch.Enabled {
		builtins = append(builtins, NewWebSearchTool(cfg.WebSearch))
	}

	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names are unique.
func (r *ToolRegistry) Register(t Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return errors.WrapKind(errors.ErrDuplicateCapability, nil, "tool '%s'", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions describes every tool, sorted by name.
func (r *ToolRegistry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Params:      t.Params(),
		})
	}
	return defs
}

// Select returns a registry holding the tools whose names match any of the
// glob patterns.
func (r *ToolRegistry) Select(patterns []string) (*ToolRegistry, error) {
	sub := NewToolRegistry(r.logger)
	for name, t := range r.tools {
		for _, pattern := range patterns {
			match, err := doublestar.Match(pattern, name)
			if err != nil {
				return nil, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
			}
			if match {
				sub.tools[name] = t
				break
			}
		}
	}
	return sub, nil
}

// GetActiveTools returns the tools for a given toolset. A plain name that
// matches no registered tool is a configuration error.
func (r *ToolRegistry) GetActiveTools(ts *config.Toolset) (*ToolRegistry, error) {
	for _, pattern := range ts.Tools {
		if strings.ContainsAny(pattern, "*?[{") {
			continue
		}
		if _, ok := r.tools[pattern]; !ok {
			return nil, fmt.Errorf("tool '%s' from toolset '%s' is not registered", pattern, ts.Name)
		}
	}
	return r.Select(ts.Tools)
}

// Invoke runs the named tool. It never panics and never returns an error:
// unknown names, bad arguments and panics inside the tool all come back as
// a failed Result.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args map[string]interface{}) (res Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
			res = Failuref(errors.ErrCapabilityExecutionFailed, "%s failed: %v", name, p)
		}
		r.logger.Debug("tool executed",
			"tool", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"failed", res.Failed,
		)
	}()

	t, ok := r.tools[name]
	if !ok {
		r.logger.Debug("unknown tool requested", "tool", name)
		return Failuref(errors.ErrCapabilityNotFound, "unknown capability: %s", name)
	}

	bound, err := bindArgs(t.Params(), args)
	if err != nil {
		return Failuref(errors.ErrCapabilityArgumentInvalid, "invalid arguments for %s: %v", name, err)
	}
	return t.Execute(ctx, bound)
}

// bindArgs checks args against params and returns a fresh map holding each
// declared param under its canonical name, defaults filled in. Undeclared
// arguments are dropped, except for tools that declare no params at all (nil),
// which receive a copy of args as given.
func bindArgs(params []Param, args map[string]interface{}) (map[string]interface{}, error) {
	if params == nil {
		passthrough := make(map[string]interface{}, len(args))
		for k, v := range args {
			passthrough[k] = v
		}
		return passthrough, nil
	}
	bound := make(map[string]interface{}, len(params))
	for _, p := range params {
		v, present := lookupArg(p, args)
		if !present {
			if p.Default != nil {
				bound[p.Name] = p.Default
				continue
			}
			if p.required() {
				return nil, fmt.Errorf("missing required parameter '%s'", p.Name)
			}
			continue
		}
		coerced, err := coerce(p, v)
		if err != nil {
			return nil, err
		}
		bound[p.Name] = coerced
	}
	return bound, nil
}

func lookupArg(p Param, args map[string]interface{}) (interface{}, bool) {
	if v, ok := args[p.Name]; ok && v != nil {
		return v, true
	}
	for _, alias := range p.Aliases {
		if v, ok := args[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func coerce(p Param, v interface{}) (interface{}, error) {
	switch p.Type {
	case ParamString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ParamBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed, nil
			}
		}
	case ParamNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, nil
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f, nil
			}
		}
	case ParamObject:
		if m, ok := v.(map[string]interface{}); ok {
			return m, nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("parameter '%s' must be a %s, got %T", p.Name, p.Type, v)
}

func stringArg(args map[string]interface{}, name string) string {
	s, _ := args[name].(string)
	return s
}

func intArg(args map[string]interface{}, name string) int {
	switch n := args[name].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
