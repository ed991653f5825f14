// Package agent runs the conversation loop between the user, the model and
// the tools.
//
// One call to Run handles one user turn. The user's input is appended to the
// conversation, then the agent alternates between asking the model for the
// next step and dispatching the tool it requests, until the model answers in
// plain text:
//
//	user -> (tool-call -> tool-result)* -> assistant
//
// Tool calls are recorded as JSON {"name": ..., "arguments": {...}} in a
// tool-call message, and the tool's stringified result follows as a
// tool-result message. Failed tools, unknown tools and malformed calls become
// tool results too, so the model sees what went wrong and can retry. Only an
// inference failure, context cancellation or the step limit end a turn with
// an error.
//
// # Usage
//
//	conv := session.New(systemPrompt)
//	a := agent.New(conv, llm.NewAdapter(backend, registry.Definitions(), logger), registry,
//	    agent.WithMaxSteps(cfg.MaxSteps),
//	    agent.WithStop(cfg.Stop),
//	)
//	answer, err := a.Run(ctx, "create hello.py")
//
// Hosts that display progress use ProcessUserInput with ProcessCallbacks.
// agent/terminal is the interactive host; it ends the session when the answer
// is the farewell "bye".
//
// # Modes
//
//   - ModeAuto: tools run without confirmation
//   - ModePrompt: ProcessCallbacks.ShouldExecuteTool approves each call
//
// # Tool Verbosity
//
//   - ToolVerbosityNone: no tool details are shown
//   - ToolVerbosityInfo: tool names are shown when called
//   - ToolVerbosityAll: names, arguments and results are shown
package agent
