package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/m4xw311/tinker/agent"
	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/llm"
)

// ErrFarewell is returned by Run when the model said goodbye.
var ErrFarewell = errors.New("session ended by farewell")

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent *agent.Agent
	in    *bufio.Scanner
	out   io.Writer
}

// New creates a new Terminal reading user input from in and writing to out.
func New(a *agent.Agent, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		agent: a,
		in:    bufio.NewScanner(in),
		out:   out,
	}
}

// Run starts the interactive terminal session. It returns nil at end of input
// or on /quit, and ErrFarewell when the model's answer was the farewell.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	if initialPrompt != "" {
		if err := t.turn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	for {
		fmt.Fprint(t.out, "You: ")
		if !t.in.Scan() {
			fmt.Fprintln(t.out)
			break
		}

		userInput := strings.TrimSpace(t.in.Text())
		if userInput == "" {
			continue
		}
		if userInput == "/quit" || userInput == "/exit" {
			return nil
		}

		if err := t.turn(ctx, userInput); err != nil {
			return err
		}
	}
	return t.in.Err()
}

// turn runs one user turn. Only the farewell and cancellation end the
// session; other failures are reported and the session continues.
func (t *Terminal) turn(ctx context.Context, userInput string) error {
	err := t.processTurn(ctx, userInput)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFarewell):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		fmt.Fprintf(t.out, "Error: %v\n", err)
		return nil
	}
}

// processTurn handles a single user input turn
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	callbacks := agent.ProcessCallbacks{
		OnToolCall: func(call llm.ToolCall) {
			switch t.agent.Verbosity {
			case agent.ToolVerbosityAll:
				fmt.Fprintf(t.out, "Calling tool `%s` with args: %v\n", call.Name, call.Arguments)
			case agent.ToolVerbosityInfo:
				fmt.Fprintf(t.out, "Calling tool `%s`\n", call.Name)
			}
		},
		OnToolResult: func(call llm.ToolCall, result string) {
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Fprintf(t.out, "Tool `%s` output: %s\n", call.Name, result)
			}
		},
		ShouldExecuteTool: func(call llm.ToolCall) bool {
			fmt.Fprintf(t.out, "Allow tool `%s` with args %v? (y/n): ", call.Name, call.Arguments)
			if !t.in.Scan() {
				return false
			}
			return strings.EqualFold(strings.TrimSpace(t.in.Text()), "y")
		},
		OnWarning: func(warning string) {
			if t.agent.Verbosity != agent.ToolVerbosityNone {
				fmt.Fprintf(t.out, "Warning: %s\n", warning)
			}
		},
	}

	answer, err := t.agent.ProcessUserInput(ctx, userInput, callbacks)
	if err != nil {
		return err
	}
	if agent.IsFarewell(answer) {
		fmt.Fprintln(t.out, "Bye!")
		return ErrFarewell
	}
	fmt.Fprintln(t.out, "Agent response:")
	fmt.Fprintln(t.out, answer)
	return nil
}
