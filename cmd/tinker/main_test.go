package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m4xw311/tinker/tools"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

const mockConfig = `
llm: mock
model: mock-model
web_search:
  enabled: false
toolsets:
  - name: default
    tools: ["*"]
  - name: readonly
    tools: ["read_file", "list_*"]
`

func TestRunWithMockBackend(t *testing.T) {
	cfgPath := writeConfig(t, mockConfig)
	out, _, err := execute(t, "hello there\n", "--config", cfgPath)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, want := range []string{
		"Tinker is ready. Type your prompt.",
		"You: ",
		"Agent response:\nI am a mock LLM. You said: 'hello there'.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunInitialPromptFromArgs(t *testing.T) {
	cfgPath := writeConfig(t, mockConfig)
	out, _, err := execute(t, "", "--config", cfgPath, "-t", "readonly", "make", "a", "game")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "You said: 'make a game'") {
		t.Errorf("Expected initial prompt to be sent, got:\n%s", out)
	}
}

func TestRunFarewellExitsCleanly(t *testing.T) {
	cfgPath := writeConfig(t, mockConfig)
	out, _, err := execute(t, "", "--config", cfgPath, "bye")
	if err != nil {
		t.Fatalf("Farewell must not be an error: %v", err)
	}
	// The mock parrots the prompt, so its answer is not the bare farewell.
	if strings.Contains(out, "Bye!") {
		t.Errorf("Unexpected farewell in %q", out)
	}
}

func TestRunRejectsInvalidFlags(t *testing.T) {
	cfgPath := writeConfig(t, mockConfig)
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"Mode", []string{"--mode", "yolo"}, "invalid mode"},
		{"Verbosity", []string{"--tool-verbosity", "loud"}, "invalid tool verbosity"},
		{"Backend", []string{"--llm", "skynet"}, "unknown llm"},
		{"MaxSteps", []string{"--max-steps", "0"}, "max_steps must be positive"},
		{"MissingConfig", []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, "loading configuration"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"--config", cfgPath}, tc.args...)
			_, _, err := execute(t, "", args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSystemPrompt(t *testing.T) {
	defs := []tools.Definition{{Name: "read_file", Description: "Reads a file."}}
	if got := systemPrompt("base", nil); got != "base" {
		t.Errorf("Unexpected prompt %q", got)
	}
	got := systemPrompt("base", defs)
	if !strings.HasPrefix(got, "base\n\n") || !strings.Contains(got, "- read_file: Reads a file.") {
		t.Errorf("Unexpected prompt %q", got)
	}
	if got := systemPrompt("", defs); strings.HasPrefix(got, "\n") {
		t.Errorf("Unexpected leading newline in %q", got)
	}
}
