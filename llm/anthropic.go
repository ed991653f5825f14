package llm

import (
	"context"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/session"
	"github.com/m4xw311/tinker/tools"
)

const anthropicMaxTokens = 4096

// AnthropicClient is a client for the Anthropic API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a new AnthropicClient.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicClient(ctx context.Context, modelName string) (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &AnthropicClient{
		client: &client,
		model:  modelName,
	}, nil
}

func (a *AnthropicClient) Complete(ctx context.Context, req Request) (*Candidate, error) {
	messages, systemPrompt := convertMessagesToAnthropic(req.Messages)

	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(a.model),
		MaxTokens:     anthropicMaxTokens,
		Messages:      messages,
		StopSequences: req.Stop,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	for _, toolParam := range convertToolsToAnthropic(req.Tools) {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Anthropic")
	}
	return processAnthropicResponse(resp), nil
}

// convertMessagesToAnthropic hoists system messages into the system prompt and
// drops empty turns, which the API rejects.
func convertMessagesToAnthropic(messages []session.Message) ([]anthropic.MessageParam, string) {
	var out []anthropic.MessageParam
	var system []string

	for _, msg := range messages {
		if msg.Role == session.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		if msg.Content == "" {
			continue
		}
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == session.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out, strings.Join(system, "\n\n")
}

func convertToolsToAnthropic(defs []tools.Definition) []anthropic.ToolParam {
	var out []anthropic.ToolParam
	for _, d := range defs {
		schema := d.JSONSchema()
		required, _ := schema["required"].([]string)
		out = append(out, anthropic.ToolParam{
			Name:        wireName(d.Name),
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
				Required:   required,
			},
		})
	}
	return out
}

// processAnthropicResponse keeps the first tool_use block if there is one,
// otherwise the concatenated text.
func processAnthropicResponse(resp *anthropic.Message) *Candidate {
	var text strings.Builder
	for _, content := range resp.Content {
		switch c := content.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(c.Text)
		case anthropic.ToolUseBlock:
			return nativeCall(c.Name, string(c.Input))
		}
	}
	return &Candidate{Content: text.String()}
}
