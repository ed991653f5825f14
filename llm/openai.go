package llm

import (
	"context"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/session"
	"github.com/m4xw311/tinker/tools"
)

// MistralBaseURL is Mistral's OpenAI-compatible endpoint.
const MistralBaseURL = "https://api.mistral.ai/v1"

// OpenAIClient is a client for the OpenAI Chat Completion API and compatible
// endpoints.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAIClient. It requires the OPENAI_API_KEY
// environment variable to be set and honours OPENAI_BASE_URL.
func NewOpenAIClient(ctx context.Context, modelName string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	return newOpenAICompatible(modelName, apiKey, os.Getenv("OPENAI_BASE_URL")), nil
}

// NewMistralClient creates a client for Mistral's chat API. It requires the
// MISTRAL_API_KEY environment variable to be set.
func NewMistralClient(ctx context.Context, modelName string) (*OpenAIClient, error) {
	apiKey := os.Getenv("MISTRAL_API_KEY")
	if apiKey == "" {
		return nil, errors.New("MISTRAL_API_KEY environment variable not set")
	}
	baseURL := os.Getenv("MISTRAL_BASE_URL")
	if baseURL == "" {
		baseURL = MistralBaseURL
	}
	return newOpenAICompatible(modelName, apiKey, baseURL), nil
}

func newOpenAICompatible(modelName, apiKey, baseURL string) *OpenAIClient {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	// The client must be kept by address.
	c := openai.NewClient(options...)
	return &OpenAIClient{client: &c, model: modelName}
}

func (o *OpenAIClient) Complete(ctx context.Context, req Request) (*Candidate, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessagesToOpenAI(req.Messages),
		Tools:    convertToolsToOpenAI(req.Tools),
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to OpenAI")
	}
	return processOpenAIResponse(resp)
}

func processOpenAIResponse(resp *openai.ChatCompletion) (*Candidate, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("received a response without choices")
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		fn := msg.ToolCalls[0].Function
		return nativeCall(fn.Name, fn.Arguments), nil
	}
	return &Candidate{Content: msg.Content}, nil
}

func convertMessagesToOpenAI(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case session.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func convertToolsToOpenAI(defs []tools.Definition) []openai.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        wireName(d.Name),
			Description: openai.String(d.Description),
			Parameters:  openai.FunctionParameters(d.JSONSchema()),
		}))
	}
	return out
}
