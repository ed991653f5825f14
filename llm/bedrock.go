package llm

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/session"
	"github.com/m4xw311/tinker/tools"
)

// bedrockInvoker is the part of the Bedrock runtime client used here.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient is a client for the Anthropic models on AWS Bedrock.
type BedrockClient struct {
	client  bedrockInvoker
	modelID string
}

// NewBedrockClient creates a new BedrockClient.
// It requires AWS credentials to be configured in the environment.
// BEDROCK_ENDPOINT_URL overrides the service endpoint.
func NewBedrockClient(ctx context.Context, modelID string) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*bedrockruntime.Options)
	if endpoint := os.Getenv("BEDROCK_ENDPOINT_URL"); endpoint != "" {
		opts = append(opts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg, opts...),
		modelID: modelID,
	}, nil
}

func (b *BedrockClient) Complete(ctx context.Context, req Request) (*Candidate, error) {
	messages, systemPrompt := convertMessagesToAnthropicFormat(req.Messages)

	body, err := createAnthropicRequest(messages, systemPrompt, req.Stop, req.Tools)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}
	return processBedrockResponse(resp.Body)
}

// convertMessagesToAnthropicFormat renders messages as Anthropic Messages API
// JSON, hoisting system messages into the system prompt.
func convertMessagesToAnthropicFormat(messages []session.Message) ([]map[string]interface{}, string) {
	var out []map[string]interface{}
	var system []string

	for _, msg := range messages {
		if msg.Role == session.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		if msg.Content == "" {
			continue
		}
		role := "user"
		if msg.Role == session.RoleAssistant {
			role = "assistant"
		}
		out = append(out, map[string]interface{}{
			"role": role,
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": msg.Content,
				},
			},
		})
	}
	return out, strings.Join(system, "\n\n")
}

// createAnthropicRequest creates the request body for Anthropic models on Bedrock.
func createAnthropicRequest(messages []map[string]interface{}, systemPrompt string, stop []string, defs []tools.Definition) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        anthropicMaxTokens,
		"messages":          messages,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(stop) > 0 {
		request["stop_sequences"] = stop
	}
	if len(defs) > 0 {
		var ts []map[string]interface{}
		for _, d := range defs {
			ts = append(ts, map[string]interface{}{
				"name":         wireName(d.Name),
				"description":  d.Description,
				"input_schema": d.JSONSchema(),
			})
		}
		request["tools"] = ts
	}
	return json.Marshal(request)
}

type bedrockResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	Error interface{} `json:"error"`
}

// processBedrockResponse keeps the first tool_use block if there is one,
// otherwise the concatenated text.
func processBedrockResponse(body []byte) (*Candidate, error) {
	var resp bedrockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if resp.Error != nil {
		return nil, errors.New("Bedrock API error: %v", resp.Error)
	}

	var text strings.Builder
	for _, item := range resp.Content {
		switch item.Type {
		case "text":
			text.WriteString(item.Text)
		case "tool_use":
			return nativeCall(item.Name, string(item.Input)), nil
		}
	}
	return &Candidate{Content: text.String()}, nil
}
