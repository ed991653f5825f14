package llm

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/session"
	"github.com/m4xw311/tinker/tools"
)

// GeminiClient is a client for the Google Gemini API.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiClient creates a new GeminiClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiClient(ctx context.Context, modelName string) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiClient{client: client, modelName: modelName}, nil
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func (g *GeminiClient) Complete(ctx context.Context, req Request) (*Candidate, error) {
	history, system := convertMessagesToGemini(req.Messages)
	if len(history) == 0 {
		return nil, errors.New("no messages to send to Gemini")
	}

	// A fresh model per call keeps concurrent requests from sharing settings.
	model := g.client.GenerativeModel(g.modelName)
	model.Tools = convertToolsToGemini(req.Tools)
	model.StopSequences = req.Stop
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	last := history[len(history)-1]
	chat := model.StartChat()
	chat.History = history[:len(history)-1]
	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}
	return processGeminiResponse(resp)
}

// convertMessagesToGemini maps assistant turns to the "model" role, hoists
// system messages and drops empty turns.
func convertMessagesToGemini(messages []session.Message) ([]*genai.Content, string) {
	var contents []*genai.Content
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
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents, strings.Join(system, "\n\n")
}

func convertToolsToGemini(defs []tools.Definition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, d := range defs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		}
		for _, p := range d.Params {
			schema.Properties[p.Name] = &genai.Schema{
				Type:        geminiType(p.Type),
				Description: p.Description,
			}
			if p.Default == nil && !p.Optional {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        wireName(d.Name),
			Description: d.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiType(t tools.ParamType) genai.Type {
	switch t {
	case tools.ParamBool:
		return genai.TypeBoolean
	case tools.ParamNumber:
		return genai.TypeNumber
	case tools.ParamObject:
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func processGeminiResponse(resp *genai.GenerateContentResponse) (*Candidate, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("received an empty response from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			args, err := json.Marshal(v.Args)
			if err != nil {
				args = []byte("{}")
			}
			return nativeCall(v.Name, string(args)), nil
		}
	}
	return &Candidate{Content: text.String()}, nil
}
