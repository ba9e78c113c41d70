package vertex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"creditdocs-backend/internal/llm"
)

// NewGenAIClient opens the shared Vertex AI client. Callers own Close.
func NewGenAIClient(ctx context.Context, projectID, region string) (*genai.Client, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex: projectID and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return client, nil
}

// Provider implements llm.Provider on a Gemini model.
type Provider struct {
	client *genai.Client
	model  string
}

// New wraps an existing genai client.
func New(client *genai.Client, model string) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("vertex: client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("VERTEX_MODEL is required")
	}
	return &Provider{client: client, model: model}, nil
}

// ID implements llm.Provider.
func (p *Provider) ID() llm.ProviderID { return llm.ProviderVertex }

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.model }

// Complete replays earlier turns as chat history and sends the last user turn.
func (p *Provider) Complete(ctx context.Context, in llm.Request) (llm.Response, error) {
	history, last, err := splitTurns(in.Messages)
	if err != nil {
		return llm.Response{}, err
	}

	model := p.client.GenerativeModel(p.model)
	if sys := llm.SystemText(in.Messages); sys != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(sys)}}
	}
	model.GenerationConfig = generationConfig(in)

	var resp *genai.GenerateContentResponse
	if len(history) == 0 {
		resp, err = model.GenerateContent(ctx, last...)
	} else {
		cs := model.StartChat()
		cs.History = history
		resp, err = cs.SendMessage(ctx, last...)
	}
	if err != nil {
		return llm.Response{}, fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text := ResponseText(resp)
	if text == "" {
		return llm.Response{}, &llm.ProviderError{Kind: llm.KindEmpty, Err: errors.New("gemini response had no text parts")}
	}
	return llm.Response{Content: text}, nil
}

func generationConfig(in llm.Request) genai.GenerationConfig {
	cfg := genai.GenerationConfig{}
	if in.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if in.Temperature != nil {
		cfg.Temperature = genai.Ptr[float32](*in.Temperature)
	}
	if in.MaxTokens > 0 {
		cfg.MaxOutputTokens = genai.Ptr[int32](int32(in.MaxTokens))
	}
	return cfg
}

// splitTurns maps non-system messages to genai history plus the final user parts.
func splitTurns(messages []llm.Message) ([]*genai.Content, []genai.Part, error) {
	conv := llm.Conversation(messages)
	if len(conv) == 0 || conv[len(conv)-1].Role != llm.RoleUser {
		return nil, nil, &llm.ProviderError{Kind: llm.KindConfig, Err: errors.New("gemini request must end with a user message")}
	}
	history := make([]*genai.Content, 0, len(conv)-1)
	for _, m := range conv[:len(conv)-1] {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return history, []genai.Part{genai.Text(conv[len(conv)-1].Content)}, nil
}

// ResponseText concatenates the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

var _ llm.Provider = (*Provider)(nil)
