package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"

	"creditdocs-backend/internal/llm"
)

// generator is the part of llms.Model the adapter needs.
type generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Provider implements llm.Provider on a local Ollama server through langchaingo.
type Provider struct {
	model string
	gen   generator
}

// New connects to serverURL with the given model.
func New(serverURL, model string) (*Provider, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("OLLAMA_MODEL is required")
	}
	client, err := lcollama.New(
		lcollama.WithServerURL(serverURL),
		lcollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama: %w", err)
	}
	return &Provider{model: model, gen: client}, nil
}

// ID implements llm.Provider.
func (p *Provider) ID() llm.ProviderID { return llm.ProviderOllama }

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.model }

// Complete sends the conversation in a single GenerateContent call.
func (p *Provider) Complete(ctx context.Context, in llm.Request) (llm.Response, error) {
	messages := make([]llms.MessageContent, 0, len(in.Messages))
	for _, m := range in.Messages {
		messages = append(messages, llms.TextParts(chatType(m.Role), m.Content))
	}

	var opts []llms.CallOption
	if in.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*in.Temperature)))
	}
	if in.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(in.MaxTokens))
	}
	if in.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := p.gen.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return llm.Response{}, fmt.Errorf("ollama generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.Response{}, &llm.ProviderError{Kind: llm.KindEmpty, Err: errors.New("ollama returned no choices")}
	}
	content := strings.TrimSpace(resp.Choices[0].Content)
	if content == "" {
		return llm.Response{}, &llm.ProviderError{Kind: llm.KindEmpty, Err: errors.New("ollama returned empty content")}
	}
	return llm.Response{Content: content}, nil
}

func chatType(role llm.Role) llms.ChatMessageType {
	switch role {
	case llm.RoleSystem:
		return llms.ChatMessageTypeSystem
	case llm.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

var _ llm.Provider = (*Provider)(nil)
