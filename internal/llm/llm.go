// Package llm is the inference gateway: one chat completion across an ordered
// list of interchangeable providers.
package llm

import (
	"context"
	"strings"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one canonical chat message.
type Message struct {
	Role    Role
	Content string
}

// Request is a provider-neutral completion request.
type Request struct {
	Messages []Message
	// Temperature is left to the provider default when nil.
	Temperature *float32
	// JSON asks the provider for a JSON object response where supported.
	JSON      bool
	MaxTokens int
}

// Response is the canonical provider output.
type Response struct {
	Content string
}

// Provider adapts one inference backend to the canonical request/response shape.
type Provider interface {
	ID() ProviderID
	Model() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// ProviderID identifies a provider family.
type ProviderID int

const (
	ProviderUnknown ProviderID = iota
	ProviderOpenAI
	ProviderAnthropic
	ProviderVertex
	ProviderOllama
)

var providerNames = map[ProviderID]string{
	ProviderUnknown:   "unknown",
	ProviderOpenAI:    "openai",
	ProviderAnthropic: "anthropic",
	ProviderVertex:    "vertex",
	ProviderOllama:    "ollama",
}

func (p ProviderID) String() string {
	if name, ok := providerNames[p]; ok {
		return name
	}
	return "unknown"
}

// ParseProviderID maps a config name to a ProviderID.
func ParseProviderID(raw string) ProviderID {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return ProviderOpenAI
	case "anthropic", "claude":
		return ProviderAnthropic
	case "vertex", "gemini", "vertexai":
		return ProviderVertex
	case "ollama":
		return ProviderOllama
	default:
		return ProviderUnknown
	}
}

// Temp returns a pointer to t for Request.Temperature.
func Temp(t float32) *float32 {
	return &t
}

// SystemText joins all system messages, for adapters with a separate system field.
func SystemText(messages []Message) string {
	var parts []string
	for _, m := range messages {
		if m.Role == RoleSystem && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Conversation returns the non-system messages in order.
func Conversation(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}
