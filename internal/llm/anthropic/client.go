package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"creditdocs-backend/internal/llm"
)

var apiURL = "https://api.anthropic.com/v1/messages"

const apiVersion = "2023-06-01"

// Client implements llm.Provider for the Anthropic Messages API.
type Client struct {
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewClient constructs an Anthropic client.
func NewClient(apiKey, model string, maxTokens int) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("ANTHROPIC_MODEL is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float32  `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ID implements llm.Provider.
func (c *Client) ID() llm.ProviderID { return llm.ProviderAnthropic }

// Model implements llm.Provider.
func (c *Client) Model() string { return c.model }

// Complete sends one Messages request. System messages go to the top-level
// system field; JSON mode is requested through the system prompt since the
// API has no response format switch.
func (c *Client) Complete(ctx context.Context, in llm.Request) (llm.Response, error) {
	system := llm.SystemText(in.Messages)
	if in.JSON {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}
	conv := llm.Conversation(in.Messages)
	msgs := make([]message, 0, len(conv))
	for _, m := range conv {
		msgs = append(msgs, message{Role: string(m.Role), Content: m.Content})
	}
	if len(msgs) == 0 {
		return llm.Response{}, &llm.ProviderError{Kind: llm.KindConfig, Err: errors.New("anthropic request needs a user message")}
	}
	maxTokens := c.maxTokens
	if in.MaxTokens > 0 {
		maxTokens = in.MaxTokens
	}

	payload, err := json.Marshal(messagesRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: in.Temperature,
		System:      system,
		Messages:    msgs,
	})
	if err != nil {
		return llm.Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return llm.Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return llm.Response{}, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		// 529 is Anthropic's overloaded status.
		if resp.StatusCode == 529 {
			return llm.Response{}, &llm.ProviderError{Kind: llm.KindQuota, Status: resp.StatusCode, Err: errors.New("anthropic overloaded")}
		}
		return llm.Response{}, llm.StatusError(resp.StatusCode, string(body))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return llm.Response{}, &llm.ProviderError{Kind: llm.KindParse, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if parsed.Error != nil {
		return llm.Response{}, &llm.ProviderError{Kind: llm.KindHTTP, Err: fmt.Errorf("anthropic error: %s (%s)", parsed.Error.Message, parsed.Error.Type)}
	}

	var b strings.Builder
	for _, part := range parsed.Content {
		if part.Type == "" || part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return llm.Response{}, &llm.ProviderError{Kind: llm.KindEmpty, Err: errors.New("no content in response")}
	}
	return llm.Response{Content: content}, nil
}

var _ llm.Provider = (*Client)(nil)
