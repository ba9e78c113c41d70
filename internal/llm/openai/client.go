package openai

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

var apiURL = "https://api.openai.com/v1/chat/completions"

// Client implements llm.Provider using OpenAI Chat Completions.
type Client struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client. baseURL may be empty.
func NewClient(apiKey, model, baseURL string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("OPENAI_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	url := ""
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		url = base + "/chat/completions"
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		url:    url,
		// The gateway bounds each attempt; this is only a backstop.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ID implements llm.Provider.
func (c *Client) ID() llm.ProviderID { return llm.ProviderOpenAI }

// Model implements llm.Provider.
func (c *Client) Model() string { return c.model }

// Complete sends one chat completion request. It never retries.
func (c *Client) Complete(ctx context.Context, in llm.Request) (llm.Response, error) {
	reqMessages := make([]chatMessage, 0, len(in.Messages))
	for _, m := range in.Messages {
		reqMessages = append(reqMessages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    reqMessages,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	}
	if isGPT5(c.model) {
		reqBody.Temperature = nil
	}
	if in.JSON {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return llm.Response{}, err
	}

	url := c.url
	if url == "" {
		url = apiURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return llm.Response{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return llm.Response{}, &llm.ProviderError{Kind: llm.KindTimeout, Err: fmt.Errorf("openai request timeout: %w", err)}
		}
		return llm.Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return llm.Response{}, llm.StatusError(resp.StatusCode, string(body))
		}
		return llm.Response{}, &llm.ProviderError{Kind: llm.KindParse, Err: fmt.Errorf("openai response parse: %w", err)}
	}
	if parsed.Error != nil {
		perr := llm.StatusError(resp.StatusCode, fmt.Sprintf("openai error: %s (%s)", parsed.Error.Message, parsed.Error.Type))
		if resp.StatusCode < 400 {
			perr.Kind = llm.KindHTTP
		}
		return llm.Response{}, perr
	}
	if resp.StatusCode >= 400 {
		return llm.Response{}, llm.StatusError(resp.StatusCode, string(body))
	}
	if len(parsed.Choices) == 0 {
		return llm.Response{}, &llm.ProviderError{Kind: llm.KindEmpty, Err: errors.New("openai response missing choices")}
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return llm.Response{}, &llm.ProviderError{Kind: llm.KindEmpty, Err: errors.New("openai response empty content")}
	}
	return llm.Response{Content: content}, nil
}

// gpt-5 models reject an explicit temperature.
func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var _ llm.Provider = (*Client)(nil)
