package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed response is echoed into errors.
const maxErrorBody = 512

// OpenAIClient talks to any OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	apiKey     string
	httpClient *http.Client
	url        string
	model      string
	logger     *zap.Logger
}

// NewOpenAIClient builds a client for baseURL + "/chat/completions".
// httpClient may be nil, in which case http.DefaultClient is used.
func NewOpenAIClient(baseURL, apiKey, modelID string, httpClient *http.Client, logger *zap.Logger) *OpenAIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIClient{
		apiKey:     apiKey,
		httpClient: httpClient,
		url:        strings.TrimRight(baseURL, "/") + "/chat/completions",
		model:      modelID,
		logger:     logger,
	}
}

// Model returns the fixed model identifier sent with every request.
func (c *OpenAIClient) Model() string {
	return c.model
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type openAIChoice struct {
	Message *openAIMessage `json:"message"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
}

// Complete implements Completer.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingCredential
	}

	payload := openAIRequest{
		Model:     c.model,
		Messages:  make([]openAIMessage, len(req.Messages)),
		MaxTokens: req.MaxTokens,
	}
	for i, turn := range req.Messages {
		content := turn.Content
		payload.Messages[i] = openAIMessage{Role: string(turn.Role), Content: &content}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrCompletionUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("completion request rejected", zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: status %d: %s", ErrCompletionUnavailable, resp.StatusCode, truncate(body, maxErrorBody))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionFormat, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrCompletionFormat)
	}

	message := parsed.Choices[0].Message
	if message == nil || message.Content == nil {
		return "", fmt.Errorf("%w: first choice has no message content", ErrCompletionFormat)
	}

	return *message.Content, nil
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}

var _ Completer = (*OpenAIClient)(nil)

