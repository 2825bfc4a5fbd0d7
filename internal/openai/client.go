package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultModel = "gpt-4o-mini"
	maxTokens    = 500
)

// Client answers decision prompts through the OpenAI chat completions API.
type Client struct {
	*openai.Client
	Model        string
	SystemPrompt string
}

func NewClient(apiKey, model, systemPrompt string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model, SystemPrompt: systemPrompt}
}

// Complete sends prompt as the user message and returns the reply text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}

	var messages []openai.ChatCompletionMessage
	if c.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	// Temperature is left unset: go-openai omits a zero value, so the API
	// default applies. Reasoning models reject any other value.
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: messages,
	}
	// Reasoning models only accept MaxCompletionTokens.
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
