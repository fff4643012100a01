package reasoning

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAICompleter implements Completer for OpenAI-compatible backends.
type OpenAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter creates an OpenAI-backed completer.
func NewOpenAICompleter(apiKey, model string, opts ...option.RequestOption) *OpenAICompleter {
	allOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAICompleter{
		client: openai.NewClient(allOpts...),
		model:  model,
	}
}

// Provider returns the provider name.
func (c *OpenAICompleter) Provider() string {
	return "openai"
}

// Complete makes a single chat completion call.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
	}

	response, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	return response.Choices[0].Message.Content, nil
}
