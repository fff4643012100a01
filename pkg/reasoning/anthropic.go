package reasoning

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicCompleter implements Completer for Anthropic Claude.
type AnthropicCompleter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicCompleter creates an Anthropic-backed completer.
func NewAnthropicCompleter(apiKey, model string) *AnthropicCompleter {
	return &AnthropicCompleter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Provider returns the provider name.
func (c *AnthropicCompleter) Provider() string {
	return "anthropic"
}

// Complete makes a single messages call.
func (c *AnthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	response, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", err
	}

	content := ""
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += b.Text
		}
	}

	return content, nil
}
