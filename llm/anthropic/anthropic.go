// Package anthropic adapts the Anthropic messages API to the llm
// Completer interface.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthro "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/supportgraph-go/domain"
)

const (
	defaultModel = "claude-sonnet-4-0"
	maxTokens    = 4096
)

// Completer calls the Anthropic messages API. The system prompt rides in
// the dedicated system field; JSON-only output is enforced by the prompt.
type Completer struct {
	client anthro.Client
	model  string
}

// NewCompleter creates an Anthropic completer. An empty model name selects
// the default model.
func NewCompleter(apiKey, model string) *Completer {
	if model == "" {
		model = defaultModel
	}
	return &Completer{
		client: anthro.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *Completer) Complete(ctx context.Context, system string, messages []domain.Message) (string, error) {
	params := anthro.MessageNewParams{
		Model:     anthro.Model(c.model),
		MaxTokens: maxTokens,
		System:    []anthro.TextBlockParam{{Text: system}},
		Messages:  make([]anthro.MessageParam, 0, len(messages)),
	}

	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleAssistant:
			params.Messages = append(params.Messages, anthro.NewAssistantMessage(anthro.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthro.NewUserMessage(anthro.NewTextBlock(msg.Content)))
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("anthropic returned no text content")
	}
	return sb.String(), nil
}
