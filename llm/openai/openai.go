// Package openai adapts the OpenAI chat completions API to the llm
// Completer interface.
package openai

import (
	"context"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dshills/supportgraph-go/domain"
)

const defaultModel = "gpt-4o"

// Completer calls OpenAI in JSON mode so responses stay machine-parseable.
type Completer struct {
	client oai.Client
	model  string
}

// NewCompleter creates an OpenAI completer. An empty model name selects
// the default model.
func NewCompleter(apiKey, model string) *Completer {
	if model == "" {
		model = defaultModel
	}
	return &Completer{
		client: oai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *Completer) Complete(ctx context.Context, system string, messages []domain.Message) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(c.model),
		Messages: make([]oai.ChatCompletionMessageParamUnion, 0, len(messages)+1),
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &oai.ResponseFormatJSONObjectParam{},
		},
	}

	params.Messages = append(params.Messages, oai.SystemMessage(system))
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleAssistant:
			params.Messages = append(params.Messages, oai.AssistantMessage(msg.Content))
		case domain.RoleSystem:
			params.Messages = append(params.Messages, oai.SystemMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, oai.UserMessage(msg.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", errors.New("openai returned an empty completion")
	}
	return content, nil
}
