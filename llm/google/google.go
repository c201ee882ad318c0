// Package google adapts the Gemini API to the llm Completer interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/supportgraph-go/domain"
)

const defaultModel = "gemini-1.5-pro"

// Completer calls the Gemini API with a JSON response MIME type.
type Completer struct {
	client *genai.Client
	model  string
}

// NewCompleter creates a Gemini completer. An empty model name selects the
// default model. Close must be called when the completer is no longer
// needed.
func NewCompleter(ctx context.Context, apiKey, model string) (*Completer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &Completer{client: client, model: model}, nil
}

func (c *Completer) Complete(ctx context.Context, system string, messages []domain.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages to send")
	}

	gm := c.client.GenerativeModel(c.model)
	gm.ResponseMIMEType = "application/json"
	gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	// Everything before the final message becomes chat history.
	session := gm.StartChat()
	for _, msg := range messages[:len(messages)-1] {
		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(messages[len(messages)-1].Content))
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini returned no text content")
	}
	return sb.String(), nil
}

// Close releases the underlying API client.
func (c *Completer) Close() error {
	return c.client.Close()
}
