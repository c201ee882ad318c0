package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/supportgraph-go/domain"
)

// Completer is the provider-side interface: send a system prompt and a
// conversation, get the raw model text back. Implementations live in the
// provider subpackages (openai, anthropic, google).
type Completer interface {
	Complete(ctx context.Context, system string, messages []domain.Message) (string, error)
}

// Decider produces a structured support decision for a request.
type Decider interface {
	Decide(ctx context.Context, req Request) (domain.Decision, domain.NextStep, error)
}

// StructuredDecider adapts any Completer into a Decider.
//
// It builds the prompt, parses the JSON decision, and retries transient
// provider failures with a linear backoff. Non-transient failures (bad
// API key, malformed request) return immediately.
type StructuredDecider struct {
	completer  Completer
	maxRetries int
	retryDelay time.Duration
}

// NewStructuredDecider wraps a provider Completer. Defaults: 3 retries,
// one second apart.
func NewStructuredDecider(completer Completer) *StructuredDecider {
	return &StructuredDecider{
		completer:  completer,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

func (d *StructuredDecider) Decide(ctx context.Context, req Request) (domain.Decision, domain.NextStep, error) {
	if ctx.Err() != nil {
		return domain.Decision{}, domain.StepNone, ctx.Err()
	}

	messages := BuildMessages(req)

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		raw, err := d.completer.Complete(ctx, SystemPrompt, messages)
		if err == nil {
			return ParseDecision(raw)
		}

		lastErr = err
		if !isTransientError(err) {
			return domain.Decision{}, domain.StepNone, err
		}
		if attempt >= d.maxRetries {
			break
		}

		select {
		case <-time.After(d.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return domain.Decision{}, domain.StepNone, ctx.Err()
		}
	}

	return domain.Decision{}, domain.StepNone, fmt.Errorf("completion failed after %d retries: %w", d.maxRetries, lastErr)
}

// isTransientError reports whether an error is worth retrying.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout",
		"network",
		"connection",
		"temporary",
		"rate limit",
		"429",
		"500",
		"502",
		"503",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
