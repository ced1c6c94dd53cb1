package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"triage/internal/domain"
	"triage/internal/port"
)

// ProviderConfig selects and configures one classification backend.
type ProviderConfig struct {
	Name        string // anthropic, openai, ollama
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// PromptClassifier classifies tickets by prompting a text-generation backend.
type PromptClassifier struct {
	completer port.Completer
	prompt    *Prompt
	name      string
}

func NewPromptClassifier(name string, completer port.Completer, prompt *Prompt) *PromptClassifier {
	return &PromptClassifier{completer: completer, prompt: prompt, name: name}
}

// NewClassifier builds the backend named by cfg.Name.
func NewClassifier(cfg ProviderConfig, prompt *Prompt) (*PromptClassifier, error) {
	var (
		completer port.Completer
		err       error
	)
	switch strings.ToLower(cfg.Name) {
	case "anthropic", "claude":
		completer, err = NewAnthropicCompleter(cfg)
	case "openai":
		completer, err = NewOpenAICompleter(cfg)
	case "ollama", "":
		completer, err = NewOllamaCompleter(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Name)
	}
	if err != nil {
		return nil, err
	}
	return NewPromptClassifier(strings.ToLower(cfg.Name)+"/"+completer.ModelName(), completer, prompt), nil
}

func (c *PromptClassifier) Classify(ctx context.Context, req domain.ClassificationRequest) (string, error) {
	system, user, err := c.prompt.Render(req)
	if err != nil {
		return "", err
	}
	raw, err := c.completer.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return c.prompt.Parse(c.name, raw)
}

func (c *PromptClassifier) Name() string {
	return c.name
}

// classifyStatus maps a failed HTTP exchange onto the provider error taxonomy.
// status 0 means the request never produced a response.
func classifyStatus(provider string, status int, cause error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &domain.TransientProviderError{Provider: provider, StatusCode: status, RateLimited: true, Cause: cause}
	case status == 0, status == http.StatusRequestTimeout, status == http.StatusConflict, status >= 500:
		return &domain.TransientProviderError{Provider: provider, StatusCode: status, Cause: cause}
	default:
		return fmt.Errorf("%s: request rejected (status %d): %w", provider, status, cause)
	}
}

// transportError classifies an error that carries no HTTP status. A per-request
// timeout is transient; cancellation of the caller's context is not.
func transportError(ctx context.Context, provider string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", provider, ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.TransientProviderError{Provider: provider, Cause: err}
	}
	return classifyStatus(provider, 0, err)
}
