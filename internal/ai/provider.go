// Package ai connects the engine to an external text-generation provider.
//
// Provider is the narrow contract the engine depends on. Anthropic is the
// production implementation; ProviderFunc adapts a function for tests and
// offline use. Assistant runs provider calls through the retry controller
// under the AI timeout class.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
)

// Provider error codes. All are reported with kind ai.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeQuotaExceeded      = "quota_exceeded"
	CodeProviderError      = "provider_error"
)

// DefaultMaxTokens bounds the length of generated text.
const DefaultMaxTokens = 1024

// Provider generates text from a prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, prompt string) (string, error)

// Generate implements Provider.
func (f ProviderFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Anthropic is a Provider backed by the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic returns a provider using apiKey and model. An empty model
// selects domain.DefaultAIModel. The SDK's own retries are disabled; the
// retry controller owns backoff.
func NewAnthropic(apiKey, model string, opts ...option.RequestOption) (*Anthropic, error) {
	if apiKey == "" {
		return nil, &classify.Error{
			Kind:    classify.KindAI,
			Op:      "ai.configure",
			Code:    CodeInvalidCredentials,
			Message: "no AI provider key configured",
			Err:     classify.ErrAIProvider,
		}
	}
	if model == "" {
		model = domain.DefaultAIModel
	}
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: DefaultMaxTokens,
	}, nil
}

// Model returns the model name requests are sent to.
func (a *Anthropic) Model() string {
	return a.model
}

// Generate implements Provider.
func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", providerError(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", &classify.Error{
			Kind:    classify.KindAI,
			Op:      "ai.generate",
			Code:    CodeProviderError,
			Message: "provider returned no text",
			Err:     classify.ErrAIProvider,
		}
	}
	return b.String(), nil
}

// providerError maps an API error onto the ai kind. Transport failures
// without an HTTP status are returned unchanged so the classifier can treat
// them as network errors.
func providerError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	code := CodeProviderError
	msg := strings.ToLower(apiErr.Error())
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
		code = CodeInvalidCredentials
	case apiErr.StatusCode == http.StatusTooManyRequests,
		strings.Contains(msg, "credit balance"), strings.Contains(msg, "quota"):
		code = CodeQuotaExceeded
	}
	return &classify.Error{
		Kind:    classify.KindAI,
		Op:      "ai.generate",
		Code:    code,
		Message: fmt.Sprintf("AI provider returned %d", apiErr.StatusCode),
		Err:     fmt.Errorf("%w: %w", classify.ErrAIProvider, err),
	}
}
