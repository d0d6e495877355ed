package ai

import (
	"context"
	"strings"

	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/executor"
	"github.com/mschirtzinger/notesync/internal/notify"
	"github.com/mschirtzinger/notesync/internal/retry"
)

// Assistant runs prompts through a Provider with retries and the AI timeout.
type Assistant struct {
	provider Provider
	retry    *retry.Controller
	sink     notify.Sink
}

// NewAssistant returns an assistant calling p through rc. Failures are
// reported to sink.
func NewAssistant(p Provider, rc *retry.Controller, sink notify.Sink) *Assistant {
	return &Assistant{provider: p, retry: rc, sink: sink}
}

// Ask sends a free-form prompt.
func (a *Assistant) Ask(ctx context.Context, prompt string) (string, error) {
	return a.generate(ctx, "ai.ask", prompt)
}

// Run renders a saved prompt against note and sends it.
//
// Example:
//
//	out, err := assistant.Run(ctx, summarize, note)
func (a *Assistant) Run(ctx context.Context, p domain.Prompt, n domain.Note) (string, error) {
	return a.generate(ctx, "ai.run_prompt", Render(p, n))
}

func (a *Assistant) generate(ctx context.Context, op, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		err := &classify.Error{
			Kind:    classify.KindValidation,
			Op:      op,
			Code:    "empty_prompt",
			Message: "prompt is empty",
			Err:     classify.ErrValidation,
		}
		notify.Send(a.sink, notify.LevelError, err.Kind.Title(), err.Message, nil)
		return "", err
	}

	out, err := retry.Run(ctx, a.retry, executor.ClassAI, op, func(ctx context.Context) (string, error) {
		return a.provider.Generate(ctx, prompt)
	})
	if err != nil {
		ce, _ := classify.As(err)
		notify.Send(a.sink, notify.LevelError, ce.Kind.Title(), ce.Message, nil)
		return "", err
	}
	return out, nil
}

// Render fills {{title}} and {{content}} in the prompt with the note's
// fields. A prompt without {{content}} gets the note content appended after
// a blank line.
func Render(p domain.Prompt, n domain.Note) string {
	body := p.Content
	hasContent := strings.Contains(body, "{{content}}")
	body = strings.NewReplacer("{{title}}", n.Title, "{{content}}", n.Content).Replace(body)
	if !hasContent && n.Content != "" {
		body = strings.TrimRight(body, "\n") + "\n\n" + n.Content
	}
	return body
}
