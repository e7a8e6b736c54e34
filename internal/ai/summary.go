package ai

import (
	"context"
	"strings"
	"unicode/utf8"
)

const (
	DefaultSummaryMinLength = 100

	summaryMaxTokens = 150
)

// SummaryGenerator condenses long highlights into one sentence.
type SummaryGenerator struct {
	completer Completer
	prompt    string
	minLength int
}

func NewSummaryGenerator(completer Completer, prompt string, minLength int) *SummaryGenerator {
	if minLength < 0 {
		minLength = DefaultSummaryMinLength
	}
	return &SummaryGenerator{
		completer: completer,
		prompt:    prompt,
		minLength: minLength,
	}
}

// ShouldSummarize reports whether text is long enough, counted in characters.
func (g *SummaryGenerator) ShouldSummarize(text string) bool {
	return g.completer != nil && utf8.RuneCountInString(text) >= g.minLength
}

// Summarize returns the summary, or "" when the model answered with nothing.
func (g *SummaryGenerator) Summarize(ctx context.Context, title, author, text string) (string, error) {
	answer, err := g.completer.Complete(ctx, FillPrompt(g.prompt, title, author, text), summaryMaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
