package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryGenerator_ShouldSummarize(t *testing.T) {
	g := NewSummaryGenerator(&fakeCompleter{}, "", 5)

	assert.False(t, g.ShouldSummarize("四个汉字"))
	assert.True(t, g.ShouldSummarize("五个汉字啊"), "counted in characters, not bytes")

	disabled := NewSummaryGenerator(nil, "", 0)
	assert.False(t, disabled.ShouldSummarize(strings.Repeat("长", 500)))
}

func TestSummaryGenerator_Summarize(t *testing.T) {
	completer := &fakeCompleter{answer: "  核心观点。\n"}
	g := NewSummaryGenerator(completer, "总结《{book_title}》：{highlight_text}", 1)

	got, err := g.Summarize(context.Background(), "原则", "达利欧", "很长的一段话")
	require.NoError(t, err)
	assert.Equal(t, "核心观点。", got)
	assert.Equal(t, "总结《原则》：很长的一段话", completer.prompt)
	assert.Equal(t, summaryMaxTokens, completer.tokens)
}

func TestSummaryGenerator_EmptyAnswer(t *testing.T) {
	g := NewSummaryGenerator(&fakeCompleter{answer: "   "}, "", 1)

	got, err := g.Summarize(context.Background(), "t", "a", "text")
	require.NoError(t, err)
	assert.Empty(t, got)
}
