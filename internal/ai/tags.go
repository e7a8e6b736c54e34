package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

const (
	ProviderNone      = "none"
	ProviderLocal     = "local"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultMaxTags = 3

	tagMaxTokens = 100
)

// localKeywords is checked in order; the first MaxTags matches win.
var localKeywords = []struct {
	keyword string
	tag     string
}{
	{"思维", "#思维模型"},
	{"认知", "#认知科学"},
	{"心理", "#心理学"},
	{"效率", "#效率提升"},
	{"时间", "#时间管理"},
	{"习惯", "#习惯养成"},
	{"沟通", "#沟通技巧"},
	{"领导", "#领导力"},
	{"管理", "#管理"},
	{"创新", "#创新思维"},
	{"决策", "#决策"},
	{"学习", "#学习方法"},
	{"成长", "#个人成长"},
	{"目标", "#目标管理"},
	{"专注", "#专注力"},
	{"情绪", "#情绪管理"},
	{"关系", "#人际关系"},
	{"健康", "#健康"},
	{"财富", "#财富"},
	{"投资", "#投资理财"},
}

type TagOptions struct {
	Provider string
	Prompt   string
	MaxTags  int

	// Completer is required for the openai and anthropic providers.
	Completer Completer
	Cache     *TagCache
}

type TagGenerator struct {
	provider  string
	prompt    string
	maxTags   int
	completer Completer
	cache     *TagCache
	logger    zerolog.Logger
}

func NewTagGenerator(opts TagOptions, logger zerolog.Logger) (*TagGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	switch provider {
	case "", ProviderNone:
		provider = ProviderNone
	case ProviderLocal:
	case ProviderOpenAI, ProviderAnthropic:
		if opts.Completer == nil {
			return nil, fmt.Errorf("provider %s needs a completer", provider)
		}
	default:
		return nil, fmt.Errorf("unknown tag provider %q", opts.Provider)
	}

	maxTags := opts.MaxTags
	if maxTags <= 0 {
		maxTags = DefaultMaxTags
	}
	return &TagGenerator{
		provider:  provider,
		prompt:    opts.Prompt,
		maxTags:   maxTags,
		completer: opts.Completer,
		cache:     opts.Cache,
		logger:    logger.With().Str("component", "ai_tags").Str("provider", provider).Logger(),
	}, nil
}

func (g *TagGenerator) Provider() string { return g.provider }

// GenerateTags returns up to MaxTags tags for a highlight. The none provider
// always returns no tags.
func (g *TagGenerator) GenerateTags(ctx context.Context, title, author, text string) ([]string, error) {
	if g.provider == ProviderNone {
		return nil, nil
	}
	if g.cache != nil {
		if tags, ok := g.cache.Get(title, author, text); ok {
			g.logger.Debug().Strs("tags", tags).Msg("Tag cache hit")
			return tags, nil
		}
	}

	var tags []string
	switch g.provider {
	case ProviderLocal:
		tags = LocalTags(title, text, g.maxTags)
	default:
		answer, err := g.completer.Complete(ctx, FillPrompt(g.prompt, title, author, text), tagMaxTokens)
		if err != nil {
			return nil, err
		}
		tags = capTags(ParseTags(answer), g.maxTags)
	}

	if g.cache != nil {
		if err := g.cache.Put(title, author, text, tags); err != nil {
			g.logger.Warn().Err(err).Msg("Tag cache write failed")
		}
	}
	return tags, nil
}

// LocalTags matches the highlight and title against a fixed keyword table.
func LocalTags(title, text string, maxTags int) []string {
	haystack := strings.ToLower(text + " " + title)
	var tags []string
	for _, kw := range localKeywords {
		if strings.Contains(haystack, kw.keyword) {
			tags = append(tags, kw.tag)
		}
	}
	return capTags(tags, maxTags)
}

// ParseTags extracts #tag tokens from a model answer. Heading lines such as
// "标签：" or "Tags:" are ignored.
func ParseTags(answer string) []string {
	var tags []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "标签") || strings.HasPrefix(line, "Tag") {
			continue
		}
		if !strings.Contains(line, "#") {
			continue
		}
		for _, part := range strings.Fields(line) {
			if strings.HasPrefix(part, "#") {
				tags = append(tags, part)
			}
		}
	}
	return tags
}

func capTags(tags []string, n int) []string {
	if n > 0 && len(tags) > n {
		return tags[:n]
	}
	return tags
}
