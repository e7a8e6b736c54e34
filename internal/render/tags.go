package render

import (
	"strings"

	"github.com/mrlokans/weread2flomo/internal/config"
)

// HierarchyRoot is the parent tag of per-book tags in hierarchical mode.
const HierarchyRoot = "#微信读书"

var titlePunctuation = strings.NewReplacer(
	" ", "", "　", "",
	"，", "", ",", "",
	"、", "",
	"：", "", ":", "",
	"！", "", "!", "",
	"？", "", "?", "",
	"·", "", "•", "",
)

// CleanTitle reduces a book title to a tag-friendly main title: book-title
// marks are removed, subtitles in brackets are cut and punctuation dropped.
//
//	"美丽新世界（译文经典）" -> "美丽新世界"
//	"思考，快与慢"         -> "思考快与慢"
func CleanTitle(title string) string {
	clean := strings.NewReplacer("《", "", "》", "").Replace(title)
	for _, sep := range []string{"（", "(", "【", "["} {
		if i := strings.Index(clean, sep); i >= 0 {
			clean = clean[:i]
		}
	}
	return strings.TrimSpace(titlePunctuation.Replace(clean))
}

// TagBuilder composes the final tag list of a note.
type TagBuilder struct {
	opts config.Tags
}

func NewTagBuilder(opts config.Tags) *TagBuilder {
	return &TagBuilder{opts: opts}
}

// Build returns the default or title tags, then category tags, generated
// tags and the optional author tag, without duplicates and in that order.
func (b *TagBuilder) Build(title, author string, categoryTags, generated []string) []string {
	var tags []string

	if b.opts.AddBookTitle {
		clean := CleanTitle(title)
		switch {
		case b.opts.Hierarchical && clean != "":
			tags = append(tags, HierarchyRoot+"/"+clean)
		case clean != "":
			tags = append(tags, b.opts.Default...)
			tags = append(tags, "#"+clean)
		default:
			tags = append(tags, b.opts.Default...)
		}
	} else {
		tags = append(tags, b.opts.Default...)
	}

	tags = append(tags, categoryTags...)
	tags = append(tags, generated...)

	if b.opts.AddAuthor && strings.TrimSpace(author) != "" {
		tags = append(tags, "#"+strings.ReplaceAll(strings.TrimSpace(author), " ", "_"))
	}

	return dedupe(tags)
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
