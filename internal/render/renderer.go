// Package render turns an enriched highlight into the text of a flomo memo.
//
// Templates use {placeholder} fields:
//
//	{book_title} {author} {highlight_text} {chapter_info} {book_url}
//	{ai_summary_section} {note_section} {create_time} {tags}
//
// Literal braces are written as {{ and }}. Runs of blank lines in the output
// collapse to one and the result is trimmed.
package render

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mrlokans/weread2flomo/internal/config"
	"github.com/mrlokans/weread2flomo/internal/entities"
)

const (
	TemplateSimple   = "simple"
	TemplateDetailed = "detailed"

	SimpleFormat = "📖 《{book_title}》- {author}\n\n> {highlight_text}\n\n{chapter_info}\n\n{tags}"

	DetailedFormat = "📖 《{book_title}》- {author}\n{chapter_info}\n\n> {highlight_text}\n\n" +
		"{ai_summary_section}{note_section}\n🔗 {book_url}\n📅 {create_time}\n\n{tags}"
)

var ErrUnknownPlaceholder = errors.New("unknown template placeholder")

var placeholderRe = regexp.MustCompile(`\{\{|\}\}|\{([a-z_]+)\}`)

var builtinTemplates = map[string]string{
	TemplateSimple:   SimpleFormat,
	TemplateDetailed: DetailedFormat,
}

// Renderer picks a template per book category and fills it in.
type Renderer struct {
	cfg       *config.Config
	templates map[string]string
	tags      *TagBuilder
	now       func() time.Time
}

func New(cfg *config.Config) *Renderer {
	templates := make(map[string]string, len(builtinTemplates)+len(cfg.Templates))
	for name, format := range builtinTemplates {
		templates[name] = format
	}
	for name, tmpl := range cfg.Templates {
		if tmpl.Format != "" {
			templates[name] = tmpl.Format
		}
	}
	return &Renderer{
		cfg:       cfg,
		templates: templates,
		tags:      NewTagBuilder(cfg.Tags),
		now:       time.Now,
	}
}

// Template returns the format registered under name. Unknown names resolve
// to the simple format.
func (r *Renderer) Template(name string) string {
	if format, ok := r.templates[name]; ok {
		return format
	}
	return SimpleFormat
}

// TemplateNames lists the available templates in name order.
func (r *Renderer) TemplateNames() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render implements syncer.Renderer.
func (r *Renderer) Render(note entities.Note) (string, error) {
	templateName := r.cfg.DefaultTemplate
	var categoryTags []string
	if name, ok := r.cfg.CategoryFor(note.BookTitle, note.Author); ok {
		category := r.cfg.Categories[name]
		categoryTags = category.Tags
		if category.Template != "" {
			templateName = category.Template
		}
	}

	tags := r.tags.Build(note.BookTitle, note.Author, categoryTags, note.AITags)
	return r.Format(r.Template(templateName), note, tags)
}

// Format fills a single template.
func (r *Renderer) Format(format string, note entities.Note, tags []string) (string, error) {
	fields := map[string]string{
		"book_title":         note.BookTitle,
		"author":             note.Author,
		"highlight_text":     note.Highlight,
		"chapter_info":       "",
		"book_url":           note.BookURL,
		"ai_summary_section": "",
		"note_section":       "",
		"create_time":        note.CreateTime,
		"tags":               strings.Join(tags, " "),
	}
	if note.Chapter != "" {
		fields["chapter_info"] = "📍 " + note.Chapter
	}
	if note.Summary != "" {
		fields["ai_summary_section"] = "✨ AI 摘要：" + note.Summary + "\n"
	}
	if note.NoteText != "" {
		fields["note_section"] = "💭 我的思考：" + note.NoteText + "\n"
	}
	if fields["create_time"] == "" {
		fields["create_time"] = r.now().Format("2006-01-02")
	}

	var unknown []string
	content := placeholderRe.ReplaceAllStringFunc(format, func(m string) string {
		switch m {
		case "{{":
			return "{"
		case "}}":
			return "}"
		}
		name := m[1 : len(m)-1]
		value, ok := fields[name]
		if !ok {
			unknown = append(unknown, name)
			return m
		}
		return value
	})
	if len(unknown) > 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlaceholder, strings.Join(unknown, ", "))
	}

	return collapseBlankLines(content), nil
}

func collapseBlankLines(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	prevEmpty := false
	for _, line := range lines {
		empty := strings.TrimSpace(line) == ""
		if empty && prevEmpty {
			continue
		}
		out = append(out, line)
		prevEmpty = empty
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
