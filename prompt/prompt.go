// Package prompt provides the small building blocks the domain packages use
// to assemble model prompts: parsed text templates and an append-only
// builder for context suffixes.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// Template is a named, parsed prompt template.
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate parses content as a text/template.
func NewTemplate(name, content string) (*Template, error) {
	tmpl, err := template.New(name).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &Template{
		Name:     name,
		Content:  content,
		template: tmpl,
	}, nil
}

// MustTemplate is NewTemplate for package-level template literals; it panics
// on a parse error.
func MustTemplate(name, content string) *Template {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		panic(err)
	}
	return tmpl
}

// Render executes the template with the given variables.
func (t *Template) Render(vars map[string]interface{}) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render template %s: %w", t.Name, err)
	}
	return buf.String(), nil
}

// Builder accumulates prompt fragments. Fragments are joined without a
// separator, so callers control their own whitespace.
type Builder struct {
	parts []string
}

// NewBuilder creates an empty prompt builder.
func NewBuilder() *Builder {
	return &Builder{
		parts: make([]string, 0),
	}
}

// Add appends a fragment.
func (b *Builder) Add(part string) *Builder {
	b.parts = append(b.parts, part)
	return b
}

// AddFormat appends a formatted fragment.
func (b *Builder) AddFormat(format string, args ...interface{}) *Builder {
	b.parts = append(b.parts, fmt.Sprintf(format, args...))
	return b
}

// AddLine appends a fragment followed by a newline.
func (b *Builder) AddLine(part string) *Builder {
	b.parts = append(b.parts, part+"\n")
	return b
}

// AddSection appends a markdown section with a heading.
func (b *Builder) AddSection(title, content string) *Builder {
	b.parts = append(b.parts, fmt.Sprintf("## %s\n%s\n", title, content))
	return b
}

// Build joins the accumulated fragments.
func (b *Builder) Build() string {
	return strings.Join(b.parts, "")
}

// Reset clears the builder for reuse.
func (b *Builder) Reset() *Builder {
	b.parts = b.parts[:0]
	return b
}
