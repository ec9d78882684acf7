package prompt

import (
	"strings"
	"testing"
)

func TestTemplateRender(t *testing.T) {
	tmpl, err := NewTemplate("greeting", "Assessment for {{.patient}}: {{.finding}}")
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}

	got, err := tmpl.Render(map[string]interface{}{
		"patient": "body-1",
		"finding": "right deltoid strain",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Assessment for body-1: right deltoid strain" {
		t.Errorf("got %q", got)
	}
}

func TestNewTemplateParseError(t *testing.T) {
	if _, err := NewTemplate("bad", "{{.unclosed"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestMustTemplatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on invalid template")
		}
	}()
	MustTemplate("bad", "{{.unclosed")
}

func TestBuilder(t *testing.T) {
	b := NewBuilder()
	b.Add("intro").
		AddFormat(" pain=%g/10", 6.0).
		AddLine("").
		AddSection("Findings", "tight upper traps")

	got := b.Build()
	if !strings.HasPrefix(got, "intro pain=6/10\n") {
		t.Errorf("prefix wrong: %q", got)
	}
	if !strings.Contains(got, "## Findings\ntight upper traps\n") {
		t.Errorf("section wrong: %q", got)
	}

	if b.Reset().Build() != "" {
		t.Error("Reset should clear parts")
	}
}
