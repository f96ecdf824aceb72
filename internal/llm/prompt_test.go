package llm

import (
	"strings"
	"testing"
)

func TestPrompt_Render(t *testing.T) {
	p := MustPrompt(WebPrompt)
	out, err := p.Render("ctx text", "what happened?")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "Context: ctx text\nUser: what happened?\nSummarize the answer using your own words and provide general insights."
	if out != want {
		t.Errorf("Render = %q, want %q", out, want)
	}

	doc, err := MustPrompt(DocumentPrompt).Render("C", "Q")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(doc, "\n\nC\n\nQuestion: Q\n") {
		t.Errorf("document prompt = %q", doc)
	}
}

func TestNewPrompt_Invalid(t *testing.T) {
	for _, text := range []string{"", "   ", "{{.Context"} {
		if _, err := NewPrompt(text); err == nil {
			t.Errorf("NewPrompt(%q) expected error", text)
		}
	}
}
