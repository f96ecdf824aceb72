package llm

import (
	"fmt"
	"strings"
	"text/template"
)

// DocumentPrompt asks for an answer grounded in document excerpts.
const DocumentPrompt = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.Context}}

Question: {{.Question}}
Helpful Answer:`

// WebPrompt asks for a summary in the model's own words, for scraped pages.
const WebPrompt = `Context: {{.Context}}
User: {{.Question}}
Summarize the answer using your own words and provide general insights.`

// Prompt renders the final user message from the assembled context and the question.
type Prompt struct {
	tmpl *template.Template
}

type promptData struct {
	Context  string
	Question string
}

// NewPrompt parses a text/template with the fields .Context and .Question.
func NewPrompt(text string) (*Prompt, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("prompt template is empty")
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Prompt{tmpl: tmpl}, nil
}

// MustPrompt is NewPrompt for built-in templates.
func MustPrompt(text string) *Prompt {
	p, err := NewPrompt(text)
	if err != nil {
		panic(err)
	}
	return p
}

// Render fills the template.
func (p *Prompt) Render(context, question string) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, promptData{Context: context, Question: question}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}
