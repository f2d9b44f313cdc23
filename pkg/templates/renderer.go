// Package templates renders the agent prompts.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// TemplateData holds the values a prompt may reference.
type TemplateData struct {
	TaskID       string
	CommandUsage string
	Forbidden    string
	Round        int
	ReviewLabel  string
	ChangesLabel string
}

// StateTemplate names an embedded prompt.
type StateTemplate string

const (
	// DeveloperSystemTemplate is the developer role instruction.
	DeveloperSystemTemplate StateTemplate = "developer_system.tpl.md"
	// ReviewerSystemTemplate is the reviewer role instruction.
	ReviewerSystemTemplate StateTemplate = "reviewer_system.tpl.md"
	// DeveloperTaskTemplate is the first developer turn.
	DeveloperTaskTemplate StateTemplate = "developer_task.tpl.md"
	// DeveloperRevisionTemplate is the developer turn after a blocking review.
	DeveloperRevisionTemplate StateTemplate = "developer_revision.tpl.md"
	// ReviewRequestTemplate is the reviewer turn.
	ReviewRequestTemplate StateTemplate = "review_request.tpl.md"
)

// Renderer handles template rendering.
type Renderer struct {
	templates map[StateTemplate]*template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[StateTemplate]*template.Template)}

	for _, name := range []StateTemplate{
		DeveloperSystemTemplate,
		ReviewerSystemTemplate,
		DeveloperTaskTemplate,
		DeveloperRevisionTemplate,
		ReviewRequestTemplate,
	} {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		tmpl, err := template.New(string(name)).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(name StateTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[name]
	if !exists {
		return "", fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// MustRender renders name and panics on failure. Embedded templates are
// covered by tests, so failure is a programming error.
func MustRender(name StateTemplate, data *TemplateData) string {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	out, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return out
}
