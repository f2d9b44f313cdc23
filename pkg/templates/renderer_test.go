package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAllTemplates(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := &TemplateData{
		TaskID:       "T-1",
		CommandUsage: "ls <path>",
		Forbidden:    "<FORBIDDEN>",
		Round:        2,
		ReviewLabel:  "REVIEW_SUMMARY #1",
		ChangesLabel: "APPLIED_CHANGES #2",
	}
	for name := range r.templates {
		t.Run(string(name), func(t *testing.T) {
			out, err := r.Render(name, data)
			require.NoError(t, err)
			assert.NotEmpty(t, out)
			assert.NotContains(t, out, "{{")
		})
	}
}

func TestRenderSubstitutes(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(DeveloperRevisionTemplate, &TemplateData{TaskID: "T-9", ReviewLabel: "REVIEW_SUMMARY #3"})
	require.NoError(t, err)
	assert.Contains(t, out, "REVIEW_SUMMARY #3")
	assert.Contains(t, out, "task T-9")

	out = MustRender(DeveloperSystemTemplate, &TemplateData{CommandUsage: "ls <path> | cat <path>", Forbidden: "<FORBIDDEN>"})
	assert.Contains(t, out, "ls <path> | cat <path>")
	assert.Contains(t, out, `"status": "need_more_info"`)
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	_, err = r.Render("nope.tpl.md", &TemplateData{})
	assert.Error(t, err)
}
