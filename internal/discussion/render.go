package discussion

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer turns member-written Markdown into sanitized HTML.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewRenderer creates a renderer with GitHub-flavored Markdown and a
// user-generated-content sanitization policy.
func NewRenderer() *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.AllowImages()
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	policy.RequireNoReferrerOnLinks(true)

	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		),
		policy: policy,
	}
}

// Render converts source to HTML. When conversion fails the source is
// returned as plain text.
func (r *Renderer) Render(source string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return bluemonday.StrictPolicy().Sanitize(source)
	}
	return string(r.policy.SanitizeBytes(buf.Bytes()))
}
