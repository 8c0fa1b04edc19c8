package ui

import (
	"github.com/charmbracelet/glamour"
)

// maxReadableWidth caps the wrap width on wide terminals.
const maxReadableWidth = 100

// RenderMarkdown renders markdown with glamour, wrapped to the terminal
// width. The text is returned unchanged when color is off or rendering fails.
func RenderMarkdown(markdown string) string {
	if !ShouldUseColor() {
		return markdown
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(min(Width(), maxReadableWidth)),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
