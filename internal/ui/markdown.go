package ui

import (
	"github.com/charmbracelet/glamour"
)

// maxReadableWidth caps word wrap regardless of terminal size.
const maxReadableWidth = 100

// RenderMarkdown renders markdown for the terminal. Without color, or when
// glamour fails, the input comes back unchanged.
func RenderMarkdown(markdown string) string {
	if !ShouldUseColor() {
		return markdown
	}
	width := Width(80)
	if width > maxReadableWidth {
		width = maxReadableWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}
