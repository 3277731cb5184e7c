package terminal

import (
	"regexp"

	"github.com/charmbracelet/glamour"
)

const DefaultWrapWidth = 100

var (
	leadingWhitespaceWithANSI  = regexp.MustCompile(`^(?:\x1b\[[0-9;]*m|\s)*`)
	trailingWhitespaceWithANSI = regexp.MustCompile(`(?:\x1b\[[0-9;]*m|\s)*$`)
)

// RenderMarkdown renders content for a terminal. Plain output uses the notty
// style so that no escape sequences end up in files or pipes.
func RenderMarkdown(content string, width int, tty bool) (string, error) {
	style := "notty"
	if tty {
		style = "dark" // avoid OSC background queries
	}

	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}

	out, err := md.Render(content)
	if err != nil {
		return "", err
	}

	trimmed := leadingWhitespaceWithANSI.ReplaceAllString(out, "")
	return trailingWhitespaceWithANSI.ReplaceAllString(trimmed, ""), nil
}
