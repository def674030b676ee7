// Package markdown renders assistant replies for a terminal.
package markdown

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/reflow/wordwrap"
)

type renderer interface {
	Render(string) (string, error)
}

var (
	rendererMu sync.Mutex
	renderers  = map[int]renderer{}
)

// Render formats markdown for terminal output at the given width. Output that
// glamour can't handle falls back to word-wrapped plain text.
func Render(width int, input string) string {
	value := strings.TrimRight(strings.ReplaceAll(input, "\r\n", "\n"), "\n")
	if strings.TrimSpace(value) == "" {
		return ""
	}
	if width < 1 {
		width = 1
	}

	rendered := value
	if r := markdownRenderer(width); r != nil {
		if formatted, err := r.Render(value); err == nil {
			rendered = formatted
		}
	}
	rendered = strings.Trim(rendered, "\n")
	if strings.TrimSpace(rendered) == "" {
		return ""
	}
	return rendered
}

// SafeRender is Render that returns wrapped plain text if the renderer panics
func SafeRender(width int, input string) (out string) {
	defer func() {
		if recover() != nil {
			out = Wrap(width, input)
		}
	}()
	return Render(width, input)
}

// Wrap word-wraps plain text
func Wrap(width int, input string) string {
	value := strings.TrimSpace(input)
	if width < 1 {
		return value
	}
	return wordwrap.String(value, width)
}

func markdownRenderer(width int) renderer {
	rendererMu.Lock()
	defer rendererMu.Unlock()
	if cached, ok := renderers[width]; ok {
		return cached
	}
	style := styles.ASCIIStyleConfig
	style.Item.BlockPrefix = "- "
	created, err := glamour.NewTermRenderer(
		glamour.WithStyles(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	renderers[width] = created
	return created
}
