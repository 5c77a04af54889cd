package report

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const previewWidth = 100

// IsTerminal returns true if f is connected to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// RenderPreview renders markdown for terminal display. Without a TTY the
// output is plain text so it stays readable when piped.
func RenderPreview(md string, tty bool) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(previewWidth)}
	if tty {
		opts = append(opts,
			glamour.WithStandardStyle("dark"),
			glamour.WithColorProfile(termenv.EnvColorProfile()),
		)
	} else {
		opts = append(opts,
			glamour.WithStandardStyle("notty"),
			glamour.WithColorProfile(termenv.Ascii),
		)
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render preview: %w", err)
	}
	return out, nil
}

// Preview writes the rendered report to stdout.
func Preview(w io.Writer, md string) error {
	out, err := RenderPreview(md, IsTerminal(os.Stdout))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}
