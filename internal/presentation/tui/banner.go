package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// Banner prints the arbor ASCII art banner. Nothing is printed when w is not a terminal.
func Banner(w io.Writer, version string) {
	if !IsTerminal(w) {
		return
	}
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{`   __ _ _ __| |__   ___  _ __ `, "#4ade80"},
		{`  / _' | '__| '_ \ / _ \| '__|`, "#34d399"},
		{` | (_| | |  | |_) | (_) | |   `, "#2dd4bf"},
		{`  \__,_|_|  |_.__/ \___/|_|   `, "#22d3ee"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintf(w, "  %s\n\n", termenv.String(version).Faint())
}
