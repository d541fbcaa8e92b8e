package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Output colors. They honour --no-color and NO_COLOR.
var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
)

func success(w io.Writer, format string, args ...any) {
	green.Fprint(w, "✓ ")
	fmt.Fprintf(w, format+"\n", args...)
}

func warn(w io.Writer, format string, args ...any) {
	yellow.Fprint(w, "! ")
	fmt.Fprintf(w, format+"\n", args...)
}

func failure(w io.Writer, format string, args ...any) {
	red.Fprint(w, "✗ ")
	fmt.Fprintf(w, format+"\n", args...)
}
