package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// tracer gates -v/--verbose output the way cmd/distri gates its own debug
// logging, dimming the prefix with an ANSI escape when stderr is an actual
// terminal so piped/CI output stays plain.
type tracer struct {
	enabled bool
	color   bool
}

func newTracer(verbose bool) *tracer {
	return &tracer{
		enabled: verbose,
		color:   verbose && isatty.IsTerminal(os.Stderr.Fd()),
	}
}

func (t *tracer) Printf(format string, args ...interface{}) {
	if !t.enabled {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if t.color {
		fmt.Fprintf(os.Stderr, "\x1b[2m%s\x1b[0m\n", msg)
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}
