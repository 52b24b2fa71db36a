// Command linker is the fast-file toolchain's CLI surface (§6.4): it builds
// a zone definition into a `.ff` container, or loads one back and reports
// what it contains, the same verb-dispatch shape cmd/distri uses for its
// own build/pack/unpack commands.
package main

import (
	"flag"
	"fmt"
	"os"
)

type cmd struct {
	fn func(args []string) error
}

func main() {
	flag.Parse()

	verbs := map[string]cmd{
		"build": {cmdBuild},
		"load":  {cmdLoad},
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "syntax: linker <command> [options] [arguments]\n")
		fmt.Fprintf(os.Stderr, "commands:\n")
		fmt.Fprintf(os.Stderr, "\tbuild - build a zone definition into a .ff container\n")
		fmt.Fprintf(os.Stderr, "\tload  - load a .ff container and report its contents\n")
		os.Exit(2)
	}
	verb, args := args[0], args[1:]

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: linker <command> [options] [arguments]\n")
		os.Exit(2)
	}
	if err := v.fn(args); err != nil {
		fmt.Fprintf(os.Stderr, "linker %s: %v\n", verb, err)
		os.Exit(1)
	}
}
