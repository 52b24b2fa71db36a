package main

import (
	"flag"
	"fmt"

	"github.com/sub20hz/OpenAssetTools/internal/loader"
	"github.com/sub20hz/OpenAssetTools/internal/zone"
)

const loadHelp = `linker load [-flags] <file.ff>...

Loads each named .ff container and reports its generation and asset
index, exercising the same §4.7 load path the game engine's own fast-file
reader would.`

func cmdLoad(args []string) error {
	fset := flag.NewFlagSet("load", flag.ExitOnError)
	var (
		verbose = fset.Bool("v", false, "enable verbose tracing")
		strict  = fset.Bool("strict", false, "fail the load instead of warning on a schema mismatch")
	)
	fset.BoolVar(verbose, "verbose", false, "enable verbose tracing")
	fset.Usage = usage(fset, loadHelp)
	fset.Parse(args)

	files := fset.Args()
	if len(files) == 0 {
		fset.Usage()
		return errNoProjects
	}

	tr := newTracer(*verbose)
	loaders := loader.NewRegistry()
	loaders.Register(loader.StringTableLoader{})

	for _, path := range files {
		tr.Printf("loading %s", path)
		z, err := zone.Load(path, zone.LoadOptions{
			Loaders: loaders,
			Customs: customs(),
			Strict:  *strict,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s: generation %v, %d assets\n", path, z.Generation, z.Pool().Len())
		for _, a := range z.Pool().Order() {
			fmt.Printf("\t%d %s\n", a.Kind, a.Name)
		}
		z.Close()
	}
	return nil
}
