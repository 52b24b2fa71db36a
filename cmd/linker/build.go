package main

import (
	"flag"
	"path/filepath"

	"github.com/sub20hz/OpenAssetTools/internal/loader"
	"github.com/sub20hz/OpenAssetTools/internal/walker"
	"github.com/sub20hz/OpenAssetTools/internal/zone"
	"github.com/sub20hz/OpenAssetTools/internal/zonedef"
)

const buildHelp = `linker build [-flags] <project>...

Builds each named zone definition (resolved against -source-search-path)
into a .ff container written to -o.`

// kindOf maps a zone definition's asset-kind identifier to the small
// integer every SchemaLoader keys its pool entries under. The per-game
// catalog of ~30-80 kinds is out of this module's scope (§1 Non-goals);
// this CLI wires up only the kinds the loader package itself implements.
func kindOf(k string) (int, bool) {
	if k == "stringtable" {
		return loader.KindStringTable, true
	}
	return 0, false
}

func customs() map[string]walker.Custom {
	return map[string]walker.Custom{
		"stringtable": loader.StringTableCodec{},
	}
}

func cmdBuild(args []string) error {
	fset := flag.NewFlagSet("build", flag.ExitOnError)
	var (
		verbose          = fset.Bool("v", false, "enable verbose tracing")
		outputDir        = fset.String("o", ".", "directory to write built .ff containers to")
		sourceSearchPath stringList
		assetSearchPath  stringList
		gdtSearchPath    stringList
		strict           = fset.Bool("strict", false, "also honor the ignore directives of an ignored project's fallback zone definition")
	)
	fset.BoolVar(verbose, "verbose", false, "enable verbose tracing")
	fset.Var(&sourceSearchPath, "source-search-path", "directory to resolve zone definitions from (repeatable)")
	fset.Var(&assetSearchPath, "asset-search-path", "directory to resolve raw asset sources from (repeatable)")
	fset.Var(&gdtSearchPath, "gdt-search-path", "directory to resolve GDT files from (repeatable)")
	fset.Usage = usage(fset, buildHelp)
	fset.Parse(args)

	projects := fset.Args()
	if len(projects) == 0 {
		fset.Usage()
		return errNoProjects
	}

	tr := newTracer(*verbose)
	loaders := loader.NewRegistry()
	loaders.Register(loader.StringTableLoader{})

	for _, project := range projects {
		tr.Printf("building %s", project)
		z, err := zone.Build(project, zone.BuildOptions{
			SourceSearchPath: sourceSearchPath,
			AssetSearchPath:  assetSearchPath,
			GDTSearchPath:    gdtSearchPath,
			IgnoreOptions:    zonedef.IgnoreOptions{Strict: *strict},
			Loaders:          loaders,
			KindOf:           kindOf,
			Customs:          customs(),
		})
		if err != nil {
			return err
		}
		tr.Printf("%s: generation %v, %d assets", project, z.Generation, len(z.Index))

		if err := zone.Write(z, *outputDir, zone.WriteConfig{}); err != nil {
			return err
		}
		tr.Printf("wrote %s", filepath.Join(*outputDir, z.Name+".ff"))
	}
	return nil
}
