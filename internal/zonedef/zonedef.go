// Package zonedef parses the fast-file zone definition format of §6.3: a
// line-oriented key/value text file with `>include` directives, and
// resolves the `ignore` directive's asset-list/recursive-definition
// fallback from §4.7 step 3.
package zonedef

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
)

var (
	// ErrMissingGame is fatal per §6.3: every zone definition must name a
	// game.
	ErrMissingGame = xerrors.New("zonedef: missing game")
	// ErrConflictingMetadata is fatal when two includes set the same
	// metadata key to different values.
	ErrConflictingMetadata = xerrors.New("zonedef: conflicting metadata")
	// ErrNotFound is returned when a named .zone file is absent from every
	// directory of the search path.
	ErrNotFound = xerrors.New("zonedef: not found on search path")
)

// AssetDecl is one `<kind>,<name>` line of a zone definition.
type AssetDecl struct {
	Kind string
	Name string
}

// Definition is a fully-resolved zone definition: every `>include` already
// inlined, metadata keys merged.
type Definition struct {
	Name   string
	Game   string
	GDT    string
	Ignore []string
	Assets []AssetDecl
}

// Parse reads name+".zone" from searchPath, transitively resolving
// `>include` directives with cycle suppression (Testable scenario S4: an
// include cycle terminates, each body absorbed exactly once).
func Parse(searchPath []string, name string) (*Definition, error) {
	def := &Definition{}
	visited := map[string]bool{}
	if err := parseInto(searchPath, name, visited, def); err != nil {
		return nil, err
	}
	if def.Game == "" {
		return nil, xerrors.Errorf("zonedef %q: %w", name, ErrMissingGame)
	}
	return def, nil
}

func findFile(searchPath []string, relName string) (string, error) {
	for _, dir := range searchPath {
		path := filepath.Join(dir, relName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", xerrors.Errorf("%q: %w", relName, ErrNotFound)
}

func parseInto(searchPath []string, name string, visited map[string]bool, def *Definition) error {
	if visited[name] {
		return nil
	}
	visited[name] = true

	path, err := findFile(searchPath, name+".zone")
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return xerrors.Errorf("zonedef: opening %q: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if inc, ok := strings.CutPrefix(line, ">include "); ok {
			if err := parseInto(searchPath, strings.TrimSpace(inc), visited, def); err != nil {
				return err
			}
			continue
		}
		key, value, ok := strings.Cut(line, ",")
		if !ok {
			return xerrors.Errorf("zonedef %q: malformed line %q", name, line)
		}
		value = strings.TrimSpace(value)
		switch key {
		case "name":
			if err := setMeta(&def.Name, key, value); err != nil {
				return err
			}
		case "game":
			if err := setMeta(&def.Game, key, value); err != nil {
				return err
			}
		case "gdt":
			if err := setMeta(&def.GDT, key, value); err != nil {
				return err
			}
		case "ignore":
			def.Ignore = append(def.Ignore, value)
		default:
			def.Assets = append(def.Assets, AssetDecl{Kind: key, Name: value})
		}
	}
	return sc.Err()
}

func setMeta(field *string, key, value string) error {
	if *field != "" && *field != value {
		return xerrors.Errorf("zonedef: key %q: %q vs %q: %w", key, *field, value, ErrConflictingMetadata)
	}
	*field = value
	return nil
}

// AssetKey identifies one asset declaration independent of which
// definition or asset-list it came from.
type AssetKey struct {
	Kind string
	Name string
}

// IgnoreOptions controls the ambiguity the spec leaves open in §9
// (open question (b)): whether the recursive-zone-definition fallback for
// an ignored project also honors that nested definition's own `ignore`
// directives.
type IgnoreOptions struct {
	// Strict, when true, recursively resolves a nested definition's own
	// ignore directives too. When false (the default, matching the
	// behavior actually observed in the source tool), falling back to a
	// zone definition for an ignored project takes every asset it declares
	// at face value.
	Strict bool
}

// ResolveIgnores implements §4.7 step 3: for each ignored project, load its
// asset-list CSV if present, otherwise its zone definition, and collect the
// named assets into the ignore set for the current build.
func ResolveIgnores(searchPath, assetListSearchPath []string, def *Definition, opts IgnoreOptions) (map[AssetKey]bool, error) {
	ignored := map[AssetKey]bool{}
	for _, proj := range def.Ignore {
		keys, err := resolveIgnoredProject(searchPath, assetListSearchPath, proj, opts)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			ignored[k] = true
		}
	}
	return ignored, nil
}

func resolveIgnoredProject(searchPath, assetListSearchPath []string, proj string, opts IgnoreOptions) ([]AssetKey, error) {
	if path, err := findFile(assetListSearchPath, filepath.Join("assetlist", proj+".csv")); err == nil {
		return readAssetList(path)
	}

	sub, err := Parse(searchPath, proj)
	if err != nil {
		return nil, xerrors.Errorf("zonedef: resolving ignored project %q: %w", proj, err)
	}
	keys := make([]AssetKey, len(sub.Assets))
	for i, a := range sub.Assets {
		keys[i] = AssetKey{Kind: a.Kind, Name: a.Name}
	}
	if opts.Strict && len(sub.Ignore) > 0 {
		nested, err := ResolveIgnores(searchPath, assetListSearchPath, sub, opts)
		if err != nil {
			return nil, err
		}
		filtered := keys[:0]
		for _, k := range keys {
			if !nested[k] {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
	}
	return keys, nil
}

func readAssetList(path string) ([]AssetKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("zonedef: opening asset list %q: %w", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	records, err := r.ReadAll()
	if err != nil {
		return nil, xerrors.Errorf("zonedef: reading asset list %q: %w", path, err)
	}
	keys := make([]AssetKey, len(records))
	for i, rec := range records {
		keys[i] = AssetKey{Kind: rec[0], Name: rec[1]}
	}
	return keys, nil
}
