package zonedef

import (
	"os"
	"path/filepath"
	"testing"
)

func writeZone(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".zone"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseBasic(t *testing.T) {
	dir := t.TempDir()
	writeZone(t, dir, "core", ""+
		"// comment\n"+
		"name,core\n"+
		"game,t7\n"+
		"xmodel,player\n"+
		"material,player_skin\n")

	def, err := Parse([]string{dir}, "core")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.Name != "core" || def.Game != "t7" {
		t.Fatalf("got name=%q game=%q", def.Name, def.Game)
	}
	if len(def.Assets) != 2 {
		t.Fatalf("got %d assets, want 2", len(def.Assets))
	}
	if def.Assets[0] != (AssetDecl{Kind: "xmodel", Name: "player"}) {
		t.Errorf("Assets[0] = %+v", def.Assets[0])
	}
}

func TestParseMissingGameFails(t *testing.T) {
	dir := t.TempDir()
	writeZone(t, dir, "core", "name,core\nxmodel,player\n")

	if _, err := Parse([]string{dir}, "core"); err == nil {
		t.Fatalf("Parse: expected error for missing game")
	}
}

func TestParseInclude(t *testing.T) {
	dir := t.TempDir()
	writeZone(t, dir, "common", "game,t7\nxmodel,common_prop\n")
	writeZone(t, dir, "core", ">include common\nname,core\nxmodel,player\n")

	def, err := Parse([]string{dir}, "core")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.Game != "t7" {
		t.Fatalf("included game not merged: %q", def.Game)
	}
	if len(def.Assets) != 2 {
		t.Fatalf("got %d assets, want 2", len(def.Assets))
	}
}

func TestParseConflictingMetadataFails(t *testing.T) {
	dir := t.TempDir()
	writeZone(t, dir, "a", "game,t7\n")
	writeZone(t, dir, "b", "game,mw2\n")
	writeZone(t, dir, "core", ">include a\n>include b\n")

	if _, err := Parse([]string{dir}, "core"); err == nil {
		t.Fatalf("Parse: expected conflicting metadata error")
	}
}

// TestIncludeCycleTerminates validates Testable scenario S4: a.zone includes
// b.zone includes a.zone must terminate, each body absorbed exactly once.
func TestIncludeCycleTerminates(t *testing.T) {
	dir := t.TempDir()
	writeZone(t, dir, "a", "game,t7\n>include b\nxmodel,from_a\n")
	writeZone(t, dir, "b", ">include a\nxmodel,from_b\n")

	def, err := Parse([]string{dir}, "a")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if def.Game != "t7" {
		t.Fatalf("game = %q, want t7", def.Game)
	}
	if len(def.Assets) != 2 {
		t.Fatalf("got %d assets, want 2 (each body absorbed exactly once): %+v", len(def.Assets), def.Assets)
	}
}

func TestResolveIgnoresFromAssetList(t *testing.T) {
	dir := t.TempDir()
	assetListDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(assetListDir, "assetlist"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(assetListDir, "assetlist", "dlc1.csv"), []byte("xmodel,dlc_prop\nmaterial,dlc_skin\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeZone(t, dir, "core", "game,t7\nignore,dlc1\nxmodel,player\n")

	def, err := Parse([]string{dir}, "core")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ignored, err := ResolveIgnores([]string{dir}, []string{assetListDir}, def, IgnoreOptions{})
	if err != nil {
		t.Fatalf("ResolveIgnores: %v", err)
	}
	if !ignored[(AssetKey{Kind: "xmodel", Name: "dlc_prop"})] {
		t.Errorf("expected dlc_prop to be ignored")
	}
	if !ignored[(AssetKey{Kind: "material", Name: "dlc_skin"})] {
		t.Errorf("expected dlc_skin to be ignored")
	}
}

func TestResolveIgnoresFallsBackToZoneDefinition(t *testing.T) {
	dir := t.TempDir()
	writeZone(t, dir, "dlc1", "game,t7\nxmodel,dlc_prop\n")
	writeZone(t, dir, "core", "game,t7\nignore,dlc1\nxmodel,player\n")

	def, err := Parse([]string{dir}, "core")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ignored, err := ResolveIgnores([]string{dir}, []string{dir}, def, IgnoreOptions{})
	if err != nil {
		t.Fatalf("ResolveIgnores: %v", err)
	}
	if !ignored[(AssetKey{Kind: "xmodel", Name: "dlc_prop"})] {
		t.Errorf("expected dlc_prop to be ignored via zone definition fallback")
	}
}
