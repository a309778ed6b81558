package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "cases"

[source]
dirs = ["defs", "more"]
files = ["extra.toml"]

[output]
target = "go"
path = "gen/cases.go"
package = "cases"
stack-effects = "gen/effects.go"

[store]
path = "/var/tmp/uops.db"

[analysis]
unused = "_"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "cases" {
		t.Errorf("project name = %q, want cases", m.Project.Name)
	}
	if !reflect.DeepEqual(m.Source.Dirs, []string{"defs", "more"}) {
		t.Errorf("source dirs = %v", m.Source.Dirs)
	}
	if !reflect.DeepEqual(m.SourceFilePaths(), []string{filepath.Join(m.Dir, "extra.toml")}) {
		t.Errorf("source files = %v", m.SourceFilePaths())
	}
	if m.Output.Target != "go" || m.Output.Package != "cases" {
		t.Errorf("output = %+v", m.Output)
	}
	if got, want := m.OutputPath(), filepath.Join(m.Dir, "gen", "cases.go"); got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}
	if got, want := m.StackEffectsPath(), filepath.Join(m.Dir, "gen", "effects.go"); got != want {
		t.Errorf("StackEffectsPath = %q, want %q", got, want)
	}
	if got := m.StorePath(); got != "/var/tmp/uops.db" {
		t.Errorf("StorePath = %q, want absolute path unchanged", got)
	}
	if m.Analysis.Unused != "_" {
		t.Errorf("unused = %q, want _", m.Analysis.Unused)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "defs" {
		t.Errorf("default source dirs = %v, want [defs]", m.Source.Dirs)
	}
	if m.Output.Target != "c" || m.Output.Path != "generated_cases.c.h" {
		t.Errorf("default output = %+v", m.Output)
	}
	if m.StackEffectsPath() != "" {
		t.Errorf("StackEffectsPath = %q, want empty", m.StackEffectsPath())
	}
	if got, want := m.StorePath(), filepath.Join(m.Dir, ".uopgen", "summaries.db"); got != want {
		t.Errorf("StorePath = %q, want %q", got, want)
	}
	if m.Analysis.Unused != "unused" {
		t.Errorf("unused = %q, want unused", m.Analysis.Unused)
	}
}

func TestLoadManifestGoDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[output]\ntarget = \"go\"\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Output.Path != "generated_cases.go" || m.Output.Package != "main" {
		t.Errorf("go defaults = %+v", m.Output)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "[output]\nformat = \"c\"\n"},
		{"unknown target", "[output]\ntarget = \"rust\"\n"},
		{"syntax", "[output\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			if _, err := Load(dir); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no uopgen.toml exists")
	}
}

func TestDefault(t *testing.T) {
	m, err := Default("/app")
	if err != nil {
		t.Fatal(err)
	}
	if m.Dir != "/app" || m.Output.Target != "c" {
		t.Errorf("Default = %+v", m)
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"defs", "/abs/lib"},
		},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/defs" {
		t.Errorf("paths[0] = %q, want /app/defs", paths[0])
	}
	if paths[1] != "/abs/lib" {
		t.Errorf("paths[1] = %q, want /abs/lib", paths[1])
	}
}

func TestSetTarget(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantPath string
		wantPkg  string
	}{
		{"default path follows target", "", "generated_cases.go", "main"},
		{"explicit path kept", "out/ops.inc", "out/ops.inc", "main"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manifest{Dir: "/app", Output: Output{Path: tt.path}}
			m.applyDefaults()
			if err := m.SetTarget("go"); err != nil {
				t.Fatal(err)
			}
			if m.Output.Path != tt.wantPath || m.Output.Package != tt.wantPkg {
				t.Errorf("output = %+v, want path %q package %q", m.Output, tt.wantPath, tt.wantPkg)
			}
		})
	}

	m := &Manifest{}
	if err := m.SetTarget("rust"); err == nil {
		t.Error("expected error for unknown target")
	}
}
