// Package manifest handles uopgen.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the manifest file.
const FileName = "uopgen.toml"

// Manifest represents a uopgen.toml project configuration.
type Manifest struct {
	Project  Project  `toml:"project"`
	Source   Source   `toml:"source"`
	Output   Output   `toml:"output"`
	Store    Store    `toml:"store"`
	Analysis Analysis `toml:"analysis"`

	// Dir is the directory containing the uopgen.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Source configures where definition files are found.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

// Output configures the generated files.
type Output struct {
	Target       string `toml:"target"`
	Path         string `toml:"path"`
	Package      string `toml:"package"`
	StackEffects string `toml:"stack-effects"`
}

// Store configures the summaries database.
type Store struct {
	Path string `toml:"path"`
}

// Analysis configures the stack effect analysis.
type Analysis struct {
	Unused string `toml:"unused"`
}

// Default returns the manifest used when no uopgen.toml exists, rooted at dir.
func Default(dir string) (*Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m := &Manifest{Dir: abs}
	m.applyDefaults()
	return m, nil
}

// Load parses a uopgen.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse error in %s: unknown key %s", path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if m.Output.Target != "c" && m.Output.Target != "go" {
		return nil, fmt.Errorf("%s: unknown output target %q", path, m.Output.Target)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if len(m.Source.Dirs) == 0 && len(m.Source.Files) == 0 {
		m.Source.Dirs = []string{"defs"}
	}
	if m.Output.Target == "" {
		m.Output.Target = "c"
	}
	if m.Output.Path == "" {
		m.Output.Path = defaultOutput(m.Output.Target)
	}
	if m.Output.Target == "go" && m.Output.Package == "" {
		m.Output.Package = "main"
	}
	if m.Store.Path == "" {
		m.Store.Path = filepath.Join(".uopgen", "summaries.db")
	}
	if m.Analysis.Unused == "" {
		m.Analysis.Unused = "unused"
	}
}

func defaultOutput(target string) string {
	if target == "go" {
		return "generated_cases.go"
	}
	return "generated_cases.c.h"
}

// SetTarget switches the output target. An output path left at the old
// target's default follows the new target.
func (m *Manifest) SetTarget(target string) error {
	if target != "c" && target != "go" {
		return fmt.Errorf("unknown output target %q", target)
	}
	if m.Output.Path == defaultOutput(m.Output.Target) {
		m.Output.Path = ""
	}
	m.Output.Target = target
	m.applyDefaults()
	return nil
}

// FindAndLoad walks up from startDir to find a uopgen.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	return m.resolveAll(m.Source.Dirs)
}

// SourceFilePaths returns absolute paths for the explicitly listed files.
func (m *Manifest) SourceFilePaths() []string {
	return m.resolveAll(m.Source.Files)
}

// OutputPath returns the absolute path of the generated instructions file.
func (m *Manifest) OutputPath() string {
	return m.resolve(m.Output.Path)
}

// StackEffectsPath returns the absolute path of the stack effect table file,
// or "" if none is configured.
func (m *Manifest) StackEffectsPath() string {
	if m.Output.StackEffects == "" {
		return ""
	}
	return m.resolve(m.Output.StackEffects)
}

// StorePath returns the absolute path of the summaries database.
func (m *Manifest) StorePath() string {
	return m.resolve(m.Store.Path)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

func (m *Manifest) resolveAll(ps []string) []string {
	var paths []string
	for _, p := range ps {
		paths = append(paths, m.resolve(p))
	}
	return paths
}
