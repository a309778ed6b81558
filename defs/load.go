package defs

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// Extensions lists the file extensions recognized as definition files.
var Extensions = []string{".toml", ".yaml", ".yml", ".cue"}

// LoadFile decodes one definition file, choosing the format by extension.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return decodeTOML(path, data)
	case ".yaml", ".yml":
		return decodeYAML(path, data)
	case ".cue":
		return decodeCUE(path, data)
	}
	return nil, fmt.Errorf("%s: %w", path, ErrFormat)
}

func decodeTOML(path string, data []byte) (*File, error) {
	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse error in %s: unknown key %s", path, undecoded[0])
	}
	return &f, nil
}

func decodeYAML(path string, data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &f, nil
}

// decodeCUE evaluates a CUE file against the embedded schema. Definitions
// in the schema are closed, so unknown fields are errors as in the other
// formats.
func decodeCUE(path string, data []byte) (*File, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("definition schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	v = schema.LookupPath(cue.ParsePath("#File")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid definitions in %s: %w", path, err)
	}

	var f File
	if err := v.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &f, nil
}

// Load reads every path into one Set.
func Load(paths ...string) (*Set, error) {
	s := NewSet()
	for _, p := range paths {
		f, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		if err := s.Add(p, f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Discover returns the definition files under dirs, sorted by path within
// each directory, followed by files. Missing directories are skipped.
func Discover(dirs, files []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, dir := range dirs {
		var found []string
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == dir {
					return filepath.SkipDir
				}
				return err
			}
			if !d.IsDir() && isDefinition(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("cannot scan %s: %w", dir, err)
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	for _, p := range files {
		add(p)
	}
	return out, nil
}

func isDefinition(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
