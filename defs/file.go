// Package defs loads uop and instruction definitions from TOML, YAML or CUE
// files. All three formats share one document shape:
//
//	[[uops]]
//	name = "_BINARY_ADD"
//	inputs = [{name = "left"}, {name = "right"}]
//	outputs = [{name = "res"}]
//	body = "res = add(left, right);"
//
//	[[instructions]]
//	name = "BINARY_ADD"
//	components = ["_GUARD_BOTH_INT", "unused/1", "_BINARY_ADD"]
//
// A component "unused/N" skips N cache code units. An instruction without
// components consists of the uop of the same name.
package defs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/uopgen/instr"
)

var (
	ErrUnknownUop = errors.New("unknown uop")
	ErrDuplicate  = errors.New("duplicate definition")
	ErrFormat     = errors.New("unsupported definition format")
)

// File is the decoded form of one definition file.
type File struct {
	Uops         []UopDef  `toml:"uops" yaml:"uops" json:"uops"`
	Instructions []InstDef `toml:"instructions" yaml:"instructions" json:"instructions"`
}

// EffectDef is a stack effect as written in a definition file.
type EffectDef struct {
	Name string `toml:"name" yaml:"name" json:"name"`
	Type string `toml:"type" yaml:"type" json:"type,omitempty"`
	Cond string `toml:"cond" yaml:"cond" json:"cond,omitempty"`
	Size string `toml:"size" yaml:"size" json:"size,omitempty"`
}

// CacheDef is an inline cache entry as written in a definition file.
type CacheDef struct {
	Name string `toml:"name" yaml:"name" json:"name"`
	Size int    `toml:"size" yaml:"size" json:"size"`
}

// UopDef is a uop as written in a definition file.
type UopDef struct {
	Name               string      `toml:"name" yaml:"name" json:"name"`
	Inputs             []EffectDef `toml:"inputs" yaml:"inputs" json:"inputs,omitempty"`
	Outputs            []EffectDef `toml:"outputs" yaml:"outputs" json:"outputs,omitempty"`
	Caches             []CacheDef  `toml:"caches" yaml:"caches" json:"caches,omitempty"`
	Body               string      `toml:"body" yaml:"body" json:"body,omitempty"`
	AlwaysExits        bool        `toml:"always_exits" yaml:"always_exits" json:"always_exits,omitempty"`
	WritesStackPointer bool        `toml:"writes_stack_pointer" yaml:"writes_stack_pointer" json:"writes_stack_pointer,omitempty"`
}

// InstDef is an instruction as written in a definition file.
type InstDef struct {
	Name       string   `toml:"name" yaml:"name" json:"name"`
	Components []string `toml:"components" yaml:"components" json:"components,omitempty"`
}

// Set is the merged content of one or more definition files.
type Set struct {
	uops  map[string]*instr.Uop
	order []InstDef
	// origin records the file each definition came from, for errors.
	origin map[string]string
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{
		uops:   make(map[string]*instr.Uop),
		origin: make(map[string]string),
	}
}

// Add merges the definitions of f, read from path.
func (s *Set) Add(path string, f *File) error {
	for _, d := range f.Uops {
		key := "uop " + d.Name
		if prev, ok := s.origin[key]; ok {
			return fmt.Errorf("%s: %w: uop %s (first defined in %s)", path, ErrDuplicate, d.Name, prev)
		}
		s.origin[key] = path
		s.uops[d.Name] = d.uop()
	}
	for _, d := range f.Instructions {
		key := "instruction " + d.Name
		if prev, ok := s.origin[key]; ok {
			return fmt.Errorf("%s: %w: instruction %s (first defined in %s)", path, ErrDuplicate, d.Name, prev)
		}
		s.origin[key] = path
		s.order = append(s.order, d)
	}
	return nil
}

// Uop returns the uop named name.
func (s *Set) Uop(name string) (*instr.Uop, bool) {
	u, ok := s.uops[name]
	return u, ok
}

// Instructions resolves every instruction, in definition order, and
// validates it.
func (s *Set) Instructions() ([]*instr.Instruction, error) {
	var out []*instr.Instruction
	var errs []error
	for _, d := range s.order {
		inst, err := s.resolve(d)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.origin["instruction "+d.Name], err))
			continue
		}
		out = append(out, inst)
	}
	return out, errors.Join(errs...)
}

func (s *Set) resolve(d InstDef) (*instr.Instruction, error) {
	comps := d.Components
	if len(comps) == 0 {
		comps = []string{d.Name}
	}
	inst := &instr.Instruction{Name: d.Name}
	for _, c := range comps {
		if n, ok := parseSkip(c); ok {
			inst.Components = append(inst.Components, &instr.Skip{Size: n})
			continue
		}
		u, ok := s.uops[c]
		if !ok {
			return nil, fmt.Errorf("%s: %w: %s", d.Name, ErrUnknownUop, c)
		}
		inst.Components = append(inst.Components, u)
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst, nil
}

// parseSkip recognizes "unused/N".
func parseSkip(c string) (int, bool) {
	rest, ok := strings.CutPrefix(c, "unused/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (d UopDef) uop() *instr.Uop {
	u := &instr.Uop{
		Name:    d.Name,
		Inputs:  effects(d.Inputs),
		Outputs: effects(d.Outputs),
		Body:    bodyLines(d.Body),
		Flags: instr.Flags{
			AlwaysExits:        d.AlwaysExits,
			WritesStackPointer: d.WritesStackPointer,
		},
	}
	for _, c := range d.Caches {
		u.Caches = append(u.Caches, instr.CacheEntry{Name: c.Name, Size: c.Size})
	}
	return u
}

func effects(defs []EffectDef) []instr.StackEffect {
	var out []instr.StackEffect
	for _, d := range defs {
		out = append(out, instr.StackEffect{Name: d.Name, Type: d.Type, Cond: d.Cond, Size: d.Size})
	}
	return out
}

// bodyLines splits a body into lines, dropping the trailing newline of
// multi-line strings.
func bodyLines(body string) []string {
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return nil
	}
	return strings.Split(body, "\n")
}
