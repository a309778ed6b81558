// Package instr describes micro-op instruction definitions: stack effects,
// uops, inert cache skips and the instructions composed from them.
//
// Values in this package are produced by a front end (see package defs, or
// build them directly in Go) and are only read by the analysis and emission
// passes. Nothing here is mutated after construction.
package instr

import (
	"errors"
	"fmt"
	"strings"
)

// StackEffect describes one logical stack slot consumed or produced by a uop.
//
// An empty Cond means the slot is always present. An empty Size means the
// slot holds exactly one value; otherwise it is an array of Size values.
type StackEffect struct {
	Name string
	Type string
	Cond string
	Size string
}

// Equivalent reports whether two effects describe slots of the same shape.
// Names are ignored: a value pushed as "res" may be popped as "left".
func (e StackEffect) Equivalent(o StackEffect) bool {
	return e.Type == o.Type && e.Cond == o.Cond && e.Size == o.Size
}

// IsArray reports whether the effect is a run of Size slots.
func (e StackEffect) IsArray() bool {
	return e.Size != ""
}

// IsConditional reports whether the slot is present only when Cond holds at
// run time. A literal "1" is unconditional.
func (e StackEffect) IsConditional() bool {
	return e.Cond != "" && e.Cond != "1"
}

// String renders the effect in definition syntax, e.g. "args: PyObject * [oparg]".
func (e StackEffect) String() string {
	var sb strings.Builder
	sb.WriteString(e.Name)
	if e.Type != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Type)
	}
	if e.Size != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Size)
		sb.WriteString("]")
	}
	if e.Cond != "" {
		sb.WriteString(" if (")
		sb.WriteString(e.Cond)
		sb.WriteString(")")
	}
	return sb.String()
}

// CacheEntry is a named run of inline cache code units following the
// instruction's opcode. Size is in 16-bit code units.
type CacheEntry struct {
	Name string
	Size int
}

// Bits returns the width of the entry in bits.
func (c CacheEntry) Bits() int {
	return c.Size * 16
}

// Flags carries uop behaviors that change how its stack effects are
// materialized.
type Flags struct {
	// AlwaysExits is set for uops whose body never falls through
	// (it jumps, returns or raises). No stack adjustment or pokes follow.
	AlwaysExits bool

	// WritesStackPointer is set for uops that move the stack pointer
	// themselves. The stack is adjusted to the uop's deepest point before
	// its body runs.
	WritesStackPointer bool
}

// Component is one part of an instruction: either a *Uop or a *Skip.
type Component interface {
	// CacheSize returns the number of cache code units the component spans.
	CacheSize() int
	component() // marker method
}

// Skip advances past Size inert cache code units.
type Skip struct {
	Size int
}

func (s *Skip) CacheSize() int { return s.Size }
func (s *Skip) component()     {}

// Uop is an indivisible fragment of instruction semantics.
type Uop struct {
	Name    string
	Inputs  []StackEffect
	Outputs []StackEffect
	Caches  []CacheEntry

	// Body is passed through verbatim to the generated code.
	Body []string

	Flags
}

func (u *Uop) component() {}

// CacheSize returns the total size of the uop's cache entries.
func (u *Uop) CacheSize() int {
	n := 0
	for _, c := range u.Caches {
		n += c.Size
	}
	return n
}

// UnmovedNames returns the names of the leading inputs that are pushed back
// unchanged as the corresponding outputs. Such values stay where they are
// and never need to be re-written.
func (u *Uop) UnmovedNames() map[string]bool {
	names := make(map[string]bool)
	for i := 0; i < len(u.Inputs) && i < len(u.Outputs); i++ {
		in, out := u.Inputs[i], u.Outputs[i]
		if in != out {
			break
		}
		names[in.Name] = true
	}
	return names
}

// Instruction is a named, non-empty sequence of components. An instruction
// with a single uop is a plain instruction; otherwise it is a macro.
type Instruction struct {
	Name       string
	Components []Component
}

// Uops returns the uop components in order.
func (i *Instruction) Uops() []*Uop {
	var uops []*Uop
	for _, c := range i.Components {
		switch c := c.(type) {
		case *Uop:
			uops = append(uops, c)
		case *Skip:
		}
	}
	return uops
}

// CacheOffset returns the total number of cache code units the instruction
// spans.
func (i *Instruction) CacheOffset() int {
	n := 0
	for _, c := range i.Components {
		n += c.CacheSize()
	}
	return n
}

// ActiveCache is a cache entry that a uop actually reads, at Offset code
// units past the first cache unit.
type ActiveCache struct {
	Entry  CacheEntry
	Offset int
}

// Part pairs a uop with the cache entries it reads.
type Part struct {
	Uop    *Uop
	Caches []ActiveCache
}

// Parts walks the components accumulating the cache offset and returns one
// Part per uop. Cache entries named unused are skipped but still occupy
// space.
func (i *Instruction) Parts(unused string) []Part {
	var parts []Part
	offset := 0
	for _, c := range i.Components {
		switch c := c.(type) {
		case *Skip:
			offset += c.Size
		case *Uop:
			p := Part{Uop: c}
			for _, ce := range c.Caches {
				if ce.Name != unused {
					p.Caches = append(p.Caches, ActiveCache{Entry: ce, Offset: offset})
				}
				offset += ce.Size
			}
			parts = append(parts, p)
		}
	}
	return parts
}

// ErrInvalid is returned by Validate for malformed definitions.
var ErrInvalid = errors.New("invalid instruction definition")

// Validate checks the structural rules a front end must uphold.
func (i *Instruction) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("%w: instruction without a name", ErrInvalid)
	}
	if len(i.Components) == 0 {
		return fmt.Errorf("%w: %s has no components", ErrInvalid, i.Name)
	}
	uops := 0
	for n, c := range i.Components {
		switch c := c.(type) {
		case *Skip:
			if c.Size <= 0 {
				return fmt.Errorf("%w: %s: component %d skips %d cache units", ErrInvalid, i.Name, n, c.Size)
			}
		case *Uop:
			if c == nil {
				return fmt.Errorf("%w: %s: component %d is nil", ErrInvalid, i.Name, n)
			}
			uops++
			if err := c.validate(); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalid, i.Name, err)
			}
		default:
			return fmt.Errorf("%w: %s: component %d has unknown kind %T", ErrInvalid, i.Name, n, c)
		}
	}
	if uops == 0 {
		return fmt.Errorf("%w: %s has no uops", ErrInvalid, i.Name)
	}
	return nil
}

func (u *Uop) validate() error {
	if u.Name == "" {
		return errors.New("uop without a name")
	}
	for _, e := range u.Inputs {
		if e.Name == "" {
			return fmt.Errorf("uop %s: input without a name", u.Name)
		}
	}
	for _, e := range u.Outputs {
		if e.Name == "" {
			return fmt.Errorf("uop %s: output without a name", u.Name)
		}
	}
	for _, c := range u.Caches {
		if c.Size <= 0 {
			return fmt.Errorf("uop %s: cache entry %s has size %d", u.Name, c.Name, c.Size)
		}
	}
	return nil
}
