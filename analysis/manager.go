package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/uopgen/instr"
	"github.com/chazu/uopgen/target"
)

// DefaultUnused is the conventional name of effects that are never
// materialized as variables.
const DefaultUnused = "unused"

// Context carries the injected conventions for one generation run.
type Context struct {
	Syntax target.Syntax
	Unused string
}

// NewContext returns a context rendering with syn and the default unused
// sentinel.
func NewContext(syn target.Syntax) *Context {
	return &Context{Syntax: syn, Unused: DefaultUnused}
}

// EffectManager holds the stack analysis of one uop within an instruction.
type EffectManager struct {
	Uop          *instr.Uop
	ActiveCaches []instr.ActiveCache

	// Peeks are the inputs still read from the stack, nearest the top first.
	Peeks []StackItem
	// Pokes are the outputs still written to the stack, in declaration order.
	Pokes []StackItem
	// Copies replace pokes of the predecessor and peeks of this uop.
	Copies []CopyEffect
	// ArrayOutputs are the array outputs where they were first placed. The
	// body writes them through a base address even after fusion moved them
	// into a successor's copies.
	ArrayOutputs []StackItem

	// MinOffset is the deepest point reached, after popping all inputs.
	MinOffset *StackOffset
	// FinalOffset is the offset after all outputs are pushed.
	FinalOffset *StackOffset

	Pred *EffectManager

	unused string
}

// NewEffectManager analyses part, continuing from pred (nil for the first
// uop). Pushes of pred that are immediately popped again are fused into
// copies, which mutates pred's pokes and final offset.
func NewEffectManager(ctx *Context, part instr.Part, pred *EffectManager) (*EffectManager, error) {
	m := &EffectManager{
		Uop:          part.Uop,
		ActiveCaches: part.Caches,
		Pred:         pred,
		unused:       ctx.Unused,
	}
	if pred != nil {
		m.FinalOffset = pred.FinalOffset.Clone()
	} else {
		m.FinalOffset = &StackOffset{}
	}

	inputs := part.Uop.Inputs
	for i := len(inputs) - 1; i >= 0; i-- {
		m.FinalOffset.Deeper(inputs[i])
		m.Peeks = append(m.Peeks, StackItem{Offset: m.FinalOffset.Clone(), Effect: inputs[i]})
	}
	m.MinOffset = m.FinalOffset.Clone()
	for _, eff := range part.Uop.Outputs {
		m.Pokes = append(m.Pokes, StackItem{Offset: m.FinalOffset.Clone(), Effect: eff})
		if eff.IsArray() {
			m.ArrayOutputs = append(m.ArrayOutputs, StackItem{Offset: m.FinalOffset.Clone(), Effect: eff})
		}
		m.FinalOffset.Higher(eff)
	}

	if err := m.fuse(); err != nil {
		return nil, err
	}
	m.resolveUnusedCopies()
	return m, nil
}

// fuse turns push(x) by a predecessor followed by pop(y) here into copy(x, y).
func (m *EffectManager) fuse() error {
	pred := m.Pred
	for pred != nil {
		sources := make(map[string]bool)
		destinations := make(map[string]bool)
		for len(pred.Pokes) > 0 && len(m.Peeks) > 0 &&
			pred.Pokes[len(pred.Pokes)-1].Effect.Equivalent(m.Peeks[0].Effect) {
			src := pred.Pokes[len(pred.Pokes)-1]
			pred.Pokes = pred.Pokes[:len(pred.Pokes)-1]
			dst := m.Peeks[0]
			m.Peeks = m.Peeks[1:]

			if !src.Offset.EquivalentTo(dst.Offset) {
				return fmt.Errorf("%w: %s in %s vs %s in %s",
					ErrFusionOffset, src.Effect, pred.Uop.Name, dst.Effect, m.Uop.Name)
			}
			pred.FinalOffset.Deeper(src.Effect)
			if dst.Effect.Name != src.Effect.Name {
				if dst.Effect.Name != m.unused {
					destinations[dst.Effect.Name] = true
				}
				if src.Effect.Name != m.unused {
					sources[src.Effect.Name] = true
				}
			}
			m.Copies = append(m.Copies, CopyEffect{Src: src, Dst: dst})
		}

		var overlap []string
		for name := range sources {
			if destinations[name] {
				overlap = append(overlap, name)
			}
		}
		if len(overlap) > 0 {
			sort.Strings(overlap)
			return fmt.Errorf("%w: %s -> %s: %s",
				ErrAliasing, pred.Uop.Name, m.Uop.Name, strings.Join(overlap, ", "))
		}

		// An exhausted predecessor lets earlier pushes reach this uop.
		if len(m.Peeks) > 0 && len(pred.Pokes) == 0 && len(pred.Peeks) == 0 {
			pred = pred.Pred
		} else {
			pred = nil
		}
	}
	return nil
}

// resolveUnusedCopies rewrites copy(a, unused) + copy(unused, b) as
// copy(a, b) using the copies of earlier uops.
func (m *EffectManager) resolveUnusedCopies() {
	pending := false
	for _, c := range m.Copies {
		if c.Src.Effect.Name == m.unused {
			pending = true
			break
		}
	}
	if !pending {
		return
	}
	for pred := m.Pred; pred != nil; pred = pred.Pred {
		for i := range m.Copies {
			if m.Copies[i].Src.Effect.Name != m.unused {
				continue
			}
			for _, pc := range pred.Copies {
				if pc.Dst.Equal(m.Copies[i].Src) {
					m.Copies[i].Src = pc.Src
					break
				}
			}
		}
	}
}

// AdjustDeeper moves every offset the manager owns down past eff.
func (m *EffectManager) AdjustDeeper(eff instr.StackEffect) {
	for _, p := range m.Peeks {
		p.Offset.Deeper(eff)
	}
	for _, p := range m.Pokes {
		p.Offset.Deeper(eff)
	}
	for _, p := range m.ArrayOutputs {
		p.Offset.Deeper(eff)
	}
	m.MinOffset.Deeper(eff)
	m.FinalOffset.Deeper(eff)
}

// AdjustHigher moves every offset the manager owns up past eff.
func (m *EffectManager) AdjustHigher(eff instr.StackEffect) {
	for _, p := range m.Peeks {
		p.Offset.Higher(eff)
	}
	for _, p := range m.Pokes {
		p.Offset.Higher(eff)
	}
	for _, p := range m.ArrayOutputs {
		p.Offset.Higher(eff)
	}
	m.MinOffset.Higher(eff)
	m.FinalOffset.Higher(eff)
}

// Adjust shifts the manager by offset.
func (m *EffectManager) Adjust(offset *StackOffset) {
	o := offset.Clone()
	for _, eff := range o.Deep {
		m.AdjustDeeper(eff)
	}
	for _, eff := range o.High {
		m.AdjustHigher(eff)
	}
}

// AdjustInverse shifts the manager by the negation of offset. After the
// stack pointer has moved by offset this rebases the manager's items onto
// the new stack pointer.
func (m *EffectManager) AdjustInverse(offset *StackOffset) {
	o := offset.Clone()
	for _, eff := range o.Deep {
		m.AdjustHigher(eff)
	}
	for _, eff := range o.High {
		m.AdjustDeeper(eff)
	}
}

// CollectVars returns the named effects the manager touches, in first-use
// order: copy sources and destinations, then peeks, then pokes.
func (m *EffectManager) CollectVars() ([]instr.StackEffect, error) {
	var vars []instr.StackEffect
	seen := make(map[string]instr.StackEffect)
	add := func(eff instr.StackEffect) error {
		if eff.Name == m.unused {
			return nil
		}
		if prev, ok := seen[eff.Name]; ok {
			if prev != eff {
				return fmt.Errorf("%w: %s: %s vs. %s", ErrRedeclared, m.Uop.Name, prev, eff)
			}
			return nil
		}
		seen[eff.Name] = eff
		vars = append(vars, eff)
		return nil
	}

	for _, c := range m.Copies {
		if err := add(c.Src.Effect); err != nil {
			return nil, err
		}
		if err := add(c.Dst.Effect); err != nil {
			return nil, err
		}
	}
	for _, p := range m.Peeks {
		if err := add(p.Effect); err != nil {
			return nil, err
		}
	}
	for _, p := range m.Pokes {
		if err := add(p.Effect); err != nil {
			return nil, err
		}
	}
	return vars, nil
}

// GetManagers builds the manager chain for the uops of inst, left to right.
func GetManagers(ctx *Context, inst *instr.Instruction) ([]*EffectManager, error) {
	parts := inst.Parts(ctx.Unused)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%s: %w", inst.Name, ErrEmpty)
	}
	managers := make([]*EffectManager, 0, len(parts))
	var pred *EffectManager
	for _, part := range parts {
		m, err := NewEffectManager(ctx, part, pred)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", inst.Name, err)
		}
		managers = append(managers, m)
		pred = m
	}
	return managers, nil
}
