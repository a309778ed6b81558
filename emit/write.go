package emit

import (
	"fmt"

	"github.com/chazu/uopgen/analysis"
	"github.com/chazu/uopgen/instr"
)

// WriteComponents analyses inst and returns its emission script.
func WriteComponents(ctx *analysis.Context, inst *instr.Instruction) (*Script, error) {
	managers, err := analysis.GetManagers(ctx, inst)
	if err != nil {
		return nil, err
	}
	return WriteManagers(ctx, inst, managers)
}

// WriteManagers emits the script for an already built manager chain. The
// managers are rebased while pokes are written and must not be reused.
func WriteManagers(ctx *analysis.Context, inst *instr.Instruction, managers []*analysis.EffectManager) (*Script, error) {
	w := &writer{
		ctx:    ctx,
		script: &Script{Instruction: inst.Name, CacheOffset: inst.CacheOffset()},
	}
	if err := w.write(managers); err != nil {
		return nil, fmt.Errorf("%s: %w", inst.Name, err)
	}
	return w.script, nil
}

type writer struct {
	ctx    *analysis.Context
	script *Script
}

func (w *writer) add(op Op) {
	w.script.Ops = append(w.script.Ops, op)
}

// assign drops copies involving unused values and statically absent slots.
func (w *writer) assign(dst, src instr.StackEffect) {
	if dst.Name == w.ctx.Unused || src.Name == w.ctx.Unused {
		return
	}
	if src.Cond == "0" {
		return
	}
	w.add(&Assign{Dst: dst, Src: src})
}

func (w *writer) write(managers []*analysis.EffectManager) error {
	if err := w.declare(managers); err != nil {
		return err
	}

	syn := w.ctx.Syntax
	multi := len(managers) > 1
	movedSP := false

	for i, m := range managers {
		last := i == len(managers)-1
		if multi {
			w.add(&Comment{Text: m.Uop.Name})
		}

		for _, c := range m.Copies {
			if c.Src.Effect.Name == c.Dst.Effect.Name {
				continue
			}
			if c.Src.Effect.Size != c.Dst.Effect.Size {
				return fmt.Errorf("%s: %w: %s vs. %s", m.Uop.Name, analysis.ErrSizeMismatch, c.Src.Effect, c.Dst.Effect)
			}
			src := c.Src.Effect
			if src.Name == w.ctx.Unused {
				// Nothing holds the value; it is still in its stack slot.
				eff, err := c.Src.AsStackEffect(syn, false)
				if err != nil {
					return fmt.Errorf("%s: %w", m.Uop.Name, err)
				}
				src = eff
			}
			w.assign(c.Dst.Effect, src)
		}

		for _, p := range m.Peeks {
			src, err := p.AsStackEffect(syn, false)
			if err != nil {
				return fmt.Errorf("%s: %w", m.Uop.Name, err)
			}
			w.assign(p.Effect, src)
		}

		// Array outputs are written through their base address by the body,
		// including those fused into a successor's copies.
		unmoved := m.Uop.UnmovedNames()
		for _, p := range m.ArrayOutputs {
			if unmoved[p.Effect.Name] {
				continue
			}
			src, err := p.AsStackEffect(syn, true)
			if err != nil {
				return fmt.Errorf("%s: %w", m.Uop.Name, err)
			}
			w.assign(p.Effect, src)
		}

		if m.Uop.WritesStackPointer {
			if !last {
				return fmt.Errorf("%s: %w", m.Uop.Name, analysis.ErrNotLast)
			}
			if err := w.checkNoPokes(managers); err != nil {
				return err
			}
			w.add(&AdjustSP{Index: m.MinOffset.Index(syn)})
			m.AdjustInverse(m.FinalOffset)
			movedSP = true
		}

		w.add(&Body{
			Uop:    m.Uop.Name,
			Caches: m.ActiveCaches,
			Lines:  m.Uop.Body,
			Scoped: multi,
		})

		if last && !movedSP && !m.Uop.AlwaysExits {
			// Move the stack pointer first, then write the pokes of every uop
			// relative to its new position.
			final := m.FinalOffset.Clone()
			if idx := final.Index(syn); idx != "0" {
				w.add(&AdjustSP{Index: idx})
			}
			for _, pm := range managers {
				pm.AdjustInverse(final)
				if err := w.writePokes(pm); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// declare emits one declaration per distinct variable of the instruction.
func (w *writer) declare(managers []*analysis.EffectManager) error {
	var all []instr.StackEffect
	seen := make(map[string]instr.StackEffect)
	for _, m := range managers {
		vars, err := m.CollectVars()
		if err != nil {
			return err
		}
		for _, v := range vars {
			if prev, ok := seen[v.Name]; ok {
				if prev != v {
					return fmt.Errorf("%w: %s: %s vs. %s", analysis.ErrRedeclared, v.Name, prev, v)
				}
				continue
			}
			seen[v.Name] = v
			all = append(all, v)
		}
	}
	for _, v := range all {
		if v.Cond == "0" {
			continue
		}
		w.add(&Declare{Effect: v})
	}
	return nil
}

func (w *writer) writePokes(m *analysis.EffectManager) error {
	unmoved := m.Uop.UnmovedNames()
	for _, p := range m.Pokes {
		if p.Effect.IsArray() || unmoved[p.Effect.Name] {
			continue
		}
		dst, err := p.AsStackEffect(w.ctx.Syntax, false)
		if err != nil {
			return fmt.Errorf("%s: %w", m.Uop.Name, err)
		}
		w.assign(dst, p.Effect)
	}
	return nil
}

func (w *writer) checkNoPokes(managers []*analysis.EffectManager) error {
	for _, m := range managers {
		unmoved := m.Uop.UnmovedNames()
		for _, p := range m.Pokes {
			if p.Effect.IsArray() || unmoved[p.Effect.Name] || p.Effect.Name == w.ctx.Unused {
				continue
			}
			return fmt.Errorf("%s: %w: %s", m.Uop.Name, analysis.ErrUnexpectedPoke, p.Effect)
		}
	}
	return nil
}
