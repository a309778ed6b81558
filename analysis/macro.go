package analysis

import (
	"github.com/chazu/uopgen/instr"
	"github.com/chazu/uopgen/target"
)

// Summary is the net stack effect of an instruction as symbolic counts of
// popped and pushed slots.
type Summary struct {
	Popped string
	Pushed string
}

// LessThan reports whether a reaches deeper than b: both have equivalent
// High lists and b.Deep is a prefix of a.Deep. Offsets that are not
// comparable this way are never deeper.
func LessThan(a, b *StackOffset) bool {
	if !sameEffects(a.High, b.High) {
		return false
	}
	if len(b.Deep) > len(a.Deep) {
		return false
	}
	return sameEffects(a.Deep[:len(b.Deep)], b.Deep)
}

// Aggregate reduces a manager chain to the instruction's net stack effect.
// Popped is the deepest reach of any uop; Pushed is the final offset minus
// that reach.
func Aggregate(syn target.Syntax, managers []*EffectManager) Summary {
	popped := &StackOffset{}
	for _, m := range managers {
		if LessThan(m.MinOffset, popped) {
			popped = m.MinOffset.Clone()
		}
	}

	var pushed *StackOffset
	if n := len(managers); n > 0 {
		pushed = managers[n-1].FinalOffset.Clone()
	} else {
		pushed = &StackOffset{}
	}
	for _, eff := range popped.Deep {
		pushed.Higher(eff)
	}
	for _, eff := range popped.High {
		pushed.Deeper(eff)
	}

	return Summary{
		Popped: popped.Negate().Index(syn),
		Pushed: pushed.Index(syn),
	}
}

// MacroStackEffect analyses inst and returns its net stack effect.
func MacroStackEffect(ctx *Context, inst *instr.Instruction) (Summary, error) {
	managers, err := GetManagers(ctx, inst)
	if err != nil {
		return Summary{}, err
	}
	return Aggregate(ctx.Syntax, managers), nil
}
