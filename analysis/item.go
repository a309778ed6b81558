package analysis

import (
	"fmt"

	"github.com/chazu/uopgen/instr"
	"github.com/chazu/uopgen/target"
)

// StackItem binds an effect to the offset at which it is read or written.
type StackItem struct {
	Offset *StackOffset
	Effect instr.StackEffect
}

// AsVariable renders the stack slot (or, for arrays, the base address) of
// the item.
//
// Unless lax is set the slot must lie at or below the current stack top:
// the effect must be in Offset.Deep and Offset.High must be empty. Lax mode
// is only for initializing array outputs before the uop body runs.
func (it StackItem) AsVariable(syn target.Syntax, lax bool) (string, error) {
	terms := it.Offset.Terms(syn)
	var res string
	if it.Effect.IsArray() {
		res = syn.Address(terms)
	} else {
		res = syn.Element(terms)
	}
	if !lax && (indexEquivalent(it.Offset.Deep, it.Effect) < 0 || len(it.Offset.High) > 0) {
		return "", fmt.Errorf("%w: %s (%s)", ErrOverRead, res, it.Effect)
	}
	return res, nil
}

// AsStackEffect returns an effect naming the rendered stack location, with
// the item's condition and size. Single slots are untyped; arrays keep the
// item's type since the location is an address.
func (it StackItem) AsStackEffect(syn target.Syntax, lax bool) (instr.StackEffect, error) {
	name, err := it.AsVariable(syn, lax)
	if err != nil {
		return instr.StackEffect{}, err
	}
	eff := instr.StackEffect{Name: name, Cond: it.Effect.Cond, Size: it.Effect.Size}
	if it.Effect.IsArray() {
		eff.Type = it.Effect.Type
	}
	return eff, nil
}

// Equal reports whether two items describe equivalent slots at equal offsets.
func (it StackItem) Equal(other StackItem) bool {
	return it.Effect.Equivalent(other.Effect) && it.Offset.Equal(other.Offset)
}

// CopyEffect replaces a push by one uop and the matching pop by the next
// with a direct assignment from Src to Dst.
type CopyEffect struct {
	Src StackItem
	Dst StackItem
}
