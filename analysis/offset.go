// Package analysis tracks where the stack slots of a composite instruction
// live relative to a single movable stack pointer.
//
// Offsets are symbolic: slots may be arrays of run-time size or present only
// under a run-time condition, so they cannot be summed into an integer until
// code is rendered. An offset therefore keeps the effects it moved past, in
// order, and cancels a push against an equivalent pop.
package analysis

import (
	"strconv"

	"github.com/chazu/uopgen/instr"
	"github.com/chazu/uopgen/target"
)

// StackOffset is a displacement from the stack pointer. Deep holds the
// slots below the reference point, High the slots above it.
type StackOffset struct {
	Deep []instr.StackEffect
	High []instr.StackEffect
}

// Clone returns an independent copy of o.
func (o *StackOffset) Clone() *StackOffset {
	return &StackOffset{
		Deep: append([]instr.StackEffect(nil), o.Deep...),
		High: append([]instr.StackEffect(nil), o.High...),
	}
}

// Negate returns a copy of o pointing the other way.
func (o *StackOffset) Negate() *StackOffset {
	return &StackOffset{
		Deep: append([]instr.StackEffect(nil), o.High...),
		High: append([]instr.StackEffect(nil), o.Deep...),
	}
}

// Deeper moves the offset down past eff, cancelling an equivalent slot in
// High if there is one.
func (o *StackOffset) Deeper(eff instr.StackEffect) {
	if i := indexEquivalent(o.High, eff); i >= 0 {
		o.High = remove(o.High, i)
		return
	}
	o.Deep = append(o.Deep, eff)
}

// Higher moves the offset up past eff, cancelling an equivalent slot in
// Deep if there is one.
func (o *StackOffset) Higher(eff instr.StackEffect) {
	if i := indexEquivalent(o.Deep, eff); i >= 0 {
		o.Deep = remove(o.Deep, i)
		return
	}
	o.High = append(o.High, eff)
}

// IsZero reports whether the offset has no displacement at all.
func (o *StackOffset) IsZero() bool {
	return len(o.Deep) == 0 && len(o.High) == 0
}

// Terms reduces the offset to signed summands. Plain slots fold into a
// single integer literal, which comes first when nonzero; arrays contribute
// their size and conditional slots a 0/1 expression, in encounter order.
func (o *StackOffset) Terms(syn target.Syntax) []target.Term {
	num := 0
	var terms []target.Term
	collect := func(effs []instr.StackEffect, sign byte, step int) {
		for _, eff := range effs {
			switch {
			case eff.Size != "":
				terms = append(terms, target.Term{Sign: sign, Expr: parenthesize(eff.Size)})
			case eff.Cond != "" && eff.Cond != "0" && eff.Cond != "1":
				terms = append(terms, target.Term{Sign: sign, Expr: syn.Conditional(eff.Cond)})
			case eff.Cond != "0":
				num += step
			}
		}
	}
	collect(o.Deep, '-', -1)
	collect(o.High, '+', 1)

	switch {
	case num < 0:
		terms = append([]target.Term{{Sign: '-', Expr: strconv.Itoa(-num)}}, terms...)
	case num > 0:
		terms = append([]target.Term{{Sign: '+', Expr: strconv.Itoa(num)}}, terms...)
	}
	return terms
}

// Index renders the offset as an arithmetic expression; "0" when empty.
func (o *StackOffset) Index(syn target.Syntax) string {
	return target.Join(o.Terms(syn))
}

// Equal reports whether both offsets hold equivalent slots in the same order.
func (o *StackOffset) Equal(other *StackOffset) bool {
	return sameEffects(o.Deep, other.Deep) && sameEffects(o.High, other.High)
}

// EquivalentTo reports whether both offsets hold the same multiset of slots
// on each side, regardless of order.
func (o *StackOffset) EquivalentTo(other *StackOffset) bool {
	if o.Equal(other) {
		return true
	}
	return sameMultiset(o.Deep, other.Deep) && sameMultiset(o.High, other.High)
}

func indexEquivalent(effs []instr.StackEffect, eff instr.StackEffect) int {
	for i, e := range effs {
		if e.Equivalent(eff) {
			return i
		}
	}
	return -1
}

func remove(effs []instr.StackEffect, i int) []instr.StackEffect {
	out := make([]instr.StackEffect, 0, len(effs)-1)
	out = append(out, effs[:i]...)
	return append(out, effs[i+1:]...)
}

func sameEffects(a, b []instr.StackEffect) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equivalent(b[i]) {
			return false
		}
	}
	return true
}

func sameMultiset(a, b []instr.StackEffect) bool {
	if len(a) != len(b) {
		return false
	}
	rest := append([]instr.StackEffect(nil), a...)
	for _, eff := range b {
		i := indexEquivalent(rest, eff)
		if i < 0 {
			return false
		}
		rest = remove(rest, i)
	}
	return len(rest) == 0
}

// parenthesize wraps anything but a bare identifier or number.
func parenthesize(expr string) string {
	if expr == "" {
		return expr
	}
	for _, r := range expr {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "(" + expr + ")"
		}
	}
	return expr
}
