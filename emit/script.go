// Package emit turns the stack analysis of an instruction into an ordered
// script of declarations, assignments, stack pointer moves and opaque uop
// bodies. Printers in package backend render scripts as source text.
package emit

import "github.com/chazu/uopgen/instr"

// Script is the emission script of one instruction.
type Script struct {
	Instruction string
	// CacheOffset is the number of cache code units after the opcode.
	CacheOffset int
	Ops         []Op
}

// ReadsCaches reports whether any body reads an inline cache entry.
func (s *Script) ReadsCaches() bool {
	for _, op := range s.Ops {
		if b, ok := op.(*Body); ok && len(b.Caches) > 0 {
			return true
		}
	}
	return false
}

// Op is one step of a script: *Comment, *Declare, *Assign, *AdjustSP or
// *Body.
type Op interface {
	op() // marker method
}

// Comment labels the code of one uop in a macro.
type Comment struct {
	Text string
}

// Declare introduces a variable for Effect.
type Declare struct {
	Effect instr.StackEffect
}

// Assign copies Src into Dst. Names are target expressions (a variable or a
// stack location). The assignment happens only when Src.Cond holds; an
// empty or "1" condition always holds.
type Assign struct {
	Dst instr.StackEffect
	Src instr.StackEffect
}

// AdjustSP moves the stack pointer by Index slots.
type AdjustSP struct {
	Index string
}

// Body is the verbatim code of a uop, preceded by reads of its active cache
// entries. Scoped bodies get their own block.
type Body struct {
	Uop    string
	Caches []instr.ActiveCache
	Lines  []string
	Scoped bool
}

func (*Comment) op()  {}
func (*Declare) op()  {}
func (*Assign) op()   {}
func (*AdjustSP) op() {}
func (*Body) op()     {}
