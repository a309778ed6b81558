package analysis

import "errors"

// Generation-time defects in an instruction definition. They are always
// returned wrapped with the instruction and uop involved; match them with
// errors.Is.
var (
	// ErrSizeMismatch: a fused copy joins arrays of different sizes.
	ErrSizeMismatch = errors.New("size mismatch in fused copy")

	// ErrOverRead: generated code would touch a slot above the stack top.
	ErrOverRead = errors.New("push or pop above current stack level")

	// ErrRedeclared: one variable name is used with two different effects.
	ErrRedeclared = errors.New("conflicting variable declarations")

	// ErrAliasing: a name is both a source and a destination of the copies
	// fused between two uops.
	ErrAliasing = errors.New("copy sources and destinations overlap")

	// ErrFusionOffset: a fused push and pop were computed at different offsets.
	ErrFusionOffset = errors.New("fused push and pop at different offsets")

	// ErrNotLast: a uop that moves the stack pointer itself is followed by
	// other uops.
	ErrNotLast = errors.New("stack pointer writer must be the last uop")

	// ErrUnexpectedPoke: values are left to be written after a uop that
	// moves the stack pointer itself.
	ErrUnexpectedPoke = errors.New("unexpected poke around stack pointer writer")

	// ErrEmpty: the instruction has no uops to analyse.
	ErrEmpty = errors.New("instruction has no uops")
)
