// Package backend renders emission scripts as source text for a target
// language, together with the per-opcode stack effect tables.
package backend

import (
	"fmt"

	"github.com/chazu/uopgen/analysis"
	"github.com/chazu/uopgen/emit"
	"github.com/chazu/uopgen/target"
)

// GeneratedHeader marks every file written by a printer.
const GeneratedHeader = "Code generated by uopgen. DO NOT EDIT."

// Entry is one analysed instruction of a batch.
type Entry struct {
	Name    string
	Opcode  int
	Summary analysis.Summary
	Script  *emit.Script
}

// Result contains the generated code and any warnings.
type Result struct {
	Code     string
	Warnings []string
	Skipped  []Skipped

	// Validation holds the errors behind skips for failed Go validation.
	Validation []ValidationError
}

// Skipped records an instruction left out of the generated code.
type Skipped struct {
	Instruction string
	Reason      string
}

// Options controls printing.
type Options struct {
	// Package is the package clause of generated Go files.
	Package string

	// SkipValidation disables parsing of generated Go. When false
	// (default), instructions whose code does not parse are left out with
	// a warning.
	SkipValidation bool
}

// Printer renders the scripts of a batch for one target.
type Printer interface {
	// Syntax returns the conventions the analysis must render with for
	// this printer's output to be consistent.
	Syntax() target.Syntax

	// Instructions renders the instruction implementations.
	Instructions(entries []Entry) (*Result, error)

	// StackEffects renders opcode numbers and the popped/pushed tables.
	StackEffects(entries []Entry) (string, error)
}

// New returns the printer for a target name.
func New(name string, opts Options) (Printer, error) {
	switch name {
	case "c", "":
		return &CPrinter{}, nil
	case "go":
		if opts.Package == "" {
			opts.Package = "main"
		}
		return &GoPrinter{opts: opts}, nil
	}
	return nil, fmt.Errorf("unknown target %q", name)
}
