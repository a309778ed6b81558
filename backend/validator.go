package backend

import (
	"errors"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"

	"github.com/chazu/uopgen/emit"
)

// ValidationError represents a Go validation error with position info
type ValidationError struct {
	Line        int
	Column      int
	Instruction string // Instruction whose code contains the error
	Uop         string // Uop body containing the error (empty for generated code)
	Message     string
}

// CodeValidator parses the hand-written parts of Go output in-memory.
//
// Uop bodies, conditions and declared types are opaque to the analysis, so
// they are the only text that can break the generated file. The validator
// wraps them in a synthetic function per instruction and parses it. Type
// checking is not attempted: bodies refer to the host package.
type CodeValidator struct {
	fset     *token.FileSet
	filename string
}

// NewCodeValidator creates a validator for the given filename (used in error messages)
func NewCodeValidator(filename string) *CodeValidator {
	return &CodeValidator{
		filename: filename,
	}
}

type lineSpan struct {
	Uop       string
	StartLine int
	EndLine   int
}

// Validate parses the bodies and conditions of scripts, returning any errors.
// Each instruction is parsed on its own so that an unbalanced body cannot
// hide errors in, or blame, its neighbours. Lines are relative to the
// instruction's synthetic source.
func (cv *CodeValidator) Validate(scripts []*emit.Script) []ValidationError {
	cv.fset = token.NewFileSet()

	var out []ValidationError
	for _, s := range scripts {
		source, spans := assemble(s)
		_, err := parser.ParseFile(cv.fset, cv.filename, source, parser.AllErrors)
		if err == nil {
			continue
		}

		var list scanner.ErrorList
		if !errors.As(err, &list) {
			out = append(out, ValidationError{Line: 1, Column: 1, Instruction: s.Instruction, Message: err.Error()})
			continue
		}
		for _, e := range list {
			ve := ValidationError{
				Line:        e.Pos.Line,
				Column:      e.Pos.Column,
				Instruction: s.Instruction,
				Message:     e.Msg,
			}
			if sp := findSpan(spans, e.Pos.Line); sp != nil {
				ve.Uop = sp.Uop
			}
			out = append(out, ve)
		}
	}
	return out
}

// assemble builds the synthetic source of one instruction and records
// which lines belong to which uop body.
func assemble(s *emit.Script) (string, []lineSpan) {
	var sb strings.Builder
	line := 1
	emitLine := func(text string) {
		sb.WriteString(text)
		sb.WriteByte('\n')
		line++
	}

	var spans []lineSpan
	emitLine("package generated")
	emitLine("")
	emitLine("func _() {")
	for _, op := range s.Ops {
		switch op := op.(type) {
		case *emit.Declare:
			if op.Effect.Type != "" {
				emitLine("var _ " + op.Effect.Type)
			}
		case *emit.Assign:
			if op.Src.IsConditional() {
				emitLine("if " + op.Src.Cond + " {")
				emitLine("}")
			}
		case *emit.Body:
			sp := lineSpan{Uop: op.Uop, StartLine: line}
			emitLine("{")
			for _, l := range op.Lines {
				emitLine(l)
			}
			emitLine("}")
			sp.EndLine = line - 1
			spans = append(spans, sp)
		}
	}
	emitLine("}")
	return sb.String(), spans
}

// findSpan returns the uop body span containing line.
func findSpan(spans []lineSpan, line int) *lineSpan {
	for i := range spans {
		if spans[i].StartLine <= line && line <= spans[i].EndLine {
			return &spans[i]
		}
	}
	return nil
}

// InstructionsWithErrors returns the set of instructions that have errors
func (cv *CodeValidator) InstructionsWithErrors(errs []ValidationError) map[string]bool {
	insts := make(map[string]bool)
	for _, err := range errs {
		if err.Instruction != "" {
			insts[err.Instruction] = true
		}
	}
	return insts
}

func (ve ValidationError) String() string {
	var sb strings.Builder
	if ve.Instruction != "" {
		sb.WriteString(ve.Instruction)
		if ve.Uop != "" {
			sb.WriteString("(" + ve.Uop + ")")
		}
		sb.WriteString(": ")
	}
	fmt.Fprintf(&sb, "%d:%d: %s", ve.Line, ve.Column, ve.Message)
	return sb.String()
}

// FormatValidationErrors returns a human-readable error report
func FormatValidationErrors(errs []ValidationError) string {
	if len(errs) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, err := range errs {
		sb.WriteString("  ")
		sb.WriteString(err.String())
		sb.WriteString("\n")
	}

	return sb.String()
}
