package backend

import (
	"strings"
	"unicode"
)

// goFuncName is the Go function implementing an instruction.
// e.g., "BINARY_OP" → "execBinaryOp"
func goFuncName(instruction string) string {
	return "exec" + toPascal(instruction)
}

// goOpName is the Go opcode constant of an instruction.
// e.g., "LOAD_ATTR" → "OpLoadAttr"
func goOpName(instruction string) string {
	return "Op" + toPascal(instruction)
}

// toPascal converts a string to PascalCase.
// Handles hyphenated and underscore-separated names; upper case runs
// such as opcode names are lowered after their first letter.
func toPascal(s string) string {
	if len(s) == 0 {
		return s
	}

	var b strings.Builder
	nextUpper := true
	for _, r := range s {
		if r == '-' || r == '_' {
			nextUpper = true
			continue
		}
		if nextUpper {
			b.WriteRune(unicode.ToUpper(r))
			nextUpper = false
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
