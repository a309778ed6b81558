// Package hash computes content hashes of instruction definitions, so that
// a generator run can tell which instructions changed since the last one.
package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/uopgen/instr"
)

// HashInstruction computes the SHA-256 content hash of an instruction
// definition.
//
// The hash covers everything that influences generated code: the
// instruction and uop names, every stack effect, cache layout, body and
// behavior flags. Two definitions hash equal exactly when they serialize
// equal.
func HashInstruction(inst *instr.Instruction) [32]byte {
	return sha256.Sum256(Serialize(inst))
}

// Hex returns the hash of inst as a lowercase hex string.
func Hex(inst *instr.Instruction) string {
	h := HashInstruction(inst)
	return hex.EncodeToString(h[:])
}
