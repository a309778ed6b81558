package hash

import (
	"encoding/binary"

	"github.com/chazu/uopgen/instr"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of instruction definitions.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian int64 (8B)
//   - Counts: uint32 big-endian
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Children: serialized inline (flat), preceded by their count
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of inst.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(inst *instr.Instruction) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeInstruction(inst)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeInt(v int) {
	s.writeInt64(int64(v))
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) serializeInstruction(inst *instr.Instruction) {
	s.writeByte(TagInstruction)
	s.writeString(inst.Name)
	s.writeUint32(uint32(len(inst.Components)))
	for _, c := range inst.Components {
		switch c := c.(type) {
		case *instr.Skip:
			s.writeByte(TagSkip)
			s.writeInt(c.Size)
		case *instr.Uop:
			s.serializeUop(c)
		}
	}
}

func (s *serializer) serializeUop(u *instr.Uop) {
	s.writeByte(TagUop)
	s.writeString(u.Name)
	s.serializeEffects(u.Inputs)
	s.serializeEffects(u.Outputs)

	s.writeUint32(uint32(len(u.Caches)))
	for _, c := range u.Caches {
		s.writeByte(TagCache)
		s.writeString(c.Name)
		s.writeInt(c.Size)
	}

	s.writeUint32(uint32(len(u.Body)))
	for _, l := range u.Body {
		s.writeString(l)
	}

	s.writeByte(TagFlags)
	s.writeBool(u.AlwaysExits)
	s.writeBool(u.WritesStackPointer)
}

func (s *serializer) serializeEffects(effs []instr.StackEffect) {
	s.writeUint32(uint32(len(effs)))
	for _, e := range effs {
		s.writeByte(TagEffect)
		s.writeString(e.Name)
		s.writeString(e.Type)
		s.writeString(e.Cond)
		s.writeString(e.Size)
	}
}
