package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the definition serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// every stored content hash.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// Definition node tags.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	TagInstruction byte = 0x01
	TagUop         byte = 0x02
	TagSkip        byte = 0x03
	TagEffect      byte = 0x04
	TagCache       byte = 0x05
	TagFlags       byte = 0x06

	// Reserved 0xFE-0xFF
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagInstruction, TagUop, TagSkip,
	TagEffect, TagCache, TagFlags,
}
