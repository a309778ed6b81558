package emit

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/uopgen/instr"
)

// Scripts are stored next to their summaries so a later run can compare or
// re-render them without re-running the analysis. The encoding is canonical
// CBOR, so equal scripts encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("emit: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Op kinds on the wire. Frozen: add new kinds, never renumber.
const (
	kindComment  uint8 = 1
	kindDeclare  uint8 = 2
	kindAssign   uint8 = 3
	kindAdjustSP uint8 = 4
	kindBody     uint8 = 5
)

type wireScript struct {
	Instruction string   `cbor:"instruction"`
	CacheOffset int      `cbor:"cache_offset"`
	Ops         []wireOp `cbor:"ops"`
}

type wireEffect struct {
	Name string `cbor:"n"`
	Type string `cbor:"t,omitempty"`
	Cond string `cbor:"c,omitempty"`
	Size string `cbor:"s,omitempty"`
}

type wireCache struct {
	Name   string `cbor:"n"`
	Size   int    `cbor:"s"`
	Offset int    `cbor:"o"`
}

type wireOp struct {
	Kind   uint8       `cbor:"k"`
	Text   string      `cbor:"x,omitempty"`
	Dst    *wireEffect `cbor:"d,omitempty"`
	Src    *wireEffect `cbor:"s,omitempty"`
	Caches []wireCache `cbor:"ca,omitempty"`
	Lines  []string    `cbor:"l,omitempty"`
	Scoped bool        `cbor:"sc,omitempty"`
}

func toWireEffect(e instr.StackEffect) *wireEffect {
	return &wireEffect{Name: e.Name, Type: e.Type, Cond: e.Cond, Size: e.Size}
}

func (e *wireEffect) effect() instr.StackEffect {
	if e == nil {
		return instr.StackEffect{}
	}
	return instr.StackEffect{Name: e.Name, Type: e.Type, Cond: e.Cond, Size: e.Size}
}

// MarshalScript serializes a Script to CBOR bytes.
func MarshalScript(s *Script) ([]byte, error) {
	ws := wireScript{Instruction: s.Instruction, CacheOffset: s.CacheOffset}
	for _, op := range s.Ops {
		var wo wireOp
		switch op := op.(type) {
		case *Comment:
			wo = wireOp{Kind: kindComment, Text: op.Text}
		case *Declare:
			wo = wireOp{Kind: kindDeclare, Dst: toWireEffect(op.Effect)}
		case *Assign:
			wo = wireOp{Kind: kindAssign, Dst: toWireEffect(op.Dst), Src: toWireEffect(op.Src)}
		case *AdjustSP:
			wo = wireOp{Kind: kindAdjustSP, Text: op.Index}
		case *Body:
			wo = wireOp{Kind: kindBody, Text: op.Uop, Lines: op.Lines, Scoped: op.Scoped}
			for _, c := range op.Caches {
				wo.Caches = append(wo.Caches, wireCache{Name: c.Entry.Name, Size: c.Entry.Size, Offset: c.Offset})
			}
		default:
			return nil, fmt.Errorf("emit: cannot marshal op %T", op)
		}
		ws.Ops = append(ws.Ops, wo)
	}
	return cborEncMode.Marshal(ws)
}

// UnmarshalScript deserializes a Script from CBOR bytes.
func UnmarshalScript(data []byte) (*Script, error) {
	var ws wireScript
	if err := cbor.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("emit: unmarshal script: %w", err)
	}
	s := &Script{Instruction: ws.Instruction, CacheOffset: ws.CacheOffset}
	for i, wo := range ws.Ops {
		switch wo.Kind {
		case kindComment:
			s.Ops = append(s.Ops, &Comment{Text: wo.Text})
		case kindDeclare:
			s.Ops = append(s.Ops, &Declare{Effect: wo.Dst.effect()})
		case kindAssign:
			s.Ops = append(s.Ops, &Assign{Dst: wo.Dst.effect(), Src: wo.Src.effect()})
		case kindAdjustSP:
			s.Ops = append(s.Ops, &AdjustSP{Index: wo.Text})
		case kindBody:
			b := &Body{Uop: wo.Text, Lines: wo.Lines, Scoped: wo.Scoped}
			for _, c := range wo.Caches {
				b.Caches = append(b.Caches, instr.ActiveCache{
					Entry:  instr.CacheEntry{Name: c.Name, Size: c.Size},
					Offset: c.Offset,
				})
			}
			s.Ops = append(s.Ops, b)
		default:
			return nil, fmt.Errorf("emit: unmarshal script: op %d has unknown kind %d", i, wo.Kind)
		}
	}
	return s, nil
}
