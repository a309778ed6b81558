package backend

import (
	"strings"
	"testing"

	"github.com/chazu/uopgen/analysis"
	"github.com/chazu/uopgen/instr"
	"github.com/chazu/uopgen/target"
)

// compact drops all white space so that expectations do not depend on
// gofmt's spacing decisions.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestGoInstructions(t *testing.T) {
	add := script(t, target.Go{}, "BINARY_ADD", &instr.Uop{
		Name:    "BINARY_ADD",
		Inputs:  effs(eff("a"), eff("b")),
		Outputs: effs(eff("x")),
		Body:    []string{"x = add(a, b)"},
	})
	maybe := script(t, target.Go{}, "LOAD_ATTR",
		&instr.Uop{
			Name:    "_GUARD",
			Inputs:  effs(eff("owner")),
			Outputs: effs(eff("owner")),
			Caches:  []instr.CacheEntry{{Name: "version", Size: 1}},
			Body:    []string{"if version != 0 {", "return", "}"},
		},
		&instr.Uop{
			Name:    "_LOAD",
			Inputs:  effs(eff("owner")),
			Outputs: effs(eff("attr"), instr.StackEffect{Name: "null", Cond: "oparg&1 != 0"}),
			Body:    []string{"attr = owner.(*Object).Attr(oparg)"},
		},
	)

	p := &GoPrinter{opts: Options{Package: "cases"}}
	res, err := p.Instructions([]Entry{{Name: "BINARY_ADD", Script: add}, {Name: "LOAD_ATTR", Script: maybe}})
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	if len(res.Warnings) != 0 || len(res.Skipped) != 0 {
		t.Fatalf("unexpected warnings %v, skipped %v", res.Warnings, res.Skipped)
	}
	if !strings.HasPrefix(res.Code, "// "+GeneratedHeader) {
		t.Errorf("missing generated header:\n%s", res.Code)
	}

	code := compact(res.Code)
	for _, want := range []string{
		"packagecases",
		"funcexecBinaryAdd(f*Frame,opargint){",
		"f.ip+=1",
		"varbValue",
		"b=f.stack[f.sp-1]",
		"a=f.stack[f.sp-2]",
		"x=add(a,b)",
		"f.sp+=-1",
		"f.stack[f.sp-1]=x",
		"funcexecLoadAttr(f*Frame,opargint){",
		"this:=f.ip",
		"f.ip+=2",
		"{version:=f.code[this+1]",
		"f.sp+=b2i(oparg&1!=0)",
		"f.stack[f.sp-1-b2i(oparg&1!=0)]=attr",
		"ifoparg&1!=0{f.stack[f.sp-b2i(oparg&1!=0)]=null}",
		"funcb2i(bbool)int{",
	} {
		if !strings.Contains(code, compact(want)) {
			t.Errorf("missing %q in:\n%s", want, res.Code)
		}
	}
}

func TestGoInstructionsSkipsInvalidBodies(t *testing.T) {
	good := script(t, target.Go{}, "NOP", &instr.Uop{Name: "NOP", Body: []string{"_ = oparg"}})
	bad := script(t, target.Go{}, "BROKEN", &instr.Uop{Name: "BROKEN", Body: []string{"x := := 1"}})

	p := &GoPrinter{opts: Options{Package: "cases"}}
	res, err := p.Instructions([]Entry{{Name: "NOP", Script: good}, {Name: "BROKEN", Script: bad}})
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Instruction != "BROKEN" {
		t.Errorf("skipped = %+v, want BROKEN", res.Skipped)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "BROKEN(BROKEN)") {
		t.Errorf("warnings = %v, want one naming BROKEN", res.Warnings)
	}
	if got := FormatValidationErrors(res.Validation); !strings.Contains(got, "  BROKEN(BROKEN): ") {
		t.Errorf("validation report = %q, want a line for BROKEN", got)
	}
	if strings.Contains(res.Code, "execBroken") {
		t.Error("invalid instruction was rendered")
	}
	if !strings.Contains(res.Code, "func execNop(") {
		t.Errorf("valid instruction missing:\n%s", res.Code)
	}
}

func TestGoInstructionsWithoutValidation(t *testing.T) {
	bad := script(t, target.Go{}, "BROKEN", &instr.Uop{Name: "BROKEN", Body: []string{"x := := 1"}})
	p := &GoPrinter{opts: Options{Package: "cases", SkipValidation: true}}
	if _, err := p.Instructions([]Entry{{Name: "BROKEN", Script: bad}}); err == nil {
		t.Error("expected render error for invalid body")
	}
}

func TestGoStackEffects(t *testing.T) {
	entries := []Entry{
		{Name: "BINARY_ADD", Opcode: 0, Summary: analysis.Summary{Popped: "2", Pushed: "1"}},
		{Name: "LOAD_ATTR", Opcode: 1, Summary: analysis.Summary{Popped: "1", Pushed: "1 + b2i(oparg&1 != 0)"}},
	}
	p := &GoPrinter{opts: Options{Package: "cases"}}
	out, err := p.StackEffects(entries)
	if err != nil {
		t.Fatalf("StackEffects: %v", err)
	}

	code := compact(out)
	for _, want := range []string{
		"typeOpint",
		"OpBinaryAddOp=0",
		"OpLoadAttrOp=1",
		`OpLoadAttr:"LOAD_ATTR"`,
		"func(opOp)String()string{",
		`returnfmt.Sprintf("Op(%d)",int(op))`,
		"funcNumPopped(opOp,opargint)int{",
		"caseOpBinaryAdd:return2",
		"funcNumPushed(opOp,opargint)int{",
		"caseOpLoadAttr:return1+b2i(oparg&1!=0)",
		"return-1",
	} {
		if !strings.Contains(code, compact(want)) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
