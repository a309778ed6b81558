package backend

import (
	"fmt"
	"strings"

	"github.com/chazu/uopgen/emit"
	"github.com/chazu/uopgen/instr"
	"github.com/chazu/uopgen/target"
)

// CPrinter renders CPython-style instruction cases for an interpreter
// loop built from TARGET/DISPATCH macros.
type CPrinter struct{}

func (*CPrinter) Syntax() target.Syntax { return target.C{} }

// cwriter accumulates indented lines of C.
type cwriter struct {
	sb     strings.Builder
	indent int
}

func (w *cwriter) line(format string, args ...any) {
	w.sb.WriteString(strings.Repeat("    ", w.indent))
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteByte('\n')
}

// raw writes s at the current indentation without formatting.
func (w *cwriter) raw(s string) {
	if s == "" {
		w.sb.WriteByte('\n')
		return
	}
	w.sb.WriteString(strings.Repeat("    ", w.indent))
	w.sb.WriteString(s)
	w.sb.WriteByte('\n')
}

func (w *cwriter) blank() { w.sb.WriteByte('\n') }

func (p *CPrinter) Instructions(entries []Entry) (*Result, error) {
	w := &cwriter{}
	w.line("// %s", GeneratedHeader)
	w.blank()
	w.indent = 2
	for _, e := range entries {
		if e.Script == nil {
			return nil, fmt.Errorf("%s: no script", e.Name)
		}
		p.instruction(w, e.Script)
		w.blank()
	}
	return &Result{Code: w.sb.String()}, nil
}

func (p *CPrinter) instruction(w *cwriter, s *emit.Script) {
	w.line("TARGET(%s) {", s.Instruction)
	w.indent++
	if s.ReadsCaches() {
		w.line("_Py_CODEUNIT *this_instr = frame->instr_ptr = next_instr;")
	} else {
		w.line("frame->instr_ptr = next_instr;")
	}
	w.line("next_instr += %d;", s.CacheOffset+1)
	w.line("INSTRUCTION_STATS(%s);", s.Instruction)
	for _, op := range s.Ops {
		p.op(w, op)
	}
	w.line("DISPATCH();")
	w.indent--
	w.line("}")
}

func (p *CPrinter) op(w *cwriter, op emit.Op) {
	switch op := op.(type) {
	case *emit.Comment:
		w.line("// %s", op.Text)
	case *emit.Declare:
		w.line("%s;", cDeclaration(op.Effect))
	case *emit.Assign:
		p.assign(w, op)
	case *emit.AdjustSP:
		w.line("stack_pointer += %s;", op.Index)
	case *emit.Body:
		if op.Scoped {
			w.line("{")
			w.indent++
		}
		for _, c := range op.Caches {
			w.line("%s", cCacheRead(c))
		}
		for _, l := range op.Lines {
			w.raw(l)
		}
		if op.Scoped {
			w.indent--
			w.line("}")
		}
	}
}

func (p *CPrinter) assign(w *cwriter, a *emit.Assign) {
	if a.Dst.Name == a.Src.Name {
		return
	}
	src := a.Src.Name
	if a.Dst.Type != a.Src.Type {
		src = "(" + cType(a.Dst) + ")" + src
	}
	stmt := a.Dst.Name + " = " + src + ";"
	if a.Src.IsConditional() {
		w.line("if (%s) { %s }", a.Src.Cond, stmt)
		return
	}
	w.line("%s", stmt)
}

// cType is the declared type of eff, defaulting to an object pointer (or
// a pointer to object pointers for arrays).
func cType(eff instr.StackEffect) string {
	switch {
	case eff.Type != "":
		return eff.Type
	case eff.IsArray():
		return "PyObject **"
	}
	return "PyObject *"
}

func cDeclaration(eff instr.StackEffect) string {
	typ := cType(eff)
	sep := " "
	if strings.HasSuffix(typ, "*") {
		sep = ""
	}
	decl := typ + sep + eff.Name
	if eff.IsConditional() {
		decl += " = NULL"
	}
	return decl
}

func cCacheRead(c instr.ActiveCache) string {
	at := fmt.Sprintf("&this_instr[%d].cache", c.Offset+1)
	if c.Entry.Size == 4 {
		return fmt.Sprintf("PyObject *%s = read_obj(%s);", c.Entry.Name, at)
	}
	bits := c.Entry.Bits()
	return fmt.Sprintf("uint%d_t %s = read_u%d(%s);", bits, c.Entry.Name, bits, at)
}

func (p *CPrinter) StackEffects(entries []Entry) (string, error) {
	w := &cwriter{}
	w.line("// %s", GeneratedHeader)
	w.blank()
	for _, e := range entries {
		w.line("#define %s %d", e.Name, e.Opcode)
	}
	w.blank()
	p.table(w, "_PyOpcode_num_popped", entries, func(e Entry) string { return e.Summary.Popped })
	w.blank()
	p.table(w, "_PyOpcode_num_pushed", entries, func(e Entry) string { return e.Summary.Pushed })
	return w.sb.String(), nil
}

func (p *CPrinter) table(w *cwriter, fn string, entries []Entry, value func(Entry) string) {
	w.line("int")
	w.line("%s(int opcode, int oparg)", fn)
	w.line("{")
	w.indent++
	w.line("switch (opcode) {")
	w.indent++
	for _, e := range entries {
		w.line("case %s:", e.Name)
		w.indent++
		w.line("return %s;", value(e))
		w.indent--
	}
	w.line("default:")
	w.indent++
	w.line("return -1;")
	w.indent -= 2
	w.line("}")
	w.indent--
	w.line("}")
}
