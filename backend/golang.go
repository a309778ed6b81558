package backend

import (
	"bytes"
	"fmt"

	"github.com/dave/jennifer/jen"

	"github.com/chazu/uopgen/emit"
	"github.com/chazu/uopgen/instr"
	"github.com/chazu/uopgen/target"
)

// GoPrinter renders each instruction as a function over a frame supplied by
// the host package:
//
//	type Frame struct {
//		stack []Value
//		sp    int      // index one past the top of stack
//		ip    int      // index of the current opcode in code
//		code  []uint16
//	}
//	func (f *Frame) readU32(i int) uint32
//	func (f *Frame) readObj(i int) Value
//
// Array slots are slices of the stack and always have type []Value.
type GoPrinter struct {
	opts Options
}

func (*GoPrinter) Syntax() target.Syntax { return target.Go{} }

func (p *GoPrinter) Instructions(entries []Entry) (*Result, error) {
	result := &Result{}
	keep := entries

	if !p.opts.SkipValidation {
		scripts := make([]*emit.Script, 0, len(entries))
		for _, e := range entries {
			if e.Script == nil {
				return nil, fmt.Errorf("%s: no script", e.Name)
			}
			scripts = append(scripts, e.Script)
		}
		validator := NewCodeValidator(p.opts.Package + ".go")
		validationErrors := validator.Validate(scripts)
		if len(validationErrors) > 0 {
			bad := validator.InstructionsWithErrors(validationErrors)
			keep = nil
			for _, e := range entries {
				if bad[e.Script.Instruction] {
					result.Skipped = append(result.Skipped, Skipped{
						Instruction: e.Name,
						Reason:      "Go validation failed",
					})
					continue
				}
				keep = append(keep, e)
			}
			result.Validation = validationErrors
			for _, ve := range validationErrors {
				result.Warnings = append(result.Warnings, "Go validation: "+ve.String())
			}
		}
	}

	f := jen.NewFile(p.opts.Package)
	f.HeaderComment(GeneratedHeader)

	for _, e := range keep {
		if e.Script == nil {
			return nil, fmt.Errorf("%s: no script", e.Name)
		}
		f.Add(p.instruction(e.Script))
		f.Line()
	}

	f.Func().Id("b2i").Params(jen.Id("b").Bool()).Int().Block(
		jen.If(jen.Id("b")).Block(jen.Return(jen.Lit(1))),
		jen.Return(jen.Lit(0)),
	)

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	result.Code = buf.String()
	return result, nil
}

func (p *GoPrinter) instruction(s *emit.Script) jen.Code {
	var body []jen.Code
	if s.ReadsCaches() {
		body = append(body, jen.Id("this").Op(":=").Id("f").Dot("ip"))
	}
	body = append(body, jen.Id("f").Dot("ip").Op("+=").Lit(s.CacheOffset+1))
	for _, op := range s.Ops {
		body = append(body, p.op(op)...)
	}
	return jen.Func().Id(goFuncName(s.Instruction)).Params(
		jen.Id("f").Op("*").Id("Frame"),
		jen.Id("oparg").Int(),
	).Block(body...)
}

func (p *GoPrinter) op(op emit.Op) []jen.Code {
	switch op := op.(type) {
	case *emit.Comment:
		return []jen.Code{jen.Comment(op.Text)}
	case *emit.Declare:
		return []jen.Code{jen.Var().Id(op.Effect.Name).Add(goType(op.Effect))}
	case *emit.Assign:
		if stmt := goAssign(op); stmt != nil {
			return []jen.Code{stmt}
		}
	case *emit.AdjustSP:
		return []jen.Code{jen.Id("f").Dot("sp").Op("+=").Op(op.Index)}
	case *emit.Body:
		var items []jen.Code
		for _, c := range op.Caches {
			items = append(items, goCacheRead(c))
		}
		for _, l := range op.Lines {
			if l == "" {
				continue
			}
			items = append(items, jen.Op(l))
		}
		if op.Scoped {
			return []jen.Code{jen.Block(items...)}
		}
		return items
	}
	return nil
}

func goType(eff instr.StackEffect) *jen.Statement {
	switch {
	case eff.IsArray():
		return jen.Index().Id("Value")
	case eff.Type != "":
		return jen.Id(eff.Type)
	}
	return jen.Id("Value")
}

func goAssign(a *emit.Assign) *jen.Statement {
	if a.Dst.Name == a.Src.Name {
		return nil
	}
	src := jen.Id(a.Src.Name)
	if a.Dst.Type != "" && a.Src.Type == "" && !a.Dst.IsArray() {
		src = src.Assert(jen.Id(a.Dst.Type))
	}
	stmt := jen.Id(a.Dst.Name).Op("=").Add(src)
	if a.Src.IsConditional() {
		return jen.If(jen.Id(a.Src.Cond)).Block(stmt)
	}
	return stmt
}

func goCacheRead(c instr.ActiveCache) jen.Code {
	at := jen.Id("this").Op("+").Lit(c.Offset + 1)
	read := jen.Id(c.Entry.Name).Op(":=")
	switch c.Entry.Size {
	case 1:
		return read.Id("f").Dot("code").Index(at)
	case 4:
		return read.Id("f").Dot("readObj").Call(at)
	}
	return read.Id("f").Dot(fmt.Sprintf("readU%d", c.Entry.Bits())).Call(at)
}

func (p *GoPrinter) StackEffects(entries []Entry) (string, error) {
	f := jen.NewFile(p.opts.Package)
	f.HeaderComment(GeneratedHeader)

	f.Comment("Op is an opcode number.")
	f.Type().Id("Op").Int()
	f.Line()
	f.Const().DefsFunc(func(g *jen.Group) {
		for _, e := range entries {
			g.Id(goOpName(e.Name)).Id("Op").Op("=").Lit(e.Opcode)
		}
	})
	f.Line()

	f.Var().Id("opNames").Op("=").Map(jen.Id("Op")).String().Values(jen.DictFunc(func(d jen.Dict) {
		for _, e := range entries {
			d[jen.Id(goOpName(e.Name))] = jen.Lit(e.Name)
		}
	}))
	f.Line()

	f.Func().Params(jen.Id("op").Id("Op")).Id("String").Params().String().Block(
		jen.If(jen.List(jen.Id("name"), jen.Id("ok")).Op(":=").Id("opNames").Index(jen.Id("op")), jen.Id("ok")).Block(
			jen.Return(jen.Id("name")),
		),
		jen.Return(jen.Qual("fmt", "Sprintf").Call(jen.Lit("Op(%d)"), jen.Int().Parens(jen.Id("op")))),
	)
	f.Line()

	table := func(name, doc string, value func(Entry) string) {
		f.Comment(doc)
		f.Func().Id(name).Params(jen.Id("op").Id("Op"), jen.Id("oparg").Int()).Int().Block(
			jen.Switch(jen.Id("op")).BlockFunc(func(g *jen.Group) {
				for _, e := range entries {
					g.Case(jen.Id(goOpName(e.Name))).Block(jen.Return(jen.Op(value(e))))
				}
			}),
			jen.Return(jen.Lit(-1)),
		)
		f.Line()
	}
	table("NumPopped", "NumPopped returns the number of stack slots op pops, or -1 for an unknown op.",
		func(e Entry) string { return e.Summary.Popped })
	table("NumPushed", "NumPushed returns the number of stack slots op pushes, or -1 for an unknown op.",
		func(e Entry) string { return e.Summary.Pushed })

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return buf.String(), nil
}
