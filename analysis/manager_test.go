package analysis

import (
	"errors"
	"reflect"
	"testing"

	"github.com/chazu/uopgen/instr"
)

func uop(name string, inputs, outputs []instr.StackEffect) *instr.Uop {
	return &instr.Uop{Name: name, Inputs: inputs, Outputs: outputs}
}

func effs(e ...instr.StackEffect) []instr.StackEffect { return e }

func managersFor(t *testing.T, uops ...*instr.Uop) []*EffectManager {
	t.Helper()
	inst := &instr.Instruction{Name: "TEST"}
	for _, u := range uops {
		inst.Components = append(inst.Components, u)
	}
	ms, err := GetManagers(NewContext(syn), inst)
	if err != nil {
		t.Fatalf("GetManagers: %v", err)
	}
	return ms
}

func TestSingleUopScenario(t *testing.T) {
	ms := managersFor(t, uop("OP", effs(plain("a"), plain("b")), effs(plain("x"))))
	m := ms[0]

	if len(m.Peeks) != 2 {
		t.Fatalf("len(Peeks) = %d, want 2", len(m.Peeks))
	}
	// b was declared last, so it is nearest the top and walked first.
	if m.Peeks[0].Effect.Name != "b" || !reflect.DeepEqual(names(m.Peeks[0].Offset.Deep), []string{"b"}) {
		t.Errorf("Peeks[0] = %s at %v", m.Peeks[0].Effect.Name, names(m.Peeks[0].Offset.Deep))
	}
	if m.Peeks[1].Effect.Name != "a" || !reflect.DeepEqual(names(m.Peeks[1].Offset.Deep), []string{"b", "a"}) {
		t.Errorf("Peeks[1] = %s at %v", m.Peeks[1].Effect.Name, names(m.Peeks[1].Offset.Deep))
	}
	if !reflect.DeepEqual(names(m.MinOffset.Deep), []string{"b", "a"}) {
		t.Errorf("MinOffset.Deep = %v", names(m.MinOffset.Deep))
	}
	if len(m.Pokes) != 1 || m.Pokes[0].Effect.Name != "x" ||
		!reflect.DeepEqual(names(m.Pokes[0].Offset.Deep), []string{"b", "a"}) {
		t.Errorf("Pokes = %+v", m.Pokes)
	}
	if got := m.FinalOffset.Index(syn); got != "-1" {
		t.Errorf("FinalOffset.Index() = %q, want -1", got)
	}
	// Pushing x cancels the equivalent b slot, whatever its name.
	if !reflect.DeepEqual(names(m.FinalOffset.Deep), []string{"a"}) || len(m.FinalOffset.High) != 0 {
		t.Errorf("FinalOffset = deep %v, high %v; want deep [a], high []",
			names(m.FinalOffset.Deep), names(m.FinalOffset.High))
	}

	want := []string{"stack_pointer[-1]", "stack_pointer[-2]"}
	for i, p := range m.Peeks {
		got, err := p.AsVariable(syn, false)
		if err != nil {
			t.Fatalf("peek %s: %v", p.Effect.Name, err)
		}
		if got != want[i] {
			t.Errorf("peek %s = %q, want %q", p.Effect.Name, got, want[i])
		}
	}
}

func TestFusionConservation(t *testing.T) {
	x := plain("x")
	ms := managersFor(t,
		uop("A", effs(plain("a")), effs(x)),
		uop("B", effs(x), effs(plain("y"))),
	)
	a, b := ms[0], ms[1]

	if len(b.Copies) != 1 {
		t.Fatalf("len(B.Copies) = %d, want 1", len(b.Copies))
	}
	if b.Copies[0].Src.Effect != x || b.Copies[0].Dst.Effect != x {
		t.Errorf("copy = %s -> %s, want x -> x", b.Copies[0].Src.Effect, b.Copies[0].Dst.Effect)
	}
	for _, p := range b.Peeks {
		if p.Effect.Name == "x" {
			t.Error("x still peeked by B")
		}
	}
	for _, p := range a.Pokes {
		if p.Effect.Name == "x" {
			t.Error("x still poked by A")
		}
	}
	if got := a.FinalOffset.Index(syn); got != "-1" {
		t.Errorf("A.FinalOffset.Index() = %q, want -1 after fusion", got)
	}
}

func TestFusionRenames(t *testing.T) {
	ms := managersFor(t,
		uop("_PRODUCE", nil, effs(plain("res"))),
		uop("_CONSUME", effs(plain("left")), nil),
	)
	c := ms[1].Copies
	if len(c) != 1 || c[0].Src.Effect.Name != "res" || c[0].Dst.Effect.Name != "left" {
		t.Fatalf("copies = %+v, want res -> left", c)
	}
}

func TestFusionStopsAtShapeMismatch(t *testing.T) {
	ms := managersFor(t,
		uop("A", nil, effs(plain("v"))),
		uop("B", effs(instr.StackEffect{Name: "w", Type: "int"}), nil),
	)
	if len(ms[1].Copies) != 0 {
		t.Errorf("unexpected copies: %+v", ms[1].Copies)
	}
	if len(ms[0].Pokes) != 1 || len(ms[1].Peeks) != 1 {
		t.Errorf("pokes=%d peeks=%d, want 1 and 1", len(ms[0].Pokes), len(ms[1].Peeks))
	}
}

func TestFusionAliasing(t *testing.T) {
	inst := &instr.Instruction{
		Name: "SWAPPY",
		Components: []instr.Component{
			uop("A", nil, effs(plain("a"), plain("b"))),
			uop("B", effs(plain("b"), plain("a")), nil),
		},
	}
	_, err := GetManagers(NewContext(syn), inst)
	if !errors.Is(err, ErrAliasing) {
		t.Fatalf("err = %v, want ErrAliasing", err)
	}
}

func TestFusionReachesEarlierPredecessor(t *testing.T) {
	ms := managersFor(t,
		uop("A", nil, effs(plain("x"))),
		uop("B", nil, nil),
		uop("C", effs(plain("x")), nil),
	)
	if len(ms[2].Copies) != 1 {
		t.Fatalf("C.Copies = %+v, want one copy", ms[2].Copies)
	}
	if len(ms[0].Pokes) != 0 {
		t.Errorf("A.Pokes = %+v, want none", ms[0].Pokes)
	}
}

func TestFusionThroughUnused(t *testing.T) {
	unused := plain(DefaultUnused)
	ms := managersFor(t,
		uop("A", nil, effs(plain("a"))),
		uop("B", effs(unused), effs(unused)),
		uop("C", effs(plain("b")), nil),
	)
	c := ms[2].Copies
	if len(c) != 1 {
		t.Fatalf("C.Copies = %+v, want one copy", c)
	}
	if c[0].Src.Effect.Name != "a" || c[0].Dst.Effect.Name != "b" {
		t.Errorf("copy = %s -> %s, want a -> b", c[0].Src.Effect.Name, c[0].Dst.Effect.Name)
	}
}

func TestCollectVars(t *testing.T) {
	ms := managersFor(t, uop("OP",
		effs(plain("a"), plain(DefaultUnused), plain("b")),
		effs(plain("res"), plain("a"))))
	vars, err := ms[0].CollectVars()
	if err != nil {
		t.Fatalf("CollectVars: %v", err)
	}
	if got := names(vars); !reflect.DeepEqual(got, []string{"b", "a", "res"}) {
		t.Errorf("vars = %v, want [b a res]", got)
	}
}

func TestCollectVarsConflict(t *testing.T) {
	ms := managersFor(t, uop("OP",
		effs(plain("v")),
		effs(instr.StackEffect{Name: "v", Type: "int"})))
	if _, err := ms[0].CollectVars(); !errors.Is(err, ErrRedeclared) {
		t.Errorf("err = %v, want ErrRedeclared", err)
	}
}

func TestAdjustInverseRebasesPokes(t *testing.T) {
	ms := managersFor(t, uop("OP", effs(plain("a"), plain("b")), effs(plain("x"))))
	m := ms[0]
	final := m.FinalOffset.Clone()
	m.AdjustInverse(final)

	got, err := m.Pokes[0].AsVariable(syn, false)
	if err != nil {
		t.Fatalf("AsVariable after rebase: %v", err)
	}
	if got != "stack_pointer[-1]" {
		t.Errorf("poke x = %q, want stack_pointer[-1]", got)
	}
	if !m.FinalOffset.IsZero() {
		t.Errorf("FinalOffset after rebase = %q, want 0", m.FinalOffset.Index(syn))
	}

	m.Adjust(final)
	if got := m.FinalOffset.Index(syn); got != "-1" {
		t.Errorf("Adjust did not undo AdjustInverse: %q", got)
	}
}

func TestGetManagersSkipsCacheSkips(t *testing.T) {
	inst := &instr.Instruction{
		Name: "LOAD",
		Components: []instr.Component{
			&instr.Skip{Size: 1},
			&instr.Uop{Name: "_LOAD", Outputs: effs(plain("v")), Caches: []instr.CacheEntry{{Name: "index", Size: 1}}},
		},
	}
	ms, err := GetManagers(NewContext(syn), inst)
	if err != nil {
		t.Fatalf("GetManagers: %v", err)
	}
	if len(ms) != 1 {
		t.Fatalf("len(managers) = %d, want 1", len(ms))
	}
	if len(ms[0].ActiveCaches) != 1 || ms[0].ActiveCaches[0].Offset != 1 {
		t.Errorf("ActiveCaches = %+v, want index at offset 1", ms[0].ActiveCaches)
	}
}

func TestGetManagersEmpty(t *testing.T) {
	inst := &instr.Instruction{Name: "EMPTY", Components: []instr.Component{&instr.Skip{Size: 1}}}
	if _, err := GetManagers(NewContext(syn), inst); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}

func TestDeterministic(t *testing.T) {
	build := func() []*EffectManager {
		return managersFor(t,
			uop("A", effs(plain("a"), array("args", "oparg")), effs(plain("res"))),
			uop("B", effs(plain("left")), effs(cond("null", "oparg & 1"), plain("out"))),
		)
	}
	first, second := build(), build()
	for i := range first {
		if !reflect.DeepEqual(first[i].Copies, second[i].Copies) ||
			first[i].FinalOffset.Index(syn) != second[i].FinalOffset.Index(syn) ||
			first[i].MinOffset.Index(syn) != second[i].MinOffset.Index(syn) {
			t.Errorf("manager %d differs between runs", i)
		}
	}
}
