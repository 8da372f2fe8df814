package codegen

import (
	"strings"
	"testing"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/infer"
	"github.com/ferrite-lang/ferrite/ir"
	"github.com/ferrite-lang/ferrite/mapping"
	"github.com/ferrite-lang/ferrite/ownership"
)

var testSeq ir.NodeID

func nextID() ir.NodeID {
	testSeq++
	return testSeq
}

func intLit(v int64) *ir.IntLit  { return &ir.IntLit{IDVal: nextID(), Value: v} }
func strLit(s string) *ir.StrLit { return &ir.StrLit{IDVal: nextID(), Value: s} }
func nameRef(n string) *ir.Name  { return &ir.Name{IDVal: nextID(), Ident: n} }

func bin(op ir.BinOp, l, r ir.Expr) *ir.Binary {
	return &ir.Binary{IDVal: nextID(), Op: op, Left: l, Right: r}
}

func callTo(fn string, args ...ir.Expr) *ir.Call {
	return &ir.Call{IDVal: nextID(), Fn: nameRef(fn), Args: args}
}

func newTestGen(mod *ir.Module, own *ownership.ModuleResult) *Generator {
	return New(mod, mapping.Builtin(), own)
}

func mustGenerate(t *testing.T, g *Generator, in Input) string {
	t.Helper()
	src, diags, err := g.Function(in)
	if err != nil {
		t.Fatalf("generate %s: %v (diags %v)", in.Fn.Name, err, diags)
	}
	return src
}

func wantContains(t *testing.T, src, frag string) {
	t.Helper()
	if !strings.Contains(src, frag) {
		t.Fatalf("generated source missing %q:\n%s", frag, src)
	}
}

// ---------------------------------------------------------------------------
// Plain functions
// ---------------------------------------------------------------------------

func TestCopyParamsPassByValue(t *testing.T) {
	fn := &ir.Function{
		Name: "add",
		Params: []ir.Param{
			{Name: "a", Type: ir.Int(64)},
			{Name: "b", Type: ir.Int(64)},
		},
		Ret: ir.Int(64),
		Body: []ir.Stmt{
			&ir.Return{Value: bin(ir.OpAdd, nameRef("a"), nameRef("b"))},
		},
	}
	own := &ownership.Result{ParamModes: map[string]ir.OwnershipMode{
		"a": ir.Move, "b": ir.Move,
	}}
	src := mustGenerate(t, newTestGen(nil, nil), Input{Fn: fn, Own: own})
	wantContains(t, src, "pub fn add(a: i64, b: i64) -> i64 {")
	wantContains(t, src, "return a + b;")
	if strings.Contains(src, "&") || strings.Contains(src, ".clone()") {
		t.Fatalf("copyable params should pass by value:\n%s", src)
	}
}

func TestSharedBorrowStringParam(t *testing.T) {
	fn := &ir.Function{
		Name:   "length",
		Params: []ir.Param{{Name: "s", Type: ir.Str}},
		Ret:    ir.Int(64),
		Body: []ir.Stmt{
			&ir.Return{Value: callTo("len", nameRef("s"))},
		},
	}
	own := &ownership.Result{ParamModes: map[string]ir.OwnershipMode{
		"s": ir.SharedBorrow,
	}}
	src := mustGenerate(t, newTestGen(nil, nil), Input{Fn: fn, Own: own})
	wantContains(t, src, "pub fn length(s: &str) -> i64 {")
	wantContains(t, src, "(s).len() as i64")
}

func TestNarrowedStringEmitsBareLiteral(t *testing.T) {
	fn := &ir.Function{
		Name: "greet",
		Ret:  ir.Int(64),
		Body: []ir.Stmt{
			&ir.Assign{Target: nameRef("msg"), Value: strLit("hi")},
			&ir.Return{Value: callTo("len", nameRef("msg"))},
		},
	}
	src := mustGenerate(t, newTestGen(nil, nil), Input{
		Fn:       fn,
		Narrowed: map[string]bool{"msg": true},
	})
	wantContains(t, src, `let msg = "hi";`)
	if strings.Contains(src, ".to_string()") {
		t.Fatalf("narrowed binding should stay borrowed:\n%s", src)
	}
}

func TestUnknownParamTypeIsHardStop(t *testing.T) {
	fn := &ir.Function{
		Name:   "mystery",
		Params: []ir.Param{{Name: "x", Type: ir.Unknown}},
		Body:   []ir.Stmt{&ir.Return{Value: nameRef("x")}},
	}
	_, diags, err := newTestGen(nil, nil).Function(Input{Fn: fn})
	if err == nil {
		t.Fatal("unknown parameter type must fail the function")
	}
	if len(diags) == 0 || diags[0].Category != diag.CatMissingLowering {
		t.Fatalf("want %s diagnostic, got %v", diag.CatMissingLowering, diags)
	}
}

func TestUnmappedModuleCallIsHardStop(t *testing.T) {
	mod := &ir.Module{
		Name:    "m",
		Imports: []ir.Import{{Module: "math"}},
	}
	frob := &ir.Call{IDVal: nextID(), Args: []ir.Expr{nameRef("x")},
		Fn: &ir.Attribute{IDVal: nextID(), Object: nameRef("math"), Attr: "frobnicate"}}
	fn := &ir.Function{
		Name:   "f",
		Params: []ir.Param{{Name: "x", Type: ir.Float}},
		Ret:    ir.Float,
		Body:   []ir.Stmt{&ir.Return{Value: frob}},
	}
	_, diags, err := newTestGen(mod, nil).Function(Input{Fn: fn})
	if err == nil {
		t.Fatal("unmapped stdlib member must fail the function")
	}
	found := false
	for _, d := range diags {
		if d.Category == diag.CatMissingLowering && strings.Contains(d.Message, "frobnicate") {
			found = true
		}
	}
	if !found {
		t.Fatalf("want missing-lowering naming frobnicate, got %v", diags)
	}
}

func TestMappedMathCallRecordsUse(t *testing.T) {
	mod := &ir.Module{
		Name:    "m",
		Imports: []ir.Import{{Module: "math"}},
	}
	sqrt := &ir.Call{IDVal: nextID(), Args: []ir.Expr{nameRef("x")},
		Fn: &ir.Attribute{IDVal: nextID(), Object: nameRef("math"), Attr: "sqrt"}}
	fn := &ir.Function{
		Name:   "root",
		Params: []ir.Param{{Name: "x", Type: ir.Float}},
		Ret:    ir.Float,
		Body:   []ir.Stmt{&ir.Return{Value: sqrt}},
	}
	src := mustGenerate(t, newTestGen(mod, nil), Input{Fn: fn})
	wantContains(t, src, "(x).sqrt()")
}

func TestDynamicCallIsHardStop(t *testing.T) {
	call := callTo("handler", intLit(1))
	fn := &ir.Function{
		Name: "dispatch",
		Body: []ir.Stmt{&ir.ExprStmt{Expr: call}},
	}
	types := &infer.Result{
		CallKinds: map[ir.NodeID]infer.CallKind{call.IDVal: infer.CallCapability},
	}
	_, diags, err := newTestGen(nil, nil).Function(Input{Fn: fn, Types: types})
	if err == nil {
		t.Fatal("capability call must fail the function")
	}
	if len(diags) == 0 || diags[0].Category != diag.CatMissingLowering {
		t.Fatalf("want %s diagnostic, got %v", diag.CatMissingLowering, diags)
	}
}

func TestBorrowMarkRendersMutableBorrow(t *testing.T) {
	arg := nameRef("xs")
	fn := &ir.Function{
		Name:   "grow",
		Params: []ir.Param{{Name: "xs", Type: ir.ListOf(ir.Int(64))}},
		Body: []ir.Stmt{
			&ir.ExprStmt{Expr: callTo("extend_all", arg)},
		},
	}
	own := &ownership.Result{
		ParamModes:  map[string]ir.OwnershipMode{"xs": ir.ExclusiveBorrow},
		BorrowMarks: map[ir.NodeID]ir.OwnershipMode{arg.IDVal: ir.ExclusiveBorrow},
	}
	src := mustGenerate(t, newTestGen(nil, nil), Input{Fn: fn, Own: own})
	wantContains(t, src, "extend_all(&mut xs)")
}

func TestCalleeSharedBorrowInsertsReference(t *testing.T) {
	callee := &ir.Function{
		Name:   "total",
		Params: []ir.Param{{Name: "xs", Type: ir.ListOf(ir.Int(64))}},
		Ret:    ir.Int(64),
	}
	mod := &ir.Module{Name: "m", Functions: []*ir.Function{callee}}
	own := &ownership.ModuleResult{ByFunction: map[string]*ownership.Result{
		"total": {ParamModes: map[string]ir.OwnershipMode{"xs": ir.SharedBorrow}},
	}}
	fn := &ir.Function{
		Name:   "report",
		Params: []ir.Param{{Name: "xs", Type: ir.ListOf(ir.Int(64))}},
		Ret:    ir.Int(64),
		Body: []ir.Stmt{
			&ir.Return{Value: callTo("total", nameRef("xs"))},
		},
	}
	caller := &ownership.Result{ParamModes: map[string]ir.OwnershipMode{
		"xs": ir.SharedBorrow,
	}}
	src := mustGenerate(t, newTestGen(mod, own), Input{Fn: fn, Own: caller})
	wantContains(t, src, "total(&xs)")
}

func TestIntegerWidthSelectsRustType(t *testing.T) {
	g := newTestGen(nil, nil)
	narrow, err := g.rustType(ir.Int(32))
	if err != nil || narrow != "i32" {
		t.Fatalf("Int(32) = %q, %v", narrow, err)
	}
	wide, err := g.rustType(ir.Int(64))
	if err != nil || wide != "i64" {
		t.Fatalf("Int(64) = %q, %v", wide, err)
	}
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

func TestDataclassEmitsStructAndNew(t *testing.T) {
	cls := &ir.Class{
		Name:      "Point",
		Dataclass: true,
		Fields: []ir.Field{
			{Name: "x", Type: ir.Int(64)},
			{Name: "y", Type: ir.Int(64)},
		},
	}
	src, diags, err := newTestGen(nil, nil).Class(cls, nil)
	if err != nil {
		t.Fatalf("class: %v (diags %v)", err, diags)
	}
	wantContains(t, src, "pub struct Point {")
	wantContains(t, src, "pub x: i64,")
	wantContains(t, src, "pub fn new(x: i64, y: i64) -> Self {")
}

// ---------------------------------------------------------------------------
// Generators
// ---------------------------------------------------------------------------

// rangeGenerator builds `def doubles(): for x in range(5): yield x * 2`.
func rangeGenerator() (*ir.Function, *infer.Result) {
	bindID := nextID()
	fn := &ir.Function{
		Name:       "doubles",
		MaySuspend: true,
		Body: []ir.Stmt{
			&ir.For{
				BindID: bindID,
				Target: "x",
				Iter:   callTo("range", intLit(5)),
				Body: []ir.Stmt{
					&ir.Yield{Value: bin(ir.OpMul, nameRef("x"), intLit(2))},
				},
			},
		},
	}
	types := &infer.Result{
		VarTypes:  map[string]*ir.Type{"x": ir.Int(64)},
		LoopElems: map[ir.NodeID]*ir.Type{bindID: ir.Int(64)},
		YieldType: ir.Int(64),
	}
	return fn, types
}

func TestGeneratorRangeLoopStateCount(t *testing.T) {
	fn, types := rangeGenerator()
	f := newTestGen(nil, nil).newFungen(Input{Fn: fn, Types: types})
	m, err := f.buildMachine()
	if err != nil {
		t.Fatalf("buildMachine: %v", err)
	}
	if len(m.states) != 4 {
		t.Fatalf("want init, cond, increment and exhausted states, got %d", len(m.states))
	}
	if m.stop.id != 3 {
		t.Fatalf("exhausted state must take the final id, got %d", m.stop.id)
	}
}

func TestGeneratorEveryStateHasTransition(t *testing.T) {
	fn, types := rangeGenerator()
	f := newTestGen(nil, nil).newFungen(Input{Fn: fn, Types: types})
	m, err := f.buildMachine()
	if err != nil {
		t.Fatalf("buildMachine: %v", err)
	}
	for _, seg := range m.states {
		if seg == m.stop {
			continue
		}
		if seg.next == nil {
			t.Fatalf("state %d has no successor", seg.id)
		}
		if seg.kind == segCond && seg.alt == nil {
			t.Fatalf("state %d branches without an else target", seg.id)
		}
	}
	if m.states[0].preds != 0 {
		t.Fatalf("entry state must have no predecessor, got %d", m.states[0].preds)
	}
}

func TestGeneratorEmission(t *testing.T) {
	fn, types := rangeGenerator()
	src := mustGenerate(t, newTestGen(nil, nil), Input{Fn: fn, Types: types})
	wantContains(t, src, "pub struct DoublesState {")
	wantContains(t, src, "state: usize,")
	wantContains(t, src, "impl Iterator for DoublesState {")
	wantContains(t, src, "type Item = i64;")
	wantContains(t, src, "fn next(&mut self) -> Option<i64> {")
	wantContains(t, src, "if self.x < self.__end0 {")
	wantContains(t, src, "let value = self.x * 2;")
	wantContains(t, src, "return Some(value);")
	wantContains(t, src, "self.x += 1;")
	wantContains(t, src, "_ => return None,")
	wantContains(t, src, "pub fn doubles() -> DoublesState {")
}

func TestGeneratorCapturesParams(t *testing.T) {
	bindID := nextID()
	fn := &ir.Function{
		Name:       "count_to",
		MaySuspend: true,
		Params:     []ir.Param{{Name: "n", Type: ir.Int(64)}},
		Body: []ir.Stmt{
			&ir.For{
				BindID: bindID,
				Target: "i",
				Iter:   callTo("range", nameRef("n")),
				Body:   []ir.Stmt{&ir.Yield{Value: nameRef("i")}},
			},
		},
	}
	types := &infer.Result{
		VarTypes:  map[string]*ir.Type{"i": ir.Int(64), "n": ir.Int(64)},
		LoopElems: map[ir.NodeID]*ir.Type{bindID: ir.Int(64)},
		YieldType: ir.Int(64),
	}
	src := mustGenerate(t, newTestGen(nil, nil), Input{Fn: fn, Types: types})
	wantContains(t, src, "pub fn count_to(n: i64) -> CountToState {")
	wantContains(t, src, "n,")
	wantContains(t, src, "self.__end0 = self.n;")
}

func TestGeneratorListIterationSynthesizesIndex(t *testing.T) {
	iter := nameRef("xs")
	bindID := nextID()
	fn := &ir.Function{
		Name:       "echo",
		MaySuspend: true,
		Params:     []ir.Param{{Name: "xs", Type: ir.ListOf(ir.Int(64))}},
		Body: []ir.Stmt{
			&ir.For{
				BindID: bindID,
				Target: "v",
				Iter:   iter,
				Body:   []ir.Stmt{&ir.Yield{Value: nameRef("v")}},
			},
		},
	}
	types := &infer.Result{
		VarTypes: map[string]*ir.Type{
			"v": ir.Int(64), "xs": ir.ListOf(ir.Int(64)),
		},
		ExprTypes: map[ir.NodeID]*ir.Type{iter.IDVal: ir.ListOf(ir.Int(64))},
		LoopElems: map[ir.NodeID]*ir.Type{bindID: ir.Int(64)},
		YieldType: ir.Int(64),
	}
	src := mustGenerate(t, newTestGen(nil, nil), Input{Fn: fn, Types: types})
	wantContains(t, src, "__iter0: Vec<i64>,")
	wantContains(t, src, "__i0: usize,")
	wantContains(t, src, "self.__i0 < self.__iter0.len()")
	wantContains(t, src, "self.v = self.__iter0[self.__i0].clone();")
}

func TestGeneratorUnresolvedYieldTypeIsHardStop(t *testing.T) {
	fn := &ir.Function{
		Name:       "broken",
		MaySuspend: true,
		Body: []ir.Stmt{
			&ir.Yield{Value: nameRef("ghost")},
		},
	}
	_, diags, err := newTestGen(nil, nil).Function(Input{Fn: fn})
	if err == nil {
		t.Fatal("generator without a resolved yield type must fail")
	}
	if len(diags) == 0 || diags[0].Category != diag.CatMissingLowering {
		t.Fatalf("want %s diagnostic, got %v", diag.CatMissingLowering, diags)
	}
}

func TestGeneratorBreakBecomesStateTransition(t *testing.T) {
	fn := &ir.Function{
		Name:       "take_small",
		MaySuspend: true,
		Params:     []ir.Param{{Name: "n", Type: ir.Int(64)}},
		Body: []ir.Stmt{
			&ir.While{
				Cond: &ir.BoolLit{IDVal: nextID(), Value: true},
				Body: []ir.Stmt{
					&ir.Yield{Value: nameRef("n")},
					&ir.If{
						Cond: bin(ir.OpGt, nameRef("n"), intLit(3)),
						Then: []ir.Stmt{&ir.Break{}},
					},
					&ir.Assign{Target: nameRef("n"), Value: bin(ir.OpAdd, nameRef("n"), intLit(1))},
				},
			},
		},
	}
	types := &infer.Result{
		VarTypes:  map[string]*ir.Type{"n": ir.Int(64)},
		YieldType: ir.Int(64),
	}
	src := mustGenerate(t, newTestGen(nil, nil), Input{Fn: fn, Types: types})
	if strings.Contains(src, "break") {
		t.Fatalf("break leaked into the dispatch loop:\n%s", src)
	}
	wantContains(t, src, "if self.n > 3 {")
	wantContains(t, src, "self.state = 5;")
	wantContains(t, src, "_ => return None,")

	f := newTestGen(nil, nil).newFungen(Input{Fn: fn, Types: types})
	m, err := f.buildMachine()
	if err != nil {
		t.Fatalf("buildMachine: %v", err)
	}
	if m.stop.id != 5 {
		t.Fatalf("exhausted state id = %d, want 5", m.stop.id)
	}
}

func TestGeneratorContinueBecomesStateTransition(t *testing.T) {
	bindID := nextID()
	fn := &ir.Function{
		Name:       "skip_two",
		MaySuspend: true,
		Body: []ir.Stmt{
			&ir.For{
				BindID: bindID,
				Target: "i",
				Iter:   callTo("range", intLit(5)),
				Body: []ir.Stmt{
					&ir.If{
						Cond: bin(ir.OpEq, nameRef("i"), intLit(2)),
						Then: []ir.Stmt{&ir.Continue{}},
					},
					&ir.Yield{Value: nameRef("i")},
				},
			},
		},
	}
	types := &infer.Result{
		VarTypes:  map[string]*ir.Type{"i": ir.Int(64)},
		LoopElems: map[ir.NodeID]*ir.Type{bindID: ir.Int(64)},
		YieldType: ir.Int(64),
	}
	src := mustGenerate(t, newTestGen(nil, nil), Input{Fn: fn, Types: types})
	if strings.Contains(src, "continue") {
		t.Fatalf("continue leaked into the dispatch loop:\n%s", src)
	}
	wantContains(t, src, "if self.i == 2 {")
	wantContains(t, src, "self.i += 1;")
}

func TestGeneratorLoopExitInsideWithIsHardStop(t *testing.T) {
	fn := &ir.Function{
		Name:       "guarded",
		MaySuspend: true,
		Body: []ir.Stmt{
			&ir.While{
				Cond: &ir.BoolLit{IDVal: nextID(), Value: true},
				Body: []ir.Stmt{
					&ir.Yield{Value: intLit(1)},
					&ir.With{
						Context: callTo("lock"),
						Body:    []ir.Stmt{&ir.Break{}},
					},
				},
			},
		},
	}
	types := &infer.Result{YieldType: ir.Int(64)}
	_, diags, err := newTestGen(nil, nil).Function(Input{Fn: fn, Types: types})
	if err == nil {
		t.Fatal("break inside a with block must not render into a segment")
	}
	if len(diags) == 0 || diags[0].Category != diag.CatMissingLowering {
		t.Fatalf("want %s diagnostic, got %v", diag.CatMissingLowering, diags)
	}
}

func TestGeneratorYieldInsideWithIsHardStop(t *testing.T) {
	fn := &ir.Function{
		Name:       "locked",
		MaySuspend: true,
		Body: []ir.Stmt{
			&ir.Yield{Value: intLit(0)},
			&ir.With{
				Context: callTo("acquire"),
				Body:    []ir.Stmt{&ir.Yield{Value: intLit(1)}},
			},
		},
	}
	types := &infer.Result{YieldType: ir.Int(64)}
	_, diags, err := newTestGen(nil, nil).Function(Input{Fn: fn, Types: types})
	if err == nil {
		t.Fatal("yield inside a with block must not render into a segment")
	}
	if len(diags) == 0 || diags[0].Category != diag.CatMissingLowering {
		t.Fatalf("want %s diagnostic, got %v", diag.CatMissingLowering, diags)
	}
}
