package infer

import (
	"testing"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/ir"
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

func assign(name string, value ir.Expr) *ir.Assign {
	return &ir.Assign{Target: nameRef(name), Value: value}
}

func ret(value ir.Expr) *ir.Return { return &ir.Return{Value: value} }

func inferOne(fn *ir.Function) *Result {
	mod := &ir.Module{Functions: []*ir.Function{fn}}
	return Function(fn, BuildSignatures(mod), nil)
}

func wantType(t *testing.T, got *ir.Type, want string) {
	t.Helper()
	if got.String() != want {
		t.Fatalf("type = %s, want %s", got, want)
	}
}

func TestLiteralAssignmentTypesLocal(t *testing.T) {
	fn := &ir.Function{
		Name: "f",
		Ret:  ir.Unknown,
		Body: []ir.Stmt{
			assign("x", intLit(1)),
			ret(nameRef("x")),
		},
	}
	res := inferOne(fn)
	if res.Failed {
		t.Fatalf("inference failed: %v", res.Diagnostics)
	}
	wantType(t, res.VarTypes["x"], "int")
	wantType(t, res.Ret, "int")
}

func TestParamHintsFlowThroughArithmetic(t *testing.T) {
	sum := bin(ir.OpAdd, nameRef("a"), nameRef("b"))
	fn := &ir.Function{
		Name: "add",
		Params: []ir.Param{
			{Name: "a", Type: ir.Int(64)},
			{Name: "b", Type: ir.Int(64)},
		},
		Ret:  ir.Unknown,
		Body: []ir.Stmt{ret(sum)},
	}
	res := inferOne(fn)
	wantType(t, res.Ret, "int")
	wantType(t, res.TypeOf(sum), "int")
}

func TestConflictingAssignmentsFail(t *testing.T) {
	fn := &ir.Function{
		Name: "f",
		Ret:  ir.Unknown,
		Body: []ir.Stmt{
			assign("x", intLit(1)),
			assign("x", strLit("one")),
		},
	}
	res := inferOne(fn)
	if !res.Failed {
		t.Fatal("contradictory assignments did not fail")
	}
	found := false
	for _, d := range res.Diagnostics {
		if d.Category == diag.CatTypeContradiction {
			found = true
		}
	}
	if !found {
		t.Fatalf("no type-contradiction diagnostic, got %v", res.Diagnostics)
	}
}

func TestLoopElementFromListParam(t *testing.T) {
	loop := &ir.For{
		BindID: nextID(),
		Target: "item",
		Iter:   nameRef("xs"),
		Body:   []ir.Stmt{assign("total", bin(ir.OpAdd, nameRef("total"), nameRef("item")))},
	}
	fn := &ir.Function{
		Name:   "sum_all",
		Params: []ir.Param{{Name: "xs", Type: ir.ListOf(ir.Int(64))}},
		Ret:    ir.Unknown,
		Body: []ir.Stmt{
			assign("total", intLit(0)),
			loop,
			ret(nameRef("total")),
		},
	}
	res := inferOne(fn)
	if res.Failed {
		t.Fatalf("inference failed: %v", res.Diagnostics)
	}
	wantType(t, res.LoopElems[loop.BindID], "int")
	wantType(t, res.VarTypes["item"], "int")
	wantType(t, res.Ret, "int")
}

func TestYieldTypeResolved(t *testing.T) {
	fn := &ir.Function{
		Name:       "ones",
		Ret:        ir.Unknown,
		MaySuspend: true,
		Body:       []ir.Stmt{&ir.Yield{Value: intLit(1)}},
	}
	res := inferOne(fn)
	wantType(t, res.YieldType, "int")
}

func TestDirectCallUsesCalleeSignature(t *testing.T) {
	callee := &ir.Function{
		Name:   "half",
		Params: []ir.Param{{Name: "x", Type: ir.Float}},
		Ret:    ir.Float,
		Body:   []ir.Stmt{ret(nameRef("x"))},
	}
	call := &ir.Call{IDVal: nextID(), Fn: nameRef("half"), Args: []ir.Expr{nameRef("v")}}
	caller := &ir.Function{
		Name:   "use",
		Params: []ir.Param{{Name: "v", Type: ir.Float}},
		Ret:    ir.Unknown,
		Body:   []ir.Stmt{ret(call)},
	}
	mod := &ir.Module{Functions: []*ir.Function{callee, caller}}
	res := Function(caller, BuildSignatures(mod), nil)
	if res.Failed {
		t.Fatalf("inference failed: %v", res.Diagnostics)
	}
	wantType(t, res.Ret, "float")
	if res.CallKinds[call.ID()] != CallDirect {
		t.Errorf("call kind = %v, want direct", res.CallKinds[call.ID()])
	}
}

func TestSeededRerunIsStable(t *testing.T) {
	fn := &ir.Function{
		Name:   "mix",
		Params: []ir.Param{{Name: "n", Type: ir.Int(64)}},
		Ret:    ir.Unknown,
		Body: []ir.Stmt{
			assign("doubled", bin(ir.OpMul, nameRef("n"), intLit(2))),
			ret(nameRef("doubled")),
		},
	}
	sigs := BuildSignatures(&ir.Module{Functions: []*ir.Function{fn}})
	first := Function(fn, sigs, nil)
	second := Function(fn, sigs, first)

	if first.Ret.String() != second.Ret.String() {
		t.Fatalf("return drifted: %s vs %s", first.Ret, second.Ret)
	}
	for name, ft := range first.VarTypes {
		if st := second.VarTypes[name]; ft.String() != st.String() {
			t.Errorf("local %s drifted: %s vs %s", name, ft, st)
		}
	}
	if second.Failed {
		t.Fatalf("seeded re-run failed: %v", second.Diagnostics)
	}
}

func TestTupleConstantIndexResolves(t *testing.T) {
	pair := ir.TupleOf(ir.Int(64), ir.Str)
	idx := &ir.Index{IDVal: nextID(), Object: nameRef("pair"), Key: intLit(1)}
	fn := &ir.Function{
		Name:   "second",
		Params: []ir.Param{{Name: "pair", Type: pair}},
		Ret:    ir.Unknown,
		Body:   []ir.Stmt{ret(idx)},
	}
	res := inferOne(fn)
	if res.Failed {
		t.Fatalf("inference failed: %v", res.Diagnostics)
	}
	wantType(t, res.TypeOf(idx), "str")
	wantType(t, res.Ret, "str")
}

func TestTupleNegativeIndexCountsFromEnd(t *testing.T) {
	pair := ir.TupleOf(ir.Str, ir.Int(64), ir.Float)
	neg := &ir.Unary{IDVal: nextID(), Op: ir.OpNeg, Operand: intLit(1)}
	idx := &ir.Index{IDVal: nextID(), Object: nameRef("triple"), Key: neg}
	fn := &ir.Function{
		Name:   "last",
		Params: []ir.Param{{Name: "triple", Type: pair}},
		Ret:    ir.Unknown,
		Body:   []ir.Stmt{ret(idx)},
	}
	res := inferOne(fn)
	wantType(t, res.Ret, "float")
}

func TestUniformTupleResolvesDynamicIndex(t *testing.T) {
	idx := &ir.Index{IDVal: nextID(), Object: nameRef("pt"), Key: nameRef("axis")}
	fn := &ir.Function{
		Name: "component",
		Params: []ir.Param{
			{Name: "pt", Type: ir.TupleOf(ir.Float, ir.Float)},
			{Name: "axis", Type: ir.Int(64)},
		},
		Ret:  ir.Unknown,
		Body: []ir.Stmt{ret(idx)},
	}
	res := inferOne(fn)
	wantType(t, res.Ret, "float")
}

func TestMixedTupleDynamicIndexStaysUnknown(t *testing.T) {
	idx := &ir.Index{IDVal: nextID(), Object: nameRef("pair"), Key: nameRef("i")}
	fn := &ir.Function{
		Name: "pick",
		Params: []ir.Param{
			{Name: "pair", Type: ir.TupleOf(ir.Int(64), ir.Str)},
			{Name: "i", Type: ir.Int(64)},
		},
		Ret:  ir.Unknown,
		Body: []ir.Stmt{ret(idx)},
	}
	res := inferOne(fn)
	if !res.TypeOf(idx).IsUnknown() {
		t.Fatalf("mixed tuple with a dynamic index resolved to %s", res.TypeOf(idx))
	}
}
