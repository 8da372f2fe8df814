package ownership

import (
	"testing"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/infer"
	"github.com/ferrite-lang/ferrite/ir"
)

var testSeq ir.NodeID

func nextID() ir.NodeID {
	testSeq++
	return testSeq
}

func intLit(v int64) *ir.IntLit { return &ir.IntLit{IDVal: nextID(), Value: v} }
func nameRef(n string) *ir.Name { return &ir.Name{IDVal: nextID(), Ident: n} }

func methodCall(obj ir.Expr, name string, args ...ir.Expr) *ir.Call {
	return &ir.Call{
		IDVal: nextID(),
		Fn:    &ir.Attribute{IDVal: nextID(), Object: obj, Attr: name},
		Args:  args,
	}
}

// resolveWhole runs the full pipeline prefix for a module: signatures,
// call graph, per-function inference, then interprocedural ownership.
func resolveWhole(mod *ir.Module) *ModuleResult {
	sigs := infer.BuildSignatures(mod)
	g := BuildCallGraph(mod)
	types := make(map[string]*infer.Result)
	for _, fn := range mod.Functions {
		types[Key(fn)] = infer.Function(fn, sigs, nil)
	}
	for _, cls := range mod.Classes {
		for _, m := range cls.Methods {
			types[Key(m)] = infer.Function(m, sigs, nil)
		}
	}
	return ResolveModule(mod, g, types)
}

func resolveOne(fn *ir.Function) *Result {
	mod := &ir.Module{Functions: []*ir.Function{fn}}
	return resolveWhole(mod).ByFunction[Key(fn)]
}

func TestReadOnlyListParamSharedBorrow(t *testing.T) {
	loop := &ir.For{
		BindID: nextID(),
		Target: "x",
		Iter:   nameRef("xs"),
		Body: []ir.Stmt{
			&ir.Assign{Target: nameRef("total"),
				Value: &ir.Binary{IDVal: nextID(), Op: ir.OpAdd, Left: nameRef("total"), Right: nameRef("x")}},
		},
	}
	fn := &ir.Function{
		Name:   "total",
		Params: []ir.Param{{Name: "xs", Type: ir.ListOf(ir.Int(64))}},
		Ret:    ir.Unknown,
		Body: []ir.Stmt{
			&ir.Assign{Target: nameRef("total"), Value: intLit(0)},
			loop,
			&ir.Return{Value: nameRef("total")},
		},
	}
	res := resolveOne(fn)
	if got := res.Mode("xs"); got != ir.SharedBorrow {
		t.Fatalf("xs mode = %v, want shared borrow", got)
	}
	if got := res.LoopModes[loop.BindID]; got != ir.Move {
		t.Errorf("copy loop element mode = %v, want move", got)
	}
}

func TestCopyParamPassesByValue(t *testing.T) {
	fn := &ir.Function{
		Name:   "double",
		Params: []ir.Param{{Name: "n", Type: ir.Int(64)}},
		Ret:    ir.Int(64),
		Body: []ir.Stmt{
			&ir.Return{Value: &ir.Binary{IDVal: nextID(), Op: ir.OpMul, Left: nameRef("n"), Right: intLit(2)}},
		},
	}
	if got := resolveOne(fn).Mode("n"); got != ir.Move {
		t.Fatalf("n mode = %v, want move", got)
	}
}

func TestMutatingMethodRequiresExclusiveBorrow(t *testing.T) {
	fn := &ir.Function{
		Name:   "push",
		Params: []ir.Param{{Name: "xs", Type: ir.ListOf(ir.Int(64))}},
		Ret:    ir.Unknown,
		Body: []ir.Stmt{
			&ir.ExprStmt{Expr: methodCall(nameRef("xs"), "append", intLit(1))},
		},
	}
	if got := resolveOne(fn).Mode("xs"); got != ir.ExclusiveBorrow {
		t.Fatalf("xs mode = %v, want exclusive borrow", got)
	}
}

func TestReturnedParamMovesOut(t *testing.T) {
	fn := &ir.Function{
		Name:   "pass_through",
		Params: []ir.Param{{Name: "xs", Type: ir.ListOf(ir.Str)}},
		Ret:    ir.ListOf(ir.Str),
		Body:   []ir.Stmt{&ir.Return{Value: nameRef("xs")}},
	}
	if got := resolveOne(fn).Mode("xs"); got != ir.Move {
		t.Fatalf("xs mode = %v, want move", got)
	}
}

func TestDynamicReceiverFallsBackToClone(t *testing.T) {
	call := methodCall(nameRef("obj"), "frobnicate")
	fn := &ir.Function{
		Name:   "poke",
		Params: []ir.Param{{Name: "obj", Type: ir.Unknown}},
		Ret:    ir.Unknown,
		Body:   []ir.Stmt{&ir.ExprStmt{Expr: call}},
	}
	types := &infer.Result{
		ExprTypes: map[ir.NodeID]*ir.Type{},
		VarTypes:  map[string]*ir.Type{"obj": ir.Unknown},
		CallKinds: map[ir.NodeID]infer.CallKind{call.ID(): infer.CallCapability},
	}
	res := Resolve(fn, types, nil, nil)
	if got := res.Mode("obj"); got != ir.Clone {
		t.Fatalf("obj mode = %v, want clone", got)
	}
	warned := false
	for _, d := range res.Diagnostics {
		if d.Category == diag.CatUnresolvedOwnership && d.Severity == diag.Warning {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("no unresolved-ownership warning, got %v", res.Diagnostics)
	}
}

func TestMutatedAliasMakesParamUnprovable(t *testing.T) {
	fn := &ir.Function{
		Name:   "sneaky",
		Params: []ir.Param{{Name: "xs", Type: ir.ListOf(ir.Int(64))}},
		Ret:    ir.Unknown,
		Body: []ir.Stmt{
			&ir.Assign{Target: nameRef("ys"), Value: nameRef("xs")},
			&ir.ExprStmt{Expr: methodCall(nameRef("ys"), "append", intLit(1))},
		},
	}
	if got := resolveOne(fn).Mode("xs"); got != ir.Clone {
		t.Fatalf("aliased-then-mutated param mode = %v, want clone", got)
	}
}

func TestInterproceduralMutationPropagates(t *testing.T) {
	fill := &ir.Function{
		Name:   "fill",
		Params: []ir.Param{{Name: "out", Type: ir.ListOf(ir.Int(64))}},
		Ret:    ir.Unknown,
		Body: []ir.Stmt{
			&ir.ExprStmt{Expr: methodCall(nameRef("out"), "append", intLit(0))},
		},
	}
	arg := nameRef("data")
	use := &ir.Function{
		Name:   "use",
		Params: []ir.Param{{Name: "data", Type: ir.ListOf(ir.Int(64))}},
		Ret:    ir.Unknown,
		Body: []ir.Stmt{
			&ir.ExprStmt{Expr: &ir.Call{IDVal: nextID(), Fn: nameRef("fill"), Args: []ir.Expr{arg}}},
		},
	}
	mod := &ir.Module{Functions: []*ir.Function{fill, use}}
	res := resolveWhole(mod)

	if got := res.ByFunction["fill"].Mode("out"); got != ir.ExclusiveBorrow {
		t.Fatalf("fill.out mode = %v, want exclusive borrow", got)
	}
	if !res.Requirements["fill"][0] {
		t.Fatal("fill's first parameter not recorded as mutated")
	}
	caller := res.ByFunction["use"]
	if got := caller.Mode("data"); got != ir.ExclusiveBorrow {
		t.Fatalf("use.data mode = %v, want exclusive borrow", got)
	}
	if caller.BorrowMarks[arg.ID()] != ir.ExclusiveBorrow {
		t.Error("no borrow mark on the mutated call argument")
	}
}

func TestReceiverMutationDetected(t *testing.T) {
	inc := &ir.Function{
		Name:     "inc",
		Receiver: "Counter",
		Ret:      ir.Unknown,
		Body: []ir.Stmt{
			&ir.Assign{
				Target: &ir.Attribute{IDVal: nextID(), Object: nameRef("self"), Attr: "count"},
				Value: &ir.Binary{IDVal: nextID(), Op: ir.OpAdd,
					Left:  &ir.Attribute{IDVal: nextID(), Object: nameRef("self"), Attr: "count"},
					Right: intLit(1)},
			},
		},
	}
	peek := &ir.Function{
		Name:     "peek",
		Receiver: "Counter",
		Ret:      ir.Int(64),
		Body: []ir.Stmt{
			&ir.Return{Value: &ir.Attribute{IDVal: nextID(), Object: nameRef("self"), Attr: "count"}},
		},
	}
	cls := &ir.Class{
		Name:    "Counter",
		Fields:  []ir.Field{{Name: "count", Type: ir.Int(64)}},
		Methods: []*ir.Function{inc, peek},
	}
	mod := &ir.Module{Classes: []*ir.Class{cls}}
	res := resolveWhole(mod)

	if !res.ByFunction[Key(inc)].ReceiverMut {
		t.Error("field assignment did not mark the receiver mutable")
	}
	if res.ByFunction[Key(peek)].ReceiverMut {
		t.Error("read-only method marked the receiver mutable")
	}
	if !res.Requirements[Key(inc)][-1] {
		t.Error("receiver mutation not recorded in requirements")
	}
}
