package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/ir"
	"github.com/ferrite-lang/ferrite/wire"
)

var testSeq ir.NodeID

func nextID() ir.NodeID {
	testSeq++
	return testSeq
}

func nameRef(n string) *ir.Name { return &ir.Name{IDVal: nextID(), Ident: n} }

func addFunction() *ir.Function {
	return &ir.Function{
		Name: "add",
		Params: []ir.Param{
			{Name: "a", Type: ir.Int(64)},
			{Name: "b", Type: ir.Int(64)},
		},
		Ret: ir.Int(64),
		Body: []ir.Stmt{
			&ir.Return{Value: &ir.Binary{
				IDVal: nextID(), Op: ir.OpAdd,
				Left: nameRef("a"), Right: nameRef("b"),
			}},
		},
	}
}

// untypedFunction cannot be lowered: its parameter never resolves.
func untypedFunction() *ir.Function {
	return &ir.Function{
		Name:   "mystery",
		Params: []ir.Param{{Name: "x", Type: ir.Unknown}},
		Body:   []ir.Stmt{&ir.Return{Value: nameRef("x")}},
	}
}

func TestRunGeneratesModule(t *testing.T) {
	mod := &ir.Module{
		Name:      "demo",
		Functions: []*ir.Function{addFunction()},
		Classes: []*ir.Class{{
			Name:      "Point",
			Dataclass: true,
			Fields: []ir.Field{
				{Name: "x", Type: ir.Int(64)},
				{Name: "y", Type: ir.Int(64)},
			},
		}},
	}

	out, err := Run(context.Background(), mod, Options{Workers: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Fatal() {
		t.Fatalf("unexpected fatal outcome: %+v", out)
	}
	if len(out.Functions) != 1 {
		t.Fatalf("functions: got %d, want 1", len(out.Functions))
	}
	if !strings.Contains(out.Functions[0].Rust, "pub fn add(a: i64, b: i64) -> i64 {") {
		t.Errorf("add source:\n%s", out.Functions[0].Rust)
	}
	if len(out.Classes) != 1 || !strings.Contains(out.Classes[0].Rust, "pub struct Point {") {
		t.Errorf("class result: %+v", out.Classes)
	}
}

func TestOneFailureDoesNotPoisonSiblings(t *testing.T) {
	mod := &ir.Module{
		Name:      "demo",
		Functions: []*ir.Function{untypedFunction(), addFunction()},
	}

	out, err := Run(context.Background(), mod, Options{Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Fatal() {
		t.Fatal("expected fatal outcome for the untyped function")
	}

	var bad, good *FunctionResult
	for i := range out.Functions {
		switch out.Functions[i].Key {
		case "mystery":
			bad = &out.Functions[i]
		case "add":
			good = &out.Functions[i]
		}
	}
	if bad == nil || !bad.Fatal {
		t.Fatalf("mystery should fail: %+v", bad)
	}
	found := false
	for _, d := range bad.Diagnostics {
		if d.Category == diag.CatMissingLowering {
			found = true
		}
	}
	if !found {
		t.Errorf("mystery diagnostics lack %s: %v", diag.CatMissingLowering, bad.Diagnostics)
	}
	if good == nil || good.Fatal || good.Rust == "" {
		t.Fatalf("add should still generate: %+v", good)
	}
}

func TestCancelledContextStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mod := &ir.Module{Name: "demo", Functions: []*ir.Function{addFunction()}}
	_, err := Run(ctx, mod, Options{})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestHookReceivesEveryFunction(t *testing.T) {
	mod := &ir.Module{
		Name:      "demo",
		Functions: []*ir.Function{untypedFunction(), addFunction()},
	}

	var got []*wire.Result
	_, err := Run(context.Background(), mod, Options{
		Hook: func(r *wire.Result) { got = append(got, r) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("hook calls: got %d, want 2", len(got))
	}
	byName := map[string]*wire.Result{}
	for _, r := range got {
		byName[r.Function.Name] = r
	}
	if r := byName["add"]; r == nil || r.Fatal || r.Rust == "" {
		t.Errorf("add wire result: %+v", r)
	}
	if r := byName["mystery"]; r == nil || !r.Fatal {
		t.Errorf("mystery wire result: %+v", r)
	}
}

func TestVerifiedRunStaysClean(t *testing.T) {
	mod := &ir.Module{Name: "demo", Functions: []*ir.Function{addFunction()}}

	out, err := Run(context.Background(), mod, Options{Verify: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Fatal() {
		t.Fatalf("verification flagged a clean module: %+v", out.Functions[0].Diagnostics)
	}
}
