package wire

import (
	"bytes"
	"testing"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/ir"
)

func TestResult_CBORRoundTrip(t *testing.T) {
	fn := &ir.Function{
		Name: "total",
		Params: []ir.Param{
			{Name: "xs", Type: ir.ListOf(ir.Int(64))},
		},
		Ret: ir.Int(64),
	}
	modes := map[string]ir.OwnershipMode{"xs": ir.SharedBorrow}

	r := &Result{
		Module:   "demo",
		Function: SnapshotFunction(fn, nil, modes, nil),
		Rust:     "pub fn total(xs: &Vec<i64>) -> i64 {\n    0\n}\n",
	}

	data, err := MarshalResult(r)
	if err != nil {
		t.Fatalf("MarshalResult: %v", err)
	}

	got, err := UnmarshalResult(data)
	if err != nil {
		t.Fatalf("UnmarshalResult: %v", err)
	}

	if got.Module != "demo" {
		t.Errorf("Module: got %q", got.Module)
	}
	if got.Function.Name != "total" {
		t.Errorf("Function name: got %q", got.Function.Name)
	}
	if len(got.Function.Params) != 1 {
		t.Fatalf("Params: got %d, want 1", len(got.Function.Params))
	}
	p := got.Function.Params[0]
	if p.Name != "xs" || p.Mode != "shared-borrow" {
		t.Errorf("Param: got %+v", p)
	}
	if got.Rust != r.Rust {
		t.Errorf("Rust text mismatch: got %q", got.Rust)
	}
	if got.Fatal {
		t.Error("Fatal should be false")
	}
}

func TestDiagnosticFlattens(t *testing.T) {
	rep := diag.NewReporter(diag.StageCodegen)
	d := rep.Errorf(diag.CatMissingLowering, "call",
		ir.MakeSpan(ir.Position{Line: 3, Column: 7}, ir.Position{Line: 3, Column: 12}),
		"no lowering pattern registered for os.getcwd")

	rec := FromDiagnostic(d)
	if rec.Stage != string(diag.StageCodegen) {
		t.Errorf("Stage: got %q", rec.Stage)
	}
	if rec.Category != diag.CatMissingLowering {
		t.Errorf("Category: got %q", rec.Category)
	}
	if rec.Line != 3 || rec.Column != 7 {
		t.Errorf("Position: got %d:%d", rec.Line, rec.Column)
	}
}

func TestCanonicalEncodingIsDeterministic(t *testing.T) {
	m := &ModuleResult{
		Module:  "demo",
		Prelude: "use std::collections::HashMap;\n",
		Functions: []Result{
			{Module: "demo", Function: FunctionSnapshot{Name: "a"}},
			{Module: "demo", Function: FunctionSnapshot{Name: "b"}, Fatal: true},
		},
	}

	first, err := MarshalModuleResult(m)
	if err != nil {
		t.Fatalf("MarshalModuleResult: %v", err)
	}
	second, err := MarshalModuleResult(m)
	if err != nil {
		t.Fatalf("MarshalModuleResult: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("canonical encoding must be byte-identical across runs")
	}

	got, err := UnmarshalModuleResult(first)
	if err != nil {
		t.Fatalf("UnmarshalModuleResult: %v", err)
	}
	if len(got.Functions) != 2 || !got.Functions[1].Fatal {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalResult([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("expected error for malformed CBOR")
	}
}
