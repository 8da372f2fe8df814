package diag

import (
	"strings"
	"testing"

	"github.com/ferrite-lang/ferrite/ir"
)

func TestDiagnosticIsAnError(t *testing.T) {
	r := NewReporter(StageBridge)
	span := ir.Span{Start: ir.Position{Line: 3, Column: 7}}
	var err error = r.Errorf(CatUnsupportedConstruct, "metaclass", span, "class %q declares a metaclass", "Meta")

	msg := err.Error()
	for _, want := range []string{"line 3", "column 7", "Meta", CatUnsupportedConstruct} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestHasErrorsIgnoresWarnings(t *testing.T) {
	r := NewReporter(StageOwnership)
	r.Warnf(CatUnresolvedOwnership, "parameter", ir.ZeroSpan(), "falling back to clone")
	if r.HasErrors() {
		t.Error("warning counted as error")
	}
	r.Errorf(CatTypeContradiction, "assignment", ir.ZeroSpan(), "int vs str")
	if !r.HasErrors() {
		t.Error("error not counted")
	}
	if len(r.Diagnostics()) != 2 {
		t.Errorf("got %d diagnostics, want 2", len(r.Diagnostics()))
	}
}

func TestMergePreservesOrder(t *testing.T) {
	a := NewReporter(StageInfer)
	a.Errorf(CatTypeContradiction, "a", ir.ZeroSpan(), "first")
	b := NewReporter(StageOwnership)
	b.Errorf(CatUnresolvedOwnership, "b", ir.ZeroSpan(), "second")

	a.Merge(b)
	got := a.Diagnostics()
	if len(got) != 2 || got[0].Message != "first" || got[1].Message != "second" {
		t.Fatalf("merged diagnostics = %+v", got)
	}
	if got[1].Stage != StageOwnership {
		t.Error("merged diagnostic lost its origin stage")
	}
}
