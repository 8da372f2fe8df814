// Package optimize applies a fixed sequence of total IR-rewrite passes:
// constant folding, dead-code elimination, common-subexpression
// elimination, call inlining, and string-ownership narrowing. Passes are
// individually toggled by directive annotations and never fail; a pass
// that cannot improve a function leaves it untouched.
package optimize

import (
	"github.com/ferrite-lang/ferrite/infer"
	"github.com/ferrite-lang/ferrite/ir"
)

// Outcome is the optimizer's result: a rewritten body plus side
// information the code generator consumes.
type Outcome struct {
	Body []ir.Stmt
	// NarrowedStrings marks bindings proven to never retain their string
	// beyond the function: codegen may emit a borrowed view.
	NarrowedStrings map[string]bool
	// Stats counts applied rewrites per pass, for logging.
	Stats Stats
}

// Stats counts rewrites applied by each pass.
type Stats struct {
	Folded    int
	DeadCode  int
	CSE       int
	Inlined   int
	Narrowed  int
}

// Total returns the number of rewrites across all passes.
func (s Stats) Total() int {
	return s.Folded + s.DeadCode + s.CSE + s.Inlined + s.Narrowed
}

// Function optimizes one function. mod provides inlining candidates;
// types is the function's solved inference result. The input body is
// never mutated: every pass rebuilds the statements it changes.
func Function(fn *ir.Function, mod *ir.Module, types *infer.Result) *Outcome {
	ann := fn.Ann
	if ann == nil {
		ann = ir.DefaultAnnotations()
	}

	out := &Outcome{
		Body:            fn.Body,
		NarrowedStrings: map[string]bool{},
	}

	if !ann.DisableFold {
		out.Body = foldStmts(out.Body, &out.Stats)
	}
	if !ann.DisableDCE {
		out.Body = eliminateDead(out.Body, &out.Stats)
	}
	if ann.Opt != ir.OptConservative {
		if !ann.DisableCSE {
			out.Body = eliminateCommon(out.Body, &out.Stats)
		}
		if !ann.DisableInl {
			inl := newInliner(mod, ann)
			out.Body = inl.rewriteStmts(out.Body, 0, &out.Stats)
		}
	}
	if ann.Strings != ir.StringAlwaysOwned {
		narrowStrings(fn, out)
	}
	return out
}
