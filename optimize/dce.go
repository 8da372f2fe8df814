package optimize

import (
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Dead-code elimination
// ---------------------------------------------------------------------------

// eliminateDead removes statements after a terminator, branches with
// constant conditions, and effect-free expression statements.
func eliminateDead(stmts []ir.Stmt, stats *Stats) []ir.Stmt {
	out := make([]ir.Stmt, 0, len(stmts))
	for _, s := range stmts {
		kept, terminal := dceStmt(s, stats)
		if kept != nil {
			out = append(out, kept...)
		}
		if terminal {
			break
		}
	}
	// Count trailing statements dropped after the terminator.
	if len(out) < len(stmts) {
		stats.DeadCode += len(stmts) - len(out)
	}
	return out
}

// dceStmt rewrites one statement; it returns the replacement statements
// (possibly empty) and whether control cannot continue past it.
func dceStmt(s ir.Stmt, stats *Stats) ([]ir.Stmt, bool) {
	switch st := s.(type) {
	case *ir.Return, *ir.Raise, *ir.Break, *ir.Continue:
		return []ir.Stmt{s}, true

	case *ir.If:
		if b, ok := st.Cond.(*ir.BoolLit); ok {
			stats.DeadCode++
			if b.Value {
				return eliminateDead(st.Then, stats), false
			}
			return eliminateDead(st.Else, stats), false
		}
		return []ir.Stmt{&ir.If{SpanVal: st.SpanVal, Cond: st.Cond,
			Then: eliminateDead(st.Then, stats),
			Else: eliminateDead(st.Else, stats)}}, false

	case *ir.While:
		if b, ok := st.Cond.(*ir.BoolLit); ok && !b.Value {
			stats.DeadCode++
			return nil, false
		}
		return []ir.Stmt{&ir.While{SpanVal: st.SpanVal, Cond: st.Cond,
			Body: eliminateDead(st.Body, stats)}}, false

	case *ir.For:
		return []ir.Stmt{&ir.For{SpanVal: st.SpanVal, BindID: st.BindID,
			Target: st.Target, Iter: st.Iter,
			Body: eliminateDead(st.Body, stats)}}, false

	case *ir.With:
		return []ir.Stmt{&ir.With{SpanVal: st.SpanVal, Context: st.Context,
			Target: st.Target, Body: eliminateDead(st.Body, stats)}}, false

	case *ir.ExprStmt:
		if effectFree(st.Expr) {
			stats.DeadCode++
			return nil, false
		}
		return []ir.Stmt{s}, false

	case *ir.Pass:
		return nil, false

	default:
		return []ir.Stmt{s}, false
	}
}

// effectFree reports whether evaluating the expression can have no
// observable effect: literals, names, and operator trees over them.
// Calls, subscripts, and attribute access are kept; subscripts can raise
// and attributes can run arbitrary code upstream.
func effectFree(x ir.Expr) bool {
	switch ex := x.(type) {
	case *ir.IntLit, *ir.FloatLit, *ir.BoolLit, *ir.StrLit, *ir.BytesLit,
		*ir.NoneLit, *ir.Name:
		return true
	case *ir.Binary:
		if ex.Op == ir.OpDiv || ex.Op == ir.OpFloorDiv || ex.Op == ir.OpMod {
			return false // may divide by zero
		}
		return effectFree(ex.Left) && effectFree(ex.Right)
	case *ir.Unary:
		return effectFree(ex.Operand)
	case *ir.TupleLit:
		for _, el := range ex.Elems {
			if !effectFree(el) {
				return false
			}
		}
		return true
	}
	return false
}
