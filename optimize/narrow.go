package optimize

import (
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// String-ownership narrowing
// ---------------------------------------------------------------------------

// narrowStrings finds locals bound once to a string literal and never
// retained beyond the function: those bindings need no owned allocation,
// so codegen can emit a borrowed view. A binding that escapes through a
// return, a yield, a call argument, a container store, or a mutation
// stays owned.
func narrowStrings(fn *ir.Function, out *Outcome) {
	assigns := map[string]int{}
	fromLit := map[string]bool{}
	escapes := map[string]bool{}

	ir.WalkStmts(out.Body, func(s ir.Stmt) {
		switch st := s.(type) {
		case *ir.Assign:
			if n, ok := st.Target.(*ir.Name); ok {
				assigns[n.Ident]++
				if _, lit := st.Value.(*ir.StrLit); lit {
					fromLit[n.Ident] = true
				}
				// Copying the binding into another name or a container
				// retains it past this statement.
				markEscaping(st.Value, escapes)
				return
			}
			// Store through a field or subscript retains the value.
			markEscaping(st.Value, escapes)
		case *ir.Return:
			markEscaping(st.Value, escapes)
		case *ir.Yield:
			markEscaping(st.Value, escapes)
		case *ir.Raise:
			markEscaping(st.Value, escapes)
		case *ir.If:
			markCallEscapes(st.Cond, escapes)
		case *ir.While:
			markCallEscapes(st.Cond, escapes)
		case *ir.For:
			markEscaping(st.Iter, escapes)
		case *ir.ExprStmt:
			markCallEscapes(st.Expr, escapes)
		case *ir.With:
			markEscaping(st.Context, escapes)
		}
	})

	for name := range fromLit {
		if assigns[name] == 1 && !escapes[name] {
			out.NarrowedStrings[name] = true
			out.Stats.Narrowed++
		}
	}
}

// markEscaping marks every name in the expression as retained. Operator
// uses inside the expression still count: a concatenation's operands are
// consumed by the new string.
func markEscaping(x ir.Expr, escapes map[string]bool) {
	if x == nil {
		return
	}
	switch ex := x.(type) {
	case *ir.Name:
		escapes[ex.Ident] = true
	case *ir.Binary:
		// Comparisons only inspect their operands.
		switch ex.Op {
		case ir.OpEq, ir.OpNotEq, ir.OpLt, ir.OpLtEq, ir.OpGt, ir.OpGtEq,
			ir.OpIn, ir.OpNotIn:
			markCallEscapes(ex.Left, escapes)
			markCallEscapes(ex.Right, escapes)
		default:
			markEscaping(ex.Left, escapes)
			markEscaping(ex.Right, escapes)
		}
	case *ir.Unary:
		markCallEscapes(ex.Operand, escapes)
	default:
		// Calls, subscripts, literals with elements: treat every inner
		// name as retained.
		ir.WalkExpr(x, func(e ir.Expr) {
			if n, ok := e.(*ir.Name); ok {
				escapes[n.Ident] = true
			}
		})
	}
}

// markCallEscapes marks only names that reach a call argument: plain
// reads in conditions and comparisons keep the binding borrowable, but a
// callee may retain what it receives.
func markCallEscapes(x ir.Expr, escapes map[string]bool) {
	ir.WalkExpr(x, func(e ir.Expr) {
		if c, ok := e.(*ir.Call); ok {
			if isLenCall(c) {
				return
			}
			for _, a := range c.Args {
				ir.WalkExpr(a, func(sub ir.Expr) {
					if n, ok := sub.(*ir.Name); ok {
						escapes[n.Ident] = true
					}
				})
			}
		}
	})
}

func isLenCall(c *ir.Call) bool {
	n, ok := c.Fn.(*ir.Name)
	return ok && n.Ident == "len"
}
