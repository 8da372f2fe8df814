package ownership

import (
	"github.com/ferrite-lang/ferrite/ir"
)

// walkStmts visits every statement, including nested bodies.
func walkStmts(stmts []ir.Stmt, visit func(ir.Stmt)) {
	ir.WalkStmts(stmts, visit)
}

// forEachExpr visits every expression reachable from one statement.
func forEachExpr(s ir.Stmt, visit func(ir.Expr)) {
	walk := func(x ir.Expr) { ir.WalkExpr(x, visit) }
	switch st := s.(type) {
	case *ir.Assign:
		walk(st.Target)
		walk(st.Value)
	case *ir.If:
		walk(st.Cond)
	case *ir.While:
		walk(st.Cond)
	case *ir.For:
		walk(st.Iter)
	case *ir.Return:
		walk(st.Value)
	case *ir.Yield:
		walk(st.Value)
	case *ir.Raise:
		walk(st.Value)
	case *ir.ExprStmt:
		walk(st.Expr)
	case *ir.With:
		walk(st.Context)
	}
}

// rootName returns the base Name an lvalue expression projects from:
// state.data[0] roots at state. Nil when the expression does not root at
// a simple name.
func rootName(x ir.Expr) *ir.Name {
	for {
		switch ex := x.(type) {
		case *ir.Name:
			return ex
		case *ir.Attribute:
			x = ex.Object
		case *ir.Index:
			x = ex.Object
		default:
			return nil
		}
	}
}
