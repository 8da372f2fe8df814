package ir

// WalkExpr visits e and every sub-expression, depth first.
func WalkExpr(e Expr, visit func(Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch ex := e.(type) {
	case *Binary:
		WalkExpr(ex.Left, visit)
		WalkExpr(ex.Right, visit)
	case *Unary:
		WalkExpr(ex.Operand, visit)
	case *Call:
		WalkExpr(ex.Fn, visit)
		for _, a := range ex.Args {
			WalkExpr(a, visit)
		}
	case *Attribute:
		WalkExpr(ex.Object, visit)
	case *Index:
		WalkExpr(ex.Object, visit)
		WalkExpr(ex.Key, visit)
	case *ListLit:
		for _, el := range ex.Elems {
			WalkExpr(el, visit)
		}
	case *SetLit:
		for _, el := range ex.Elems {
			WalkExpr(el, visit)
		}
	case *TupleLit:
		for _, el := range ex.Elems {
			WalkExpr(el, visit)
		}
	case *MapLit:
		for i := range ex.Keys {
			WalkExpr(ex.Keys[i], visit)
			WalkExpr(ex.Values[i], visit)
		}
	case *Comprehension:
		WalkExpr(ex.Iter, visit)
		WalkExpr(ex.Key, visit)
		WalkExpr(ex.Value, visit)
		WalkExpr(ex.Cond, visit)
	case *CondExpr:
		WalkExpr(ex.Cond, visit)
		WalkExpr(ex.Then, visit)
		WalkExpr(ex.Else, visit)
	}
}

// WalkStmts visits every statement in order, including nested bodies.
func WalkStmts(stmts []Stmt, visit func(Stmt)) {
	for _, s := range stmts {
		visit(s)
		switch st := s.(type) {
		case *If:
			WalkStmts(st.Then, visit)
			WalkStmts(st.Else, visit)
		case *While:
			WalkStmts(st.Body, visit)
		case *For:
			WalkStmts(st.Body, visit)
		case *With:
			WalkStmts(st.Body, visit)
		}
	}
}
