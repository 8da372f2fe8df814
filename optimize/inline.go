package optimize

import (
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Call inlining
// ---------------------------------------------------------------------------

// inliner replaces calls to small pure module functions with their
// returned expression. Only free functions whose body is a single return
// qualify; methods, suspendable functions, and self-recursive functions
// never inline. Depth and cost are bounded by the function's directives.
type inliner struct {
	mod        *ir.Module
	ann        *ir.Annotations
	candidates map[string]*ir.Function
}

func newInliner(mod *ir.Module, ann *ir.Annotations) *inliner {
	inl := &inliner{mod: mod, ann: ann, candidates: map[string]*ir.Function{}}
	if mod == nil {
		return inl
	}
	for _, fn := range mod.Functions {
		if inl.inlinable(fn) {
			inl.candidates[fn.Name] = fn
		}
	}
	return inl
}

func (inl *inliner) inlinable(fn *ir.Function) bool {
	if fn.Receiver != "" || !fn.Pure || fn.MaySuspend {
		return false
	}
	if len(fn.Body) != 1 {
		return false
	}
	ret, ok := fn.Body[0].(*ir.Return)
	if !ok || ret.Value == nil {
		return false
	}
	if callsName(ret.Value, fn.Name) {
		return false
	}
	return exprCost(ret.Value) <= inl.ann.InlineBudget
}

// rewriteStmts rewrites calls in a statement list. depth counts nested
// inlining steps already taken.
func (inl *inliner) rewriteStmts(stmts []ir.Stmt, depth int, stats *Stats) []ir.Stmt {
	return inl.rewriteBlock(stmts, depth, false, stats)
}

func (inl *inliner) rewriteBlock(stmts []ir.Stmt, depth int, inLoop bool, stats *Stats) []ir.Stmt {
	out := make([]ir.Stmt, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, inl.rewriteStmt(s, depth, inLoop, stats))
	}
	return out
}

func (inl *inliner) rewriteStmt(s ir.Stmt, depth int, inLoop bool, stats *Stats) ir.Stmt {
	sub := func(x ir.Expr) ir.Expr { return inl.rewriteExpr(x, depth, inLoop, stats) }
	switch st := s.(type) {
	case *ir.Assign:
		return &ir.Assign{SpanVal: st.SpanVal, Target: st.Target,
			Value: sub(st.Value), Hint: st.Hint}
	case *ir.If:
		return &ir.If{SpanVal: st.SpanVal, Cond: sub(st.Cond),
			Then: inl.rewriteBlock(st.Then, depth, inLoop, stats),
			Else: inl.rewriteBlock(st.Else, depth, inLoop, stats)}
	case *ir.While:
		return &ir.While{SpanVal: st.SpanVal, Cond: sub(st.Cond),
			Body: inl.rewriteBlock(st.Body, depth, true, stats)}
	case *ir.For:
		return &ir.For{SpanVal: st.SpanVal, BindID: st.BindID, Target: st.Target,
			Iter: sub(st.Iter), Body: inl.rewriteBlock(st.Body, depth, true, stats)}
	case *ir.Return:
		if st.Value == nil {
			return st
		}
		return &ir.Return{SpanVal: st.SpanVal, Value: sub(st.Value)}
	case *ir.Yield:
		return &ir.Yield{SpanVal: st.SpanVal, Value: sub(st.Value)}
	case *ir.ExprStmt:
		return &ir.ExprStmt{SpanVal: st.SpanVal, Expr: sub(st.Expr)}
	case *ir.With:
		return &ir.With{SpanVal: st.SpanVal, Context: sub(st.Context),
			Target: st.Target, Body: inl.rewriteBlock(st.Body, depth, inLoop, stats)}
	default:
		return s
	}
}

func (inl *inliner) rewriteExpr(x ir.Expr, depth int, inLoop bool, stats *Stats) ir.Expr {
	switch ex := x.(type) {
	case *ir.Call:
		args := make([]ir.Expr, len(ex.Args))
		for i, a := range ex.Args {
			args[i] = inl.rewriteExpr(a, depth, inLoop, stats)
		}
		if body := inl.expand(ex, args, depth, inLoop); body != nil {
			stats.Inlined++
			// Nested candidates inside the expansion count against depth.
			return inl.rewriteExpr(body, depth+1, inLoop, stats)
		}
		return &ir.Call{IDVal: ex.IDVal, SpanVal: ex.SpanVal, Fn: ex.Fn, Args: args}
	case *ir.Binary:
		return &ir.Binary{IDVal: ex.IDVal, SpanVal: ex.SpanVal, Op: ex.Op,
			Left:  inl.rewriteExpr(ex.Left, depth, inLoop, stats),
			Right: inl.rewriteExpr(ex.Right, depth, inLoop, stats)}
	case *ir.Unary:
		return &ir.Unary{IDVal: ex.IDVal, SpanVal: ex.SpanVal, Op: ex.Op,
			Operand: inl.rewriteExpr(ex.Operand, depth, inLoop, stats)}
	case *ir.Index:
		return &ir.Index{IDVal: ex.IDVal, SpanVal: ex.SpanVal,
			Object: inl.rewriteExpr(ex.Object, depth, inLoop, stats),
			Key:    inl.rewriteExpr(ex.Key, depth, inLoop, stats)}
	case *ir.CondExpr:
		return &ir.CondExpr{IDVal: ex.IDVal, SpanVal: ex.SpanVal,
			Cond: inl.rewriteExpr(ex.Cond, depth, inLoop, stats),
			Then: inl.rewriteExpr(ex.Then, depth, inLoop, stats),
			Else: inl.rewriteExpr(ex.Else, depth, inLoop, stats)}
	default:
		return x
	}
}

// expand returns the inlined replacement for a call, nil when the call
// does not inline. args are the already-rewritten argument expressions.
func (inl *inliner) expand(call *ir.Call, args []ir.Expr, depth int, inLoop bool) ir.Expr {
	if depth >= inl.ann.InlineDepth {
		return nil
	}
	name, ok := call.Fn.(*ir.Name)
	if !ok {
		return nil
	}
	fn, ok := inl.candidates[name.Ident]
	if !ok || len(args) != len(fn.Params) {
		return nil
	}
	// Arguments evaluated more than once in the body must be cheap,
	// otherwise inlining duplicates work instead of removing a call.
	ret := fn.Body[0].(*ir.Return)
	budget := inl.ann.InlineBudget
	if inLoop {
		budget *= 2
	}
	if exprCost(ret.Value) > budget {
		return nil
	}
	bind := map[string]ir.Expr{}
	for i, p := range fn.Params {
		if nameUses(ret.Value, p.Name) > 1 && exprCost(args[i]) > 1 {
			return nil
		}
		bind[p.Name] = args[i]
	}
	return cloneSubst(ret.Value, bind, call.IDVal)
}

// cloneSubst clones the callee expression substituting parameter names
// with caller argument expressions. The root keeps the call's NodeID so
// the result type stays attached; interior callee nodes carry no ID,
// their types belong to the callee's side table.
func cloneSubst(x ir.Expr, bind map[string]ir.Expr, id ir.NodeID) ir.Expr {
	switch ex := x.(type) {
	case *ir.Name:
		if arg, ok := bind[ex.Ident]; ok {
			return arg
		}
		return &ir.Name{IDVal: id, SpanVal: ex.SpanVal, Ident: ex.Ident}
	case *ir.IntLit:
		return &ir.IntLit{IDVal: id, SpanVal: ex.SpanVal, Value: ex.Value}
	case *ir.FloatLit:
		return &ir.FloatLit{IDVal: id, SpanVal: ex.SpanVal, Value: ex.Value}
	case *ir.BoolLit:
		return &ir.BoolLit{IDVal: id, SpanVal: ex.SpanVal, Value: ex.Value}
	case *ir.StrLit:
		return &ir.StrLit{IDVal: id, SpanVal: ex.SpanVal, Value: ex.Value}
	case *ir.NoneLit:
		return &ir.NoneLit{IDVal: id, SpanVal: ex.SpanVal}
	case *ir.Binary:
		return &ir.Binary{IDVal: id, SpanVal: ex.SpanVal, Op: ex.Op,
			Left:  cloneSubst(ex.Left, bind, ir.NoID),
			Right: cloneSubst(ex.Right, bind, ir.NoID)}
	case *ir.Unary:
		return &ir.Unary{IDVal: id, SpanVal: ex.SpanVal, Op: ex.Op,
			Operand: cloneSubst(ex.Operand, bind, ir.NoID)}
	case *ir.Call:
		args := make([]ir.Expr, len(ex.Args))
		for i, a := range ex.Args {
			args[i] = cloneSubst(a, bind, ir.NoID)
		}
		return &ir.Call{IDVal: id, SpanVal: ex.SpanVal,
			Fn: cloneSubst(ex.Fn, bind, ir.NoID), Args: args}
	case *ir.Index:
		return &ir.Index{IDVal: id, SpanVal: ex.SpanVal,
			Object: cloneSubst(ex.Object, bind, ir.NoID),
			Key:    cloneSubst(ex.Key, bind, ir.NoID)}
	case *ir.Attribute:
		return &ir.Attribute{IDVal: id, SpanVal: ex.SpanVal,
			Object: cloneSubst(ex.Object, bind, ir.NoID), Attr: ex.Attr}
	case *ir.CondExpr:
		return &ir.CondExpr{IDVal: id, SpanVal: ex.SpanVal,
			Cond: cloneSubst(ex.Cond, bind, ir.NoID),
			Then: cloneSubst(ex.Then, bind, ir.NoID),
			Else: cloneSubst(ex.Else, bind, ir.NoID)}
	case *ir.TupleLit:
		elems := make([]ir.Expr, len(ex.Elems))
		for i, el := range ex.Elems {
			elems[i] = cloneSubst(el, bind, ir.NoID)
		}
		return &ir.TupleLit{IDVal: id, SpanVal: ex.SpanVal, Elems: elems}
	default:
		// Comprehensions and container literals with their own binding
		// scopes never pass the cost gate; keep the call instead.
		return x
	}
}

func exprCost(x ir.Expr) int {
	cost := 0
	ir.WalkExpr(x, func(ir.Expr) { cost++ })
	return cost
}

func nameUses(x ir.Expr, name string) int {
	uses := 0
	ir.WalkExpr(x, func(e ir.Expr) {
		if n, ok := e.(*ir.Name); ok && n.Ident == name {
			uses++
		}
	})
	return uses
}

func callsName(x ir.Expr, name string) bool {
	found := false
	ir.WalkExpr(x, func(e ir.Expr) {
		if c, ok := e.(*ir.Call); ok {
			if n, ok := c.Fn.(*ir.Name); ok && n.Ident == name {
				found = true
			}
		}
	})
	return found
}
