package optimize

import (
	"math"

	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Constant folding
// ---------------------------------------------------------------------------

func foldStmts(stmts []ir.Stmt, stats *Stats) []ir.Stmt {
	out := make([]ir.Stmt, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, foldStmt(s, stats))
	}
	return out
}

func foldStmt(s ir.Stmt, stats *Stats) ir.Stmt {
	switch st := s.(type) {
	case *ir.Assign:
		return &ir.Assign{SpanVal: st.SpanVal, Target: st.Target,
			Value: foldExpr(st.Value, stats), Hint: st.Hint}
	case *ir.If:
		return &ir.If{SpanVal: st.SpanVal, Cond: foldExpr(st.Cond, stats),
			Then: foldStmts(st.Then, stats), Else: foldStmts(st.Else, stats)}
	case *ir.While:
		return &ir.While{SpanVal: st.SpanVal, Cond: foldExpr(st.Cond, stats),
			Body: foldStmts(st.Body, stats)}
	case *ir.For:
		return &ir.For{SpanVal: st.SpanVal, BindID: st.BindID, Target: st.Target,
			Iter: foldExpr(st.Iter, stats), Body: foldStmts(st.Body, stats)}
	case *ir.Return:
		if st.Value == nil {
			return st
		}
		return &ir.Return{SpanVal: st.SpanVal, Value: foldExpr(st.Value, stats)}
	case *ir.Yield:
		return &ir.Yield{SpanVal: st.SpanVal, Value: foldExpr(st.Value, stats)}
	case *ir.ExprStmt:
		return &ir.ExprStmt{SpanVal: st.SpanVal, Expr: foldExpr(st.Expr, stats)}
	case *ir.With:
		return &ir.With{SpanVal: st.SpanVal, Context: foldExpr(st.Context, stats),
			Target: st.Target, Body: foldStmts(st.Body, stats)}
	default:
		return s
	}
}

// foldExpr folds constant subtrees bottom-up. Folded nodes keep the
// original expression's NodeID so the type side table stays valid.
func foldExpr(x ir.Expr, stats *Stats) ir.Expr {
	switch ex := x.(type) {
	case *ir.Binary:
		left := foldExpr(ex.Left, stats)
		right := foldExpr(ex.Right, stats)
		if folded := foldBinary(ex, left, right); folded != nil {
			stats.Folded++
			return folded
		}
		if left != ex.Left || right != ex.Right {
			return &ir.Binary{IDVal: ex.IDVal, SpanVal: ex.SpanVal, Op: ex.Op,
				Left: left, Right: right}
		}
		return ex
	case *ir.Unary:
		operand := foldExpr(ex.Operand, stats)
		if folded := foldUnary(ex, operand); folded != nil {
			stats.Folded++
			return folded
		}
		if operand != ex.Operand {
			return &ir.Unary{IDVal: ex.IDVal, SpanVal: ex.SpanVal, Op: ex.Op, Operand: operand}
		}
		return ex
	case *ir.CondExpr:
		cond := foldExpr(ex.Cond, stats)
		if b, ok := cond.(*ir.BoolLit); ok {
			stats.Folded++
			if b.Value {
				return foldExpr(ex.Then, stats)
			}
			return foldExpr(ex.Else, stats)
		}
		return &ir.CondExpr{IDVal: ex.IDVal, SpanVal: ex.SpanVal, Cond: cond,
			Then: foldExpr(ex.Then, stats), Else: foldExpr(ex.Else, stats)}
	case *ir.Call:
		args := make([]ir.Expr, len(ex.Args))
		for i, a := range ex.Args {
			args[i] = foldExpr(a, stats)
		}
		return &ir.Call{IDVal: ex.IDVal, SpanVal: ex.SpanVal, Fn: ex.Fn, Args: args}
	default:
		return x
	}
}

func foldBinary(orig *ir.Binary, left, right ir.Expr) ir.Expr {
	li, lok := left.(*ir.IntLit)
	ri, rok := right.(*ir.IntLit)
	if lok && rok {
		return foldIntOp(orig, li.Value, ri.Value)
	}

	lf, lfok := left.(*ir.FloatLit)
	rf, rfok := right.(*ir.FloatLit)
	if lfok && rfok {
		return foldFloatOp(orig, lf.Value, rf.Value)
	}

	ls, lsok := left.(*ir.StrLit)
	rs, rsok := right.(*ir.StrLit)
	if lsok && rsok && orig.Op == ir.OpAdd {
		return &ir.StrLit{IDVal: orig.IDVal, SpanVal: orig.SpanVal, Value: ls.Value + rs.Value}
	}

	lb, lbok := left.(*ir.BoolLit)
	rb, rbok := right.(*ir.BoolLit)
	if lbok && rbok {
		switch orig.Op {
		case ir.OpAnd:
			return &ir.BoolLit{IDVal: orig.IDVal, SpanVal: orig.SpanVal, Value: lb.Value && rb.Value}
		case ir.OpOr:
			return &ir.BoolLit{IDVal: orig.IDVal, SpanVal: orig.SpanVal, Value: lb.Value || rb.Value}
		}
	}
	return nil
}

func foldIntOp(orig *ir.Binary, a, b int64) ir.Expr {
	mk := func(v int64) ir.Expr {
		return &ir.IntLit{IDVal: orig.IDVal, SpanVal: orig.SpanVal, Value: v}
	}
	mkb := func(v bool) ir.Expr {
		return &ir.BoolLit{IDVal: orig.IDVal, SpanVal: orig.SpanVal, Value: v}
	}
	switch orig.Op {
	case ir.OpAdd:
		if addOverflows(a, b) {
			return nil
		}
		return mk(a + b)
	case ir.OpSub:
		if addOverflows(a, -b) || (b == math.MinInt64) {
			return nil
		}
		return mk(a - b)
	case ir.OpMul:
		if mulOverflows(a, b) {
			return nil
		}
		return mk(a * b)
	case ir.OpFloorDiv:
		if b == 0 {
			return nil // leave the runtime error in place
		}
		return mk(floorDiv(a, b))
	case ir.OpMod:
		if b == 0 {
			return nil
		}
		return mk(a - floorDiv(a, b)*b)
	case ir.OpEq:
		return mkb(a == b)
	case ir.OpNotEq:
		return mkb(a != b)
	case ir.OpLt:
		return mkb(a < b)
	case ir.OpLtEq:
		return mkb(a <= b)
	case ir.OpGt:
		return mkb(a > b)
	case ir.OpGtEq:
		return mkb(a >= b)
	}
	return nil
}

func foldFloatOp(orig *ir.Binary, a, b float64) ir.Expr {
	mk := func(v float64) ir.Expr {
		return &ir.FloatLit{IDVal: orig.IDVal, SpanVal: orig.SpanVal, Value: v}
	}
	switch orig.Op {
	case ir.OpAdd:
		return mk(a + b)
	case ir.OpSub:
		return mk(a - b)
	case ir.OpMul:
		return mk(a * b)
	case ir.OpDiv:
		if b == 0 {
			return nil
		}
		return mk(a / b)
	}
	return nil
}

func foldUnary(orig *ir.Unary, operand ir.Expr) ir.Expr {
	switch operand := operand.(type) {
	case *ir.IntLit:
		if orig.Op == ir.OpNeg && operand.Value != math.MinInt64 {
			return &ir.IntLit{IDVal: orig.IDVal, SpanVal: orig.SpanVal, Value: -operand.Value}
		}
	case *ir.FloatLit:
		if orig.Op == ir.OpNeg {
			return &ir.FloatLit{IDVal: orig.IDVal, SpanVal: orig.SpanVal, Value: -operand.Value}
		}
	case *ir.BoolLit:
		if orig.Op == ir.OpNot {
			return &ir.BoolLit{IDVal: orig.IDVal, SpanVal: orig.SpanVal, Value: !operand.Value}
		}
	}
	return nil
}

func addOverflows(a, b int64) bool {
	s := a + b
	return (b > 0 && s < a) || (b < 0 && s > a)
}

func mulOverflows(a, b int64) bool {
	if a == 0 || b == 0 {
		return false
	}
	p := a * b
	return p/b != a
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
