package optimize

import (
	"strconv"

	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Common-subexpression elimination
// ---------------------------------------------------------------------------

// eliminateCommon hoists effect-free subexpressions that occur more than
// once within a block into fresh temporaries. Expressions mentioning a
// name assigned anywhere in the same block are never hoisted; the pass
// recurses into nested bodies so each block is treated independently.
func eliminateCommon(stmts []ir.Stmt, stats *Stats) []ir.Stmt {
	c := &cser{}
	return c.block(stmts, stats)
}

type cser struct {
	next int
}

func (c *cser) tempName() string {
	name := "_cse" + strconv.Itoa(c.next)
	c.next++
	return name
}

func (c *cser) block(stmts []ir.Stmt, stats *Stats) []ir.Stmt {
	// Names written in this block invalidate any expression over them.
	written := map[string]bool{}
	for _, s := range stmts {
		if a, ok := s.(*ir.Assign); ok {
			if n, ok := a.Target.(*ir.Name); ok {
				written[n.Ident] = true
			}
		}
		if f, ok := s.(*ir.For); ok {
			written[f.Target] = true
		}
	}

	// Count hoistable subexpressions across the block.
	counts := map[string]int{}
	first := map[string]ir.Expr{}
	for _, s := range stmts {
		forTopExprs(s, func(x ir.Expr) {
			collectCandidates(x, written, counts, first)
		})
	}

	repl := map[string]string{}
	for key, n := range counts {
		if n >= 2 {
			repl[key] = c.tempName()
		}
	}

	out := make([]ir.Stmt, 0, len(stmts))
	inserted := map[string]bool{}
	for _, s := range stmts {
		// Hoist a temp assignment before the first statement using it.
		for key, temp := range repl {
			if inserted[key] || !stmtUsesKey(s, key) {
				continue
			}
			x := first[key]
			out = append(out, &ir.Assign{
				SpanVal: x.Span(),
				Target:  &ir.Name{IDVal: ir.NoID, SpanVal: x.Span(), Ident: temp},
				Value:   x,
			})
			inserted[key] = true
			stats.CSE++
		}
		out = append(out, c.rewriteStmt(s, repl, stats))
	}
	return out
}

func (c *cser) rewriteStmt(s ir.Stmt, repl map[string]string, stats *Stats) ir.Stmt {
	sub := func(x ir.Expr) ir.Expr { return substCSE(x, repl) }
	switch st := s.(type) {
	case *ir.Assign:
		return &ir.Assign{SpanVal: st.SpanVal, Target: st.Target,
			Value: sub(st.Value), Hint: st.Hint}
	case *ir.If:
		return &ir.If{SpanVal: st.SpanVal, Cond: sub(st.Cond),
			Then: c.block(st.Then, stats), Else: c.block(st.Else, stats)}
	case *ir.While:
		return &ir.While{SpanVal: st.SpanVal, Cond: sub(st.Cond),
			Body: c.block(st.Body, stats)}
	case *ir.For:
		return &ir.For{SpanVal: st.SpanVal, BindID: st.BindID, Target: st.Target,
			Iter: sub(st.Iter), Body: c.block(st.Body, stats)}
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
			Target: st.Target, Body: c.block(st.Body, stats)}
	default:
		return s
	}
}

// substCSE replaces hoisted subexpressions with their temporary. The
// replacement Name reuses the replaced expression's NodeID so the type
// side table keeps answering for it.
func substCSE(x ir.Expr, repl map[string]string) ir.Expr {
	if key, ok := exprKey(x); ok {
		if temp, found := repl[key]; found {
			return &ir.Name{IDVal: x.ID(), SpanVal: x.Span(), Ident: temp}
		}
	}
	switch ex := x.(type) {
	case *ir.Binary:
		return &ir.Binary{IDVal: ex.IDVal, SpanVal: ex.SpanVal, Op: ex.Op,
			Left: substCSE(ex.Left, repl), Right: substCSE(ex.Right, repl)}
	case *ir.Unary:
		return &ir.Unary{IDVal: ex.IDVal, SpanVal: ex.SpanVal, Op: ex.Op,
			Operand: substCSE(ex.Operand, repl)}
	case *ir.Call:
		args := make([]ir.Expr, len(ex.Args))
		for i, a := range ex.Args {
			args[i] = substCSE(a, repl)
		}
		return &ir.Call{IDVal: ex.IDVal, SpanVal: ex.SpanVal, Fn: ex.Fn, Args: args}
	case *ir.Index:
		return &ir.Index{IDVal: ex.IDVal, SpanVal: ex.SpanVal,
			Object: substCSE(ex.Object, repl), Key: substCSE(ex.Key, repl)}
	case *ir.CondExpr:
		return &ir.CondExpr{IDVal: ex.IDVal, SpanVal: ex.SpanVal,
			Cond: substCSE(ex.Cond, repl), Then: substCSE(ex.Then, repl),
			Else: substCSE(ex.Else, repl)}
	default:
		return x
	}
}

// collectCandidates records every hoistable subexpression of x: operator
// trees over names and literals, none of whose names is written in the
// block.
func collectCandidates(x ir.Expr, written map[string]bool, counts map[string]int, first map[string]ir.Expr) {
	if key, ok := exprKey(x); ok {
		if !mentionsWritten(x, written) {
			counts[key]++
			if _, seen := first[key]; !seen {
				first[key] = x
			}
			return
		}
	}
	switch ex := x.(type) {
	case *ir.Binary:
		collectCandidates(ex.Left, written, counts, first)
		collectCandidates(ex.Right, written, counts, first)
	case *ir.Unary:
		collectCandidates(ex.Operand, written, counts, first)
	case *ir.Call:
		for _, a := range ex.Args {
			collectCandidates(a, written, counts, first)
		}
	case *ir.Index:
		collectCandidates(ex.Object, written, counts, first)
		collectCandidates(ex.Key, written, counts, first)
	case *ir.CondExpr:
		collectCandidates(ex.Cond, written, counts, first)
		collectCandidates(ex.Then, written, counts, first)
		collectCandidates(ex.Else, written, counts, first)
	}
}

// exprKey returns a stable spelling for a hoistable expression. Only
// operator trees over names and literals qualify, and the tree must
// involve at least one name; pure-literal trees were already folded.
func exprKey(x ir.Expr) (string, bool) {
	switch ex := x.(type) {
	case *ir.Binary:
		l, lok := exprKeyOrLeaf(ex.Left)
		r, rok := exprKeyOrLeaf(ex.Right)
		if lok && rok && (containsName(ex.Left) || containsName(ex.Right)) {
			return "(" + l + " " + ex.Op.String() + " " + r + ")", true
		}
	case *ir.Unary:
		inner, ok := exprKeyOrLeaf(ex.Operand)
		if ok && containsName(ex.Operand) {
			return "(un" + strconv.Itoa(int(ex.Op)) + " " + inner + ")", true
		}
	}
	return "", false
}

func exprKeyOrLeaf(x ir.Expr) (string, bool) {
	if k, ok := leafKey(x); ok {
		return k, true
	}
	return exprKey(x)
}

func leafKey(x ir.Expr) (string, bool) {
	switch ex := x.(type) {
	case *ir.Name:
		return "n:" + ex.Ident, true
	case *ir.IntLit:
		return "i:" + strconv.FormatInt(ex.Value, 10), true
	case *ir.FloatLit:
		return "f:" + strconv.FormatFloat(ex.Value, 'g', -1, 64), true
	case *ir.BoolLit:
		return "b:" + strconv.FormatBool(ex.Value), true
	case *ir.StrLit:
		return "s:" + ex.Value, true
	}
	return "", false
}

func containsName(x ir.Expr) bool {
	found := false
	ir.WalkExpr(x, func(e ir.Expr) {
		if _, ok := e.(*ir.Name); ok {
			found = true
		}
	})
	return found
}

func mentionsWritten(x ir.Expr, written map[string]bool) bool {
	found := false
	ir.WalkExpr(x, func(e ir.Expr) {
		if n, ok := e.(*ir.Name); ok && written[n.Ident] {
			found = true
		}
	})
	return found
}

// stmtUsesKey reports whether any top-level expression of s contains the
// hoisted expression.
func stmtUsesKey(s ir.Stmt, key string) bool {
	used := false
	forTopExprs(s, func(x ir.Expr) {
		ir.WalkExpr(x, func(e ir.Expr) {
			if k, ok := exprKey(e); ok && k == key {
				used = true
			}
		})
	})
	return used
}

// forTopExprs visits the expressions directly attached to a statement,
// without descending into nested statement bodies.
func forTopExprs(s ir.Stmt, visit func(ir.Expr)) {
	switch st := s.(type) {
	case *ir.Assign:
		visit(st.Value)
	case *ir.If:
		visit(st.Cond)
	case *ir.While:
		visit(st.Cond)
	case *ir.For:
		visit(st.Iter)
	case *ir.Return:
		if st.Value != nil {
			visit(st.Value)
		}
	case *ir.Yield:
		visit(st.Value)
	case *ir.ExprStmt:
		visit(st.Expr)
	case *ir.With:
		visit(st.Context)
	case *ir.Raise:
		if st.Value != nil {
			visit(st.Value)
		}
	}
}
