package bridge

import (
	"fmt"
	"strconv"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Tree bridge: parse tree -> ir.Module
// ---------------------------------------------------------------------------

// Result carries the bridge output: the module (with any failed functions
// or classes omitted) and every diagnostic produced along the way.
type Result struct {
	Module      *ir.Module
	Diagnostics []*diag.Diagnostic
}

// dynamicAttrProtocols are method names that implement the dynamic
// attribute protocol, which is declared out of scope.
var dynamicAttrProtocols = map[string]bool{
	"__getattr__":      true,
	"__setattr__":      true,
	"__getattribute__": true,
	"__delattr__":      true,
}

// dynamicExecNames are callables that execute code at runtime.
var dynamicExecNames = map[string]bool{
	"exec":    true,
	"eval":    true,
	"compile": true,
}

// Build converts an external parse tree plus directive comments into an
// ir.Module. A function or class that uses an out-of-scope construct is
// dropped with a diagnostic; the rest of the module survives. Build only
// returns an error when the root is not a module node.
func Build(tree *ParseTree, dirs Directives) (*Result, error) {
	if tree == nil || tree.Kind != "module" {
		return nil, fmt.Errorf("bridge: root node must have kind \"module\", got %q", nodeKind(tree))
	}

	b := &builder{r: diag.NewReporter(diag.StageBridge)}
	moduleAnn := ParseDirectives(dirs.Module, ir.DefaultAnnotations(), b.r)

	mod := &ir.Module{
		SpanVal: b.span(tree),
		Name:    tree.Value,
		Ann:     moduleAnn,
	}

	for _, child := range tree.Children {
		switch child.Kind {
		case "import":
			mod.Imports = append(mod.Imports, b.convertImport(child))
		case "def":
			ann := ParseDirectives(dirs.ByFunc[child.Value], moduleAnn, b.r)
			fn, err := b.convertFunction(child, "", ann)
			if err == nil {
				mod.Functions = append(mod.Functions, fn)
			}
		case "class":
			ann := ParseDirectives(dirs.ByClass[child.Value], moduleAnn, b.r)
			cls, err := b.convertClass(child, ann, dirs)
			if err == nil {
				mod.Classes = append(mod.Classes, cls)
			}
		default:
			b.r.Errorf(diag.CatUnsupportedConstruct, child.Kind, b.span(child),
				"unsupported top-level construct %q", child.Kind)
		}
	}

	return &Result{Module: mod, Diagnostics: b.r.Diagnostics()}, nil
}

func nodeKind(t *ParseTree) string {
	if t == nil {
		return "<nil>"
	}
	return t.Kind
}

type builder struct {
	nextID ir.NodeID
	r      *diag.Reporter
}

func (b *builder) id() ir.NodeID {
	id := b.nextID
	b.nextID++
	return id
}

func (b *builder) span(t *ParseTree) ir.Span {
	pos := ir.Position{Line: t.Line, Column: t.Col}
	return ir.Span{Start: pos, End: pos}
}

// fail records an unsupported-construct diagnostic and returns it as the
// per-function fatal error.
func (b *builder) fail(t *ParseTree, construct, format string, args ...interface{}) error {
	return b.r.Errorf(diag.CatUnsupportedConstruct, construct, b.span(t), format, args...)
}

func (b *builder) convertImport(t *ParseTree) ir.Import {
	imp := ir.Import{
		SpanVal: b.span(t),
		Module:  t.Value,
		Alias:   t.Attr("alias"),
	}
	for _, c := range t.Children {
		if c.Kind == "name" {
			imp.Items = append(imp.Items, c.Value)
		}
	}
	return imp
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func (b *builder) convertFunction(t *ParseTree, receiver string, ann *ir.Annotations) (*ir.Function, error) {
	fn := &ir.Function{
		SpanVal:  b.span(t),
		Name:     t.Value,
		Doc:      t.Attr("doc"),
		Receiver: receiver,
		Ann:      ann,
		Ret:      ResolveHint(t.Attr("returns")),
	}

	if receiver != "" && dynamicAttrProtocols[fn.Name] {
		return nil, b.fail(t, "dynamic-attribute-protocol",
			"method %q implements the dynamic attribute protocol, which is out of scope", fn.Name)
	}

	if params := t.Child("params"); params != nil {
		for _, p := range params.Children {
			if receiver != "" && p.Value == "self" {
				continue // implicit receiver
			}
			fn.Params = append(fn.Params, ir.Param{
				Name: p.Value,
				Type: ResolveHint(p.Attr("type")),
				Mode: ir.ModeUnresolved,
			})
		}
	}

	body := t.Child("body")
	if body == nil {
		return nil, b.fail(t, "def", "function %q has no body", fn.Name)
	}
	stmts, err := b.convertStmts(body.Children)
	if err != nil {
		return nil, err
	}
	fn.Body = stmts
	fn.MaySuspend = containsYield(fn.Body)
	fn.Pure = syntacticallyPure(fn.Body)
	fn.Terminates = !containsWhile(fn.Body)
	return fn, nil
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

func (b *builder) convertClass(t *ParseTree, ann *ir.Annotations, dirs Directives) (*ir.Class, error) {
	if t.Attr("metaclass") != "" {
		return nil, b.fail(t, "metaclass",
			"class %q declares a metaclass, which is out of scope", t.Value)
	}
	bases := splitTopLevel(t.Attr("base"))
	if len(bases) == 1 && bases[0] == "" {
		bases = nil
	}
	if len(bases) > 1 {
		return nil, b.fail(t, "multiple-inheritance",
			"class %q has %d bases; only single inheritance is supported", t.Value, len(bases))
	}

	cls := &ir.Class{
		SpanVal:   b.span(t),
		Name:      t.Value,
		Doc:       t.Attr("doc"),
		Dataclass: t.Attr("dataclass") == "true",
		Ann:       ann,
	}
	if len(bases) == 1 {
		cls.Base = bases[0]
	}

	// Field inference strategy depends on the class flavor: dataclass-like
	// classes declare annotated fields directly; plain classes get their
	// fields from self assignments in __init__.
	if cls.Dataclass {
		for _, c := range t.Children {
			if c.Kind == "field" {
				cls.Fields = append(cls.Fields, ir.Field{
					Name: c.Value,
					Type: ResolveHint(c.Attr("type")),
				})
			}
		}
	}

	for _, c := range t.Children {
		if c.Kind != "def" {
			continue
		}
		mann := ParseDirectives(dirs.ByFunc[c.Value], ann, b.r)
		m, err := b.convertFunction(c, cls.Name, mann)
		if err != nil {
			// Per-function failure: the class keeps its other methods.
			continue
		}
		cls.Methods = append(cls.Methods, m)
		if !cls.Dataclass && m.Name == "__init__" {
			cls.Fields = append(cls.Fields, inferInitFields(m)...)
		}
	}
	return cls, nil
}

// inferInitFields extracts fields from self.<name> assignments in __init__.
func inferInitFields(init *ir.Function) []ir.Field {
	var fields []ir.Field
	seen := map[string]bool{}
	for _, stmt := range init.Body {
		assign, ok := stmt.(*ir.Assign)
		if !ok {
			continue
		}
		attr, ok := assign.Target.(*ir.Attribute)
		if !ok {
			continue
		}
		if obj, ok := attr.Object.(*ir.Name); !ok || obj.Ident != "self" {
			continue
		}
		if seen[attr.Attr] {
			continue
		}
		seen[attr.Attr] = true
		ft := ir.Unknown
		if assign.Hint != nil {
			ft = assign.Hint
		}
		fields = append(fields, ir.Field{Name: attr.Attr, Type: ft})
	}
	return fields
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (b *builder) convertStmts(nodes []*ParseTree) ([]ir.Stmt, error) {
	stmts := make([]ir.Stmt, 0, len(nodes))
	for _, n := range nodes {
		s, err := b.convertStmt(n)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func (b *builder) convertStmt(t *ParseTree) (ir.Stmt, error) {
	switch t.Kind {
	case "assign":
		if len(t.Children) != 2 {
			return nil, b.fail(t, "assign", "assignment needs target and value")
		}
		target, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		value, err := b.convertExpr(t.Children[1])
		if err != nil {
			return nil, err
		}
		var hint *ir.Type
		if h := t.Attr("type"); h != "" {
			hint = ResolveHint(h)
		}
		return &ir.Assign{SpanVal: b.span(t), Target: target, Value: value, Hint: hint}, nil

	case "if":
		if len(t.Children) == 0 {
			return nil, b.fail(t, "if", "if statement has no condition")
		}
		cond, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		var then, els []ir.Stmt
		if tb := t.Child("then"); tb != nil {
			if then, err = b.convertStmts(tb.Children); err != nil {
				return nil, err
			}
		}
		if eb := t.Child("else"); eb != nil {
			if els, err = b.convertStmts(eb.Children); err != nil {
				return nil, err
			}
		}
		return &ir.If{SpanVal: b.span(t), Cond: cond, Then: then, Else: els}, nil

	case "while":
		if len(t.Children) == 0 {
			return nil, b.fail(t, "while", "while statement has no condition")
		}
		cond, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		var body []ir.Stmt
		if bb := t.Child("body"); bb != nil {
			if body, err = b.convertStmts(bb.Children); err != nil {
				return nil, err
			}
		}
		return &ir.While{SpanVal: b.span(t), Cond: cond, Body: body}, nil

	case "for":
		if len(t.Children) == 0 {
			return nil, b.fail(t, "for", "for statement has no iterable")
		}
		iter, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		var body []ir.Stmt
		if bb := t.Child("body"); bb != nil {
			if body, err = b.convertStmts(bb.Children); err != nil {
				return nil, err
			}
		}
		return &ir.For{
			SpanVal: b.span(t),
			BindID:  b.id(),
			Target:  t.Value,
			Iter:    iter,
			Body:    body,
		}, nil

	case "return":
		var value ir.Expr
		if len(t.Children) > 0 {
			var err error
			if value, err = b.convertExpr(t.Children[0]); err != nil {
				return nil, err
			}
		}
		return &ir.Return{SpanVal: b.span(t), Value: value}, nil

	case "raise":
		var value ir.Expr
		if len(t.Children) > 0 {
			var err error
			if value, err = b.convertExpr(t.Children[0]); err != nil {
				return nil, err
			}
		}
		return &ir.Raise{SpanVal: b.span(t), Value: value}, nil

	case "yield":
		if len(t.Children) == 0 {
			return nil, b.fail(t, "yield", "bare yield without a value is unsupported")
		}
		value, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		return &ir.Yield{SpanVal: b.span(t), Value: value}, nil

	case "expr":
		if len(t.Children) != 1 {
			return nil, b.fail(t, "expr", "expression statement needs one child")
		}
		e, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		return &ir.ExprStmt{SpanVal: b.span(t), Expr: e}, nil

	case "with":
		if len(t.Children) == 0 {
			return nil, b.fail(t, "with", "with statement has no context expression")
		}
		ctx, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		var body []ir.Stmt
		if bb := t.Child("body"); bb != nil {
			if body, err = b.convertStmts(bb.Children); err != nil {
				return nil, err
			}
		}
		return &ir.With{SpanVal: b.span(t), Context: ctx, Target: t.Value, Body: body}, nil

	case "pass":
		return &ir.Pass{SpanVal: b.span(t)}, nil
	case "break":
		return &ir.Break{SpanVal: b.span(t)}, nil
	case "continue":
		return &ir.Continue{SpanVal: b.span(t)}, nil

	case "global", "nonlocal":
		return nil, b.fail(t, t.Kind, "%s declarations are out of scope", t.Kind)

	default:
		return nil, b.fail(t, t.Kind, "unsupported statement kind %q", t.Kind)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binOps = map[string]ir.BinOp{
	"+": ir.OpAdd, "-": ir.OpSub, "*": ir.OpMul, "/": ir.OpDiv,
	"//": ir.OpFloorDiv, "%": ir.OpMod, "**": ir.OpPow,
	"==": ir.OpEq, "!=": ir.OpNotEq, "<": ir.OpLt, "<=": ir.OpLtEq,
	">": ir.OpGt, ">=": ir.OpGtEq, "and": ir.OpAnd, "or": ir.OpOr,
	"&": ir.OpBitAnd, "|": ir.OpBitOr, "^": ir.OpBitXor,
	"<<": ir.OpLShift, ">>": ir.OpRShift, "in": ir.OpIn, "not in": ir.OpNotIn,
}

var unOps = map[string]ir.UnOp{
	"-": ir.OpNeg, "+": ir.OpPos, "not": ir.OpNot, "~": ir.OpBitNot,
}

func (b *builder) convertExpr(t *ParseTree) (ir.Expr, error) {
	switch t.Kind {
	case "int":
		v, err := strconv.ParseInt(t.Value, 0, 64)
		if err != nil {
			return nil, b.fail(t, "int", "integer literal %q out of range", t.Value)
		}
		return &ir.IntLit{IDVal: b.id(), SpanVal: b.span(t), Value: v}, nil

	case "float":
		v, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			return nil, b.fail(t, "float", "malformed float literal %q", t.Value)
		}
		return &ir.FloatLit{IDVal: b.id(), SpanVal: b.span(t), Value: v}, nil

	case "str":
		return &ir.StrLit{IDVal: b.id(), SpanVal: b.span(t), Value: t.Value}, nil

	case "bytes":
		return &ir.BytesLit{IDVal: b.id(), SpanVal: b.span(t), Value: []byte(t.Value)}, nil

	case "bool":
		return &ir.BoolLit{IDVal: b.id(), SpanVal: b.span(t), Value: t.Value == "true"}, nil

	case "none":
		return &ir.NoneLit{IDVal: b.id(), SpanVal: b.span(t)}, nil

	case "name":
		return &ir.Name{IDVal: b.id(), SpanVal: b.span(t), Ident: t.Value}, nil

	case "binop":
		op, ok := binOps[t.Value]
		if !ok {
			return nil, b.fail(t, "binop", "unknown binary operator %q", t.Value)
		}
		if len(t.Children) != 2 {
			return nil, b.fail(t, "binop", "binary operation needs two operands")
		}
		left, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := b.convertExpr(t.Children[1])
		if err != nil {
			return nil, err
		}
		return &ir.Binary{IDVal: b.id(), SpanVal: b.span(t), Op: op, Left: left, Right: right}, nil

	case "unop":
		op, ok := unOps[t.Value]
		if !ok {
			return nil, b.fail(t, "unop", "unknown unary operator %q", t.Value)
		}
		if len(t.Children) != 1 {
			return nil, b.fail(t, "unop", "unary operation needs one operand")
		}
		operand, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		return &ir.Unary{IDVal: b.id(), SpanVal: b.span(t), Op: op, Operand: operand}, nil

	case "call":
		if len(t.Children) == 0 {
			return nil, b.fail(t, "call", "call has no callee")
		}
		if name := t.Children[0]; name.Kind == "name" && dynamicExecNames[name.Value] {
			return nil, b.fail(t, "dynamic-execution",
				"call to %q executes code dynamically, which is out of scope", name.Value)
		}
		fn, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		args := make([]ir.Expr, 0, len(t.Children)-1)
		for _, c := range t.Children[1:] {
			a, err := b.convertExpr(c)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		return &ir.Call{IDVal: b.id(), SpanVal: b.span(t), Fn: fn, Args: args}, nil

	case "attr":
		if len(t.Children) != 1 {
			return nil, b.fail(t, "attr", "attribute access needs an object")
		}
		obj, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		return &ir.Attribute{IDVal: b.id(), SpanVal: b.span(t), Object: obj, Attr: t.Value}, nil

	case "index":
		if len(t.Children) != 2 {
			return nil, b.fail(t, "index", "subscript needs object and key")
		}
		obj, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		key, err := b.convertExpr(t.Children[1])
		if err != nil {
			return nil, err
		}
		return &ir.Index{IDVal: b.id(), SpanVal: b.span(t), Object: obj, Key: key}, nil

	case "list", "set", "tuple":
		elems := make([]ir.Expr, 0, len(t.Children))
		for _, c := range t.Children {
			e, err := b.convertExpr(c)
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		id, span := b.id(), b.span(t)
		switch t.Kind {
		case "list":
			return &ir.ListLit{IDVal: id, SpanVal: span, Elems: elems}, nil
		case "set":
			return &ir.SetLit{IDVal: id, SpanVal: span, Elems: elems}, nil
		default:
			return &ir.TupleLit{IDVal: id, SpanVal: span, Elems: elems}, nil
		}

	case "dict":
		if len(t.Children)%2 != 0 {
			return nil, b.fail(t, "dict", "dict literal needs alternating keys and values")
		}
		var keys, values []ir.Expr
		for i := 0; i < len(t.Children); i += 2 {
			k, err := b.convertExpr(t.Children[i])
			if err != nil {
				return nil, err
			}
			v, err := b.convertExpr(t.Children[i+1])
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
			values = append(values, v)
		}
		return &ir.MapLit{IDVal: b.id(), SpanVal: b.span(t), Keys: keys, Values: values}, nil

	case "comp":
		return b.convertComp(t)

	case "ifexp":
		if len(t.Children) != 3 {
			return nil, b.fail(t, "ifexp", "conditional expression needs condition, then, else")
		}
		cond, err := b.convertExpr(t.Children[0])
		if err != nil {
			return nil, err
		}
		then, err := b.convertExpr(t.Children[1])
		if err != nil {
			return nil, err
		}
		els, err := b.convertExpr(t.Children[2])
		if err != nil {
			return nil, err
		}
		return &ir.CondExpr{IDVal: b.id(), SpanVal: b.span(t), Cond: cond, Then: then, Else: els}, nil

	case "lambda":
		return nil, b.fail(t, "lambda", "lambda expressions are out of scope")
	case "starred":
		return nil, b.fail(t, "starred", "starred expressions are out of scope")

	default:
		return nil, b.fail(t, t.Kind, "unsupported expression kind %q", t.Kind)
	}
}

func (b *builder) convertComp(t *ParseTree) (ir.Expr, error) {
	kind := ir.ListComp
	switch t.Attr("kind") {
	case "set":
		kind = ir.SetComp
	case "dict":
		kind = ir.DictComp
	}
	iterNode := t.Child("iter")
	valueNode := t.Child("value")
	if iterNode == nil || len(iterNode.Children) != 1 || valueNode == nil || len(valueNode.Children) != 1 {
		return nil, b.fail(t, "comp", "comprehension needs iter and value clauses")
	}
	iter, err := b.convertExpr(iterNode.Children[0])
	if err != nil {
		return nil, err
	}
	value, err := b.convertExpr(valueNode.Children[0])
	if err != nil {
		return nil, err
	}
	comp := &ir.Comprehension{
		IDVal:   b.id(),
		SpanVal: b.span(t),
		Kind:    kind,
		Target:  t.Value,
		Iter:    iter,
		Value:   value,
	}
	if keyNode := t.Child("key"); keyNode != nil && len(keyNode.Children) == 1 {
		if comp.Key, err = b.convertExpr(keyNode.Children[0]); err != nil {
			return nil, err
		}
	}
	if kind == ir.DictComp && comp.Key == nil {
		return nil, b.fail(t, "comp", "dict comprehension needs a key clause")
	}
	if condNode := t.Child("cond"); condNode != nil && len(condNode.Children) == 1 {
		if comp.Cond, err = b.convertExpr(condNode.Children[0]); err != nil {
			return nil, err
		}
	}
	return comp, nil
}

// ---------------------------------------------------------------------------
// Function property scans
// ---------------------------------------------------------------------------

func containsYield(stmts []ir.Stmt) bool {
	found := false
	ir.WalkStmts(stmts, func(s ir.Stmt) {
		if _, ok := s.(*ir.Yield); ok {
			found = true
		}
	})
	return found
}

func containsWhile(stmts []ir.Stmt) bool {
	found := false
	ir.WalkStmts(stmts, func(s ir.Stmt) {
		if _, ok := s.(*ir.While); ok {
			found = true
		}
	})
	return found
}

// syntacticallyPure is a conservative purity check: no calls, no raises,
// and no writes through attributes or subscripts.
func syntacticallyPure(stmts []ir.Stmt) bool {
	pure := true
	ir.WalkStmts(stmts, func(s ir.Stmt) {
		switch st := s.(type) {
		case *ir.Raise, *ir.With, *ir.Yield:
			pure = false
		case *ir.Assign:
			if _, ok := st.Target.(*ir.Name); !ok {
				pure = false
			}
			if exprHasCall(st.Value) {
				pure = false
			}
		case *ir.Return:
			if st.Value != nil && exprHasCall(st.Value) {
				pure = false
			}
		case *ir.ExprStmt:
			if exprHasCall(st.Expr) {
				pure = false
			}
		case *ir.If:
			if exprHasCall(st.Cond) {
				pure = false
			}
		case *ir.While:
			if exprHasCall(st.Cond) {
				pure = false
			}
		case *ir.For:
			if exprHasCall(st.Iter) {
				pure = false
			}
		}
	})
	return pure
}

func exprHasCall(e ir.Expr) bool {
	found := false
	ir.WalkExpr(e, func(sub ir.Expr) {
		if _, ok := sub.(*ir.Call); ok {
			found = true
		}
	})
	return found
}
