package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/infer"
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (f *fungen) expr(x ir.Expr) (string, error) {
	switch ex := x.(type) {
	case *ir.IntLit:
		return strconv.FormatInt(ex.Value, 10), nil

	case *ir.FloatLit:
		return floatText(ex.Value), nil

	case *ir.BoolLit:
		if ex.Value {
			return "true", nil
		}
		return "false", nil

	case *ir.StrLit:
		return quote(ex.Value) + ".to_string()", nil

	case *ir.BytesLit:
		parts := make([]string, len(ex.Value))
		for i, b := range ex.Value {
			parts[i] = strconv.Itoa(int(b))
		}
		return "vec![" + strings.Join(parts, ", ") + "]", nil

	case *ir.NoneLit:
		return "None", nil

	case *ir.Name:
		return f.nameRef(ex.Ident), nil

	case *ir.Binary:
		return f.binary(ex)

	case *ir.Unary:
		return f.unary(ex)

	case *ir.Call:
		return f.call(ex)

	case *ir.Attribute:
		return f.attribute(ex)

	case *ir.Index:
		return f.index(ex)

	case *ir.ListLit:
		elems, err := f.exprList(ex.Elems)
		if err != nil {
			return "", err
		}
		return "vec![" + strings.Join(elems, ", ") + "]", nil

	case *ir.SetLit:
		elems, err := f.exprList(ex.Elems)
		if err != nil {
			return "", err
		}
		f.g.needs.AddUse("std::collections::HashSet")
		return "HashSet::from([" + strings.Join(elems, ", ") + "])", nil

	case *ir.MapLit:
		pairs := make([]string, len(ex.Keys))
		for i := range ex.Keys {
			k, err := f.expr(ex.Keys[i])
			if err != nil {
				return "", err
			}
			v, err := f.expr(ex.Values[i])
			if err != nil {
				return "", err
			}
			pairs[i] = "(" + k + ", " + v + ")"
		}
		f.g.needs.AddUse("std::collections::HashMap")
		return "HashMap::from([" + strings.Join(pairs, ", ") + "])", nil

	case *ir.TupleLit:
		elems, err := f.exprList(ex.Elems)
		if err != nil {
			return "", err
		}
		return "(" + strings.Join(elems, ", ") + ")", nil

	case *ir.Comprehension:
		return f.comprehension(ex)

	case *ir.CondExpr:
		cond, err := f.expr(ex.Cond)
		if err != nil {
			return "", err
		}
		then, err := f.expr(ex.Then)
		if err != nil {
			return "", err
		}
		els, err := f.expr(ex.Else)
		if err != nil {
			return "", err
		}
		return "if " + cond + " { " + then + " } else { " + els + " }", nil

	default:
		return "", f.stop(diag.CatMissingLowering, "expression", x.Span(),
			"expression %T has no lowering", x)
	}
}

func (f *fungen) exprList(exprs []ir.Expr) ([]string, error) {
	out := make([]string, len(exprs))
	for i, e := range exprs {
		s, err := f.expr(e)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (f *fungen) nameRef(name string) string {
	if f.selfFields[name] {
		return "self." + name
	}
	return name
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

var rustBinOps = map[ir.BinOp]string{
	ir.OpAdd: "+", ir.OpSub: "-", ir.OpMul: "*",
	ir.OpEq: "==", ir.OpNotEq: "!=", ir.OpLt: "<", ir.OpLtEq: "<=",
	ir.OpGt: ">", ir.OpGtEq: ">=", ir.OpAnd: "&&", ir.OpOr: "||",
	ir.OpBitAnd: "&", ir.OpBitOr: "|", ir.OpBitXor: "^",
	ir.OpLShift: "<<", ir.OpRShift: ">>",
}

func (f *fungen) binary(ex *ir.Binary) (string, error) {
	switch ex.Op {
	case ir.OpIn, ir.OpNotIn:
		return f.membership(ex)
	}

	left, err := f.operand(ex.Left, ex.Op)
	if err != nil {
		return "", err
	}
	right, err := f.operand(ex.Right, ex.Op)
	if err != nil {
		return "", err
	}
	intOperands := f.typeOf(ex.Left).Kind == ir.KindInt &&
		f.typeOf(ex.Right).Kind == ir.KindInt

	switch ex.Op {
	case ir.OpDiv:
		if intOperands {
			return fmt.Sprintf("(%s as f64) / (%s as f64)", left, right), nil
		}
		return fmt.Sprintf("%s / %s", left, right), nil
	case ir.OpFloorDiv:
		if intOperands {
			return fmt.Sprintf("(%s).div_euclid(%s)", left, right), nil
		}
		return fmt.Sprintf("(%s / %s).floor()", left, right), nil
	case ir.OpMod:
		if intOperands {
			return fmt.Sprintf("(%s).rem_euclid(%s)", left, right), nil
		}
		return fmt.Sprintf("%s %% %s", left, right), nil
	case ir.OpPow:
		if intOperands {
			return fmt.Sprintf("(%s).pow((%s) as u32)", left, right), nil
		}
		return fmt.Sprintf("(%s).powf(%s)", left, right), nil
	}

	op, ok := rustBinOps[ex.Op]
	if !ok {
		return "", f.stop(diag.CatMissingLowering, "operator", ex.SpanVal,
			"operator %s has no lowering", ex.Op)
	}
	return left + " " + op + " " + right, nil
}

// operand renders one side of a binary op. String literals compared
// against an owned String render as bare &str; precedence is preserved
// by parenthesizing nested operator expressions.
func (f *fungen) operand(x ir.Expr, parent ir.BinOp) (string, error) {
	if lit, ok := x.(*ir.StrLit); ok && isComparison(parent) {
		return quote(lit.Value), nil
	}
	s, err := f.expr(x)
	if err != nil {
		return "", err
	}
	if nested, ok := x.(*ir.Binary); ok && rustBinOps[nested.Op] != "" {
		return "(" + s + ")", nil
	}
	return s, nil
}

func isComparison(op ir.BinOp) bool {
	switch op {
	case ir.OpEq, ir.OpNotEq, ir.OpLt, ir.OpLtEq, ir.OpGt, ir.OpGtEq:
		return true
	}
	return false
}

func (f *fungen) membership(ex *ir.Binary) (string, error) {
	item, err := f.expr(ex.Left)
	if err != nil {
		return "", err
	}
	container, err := f.expr(ex.Right)
	if err != nil {
		return "", err
	}
	var test string
	switch f.typeOf(ex.Right).Kind {
	case ir.KindMap:
		test = fmt.Sprintf("%s.contains_key(&%s)", container, item)
	case ir.KindStr:
		if lit, ok := ex.Left.(*ir.StrLit); ok {
			test = fmt.Sprintf("%s.contains(%s)", container, quote(lit.Value))
		} else {
			test = fmt.Sprintf("%s.contains(&%s)", container, item)
		}
	default:
		test = fmt.Sprintf("%s.contains(&%s)", container, item)
	}
	if ex.Op == ir.OpNotIn {
		return "!" + test, nil
	}
	return test, nil
}

func (f *fungen) unary(ex *ir.Unary) (string, error) {
	operand, err := f.expr(ex.Operand)
	if err != nil {
		return "", err
	}
	switch ex.Op {
	case ir.OpNeg:
		return "-(" + operand + ")", nil
	case ir.OpPos:
		return operand, nil
	case ir.OpNot, ir.OpBitNot:
		return "!(" + operand + ")", nil
	}
	return "", f.stop(diag.CatMissingLowering, "operator", ex.SpanVal,
		"unary operator has no lowering")
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func (f *fungen) call(ex *ir.Call) (string, error) {
	if f.types != nil && f.types.CallKinds[ex.IDVal] == infer.CallCapability {
		return "", f.stop(diag.CatMissingLowering, "dynamic-call", ex.SpanVal,
			"call target resolves only through a capability; no static lowering")
	}

	switch fn := ex.Fn.(type) {
	case *ir.Name:
		return f.namedCall(ex, fn.Ident)
	case *ir.Attribute:
		return f.methodCall(ex, fn)
	default:
		return "", f.stop(diag.CatMissingLowering, "indirect-call", ex.SpanVal,
			"indirect call through %T has no lowering", ex.Fn)
	}
}

func (f *fungen) namedCall(ex *ir.Call, name string) (string, error) {
	// Member imported via `from module import name`.
	if module, ok := f.g.items[name]; ok {
		return f.mappedCall(ex, module, "", name, "")
	}
	if isBuiltinName(name) {
		return f.builtinCall(ex, name)
	}
	if f.g.mod != nil && f.g.mod.ClassByName(name) != nil {
		args, err := f.exprList(ex.Args)
		if err != nil {
			return "", err
		}
		return name + "::new(" + strings.Join(args, ", ") + ")", nil
	}
	args, err := f.callArgs(ex, name)
	if err != nil {
		return "", err
	}
	return name + "(" + strings.Join(args, ", ") + ")", nil
}

func (f *fungen) methodCall(ex *ir.Call, attr *ir.Attribute) (string, error) {
	// Imported module member: math.sqrt(x).
	if obj, ok := attr.Object.(*ir.Name); ok && !f.selfFields[obj.Ident] {
		if module, found := f.g.modules[obj.Ident]; found {
			return f.mappedCall(ex, module, "", attr.Attr, "")
		}
	}

	recv, err := f.expr(attr.Object)
	if err != nil {
		return "", err
	}
	recvType := f.typeOf(attr.Object)

	if recvType.Kind == ir.KindNamed {
		key := recvType.Name + "." + attr.Attr
		args, err := f.callArgs(ex, key)
		if err != nil {
			return "", err
		}
		return recv + "." + attr.Attr + "(" + strings.Join(args, ", ") + ")", nil
	}

	if class := builtinClassName(recvType); class != "" {
		return f.mappedCall(ex, "", class, attr.Attr, recv)
	}

	return "", f.stop(diag.CatMissingLowering, "method-call", ex.SpanVal,
		"method %s on %s has no lowering", attr.Attr, recvType)
}

// mappedCall lowers through the library-mapping registry; a miss means
// the reference is unsupported.
func (f *fungen) mappedCall(ex *ir.Call, module, class, member, recv string) (string, error) {
	pattern, ok := f.g.reg.Lookup(module, class, member)
	if !ok {
		ref := member
		if module != "" {
			ref = module + "." + member
		} else if class != "" {
			ref = class + "." + member
		}
		return "", f.stop(diag.CatMissingLowering, "library-reference", ex.SpanVal,
			"no lowering pattern registered for %s", ref)
	}
	args := make([]string, len(ex.Args))
	for i, a := range ex.Args {
		s, err := f.patternArg(a)
		if err != nil {
			return "", err
		}
		args[i] = s
	}
	f.g.needs.Record(pattern)
	return pattern.Apply(recv, args), nil
}

// patternArg renders an argument for a mapping pattern; string literals
// stay borrowed, the common shape the patterns expect.
func (f *fungen) patternArg(x ir.Expr) (string, error) {
	if lit, ok := x.(*ir.StrLit); ok {
		return quote(lit.Value), nil
	}
	return f.expr(x)
}

// callArgs renders arguments for a call to a module function or method,
// applying the callee's parameter modes and any call-site borrow markers.
func (f *fungen) callArgs(ex *ir.Call, calleeKey string) ([]string, error) {
	modes, types := f.g.calleeModes(calleeKey)
	out := make([]string, len(ex.Args))
	for i, a := range ex.Args {
		s, err := f.expr(a)
		if err != nil {
			return nil, err
		}
		if f.own != nil && f.own.BorrowMarks[a.ID()] == ir.ExclusiveBorrow {
			out[i] = "&mut " + s
			continue
		}
		if modes == nil || i >= len(modes) {
			out[i] = s
			continue
		}
		argType := f.typeOf(a)
		if argType.IsUnknown() && types[i] != nil {
			argType = types[i]
		}
		switch modes[i] {
		case ir.SharedBorrow:
			if argType.IsCopy() {
				out[i] = s
			} else {
				out[i] = "&" + s
			}
		case ir.ExclusiveBorrow:
			out[i] = "&mut " + s
		case ir.Clone:
			if argType.IsCopy() {
				out[i] = s
			} else {
				out[i] = s + ".clone()"
			}
		default:
			out[i] = s
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Attribute and index access
// ---------------------------------------------------------------------------

func (f *fungen) attribute(ex *ir.Attribute) (string, error) {
	if obj, ok := ex.Object.(*ir.Name); ok {
		if module, found := f.g.modules[obj.Ident]; found {
			pattern, ok := f.g.reg.Lookup(module, "", ex.Attr)
			if !ok {
				return "", f.stop(diag.CatMissingLowering, "library-reference",
					ex.SpanVal, "no lowering pattern registered for %s.%s",
					module, ex.Attr)
			}
			f.g.needs.Record(pattern)
			return pattern.Apply("", nil), nil
		}
	}
	obj, err := f.expr(ex.Object)
	if err != nil {
		return "", err
	}
	return obj + "." + ex.Attr, nil
}

func (f *fungen) index(ex *ir.Index) (string, error) {
	obj, err := f.expr(ex.Object)
	if err != nil {
		return "", err
	}
	objType := f.typeOf(ex.Object)

	if objType.Kind == ir.KindTuple {
		if lit, ok := ex.Key.(*ir.IntLit); ok {
			return fmt.Sprintf("%s.%d", obj, lit.Value), nil
		}
		return "", f.stop(diag.CatMissingLowering, "tuple-index", ex.SpanVal,
			"tuple index must be a constant")
	}

	key, err := f.expr(ex.Key)
	if err != nil {
		return "", err
	}
	switch objType.Kind {
	case ir.KindMap:
		if objType.Elems[1].IsCopy() {
			return fmt.Sprintf("%s[&%s]", obj, key), nil
		}
		return fmt.Sprintf("%s[&%s].clone()", obj, key), nil
	case ir.KindStr:
		return fmt.Sprintf("%s.chars().nth((%s) as usize).unwrap().to_string()",
			obj, key), nil
	default:
		if f.ann.Bounds == ir.BoundsExplicit {
			elem := objType.Elem()
			if elem.IsCopy() {
				return fmt.Sprintf("*%s.get((%s) as usize).expect(\"index out of range\")",
					obj, key), nil
			}
			return fmt.Sprintf("%s.get((%s) as usize).expect(\"index out of range\").clone()",
				obj, key), nil
		}
		return fmt.Sprintf("%s[(%s) as usize]", obj, key), nil
	}
}

// ---------------------------------------------------------------------------
// Comprehensions
// ---------------------------------------------------------------------------

func (f *fungen) comprehension(ex *ir.Comprehension) (string, error) {
	src, err := f.comprehensionSource(ex.Iter)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(src)
	if ex.Cond != nil {
		cond, err := f.expr(ex.Cond)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, ".filter(|%s| %s)", ex.Target, cond)
	}
	switch ex.Kind {
	case ir.DictComp:
		key, err := f.expr(ex.Key)
		if err != nil {
			return "", err
		}
		val, err := f.expr(ex.Value)
		if err != nil {
			return "", err
		}
		f.g.needs.AddUse("std::collections::HashMap")
		fmt.Fprintf(&b, ".map(|%s| (%s, %s)).collect::<HashMap<_, _>>()",
			ex.Target, key, val)
	case ir.SetComp:
		val, err := f.expr(ex.Value)
		if err != nil {
			return "", err
		}
		f.g.needs.AddUse("std::collections::HashSet")
		fmt.Fprintf(&b, ".map(|%s| %s).collect::<HashSet<_>>()", ex.Target, val)
	default:
		val, err := f.expr(ex.Value)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, ".map(|%s| %s).collect::<Vec<_>>()", ex.Target, val)
	}
	return b.String(), nil
}

func (f *fungen) comprehensionSource(iter ir.Expr) (string, error) {
	if rng, ok := rangeCall(iter); ok {
		spec, err := f.rangeSpec(rng)
		if err != nil {
			return "", err
		}
		return "(" + spec + ")", nil
	}
	src, err := f.expr(iter)
	if err != nil {
		return "", err
	}
	return src + ".iter().cloned()", nil
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

var builtinNames = map[string]bool{
	"len": true, "print": true, "range": true, "str": true, "int": true,
	"float": true, "bool": true, "abs": true, "min": true, "max": true,
	"sum": true, "sorted": true, "list": true, "set": true, "dict": true,
}

func isBuiltinName(name string) bool { return builtinNames[name] }

func (f *fungen) builtinCall(ex *ir.Call, name string) (string, error) {
	args, err := f.exprList(ex.Args)
	if err != nil {
		return "", err
	}
	argType := func(i int) *ir.Type {
		if i < len(ex.Args) {
			return f.typeOf(ex.Args[i])
		}
		return ir.Unknown
	}

	switch name {
	case "len":
		return "(" + args[0] + ").len() as i64", nil

	case "print":
		if len(args) == 0 {
			return `println!()`, nil
		}
		specs := make([]string, len(args))
		for i := range args {
			if displayable(argType(i)) {
				specs[i] = "{}"
			} else {
				specs[i] = "{:?}"
			}
		}
		return fmt.Sprintf("println!(%s, %s)",
			quote(strings.Join(specs, " ")), strings.Join(args, ", ")), nil

	case "range":
		spec, err := f.rangeSpec(ex)
		if err != nil {
			return "", err
		}
		return "(" + spec + ").collect::<Vec<i64>>()", nil

	case "str":
		if displayable(argType(0)) {
			return fmt.Sprintf("format!(\"{}\", %s)", args[0]), nil
		}
		return fmt.Sprintf("format!(\"{:?}\", %s)", args[0]), nil

	case "int":
		if argType(0).Kind == ir.KindStr {
			return fmt.Sprintf("%s.parse::<i64>().unwrap()", args[0]), nil
		}
		return fmt.Sprintf("(%s) as i64", args[0]), nil

	case "float":
		if argType(0).Kind == ir.KindStr {
			return fmt.Sprintf("%s.parse::<f64>().unwrap()", args[0]), nil
		}
		return fmt.Sprintf("(%s) as f64", args[0]), nil

	case "bool":
		switch argType(0).Kind {
		case ir.KindBool:
			return args[0], nil
		case ir.KindInt:
			return fmt.Sprintf("(%s) != 0", args[0]), nil
		case ir.KindFloat:
			return fmt.Sprintf("(%s) != 0.0", args[0]), nil
		case ir.KindStr:
			return fmt.Sprintf("!%s.is_empty()", args[0]), nil
		}
		return "", f.stop(diag.CatMissingLowering, "builtin", ex.SpanVal,
			"bool() on %s has no lowering", argType(0))

	case "abs":
		return fmt.Sprintf("(%s).abs()", args[0]), nil

	case "min", "max":
		method := strings.ToLower(name)
		if len(args) == 1 {
			return fmt.Sprintf("%s.iter().cloned().%s().unwrap()", args[0], method), nil
		}
		if argType(0).Kind == ir.KindFloat || argType(1).Kind == ir.KindFloat {
			return fmt.Sprintf("(%s).%s(%s)", args[0], method, args[1]), nil
		}
		return fmt.Sprintf("std::cmp::%s(%s, %s)", method, args[0], args[1]), nil

	case "sum":
		elem := argType(0).Elem()
		if rt, err := f.g.rustType(elem); err == nil && !elem.IsUnknown() {
			return fmt.Sprintf("%s.iter().sum::<%s>()", args[0], rt), nil
		}
		return fmt.Sprintf("%s.iter().sum()", args[0]), nil

	case "sorted":
		return fmt.Sprintf("{ let mut v = %s.clone(); v.sort(); v }", args[0]), nil

	case "list":
		if len(args) == 0 {
			return "Vec::new()", nil
		}
		return fmt.Sprintf("%s.iter().cloned().collect::<Vec<_>>()", args[0]), nil

	case "set":
		f.g.needs.AddUse("std::collections::HashSet")
		if len(args) == 0 {
			return "HashSet::new()", nil
		}
		return fmt.Sprintf("%s.iter().cloned().collect::<HashSet<_>>()", args[0]), nil

	case "dict":
		f.g.needs.AddUse("std::collections::HashMap")
		return "HashMap::new()", nil
	}

	return "", f.stop(diag.CatMissingLowering, "builtin", ex.SpanVal,
		"builtin %s has no lowering", name)
}

// builtinClassName names the mapping-table class for a builtin container
// or string receiver.
func builtinClassName(t *ir.Type) string {
	switch t.Kind {
	case ir.KindStr:
		return "str"
	case ir.KindList:
		return "list"
	case ir.KindMap:
		return "dict"
	case ir.KindSet:
		return "set"
	}
	return ""
}

func displayable(t *ir.Type) bool {
	switch t.Kind {
	case ir.KindInt, ir.KindFloat, ir.KindBool, ir.KindStr:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Literal helpers
// ---------------------------------------------------------------------------

func quote(s string) string { return strconv.Quote(s) }

func floatText(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
