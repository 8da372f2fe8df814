package infer

import (
	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Builtin member and function signatures
// ---------------------------------------------------------------------------

// MethodSig describes a builtin method on a receiver type. Result derives
// the call's type from the resolved receiver. Mutates records whether the
// method modifies the receiver in place; the ownership resolver consults
// this when classifying parameters.
type MethodSig struct {
	Name    string
	Arity   int
	Mutates bool
	Result  func(recv *ir.Type) *ir.Type
}

func constResult(t *ir.Type) func(*ir.Type) *ir.Type {
	return func(*ir.Type) *ir.Type { return t }
}

func elemResult(recv *ir.Type) *ir.Type { return recv.Elem() }

var strMethods = map[string]MethodSig{
	"upper":      {Name: "upper", Arity: 0, Result: constResult(ir.Str)},
	"lower":      {Name: "lower", Arity: 0, Result: constResult(ir.Str)},
	"strip":      {Name: "strip", Arity: 0, Result: constResult(ir.Str)},
	"lstrip":     {Name: "lstrip", Arity: 0, Result: constResult(ir.Str)},
	"rstrip":     {Name: "rstrip", Arity: 0, Result: constResult(ir.Str)},
	"split":      {Name: "split", Arity: 1, Result: constResult(ir.ListOf(ir.Str))},
	"join":       {Name: "join", Arity: 1, Result: constResult(ir.Str)},
	"replace":    {Name: "replace", Arity: 2, Result: constResult(ir.Str)},
	"startswith": {Name: "startswith", Arity: 1, Result: constResult(ir.Bool)},
	"endswith":   {Name: "endswith", Arity: 1, Result: constResult(ir.Bool)},
	"find":       {Name: "find", Arity: 1, Result: constResult(ir.Int(64))},
	"encode":     {Name: "encode", Arity: 0, Result: constResult(ir.Bytes)},
}

var listMethods = map[string]MethodSig{
	"append":  {Name: "append", Arity: 1, Mutates: true, Result: constResult(ir.None)},
	"extend":  {Name: "extend", Arity: 1, Mutates: true, Result: constResult(ir.None)},
	"insert":  {Name: "insert", Arity: 2, Mutates: true, Result: constResult(ir.None)},
	"remove":  {Name: "remove", Arity: 1, Mutates: true, Result: constResult(ir.None)},
	"pop":     {Name: "pop", Arity: 0, Mutates: true, Result: elemResult},
	"clear":   {Name: "clear", Arity: 0, Mutates: true, Result: constResult(ir.None)},
	"sort":    {Name: "sort", Arity: 0, Mutates: true, Result: constResult(ir.None)},
	"reverse": {Name: "reverse", Arity: 0, Mutates: true, Result: constResult(ir.None)},
	"index":   {Name: "index", Arity: 1, Result: constResult(ir.Int(64))},
	"count":   {Name: "count", Arity: 1, Result: constResult(ir.Int(64))},
	"copy":    {Name: "copy", Arity: 0, Result: func(recv *ir.Type) *ir.Type { return recv }},
}

var mapMethods = map[string]MethodSig{
	"get": {Name: "get", Arity: 1, Result: func(recv *ir.Type) *ir.Type {
		if recv.Kind == ir.KindMap {
			return ir.OptionalOf(recv.Elems[1])
		}
		return ir.Unknown
	}},
	"keys": {Name: "keys", Arity: 0, Result: func(recv *ir.Type) *ir.Type {
		if recv.Kind == ir.KindMap {
			return ir.ListOf(recv.Elems[0])
		}
		return ir.ListOf(ir.Unknown)
	}},
	"values": {Name: "values", Arity: 0, Result: func(recv *ir.Type) *ir.Type {
		if recv.Kind == ir.KindMap {
			return ir.ListOf(recv.Elems[1])
		}
		return ir.ListOf(ir.Unknown)
	}},
	"items": {Name: "items", Arity: 0, Result: func(recv *ir.Type) *ir.Type {
		if recv.Kind == ir.KindMap {
			return ir.ListOf(ir.TupleOf(recv.Elems[0], recv.Elems[1]))
		}
		return ir.ListOf(ir.Unknown)
	}},
	"pop":    {Name: "pop", Arity: 1, Mutates: true, Result: func(recv *ir.Type) *ir.Type {
		if recv.Kind == ir.KindMap {
			return recv.Elems[1]
		}
		return ir.Unknown
	}},
	"update": {Name: "update", Arity: 1, Mutates: true, Result: constResult(ir.None)},
	"clear":  {Name: "clear", Arity: 0, Mutates: true, Result: constResult(ir.None)},
}

var setMethods = map[string]MethodSig{
	"add":     {Name: "add", Arity: 1, Mutates: true, Result: constResult(ir.None)},
	"remove":  {Name: "remove", Arity: 1, Mutates: true, Result: constResult(ir.None)},
	"discard": {Name: "discard", Arity: 1, Mutates: true, Result: constResult(ir.None)},
	"clear":   {Name: "clear", Arity: 0, Mutates: true, Result: constResult(ir.None)},
	"union":   {Name: "union", Arity: 1, Result: func(recv *ir.Type) *ir.Type { return recv }},
}

// LookupMethod returns the builtin method signature for a receiver type
// and member name.
func LookupMethod(recv *ir.Type, name string) (MethodSig, bool) {
	if recv == nil {
		return MethodSig{}, false
	}
	var table map[string]MethodSig
	switch recv.Kind {
	case ir.KindStr:
		table = strMethods
	case ir.KindList:
		table = listMethods
	case ir.KindMap:
		table = mapMethods
	case ir.KindSet:
		table = setMethods
	default:
		return MethodSig{}, false
	}
	sig, ok := table[name]
	return sig, ok
}

// MethodMutates reports whether calling name on a receiver of type recv
// modifies the receiver in place.
func MethodMutates(recv *ir.Type, name string) bool {
	sig, ok := LookupMethod(recv, name)
	return ok && sig.Mutates
}

// builtinResult computes the type of a call to a builtin free function,
// or nil if the name is not a builtin.
func builtinResult(name string, args []*ir.Type) *ir.Type {
	switch name {
	case "len":
		return ir.Int(64)
	case "range":
		return ir.ListOf(ir.Int(64))
	case "print":
		return ir.None
	case "str", "repr":
		return ir.Str
	case "int":
		return ir.Int(64)
	case "float":
		return ir.Float
	case "bool":
		return ir.Bool
	case "bytes":
		return ir.Bytes
	case "abs":
		if len(args) == 1 && args[0].IsNumeric() {
			return args[0]
		}
		return ir.Unknown
	case "min", "max", "sum":
		if len(args) == 1 {
			if t := args[0]; t != nil && (t.Kind == ir.KindList || t.Kind == ir.KindSet) {
				return t.Elem()
			}
		}
		if len(args) >= 2 {
			out := args[0]
			for _, a := range args[1:] {
				if joined, err := unifyTypes(out, a); err == nil {
					out = joined
				}
			}
			return out
		}
		return ir.Unknown
	case "sorted":
		if len(args) == 1 && args[0] != nil && args[0].Kind == ir.KindList {
			return args[0]
		}
		return ir.ListOf(ir.Unknown)
	case "list":
		if len(args) == 1 && args[0] != nil && len(args[0].Elems) > 0 {
			return ir.ListOf(args[0].Elem())
		}
		return ir.ListOf(ir.Unknown)
	case "set":
		if len(args) == 1 && args[0] != nil && len(args[0].Elems) > 0 {
			return ir.SetOf(args[0].Elem())
		}
		return ir.SetOf(ir.Unknown)
	case "dict":
		return ir.MapOf(ir.Unknown, ir.Unknown)
	}
	return nil
}

// isBuiltin reports whether name is a recognized builtin function.
func isBuiltin(name string) bool {
	switch name {
	case "len", "range", "print", "str", "repr", "int", "float", "bool",
		"bytes", "abs", "min", "max", "sum", "sorted", "list", "set", "dict":
		return true
	}
	return false
}
