package ir

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Types: structural type representation
// ---------------------------------------------------------------------------

// TypeKind tags the Type variant.
type TypeKind int

const (
	// KindUnknown is the dynamic fallback for unresolved type variables.
	KindUnknown TypeKind = iota
	KindInt
	KindFloat
	KindBool
	KindStr
	KindBytes
	// KindNone is the unit type of functions with no meaningful result.
	KindNone
	KindList
	KindMap
	KindSet
	KindTuple
	KindOptional
	KindUnion
	KindFunc
	KindNamed
)

// Type is a structural type. Types are compared and unified structurally,
// never by pointer identity. A nil *Type is treated as Unknown.
type Type struct {
	Kind  TypeKind
	Width int     // bit width for KindInt: 32 or 64
	Elems []*Type // element types: List/Set/Optional (1), Map (key, value), Tuple, Union, Func args
	Ret   *Type   // KindFunc result
	Name  string  // KindNamed class name
}

// Singleton primitives. These are shared read-only values; never mutate.
var (
	Unknown = &Type{Kind: KindUnknown}
	Float   = &Type{Kind: KindFloat}
	Bool    = &Type{Kind: KindBool}
	Str     = &Type{Kind: KindStr}
	Bytes   = &Type{Kind: KindBytes}
	None    = &Type{Kind: KindNone}
)

// Int returns an integer type of the given bit width (32 or 64).
func Int(width int) *Type {
	return &Type{Kind: KindInt, Width: width}
}

// ListOf returns a sequence type.
func ListOf(elem *Type) *Type {
	return &Type{Kind: KindList, Elems: []*Type{elem}}
}

// MapOf returns a mapping type.
func MapOf(key, value *Type) *Type {
	return &Type{Kind: KindMap, Elems: []*Type{key, value}}
}

// SetOf returns a set type.
func SetOf(elem *Type) *Type {
	return &Type{Kind: KindSet, Elems: []*Type{elem}}
}

// TupleOf returns a fixed-arity tuple type.
func TupleOf(elems ...*Type) *Type {
	return &Type{Kind: KindTuple, Elems: elems}
}

// OptionalOf returns optional(t). Optionals never nest: optional(optional(t))
// collapses to optional(t).
func OptionalOf(t *Type) *Type {
	if t != nil && t.Kind == KindOptional {
		return t
	}
	return &Type{Kind: KindOptional, Elems: []*Type{t}}
}

// UnionOf returns a union of the given members.
func UnionOf(members ...*Type) *Type {
	return &Type{Kind: KindUnion, Elems: members}
}

// FuncOf returns a callable type.
func FuncOf(args []*Type, ret *Type) *Type {
	return &Type{Kind: KindFunc, Elems: args, Ret: ret}
}

// NamedOf returns a class type reference.
func NamedOf(name string) *Type {
	return &Type{Kind: KindNamed, Name: name}
}

// Elem returns the single element type of List/Set/Optional, Unknown for
// anything else.
func (t *Type) Elem() *Type {
	if t == nil || len(t.Elems) == 0 {
		return Unknown
	}
	return t.Elems[0]
}

// IsUnknown reports whether t is the dynamic fallback.
func (t *Type) IsUnknown() bool {
	return t == nil || t.Kind == KindUnknown
}

// IsNumeric reports whether t is int or float.
func (t *Type) IsNumeric() bool {
	return t != nil && (t.Kind == KindInt || t.Kind == KindFloat)
}

// IsCopy reports whether values of t are trivially copyable in the
// target language (no ownership decision needed).
func (t *Type) IsCopy() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindInt, KindFloat, KindBool, KindNone:
		return true
	case KindTuple:
		for _, e := range t.Elems {
			if !e.IsCopy() {
				return false
			}
		}
		return true
	}
	return false
}

// Equal reports structural equality.
func Equal(a, b *Type) bool {
	if a == nil {
		a = Unknown
	}
	if b == nil {
		b = Unknown
	}
	if a.Kind != b.Kind || a.Width != b.Width || a.Name != b.Name {
		return false
	}
	if len(a.Elems) != len(b.Elems) {
		return false
	}
	for i := range a.Elems {
		if !Equal(a.Elems[i], b.Elems[i]) {
			return false
		}
	}
	if (a.Ret == nil) != (b.Ret == nil) {
		return false
	}
	if a.Ret != nil && !Equal(a.Ret, b.Ret) {
		return false
	}
	return true
}

// EqualModOptional reports whether a and b are structurally equal once
// optionality is stripped from either side. Used for the inference
// tie-break: such pairs resolve to the optional form.
func EqualModOptional(a, b *Type) bool {
	if a != nil && a.Kind == KindOptional {
		a = a.Elem()
	}
	if b != nil && b.Kind == KindOptional {
		b = b.Elem()
	}
	return Equal(a, b)
}

// Specificity scores how much concrete information a type carries.
// Higher is more specific. The ordering is total for the purposes of
// joining forward and backward inference results:
//
//	concrete primitive/named > container of specific > container of
//	Unknown > optional of X (one less than X) > Unknown (zero).
func Specificity(t *Type) int {
	if t == nil {
		return 0
	}
	switch t.Kind {
	case KindUnknown:
		return 0
	case KindInt, KindFloat, KindBool, KindStr, KindBytes, KindNone, KindNamed:
		return 4
	case KindOptional:
		s := Specificity(t.Elem()) - 1
		if s < 1 {
			s = 1
		}
		return s
	case KindList, KindSet, KindMap, KindTuple, KindUnion, KindFunc:
		min := 4
		for _, e := range t.Elems {
			if s := Specificity(e); s < min {
				min = s
			}
		}
		if len(t.Elems) == 0 {
			min = 1
		}
		if min < 1 {
			min = 1
		}
		return min
	}
	return 0
}

// MoreSpecific picks the more specific of two structurally compatible
// types. On a tie it prefers the optional form, then the first argument.
func MoreSpecific(a, b *Type) *Type {
	sa, sb := Specificity(a), Specificity(b)
	if sa == sb {
		if b != nil && b.Kind == KindOptional && (a == nil || a.Kind != KindOptional) {
			return b
		}
		return a
	}
	if sa > sb {
		return a
	}
	return b
}

// String renders the type in source-language notation for diagnostics.
func (t *Type) String() string {
	if t == nil {
		return "Unknown"
	}
	switch t.Kind {
	case KindUnknown:
		return "Unknown"
	case KindInt:
		if t.Width == 32 {
			return "int32"
		}
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStr:
		return "str"
	case KindBytes:
		return "bytes"
	case KindNone:
		return "None"
	case KindList:
		return fmt.Sprintf("list[%s]", t.Elem())
	case KindSet:
		return fmt.Sprintf("set[%s]", t.Elem())
	case KindMap:
		return fmt.Sprintf("dict[%s, %s]", t.Elems[0], t.Elems[1])
	case KindTuple:
		return fmt.Sprintf("tuple[%s]", joinTypes(t.Elems))
	case KindOptional:
		return fmt.Sprintf("Optional[%s]", t.Elem())
	case KindUnion:
		return fmt.Sprintf("Union[%s]", joinTypes(t.Elems))
	case KindFunc:
		return fmt.Sprintf("Callable[[%s], %s]", joinTypes(t.Elems), t.Ret)
	case KindNamed:
		return t.Name
	}
	return "Unknown"
}

func joinTypes(ts []*Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
