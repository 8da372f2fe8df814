package infer

import (
	"fmt"

	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Structural unification
// ---------------------------------------------------------------------------

// unifyTypes joins two concrete types. Unknown unifies with anything;
// int widths widen; int and float promote to float; None against T gives
// Optional[T]; structurally equal types differing only in optionality
// resolve to the optional form. Incompatible types return an error naming
// both sides.
func unifyTypes(a, b *ir.Type) (*ir.Type, error) {
	if a == nil {
		a = ir.Unknown
	}
	if b == nil {
		b = ir.Unknown
	}
	if a.IsUnknown() {
		return b, nil
	}
	if b.IsUnknown() {
		return a, nil
	}

	// None against a value type widens to optional.
	if a.Kind == ir.KindNone && b.Kind != ir.KindNone {
		return ir.OptionalOf(b), nil
	}
	if b.Kind == ir.KindNone && a.Kind != ir.KindNone {
		return ir.OptionalOf(a), nil
	}

	// Optionality tie-break: equal up to optionality resolves optional.
	if a.Kind == ir.KindOptional && b.Kind != ir.KindOptional {
		inner, err := unifyTypes(a.Elem(), b)
		if err != nil {
			return nil, err
		}
		return ir.OptionalOf(inner), nil
	}
	if b.Kind == ir.KindOptional && a.Kind != ir.KindOptional {
		inner, err := unifyTypes(a, b.Elem())
		if err != nil {
			return nil, err
		}
		return ir.OptionalOf(inner), nil
	}

	// Numeric promotion.
	if a.Kind == ir.KindInt && b.Kind == ir.KindInt {
		w := a.Width
		if b.Width > w {
			w = b.Width
		}
		if w == 0 {
			w = 64
		}
		return ir.Int(w), nil
	}
	if a.IsNumeric() && b.IsNumeric() {
		return ir.Float, nil
	}

	if a.Kind != b.Kind {
		return nil, fmt.Errorf("cannot unify %s with %s", a, b)
	}

	switch a.Kind {
	case ir.KindFloat, ir.KindBool, ir.KindStr, ir.KindBytes, ir.KindNone:
		return a, nil
	case ir.KindNamed:
		if a.Name != b.Name {
			return nil, fmt.Errorf("cannot unify %s with %s", a, b)
		}
		return a, nil
	case ir.KindList, ir.KindSet, ir.KindOptional:
		elem, err := unifyTypes(a.Elem(), b.Elem())
		if err != nil {
			return nil, err
		}
		return &ir.Type{Kind: a.Kind, Elems: []*ir.Type{elem}}, nil
	case ir.KindMap:
		key, err := unifyTypes(a.Elems[0], b.Elems[0])
		if err != nil {
			return nil, err
		}
		value, err := unifyTypes(a.Elems[1], b.Elems[1])
		if err != nil {
			return nil, err
		}
		return ir.MapOf(key, value), nil
	case ir.KindTuple, ir.KindUnion:
		if len(a.Elems) != len(b.Elems) {
			return nil, fmt.Errorf("cannot unify %s with %s", a, b)
		}
		elems := make([]*ir.Type, len(a.Elems))
		for i := range a.Elems {
			e, err := unifyTypes(a.Elems[i], b.Elems[i])
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return &ir.Type{Kind: a.Kind, Elems: elems}, nil
	case ir.KindFunc:
		if len(a.Elems) != len(b.Elems) {
			return nil, fmt.Errorf("cannot unify %s with %s", a, b)
		}
		args := make([]*ir.Type, len(a.Elems))
		for i := range a.Elems {
			t, err := unifyTypes(a.Elems[i], b.Elems[i])
			if err != nil {
				return nil, err
			}
			args[i] = t
		}
		ret, err := unifyTypes(a.Ret, b.Ret)
		if err != nil {
			return nil, err
		}
		return ir.FuncOf(args, ret), nil
	}
	return nil, fmt.Errorf("cannot unify %s with %s", a, b)
}
