package codegen

import (
	"fmt"
	"strings"

	"github.com/ferrite-lang/ferrite/ir"
)

// rustType renders an IR type as Rust source. Container types record
// their std imports in the need set. Types without a registered rendering
// return an error; the caller turns it into a missing-lowering stop.
func (g *Generator) rustType(t *ir.Type) (string, error) {
	if t == nil {
		return "", fmt.Errorf("codegen: nil type")
	}
	switch t.Kind {
	case ir.KindInt:
		if t.Width == 32 {
			return "i32", nil
		}
		return "i64", nil
	case ir.KindFloat:
		return "f64", nil
	case ir.KindBool:
		return "bool", nil
	case ir.KindStr:
		return "String", nil
	case ir.KindBytes:
		return "Vec<u8>", nil
	case ir.KindNone:
		return "()", nil
	case ir.KindList:
		elem, err := g.rustType(t.Elem())
		if err != nil {
			return "", err
		}
		return "Vec<" + elem + ">", nil
	case ir.KindMap:
		key, err := g.rustType(t.Elems[0])
		if err != nil {
			return "", err
		}
		val, err := g.rustType(t.Elems[1])
		if err != nil {
			return "", err
		}
		g.needs.AddUse("std::collections::HashMap")
		return "HashMap<" + key + ", " + val + ">", nil
	case ir.KindSet:
		elem, err := g.rustType(t.Elem())
		if err != nil {
			return "", err
		}
		g.needs.AddUse("std::collections::HashSet")
		return "HashSet<" + elem + ">", nil
	case ir.KindTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			s, err := g.rustType(e)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	case ir.KindOptional:
		inner, err := g.rustType(t.Elem())
		if err != nil {
			return "", err
		}
		return "Option<" + inner + ">", nil
	case ir.KindFunc:
		args := make([]string, len(t.Elems))
		for i, a := range t.Elems {
			s, err := g.rustType(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		ret, err := g.rustType(t.Ret)
		if err != nil {
			return "", err
		}
		return "Box<dyn Fn(" + strings.Join(args, ", ") + ") -> " + ret + ">", nil
	case ir.KindNamed:
		return t.Name, nil
	case ir.KindUnion:
		return "", fmt.Errorf("codegen: union type %s has no lowering", t)
	default:
		return "", fmt.Errorf("codegen: type %s has no lowering", t)
	}
}

// borrowedType renders a parameter type under an ownership mode.
func (g *Generator) borrowedType(t *ir.Type, mode ir.OwnershipMode) (string, error) {
	base, err := g.rustType(t)
	if err != nil {
		return "", err
	}
	if t.IsCopy() {
		return base, nil
	}
	switch mode {
	case ir.SharedBorrow:
		if t.Kind == ir.KindStr {
			return "&str", nil
		}
		return "&" + base, nil
	case ir.ExclusiveBorrow:
		return "&mut " + base, nil
	default:
		return base, nil
	}
}
