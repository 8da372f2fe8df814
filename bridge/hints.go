package bridge

import (
	"strings"

	"github.com/ferrite-lang/ferrite/ir"
)

// ---------------------------------------------------------------------------
// Type hints: declared annotation strings -> ir.Type
// ---------------------------------------------------------------------------

// ResolveHint converts a declared type-hint string to an ir.Type. Hints
// that cannot be resolved produce Unknown, never a failure: downstream
// inference fills the gap or falls back to the dynamic type.
func ResolveHint(hint string) *ir.Type {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ir.Unknown
	}
	switch hint {
	case "int":
		return ir.Int(64)
	case "float":
		return ir.Float
	case "bool":
		return ir.Bool
	case "str":
		return ir.Str
	case "bytes":
		return ir.Bytes
	case "None":
		return ir.None
	case "list", "List":
		return ir.ListOf(ir.Unknown)
	case "dict", "Dict":
		return ir.MapOf(ir.Unknown, ir.Unknown)
	case "set", "Set":
		return ir.SetOf(ir.Unknown)
	case "tuple", "Tuple":
		return ir.TupleOf()
	case "Any", "object":
		return ir.Unknown
	}

	base, args, ok := splitGeneric(hint)
	if !ok {
		// Bare identifier: a class reference.
		if isIdentifier(hint) {
			return ir.NamedOf(hint)
		}
		return ir.Unknown
	}

	switch base {
	case "list", "List", "Sequence", "Iterable", "Iterator":
		if len(args) == 1 {
			return ir.ListOf(ResolveHint(args[0]))
		}
	case "set", "Set", "FrozenSet":
		if len(args) == 1 {
			return ir.SetOf(ResolveHint(args[0]))
		}
	case "dict", "Dict", "Mapping":
		if len(args) == 2 {
			return ir.MapOf(ResolveHint(args[0]), ResolveHint(args[1]))
		}
	case "tuple", "Tuple":
		elems := make([]*ir.Type, len(args))
		for i, a := range args {
			elems[i] = ResolveHint(a)
		}
		return ir.TupleOf(elems...)
	case "Optional":
		if len(args) == 1 {
			return ir.OptionalOf(ResolveHint(args[0]))
		}
	case "Union":
		members := make([]*ir.Type, 0, len(args))
		sawNone := false
		for _, a := range args {
			t := ResolveHint(a)
			if t.Kind == ir.KindNone {
				sawNone = true
				continue
			}
			members = append(members, t)
		}
		// Union[T, None] is Optional[T].
		if sawNone && len(members) == 1 {
			return ir.OptionalOf(members[0])
		}
		if sawNone {
			return ir.OptionalOf(ir.UnionOf(members...))
		}
		if len(members) == 1 {
			return members[0]
		}
		return ir.UnionOf(members...)
	case "Callable":
		if len(args) == 2 {
			argHints := splitBracketList(args[0])
			argTypes := make([]*ir.Type, len(argHints))
			for i, a := range argHints {
				argTypes[i] = ResolveHint(a)
			}
			return ir.FuncOf(argTypes, ResolveHint(args[1]))
		}
	case "Generator":
		// Generator[Y, S, R] surfaces as an iterator of the yield type.
		if len(args) >= 1 {
			return ir.ListOf(ResolveHint(args[0]))
		}
	}
	return ir.Unknown
}

// splitGeneric splits "base[a, b]" into its base and comma-separated
// arguments, respecting nested brackets.
func splitGeneric(hint string) (base string, args []string, ok bool) {
	open := strings.IndexByte(hint, '[')
	if open < 0 || !strings.HasSuffix(hint, "]") {
		return "", nil, false
	}
	base = strings.TrimSpace(hint[:open])
	inner := hint[open+1 : len(hint)-1]
	return base, splitTopLevel(inner), true
}

// splitBracketList splits a "[a, b]" argument list used by Callable.
func splitBracketList(s string) []string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = s[1 : len(s)-1]
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return splitTopLevel(s)
}

// splitTopLevel splits on commas not nested inside brackets.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}
