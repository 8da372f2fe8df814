package ir

import "testing"

func TestIsCopy(t *testing.T) {
	copyable := []*Type{Int(64), Int(32), Float, Bool, None, TupleOf(Int(64), Bool)}
	for _, ty := range copyable {
		if !ty.IsCopy() {
			t.Errorf("%s not classified as copy", ty)
		}
	}
	owned := []*Type{Str, Bytes, ListOf(Int(64)), TupleOf(Int(64), Str), SetOf(Str), Unknown}
	for _, ty := range owned {
		if ty.IsCopy() {
			t.Errorf("%s wrongly classified as copy", ty)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal(ListOf(Int(64)), ListOf(Int(64))) {
		t.Error("identical list types not equal")
	}
	if Equal(Int(64), Int(32)) {
		t.Error("widths ignored")
	}
	if Equal(ListOf(Int(64)), SetOf(Int(64))) {
		t.Error("container kinds ignored")
	}
	if !Equal(nil, Unknown) {
		t.Error("nil not treated as Unknown")
	}
	if Equal(NamedOf("Point"), NamedOf("Rect")) {
		t.Error("named types compared by structure only")
	}
}

func TestEqualModOptional(t *testing.T) {
	if !EqualModOptional(OptionalOf(Str), Str) {
		t.Error("Optional[str] vs str not equal modulo optionality")
	}
	if EqualModOptional(OptionalOf(Str), Int(64)) {
		t.Error("unrelated types equal modulo optionality")
	}
}

func TestMoreSpecific(t *testing.T) {
	if got := MoreSpecific(Unknown, Int(64)); !Equal(got, Int(64)) {
		t.Errorf("MoreSpecific(Unknown, int) = %s", got)
	}
	if got := MoreSpecific(ListOf(Unknown), ListOf(Int(64))); !Equal(got, ListOf(Int(64))) {
		t.Errorf("MoreSpecific(list[Unknown], list[int]) = %s", got)
	}
	// a strictly more specific optional wins over the bare form
	if got := MoreSpecific(Str, OptionalOf(Str)); !Equal(got, Str) {
		t.Errorf("MoreSpecific(str, Optional[str]) = %s", got)
	}
	// on a tie the optional form wins
	if got := MoreSpecific(ListOf(Unknown), OptionalOf(Unknown)); got.Kind != KindOptional {
		t.Errorf("tie did not prefer Optional, got %s", got)
	}
}

func TestTypeString(t *testing.T) {
	cases := map[*Type]string{
		Int(64):                     "int",
		Int(32):                     "int32",
		ListOf(Str):                 "list[str]",
		MapOf(Str, Int(64)):         "dict[str, int]",
		OptionalOf(Float):           "Optional[float]",
		UnionOf(Int(64), Str):       "Union[int, str]",
		NamedOf("Point"):            "Point",
		TupleOf(Int(64), Bool):      "tuple[int, bool]",
		FuncOf([]*Type{Str}, Bool):  "Callable[[str], bool]",
		nil:                         "Unknown",
	}
	for ty, want := range cases {
		if got := ty.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
