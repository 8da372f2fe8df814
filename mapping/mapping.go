// Package mapping resolves Python library references to Rust lowering
// patterns. The registry is built once from a builtin table plus optional
// TOML overlay files and is read-only afterward; a failed lookup means
// the construct is unsupported, never an error.
package mapping

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Pattern describes how one Python reference lowers to Rust. Expr is a
// template: %r expands to the receiver expression, %a to the comma-joined
// argument list. Crate and Version are set when the lowering needs an
// external crate; Use names a path to import.
type Pattern struct {
	Expr    string `toml:"expr"`
	Crate   string `toml:"crate"`
	Version string `toml:"version"`
	Use     string `toml:"use"`
}

// Registry maps (module, class, member) references to patterns.
type Registry struct {
	entries map[string]Pattern
}

type overlayFile struct {
	Pattern []overlayEntry `toml:"pattern"`
}

type overlayEntry struct {
	Module  string `toml:"module"`
	Class   string `toml:"class"`
	Member  string `toml:"member"`
	Pattern
}

// New builds a registry from the builtin table plus overlay files, later
// files winning on conflict.
func New(overlays ...string) (*Registry, error) {
	r := &Registry{entries: map[string]Pattern{}}
	for k, v := range builtins {
		r.entries[k] = v
	}
	for _, path := range overlays {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("mapping: cannot read %s: %w", path, err)
		}
		var file overlayFile
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("mapping: parse error in %s: %w", path, err)
		}
		for _, e := range file.Pattern {
			r.entries[refKey(e.Module, e.Class, e.Member)] = e.Pattern
		}
	}
	return r, nil
}

// Builtin returns the registry holding only the builtin table.
func Builtin() *Registry {
	r, _ := New()
	return r
}

// Lookup resolves one reference, most specific key first: the exact
// (module, class, member), then the module-wide member, then the
// class-wide member. The zero Pattern and false mean the reference has
// no registered lowering.
func (r *Registry) Lookup(module, class, member string) (Pattern, bool) {
	if p, ok := r.entries[refKey(module, class, member)]; ok {
		return p, true
	}
	if class != "" {
		if p, ok := r.entries[refKey(module, "", member)]; ok {
			return p, true
		}
	}
	if module != "" && class != "" {
		if p, ok := r.entries[refKey("", class, member)]; ok {
			return p, true
		}
	}
	return Pattern{}, false
}

func refKey(module, class, member string) string {
	return module + "|" + class + "|" + member
}

// Apply expands the pattern template against a receiver and rendered
// argument expressions. %r is the receiver, %1..%9 a single argument by
// position, %a the comma-joined argument list. Positional placeholders
// expand highest first so %1 never clips %10.
func (p Pattern) Apply(recv string, args []string) string {
	out := strings.ReplaceAll(p.Expr, "%r", recv)
	for i := len(args) - 1; i >= 0; i-- {
		out = strings.ReplaceAll(out, "%"+strconv.Itoa(i+1), args[i])
	}
	return strings.ReplaceAll(out, "%a", strings.Join(args, ", "))
}

// builtins covers the standard-library surface the generator lowers
// directly. Method references key on the receiver's type name with an
// empty module; module references key on the module with an empty class.
var builtins = map[string]Pattern{
	// math
	refKey("math", "", "sqrt"):  {Expr: "(%a).sqrt()"},
	refKey("math", "", "floor"): {Expr: "(%a).floor()"},
	refKey("math", "", "ceil"):  {Expr: "(%a).ceil()"},
	refKey("math", "", "fabs"):  {Expr: "(%a).abs()"},
	refKey("math", "", "pow"):   {Expr: "f64::powf(%a)"},
	refKey("math", "", "pi"):    {Expr: "std::f64::consts::PI"},
	refKey("math", "", "e"):     {Expr: "std::f64::consts::E"},

	// re -> regex crate
	refKey("re", "", "compile"): {Expr: "regex::Regex::new(%a).unwrap()",
		Crate: "regex", Version: "1"},
	refKey("re", "", "match"): {Expr: "regex::Regex::new(%1).unwrap().is_match(%2)",
		Crate: "regex", Version: "1"},

	// json -> serde_json
	refKey("json", "", "dumps"): {Expr: "serde_json::to_string(&%a).unwrap()",
		Crate: "serde_json", Version: "1.0"},
	refKey("json", "", "loads"): {Expr: "serde_json::from_str(%a).unwrap()",
		Crate: "serde_json", Version: "1.0"},

	// random -> rand
	refKey("random", "", "random"): {Expr: "rand::random::<f64>()",
		Crate: "rand", Version: "0.8"},
	refKey("random", "", "randint"): {Expr: "rand::thread_rng().gen_range(%1..=%2)",
		Crate: "rand", Version: "0.8", Use: "rand::Rng"},

	// str methods
	refKey("", "str", "upper"):      {Expr: "%r.to_uppercase()"},
	refKey("", "str", "lower"):      {Expr: "%r.to_lowercase()"},
	refKey("", "str", "strip"):      {Expr: "%r.trim().to_string()"},
	refKey("", "str", "startswith"): {Expr: "%r.starts_with(%a)"},
	refKey("", "str", "endswith"):   {Expr: "%r.ends_with(%a)"},
	refKey("", "str", "find"):       {Expr: "%r.find(%a).map_or(-1, |i| i as i64)"},
	refKey("", "str", "replace"):    {Expr: "%r.replace(%a)"},
	refKey("", "str", "split"): {
		Expr: "%r.split(%a).map(|s| s.to_string()).collect::<Vec<String>>()"},
	refKey("", "str", "join"): {
		Expr: "%a.join(%r)"},

	// list methods
	refKey("", "list", "append"):  {Expr: "%r.push(%a)"},
	refKey("", "list", "pop"):     {Expr: "%r.pop().unwrap()"},
	refKey("", "list", "extend"):  {Expr: "%r.extend(%a)"},
	refKey("", "list", "insert"):  {Expr: "%r.insert(%a)"},
	refKey("", "list", "clear"):   {Expr: "%r.clear()"},
	refKey("", "list", "sort"):    {Expr: "%r.sort()"},
	refKey("", "list", "reverse"): {Expr: "%r.reverse()"},
	refKey("", "list", "index"):   {Expr: "%r.iter().position(|v| v == &%a).unwrap()"},

	// dict methods
	refKey("", "dict", "get"): {Expr: "%r.get(&%a).cloned()",
		Use: "std::collections::HashMap"},
	refKey("", "dict", "keys"): {Expr: "%r.keys().cloned().collect::<Vec<_>>()",
		Use: "std::collections::HashMap"},
	refKey("", "dict", "values"): {Expr: "%r.values().cloned().collect::<Vec<_>>()",
		Use: "std::collections::HashMap"},
	refKey("", "dict", "items"): {
		Expr: "%r.iter().map(|(k, v)| (k.clone(), v.clone())).collect::<Vec<_>>()",
		Use:  "std::collections::HashMap"},
	refKey("", "dict", "clear"): {Expr: "%r.clear()",
		Use: "std::collections::HashMap"},

	// set methods
	refKey("", "set", "add"): {Expr: "%r.insert(%a)",
		Use: "std::collections::HashSet"},
	refKey("", "set", "remove"): {Expr: "%r.remove(&%a)",
		Use: "std::collections::HashSet"},
	refKey("", "set", "discard"): {Expr: "%r.remove(&%a)",
		Use: "std::collections::HashSet"},
	refKey("", "set", "union"): {Expr: "%r.union(&%a).cloned().collect()",
		Use: "std::collections::HashSet"},
	refKey("", "set", "intersection"): {
		Expr: "%r.intersection(&%a).cloned().collect()",
		Use:  "std::collections::HashSet"},
}
