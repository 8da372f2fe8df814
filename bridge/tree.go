// Package bridge converts an externally-produced parse tree plus raw
// directive comments into the ferrite IR. It is the only stage that sees
// the front-end's output format; everything downstream works on ir.Module.
package bridge

import (
	"encoding/json"
	"fmt"
)

// ParseTree is the wire format the external front-end produces. It is a
// uniform tagged tree: Kind selects the construct, Value carries its
// primary token (a name, operator, or literal text), Attrs carries
// secondary strings such as type hints, and Children the sub-trees.
type ParseTree struct {
	Kind     string            `json:"kind"`
	Value    string            `json:"value,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []*ParseTree      `json:"children,omitempty"`
	Line     int               `json:"line,omitempty"`
	Col      int               `json:"col,omitempty"`
}

// Attr returns a named attribute, empty string if absent.
func (t *ParseTree) Attr(name string) string {
	if t.Attrs == nil {
		return ""
	}
	return t.Attrs[name]
}

// Child returns the first child of the given kind, nil if absent.
func (t *ParseTree) Child(kind string) *ParseTree {
	for _, c := range t.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// DecodeTree parses a JSON-encoded parse tree.
func DecodeTree(data []byte) (*ParseTree, error) {
	var t ParseTree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("bridge: decode parse tree: %w", err)
	}
	if t.Kind == "" {
		return nil, fmt.Errorf("bridge: decode parse tree: missing kind on root node")
	}
	return &t, nil
}

// Directives carries the raw directive-comment strings the front-end
// collected, grouped by target.
type Directives struct {
	Module  []string            `json:"module,omitempty"`
	ByFunc  map[string][]string `json:"by_func,omitempty"`
	ByClass map[string][]string `json:"by_class,omitempty"`
}
