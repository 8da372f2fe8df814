package codegen

import (
	"sort"

	"github.com/ferrite-lang/ferrite/mapping"
)

// Need is one external crate requirement discovered during generation.
type Need struct {
	Crate   string
	Version string
}

// NeedSet is the emitted-need side table: any lowering that requires an
// external capability records it here. The manifest generator reads the
// deduplicated result.
type NeedSet struct {
	crates map[string]string // crate -> minimum version
	uses   map[string]bool   // use paths, std and crate alike
}

func NewNeedSet() *NeedSet {
	return &NeedSet{crates: map[string]string{}, uses: map[string]bool{}}
}

// AddUse records an import path for the module prelude.
func (n *NeedSet) AddUse(path string) {
	if path != "" {
		n.uses[path] = true
	}
}

// AddCrate records an external crate at a minimum version.
func (n *NeedSet) AddCrate(crate, version string) {
	if crate == "" {
		return
	}
	if cur, ok := n.crates[crate]; !ok || version > cur {
		n.crates[crate] = version
	}
}

// Record adds whatever a mapping pattern requires.
func (n *NeedSet) Record(p mapping.Pattern) {
	n.AddCrate(p.Crate, p.Version)
	n.AddUse(p.Use)
}

// Crates returns the crate requirements sorted by name.
func (n *NeedSet) Crates() []Need {
	out := make([]Need, 0, len(n.crates))
	for crate, version := range n.crates {
		out = append(out, Need{Crate: crate, Version: version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Crate < out[j].Crate })
	return out
}

// Uses returns the import paths sorted.
func (n *NeedSet) Uses() []string {
	out := make([]string, 0, len(n.uses))
	for path := range n.uses {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
