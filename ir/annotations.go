package ir

// ---------------------------------------------------------------------------
// Annotations: closed per-function/module directive options
// ---------------------------------------------------------------------------

// OptLevel controls optimization aggressiveness.
type OptLevel int

const (
	OptConservative OptLevel = iota
	OptStandard
	OptAggressive
)

// StringStrategy controls string ownership in generated code.
type StringStrategy int

const (
	StringAlwaysOwned StringStrategy = iota
	StringZeroCopy
	StringCow
	StringSmart
)

// OwnershipModel biases the ownership resolver's defaults.
type OwnershipModel int

const (
	OwnershipOwned OwnershipModel = iota
	OwnershipBorrowed
	OwnershipShared
	OwnershipSmart
)

// BoundsMode controls index bounds checking in generated code.
type BoundsMode int

const (
	BoundsRuntime BoundsMode = iota
	BoundsExplicit
	BoundsDisabled
)

// ThreadSafety records whether generated code must be Send + Sync.
type ThreadSafety int

const (
	ThreadNone ThreadSafety = iota
	ThreadRequired
)

// Annotations is the closed configuration set extracted from directive
// comments. One value travels explicitly with each function through every
// stage; there is no global configuration state.
type Annotations struct {
	Opt          OptLevel
	Strings      StringStrategy
	Ownership    OwnershipModel
	Bounds       BoundsMode
	Threads      ThreadSafety
	DisableFold  bool
	DisableDCE   bool
	DisableCSE   bool
	DisableInl   bool
	InlineBudget int // max statements an inlined body may have
	InlineDepth  int // max nested inlining depth
}

// DefaultAnnotations returns the configuration used when no directives
// are present.
func DefaultAnnotations() *Annotations {
	return &Annotations{
		Opt:          OptStandard,
		Strings:      StringAlwaysOwned,
		Ownership:    OwnershipSmart,
		Bounds:       BoundsRuntime,
		Threads:      ThreadNone,
		InlineBudget: 8,
		InlineDepth:  3,
	}
}

// Clone returns a copy so per-function overrides never mutate the
// module-level configuration.
func (a *Annotations) Clone() *Annotations {
	if a == nil {
		return DefaultAnnotations()
	}
	dup := *a
	return &dup
}
