// Package diag defines the structured diagnostic record shared by every
// transpiler stage. Categories are stable strings so external tooling can
// pattern-match on them across releases.
package diag

import (
	"fmt"

	"github.com/ferrite-lang/ferrite/ir"
)

// Stage names the pipeline stage that produced a diagnostic.
type Stage string

const (
	StageBridge    Stage = "bridge"
	StageInfer     Stage = "infer"
	StageOwnership Stage = "ownership"
	StageOptimize  Stage = "optimize"
	StageCodegen   Stage = "codegen"
)

// Severity classifies a diagnostic.
type Severity int

const (
	Warning Severity = iota
	Error
)

// String returns "warning" or "error".
func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Stable category strings. External consumers (repair loops, CI gates)
// match on these; never rename them.
const (
	CatUnsupportedConstruct = "unsupported-construct"
	CatTypeContradiction    = "type-contradiction"
	CatUnresolvedOwnership  = "unresolved-ownership"
	CatUnreachableState     = "unreachable-state"
	CatMissingLowering      = "missing-lowering"
	CatInvalidAnnotation    = "invalid-annotation"
	CatInternalInvariant    = "internal-invariant"
)

// Diagnostic is one structured finding.
type Diagnostic struct {
	Stage     Stage
	Severity  Severity
	Category  string
	Construct string // kind of construct involved, e.g. "metaclass", "yield"
	Span      ir.Span
	Message   string
}

// Error implements the error interface so a fatal Diagnostic can travel
// as an ordinary error value.
func (d *Diagnostic) Error() string {
	pos := d.Span.Start
	if pos.Line > 0 {
		return fmt.Sprintf("%s: line %d, column %d: %s [%s]",
			d.Stage, pos.Line, pos.Column, d.Message, d.Category)
	}
	return fmt.Sprintf("%s: %s [%s]", d.Stage, d.Message, d.Category)
}

// Reporter accumulates diagnostics for one function or module pass.
type Reporter struct {
	stage Stage
	diags []*Diagnostic
}

// NewReporter creates a reporter for the given stage.
func NewReporter(stage Stage) *Reporter {
	return &Reporter{stage: stage}
}

// Errorf records an error-severity diagnostic.
func (r *Reporter) Errorf(category, construct string, span ir.Span, format string, args ...interface{}) *Diagnostic {
	d := &Diagnostic{
		Stage:     r.stage,
		Severity:  Error,
		Category:  category,
		Construct: construct,
		Span:      span,
		Message:   fmt.Sprintf(format, args...),
	}
	r.diags = append(r.diags, d)
	return d
}

// Warnf records a warning-severity diagnostic.
func (r *Reporter) Warnf(category, construct string, span ir.Span, format string, args ...interface{}) *Diagnostic {
	d := &Diagnostic{
		Stage:     r.stage,
		Severity:  Warning,
		Category:  category,
		Construct: construct,
		Span:      span,
		Message:   fmt.Sprintf(format, args...),
	}
	r.diags = append(r.diags, d)
	return d
}

// Internalf records an internal-invariant violation: malformed IR reaching
// a stage that assumed it well-formed. These indicate transpiler bugs, not
// user errors, and carry full context in the message.
func (r *Reporter) Internalf(construct string, span ir.Span, format string, args ...interface{}) *Diagnostic {
	return r.Errorf(CatInternalInvariant, construct, span, format, args...)
}

// Diagnostics returns everything recorded so far, in order.
func (r *Reporter) Diagnostics() []*Diagnostic {
	return r.diags
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (r *Reporter) HasErrors() bool {
	for _, d := range r.diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Merge appends another reporter's diagnostics.
func (r *Reporter) Merge(other *Reporter) {
	r.diags = append(r.diags, other.diags...)
}
