// Package wire defines the canonical CBOR encoding of transpile results:
// the resolved-function snapshot, diagnostics, and generated Rust text.
// External verification tooling consumes these records; canonical mode
// keeps the encoding deterministic so result hashes are stable.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/ferrite-lang/ferrite/diag"
	"github.com/ferrite-lang/ferrite/ir"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// DiagRecord is one diagnostic flattened for the wire.
type DiagRecord struct {
	Stage     string `cbor:"stage"`
	Severity  string `cbor:"severity"`
	Category  string `cbor:"category"`
	Construct string `cbor:"construct"`
	Line      int    `cbor:"line"`
	Column    int    `cbor:"column"`
	Message   string `cbor:"message"`
}

// FromDiagnostic flattens a diagnostic into its wire record.
func FromDiagnostic(d *diag.Diagnostic) DiagRecord {
	return DiagRecord{
		Stage:     string(d.Stage),
		Severity:  d.Severity.String(),
		Category:  d.Category,
		Construct: d.Construct,
		Line:      d.Span.Start.Line,
		Column:    d.Span.Start.Column,
		Message:   d.Message,
	}
}

// ParamSnapshot records one parameter of a resolved function.
type ParamSnapshot struct {
	Name string `cbor:"name"`
	Type string `cbor:"type"`
	Mode string `cbor:"mode"`
}

// FunctionSnapshot is the resolved-IR view of one function after
// inference and ownership resolution, before code generation.
type FunctionSnapshot struct {
	Name       string          `cbor:"name"`
	Receiver   string          `cbor:"receiver,omitempty"`
	Params     []ParamSnapshot `cbor:"params"`
	Ret        string          `cbor:"ret"`
	MaySuspend bool            `cbor:"may_suspend"`
	Narrowed   []string        `cbor:"narrowed,omitempty"`
}

// SnapshotFunction captures a function's resolved signature. modes may be
// nil when ownership resolution failed for the function.
func SnapshotFunction(fn *ir.Function, ret *ir.Type, modes map[string]ir.OwnershipMode, narrowed []string) FunctionSnapshot {
	snap := FunctionSnapshot{
		Name:       fn.Name,
		Receiver:   fn.Receiver,
		MaySuspend: fn.MaySuspend,
		Narrowed:   narrowed,
	}
	if ret == nil {
		ret = fn.Ret
	}
	snap.Ret = typeText(ret)
	for _, p := range fn.Params {
		mode := p.Mode
		if m, ok := modes[p.Name]; ok {
			mode = m
		}
		snap.Params = append(snap.Params, ParamSnapshot{
			Name: p.Name,
			Type: typeText(p.Type),
			Mode: mode.String(),
		})
	}
	return snap
}

// Result is the transpile outcome for one function.
type Result struct {
	Module      string           `cbor:"module"`
	Function    FunctionSnapshot `cbor:"function"`
	Rust        string           `cbor:"rust,omitempty"`
	Fatal       bool             `cbor:"fatal"`
	Diagnostics []DiagRecord     `cbor:"diagnostics,omitempty"`
}

// CrateRecord is one external crate requirement of a generated module.
type CrateRecord struct {
	Crate   string `cbor:"crate"`
	Version string `cbor:"version,omitempty"`
}

// ModuleResult aggregates one source module's transpile run. Rust holds
// the fully assembled output file so cached runs can reproduce it without
// re-entering the pipeline.
type ModuleResult struct {
	Module      string        `cbor:"module"`
	Prelude     string        `cbor:"prelude,omitempty"`
	Rust        string        `cbor:"rust,omitempty"`
	Functions   []Result      `cbor:"functions"`
	Crates      []CrateRecord `cbor:"crates,omitempty"`
	Diagnostics []DiagRecord  `cbor:"diagnostics,omitempty"`
}

// MarshalResult serializes a Result to canonical CBOR bytes.
func MarshalResult(r *Result) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalResult deserializes a Result from CBOR bytes.
func UnmarshalResult(data []byte) (*Result, error) {
	var r Result
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("wire: unmarshal result: %w", err)
	}
	return &r, nil
}

// MarshalModuleResult serializes a ModuleResult to canonical CBOR bytes.
func MarshalModuleResult(m *ModuleResult) ([]byte, error) {
	return cborEncMode.Marshal(m)
}

// UnmarshalModuleResult deserializes a ModuleResult from CBOR bytes.
func UnmarshalModuleResult(data []byte) (*ModuleResult, error) {
	var m ModuleResult
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wire: unmarshal module result: %w", err)
	}
	return &m, nil
}

func typeText(t *ir.Type) string {
	if t == nil {
		return ir.Unknown.String()
	}
	return t.String()
}
