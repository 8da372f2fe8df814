package ir

// ---------------------------------------------------------------------------
// IR: typed intermediate representation shared by every pipeline stage
// ---------------------------------------------------------------------------

// NodeID is a stable identity assigned by the tree bridge, keying the
// type and ownership side tables. IDs are unique within one Module.
type NodeID int

// NoID marks nodes that never participate in side tables.
const NoID NodeID = -1

// Node is the interface implemented by all IR nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes. Every expression carries a
// stable NodeID so later stages can attach types and ownership modes
// without mutating the tree.
type Expr interface {
	Node
	ID() NodeID
	expr() // marker method
}

// IntLit represents an integer literal.
type IntLit struct {
	IDVal   NodeID
	SpanVal Span
	Value   int64
}

func (n *IntLit) Span() Span { return n.SpanVal }
func (n *IntLit) ID() NodeID { return n.IDVal }
func (n *IntLit) node()      {}
func (n *IntLit) expr()      {}

// FloatLit represents a floating-point literal.
type FloatLit struct {
	IDVal   NodeID
	SpanVal Span
	Value   float64
}

func (n *FloatLit) Span() Span { return n.SpanVal }
func (n *FloatLit) ID() NodeID { return n.IDVal }
func (n *FloatLit) node()      {}
func (n *FloatLit) expr()      {}

// BoolLit represents True or False.
type BoolLit struct {
	IDVal   NodeID
	SpanVal Span
	Value   bool
}

func (n *BoolLit) Span() Span { return n.SpanVal }
func (n *BoolLit) ID() NodeID { return n.IDVal }
func (n *BoolLit) node()      {}
func (n *BoolLit) expr()      {}

// StrLit represents a string literal.
type StrLit struct {
	IDVal   NodeID
	SpanVal Span
	Value   string
}

func (n *StrLit) Span() Span { return n.SpanVal }
func (n *StrLit) ID() NodeID { return n.IDVal }
func (n *StrLit) node()      {}
func (n *StrLit) expr()      {}

// BytesLit represents a bytes literal.
type BytesLit struct {
	IDVal   NodeID
	SpanVal Span
	Value   []byte
}

func (n *BytesLit) Span() Span { return n.SpanVal }
func (n *BytesLit) ID() NodeID { return n.IDVal }
func (n *BytesLit) node()      {}
func (n *BytesLit) expr()      {}

// NoneLit represents the None literal.
type NoneLit struct {
	IDVal   NodeID
	SpanVal Span
}

func (n *NoneLit) Span() Span { return n.SpanVal }
func (n *NoneLit) ID() NodeID { return n.IDVal }
func (n *NoneLit) node()      {}
func (n *NoneLit) expr()      {}

// Name represents a variable or symbol reference.
type Name struct {
	IDVal   NodeID
	SpanVal Span
	Ident   string
}

func (n *Name) Span() Span { return n.SpanVal }
func (n *Name) ID() NodeID { return n.IDVal }
func (n *Name) node()      {}
func (n *Name) expr()      {}

// BinOp identifies a binary operator.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpEq
	OpNotEq
	OpLt
	OpLtEq
	OpGt
	OpGtEq
	OpAnd
	OpOr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLShift
	OpRShift
	OpIn
	OpNotIn
)

var binOpNames = map[BinOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpFloorDiv: "//",
	OpMod: "%", OpPow: "**", OpEq: "==", OpNotEq: "!=", OpLt: "<",
	OpLtEq: "<=", OpGt: ">", OpGtEq: ">=", OpAnd: "and", OpOr: "or",
	OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^", OpLShift: "<<",
	OpRShift: ">>", OpIn: "in", OpNotIn: "not in",
}

// String returns the source-level spelling of the operator.
func (op BinOp) String() string { return binOpNames[op] }

// Binary represents a binary operation.
type Binary struct {
	IDVal   NodeID
	SpanVal Span
	Op      BinOp
	Left    Expr
	Right   Expr
}

func (n *Binary) Span() Span { return n.SpanVal }
func (n *Binary) ID() NodeID { return n.IDVal }
func (n *Binary) node()      {}
func (n *Binary) expr()      {}

// UnOp identifies a unary operator.
type UnOp int

const (
	OpNeg UnOp = iota
	OpPos
	OpNot
	OpBitNot
)

// Unary represents a unary operation.
type Unary struct {
	IDVal   NodeID
	SpanVal Span
	Op      UnOp
	Operand Expr
}

func (n *Unary) Span() Span { return n.SpanVal }
func (n *Unary) ID() NodeID { return n.IDVal }
func (n *Unary) node()      {}
func (n *Unary) expr()      {}

// Call represents a function or method call.
type Call struct {
	IDVal   NodeID
	SpanVal Span
	Fn      Expr
	Args    []Expr
}

func (n *Call) Span() Span { return n.SpanVal }
func (n *Call) ID() NodeID { return n.IDVal }
func (n *Call) node()      {}
func (n *Call) expr()      {}

// Attribute represents attribute access (obj.attr).
type Attribute struct {
	IDVal   NodeID
	SpanVal Span
	Object  Expr
	Attr    string
}

func (n *Attribute) Span() Span { return n.SpanVal }
func (n *Attribute) ID() NodeID { return n.IDVal }
func (n *Attribute) node()      {}
func (n *Attribute) expr()      {}

// Index represents subscript access (obj[key]).
type Index struct {
	IDVal   NodeID
	SpanVal Span
	Object  Expr
	Key     Expr
}

func (n *Index) Span() Span { return n.SpanVal }
func (n *Index) ID() NodeID { return n.IDVal }
func (n *Index) node()      {}
func (n *Index) expr()      {}

// ListLit represents a list literal [a, b, c].
type ListLit struct {
	IDVal   NodeID
	SpanVal Span
	Elems   []Expr
}

func (n *ListLit) Span() Span { return n.SpanVal }
func (n *ListLit) ID() NodeID { return n.IDVal }
func (n *ListLit) node()      {}
func (n *ListLit) expr()      {}

// MapLit represents a dict literal {k: v}.
type MapLit struct {
	IDVal   NodeID
	SpanVal Span
	Keys    []Expr
	Values  []Expr
}

func (n *MapLit) Span() Span { return n.SpanVal }
func (n *MapLit) ID() NodeID { return n.IDVal }
func (n *MapLit) node()      {}
func (n *MapLit) expr()      {}

// SetLit represents a set literal {a, b}.
type SetLit struct {
	IDVal   NodeID
	SpanVal Span
	Elems   []Expr
}

func (n *SetLit) Span() Span { return n.SpanVal }
func (n *SetLit) ID() NodeID { return n.IDVal }
func (n *SetLit) node()      {}
func (n *SetLit) expr()      {}

// TupleLit represents a tuple literal (a, b).
type TupleLit struct {
	IDVal   NodeID
	SpanVal Span
	Elems   []Expr
}

func (n *TupleLit) Span() Span { return n.SpanVal }
func (n *TupleLit) ID() NodeID { return n.IDVal }
func (n *TupleLit) node()      {}
func (n *TupleLit) expr()      {}

// CompKind distinguishes comprehension forms.
type CompKind int

const (
	ListComp CompKind = iota
	SetComp
	DictComp
)

// Comprehension represents a list/set/dict comprehension with a single
// generator clause and optional filter.
type Comprehension struct {
	IDVal   NodeID
	SpanVal Span
	Kind    CompKind
	Target  string
	Iter    Expr
	Cond    Expr // optional filter, may be nil
	Value   Expr // element expression (value expression for DictComp)
	Key     Expr // key expression, DictComp only
}

func (n *Comprehension) Span() Span { return n.SpanVal }
func (n *Comprehension) ID() NodeID { return n.IDVal }
func (n *Comprehension) node()      {}
func (n *Comprehension) expr()      {}

// CondExpr represents a conditional expression (a if cond else b).
type CondExpr struct {
	IDVal   NodeID
	SpanVal Span
	Cond    Expr
	Then    Expr
	Else    Expr
}

func (n *CondExpr) Span() Span { return n.SpanVal }
func (n *CondExpr) ID() NodeID { return n.IDVal }
func (n *CondExpr) node()      {}
func (n *CondExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Assign represents an assignment. Target is a Name, Attribute, or Index
// expression. Hint carries a declared type annotation, nil if absent.
type Assign struct {
	SpanVal Span
	Target  Expr
	Value   Expr
	Hint    *Type
}

func (n *Assign) Span() Span { return n.SpanVal }
func (n *Assign) node()      {}
func (n *Assign) stmt()      {}

// If represents a conditional statement.
type If struct {
	SpanVal Span
	Cond    Expr
	Then    []Stmt
	Else    []Stmt
}

func (n *If) Span() Span { return n.SpanVal }
func (n *If) node()      {}
func (n *If) stmt()      {}

// While represents a while loop.
type While struct {
	SpanVal Span
	Cond    Expr
	Body    []Stmt
}

func (n *While) Span() Span { return n.SpanVal }
func (n *While) node()      {}
func (n *While) stmt()      {}

// For represents a for-each loop. BindID keys the loop binding's
// ownership mode in the ownership side table.
type For struct {
	SpanVal Span
	BindID  NodeID
	Target  string
	Iter    Expr
	Body    []Stmt
}

func (n *For) Span() Span { return n.SpanVal }
func (n *For) node()      {}
func (n *For) stmt()      {}

// Return represents a return statement. Value may be nil.
type Return struct {
	SpanVal Span
	Value   Expr
}

func (n *Return) Span() Span { return n.SpanVal }
func (n *Return) node()      {}
func (n *Return) stmt()      {}

// Raise represents a raise statement. Value may be nil for bare re-raise.
type Raise struct {
	SpanVal Span
	Value   Expr
}

func (n *Raise) Span() Span { return n.SpanVal }
func (n *Raise) node()      {}
func (n *Raise) stmt()      {}

// Yield represents a suspend point: the function yields Value and later
// resumes at the following statement.
type Yield struct {
	SpanVal Span
	Value   Expr
}

func (n *Yield) Span() Span { return n.SpanVal }
func (n *Yield) node()      {}
func (n *Yield) stmt()      {}

// ExprStmt is an expression used as a statement.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// With represents a resource scope (with ctx as target: body). The
// resource is released when the body exits.
type With struct {
	SpanVal Span
	Context Expr
	Target  string // bound name, empty if none
	Body    []Stmt
}

func (n *With) Span() Span { return n.SpanVal }
func (n *With) node()      {}
func (n *With) stmt()      {}

// Pass represents a no-op statement.
type Pass struct {
	SpanVal Span
}

func (n *Pass) Span() Span { return n.SpanVal }
func (n *Pass) node()      {}
func (n *Pass) stmt()      {}

// Break represents a loop break.
type Break struct {
	SpanVal Span
}

func (n *Break) Span() Span { return n.SpanVal }
func (n *Break) node()      {}
func (n *Break) stmt()      {}

// Continue represents a loop continue.
type Continue struct {
	SpanVal Span
}

func (n *Continue) Span() Span { return n.SpanVal }
func (n *Continue) node()      {}
func (n *Continue) stmt()      {}

// ---------------------------------------------------------------------------
// Ownership
// ---------------------------------------------------------------------------

// OwnershipMode describes how a binding is passed or held.
type OwnershipMode int

const (
	// ModeUnresolved is the pre-analysis placeholder.
	ModeUnresolved OwnershipMode = iota
	// SharedBorrow passes by shared (read-only) reference.
	SharedBorrow
	// ExclusiveBorrow passes by exclusive (mutable) reference.
	ExclusiveBorrow
	// Move transfers ownership to the consumer.
	Move
	// Clone copies the value; always correct, never optimal.
	Clone
)

var modeNames = map[OwnershipMode]string{
	ModeUnresolved:  "unresolved",
	SharedBorrow:    "shared-borrow",
	ExclusiveBorrow: "exclusive-borrow",
	Move:            "move",
	Clone:           "clone",
}

// String returns a human-readable mode name.
func (m OwnershipMode) String() string { return modeNames[m] }

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// Param is a function parameter.
type Param struct {
	Name string
	Type *Type
	Mode OwnershipMode
}

// Function represents one function or method. Type and ownership results
// live in per-function side tables, not on the tree; the tree itself is
// read-only after the bridge builds it.
type Function struct {
	SpanVal    Span
	Name       string
	Params     []Param
	Ret        *Type
	Body       []Stmt
	Doc        string
	Pure       bool
	Terminates bool
	MaySuspend bool
	Ann        *Annotations
	Receiver   string // class name for methods, empty for free functions
}

func (n *Function) Span() Span { return n.SpanVal }
func (n *Function) node()      {}

// Field is a class field.
type Field struct {
	Name string
	Type *Type
}

// Class represents a class definition with single inheritance.
type Class struct {
	SpanVal   Span
	Name      string
	Base      string // empty if no base
	Fields    []Field
	Methods   []*Function
	Dataclass bool
	Doc       string
	Ann       *Annotations
}

func (n *Class) Span() Span { return n.SpanVal }
func (n *Class) node()      {}

// Import records one source-level import.
type Import struct {
	SpanVal Span
	Module  string
	Items   []string // empty for whole-module import
	Alias   string
}

func (n *Import) Span() Span { return n.SpanVal }
func (n *Import) node()      {}

// Module is the root of the IR: ordered functions, classes, and imports.
// Built once by the bridge and read-only afterward.
type Module struct {
	SpanVal   Span
	Name      string
	Imports   []Import
	Functions []*Function
	Classes   []*Class
	Ann       *Annotations
}

func (n *Module) Span() Span { return n.SpanVal }
func (n *Module) node()      {}

// AllFunctions returns free functions followed by methods, in source order.
func (n *Module) AllFunctions() []*Function {
	fns := make([]*Function, 0, len(n.Functions))
	fns = append(fns, n.Functions...)
	for _, cls := range n.Classes {
		fns = append(fns, cls.Methods...)
	}
	return fns
}

// ClassByName finds a class definition by name, nil if absent.
func (n *Module) ClassByName(name string) *Class {
	for _, cls := range n.Classes {
		if cls.Name == name {
			return cls
		}
	}
	return nil
}
