// Memory categorization model and the oracle interfaces the borrow checker
// consumes from its caller. Nothing in this file walks an AST: every value
// here is either produced by an external memory-categorization pass, or is
// a lightweight identifier (Binding, Element, ScopeID, RegionID) the caller
// hands us so we can ask the type/scope oracles questions about it.
package mir

import "fmt"

// Binding identifies a local variable, parameter, or upvar slot.
type Binding struct {
	ID   string
	Name string
}

func (b Binding) String() string { return b.Name }

// Element identifies a single program point: one statement within one
// basic block of one function body. The checker never interprets this
// beyond using it as a key into ControlFlowGraph.BuildLocalIndex.
type Element struct {
	Function string
	Block    string
	Stmt     int
}

func (e Element) String() string {
	return fmt.Sprintf("%s::%s[%d]", e.Function, e.Block, e.Stmt)
}

// ScopeID identifies a node of the caller's lexical scope tree.
type ScopeID string

// RegionID identifies a region (lifetime) in the caller's region inference
// results. StaticRegion is the one well-known constant; everything else is
// opaque to this package.
type RegionID string

const StaticRegion RegionID = "'static"

// Ty is the minimal type surface the checker needs: whether a type is a
// struct/union shape (for the union-field broadcast rule) and its fields.
type Ty struct {
	Name    string
	Union   bool
	Fields  []Field
}

// Field names one field of a struct or union type.
type Field struct{ Name string }

// Mutability is the declared mutability of a binding.
type Mutability int

const (
	Immutable Mutability = iota
	MutableBinding
)

// TypeOracle answers questions about the caller's type system that the
// checker needs but does not itself compute.
type TypeOracle interface {
	TypeOf(e Element) Ty
	MutabilityOf(b Binding) Mutability
	NamedFields(t Ty) []Field
	IsUnion(t Ty) bool
}

// ScopeTree answers lexical-scope and region questions.
type ScopeTree interface {
	VariableScope(b Binding) ScopeID
	// IsSubScopeOf reports whether a is the same scope as b or nested
	// inside it (a's lifetime ends no later than b's).
	IsSubScopeOf(a, b ScopeID) bool
	EarlyFreeScope(r RegionID) ScopeID
	FreeScope(r RegionID) ScopeID
	// Contains reports whether program point e lexically lies within scope
	// s. Used to place dataflow scope-kill bits at the statements where
	// control actually leaves s, without the checker needing its own
	// lexical-scope bookkeeping.
	Contains(e Element, s ScopeID) bool
}

// ---- Memory categorization ----

// CmtCategory classifies how an expression's storage is denoted.
type CmtCategory int

const (
	CmtRvalue CmtCategory = iota
	CmtStaticItem
	CmtLocal
	CmtUpvar
	CmtDeref
	CmtInterior
	CmtDowncast
)

func (c CmtCategory) String() string {
	switch c {
	case CmtRvalue:
		return "rvalue"
	case CmtStaticItem:
		return "static-item"
	case CmtLocal:
		return "local"
	case CmtUpvar:
		return "upvar"
	case CmtDeref:
		return "deref"
	case CmtInterior:
		return "interior"
	case CmtDowncast:
		return "downcast"
	default:
		return "cmt?"
	}
}

// PointerKind distinguishes the four ways a loan path can step through a
// pointer.
type PointerKind int

const (
	PtrRefImm PointerKind = iota // &T
	PtrRefMut                    // &mut T
	PtrUnique                    // Box<T> / owned unique pointer
	PtrRaw                       // *const T / *mut T
)

func (p PointerKind) String() string {
	switch p {
	case PtrRefImm:
		return "&"
	case PtrRefMut:
		return "&mut"
	case PtrUnique:
		return "box"
	case PtrRaw:
		return "*raw"
	default:
		return "ptr?"
	}
}

// InteriorKind distinguishes the three ways a loan path can step into a
// compound value.
type InteriorKind int

const (
	InteriorField InteriorKind = iota
	InteriorIndex
	InteriorPattern
)

func (k InteriorKind) String() string {
	switch k {
	case InteriorField:
		return "field"
	case InteriorIndex:
		return "index"
	case InteriorPattern:
		return "pattern"
	default:
		return "interior?"
	}
}

// Aliasability classifies whether a place can be reached by more than one
// name.
type Aliasability int

const (
	NonAliasable Aliasability = iota
	FreelyAliasableStatic
	FreelyAliasableStaticMut
	FreelyAliasableBorrow
)

func (a Aliasability) String() string {
	switch a {
	case NonAliasable:
		return "non-aliasable"
	case FreelyAliasableStatic:
		return "aliasable(static)"
	case FreelyAliasableStaticMut:
		return "aliasable(static-mut)"
	case FreelyAliasableBorrow:
		return "aliasable(borrow)"
	default:
		return "aliasable?"
	}
}

// Cmt is the categorized-memory-expression value produced by the external
// MemoryCategorization oracle for every expression the use-walker visits.
type Cmt struct {
	Category CmtCategory
	Element  Element
	Ty       Ty

	// Base is set for Deref, Interior, and Downcast categories.
	Base *Cmt

	// Binding is set for Local and Upvar categories.
	Binding Binding

	// Deref-only fields.
	PtrKind PointerKind
	Region  RegionID // lifetime of the pointer being dereferenced

	// Interior-only fields.
	InteriorKind InteriorKind
	Field        string

	// Downcast-only (and Interior-under-downcast) field.
	Variant string

	MutCat MutCategory
	Alias  Aliasability
}

// MemoryCategorization is the oracle that produces a Cmt for an
// expression. The checker is handed Cmt values directly by the use-walker;
// this interface exists so a driver can re-categorize an element on demand
// (e.g. when synthesizing sibling union-field places).
type MemoryCategorization interface {
	Categorize(e Element) *Cmt
}

// ---- Use-walker event vocabulary (spec.md §4.1) ----

// ConsumeMode distinguishes a copy (no effect) from a move.
type ConsumeMode int

const (
	ConsumeCopy ConsumeMode = iota
	ConsumeMove
)

// MoveReason records why a value consumption is a move rather than a copy.
type MoveReason int

const (
	ReasonDirectRefMove MoveReason = iota
	ReasonCaptureMove
	ReasonPatBindingMove
)

// MutateMode distinguishes the three ways a place can be written.
type MutateMode int

const (
	MutateInit MutateMode = iota
	MutateJustWrite
	MutateWriteAndRead
)

// MatchMode is informational only; spec.md §4.1 requires no checker action
// for matchedPat events.
type MatchMode int

const (
	MatchNonBinding MatchMode = iota
	MatchByRef
	MatchByValue
)

// BorrowCause is a free-form, human-readable note about why a borrow was
// created (e.g. "auto-ref receiver", "&mut expr"). It flows unchanged into
// diagnostics and the Loan record.
type BorrowCause string

// LoanKind is the kind requested for a borrow, and the kind recorded on a
// Loan.
type LoanKind int

const (
	LoanShared LoanKind = iota
	LoanMutable
	LoanUnique
)

func (k LoanKind) String() string {
	switch k {
	case LoanShared:
		return "shared"
	case LoanMutable:
		return "mutable"
	case LoanUnique:
		return "unique"
	default:
		return "loan?"
	}
}

// BorrowDelegate is the set of events a UseWalker drives against the
// checker, in program order, for a single function body.
type BorrowDelegate interface {
	Consume(e Element, cmt *Cmt, mode ConsumeMode, reason MoveReason)
	ConsumePat(e Element, cmt *Cmt, mode ConsumeMode, reason MoveReason)
	MatchedPat(e Element, cmt *Cmt, mode MatchMode)
	Borrow(e Element, cmt *Cmt, region RegionID, kind LoanKind, cause BorrowCause)
	Mutate(e Element, cmt *Cmt, mode MutateMode)
	DeclarationWithoutInit(b Binding, e Element)
}

// UseWalker drives BorrowDelegate events for a function body in evaluation
// order. Its implementation (AST traversal, expression-use analysis) is an
// external collaborator; the checker only consumes the events it emits.
type UseWalker interface {
	WalkBody(delegate BorrowDelegate) error
}
