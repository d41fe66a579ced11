// The loan path algebra: a symbolic normal form for lvalue expressions
// (spec.md §3, §4.2). A LoanPath is structurally compared; two independently
// computed paths for the same place are always structurally equal, which is
// what lets MoveData key a path tree on them.
package mir

import (
	"fmt"
	"strings"
)

// LoanPathKind is the outermost constructor of a LoanPath term.
type LoanPathKind int

const (
	LpVar LoanPathKind = iota
	LpUpvar
	LpDowncast
	LpExtend
)

func (k LoanPathKind) String() string {
	switch k {
	case LpVar:
		return "var"
	case LpUpvar:
		return "upvar"
	case LpDowncast:
		return "downcast"
	case LpExtend:
		return "extend"
	default:
		return "lp?"
	}
}

// MutCategory classifies how a place's mutability was derived: declared on
// the binding itself, inherited from a containing place, or granted through
// a pointer dereference.
type MutCategory int

const (
	McDeclared MutCategory = iota
	McInherited
	McThroughPointer
)

// ElemKind is the kind of a single Extend step.
type ElemKind int

const (
	ElemDeref ElemKind = iota
	ElemInterior
)

// LoanPathElement is one Deref or Interior step of an Extend node.
type LoanPathElement struct {
	Kind ElemKind

	// Deref fields.
	PtrKind PointerKind

	// Interior fields.
	Interior InteriorKind
	Field    string // field name, index placeholder, or pattern label
	Variant  string // non-empty iff the immediate parent LoanPath is a Downcast
}

func (e LoanPathElement) String() string {
	switch e.Kind {
	case ElemDeref:
		return "*(" + e.PtrKind.String() + ")"
	case ElemInterior:
		if e.Variant != "" {
			return fmt.Sprintf(".%s::%s", e.Variant, e.Field)
		}
		return "." + e.Field
	default:
		return "?"
	}
}

// LoanPath is a finite term over the grammar in spec.md §3. Every LoanPath
// carries the type of the place it denotes (Ty), supplied by the caller's
// TypeOracle at construction time.
type LoanPath struct {
	Kind LoanPathKind
	Ty   Ty

	Binding Binding // valid when Kind == LpVar || Kind == LpUpvar

	Base    *LoanPath // valid when Kind == LpDowncast || Kind == LpExtend
	Variant string    // valid when Kind == LpDowncast

	MutCat MutCategory     // valid when Kind == LpExtend
	Elem   LoanPathElement // valid when Kind == LpExtend
}

// Key returns a canonical string uniquely determined by the LoanPath's
// structure, suitable as a map key (MoveData.pathMap) or for equality by
// value.
func (lp *LoanPath) Key() string {
	if lp == nil {
		return "<nil>"
	}
	var b strings.Builder
	lp.writeKey(&b)
	return b.String()
}

func (lp *LoanPath) writeKey(b *strings.Builder) {
	switch lp.Kind {
	case LpVar:
		b.WriteString("var(")
		b.WriteString(lp.Binding.ID)
		b.WriteByte(')')
	case LpUpvar:
		b.WriteString("upvar(")
		b.WriteString(lp.Binding.ID)
		b.WriteByte(')')
	case LpDowncast:
		b.WriteString("downcast(")
		lp.Base.writeKey(b)
		b.WriteString(", ")
		b.WriteString(lp.Variant)
		b.WriteByte(')')
	case LpExtend:
		lp.Base.writeKey(b)
		b.WriteString(lp.Elem.String())
	}
}

// Equal reports whether two loan paths are structurally equal.
func (lp *LoanPath) Equal(other *LoanPath) bool {
	if lp == nil || other == nil {
		return lp == other
	}
	return lp.Key() == other.Key()
}

// IsPrecise reports whether the path contains no Interior projection.
// Indexing (and, more generally, any Interior step) defeats path precision
// because the compiler cannot in general tell which element of a compound
// value is meant.
func (lp *LoanPath) IsPrecise() bool {
	for p := lp; p != nil; p = p.Base {
		if p.Kind == LpExtend && p.Elem.Kind == ElemInterior {
			return false
		}
	}
	return true
}

// chain returns the sequence of nodes from the root binding to lp,
// root-first.
func (lp *LoanPath) chain() []*LoanPath {
	var rev []*LoanPath
	for p := lp; p != nil; p = p.Base {
		rev = append(rev, p)
	}
	out := make([]*LoanPath, len(rev))
	for i, p := range rev {
		out[len(rev)-1-i] = p
	}
	return out
}

// HasFork reports whether a and b diverge at some Interior step: they share
// a common prefix and then take different Interior branches, meaning they
// denote provably disjoint sibling places (e.g. a.b vs a.c). HasFork is
// false when one path is a strict prefix of the other (ancestor/descendant,
// not siblings) and false when the paths are equal.
func HasFork(a, b *LoanPath) bool {
	ca, cb := a.chain(), b.chain()
	n := len(ca)
	if len(cb) < n {
		n = len(cb)
	}
	for i := 0; i < n; i++ {
		na, nb := ca[i], cb[i]
		if sameStep(na, nb) {
			continue
		}
		// They diverge at step i. It is a fork only if this divergence
		// happens at an Interior step on at least one side — dereferencing
		// two distinct pointers, or two distinct Downcasts, does not
		// guarantee disjointness the way sibling fields/indices do.
		return na.Kind == LpExtend && na.Elem.Kind == ElemInterior ||
			nb.Kind == LpExtend && nb.Elem.Kind == ElemInterior
	}
	// One is a prefix of the other: ancestor/descendant, not a fork.
	return false
}

func sameStep(a, b *LoanPath) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case LpVar, LpUpvar:
		return a.Binding.ID == b.Binding.ID
	case LpDowncast:
		return a.Variant == b.Variant
	case LpExtend:
		return a.Elem == b.Elem
	default:
		return false
	}
}

// IsAncestorOf reports whether lp is a strict prefix of other's chain
// (lp is a base place of other, e.g. `a.b` is an ancestor of `a.b.c`).
func (lp *LoanPath) IsAncestorOf(other *LoanPath) bool {
	if lp == nil || other == nil || lp.Equal(other) {
		return false
	}
	for p := other.Base; p != nil; p = p.Base {
		if lp.Equal(p) {
			return true
		}
		// Downcast also narrows without adding a level the caller treats
		// as a base place on its own, but its Base is still checked above.
	}
	return false
}

// RootBinding returns the Var/Upvar binding at the root of the path.
func (lp *LoanPath) RootBinding() Binding {
	p := lp
	for p.Base != nil {
		p = p.Base
	}
	return p.Binding
}

// KillScope is the lexical scope of the root binding, transparent through
// Downcast and Extend (spec.md §3). Upvar killScope is intentionally
// unimplemented: closure capture is out of scope (spec.md Non-goals), and
// no UseWalker in this system should ever construct an Upvar path while
// that remains true.
func (lp *LoanPath) KillScope(scopes ScopeTree) ScopeID {
	root := lp
	for root.Base != nil {
		root = root.Base
	}
	switch root.Kind {
	case LpVar:
		return scopes.VariableScope(root.Binding)
	case LpUpvar:
		panic("mir: Upvar killScope requires closure capture modeling, which is out of scope")
	default:
		panic("mir: malformed LoanPath: root is neither Var nor Upvar")
	}
}

// ComputeLoanPath computes the LoanPath denoted by a Cmt, per the mapping
// table in spec.md §4.2. It returns (nil, false) for Rvalue and StaticItem
// categories (moving out of an rvalue, or using a static, needs no loan
// path) and whenever the recursive base is itself unrepresentable.
func ComputeLoanPath(cmt *Cmt) (*LoanPath, bool) {
	switch cmt.Category {
	case CmtRvalue, CmtStaticItem:
		return nil, false
	case CmtLocal:
		return &LoanPath{Kind: LpVar, Binding: cmt.Binding, Ty: cmt.Ty}, true
	case CmtUpvar:
		return &LoanPath{Kind: LpUpvar, Binding: cmt.Binding, Ty: cmt.Ty}, true
	case CmtDeref:
		base, ok := ComputeLoanPath(cmt.Base)
		if !ok {
			return nil, false
		}
		return &LoanPath{
			Kind:   LpExtend,
			Base:   base,
			MutCat: cmt.MutCat,
			Elem:   LoanPathElement{Kind: ElemDeref, PtrKind: cmt.PtrKind},
			Ty:     cmt.Ty,
		}, true
	case CmtInterior:
		base, ok := ComputeLoanPath(cmt.Base)
		if !ok {
			return nil, false
		}
		variant := ""
		if cmt.Base.Category == CmtDowncast {
			variant = cmt.Base.Variant
		}
		return &LoanPath{
			Kind:   LpExtend,
			Base:   base,
			MutCat: cmt.MutCat,
			Elem: LoanPathElement{
				Kind:     ElemInterior,
				Interior: cmt.InteriorKind,
				Field:    cmt.Field,
				Variant:  variant,
			},
			Ty: cmt.Ty,
		}, true
	case CmtDowncast:
		base, ok := ComputeLoanPath(cmt.Base)
		if !ok {
			return nil, false
		}
		return &LoanPath{Kind: LpDowncast, Base: base, Variant: cmt.Variant, Ty: cmt.Ty}, true
	default:
		return nil, false
	}
}

// LoanPathIsField reports whether the path traverses at least one Interior
// projection, which distinguishes a path assignment from a plain variable
// assignment (spec.md §4.2).
func LoanPathIsField(lp *LoanPath) bool {
	for p := lp; p != nil; p = p.Base {
		if p.Kind == LpExtend && p.Elem.Kind == ElemInterior {
			return true
		}
	}
	return false
}

// IsVariablePath reports whether lp has no parent, i.e. is a bare Var or
// Upvar.
func IsVariablePath(lp *LoanPath) bool {
	return lp.Kind == LpVar || lp.Kind == LpUpvar
}
