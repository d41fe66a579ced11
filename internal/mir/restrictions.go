// Restriction computation, the lifetime guarantee check, and the
// aliasability/mutability gates that decide whether a borrow may be taken
// at all (spec.md §4.4–§4.6). None of this depends on dataflow; it runs
// once per borrow expression, during gather-loans.
package mir

import "fmt"

// Loan is one borrow recorded by gather-loans. GenElement is where the
// borrow is created; KillScope is the lexical scope beyond which the loan
// cannot possibly still be live (spec.md §3's Loan invariants: KillScope is
// always an ancestor-or-equal of every scope the loan's Restricted paths
// could be read in).
type Loan struct {
	ID         string
	Path       *LoanPath
	Kind       LoanKind
	Restricted []*LoanPath
	GenElement Element
	KillScope  ScopeID
	Cause      BorrowCause
}

func (l *Loan) String() string {
	return fmt.Sprintf("loan %s: %s borrow of %s until %s (%s)", l.ID, l.Kind, l.Path.Key(), l.KillScope, l.Cause)
}

// Restriction is the result of computeRestrictions: either the borrowed
// place needs no restriction at all (Safe, e.g. an rvalue or a read through
// a shared reference where aliasing is already accounted for), or it is
// safe provided every path in Restricted is tracked as restricted by the
// resulting loan (SafeIf).
type Restriction struct {
	Safe       bool
	LoanPath   *LoanPath   // the leaf path of the chain; nil when Safe
	Restricted []*LoanPath // innermost first
}

// computeRestrictions walks cmt's categorization chain and determines which
// loan paths must be marked restricted for a loan of the given kind on cmt
// to be sound (spec.md §4.4). It mirrors the classic restrict() recursion:
// restriction propagates through Local/Upvar roots, through
// Interior/Downcast steps, and through a Box (unique pointer) deref, but
// stops — successfully, with no restriction needed — at a deref of a raw
// pointer, since such a place is already freely aliasable and restricting
// the pointer itself would not prevent mutation through another alias.
//
// A deref of a mutable reference is the one case that depends on kind: a
// mutable or unique reborrow through it (`&mut *r`, or a move out of
// `*r`) must keep restricting outward through r itself, since the new
// loan's validity depends on r continuing to point at the same place for
// as long as the loan lives. A shared reborrow through it (`&*r`) needs
// no such guarantee — the read is over as soon as it happens — so it
// collapses to Safe exactly like a deref of a shared reference does.
func computeRestrictions(cmt *Cmt, kind LoanKind) Restriction {
	switch cmt.Category {
	case CmtRvalue, CmtStaticItem:
		return Restriction{Safe: true}

	case CmtLocal, CmtUpvar:
		lp, ok := ComputeLoanPath(cmt)
		if !ok {
			return Restriction{Safe: true}
		}
		return Restriction{LoanPath: lp, Restricted: []*LoanPath{lp}}

	case CmtInterior, CmtDowncast:
		base := computeRestrictions(cmt.Base, kind)
		if base.Safe {
			return Restriction{Safe: true}
		}
		lp, ok := ComputeLoanPath(cmt)
		if !ok {
			return Restriction{Safe: true}
		}
		return Restriction{LoanPath: lp, Restricted: append([]*LoanPath{lp}, base.Restricted...)}

	case CmtDeref:
		switch cmt.PtrKind {
		case PtrUnique:
			base := computeRestrictions(cmt.Base, kind)
			if base.Safe {
				return Restriction{Safe: true}
			}
			lp, ok := ComputeLoanPath(cmt)
			if !ok {
				return Restriction{Safe: true}
			}
			return Restriction{LoanPath: lp, Restricted: append([]*LoanPath{lp}, base.Restricted...)}

		case PtrRefMut:
			if kind == LoanShared {
				return Restriction{Safe: true}
			}
			base := computeRestrictions(cmt.Base, kind)
			if base.Safe {
				return Restriction{Safe: true}
			}
			lp, ok := ComputeLoanPath(cmt)
			if !ok {
				return Restriction{Safe: true}
			}
			return Restriction{LoanPath: lp, Restricted: append([]*LoanPath{lp}, base.Restricted...)}

		case PtrRefImm, PtrRaw:
			return Restriction{Safe: true}

		default:
			return Restriction{Safe: true}
		}

	default:
		return Restriction{Safe: true}
	}
}

// LifetimeViolationKind distinguishes the two failures guaranteeLifetime
// can report (spec.md §4.5).
type LifetimeViolationKind int

const (
	// ViolationPointerTooShort: an intermediate reference's own region ends
	// before the requested loan's scope does.
	ViolationPointerTooShort LifetimeViolationKind = iota
	// ViolationOutOfScope: the place is a direct local (no reference deref
	// along the way) whose own declaration scope ends before the requested
	// loan's scope does.
	ViolationOutOfScope
)

// LifetimeViolation reports that a borrow's requested region does not fit
// within some scope found while walking cmt's categorization chain.
type LifetimeViolation struct {
	Kind LifetimeViolationKind

	PointerRegion RegionID // set when Kind == ViolationPointerTooShort
	LocalScope    ScopeID  // set when Kind == ViolationOutOfScope
}

// guaranteeLifetime checks that every borrowed-reference deref along cmt's
// chain has a region outliving scope, the scope the new loan must be valid
// for (spec.md §4.5's first rule). A Box/raw-pointer deref carries no
// region of its own and is transparent to the check.
//
// If the chain never passes through a reference deref at all — a direct
// borrow of a local, reached only through Box/raw-pointer/field/index
// steps — the second rule applies instead: the root binding's own
// declaration scope must itself fit the requested scope. Once a reference
// deref has been crossed, that root scope is no longer the governing
// bound (a reborrow through `&'a mut T` may validly outlive the local
// variable holding the `&'a mut T` itself), so the two rules are mutually
// exclusive rather than both applied to the same chain.
func guaranteeLifetime(scopes ScopeTree, scope ScopeID, cmt *Cmt) *LifetimeViolation {
	sawReferenceDeref := false
	var root *Cmt
	for c := cmt; c != nil; c = c.Base {
		if c.Category == CmtDeref && c.PtrKind != PtrUnique && c.PtrKind != PtrRaw {
			sawReferenceDeref = true
			free := scopes.FreeScope(c.Region)
			if !scopes.IsSubScopeOf(scope, free) {
				return &LifetimeViolation{Kind: ViolationPointerTooShort, PointerRegion: c.Region}
			}
		}
		if c.Category == CmtLocal || c.Category == CmtUpvar {
			root = c
		}
	}
	if sawReferenceDeref || root == nil {
		return nil
	}
	local := scopes.VariableScope(root.Binding)
	if !scopes.IsSubScopeOf(scope, local) {
		return &LifetimeViolation{Kind: ViolationOutOfScope, LocalScope: local}
	}
	return nil
}

// lexicalScopeForLoan computes spec.md §4.7's "lexicalScope(LP)" used in
// the loan killScope arithmetic. It differs from LoanPath.KillScope (which
// always walks to the root Var/Upvar): here, a Deref through a borrowed
// reference (shared or mutable) stops the walk and adopts that reference's
// own region instead of continuing to the root binding, because the place
// beyond that point is governed by the pointee's lifetime, not by the
// scope of the local variable holding the pointer. That is what lets a
// reborrow (`&mut T` -> `&mut U`) outlive the binding it was taken
// through. A Deref through a Box or raw pointer keeps walking, since that
// storage's lifetime really is tied to its owning binding.
func lexicalScopeForLoan(scopes ScopeTree, cmt *Cmt) ScopeID {
	switch cmt.Category {
	case CmtLocal, CmtUpvar:
		return scopes.VariableScope(cmt.Binding)
	case CmtDeref:
		if cmt.PtrKind == PtrRefMut || cmt.PtrKind == PtrRefImm {
			return scopes.FreeScope(cmt.Region)
		}
		return lexicalScopeForLoan(scopes, cmt.Base)
	case CmtInterior, CmtDowncast:
		return lexicalScopeForLoan(scopes, cmt.Base)
	default:
		return scopes.VariableScope(cmt.Binding)
	}
}

// rootUsedMutBinding returns the binding spec.md §4.4 asks to mark
// used_mut when a mutable or unique loan is granted: walk outward from the
// borrowed place toward its root, stopping without marking anything the
// moment a Deref through a mutable reference is crossed, since writing
// through `*r` never requires r's own binding to be declared mutable.
// Every other step (a Box, raw-pointer or shared-reference deref, or a
// field/index/downcast step) keeps walking toward the root binding.
func rootUsedMutBinding(cmt *Cmt) (Binding, bool) {
	for c := cmt; c != nil; c = c.Base {
		switch c.Category {
		case CmtLocal, CmtUpvar:
			return c.Binding, true
		case CmtDeref:
			if c.PtrKind == PtrRefMut {
				return Binding{}, false
			}
		}
	}
	return Binding{}, false
}

// checkMutability reports whether cmt is mutable at the point its
// mutability was established, per spec.md §4.6. It does not look at the
// loan kind: the caller skips this check for shared loans, so only mutable
// and unique loans are gated by it.
func checkMutability(oracle TypeOracle, cmt *Cmt) bool {
	switch cmt.MutCat {
	case McDeclared:
		return oracle.MutabilityOf(cmt.Binding) == MutableBinding
	case McInherited:
		return true
	case McThroughPointer:
		return cmt.PtrKind == PtrRefMut || cmt.PtrKind == PtrUnique || cmt.PtrKind == PtrRaw
	default:
		return false
	}
}

// checkAliasability reports whether a mutable/unique loan of cmt is legal
// given its aliasability. A place that is freely aliasable (through a
// shared static, or a shared borrow) cannot be exclusively borrowed,
// because another alias could observe or cause a conflicting mutation; a
// `static mut` is the one case Rust itself treats as an intentionally
// unsafe escape hatch, so it is let through.
func checkAliasability(cmt *Cmt, kind LoanKind) bool {
	if kind == LoanShared {
		return true
	}
	switch cmt.Alias {
	case NonAliasable, FreelyAliasableStaticMut:
		return true
	default:
		return false
	}
}
