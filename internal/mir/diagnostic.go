// Diagnostic surface (spec.md §7): the conflict checker and gather-loans
// never return Go errors for a borrow-checking failure, only Diagnostic
// values appended to a DiagnosticSink. A Go error return is reserved for
// violations of this package's own preconditions (see driver.go).
package mir

import (
	"fmt"
	"strings"
)

// BorrowCheckErrorCode names one kind of borrow/move-checking failure.
type BorrowCheckErrorCode int

const (
	ErrMutability BorrowCheckErrorCode = iota
	ErrOutOfScope
	ErrBorrowedPointerTooShort
	ErrUseOfMoved
	ErrMoveOutOfNonOwned
	ErrReassignImmutable
)

func (c BorrowCheckErrorCode) String() string {
	switch c {
	case ErrMutability:
		return "mutability"
	case ErrOutOfScope:
		return "out-of-scope"
	case ErrBorrowedPointerTooShort:
		return "borrowed-pointer-too-short"
	case ErrUseOfMoved:
		return "use-of-moved-value"
	case ErrMoveOutOfNonOwned:
		return "move-out-of-non-owned"
	case ErrReassignImmutable:
		return "reassign-of-immutable"
	default:
		return "borrowck-error?"
	}
}

// Diagnostic is one reported borrow/move-checking failure. Not every field
// is meaningful for every Code; see the DiagnosticSink constructors below
// for which fields each code populates.
type Diagnostic struct {
	Code    BorrowCheckErrorCode
	Element Element
	Path    *LoanPath

	SuperScope ScopeID
	SubScope   ScopeID
	Cause      BorrowCause

	LoanRegion    RegionID
	PointerRegion RegionID

	MoveElement Element

	Message string
}

func (d Diagnostic) String() string { return d.Message }

// DiagnosticSink accumulates Diagnostics for one CheckFunction call. The
// zero value is not ready to use; call NewDiagnosticSink.
type DiagnosticSink struct {
	diagnostics []Diagnostic
	errorLimit  int

	// StrictReassignment gates the ReassignImmutable diagnostic. Default
	// true; a caller staging the rollout of that check can flip it off
	// without losing any other diagnostic.
	StrictReassignment bool
}

// NewDiagnosticSink creates an empty sink with StrictReassignment enabled
// and no error limit.
func NewDiagnosticSink() *DiagnosticSink {
	return &DiagnosticSink{StrictReassignment: true}
}

// SetErrorLimit bounds how many diagnostics the sink will retain; further
// reports are silently dropped. A limit of 0 (the default) means
// unbounded. Intended for an IDE session borrow-checking a pathological
// function body interactively.
func (s *DiagnosticSink) SetErrorLimit(n int) { s.errorLimit = n }

func (s *DiagnosticSink) report(d Diagnostic) {
	if s.errorLimit > 0 && len(s.diagnostics) >= s.errorLimit {
		return
	}
	s.diagnostics = append(s.diagnostics, d)
}

// Mutability reports an attempt to take a mutable/unique loan of a place
// that is not mutable.
func (s *DiagnosticSink) Mutability(e Element, lp *LoanPath) {
	s.report(Diagnostic{
		Code: ErrMutability, Element: e, Path: lp,
		Message: fmt.Sprintf("cannot borrow %s as mutable, as it is not declared mutable", lp.Key()),
	})
}

// OutOfScope reports that a loan's kill scope does not nest inside the
// scope the borrowed place requires.
func (s *DiagnosticSink) OutOfScope(e Element, super, sub ScopeID, cause BorrowCause) {
	s.report(Diagnostic{
		Code: ErrOutOfScope, Element: e, SuperScope: super, SubScope: sub, Cause: cause,
		Message: fmt.Sprintf("borrow (%s) does not live long enough: scope %s is not contained in %s", cause, sub, super),
	})
}

// BorrowedPointerTooShort reports that satisfying loanRegion would require
// dereferencing a pointer whose own region (pointerRegion) ends first.
func (s *DiagnosticSink) BorrowedPointerTooShort(e Element, loanRegion, pointerRegion RegionID) {
	s.report(Diagnostic{
		Code: ErrBorrowedPointerTooShort, Element: e, LoanRegion: loanRegion, PointerRegion: pointerRegion,
		Message: fmt.Sprintf("borrowed pointer region %s does not outlive required region %s", pointerRegion, loanRegion),
	})
}

// UseOfMoved reports a use of a place after it (or an ancestor/union
// sibling of it) was moved out of, at moveElement.
func (s *DiagnosticSink) UseOfMoved(e Element, lp *LoanPath, moveElement Element) {
	s.report(Diagnostic{
		Code: ErrUseOfMoved, Element: e, Path: lp, MoveElement: moveElement,
		Message: fmt.Sprintf("use of moved value: %s (moved at %s)", lp.Key(), moveElement),
	})
}

// MoveOutOfNonOwned reports a move out of a place the moving frame does not
// own: one reached through a non-Box pointer deref (shared or mutable
// reference, or raw pointer), or an index into an array.
func (s *DiagnosticSink) MoveOutOfNonOwned(e Element, lp *LoanPath) {
	s.report(Diagnostic{
		Code: ErrMoveOutOfNonOwned, Element: e, Path: lp,
		Message: fmt.Sprintf("cannot move out of %s: not owned by this place", lp.Key()),
	})
}

// LoanConflict reports that taking or using lp would violate an
// outstanding loan (two overlapping mutable borrows, or a mutable borrow
// overlapping a shared one). It is reported under ErrMutability: in both
// rustc and this model, a conflicting-borrow failure is a special case of
// "this place cannot be treated as exclusively yours right now."
func (s *DiagnosticSink) LoanConflict(e Element, lp *LoanPath, other *Loan) {
	s.report(Diagnostic{
		Code: ErrMutability, Element: e, Path: lp, Cause: other.Cause,
		Message: fmt.Sprintf("cannot use %s because it is already borrowed (%s, from %s)", lp.Key(), other.Kind, other.GenElement),
	})
}

// ReassignImmutable reports a second assignment to a place declared
// immutable. Only emitted when StrictReassignment is true.
func (s *DiagnosticSink) ReassignImmutable(e Element, lp *LoanPath) {
	if !s.StrictReassignment {
		return
	}
	s.report(Diagnostic{
		Code: ErrReassignImmutable, Element: e, Path: lp,
		Message: fmt.Sprintf("cannot assign twice to immutable variable %s", lp.Key()),
	})
}

// Diagnostics returns every diagnostic reported so far, in report order.
func (s *DiagnosticSink) Diagnostics() []Diagnostic { return s.diagnostics }

func (s *DiagnosticSink) HasErrors() bool { return len(s.diagnostics) > 0 }

func (s *DiagnosticSink) String() string {
	var b strings.Builder
	for _, d := range s.diagnostics {
		fmt.Fprintf(&b, "%s: %s (%s)\n", d.Code, d.Message, d.Element)
	}
	return b.String()
}

// BorrowCheckResult is what CheckFunction returns: the sink's contents
// plus the function it was collected for, so CheckModule can attribute
// results after fanning out across functions concurrently. UsedMutNodes
// is the set of bindings a mutable or unique loan was granted against
// (spec.md §3, §4.4, §6) — callers wanting an unused-mut lint compare it
// against their own declared-mutable bindings; this package never raises
// that lint itself.
type BorrowCheckResult struct {
	Function     string
	Diagnostics  []Diagnostic
	UsedMutNodes []Binding
}
