// Conflict checker (spec.md §4.10): a second pass over the same UseWalker
// events gather.go already consumed, this time reading the propagated
// dataflow results instead of building them, to decide whether each use is
// actually legal.
package mir

// ConflictChecker implements BorrowDelegate as a replay pass. It must be
// driven over the *same* function body gather.go just analyzed, via a
// second UseWalker.WalkBody call (or the same events replayed).
type ConflictChecker struct {
	oracle TypeOracle
	scopes ScopeTree
	sink   *DiagnosticSink
	result *GatherResult
	index  map[Element]CFGNode
}

// NewConflictChecker builds a checker over an already-propagated
// GatherResult.
func NewConflictChecker(oracle TypeOracle, scopes ScopeTree, sink *DiagnosticSink, result *GatherResult, cfg ControlFlowGraph) *ConflictChecker {
	return &ConflictChecker{
		oracle: oracle,
		scopes: scopes,
		sink:   sink,
		result: result,
		index:  cfg.BuildLocalIndex(),
	}
}

func (c *ConflictChecker) firstLiveMove(node CFGNode, pidx MovePathIndex) (Element, bool) {
	var out Element
	found := false
	c.result.MoveData.EachMove(pidx, func(mi MoveIndex, m *Move) bool {
		if c.result.MoveEngine.BitOnEntry(node, int(mi)) {
			out = m.Element
			found = true
			return false
		}
		return true
	})
	return out, found
}

// checkIfMoved reports UseOfMoved when lp, or an ancestor of lp, carries a
// move live on entry to e (the place itself was moved), or when some
// descendant of lp carries one (a sub-place of the place being used was
// moved — a partial move).
func (c *ConflictChecker) checkIfMoved(e Element, lp *LoanPath) {
	node, ok := c.index[e]
	if !ok {
		return
	}
	for _, pidx := range c.result.MoveData.ExistingBasePaths(lp) {
		if elem, found := c.firstLiveMove(node, pidx); found {
			c.sink.UseOfMoved(e, lp, elem)
			return
		}
	}
	pidx, ok := c.result.MoveData.LookupPath(lp)
	if !ok {
		return
	}
	c.result.MoveData.EachExtendingPath(pidx, func(idx MovePathIndex) bool {
		if idx == pidx {
			return true
		}
		if elem, found := c.firstLiveMove(node, idx); found {
			c.sink.UseOfMoved(e, lp, elem)
			return false
		}
		return true
	})
}

// checkMoveOwnership reports MoveOutOfNonOwned when moving lp requires
// passing through a borrowed (non-unique) pointer deref, or out of an
// index into an array (spec.md §4.10): neither place is owned outright by
// the moving frame, so the compiler cannot leave it uninitialized in place.
func (c *ConflictChecker) checkMoveOwnership(e Element, lp *LoanPath, cmt *Cmt) {
	for p := cmt; p != nil; p = p.Base {
		if p.Category == CmtDeref && p.PtrKind != PtrUnique {
			c.sink.MoveOutOfNonOwned(e, lp)
			return
		}
		if p.Category == CmtInterior && p.InteriorKind == InteriorIndex {
			c.sink.MoveOutOfNonOwned(e, lp)
			return
		}
	}
}

// checkLoanConflict reports a LoanConflict for every outstanding loan live
// on entry to e whose path is not provably disjoint from lp (per HasFork)
// and whose combination of kinds is not both-shared.
func (c *ConflictChecker) checkLoanConflict(e Element, lp *LoanPath, kind LoanKind) {
	node, ok := c.index[e]
	if !ok || lp == nil {
		return
	}
	c.result.LoanEngine.EachBitOnEntry(node, func(bit int) bool {
		loan := c.result.Loans[bit]
		if HasFork(loan.Path, lp) {
			return true
		}
		if kind == LoanShared && loan.Kind == LoanShared {
			return true
		}
		c.sink.LoanConflict(e, lp, loan)
		return true
	})
}

// checkReassignImmutable reports ReassignImmutable when lp is a bare
// variable declared immutable and more than one distinct assignment to it
// reaches e.
func (c *ConflictChecker) checkReassignImmutable(e Element, lp *LoanPath) {
	if !IsVariablePath(lp) {
		return
	}
	if c.oracle.MutabilityOf(lp.Binding) == MutableBinding {
		return
	}
	node, ok := c.index[e]
	if !ok {
		return
	}
	pidx, ok := c.result.MoveData.LookupPath(lp)
	if !ok {
		return
	}
	conflict := false
	vas := c.result.MoveData.VarAssignments()
	c.result.AssignEngine.EachBitOnEntry(node, func(bit int) bool {
		if vas[bit].Path == pidx {
			conflict = true
			return false
		}
		return true
	})
	if conflict {
		c.sink.ReassignImmutable(e, lp)
	}
}

// ---- BorrowDelegate ----

func (c *ConflictChecker) Consume(e Element, cmt *Cmt, mode ConsumeMode, reason MoveReason) {
	lp, ok := ComputeLoanPath(cmt)
	if !ok {
		return
	}
	c.checkIfMoved(e, lp)
	if mode == ConsumeMove {
		c.checkMoveOwnership(e, lp, cmt)
		c.checkLoanConflict(e, lp, LoanUnique)
	}
}

func (c *ConflictChecker) ConsumePat(e Element, cmt *Cmt, mode ConsumeMode, reason MoveReason) {
	lp, ok := ComputeLoanPath(cmt)
	if !ok {
		return
	}
	c.checkIfMoved(e, lp)
	if mode == ConsumeMove {
		c.checkMoveOwnership(e, lp, cmt)
		c.checkLoanConflict(e, lp, LoanUnique)
	}
}

func (c *ConflictChecker) MatchedPat(e Element, cmt *Cmt, mode MatchMode) {}

func (c *ConflictChecker) Borrow(e Element, cmt *Cmt, region RegionID, kind LoanKind, cause BorrowCause) {
	lp, ok := ComputeLoanPath(cmt)
	if !ok {
		return
	}
	c.checkIfMoved(e, lp)
	c.checkLoanConflict(e, lp, kind)
}

func (c *ConflictChecker) Mutate(e Element, cmt *Cmt, mode MutateMode) {
	lp, ok := ComputeLoanPath(cmt)
	if !ok {
		return
	}
	if mode == MutateWriteAndRead {
		c.checkIfMoved(e, lp)
	}
	c.checkLoanConflict(e, lp, LoanMutable)
	c.checkReassignImmutable(e, lp)
}

func (c *ConflictChecker) DeclarationWithoutInit(b Binding, e Element) {}
