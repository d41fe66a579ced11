// Gather-loans visitor (spec.md §4.3, §4.7, §4.9): drives a single pass
// over a function body's UseWalker events, building the Loan list and the
// MoveData tree, then compiles both into DataflowEngine instances ready for
// Propagate. This is the only place that constructs a Loan or calls
// MoveData.AddMove/AddAssignment.
package mir

import (
	"fmt"
	"sort"
)

// GatherLoans implements BorrowDelegate. One instance is used for exactly
// one function body.
type GatherLoans struct {
	oracle TypeOracle
	scopes ScopeTree
	sink   *DiagnosticSink

	cfg      ControlFlowGraph
	index    map[Element]CFGNode
	nodeElem map[CFGNode]Element

	moveData *MoveData
	loans    []*Loan
	loanSeq  int

	// usedMut accumulates the bindings spec.md §4.4 asks to mark used_mut,
	// keyed by Binding.ID to dedupe a binding borrowed mutably more than
	// once in the same body.
	usedMut map[string]Binding

	// Trace, forwarded verbatim to the constructed engines, and also used
	// directly here for the borrow_start/move/write events gather.go itself
	// observes (spec.md §6's supplemented borrow-event log).
	Trace func(BorrowEvent)
}

// NewGatherLoans creates a visitor for one function body. sink receives any
// Mutability/OutOfScope/BorrowedPointerTooShort diagnostic a borrow fails
// at gather time; the remaining diagnostic codes are emitted later, by the
// conflict checker, once dataflow has run.
func NewGatherLoans(oracle TypeOracle, scopes ScopeTree, sink *DiagnosticSink) *GatherLoans {
	return &GatherLoans{
		oracle:   oracle,
		scopes:   scopes,
		sink:     sink,
		moveData: NewMoveData(oracle),
		usedMut:  make(map[string]Binding),
	}
}

// GatherResult is everything the conflict checker needs: the move tree and
// three dataflow engines already propagated to fixpoint, plus the bindings
// used mutably (spec.md §4.4, §6's Produced BorrowCheckResult.usedMutNodes).
type GatherResult struct {
	MoveData *MoveData
	Loans    []*Loan

	LoanEngine   *DataflowEngine
	MoveEngine   *DataflowEngine
	AssignEngine *DataflowEngine

	UsedMutNodes []Binding
}

func (g *GatherLoans) emit(kind BorrowEventKind, path string, e Element) {
	if g.Trace != nil {
		g.Trace(BorrowEvent{Kind: kind, Path: path, Element: e})
	}
}

func (g *GatherLoans) nextLoanID() string {
	g.loanSeq++
	return fmt.Sprintf("loan_%d", g.loanSeq-1)
}

// Run walks function via walker, then compiles the gathered loans and
// moves into three propagated DataflowEngine instances.
func (g *GatherLoans) Run(function string, cfg ControlFlowGraph, walker UseWalker) (*GatherResult, error) {
	g.cfg = cfg
	g.index = cfg.BuildLocalIndex()
	g.nodeElem = make(map[CFGNode]Element, len(g.index))
	for e, n := range g.index {
		g.nodeElem[n] = e
	}

	if err := walker.WalkBody(g); err != nil {
		return nil, fmt.Errorf("mir: gather loans for %s: %w", function, err)
	}

	loanEngine := g.buildLoanEngine(cfg)
	moveEngine := g.buildMoveEngine(cfg)
	assignEngine := g.buildAssignEngine(cfg)

	usedMut := make([]Binding, 0, len(g.usedMut))
	for _, b := range g.usedMut {
		usedMut = append(usedMut, b)
	}
	sort.Slice(usedMut, func(i, j int) bool { return usedMut[i].ID < usedMut[j].ID })

	return &GatherResult{
		MoveData:     g.moveData,
		Loans:        g.loans,
		LoanEngine:   loanEngine,
		MoveEngine:   moveEngine,
		AssignEngine: assignEngine,
		UsedMutNodes: usedMut,
	}, nil
}

// scopeKillNodes returns every CFG node that lies within scope s but none
// of whose successors does (including a node with no successor at all,
// i.e. a function exit) — the statements where control actually leaves s.
// A node with at least one successor still inside s is not returned.
func (g *GatherLoans) scopeKillNodes(s ScopeID) []CFGNode {
	var out []CFGNode
	for n, e := range g.nodeElem {
		if !g.scopes.Contains(e, s) {
			continue
		}
		exits := true
		for _, succ := range g.cfg.Successors(n) {
			se, ok := g.nodeElem[succ]
			if ok && g.scopes.Contains(se, s) {
				exits = false
				break
			}
		}
		if exits {
			out = append(out, n)
		}
	}
	return out
}

func (g *GatherLoans) buildLoanEngine(cfg ControlFlowGraph) *DataflowEngine {
	e := NewDataflowEngine("loans", cfg, len(g.loans))
	e.Trace = g.Trace
	for i, loan := range g.loans {
		if n, ok := g.index[loan.GenElement]; ok {
			e.AddGen(n, i)
		}
		for _, n := range g.scopeKillNodes(loan.KillScope) {
			e.AddKill(KillScopeEnd, n, i)
		}
	}
	e.Propagate()
	return e
}

func (g *GatherLoans) buildMoveEngine(cfg ControlFlowGraph) *DataflowEngine {
	n := g.moveData.NumMoves()
	e := NewDataflowEngine("moves", cfg, n)
	e.Trace = g.Trace

	for i := 0; i < n; i++ {
		m := g.moveData.Move(MoveIndex(i))
		if node, ok := g.index[m.Element]; ok {
			e.AddGen(node, i)
		}
		path := g.moveData.Path(m.Path).LP
		// Per spec.md §4.9's precision restriction: only a precise path
		// (no Interior projection) can be scope-killed; an imprecise path
		// is revived only by an exact covering assignment.
		if path.IsPrecise() {
			for _, node := range g.scopeKillNodes(path.KillScope(g.scopes)) {
				e.AddKill(KillScopeEnd, node, i)
			}
		}
	}

	applyAssignment := func(a Assignment) {
		node, ok := g.index[a.Element]
		if !ok {
			return
		}
		g.moveData.EachExtendingPath(a.Path, func(idx MovePathIndex) bool {
			g.moveData.EachMove(idx, func(mi MoveIndex, _ *Move) bool {
				e.AddKill(KillExecution, node, int(mi))
				return true
			})
			return true
		})
	}
	for _, a := range g.moveData.VarAssignments() {
		applyAssignment(a)
	}
	for _, a := range g.moveData.PathAssignments() {
		applyAssignment(a)
	}

	e.Propagate()
	return e
}

func (g *GatherLoans) buildAssignEngine(cfg ControlFlowGraph) *DataflowEngine {
	vas := g.moveData.VarAssignments()
	e := NewDataflowEngine("var-assignments", cfg, len(vas))
	e.Trace = g.Trace
	for i, a := range vas {
		if node, ok := g.index[a.Element]; ok {
			e.AddGen(node, i)
		}
	}
	// No kill: reaching-assignment facts accumulate, so the conflict
	// checker can tell a single assignment from more than one distinct
	// assignment instance reaching the same point.
	e.Propagate()
	return e
}

// ---- BorrowDelegate ----

func (g *GatherLoans) Consume(e Element, cmt *Cmt, mode ConsumeMode, reason MoveReason) {
	if mode != ConsumeMove {
		return
	}
	lp, ok := ComputeLoanPath(cmt)
	if !ok {
		return
	}
	kind := MoveExpr
	if reason == ReasonCaptureMove {
		kind = MoveCaptured
	}
	g.moveData.AddMove(lp, e, kind)
	g.emit(EventMove, lp.Key(), e)
}

func (g *GatherLoans) ConsumePat(e Element, cmt *Cmt, mode ConsumeMode, reason MoveReason) {
	if mode != ConsumeMove {
		return
	}
	lp, ok := ComputeLoanPath(cmt)
	if !ok {
		return
	}
	_ = reason
	g.moveData.AddMove(lp, e, MovePat)
	g.emit(EventMove, lp.Key(), e)
}

func (g *GatherLoans) MatchedPat(e Element, cmt *Cmt, mode MatchMode) {
	// Informational only (spec.md §4.1): matching by reference or by value
	// without consuming requires no checker action.
}

func (g *GatherLoans) Borrow(e Element, cmt *Cmt, region RegionID, kind LoanKind, cause BorrowCause) {
	lpForDiag, _ := ComputeLoanPath(cmt)

	if !checkMutability(g.oracle, cmt) && kind != LoanShared {
		g.sink.Mutability(e, lpForDiag)
		return
	}
	if !checkAliasability(cmt, kind) {
		g.sink.Mutability(e, lpForDiag)
		return
	}

	loanScope := g.scopes.FreeScope(region)

	if violation := guaranteeLifetime(g.scopes, loanScope, cmt); violation != nil {
		switch violation.Kind {
		case ViolationOutOfScope:
			g.sink.OutOfScope(e, violation.LocalScope, loanScope, cause)
		default:
			g.sink.BorrowedPointerTooShort(e, region, violation.PointerRegion)
		}
		return
	}

	restriction := computeRestrictions(cmt, kind)
	if restriction.Safe {
		return
	}

	// killScope = min(loanScope, lexicalScope(LP)) by sub-scope relation
	// (spec.md §4.7): a reborrow through a mutable reference may outlive the
	// local binding it was taken through, so the kill scope is clamped to
	// whichever of the two is the more nested scope rather than gated
	// against the root binding's own declaration scope.
	killScope := loanScope
	if lexScope := lexicalScopeForLoan(g.scopes, cmt); g.scopes.IsSubScopeOf(lexScope, loanScope) {
		killScope = lexScope
	}

	loan := &Loan{
		ID:         g.nextLoanID(),
		Path:       restriction.LoanPath,
		Kind:       kind,
		Restricted: restriction.Restricted,
		GenElement: e,
		KillScope:  killScope,
		Cause:      cause,
	}
	g.loans = append(g.loans, loan)
	g.emit(EventBorrowStart, loan.Path.Key(), e)

	if kind == LoanMutable || kind == LoanUnique {
		if b, ok := rootUsedMutBinding(cmt); ok {
			g.usedMut[b.ID] = b
		}
	}
}

func (g *GatherLoans) Mutate(e Element, cmt *Cmt, mode MutateMode) {
	lp, ok := ComputeLoanPath(cmt)
	if !ok {
		return
	}
	g.moveData.AddAssignment(lp, e, lp.RootBinding())
	g.emit(EventWrite, lp.Key(), e)
}

func (g *GatherLoans) DeclarationWithoutInit(b Binding, e Element) {
	lp := &LoanPath{Kind: LpVar, Binding: b, Ty: g.oracle.TypeOf(e)}
	g.moveData.AddMove(lp, e, MoveDeclared)
}
