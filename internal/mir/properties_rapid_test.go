package mir

import (
	"testing"

	"pgregory.net/rapid"
)

// Six invariants spec.md §8 asks to hold for any input, checked here with
// pgregory.net/rapid instead of hand-picked example tables.

// 1. Loan path determinism: computing a LoanPath for the same Cmt shape
// twice always yields the same canonical key.
func TestPropertyLoanPathKeyIsDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		depth := rapid.IntRange(0, 5).Draw(rt, "depth")
		binding := Binding{ID: rapid.StringMatching(`[a-z][a-z0-9]{0,4}`).Draw(rt, "binding")}
		cmt := &Cmt{Category: CmtLocal, Binding: binding}
		for i := 0; i < depth; i++ {
			field := rapid.StringMatching(`[a-z]{1,3}`).Draw(rt, "field")
			cmt = &Cmt{Category: CmtInterior, Base: cmt, InteriorKind: InteriorField, Field: field}
		}
		lp1, ok1 := ComputeLoanPath(cmt)
		lp2, ok2 := ComputeLoanPath(cmt)
		if ok1 != ok2 {
			rt.Fatalf("ComputeLoanPath ok-ness must be deterministic")
		}
		if ok1 && lp1.Key() != lp2.Key() {
			rt.Fatalf("ComputeLoanPath must be deterministic, got %q then %q", lp1.Key(), lp2.Key())
		}
	})
}

// 2. Sibling disjointness: two distinct fields of the same base always
// fork; the same field compared with itself never does.
func TestPropertySiblingDisjointness(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := varLP(rapid.StringMatching(`[a-z][a-z0-9]{0,4}`).Draw(rt, "base"))
		fa := rapid.StringMatching(`[a-z]{1,3}`).Draw(rt, "fa")
		fb := rapid.StringMatching(`[a-z]{1,3}`).Draw(rt, "fb")
		lpa := fieldLP(base, fa)
		lpb := fieldLP(base, fb)
		fork := HasFork(lpa, lpb)
		if fa == fb {
			if fork {
				rt.Fatalf("identical field projections must not fork")
			}
		} else {
			if !fork {
				rt.Fatalf("distinct sibling fields %q/%q must fork", fa, fb)
			}
		}
	})
}

// 3. Union broadcast: moving one field of a union always records every
// named field of that union in the move-path tree. (The struct case is
// covered by TestMoveDataNoBroadcastForStruct.)
func TestPropertyUnionBroadcastCoversAllSiblings(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "n")
		names := make([]string, n)
		seen := make(map[string]bool, n)
		for i := range names {
			for {
				name := rapid.StringMatching(`[a-z]{1,4}`).Draw(rt, "field")
				if !seen[name] {
					seen[name] = true
					names[i] = name
					break
				}
			}
		}
		fields := make([]Field, n)
		for i, name := range names {
			fields[i] = Field{Name: name}
		}
		unionTy := Ty{Name: "U", Union: true, Fields: fields}
		moved := rapid.IntRange(0, n-1).Draw(rt, "movedIndex")

		base := varLP("x")
		base.Ty = unionTy
		lp := fieldLP(base, names[moved])

		md := NewMoveData(movedataTestOracle{})
		md.AddMove(lp, Element{Function: "f", Block: "b", Stmt: 0}, MoveExpr)

		for i, name := range names {
			_, ok := md.LookupPath(fieldLP(base, name))
			if !ok {
				rt.Fatalf("field %q (index %d) was not recorded by the union broadcast", name, i)
			}
		}
	})
}

// 4. Dataflow monotonicity / kill dominance: on a linear chain, a bit
// generated at node 0 and killed at node k is live at every node before k
// (inclusive of entry to k) and at no node after k.
func TestPropertyDataflowKillDominance(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		length := rapid.IntRange(2, 12).Draw(rt, "length")
		killAt := rapid.IntRange(1, length-1).Draw(rt, "killAt")
		killKind := KillScopeEnd
		if rapid.Bool().Draw(rt, "actionKill") {
			killKind = KillExecution
		}

		nodes := make([]CFGNode, length)
		succs := make(map[CFGNode][]CFGNode, length)
		for i := 0; i < length; i++ {
			nodes[i] = CFGNode(i)
			if i+1 < length {
				succs[CFGNode(i)] = []CFGNode{CFGNode(i + 1)}
			}
		}
		cfg := &fakeCFG{nodes: nodes, succs: succs}

		e := NewDataflowEngine("prop", cfg, 1)
		e.AddGen(0, 0)
		e.AddKill(killKind, CFGNode(killAt), 0)
		e.Propagate()

		for i := 0; i <= killAt; i++ {
			if !e.BitOnEntry(CFGNode(i), 0) && i != 0 {
				rt.Fatalf("expected bit live on entry to node %d (before the kill takes effect)", i)
			}
		}
		for i := killAt + 1; i < length; i++ {
			if e.BitOnEntry(CFGNode(i), 0) {
				rt.Fatalf("expected bit dead on entry to node %d, downstream of the kill at %d", i, killAt)
			}
		}
	})
}

// 5. Restriction soundness: computeRestrictions never claims Safe for a
// mutable or unique loan reached through a Box (unique pointer) or a
// mutable reference — both require tracking a restriction, since the
// borrow checker must still prevent the underlying storage from moving or
// being overwritten while such a loan is outstanding. A shared loan through
// the same chain is exempted: computeRestrictions collapses a shared
// reborrow through a mutable reference to Safe (spec.md §4.4), so this
// property is only meaningful for LoanMutable/LoanUnique.
func TestPropertyRestrictionSoundnessForOwnedChains(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		depth := rapid.IntRange(1, 4).Draw(rt, "depth")
		binding := Binding{ID: "x"}
		cmt := &Cmt{Category: CmtLocal, Binding: binding}
		for i := 0; i < depth; i++ {
			kind := PtrUnique
			if rapid.Bool().Draw(rt, "mutRef") {
				kind = PtrRefMut
			}
			cmt = &Cmt{Category: CmtDeref, Base: cmt, PtrKind: kind}
		}
		loanKind := LoanUnique
		if rapid.Bool().Draw(rt, "mutableInsteadOfUnique") {
			loanKind = LoanMutable
		}
		r := computeRestrictions(cmt, loanKind)
		if r.Safe {
			rt.Fatalf("a chain of Box/mutable-reference derefs must never be Safe for a non-shared loan")
		}
	})
}

// 6. Dataflow propagation is a stable fixpoint: running it twice from the
// same gen/kill configuration must not change the result.
func TestPropertyPropagateIsAFixpoint(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		length := rapid.IntRange(2, 10).Draw(rt, "length")
		nodes := make([]CFGNode, length)
		succs := make(map[CFGNode][]CFGNode, length)
		for i := 0; i < length; i++ {
			nodes[i] = CFGNode(i)
			if i+1 < length {
				succs[CFGNode(i)] = []CFGNode{CFGNode(i + 1)}
			}
		}
		cfg := &fakeCFG{nodes: nodes, succs: succs}
		genAt := rapid.IntRange(0, length-1).Draw(rt, "genAt")

		e := NewDataflowEngine("prop", cfg, 1)
		e.AddGen(CFGNode(genAt), 0)
		e.Propagate()
		first := e.BitOnEntry(CFGNode(length-1), 0)
		e.Propagate()
		second := e.BitOnEntry(CFGNode(length-1), 0)
		if first != second {
			rt.Fatalf("Propagate must be idempotent once at fixpoint")
		}
	})
}
