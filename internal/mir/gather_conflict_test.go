package mir

import (
	"context"
	"testing"
)

// ---- shared test fixtures ----

type fixtureOracle struct {
	mutability map[string]Mutability
}

func (o fixtureOracle) TypeOf(e Element) Ty { return Ty{} }
func (o fixtureOracle) MutabilityOf(b Binding) Mutability {
	if m, ok := o.mutability[b.ID]; ok {
		return m
	}
	return Immutable
}
func (o fixtureOracle) NamedFields(t Ty) []Field { return t.Fields }
func (o fixtureOracle) IsUnion(t Ty) bool        { return t.Union }

// fixtureScopes models a single function-wide scope "fn": every region is
// its own free scope, every binding lives in "fn", and "fn" contains every
// program point — matching SPEC_FULL.md's Open Question decision that a
// FreeRegionMap implementation is the caller's responsibility, and the
// in-repo test double need only be sufficient for single-function-body
// properties.
type fixtureScopes struct{}

func (fixtureScopes) VariableScope(b Binding) ScopeID   { return "fn" }
func (fixtureScopes) EarlyFreeScope(r RegionID) ScopeID { return ScopeID(r) }
func (fixtureScopes) FreeScope(r RegionID) ScopeID      { return ScopeID(r) }
func (fixtureScopes) IsSubScopeOf(a, b ScopeID) bool {
	return b == "fn" || a == b
}
func (fixtureScopes) Contains(e Element, s ScopeID) bool { return s == "fn" }

type recordedEvent struct {
	kind       string
	elem       Element
	cmt        *Cmt
	mode       ConsumeMode
	reason     MoveReason
	region     RegionID
	loanKind   LoanKind
	cause      BorrowCause
	mutateMode MutateMode
	binding    Binding
}

type fakeWalker struct{ events []recordedEvent }

func (w *fakeWalker) WalkBody(d BorrowDelegate) error {
	for _, e := range w.events {
		switch e.kind {
		case "consume":
			d.Consume(e.elem, e.cmt, e.mode, e.reason)
		case "consumePat":
			d.ConsumePat(e.elem, e.cmt, e.mode, e.reason)
		case "borrow":
			d.Borrow(e.elem, e.cmt, e.region, e.loanKind, e.cause)
		case "mutate":
			d.Mutate(e.elem, e.cmt, e.mutateMode)
		case "declNoInit":
			d.DeclarationWithoutInit(e.binding, e.elem)
		}
	}
	return nil
}

// nStmtFunction builds a Function with a single block of n trivial
// instructions, giving the CFG adapter n linear CFGNodes to hang Elements
// off of. The instructions themselves are never inspected by the checker.
func nStmtFunction(name string, n int) *Function {
	instr := make([]Instr, n)
	for i := range instr {
		instr[i] = Stmt{Dst: "s", Note: "stmt"}
	}
	return &Function{Name: name, Blocks: []*BasicBlock{{Name: "entry", Instr: instr}}}
}

func elem(fn string, stmt int) Element {
	return Element{Function: fn, Block: "entry", Stmt: stmt}
}

func runChecker(t *testing.T, fn *Function, oracle fixtureOracle, walker *fakeWalker) *BorrowCheckResult {
	t.Helper()
	cfg := NewMirCFG(fn)
	bc := NewBorrowChecker()
	result, err := bc.CheckFunction(context.Background(), FunctionInputs{
		Function: fn.Name, CFG: cfg, Walker: walker, TypeOracle: oracle, Scopes: fixtureScopes{},
	})
	if err != nil {
		t.Fatalf("CheckFunction returned an unexpected error: %v", err)
	}
	return result
}

func codes(result *BorrowCheckResult) []BorrowCheckErrorCode {
	out := make([]BorrowCheckErrorCode, len(result.Diagnostics))
	for i, d := range result.Diagnostics {
		out[i] = d.Code
	}
	return out
}

// ---- S1: use of a value after it has been moved ----

func TestCheckFunctionUseAfterMove(t *testing.T) {
	fn := nStmtFunction("f", 2)
	x := Binding{ID: "x", Name: "x"}
	cmtX := &Cmt{Category: CmtLocal, Binding: x}
	walker := &fakeWalker{events: []recordedEvent{
		{kind: "consume", elem: elem("f", 0), cmt: cmtX, mode: ConsumeMove, reason: ReasonDirectRefMove},
		{kind: "consume", elem: elem("f", 1), cmt: cmtX, mode: ConsumeMove, reason: ReasonDirectRefMove},
	}}
	result := runChecker(t, fn, fixtureOracle{}, walker)
	if len(result.Diagnostics) != 1 || result.Diagnostics[0].Code != ErrUseOfMoved {
		t.Fatalf("expected exactly one UseOfMoved diagnostic, got %+v", result.Diagnostics)
	}
}

// ---- S2: two overlapping mutable borrows conflict ----

func TestCheckFunctionConflictingMutableBorrows(t *testing.T) {
	fn := nStmtFunction("f", 2)
	y := Binding{ID: "y", Name: "y"}
	cmtY := &Cmt{Category: CmtLocal, Binding: y, MutCat: McDeclared, Alias: NonAliasable}
	walker := &fakeWalker{events: []recordedEvent{
		{kind: "borrow", elem: elem("f", 0), cmt: cmtY, region: "fn", loanKind: LoanMutable, cause: "ref mut 1"},
		{kind: "borrow", elem: elem("f", 1), cmt: cmtY, region: "fn", loanKind: LoanMutable, cause: "ref mut 2"},
	}}
	oracle := fixtureOracle{mutability: map[string]Mutability{"y": MutableBinding}}
	result := runChecker(t, fn, oracle, walker)
	if len(result.Diagnostics) != 1 || result.Diagnostics[0].Code != ErrMutability {
		t.Fatalf("expected exactly one loan-conflict diagnostic, got %+v", result.Diagnostics)
	}
}

// ---- S3: two shared borrows never conflict ----

func TestCheckFunctionSharedBorrowsDoNotConflict(t *testing.T) {
	fn := nStmtFunction("f", 2)
	y := Binding{ID: "y", Name: "y"}
	cmtY := &Cmt{Category: CmtLocal, Binding: y, MutCat: McDeclared, Alias: NonAliasable}
	walker := &fakeWalker{events: []recordedEvent{
		{kind: "borrow", elem: elem("f", 0), cmt: cmtY, region: "fn", loanKind: LoanShared, cause: "ref 1"},
		{kind: "borrow", elem: elem("f", 1), cmt: cmtY, region: "fn", loanKind: LoanShared, cause: "ref 2"},
	}}
	result := runChecker(t, fn, fixtureOracle{}, walker)
	if len(result.Diagnostics) != 0 {
		t.Fatalf("expected no diagnostics for two shared borrows, got %+v", result.Diagnostics)
	}
}

// ---- S4: a second write to an immutable binding is rejected ----

func TestCheckFunctionReassignImmutable(t *testing.T) {
	fn := nStmtFunction("f", 2)
	z := Binding{ID: "z", Name: "z"}
	cmtZ := &Cmt{Category: CmtLocal, Binding: z}
	walker := &fakeWalker{events: []recordedEvent{
		{kind: "mutate", elem: elem("f", 0), cmt: cmtZ, mutateMode: MutateInit},
		{kind: "mutate", elem: elem("f", 1), cmt: cmtZ, mutateMode: MutateJustWrite},
	}}
	result := runChecker(t, fn, fixtureOracle{}, walker)
	if len(result.Diagnostics) != 1 || result.Diagnostics[0].Code != ErrReassignImmutable {
		t.Fatalf("expected exactly one ReassignImmutable diagnostic, got %+v", result.Diagnostics)
	}
}

// twoScopeFixture models a function body with one local variable scope
// ("fn") nested inside one outer generic-lifetime scope ("outer") — enough
// to exercise a reborrow whose returned region outlives the local binding
// it was taken through, which fixtureScopes's single-scope model cannot
// represent (IsSubScopeOf there is trivially true against "fn").
type twoScopeFixture struct{}

func (twoScopeFixture) VariableScope(b Binding) ScopeID { return "fn" }
func (twoScopeFixture) EarlyFreeScope(r RegionID) ScopeID {
	if r == "'a" {
		return "outer"
	}
	return "fn"
}
func (twoScopeFixture) FreeScope(r RegionID) ScopeID {
	if r == "'a" {
		return "outer"
	}
	return "fn"
}
func (twoScopeFixture) IsSubScopeOf(a, b ScopeID) bool {
	if a == b {
		return true
	}
	return a == "fn" && b == "outer"
}
func (twoScopeFixture) Contains(e Element, s ScopeID) bool { return true }

func runCheckerWithScopes(t *testing.T, fn *Function, oracle fixtureOracle, scopes ScopeTree, walker *fakeWalker) *BorrowCheckResult {
	t.Helper()
	cfg := NewMirCFG(fn)
	bc := NewBorrowChecker()
	result, err := bc.CheckFunction(context.Background(), FunctionInputs{
		Function: fn.Name, CFG: cfg, Walker: walker, TypeOracle: oracle, Scopes: scopes,
	})
	if err != nil {
		t.Fatalf("CheckFunction returned an unexpected error: %v", err)
	}
	return result
}

// ---- S3: a reborrow's returned region may outlive the local binding it
// was taken through ----

func TestCheckFunctionReborrowMayOutliveLocal(t *testing.T) {
	fn := nStmtFunction("f", 1)
	v := Binding{ID: "v", Name: "v"}
	derefV := &Cmt{Category: CmtDeref, Base: &Cmt{Category: CmtLocal, Binding: v}, PtrKind: PtrRefMut, Region: "'a"}
	counter := &Cmt{
		Category: CmtInterior, Base: derefV, InteriorKind: InteriorField, Field: "counter",
		MutCat: McThroughPointer, PtrKind: PtrRefMut, Alias: NonAliasable,
	}
	walker := &fakeWalker{events: []recordedEvent{
		{kind: "borrow", elem: elem("f", 0), cmt: counter, region: "'a", loanKind: LoanMutable, cause: "&mut v.counter"},
	}}
	result := runCheckerWithScopes(t, fn, fixtureOracle{}, twoScopeFixture{}, walker)
	if len(result.Diagnostics) != 0 {
		t.Fatalf("expected no diagnostics for a reborrow returned through 'a, got %+v", result.Diagnostics)
	}
}

// ---- used_mut: a mutable loan marks its root binding, stopping at the
// first through-borrow deref ----

func TestCheckFunctionUsedMutNodes(t *testing.T) {
	fn := nStmtFunction("f", 1)
	y := Binding{ID: "y", Name: "y"}
	cmtY := &Cmt{Category: CmtLocal, Binding: y, MutCat: McDeclared, Alias: NonAliasable}
	walker := &fakeWalker{events: []recordedEvent{
		{kind: "borrow", elem: elem("f", 0), cmt: cmtY, region: "fn", loanKind: LoanMutable, cause: "ref mut"},
	}}
	oracle := fixtureOracle{mutability: map[string]Mutability{"y": MutableBinding}}
	result := runChecker(t, fn, oracle, walker)
	if len(result.UsedMutNodes) != 1 || result.UsedMutNodes[0].ID != "y" {
		t.Fatalf("expected y marked used_mut, got %+v", result.UsedMutNodes)
	}
}

func TestCheckFunctionUsedMutStopsAtThroughBorrow(t *testing.T) {
	fn := nStmtFunction("f", 1)
	v := Binding{ID: "v", Name: "v"}
	derefV := &Cmt{
		Category: CmtDeref, Base: &Cmt{Category: CmtLocal, Binding: v}, PtrKind: PtrRefMut, Region: "fn",
		MutCat: McThroughPointer, Alias: NonAliasable,
	}
	walker := &fakeWalker{events: []recordedEvent{
		{kind: "borrow", elem: elem("f", 0), cmt: derefV, region: "fn", loanKind: LoanMutable, cause: "&mut *v"},
	}}
	result := runChecker(t, fn, fixtureOracle{}, walker)
	if len(result.UsedMutNodes) != 0 {
		t.Fatalf("expected no binding marked used_mut through a mutable-reference deref, got %+v", result.UsedMutNodes)
	}
}

// ---- S5: disjoint struct fields never conflict ----

func TestCheckFunctionDisjointFieldsDoNotConflict(t *testing.T) {
	fn := nStmtFunction("f", 2)
	s := Binding{ID: "s", Name: "s"}
	base := &Cmt{Category: CmtLocal, Binding: s}
	cmtA := &Cmt{Category: CmtInterior, Base: base, InteriorKind: InteriorField, Field: "a", MutCat: McInherited, Alias: NonAliasable}
	cmtB := &Cmt{Category: CmtInterior, Base: base, InteriorKind: InteriorField, Field: "b", MutCat: McInherited, Alias: NonAliasable}
	walker := &fakeWalker{events: []recordedEvent{
		{kind: "borrow", elem: elem("f", 0), cmt: cmtA, region: "fn", loanKind: LoanMutable, cause: "a"},
		{kind: "borrow", elem: elem("f", 1), cmt: cmtB, region: "fn", loanKind: LoanMutable, cause: "b"},
	}}
	oracle := fixtureOracle{mutability: map[string]Mutability{"s": MutableBinding}}
	result := runChecker(t, fn, oracle, walker)
	if len(result.Diagnostics) != 0 {
		t.Fatalf("expected no diagnostics for two disjoint field borrows, got %+v", result.Diagnostics)
	}
}

// ---- move out of an index into an array is rejected ----

func TestCheckFunctionMoveOutOfArrayIndex(t *testing.T) {
	fn := nStmtFunction("f", 1)
	arr := Binding{ID: "arr", Name: "arr"}
	cmtElem := &Cmt{
		Category: CmtInterior, Base: &Cmt{Category: CmtLocal, Binding: arr},
		InteriorKind: InteriorIndex, Field: "0",
	}
	walker := &fakeWalker{events: []recordedEvent{
		{kind: "consume", elem: elem("f", 0), cmt: cmtElem, mode: ConsumeMove, reason: ReasonDirectRefMove},
	}}
	result := runChecker(t, fn, fixtureOracle{}, walker)
	if len(result.Diagnostics) != 1 || result.Diagnostics[0].Code != ErrMoveOutOfNonOwned {
		t.Fatalf("expected exactly one MoveOutOfNonOwned diagnostic for arr[0], got %+v", result.Diagnostics)
	}
}
