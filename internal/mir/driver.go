// Top-level driver (spec.md §5): wires the oracles, GatherLoans, and
// ConflictChecker together for one function body, and fans out across a
// whole module's functions concurrently using golang.org/x/sync/errgroup
// to fan out independent units of work with first-error cancellation.
package mir

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// FunctionInputs bundles everything CheckFunction needs for one function
// body: the CFG adapter, a UseWalker that can replay the body's events
// (gather-loans and the conflict checker each drive it once), and the two
// oracles consulted throughout.
type FunctionInputs struct {
	Function   string
	CFG        ControlFlowGraph
	Walker     UseWalker
	TypeOracle TypeOracle
	Scopes     ScopeTree
}

// BorrowChecker is the top-level entry point. It holds no per-function
// state, so one instance can drive any number of CheckFunction/CheckModule
// calls, including concurrently.
type BorrowChecker struct{}

// NewBorrowChecker constructs a BorrowChecker.
func NewBorrowChecker() *BorrowChecker { return &BorrowChecker{} }

// CheckFunction gathers loans for in.Function, propagates the three
// dataflow facts, then replays the same body through a ConflictChecker.
// The returned error is reserved for this package's own preconditions (a
// nil oracle, a cancelled context, a UseWalker that itself failed); every
// borrow/move rule violation is a Diagnostic in the result, never a Go
// error.
func (bc *BorrowChecker) CheckFunction(ctx context.Context, in FunctionInputs) (*BorrowCheckResult, error) {
	if in.CFG == nil || in.Walker == nil || in.TypeOracle == nil || in.Scopes == nil {
		return nil, fmt.Errorf("mir: CheckFunction(%s): incomplete oracle set", in.Function)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sink := NewDiagnosticSink()

	gatherer := NewGatherLoans(in.TypeOracle, in.Scopes, sink)
	result, err := gatherer.Run(in.Function, in.CFG, in.Walker)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	checker := NewConflictChecker(in.TypeOracle, in.Scopes, sink, result, in.CFG)
	if err := in.Walker.WalkBody(checker); err != nil {
		return nil, fmt.Errorf("mir: replay walk for %s: %w", in.Function, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &BorrowCheckResult{Function: in.Function, Diagnostics: sink.Diagnostics(), UsedMutNodes: result.UsedMutNodes}, nil
}

// CheckModule runs CheckFunction over every entry of inputs concurrently,
// cancelling the remaining work and returning the first internal error any
// one of them hits. Results are returned in the same order as inputs.
func (bc *BorrowChecker) CheckModule(ctx context.Context, inputs []FunctionInputs) ([]*BorrowCheckResult, error) {
	results := make([]*BorrowCheckResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			res, err := bc.CheckFunction(gctx, in)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
