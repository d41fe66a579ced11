// MoveData accumulates every move, assignment, and declared-uninitialized
// binding observed while gathering loans for a function body, keyed by loan
// path (spec.md §3, §4.3). It is the backing store for the "moves" and
// "var-assignments" dataflow instantiations built in gather.go.
//
// Paths form a tree addressed by integer index rather than owned pointers
// with back-references (spec.md §9's preferred shape): a flat
// []MovePath keeps the structure trivially stable across appends and
// sidesteps any question of node identity across the analysis lifetime.
package mir

import (
	"fmt"
	"strings"
)

// MovePathIndex addresses a node in MoveData.paths. noMovePath marks an
// absent parent (the tree root level).
type MovePathIndex int

const noMovePath MovePathIndex = -1

// MoveIndex addresses a node in MoveData.moves. noMove marks the end of a
// per-path intrusive move list.
type MoveIndex int

const noMove MoveIndex = -1

// MovePath is one node of the loan-path tree: it keys a LoanPath to its
// parent, first child, next sibling, and the head of its move list.
type MovePath struct {
	LP          *LoanPath
	Parent      MovePathIndex
	FirstChild  MovePathIndex
	NextSibling MovePathIndex
	FirstMove   MoveIndex
}

// MoveRecordKind classifies why a Move was recorded.
type MoveRecordKind int

const (
	MoveDeclared MoveRecordKind = iota // variable begins uninitialized
	MoveExpr                           // moved by a consuming expression use
	MovePat                            // moved by a by-move pattern binding
	MoveCaptured                       // moved by closure capture (a ReasonCaptureMove consume)
)

func (k MoveRecordKind) String() string {
	switch k {
	case MoveDeclared:
		return "declared"
	case MoveExpr:
		return "move-expr"
	case MovePat:
		return "move-pat"
	case MoveCaptured:
		return "captured"
	default:
		return "move?"
	}
}

// Move is one recorded transfer of ownership out of a path.
type Move struct {
	Path     MovePathIndex
	Element  Element
	Kind     MoveRecordKind
	NextMove MoveIndex
}

// Assignment is one recorded write to a path, classified by MoveData as a
// variable assignment (bare binding) or a path assignment (any path with a
// parent: a field, index, deref or downcast step).
type Assignment struct {
	Path     MovePathIndex
	Element  Element
	Assignee Binding
}

// MoveData is the accumulator described in spec.md §3. It is built once per
// function body and discarded at the end of the analysis.
type MoveData struct {
	oracle TypeOracle

	paths   []MovePath
	pathMap map[string]MovePathIndex

	moves []Move

	varAssignments  []Assignment
	pathAssignments []Assignment

	// assigneeElements is the set of places for which a (non-compound)
	// assignment has been observed, keyed by LoanPath.Key().
	assigneeElements map[string]struct{}
}

// NewMoveData creates an empty accumulator. oracle is consulted only for
// the union-field broadcast rule (IsUnion/NamedFields).
func NewMoveData(oracle TypeOracle) *MoveData {
	return &MoveData{
		oracle:           oracle,
		pathMap:          make(map[string]MovePathIndex),
		assigneeElements: make(map[string]struct{}),
	}
}

// ensurePath inserts lp and every ancestor not already present, root first,
// and returns its index. Re-inserting an already-known path is a no-op
// lookup.
func (md *MoveData) ensurePath(lp *LoanPath) MovePathIndex {
	key := lp.Key()
	if idx, ok := md.pathMap[key]; ok {
		return idx
	}

	parent := noMovePath
	if lp.Base != nil {
		parent = md.ensurePath(lp.Base)
	}

	idx := MovePathIndex(len(md.paths))
	md.paths = append(md.paths, MovePath{
		LP: lp, Parent: parent, FirstChild: noMovePath, NextSibling: noMovePath, FirstMove: noMove,
	})
	md.pathMap[key] = idx

	if parent != noMovePath {
		md.paths[idx].NextSibling = md.paths[parent].FirstChild
		md.paths[parent].FirstChild = idx
	}
	return idx
}

// replaceAncestorField returns a LoanPath structurally identical to lp
// except that the ancestor node equal to target (by pointer identity,
// found by walking lp's own Base chain) has its Interior field swapped to
// newField. Used to synthesize sibling union-field paths.
func replaceAncestorField(lp, target *LoanPath, newField string) *LoanPath {
	if lp == target {
		clone := *lp
		clone.Elem.Field = newField
		return &clone
	}
	clone := *lp
	clone.Base = replaceAncestorField(lp.Base, target, newField)
	return &clone
}

// unionBroadcastSiblings implements the union-fields rule (spec.md §4.3):
// when lp (or one of its ancestors) is Extend(base, Interior(field)) and
// base's type is a union, every other field of that union aliases the same
// storage and must receive the same move/assignment.
func (md *MoveData) unionBroadcastSiblings(lp *LoanPath) []*LoanPath {
	if md.oracle == nil {
		return nil
	}
	var out []*LoanPath
	for p := lp; p != nil; p = p.Base {
		if p.Kind != LpExtend || p.Elem.Kind != ElemInterior {
			continue
		}
		base := p.Base
		if base == nil || !md.oracle.IsUnion(base.Ty) {
			continue
		}
		for _, f := range md.oracle.NamedFields(base.Ty) {
			if f.Name == p.Elem.Field {
				continue
			}
			out = append(out, replaceAncestorField(lp, p, f.Name))
		}
	}
	return out
}

// AddMove inserts a move on lp at element, broadcasting to union siblings
// first per the rule above, then recording the move itself.
func (md *MoveData) AddMove(lp *LoanPath, element Element, kind MoveRecordKind) {
	for _, sib := range md.unionBroadcastSiblings(lp) {
		md.recordMove(sib, element, kind)
	}
	md.recordMove(lp, element, kind)
}

func (md *MoveData) recordMove(lp *LoanPath, element Element, kind MoveRecordKind) MoveIndex {
	pathIdx := md.ensurePath(lp)
	moveIdx := MoveIndex(len(md.moves))
	md.moves = append(md.moves, Move{
		Path: pathIdx, Element: element, Kind: kind, NextMove: md.paths[pathIdx].FirstMove,
	})
	md.paths[pathIdx].FirstMove = moveIdx
	return moveIdx
}

// AddAssignment inserts an assignment on lp at element, broadcasting to
// union siblings first, then classifying the assignment as a variable or
// path assignment via IsVariablePath.
func (md *MoveData) AddAssignment(lp *LoanPath, element Element, assignee Binding) {
	for _, sib := range md.unionBroadcastSiblings(lp) {
		md.recordAssignment(sib, element, assignee)
	}
	md.recordAssignment(lp, element, assignee)
}

func (md *MoveData) recordAssignment(lp *LoanPath, element Element, assignee Binding) {
	pathIdx := md.ensurePath(lp)
	a := Assignment{Path: pathIdx, Element: element, Assignee: assignee}
	if IsVariablePath(lp) {
		md.varAssignments = append(md.varAssignments, a)
	} else {
		md.pathAssignments = append(md.pathAssignments, a)
	}
	md.assigneeElements[lp.Key()] = struct{}{}
}

// LookupPath returns the index of lp if it has already been inserted.
func (md *MoveData) LookupPath(lp *LoanPath) (MovePathIndex, bool) {
	idx, ok := md.pathMap[lp.Key()]
	return idx, ok
}

// ExistingBasePaths returns, innermost first, the index of every ancestor
// of lp (lp included) that has already been inserted into the tree. Used
// by the conflict checker to find which of a used place's ancestors might
// carry a move bit.
func (md *MoveData) ExistingBasePaths(lp *LoanPath) []MovePathIndex {
	var out []MovePathIndex
	for p := lp; p != nil; p = p.Base {
		if idx, ok := md.pathMap[p.Key()]; ok {
			out = append(out, idx)
		}
	}
	return out
}

// EachExtendingPath visits idx and every path in its subtree (its
// descendants via FirstChild/NextSibling), root first, until f returns
// false.
func (md *MoveData) EachExtendingPath(idx MovePathIndex, f func(MovePathIndex) bool) bool {
	if idx == noMovePath {
		return true
	}
	if !f(idx) {
		return false
	}
	for child := md.paths[idx].FirstChild; child != noMovePath; child = md.paths[child].NextSibling {
		if !md.EachExtendingPath(child, f) {
			return false
		}
	}
	return true
}

// EachMove visits every move recorded against idx, most recent first.
func (md *MoveData) EachMove(idx MovePathIndex, f func(MoveIndex, *Move) bool) bool {
	for m := md.paths[idx].FirstMove; m != noMove; m = md.moves[m].NextMove {
		if !f(m, &md.moves[m]) {
			return false
		}
	}
	return true
}

func (md *MoveData) Path(idx MovePathIndex) *MovePath { return &md.paths[idx] }
func (md *MoveData) Move(idx MoveIndex) *Move          { return &md.moves[idx] }
func (md *MoveData) NumPaths() int                     { return len(md.paths) }
func (md *MoveData) NumMoves() int                     { return len(md.moves) }
func (md *MoveData) VarAssignments() []Assignment       { return md.varAssignments }
func (md *MoveData) PathAssignments() []Assignment      { return md.pathAssignments }

// HasAssignee reports whether any assignment has ever targeted exactly lp
// (not an ancestor or descendant — structural equality only).
func (md *MoveData) HasAssignee(lp *LoanPath) bool {
	_, ok := md.assigneeElements[lp.Key()]
	return ok
}

func (md *MoveData) String() string {
	var b strings.Builder
	b.WriteString("MoveData {\n  paths:\n")
	for i, p := range md.paths {
		fmt.Fprintf(&b, "    [%d] %s (parent=%d)\n", i, p.LP.Key(), p.Parent)
	}
	b.WriteString("  moves:\n")
	for i, m := range md.moves {
		fmt.Fprintf(&b, "    [%d] path=%d %s at %s\n", i, m.Path, m.Kind, m.Element)
	}
	b.WriteString("}\n")
	return b.String()
}
