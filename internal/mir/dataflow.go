// Generic forward bit-vector dataflow engine (spec.md §3, §4.8, §4.9). The
// same engine type is instantiated three times by gather.go: once for loans,
// once for moves, and once for variable assignments. None of the three
// fixpoint computations know anything about borrows or moves — only which
// bits are generated, killed at scope end, and killed by an action.
package mir

import (
	"fmt"
	"strings"
)

// CFGNode is an opaque handle into a ControlFlowGraph, valid only for calls
// back into the graph that produced it.
type CFGNode int

// ControlFlowGraph is the oracle the dataflow engine walks. Node identity
// and successor edges are all it needs; BuildLocalIndex lets callers (e.g.
// gather.go) translate an Element into the node that contains it.
type ControlFlowGraph interface {
	NodesInPostOrder() []CFGNode
	Successors(n CFGNode) []CFGNode
	BuildLocalIndex() map[Element]CFGNode
}

// KillKind distinguishes the two ways a bit can be removed from the live
// set, per spec.md §4.9: a scope-kill happens unconditionally once control
// leaves the bit's defining scope; an action-kill happens only because some
// later action (an overwrite, say) definitely invalidates it.
type KillKind int

const (
	KillScopeEnd KillKind = iota
	KillExecution
)

// bitset is a fixed-width set of small integers backed by a uint64 slice.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) set(i int)  { b[i/64] |= 1 << uint(i%64) }
func (b bitset) get(i int) bool {
	return b[i/64]&(1<<uint(i%64)) != 0
}

func (b bitset) clone() bitset {
	out := make(bitset, len(b))
	copy(out, b)
	return out
}

// orWith ORs other into b in place and reports whether b changed.
func (b bitset) orWith(other bitset) bool {
	changed := false
	for i := range b {
		merged := b[i] | other[i]
		if merged != b[i] {
			b[i] = merged
			changed = true
		}
	}
	return changed
}

// andNotWith clears every bit set in other from b, in place.
func (b bitset) andNotWith(other bitset) {
	for i := range b {
		b[i] &^= other[i]
	}
}

func (b bitset) equal(other bitset) bool {
	for i := range b {
		if b[i] != other[i] {
			return false
		}
	}
	return true
}

func (b bitset) each(f func(bit int) bool) bool {
	for word := range b {
		if b[word] == 0 {
			continue
		}
		for bit := 0; bit < 64; bit++ {
			if b[word]&(1<<uint(bit)) == 0 {
				continue
			}
			if !f(word*64 + bit) {
				return false
			}
		}
	}
	return true
}

// BorrowEventKind classifies one entry of the opt-in trace log. The trace
// is purely observational: nothing in conflict.go ever reads it back.
type BorrowEventKind int

const (
	EventBorrowStart BorrowEventKind = iota
	EventBorrowEnd
	EventMove
	EventWrite
	EventDrop
)

func (k BorrowEventKind) String() string {
	switch k {
	case EventBorrowStart:
		return "borrow_start"
	case EventBorrowEnd:
		return "borrow_end"
	case EventMove:
		return "move"
	case EventWrite:
		return "write"
	case EventDrop:
		return "drop"
	default:
		return "event?"
	}
}

// BorrowEvent is one entry of the opt-in trace log (DataflowEngine.Trace).
// Path is a free-form label (typically a LoanPath.Key() or loan id), kept
// as a string so the log stays decoupled from any one engine's bit
// numbering.
type BorrowEvent struct {
	Kind    BorrowEventKind
	Path    string
	Element Element
}

// DataflowEngine runs the monotone forward fixpoint described in spec.md
// §4.8 over an arbitrary bit assignment. Callers populate Gen/Kill sets
// with AddGen/AddKill before calling Propagate, then read results back with
// EachBitOnEntry/EachGenBit.
type DataflowEngine struct {
	Name string
	cfg  ControlFlowGraph
	bits int

	gen        map[CFGNode]bitset
	scopeKill  map[CFGNode]bitset
	actionKill map[CFGNode]bitset
	onEntry    map[CFGNode]bitset
	exit       map[CFGNode]bitset

	preds map[CFGNode][]CFGNode

	// Trace, when non-nil, receives one BorrowEvent per call to Emit. It
	// never influences Propagate or any checker decision.
	Trace func(BorrowEvent)
}

// NewDataflowEngine creates an engine over cfg with bits independent
// dataflow facts.
func NewDataflowEngine(name string, cfg ControlFlowGraph, bits int) *DataflowEngine {
	e := &DataflowEngine{
		Name:       name,
		cfg:        cfg,
		bits:       bits,
		gen:        make(map[CFGNode]bitset),
		scopeKill:  make(map[CFGNode]bitset),
		actionKill: make(map[CFGNode]bitset),
		onEntry:    make(map[CFGNode]bitset),
		exit:       make(map[CFGNode]bitset),
	}
	return e
}

func (e *DataflowEngine) nodeBits(set map[CFGNode]bitset, n CFGNode) bitset {
	b, ok := set[n]
	if !ok {
		b = newBitset(e.bits)
		set[n] = b
	}
	return b
}

// AddGen marks bit as generated at node n.
func (e *DataflowEngine) AddGen(n CFGNode, bit int) {
	e.nodeBits(e.gen, n).set(bit)
}

// AddKill marks bit as killed at node n, with the given kind.
func (e *DataflowEngine) AddKill(kind KillKind, n CFGNode, bit int) {
	switch kind {
	case KillScopeEnd:
		e.nodeBits(e.scopeKill, n).set(bit)
	case KillExecution:
		e.nodeBits(e.actionKill, n).set(bit)
	}
}

// Emit appends a trace entry if Trace is set; otherwise it is a no-op.
func (e *DataflowEngine) Emit(kind BorrowEventKind, path string, elem Element) {
	if e.Trace != nil {
		e.Trace(BorrowEvent{Kind: kind, Path: path, Element: elem})
	}
}

func (e *DataflowEngine) computePreds(nodes []CFGNode) map[CFGNode][]CFGNode {
	preds := make(map[CFGNode][]CFGNode, len(nodes))
	for _, n := range nodes {
		for _, s := range e.cfg.Successors(n) {
			preds[s] = append(preds[s], n)
		}
	}
	return preds
}

// Propagate runs the fixpoint: exit(n) = (onEntry(n) ∪ gen(n)) \
// actionKill(n) \ scopeKill(n), onEntry(n) = ∪ exit(p) over predecessors p,
// iterated over reverse post-order until no exit set changes.
func (e *DataflowEngine) Propagate() {
	postOrder := e.cfg.NodesInPostOrder()
	rpo := make([]CFGNode, len(postOrder))
	for i, n := range postOrder {
		rpo[len(postOrder)-1-i] = n
	}
	if e.preds == nil {
		e.preds = e.computePreds(postOrder)
	}

	for _, n := range postOrder {
		if _, ok := e.exit[n]; !ok {
			e.exit[n] = newBitset(e.bits)
		}
		if _, ok := e.gen[n]; !ok {
			e.gen[n] = newBitset(e.bits)
		}
		if _, ok := e.actionKill[n]; !ok {
			e.actionKill[n] = newBitset(e.bits)
		}
		if _, ok := e.scopeKill[n]; !ok {
			e.scopeKill[n] = newBitset(e.bits)
		}
	}

	changed := true
	for changed {
		changed = false
		for _, n := range rpo {
			entry := newBitset(e.bits)
			for _, p := range e.preds[n] {
				entry.orWith(e.exit[p])
			}
			e.onEntry[n] = entry

			next := entry.clone()
			next.orWith(e.gen[n])
			next.andNotWith(e.actionKill[n])
			next.andNotWith(e.scopeKill[n])

			if !next.equal(e.exit[n]) {
				e.exit[n] = next
				changed = true
			}
		}
	}
}

// EachBitOnEntry visits every bit set in onEntry(n), in ascending order,
// until f returns false.
func (e *DataflowEngine) EachBitOnEntry(n CFGNode, f func(bit int) bool) bool {
	b, ok := e.onEntry[n]
	if !ok {
		return true
	}
	return b.each(f)
}

// EachGenBit visits every bit generated at n.
func (e *DataflowEngine) EachGenBit(n CFGNode, f func(bit int) bool) bool {
	b, ok := e.gen[n]
	if !ok {
		return true
	}
	return b.each(f)
}

// BitOnEntry reports whether bit is live on entry to n. It is a thin
// convenience wrapper over EachBitOnEntry for single-bit queries.
func (e *DataflowEngine) BitOnEntry(n CFGNode, bit int) bool {
	live := false
	e.EachBitOnEntry(n, func(b int) bool {
		if b == bit {
			live = true
			return false
		}
		return true
	})
	return live
}

func (e *DataflowEngine) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "DataflowEngine(%s) {\n", e.Name)
	for n, bits := range e.exit {
		fmt.Fprintf(&b, "  exit[%d]:", n)
		bits.each(func(bit int) bool {
			fmt.Fprintf(&b, " %d", bit)
			return true
		})
		b.WriteByte('\n')
	}
	b.WriteString("}\n")
	return b.String()
}
