// MirCFG adapts this package's own mir.Function/mir.BasicBlock shape into
// the ControlFlowGraph the dataflow engine consumes (spec.md's "CFG
// adapter" component). Granularity is one CFGNode per instruction: Br and
// CondBr terminators produce the corresponding edges, a block with no
// explicit terminator falls through to the next non-empty block, and Ret
// has no successors.
package mir

// MirCFG is a concrete ControlFlowGraph over one Function.
type MirCFG struct {
	function string
	index    map[Element]CFGNode
	succ     [][]CFGNode
	numNodes int
}

// NewMirCFG flattens fn's basic blocks into a node-per-instruction graph.
func NewMirCFG(fn *Function) *MirCFG {
	c := &MirCFG{function: fn.Name, index: make(map[Element]CFGNode)}

	blockFirst := make(map[string]CFGNode, len(fn.Blocks))
	for _, bb := range fn.Blocks {
		if len(bb.Instr) == 0 {
			continue
		}
		first := CFGNode(c.numNodes)
		blockFirst[bb.Name] = first
		for si := range bb.Instr {
			e := Element{Function: fn.Name, Block: bb.Name, Stmt: si}
			c.index[e] = CFGNode(c.numNodes)
			c.numNodes++
		}
	}

	c.succ = make([][]CFGNode, c.numNodes)
	for bi, bb := range fn.Blocks {
		if len(bb.Instr) == 0 {
			continue
		}
		first := int(blockFirst[bb.Name])
		for si, instr := range bb.Instr {
			n := first + si
			if si < len(bb.Instr)-1 {
				c.succ[n] = []CFGNode{CFGNode(n + 1)}
				continue
			}
			c.succ[n] = terminatorSuccessors(instr, fn, bi, blockFirst)
		}
	}
	return c
}

func terminatorSuccessors(instr Instr, fn *Function, blockIdx int, blockFirst map[string]CFGNode) []CFGNode {
	switch t := instr.(type) {
	case Br:
		if tgt, ok := blockFirst[t.Target]; ok {
			return []CFGNode{tgt}
		}
		return nil
	case CondBr:
		var out []CFGNode
		if tgt, ok := blockFirst[t.True]; ok {
			out = append(out, tgt)
		}
		if tgt, ok := blockFirst[t.False]; ok {
			out = append(out, tgt)
		}
		return out
	case Ret:
		return nil
	default:
		for nb := blockIdx + 1; nb < len(fn.Blocks); nb++ {
			if tgt, ok := blockFirst[fn.Blocks[nb].Name]; ok {
				return []CFGNode{tgt}
			}
		}
		return nil
	}
}

// Successors implements ControlFlowGraph.
func (c *MirCFG) Successors(n CFGNode) []CFGNode { return c.succ[n] }

// BuildLocalIndex implements ControlFlowGraph.
func (c *MirCFG) BuildLocalIndex() map[Element]CFGNode { return c.index }

// NodesInPostOrder implements ControlFlowGraph: a depth-first post-order
// over every node (not just those reachable from one designated entry),
// so a CFG with unreachable blocks still gets a complete, valid iteration
// order for the fixpoint loop.
func (c *MirCFG) NodesInPostOrder() []CFGNode {
	visited := make([]bool, c.numNodes)
	order := make([]CFGNode, 0, c.numNodes)
	var visit func(n CFGNode)
	visit = func(n CFGNode) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, s := range c.succ[n] {
			visit(s)
		}
		order = append(order, n)
	}
	for n := 0; n < c.numNodes; n++ {
		visit(CFGNode(n))
	}
	return order
}
