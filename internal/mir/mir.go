// Package mir defines the minimal control-flow substrate the borrow and
// move checker operates over: functions made of basic blocks, basic blocks
// made of instructions, and instructions that are either a terminator (Br,
// CondBr, Ret) or an opaque statement (Stmt). The checker never interprets
// what a Stmt computes — that is the concern of the MemoryCategorization
// and UseWalker oracles the caller supplies, driven off the same Element
// positions this package assigns to each instruction; MIR's own job is
// only to say where one program point ends and where control goes next.
package mir

import (
	"fmt"
	"strings"
)

// Module is a compilation unit of MIR.
type Module struct {
	Name      string
	Functions []*Function
}

// Function is a collection of basic blocks.
type Function struct {
	Name       string
	Parameters []Value
	Blocks     []*BasicBlock
}

// BasicBlock is a sequence of instructions ending with a terminator.
type BasicBlock struct {
	Name  string
	Instr []Instr
}

// Value is a reference to an SSA-like value: either a small constant or a
// named result/parameter the caller's oracles can map back to a Binding.
type Value struct {
	Kind ValueKind
	// For constants.
	Int64 int64
	// For instruction results and parameters (index into block/local naming).
	Ref string
}

// ValueKind classifies the value category.
type ValueKind int

const (
	ValInvalid ValueKind = iota
	ValConstInt
	ValRef
)

// Instr is implemented by every MIR instruction.
type Instr interface{ isInstr() }

// Stmt is a non-terminator instruction: a local declaration, assignment,
// call, or any other place-producing or place-consuming operation. Its
// borrow-relevant effect is never read off this struct; it comes entirely
// from the Cmt/BorrowDelegate events the UseWalker emits for the Element
// this instruction occupies. Note, for String() only, names the operation
// for readability (e.g. "alloca", "call foo").
type Stmt struct {
	Dst  string
	Note string
}

// Ret returns from the current function with an optional value.
type Ret struct{ Val *Value }

// Br is an unconditional branch to a target basic block label.
type Br struct{ Target string }

// CondBr is a conditional branch based on a value treated as boolean
// (0=false, nonzero=true).
type CondBr struct {
	Cond  Value
	True  string
	False string
}

func (Stmt) isInstr()   {}
func (Ret) isInstr()    {}
func (Br) isInstr()     {}
func (CondBr) isInstr() {}

func (m *Module) String() string {
	if m == nil {
		return "<nil-mir-module>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", m.Name)
	for _, f := range m.Functions {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (f *Function) String() string {
	if f == nil {
		return "<nil-func>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "func %s(", f.Name)
	for i := range f.Parameters {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(valString(f.Parameters[i]))
	}
	b.WriteString(") {\n")
	for _, bb := range f.Blocks {
		b.WriteString(bb.String())
	}
	b.WriteString("}\n")
	return b.String()
}

func (bb *BasicBlock) String() string {
	if bb == nil {
		return ""
	}
	var b strings.Builder
	if bb.Name != "" {
		fmt.Fprintf(&b, "%s:\n", bb.Name)
	}
	for _, in := range bb.Instr {
		b.WriteString("  ")
		if s, ok := any(in).(fmt.Stringer); ok {
			b.WriteString(s.String())
		} else {
			b.WriteString("<instr>")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (v Value) String() string { return valString(v) }

func valString(v Value) string {
	switch v.Kind {
	case ValConstInt:
		return fmt.Sprintf("%d", v.Int64)
	case ValRef:
		if v.Ref == "" {
			return "%ref?"
		}
		return v.Ref
	default:
		return "<invalid>"
	}
}

func (i Stmt) String() string {
	switch {
	case i.Dst != "" && i.Note != "":
		return fmt.Sprintf("%s = %s", i.Dst, i.Note)
	case i.Dst != "":
		return fmt.Sprintf("%s = stmt", i.Dst)
	case i.Note != "":
		return i.Note
	default:
		return "stmt"
	}
}

func (i Ret) String() string {
	if i.Val == nil {
		return "ret"
	}
	return fmt.Sprintf("ret %s", i.Val.String())
}

func (i Br) String() string { return fmt.Sprintf("br %s", i.Target) }

func (i CondBr) String() string {
	return fmt.Sprintf("brcond %s, %s, %s", i.Cond.String(), i.True, i.False)
}
