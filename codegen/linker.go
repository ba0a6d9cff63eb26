package codegen

import (
	"fmt"

	"github.com/h64p/horsec/ir"
)

// Link resolves every Unit's symbolic jump ids to signed relative byte
// offsets, appends an implicit none-return to any function whose stream
// doesn't already end in returnvalue, encodes the final instruction bytes
// into prog.Func(id).Code, and records prog.Debug.LineTab entries for each
// instruction's source position. Per spec.md §4.10.
func Link(prog *ir.Program, units []Unit) error {
	for _, u := range units {
		if err := linkUnit(prog, u); err != nil {
			return fmt.Errorf("codegen: linking %s: %w", funcDebugName(prog, u.FuncID), err)
		}
	}
	return nil
}

// funcDebugName looks up id's recorded name for an error message, falling
// back to the bare id if Debug.FuncNames doesn't cover it (e.g. a function
// added without a RecordFunc call).
func funcDebugName(prog *ir.Program, id ir.FuncID) string {
	if int(id) >= 0 && int(id) < len(prog.Debug.FuncNames) {
		return prog.Debug.FuncNames[id]
	}
	return fmt.Sprintf("func#%d", id)
}

// linkUnit resolves u's jumps and writes its final Code into prog.
func linkUnit(prog *ir.Program, u Unit) error {
	instrs := u.Instrs
	if len(instrs) == 0 || instrs[len(instrs)-1].Op != OpReturnValue {
		none := Instr{Op: OpSetConst, To: 0, Const: ir.NoneValue}
		ret := Instr{Op: OpReturnValue, To: 0}
		if len(instrs) > 0 {
			none.Line, none.Col = instrs[len(instrs)-1].Line, instrs[len(instrs)-1].Col
			ret.Line, ret.Col = none.Line, none.Col
		}
		instrs = append(instrs, none, ret)
		fn := prog.Func(u.FuncID)
		if fn.InnerStackSize < 1 {
			fn.InnerStackSize = 1
		}
	}

	// byteOffset[i] is the final byte offset of instrs[i]; OpJumpTarget
	// pseudo-instructions occupy no bytes of their own, so they collapse
	// onto the offset of whatever real instruction follows them.
	byteOffset := make([]int, len(instrs)+1)
	// targetOffset[jump id] is the byte offset a jumptarget with that id
	// resolves to.
	targetOffset := make(map[int32]int)

	offset := 0
	for i, ins := range instrs {
		byteOffset[i] = offset
		if ins.Op == OpJumpTarget {
			targetOffset[ins.Jump.ID] = offset
			continue
		}
		offset += instrByteSize(ins)
	}
	byteOffset[len(instrs)] = offset

	resolve := func(from int, ref jumpRef) (int16, error) {
		if !ref.Used {
			return 0, nil
		}
		target, ok := targetOffset[ref.ID]
		if !ok {
			return 0, fmt.Errorf("unresolved jump target id %d", ref.ID)
		}
		rel := target - (byteOffset[from] + instrByteSize(instrs[from]))
		if rel == 0 {
			return 0, fmt.Errorf("jump offset is zero: instruction at byte %d targets itself", byteOffset[from])
		}
		if rel < -65535 || rel > 65535 {
			return 0, fmt.Errorf("jump offset %d out of ±65535 range", rel)
		}
		return int16(rel), nil
	}

	buf := make([]byte, 0, offset)
	for i, ins := range instrs {
		if ins.Op == OpJumpTarget {
			continue
		}
		off, err := resolve(i, ins.Jump)
		if err != nil {
			return err
		}
		ins.Jump.Offset = off
		off2, err := resolve(i, ins.Jump2)
		if err != nil {
			return err
		}
		ins.Jump2.Offset = off2

		buf = encodeInstr(buf, ins)
		if ins.Line != 0 || ins.Col != 0 {
			prog.Debug.AddLine(u.FuncID, byteOffset[i], ins.Line, ins.Col)
		}
	}

	prog.Func(u.FuncID).Code = buf
	return nil
}
