package codegen

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/token"
)

// Disassemble renders a linked Program's functions to a human-readable
// textual form, the SPEC_FULL.md-supplemented stand-in for the original
// toolchain's disassembler.c. Grounded on the shape of the teacher's
// Dasm (lang/compiler/asm.go): a "program:" header listing shared tables
// followed by one "function:" block per Func, each instruction annotated
// with its byte offset within the function's Code. Unlike the teacher's varint-addressed format, this
// decoder reads the fixed-layout encoding encodeInstr produces, and prints
// already-relative jump offsets directly rather than re-deriving a
// per-function index table - reading the Code back never needs to resolve
// to more than "pc -> instruction text".
func Disassemble(prog *ir.Program) string {
	var b strings.Builder

	fmt.Fprintf(&b, "program:\n")
	if len(prog.Globals) > 0 {
		fmt.Fprintf(&b, "\tglobals:\n")
		for i, g := range prog.Globals {
			kind := "var"
			if g.IsConst {
				kind = "const"
			}
			fmt.Fprintf(&b, "\t\t%s %s\t# %03d\n", kind, g.Name, i)
		}
	}
	if len(prog.Classes) > 0 {
		fmt.Fprintf(&b, "\tclasses:\n")
		for i, cl := range prog.Classes {
			name := classDebugName(prog, ir.ClassID(i))
			base := "-"
			if cl.BaseClass != ir.NoID {
				base = classDebugName(prog, cl.BaseClass)
			}
			fmt.Fprintf(&b, "\t\t%s\tbase=%s\t# %03d\n", name, base, i)
		}
	}
	b.WriteString("\n")

	for i := range prog.Funcs {
		if i > 0 {
			b.WriteString("\n")
		}
		disassembleFunc(&b, prog, ir.FuncID(i))
	}

	return b.String()
}

func disassembleFunc(b *strings.Builder, prog *ir.Program, id ir.FuncID) {
	fn := prog.Func(id)
	fmt.Fprintf(b, "function: %s in=%d inner=%d", funcDebugName(prog, id), fn.InputStackSize, fn.InnerStackSize)
	if fn.AssociatedClass != ir.NoID {
		fmt.Fprintf(b, " method-of=%s", classDebugName(prog, fn.AssociatedClass))
	}
	b.WriteString("\n")

	if fn.IsCFunction {
		fmt.Fprintf(b, "\tnative: %s\n", fn.NativeKey)
		return
	}

	b.WriteString("\tcode:\n")
	lineTab := prog.Debug.LineTab[id]
	lineIdx := 0
	pc := 0
	for pc < len(fn.Code) {
		ins, size := decodeInstr(fn.Code[pc:])
		for lineIdx < len(lineTab) && lineTab[lineIdx].PC == pc {
			fmt.Fprintf(b, "\t\t# line %d col %d\n", lineTab[lineIdx].Line, lineTab[lineIdx].Col)
			lineIdx++
		}
		fmt.Fprintf(b, "\t\t%04d  %s\n", pc, formatInstr(prog, ins))
		pc += size
	}
}

func classDebugName(prog *ir.Program, id ir.ClassID) string {
	if int(id) >= 0 && int(id) < len(prog.Debug.ClassNames) {
		return prog.Debug.ClassNames[id]
	}
	return fmt.Sprintf("class#%d", id)
}

// decoded is the disassembler's own reconstruction of one instruction: the
// same fields as Instr, but with jump offsets left in their encoded,
// already-relative form rather than symbolic ids, since a linked Code
// stream carries no jump ids anymore.
type decoded struct {
	Op                Instr
	JumpOff, Jump2Off int16
}

// decodeInstr reads one instruction starting at buf[0], returning it plus
// its encoded byte size. The field layout mirrors encodeInstr exactly.
func decodeInstr(buf []byte) (decoded, int) {
	getI16 := func(off int) int { return int(int16(binary.LittleEndian.Uint16(buf[off:]))) }
	getI32 := func(off int) int32 { return int32(binary.LittleEndian.Uint32(buf[off:])) }
	getI64 := func(off int) int64 { return int64(binary.LittleEndian.Uint64(buf[off:])) }

	op := Opcode(buf[0])
	var d decoded
	d.Op.Op = op
	pos := 1
	switch op {
	case OpSetConst:
		d.Op.To = getI16(pos)
		pos += 2
		v, n := decodeConst(buf[pos:])
		d.Op.Const = v
		pos += n
	case OpGetGlobal:
		d.Op.To = getI16(pos)
		d.Op.GlobalID = ir.GlobalID(getI32(pos + 2))
		pos += 6
	case OpSetGlobal:
		d.Op.A = getI16(pos)
		d.Op.GlobalID = ir.GlobalID(getI32(pos + 2))
		pos += 6
	case OpGetFunc:
		d.Op.To = getI16(pos)
		d.Op.FuncID = ir.FuncID(getI32(pos + 2))
		pos += 6
	case OpGetClass:
		d.Op.To = getI16(pos)
		d.Op.ClassID = ir.ClassID(getI32(pos + 2))
		pos += 6
	case OpValueCopy:
		d.Op.To = getI16(pos)
		d.Op.A = getI16(pos + 2)
		pos += 4
	case OpBinOp:
		d.Op.To = getI16(pos)
		d.Op.OpType = token.Token(buf[pos+2])
		d.Op.A = getI16(pos + 3)
		d.Op.B = getI16(pos + 5)
		pos += 7
	case OpUnOp:
		d.Op.To = getI16(pos)
		d.Op.OpType = token.Token(buf[pos+2])
		d.Op.A = getI16(pos + 3)
		pos += 5
	case OpGetAttrByName:
		d.Op.To = getI16(pos)
		d.Op.A = getI16(pos + 2)
		d.Op.NameID = ir.AttrID(getI64(pos + 4))
		pos += 12
	case OpSetByAttrName:
		d.Op.A = getI16(pos)
		d.Op.NameID = ir.AttrID(getI64(pos + 2))
		d.Op.B = getI16(pos + 10)
		pos += 12
	case OpSetByAttrIdx:
		d.Op.A = getI16(pos)
		d.Op.VarAttrIdx = int(getI32(pos + 2))
		d.Op.B = getI16(pos + 6)
		pos += 8
	case OpSetByIndexExpr:
		d.Op.A = getI16(pos)
		d.Op.B = getI16(pos + 2)
		d.Op.To = getI16(pos + 4)
		pos += 6
	case OpGetByIndexExpr:
		d.Op.To = getI16(pos)
		d.Op.A = getI16(pos + 2)
		d.Op.B = getI16(pos + 4)
		pos += 6
	case OpHasAttrJump:
		d.Op.A = getI16(pos)
		d.Op.NameID = ir.AttrID(getI64(pos + 2))
		d.JumpOff = int16(getI16(pos + 10))
		pos += 12
	case OpCallSetTop:
		d.Op.To = getI16(pos)
		pos += 2
	case OpCall, OpCallIgnoreIfNone:
		d.Op.To = getI16(pos)
		d.Op.A = getI16(pos + 2)
		d.Op.PosArgs = getI16(pos + 4)
		d.Op.KwArgs = getI16(pos + 6)
		flags := buf[pos+8]
		d.Op.ExpandLastArg = flags&1 != 0
		d.Op.Async = buf[pos+9] != 0
		pos += 10
	case OpReturnValue:
		d.Op.To = getI16(pos)
		pos += 2
	case OpJump:
		d.JumpOff = int16(getI16(pos))
		pos += 2
	case OpCondJump:
		d.Op.A = getI16(pos)
		d.JumpOff = int16(getI16(pos + 2))
		pos += 4
	case OpNewIterator:
		d.Op.To = getI16(pos)
		d.Op.A = getI16(pos + 2)
		pos += 4
	case OpIterate:
		d.Op.To = getI16(pos)
		d.Op.A = getI16(pos + 2)
		d.JumpOff = int16(getI16(pos + 4))
		pos += 6
	case OpPushCatchFrame:
		d.Op.FrameID = getI16(pos)
		d.Op.CatchMode = buf[pos+2]
		d.Op.To = getI16(pos + 3)
		d.JumpOff = int16(getI16(pos + 5))
		d.Jump2Off = int16(getI16(pos + 7))
		pos += 9
	case OpAddCatchType:
		d.Op.FrameID = getI16(pos)
		d.Op.ClassID = ir.ClassID(getI32(pos + 2))
		pos += 6
	case OpAddCatchTypeByRef:
		d.Op.FrameID = getI16(pos)
		d.Op.A = getI16(pos + 2)
		pos += 4
	case OpPopCatchFrame, OpJumpToFinally:
		d.Op.FrameID = getI16(pos)
		pos += 2
	case OpNewList, OpNewSet, OpNewVector, OpNewMap:
		d.Op.To = getI16(pos)
		pos += 2
	case OpNewInstance:
		d.Op.To = getI16(pos)
		d.Op.ClassID = ir.ClassID(getI32(pos + 2))
		pos += 6
	case OpNewInstanceByRef:
		d.Op.To = getI16(pos)
		d.Op.A = getI16(pos + 2)
		pos += 4
	case OpGetConstructor:
		d.Op.To = getI16(pos)
		d.Op.A = getI16(pos + 2)
		pos += 4
	case OpAwaitItem:
		d.Op.A = getI16(pos)
		pos += 2
	case OpCreatePipe:
		d.Op.To = getI16(pos)
		pos += 2
	default:
		panic(fmt.Sprintf("codegen: cannot decode opcode %v", op))
	}
	return d, pos
}

func decodeConst(buf []byte) (ir.ValueContent, int) {
	kind := ir.ValueKind(buf[0])
	switch kind {
	case ir.KindNone, ir.KindUnspecifiedKwarg:
		return ir.ValueContent{Kind: kind}, 1
	case ir.KindInt:
		return ir.NewIntValue(int64(binary.LittleEndian.Uint64(buf[1:]))), 9
	case ir.KindFloat:
		return ir.NewFloatValue(math.Float64frombits(binary.LittleEndian.Uint64(buf[1:]))), 9
	case ir.KindBool:
		return ir.NewBoolValue(buf[1] != 0), 2
	case ir.KindShortStr, ir.KindShortBytes:
		n := int(binary.LittleEndian.Uint16(buf[1:]))
		s := string(buf[3 : 3+n])
		if kind == ir.KindShortStr {
			return ir.NewStringValue(s), 3 + n
		}
		return ir.NewBytesValue([]byte(s)), 3 + n
	case ir.KindLongStr, ir.KindLongBytes:
		n := int(binary.LittleEndian.Uint32(buf[1:]))
		s := string(buf[5 : 5+n])
		if kind == ir.KindLongStr {
			return ir.ValueContent{Kind: ir.KindLongStr, Long: s}, 5 + n
		}
		return ir.ValueContent{Kind: ir.KindLongBytes, Long: s}, 5 + n
	default:
		panic(fmt.Sprintf("codegen: cannot decode value kind %v", kind))
	}
}

func formatInstr(prog *ir.Program, d decoded) string {
	ins := d.Op
	switch ins.Op {
	case OpSetConst:
		return fmt.Sprintf("%s %d, %s", ins.Op, ins.To, formatConst(ins.Const))
	case OpGetGlobal:
		return fmt.Sprintf("%s %d, %s", ins.Op, ins.To, globalDebugName(prog, ins.GlobalID))
	case OpSetGlobal:
		return fmt.Sprintf("%s %s, %d", ins.Op, globalDebugName(prog, ins.GlobalID), ins.A)
	case OpGetFunc:
		return fmt.Sprintf("%s %d, %s", ins.Op, ins.To, funcDebugName(prog, ins.FuncID))
	case OpGetClass:
		return fmt.Sprintf("%s %d, %s", ins.Op, ins.To, classDebugName(prog, ins.ClassID))
	case OpValueCopy:
		return fmt.Sprintf("%s %d, %d", ins.Op, ins.To, ins.A)
	case OpBinOp:
		return fmt.Sprintf("%s %d, %d %s %d", ins.Op, ins.To, ins.A, ins.OpType, ins.B)
	case OpUnOp:
		return fmt.Sprintf("%s %d, %s%d", ins.Op, ins.To, ins.OpType, ins.A)
	case OpGetAttrByName:
		return fmt.Sprintf("%s %d, %d.%s", ins.Op, ins.To, ins.A, attrDebugName(prog, ins.NameID))
	case OpSetByAttrName:
		return fmt.Sprintf("%s %d.%s = %d", ins.Op, ins.A, attrDebugName(prog, ins.NameID), ins.B)
	case OpSetByAttrIdx:
		return fmt.Sprintf("%s %d.#%d = %d", ins.Op, ins.A, ins.VarAttrIdx, ins.B)
	case OpSetByIndexExpr:
		return fmt.Sprintf("%s %d[%d] = %d", ins.Op, ins.A, ins.B, ins.To)
	case OpGetByIndexExpr:
		return fmt.Sprintf("%s %d, %d[%d]", ins.Op, ins.To, ins.A, ins.B)
	case OpHasAttrJump:
		return fmt.Sprintf("%s %d.%s, %+d", ins.Op, ins.A, attrDebugName(prog, ins.NameID), d.JumpOff)
	case OpCallSetTop:
		return fmt.Sprintf("%s %d", ins.Op, ins.To)
	case OpCall, OpCallIgnoreIfNone:
		return fmt.Sprintf("%s %d, %d, pos=%d kw=%d expand=%v async=%v", ins.Op, ins.To, ins.A, ins.PosArgs, ins.KwArgs, ins.ExpandLastArg, ins.Async)
	case OpReturnValue:
		return fmt.Sprintf("%s %d", ins.Op, ins.To)
	case OpJump:
		return fmt.Sprintf("%s %+d", ins.Op, d.JumpOff)
	case OpCondJump:
		return fmt.Sprintf("%s %d, %+d", ins.Op, ins.A, d.JumpOff)
	case OpNewIterator:
		return fmt.Sprintf("%s %d, %d", ins.Op, ins.To, ins.A)
	case OpIterate:
		return fmt.Sprintf("%s %d, %d, %+d", ins.Op, ins.To, ins.A, d.JumpOff)
	case OpPushCatchFrame:
		return fmt.Sprintf("%s #%d, mode=%02b, %d, onrescue=%+d onfinally=%+d", ins.Op, ins.FrameID, ins.CatchMode, ins.To, d.JumpOff, d.Jump2Off)
	case OpAddCatchType:
		return fmt.Sprintf("%s #%d, %s", ins.Op, ins.FrameID, classDebugName(prog, ins.ClassID))
	case OpAddCatchTypeByRef:
		return fmt.Sprintf("%s #%d, %d", ins.Op, ins.FrameID, ins.A)
	case OpPopCatchFrame, OpJumpToFinally:
		return fmt.Sprintf("%s #%d", ins.Op, ins.FrameID)
	case OpNewList, OpNewSet, OpNewVector, OpNewMap, OpCreatePipe:
		return fmt.Sprintf("%s %d", ins.Op, ins.To)
	case OpNewInstance:
		return fmt.Sprintf("%s %d, %s", ins.Op, ins.To, classDebugName(prog, ins.ClassID))
	case OpNewInstanceByRef:
		return fmt.Sprintf("%s %d, %d", ins.Op, ins.To, ins.A)
	case OpGetConstructor:
		return fmt.Sprintf("%s %d, %d", ins.Op, ins.To, ins.A)
	case OpAwaitItem:
		return fmt.Sprintf("%s %d", ins.Op, ins.A)
	default:
		return ins.Op.String()
	}
}

func globalDebugName(prog *ir.Program, id ir.GlobalID) string {
	if int(id) >= 0 && int(id) < len(prog.Globals) {
		return prog.Globals[id].Name
	}
	return fmt.Sprintf("global#%d", id)
}

func attrDebugName(prog *ir.Program, id ir.AttrID) string {
	return prog.Attrs.Name(id)
}

func formatConst(v ir.ValueContent) string {
	switch v.Kind {
	case ir.KindNone:
		return "none"
	case ir.KindUnspecifiedKwarg:
		return "unspecified"
	case ir.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case ir.KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case ir.KindBool:
		return fmt.Sprintf("%v", v.Bool)
	case ir.KindShortStr, ir.KindLongStr:
		return fmt.Sprintf("%q", v.Str())
	case ir.KindShortBytes, ir.KindLongBytes:
		return fmt.Sprintf("%q", v.Str())
	default:
		return "?"
	}
}
