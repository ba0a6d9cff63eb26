// Package codegen implements the code generator (I) and linker (J):
// turning a resolved, storage-allocated AST into the fixed-layout
// instruction streams that make up an ir.Program, per spec.md §3.6, §4.9
// and §4.10.
//
// The instruction set is grounded on the shape of the teacher's
// lang/compiler package (opcode.go's enum-and-table style, asm.go's
// textual disassembly conventions) but its control-flow model is not: the
// teacher builds a CFG of blocks and linearizes them with a visit pass,
// while this package follows spec.md's flatter design instead - a
// generator emits one straight-line instruction stream per function with
// symbolic jump ids standing in for not-yet-known targets, and a wholly
// separate linker pass later resolves those ids to signed relative byte
// offsets. See DESIGN.md for the full account of what carries over from
// the teacher and what doesn't.
package codegen

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/h64p/horsec/ir"
	"github.com/h64p/horsec/token"
)

// Opcode identifies one bytecode instruction, per spec.md §3.6.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpSetConst
	OpGetGlobal
	OpSetGlobal
	OpGetFunc
	OpGetClass
	OpValueCopy
	OpBinOp
	OpUnOp
	OpGetAttrByName
	OpSetByAttrName
	OpSetByAttrIdx
	OpSetByIndexExpr
	OpGetByIndexExpr
	OpHasAttrJump
	OpCallSetTop
	OpCall
	OpCallIgnoreIfNone
	OpReturnValue
	OpJumpTarget // pseudo-instruction, removed by the linker (J)
	OpJump
	OpCondJump
	OpNewIterator
	OpIterate
	OpPushCatchFrame
	OpAddCatchType
	OpAddCatchTypeByRef
	OpPopCatchFrame
	OpJumpToFinally
	OpNewList
	OpNewSet
	OpNewVector
	OpNewMap
	OpNewInstance
	OpNewInstanceByRef
	OpGetConstructor
	OpAwaitItem
	OpCreatePipe
	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpInvalid:           "invalid",
	OpSetConst:          "setconst",
	OpGetGlobal:         "getglobal",
	OpSetGlobal:         "setglobal",
	OpGetFunc:           "getfunc",
	OpGetClass:          "getclass",
	OpValueCopy:         "valuecopy",
	OpBinOp:             "binop",
	OpUnOp:              "unop",
	OpGetAttrByName:     "getattributebyname",
	OpSetByAttrName:     "setbyattributename",
	OpSetByAttrIdx:      "setbyattributeidx",
	OpSetByIndexExpr:    "setbyindexexpr",
	OpGetByIndexExpr:    "getbyindexexpr",
	OpHasAttrJump:       "hasattrjump",
	OpCallSetTop:        "callsettop",
	OpCall:              "call",
	OpCallIgnoreIfNone:  "callignoreifnone",
	OpReturnValue:       "returnvalue",
	OpJumpTarget:        "jumptarget",
	OpJump:               "jump",
	OpCondJump:           "condjump",
	OpNewIterator:        "newiterator",
	OpIterate:            "iterate",
	OpPushCatchFrame:     "pushcatchframe",
	OpAddCatchType:       "addcatchtype",
	OpAddCatchTypeByRef:  "addcatchtypebyref",
	OpPopCatchFrame:      "popcatchframe",
	OpJumpToFinally:      "jumptofinally",
	OpNewList:            "newlist",
	OpNewSet:             "newset",
	OpNewVector:          "newvector",
	OpNewMap:             "newmap",
	OpNewInstance:        "newinstance",
	OpNewInstanceByRef:   "newinstancebyref",
	OpGetConstructor:     "getconstructor",
	OpAwaitItem:          "awaititem",
	OpCreatePipe:         "createpipe",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode(%d)", op)
}

// jumpRef is one symbolic jump field: ID is the generator-assigned jump id
// before linking, Offset is the signed relative byte offset the linker (J)
// rewrites it to. Used is false for instructions that carry no jump at all,
// so a zero jumpRef can't be mistaken for an unresolved one.
type jumpRef struct {
	Used   bool
	ID     int32
	Offset int16
}

// Instr is the generator's in-memory form of one instruction: a single
// struct wide enough to cover every opcode's operands, since Go has no
// tagged-union literal convenient for a one-byte-discriminated record the
// way spec.md's C structure does. Which fields are meaningful depends on
// Op; see the per-opcode comments below.
type Instr struct {
	Op Opcode

	// To/A/B are stack slot operands. Meaning by opcode:
	//   setconst(To), getglobal(To)/getfunc(To)/getclass(To),
	//   valuecopy(To=dst, A=src), binop(To=dst, A=left, B=right),
	//   unop(To=dst, A=operand), getattributebyname(To=dst, A=obj),
	//   setbyattributename(A=obj, B=from), setbyattributeidx(A=obj, B=from),
	//   setbyindexexpr(A=obj, B=index, To=from), getbyindexexpr(To=dst, A=obj, B=index),
	//   setglobal(A=from), hasattrjump(A=obj),
	//   callsettop(To=topslot), call/callignoreifnone(To=returnto, A=calledfrom),
	//   returnvalue(To), newiterator(To, A=container), iterate(To=value, A=iterslot),
	//   newlist/newset/newvector/newmap/newinstance/newinstancebyref/createpipe(To),
	//   getconstructor(To=dst, A=obj), awaititem(A), addcatchtypebyref(A=slot),
	//   condjump(A=cond)
	//
	// condjump jumps when A is falsy and falls through when truthy - the
	// one polarity this generator ever needs, since every use of it is
	// "skip this body, the guard didn't hold". hasattrjump jumps when the
	// named attribute is absent and falls through when present.
	To, A, B int

	GlobalID ir.GlobalID
	FuncID   ir.FuncID
	ClassID  ir.ClassID
	NameID   ir.AttrID

	// VarAttrIdx is setbyattributeidx's known class var-attr index, used
	// only by the synthesized $$varinit function which writes its own
	// class's slots in layout order without a name lookup.
	VarAttrIdx int

	// OpType is binop/unop's operator.
	OpType token.Token

	// Const is setconst's payload.
	Const ir.ValueContent

	// Call/callignoreifnone operand counts and flags.
	PosArgs, KwArgs int
	ExpandLastArg   bool
	Async           bool

	// FrameID identifies a do/rescue/finally or with catch frame, scoped
	// to the owning function.
	FrameID int

	// CatchMode is pushcatchframe's mode-bit byte: CatchOnRescue set means
	// Jump is live (jump to the rescue dispatch on a matching error),
	// CatchOnFinally set means Jump2 is live (jump to the finally block on
	// unwind, matched or not).
	CatchMode byte

	// Jump is the primary jump target: jump/condjump/hasattrjump/
	// jumptarget's own id, iterate's "jump on exhausted" target, and
	// pushcatchframe's "jump on catch" target. Jump2 is pushcatchframe's
	// additional "jump on finally" target.
	Jump  jumpRef
	Jump2 jumpRef

	Line, Col int
}

func jid(id int32) jumpRef { return jumpRef{Used: true, ID: id} }

// pushcatchframe mode bits, per spec.md §4.9's "applicable mode bits".
const (
	CatchOnRescue  byte = 1 << 0
	CatchOnFinally byte = 1 << 1
)

// instrByteSize returns the number of bytes ins occupies in the final
// linked Code stream, or 0 for the OpJumpTarget pseudo-instruction, which
// the linker (J) removes entirely. setconst is the only variable-length
// opcode; every other opcode has a fixed size driven purely by Op.
func instrByteSize(ins Instr) int {
	const i16, i32, i64 = 2, 4, 8
	switch ins.Op {
	case OpJumpTarget:
		return 0
	case OpSetConst:
		return 1 + i16 + constByteSize(ins.Const)
	case OpGetGlobal, OpSetGlobal, OpGetFunc, OpGetClass:
		return 1 + i16 + i32
	case OpValueCopy:
		return 1 + i16 + i16
	case OpBinOp:
		return 1 + i16 + 1 + i16 + i16
	case OpUnOp:
		return 1 + i16 + 1 + i16
	case OpGetAttrByName:
		return 1 + i16 + i16 + i64
	case OpSetByAttrName:
		return 1 + i16 + i64 + i16
	case OpSetByAttrIdx:
		return 1 + i16 + i32 + i16
	case OpSetByIndexExpr:
		return 1 + i16 + i16 + i16
	case OpGetByIndexExpr:
		return 1 + i16 + i16 + i16
	case OpHasAttrJump:
		return 1 + i16 + i64 + i16
	case OpCallSetTop:
		return 1 + i16
	case OpCall, OpCallIgnoreIfNone:
		return 1 + i16 + i16 + i16 + i16 + 1 + 1
	case OpReturnValue:
		return 1 + i16
	case OpJump:
		return 1 + i16
	case OpCondJump:
		return 1 + i16 + i16
	case OpNewIterator:
		return 1 + i16 + i16
	case OpIterate:
		return 1 + i16 + i16 + i16
	case OpPushCatchFrame:
		return 1 + i16 + 1 + i16 + i16 + i16
	case OpAddCatchType:
		return 1 + i16 + i32
	case OpAddCatchTypeByRef:
		return 1 + i16 + i16
	case OpPopCatchFrame, OpJumpToFinally:
		return 1 + i16
	case OpNewList, OpNewSet, OpNewVector, OpNewMap:
		return 1 + i16
	case OpNewInstance:
		return 1 + i16 + i32
	case OpNewInstanceByRef:
		return 1 + i16 + i16
	case OpGetConstructor:
		return 1 + i16 + i16
	case OpAwaitItem:
		return 1 + i16
	case OpCreatePipe:
		return 1 + i16
	default:
		panic(fmt.Sprintf("codegen: unknown opcode %v", ins.Op))
	}
}

func constByteSize(v ir.ValueContent) int {
	switch v.Kind {
	case ir.KindNone, ir.KindUnspecifiedKwarg:
		return 1
	case ir.KindInt, ir.KindFloat:
		return 1 + 8
	case ir.KindBool:
		return 1 + 1
	case ir.KindShortStr, ir.KindShortBytes:
		return 1 + 2 + len(v.Short)
	case ir.KindLongStr, ir.KindLongBytes:
		return 1 + 4 + len(v.Long)
	default:
		panic(fmt.Sprintf("codegen: unknown value kind %v", v.Kind))
	}
}

// encodeInstr appends ins's final wire encoding to buf. Every jump field
// referenced by ins must already carry a resolved Offset (the linker's job);
// this is only ever called after that rewrite pass.
func encodeInstr(buf []byte, ins Instr) []byte {
	putI16 := func(v int) { buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(v))) }
	putI32 := func(v int32) { buf = binary.LittleEndian.AppendUint32(buf, uint32(v)) }
	putI64 := func(v int64) { buf = binary.LittleEndian.AppendUint64(buf, uint64(v)) }

	buf = append(buf, byte(ins.Op))
	switch ins.Op {
	case OpSetConst:
		putI16(ins.To)
		buf = encodeConst(buf, ins.Const)
	case OpGetGlobal:
		putI16(ins.To)
		putI32(int32(ins.GlobalID))
	case OpSetGlobal:
		putI16(ins.A)
		putI32(int32(ins.GlobalID))
	case OpGetFunc:
		putI16(ins.To)
		putI32(int32(ins.FuncID))
	case OpGetClass:
		putI16(ins.To)
		putI32(int32(ins.ClassID))
	case OpValueCopy:
		putI16(ins.To)
		putI16(ins.A)
	case OpBinOp:
		putI16(ins.To)
		buf = append(buf, byte(ins.OpType))
		putI16(ins.A)
		putI16(ins.B)
	case OpUnOp:
		putI16(ins.To)
		buf = append(buf, byte(ins.OpType))
		putI16(ins.A)
	case OpGetAttrByName:
		putI16(ins.To)
		putI16(ins.A)
		putI64(int64(ins.NameID))
	case OpSetByAttrName:
		putI16(ins.A)
		putI64(int64(ins.NameID))
		putI16(ins.B)
	case OpSetByAttrIdx:
		putI16(ins.A)
		putI32(int32(ins.VarAttrIdx))
		putI16(ins.B)
	case OpSetByIndexExpr:
		putI16(ins.A)
		putI16(ins.B)
		putI16(ins.To)
	case OpGetByIndexExpr:
		putI16(ins.To)
		putI16(ins.A)
		putI16(ins.B)
	case OpHasAttrJump:
		putI16(ins.A)
		putI64(int64(ins.NameID))
		putI16(int(ins.Jump.Offset))
	case OpCallSetTop:
		putI16(ins.To)
	case OpCall, OpCallIgnoreIfNone:
		putI16(ins.To)
		putI16(ins.A)
		putI16(ins.PosArgs)
		putI16(ins.KwArgs)
		var flags byte
		if ins.ExpandLastArg {
			flags |= 1
		}
		buf = append(buf, flags)
		var async byte
		if ins.Async {
			async = 1
		}
		buf = append(buf, async)
	case OpReturnValue:
		putI16(ins.To)
	case OpJump:
		putI16(int(ins.Jump.Offset))
	case OpCondJump:
		putI16(ins.A)
		putI16(int(ins.Jump.Offset))
	case OpNewIterator:
		putI16(ins.To)
		putI16(ins.A)
	case OpIterate:
		putI16(ins.To)
		putI16(ins.A)
		putI16(int(ins.Jump.Offset))
	case OpPushCatchFrame:
		putI16(ins.FrameID)
		buf = append(buf, ins.CatchMode)
		putI16(ins.To)
		putI16(int(ins.Jump.Offset))
		putI16(int(ins.Jump2.Offset))
	case OpAddCatchType:
		putI16(ins.FrameID)
		putI32(int32(ins.ClassID))
	case OpAddCatchTypeByRef:
		putI16(ins.FrameID)
		putI16(ins.A)
	case OpPopCatchFrame, OpJumpToFinally:
		putI16(ins.FrameID)
	case OpNewList, OpNewSet, OpNewVector, OpNewMap:
		putI16(ins.To)
	case OpNewInstance:
		putI16(ins.To)
		putI32(int32(ins.ClassID))
	case OpNewInstanceByRef:
		putI16(ins.To)
		putI16(ins.A)
	case OpGetConstructor:
		putI16(ins.To)
		putI16(ins.A)
	case OpAwaitItem:
		putI16(ins.A)
	case OpCreatePipe:
		putI16(ins.To)
	default:
		panic(fmt.Sprintf("codegen: cannot encode opcode %v", ins.Op))
	}
	return buf
}

func encodeConst(buf []byte, v ir.ValueContent) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case ir.KindNone, ir.KindUnspecifiedKwarg:
	case ir.KindInt:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Int))
	case ir.KindFloat:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.Float))
	case ir.KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		buf = append(buf, b)
	case ir.KindShortStr, ir.KindShortBytes:
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(v.Short)))
		buf = append(buf, v.Short...)
	case ir.KindLongStr, ir.KindLongBytes:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.Long)))
		buf = append(buf, v.Long...)
	default:
		panic(fmt.Sprintf("codegen: cannot encode value kind %v", v.Kind))
	}
	return buf
}
