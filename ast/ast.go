// Package ast defines the abstract syntax tree (AST) for Horse64 source
// files, plus the per-scope Scope model consumed by the resolver and local
// storage allocator. It is a quasi-lossless AST: it can recreate the
// original source modulo whitespace normalization.
package ast

import (
	"fmt"
	"sort"
	"strings"

	"github.com/h64p/horsec/token"
)

// Node represents any node in the AST.
type Node interface {
	fmt.Formatter

	// Span reports the start and end position of the node.
	Span() (start, end token.Pos)

	// Walk enters each node inside itself to implement the Visitor pattern.
	Walk(v Visitor)
}

// Expr represents an expression in the AST.
type Expr interface {
	Node
	expr()
}

// Stmt represents a statement in the AST.
type Stmt interface {
	Node

	// BlockEnding reports whether the statement should only appear as the
	// last statement in a block (return, break, continue).
	BlockEnding() bool
}

// StorageKind is the tag of a StorageRef, per spec.md §3.5.
type StorageKind uint8

const (
	NoStorage StorageKind = iota
	StackSlot
	GlobalVarSlot
	GlobalFuncSlot
	GlobalClassSlot
	VarAttrSlot // class member index; method indices use MethodOffset+funcAttrIndex
)

func (k StorageKind) String() string {
	switch k {
	case StackSlot:
		return "stack"
	case GlobalVarSlot:
		return "global-var"
	case GlobalFuncSlot:
		return "global-func"
	case GlobalClassSlot:
		return "global-class"
	case VarAttrSlot:
		return "var-attr"
	default:
		return "none"
	}
}

// MethodOffset distinguishes a method index from a variable-attribute
// index within a single VarAttrSlot.ID, per spec.md §3.5.
const MethodOffset = 1 << 30

// StorageRef is the {kind, id} pair assigned by the resolver (F) and the
// local storage allocator (G), consumed by the code generator (I).
type StorageRef struct {
	Kind StorageKind
	ID   int
}

// Chunk is the top-level AST for one file: its name, module path, import
// library, global Scope, and result message bag reference live here so the
// resolver and project loader can drive per-file state without a separate
// wrapper type.
type Chunk struct {
	Name        string // file-relative display name
	FileURI     string
	ModulePath  string
	LibraryName string // empty if not imported "from" a library

	Block *Block
	EOF   token.Pos

	Global *Scope

	GlobalStorageBuilt  bool
	IdentifiersResolved bool
	ThreadableMapDone   bool
}

func (n *Chunk) Format(f fmt.State, verb rune) {
	lbl := "chunk"
	if n.Name != "" {
		lbl += " " + n.Name
	}
	format(f, verb, n, lbl, nil)
}
func (n *Chunk) Span() (start, end token.Pos) {
	if n.Block != nil {
		return n.Block.Span()
	}
	return n.EOF, n.EOF
}
func (n *Chunk) Walk(v Visitor) {
	if n.Block != nil {
		Walk(v, n.Block)
	}
}

// Block is a sequence of statements sharing one Scope.
type Block struct {
	Start token.Pos
	End   token.Pos
	Stmts []Stmt
	Scope *Scope // filled by the resolver
}

func (n *Block) Format(f fmt.State, verb rune) {
	format(f, verb, n, "block", map[string]int{"stmts": len(n.Stmts)})
}
func (n *Block) Span() (start, end token.Pos) { return n.Start, n.End }
func (n *Block) Walk(v Visitor) {
	for _, s := range n.Stmts {
		Walk(v, s)
	}
}

func format(f fmt.State, verb rune, n Node, label string, counts map[string]int) {
	if verb != 'v' && verb != 's' {
		fmt.Fprintf(f, "%%!%c(%T)", verb, n)
		return
	}
	label = strings.ReplaceAll(label, "\n", "⏎")
	label = strings.ReplaceAll(label, "\t", "⭾")

	if w, ok := f.Width(); ok {
		minus, plus := f.Flag('-'), f.Flag('+')
		runes := []rune(label)
		if len(runes) >= w {
			runes = runes[:w]
		} else if minus {
			runes = append(runes, []rune(strings.Repeat(" ", w-len(runes)))...)
		} else if !plus {
			runes = append([]rune(strings.Repeat(" ", w-len(runes))), runes...)
		}
		label = string(runes)
	}

	fmt.Fprint(f, label)
	if f.Flag('#') && len(counts) > 0 {
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprint(f, " {")
		for i, k := range keys {
			if i > 0 {
				fmt.Fprint(f, ", ")
			}
			fmt.Fprintf(f, "%s=%d", k, counts[k])
		}
		fmt.Fprint(f, "}")
	}
}
