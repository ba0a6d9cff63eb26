package ir

import "github.com/cespare/xxhash/v2"

// DebugSymbols carries the source-level information needed to map a
// compiled Program back to file/line/column for diagnostics and the
// disassembler (codegen.Disassemble), per spec.md §3.1/§3.3.
type DebugSymbols struct {
	// FileURIs is the project-wide table of normalized file-uri strings;
	// every Func/Global/import records an index into this table rather than
	// repeating the string.
	FileURIs []string

	// uriIndex maps a fast xxhash of a file URI to its FileURIs index, so
	// InternFileURI doesn't rescan every known URI on every file touched
	// by a project (a project can import the same module from many sites).
	uriIndex map[uint64]int

	// FuncPos maps a FuncID to the source line/column of its "func" token
	// (or, for C functions, is the zero value).
	FuncPos []LineCol

	// ClassPos maps a ClassID to the source line/column of its "class" token.
	ClassPos []LineCol

	// FuncNames and ClassNames mirror Program.Funcs/Classes, carrying the
	// declared source-level name (empty for inline function expressions;
	// the synthesized functions are recorded as "$$globalinit" and
	// "$$varinit").
	FuncNames  []string
	ClassNames []string

	// LineTab maps a FuncID to a sparse program-counter -> line/column
	// table, populated by the linker (J) once instruction offsets are
	// final.
	LineTab map[FuncID][]PCLineCol
}

// LineCol is a 1-based source line and column pair.
type LineCol struct {
	Line, Col int
}

// PCLineCol associates one bytecode offset with a source position.
type PCLineCol struct {
	PC        int
	Line, Col int
}

// InternFileURI returns the index of uri in FileURIs, appending it if new.
func (d *DebugSymbols) InternFileURI(uri string) int {
	h := xxhash.Sum64String(uri)
	if i, ok := d.uriIndex[h]; ok && d.FileURIs[i] == uri {
		return i
	}
	if d.uriIndex == nil {
		d.uriIndex = make(map[uint64]int)
	}
	d.FileURIs = append(d.FileURIs, uri)
	i := len(d.FileURIs) - 1
	d.uriIndex[h] = i
	return i
}

// RecordFunc appends name/pos to FuncNames/FuncPos, keeping them aligned
// with a freshly-added Program.Funcs entry (same index).
func (d *DebugSymbols) RecordFunc(name string, pos LineCol) {
	d.FuncNames = append(d.FuncNames, name)
	d.FuncPos = append(d.FuncPos, pos)
}

// RecordClass appends name/pos to ClassNames/ClassPos, keeping them aligned
// with a freshly-added Program.Classes entry (same index).
func (d *DebugSymbols) RecordClass(name string, pos LineCol) {
	d.ClassNames = append(d.ClassNames, name)
	d.ClassPos = append(d.ClassPos, pos)
}

// AddLine records that pc within fn's bytecode corresponds to line/col; used
// by the linker (J) once relative jump offsets are finalized.
func (d *DebugSymbols) AddLine(fn FuncID, pc, line, col int) {
	if d.LineTab == nil {
		d.LineTab = make(map[FuncID][]PCLineCol)
	}
	d.LineTab[fn] = append(d.LineTab[fn], PCLineCol{PC: pc, Line: line, Col: col})
}
