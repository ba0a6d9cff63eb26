// Package ir holds the bytecode program model (A): the Program that owns
// every function, class and global emitted by the front end, attribute-name
// interning, the per-class attribute hash table, and the debug-symbol
// tables consumed by the project loader (E) and code generator (I).
package ir

// FuncID, ClassID and GlobalID index into Program.Funcs/Classes/Globals.
// -1 denotes "none".
type (
	FuncID   int32
	ClassID  int32
	GlobalID int32
)

const NoID = -1

// Func is one compiled function, per spec.md §3.1.
type Func struct {
	IsCFunction bool
	NativeKey   string // "<module>.<name>[@lib:<lib>]", only set for C functions
	NativeFunc  any    // native function pointer, only set for C functions

	PosArgCount     int
	LastIsMultiArg  bool // last positional parameter captures "...rest"
	KwArgCount      int
	SortedKwNameIDs []AttrID

	AssociatedClass ClassID // NoID if this function is not a method

	InputStackSize int
	InnerStackSize int

	// Threadable is a tri-state: by default every function is threadable
	// until the async-propagation checker (H) demotes it; UserSetCanAsync
	// records whether the source explicitly marked it "async" so a later
	// demotion can be reported as an error instead of a silent downgrade.
	Threadable       bool
	UserSetCanAsync  bool

	Code []byte // nil for a C function
}

// Class is one compiled class, per spec.md §3.1.
type Class struct {
	BaseClass ClassID // NoID if this class has no base

	VarAttrs  []VarAttr
	FuncAttrs []FuncAttr

	AttrHash AttrHashTable

	IsError bool // true once the base chain is found to reach Exception

	HasVarInitFunc bool
	VarInitFunc    FuncID

	Threadable      bool
	UserSetCanAsync bool
}

// VarAttr is one variable attribute slot of a class.
type VarAttr struct {
	NameID AttrID
	// InitExpr is a transient pointer to the declaring expression (ast.Expr),
	// consumed by codegen's synthesized $$varinit function, which reads it
	// and leaves it in place.
	InitExpr any
}

// FuncAttr is one method slot of a class.
type FuncAttr struct {
	NameID AttrID
	Func   FuncID
}

// Global is one compiled module-level variable, per spec.md §3.1.
type Global struct {
	Name          string
	IsConst       bool
	IsSimpleConst bool // RHS is a literal or missing
	FileURIIndex  int
}

// Program owns every function, class and global in the compiled project,
// the attribute-name intern table, and per-module symbol tables.
type Program struct {
	Funcs   []Func
	Classes []Class
	Globals []Global

	Attrs AttrTable

	Modules map[string]*ModuleSymbols // keyed by "@<library>/<module-path>"; built-in module is "@"

	MainFuncIndex       FuncID
	GlobalInitFuncIndex FuncID

	Debug DebugSymbols
}

// NewProgram returns an empty Program with a ready-to-use attribute table
// and the built-in module already registered.
func NewProgram() *Program {
	p := &Program{
		Attrs:               NewAttrTable(),
		Modules:             make(map[string]*ModuleSymbols),
		MainFuncIndex:       NoID,
		GlobalInitFuncIndex: NoID,
	}
	p.Modules[BuiltinModuleKey] = NewModuleSymbols()
	return p
}

// AddFunc appends fn to Program.Funcs and returns its new id.
func (p *Program) AddFunc(fn Func) FuncID {
	p.Funcs = append(p.Funcs, fn)
	return FuncID(len(p.Funcs) - 1)
}

// AddClass appends cl to Program.Classes and returns its new id.
func (p *Program) AddClass(cl Class) ClassID {
	cl.VarInitFunc = NoID
	p.Classes = append(p.Classes, cl)
	return ClassID(len(p.Classes) - 1)
}

// AddGlobal appends g to Program.Globals and returns its new id.
func (p *Program) AddGlobal(g Global) GlobalID {
	p.Globals = append(p.Globals, g)
	return GlobalID(len(p.Globals) - 1)
}

// Func, Class and Global dereference an id into its record pointer.
func (p *Program) Func(id FuncID) *Func     { return &p.Funcs[id] }
func (p *Program) Class(id ClassID) *Class  { return &p.Classes[id] }
func (p *Program) Global(id GlobalID) *Global { return &p.Globals[id] }

// BuiltinModuleKey is the Program.Modules key for the built-in module.
const BuiltinModuleKey = "@"

// ModuleKey formats the Program.Modules key for a library/module-path pair,
// per spec.md §3.1 ("@<library>/<module-path>").
func ModuleKey(library, modulePath string) string {
	if library == "" {
		return "@" + modulePath
	}
	return "@" + library + "/" + modulePath
}

// ModuleSymbols is one module's exported symbol table: name -> index maps
// plus the reverse arrays carrying source-level names and file-uri indices.
type ModuleSymbols struct {
	FuncIndex  map[string]FuncID
	ClassIndex map[string]ClassID
	GlobalIdx  map[string]GlobalID

	FuncSymbols   []Symbol
	ClassSymbols  []Symbol
	GlobalSymbols []Symbol
}

// Symbol carries the source-level name and declaring file of one exported
// module member, for debug symbol and error-reporting purposes.
type Symbol struct {
	Name         string
	FileURIIndex int
	ID           int32 // FuncID/ClassID/GlobalID, widened for storage uniformity
}

func NewModuleSymbols() *ModuleSymbols {
	return &ModuleSymbols{
		FuncIndex:  make(map[string]FuncID),
		ClassIndex: make(map[string]ClassID),
		GlobalIdx:  make(map[string]GlobalID),
	}
}

// Module returns (creating if absent) the symbol table for library/modulePath.
func (p *Program) Module(library, modulePath string) *ModuleSymbols {
	key := ModuleKey(library, modulePath)
	m, ok := p.Modules[key]
	if !ok {
		m = NewModuleSymbols()
		p.Modules[key] = m
	}
	return m
}

// RegisterFunc records a function under its source-level name in the given
// module's symbol table.
func (m *ModuleSymbols) RegisterFunc(name string, id FuncID, fileURIIndex int) {
	m.FuncIndex[name] = id
	m.FuncSymbols = append(m.FuncSymbols, Symbol{Name: name, FileURIIndex: fileURIIndex, ID: int32(id)})
}

// RegisterClass records a class under its source-level name.
func (m *ModuleSymbols) RegisterClass(name string, id ClassID, fileURIIndex int) {
	m.ClassIndex[name] = id
	m.ClassSymbols = append(m.ClassSymbols, Symbol{Name: name, FileURIIndex: fileURIIndex, ID: int32(id)})
}

// RegisterGlobal records a global under its source-level name.
func (m *ModuleSymbols) RegisterGlobal(name string, id GlobalID, fileURIIndex int) {
	m.GlobalIdx[name] = id
	m.GlobalSymbols = append(m.GlobalSymbols, Symbol{Name: name, FileURIIndex: fileURIIndex, ID: int32(id)})
}
