package wasmcodec

import "fmt"

// FuncId indexes the function index space (imported functions first,
// then module-defined functions).
type FuncId uint32

// TableId indexes the table index space.
type TableId uint32

// MemId indexes the linear memory index space.
type MemId uint32

// GlobalId indexes the global index space.
type GlobalId uint32

// TypeId indexes the type section, with recursive groups expanded
// into the flat index space they occupy.
type TypeId uint32

// LocalId indexes a function's locals, parameters first.
type LocalId uint32

// LabelId indexes a branch target by nesting depth, innermost block first.
type LabelId uint32

// DataId indexes the data segment index space.
type DataId uint32

// ElemId indexes the element segment index space.
type ElemId uint32

// TagId indexes the exception-handling tag index space.
type TagId uint32

func (id FuncId) String() string   { return fmt.Sprintf("Func#%d", uint32(id)) }
func (id TableId) String() string  { return fmt.Sprintf("Table#%d", uint32(id)) }
func (id MemId) String() string    { return fmt.Sprintf("Mem#%d", uint32(id)) }
func (id GlobalId) String() string { return fmt.Sprintf("Global#%d", uint32(id)) }
func (id TypeId) String() string   { return fmt.Sprintf("Type#%d", uint32(id)) }
func (id LocalId) String() string  { return fmt.Sprintf("Local#%d", uint32(id)) }
func (id LabelId) String() string  { return fmt.Sprintf("Label#%d", uint32(id)) }
func (id DataId) String() string   { return fmt.Sprintf("Data#%d", uint32(id)) }
func (id ElemId) String() string   { return fmt.Sprintf("Elem#%d", uint32(id)) }
func (id TagId) String() string    { return fmt.Sprintf("Tag#%d", uint32(id)) }
