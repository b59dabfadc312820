package wasmcodec

// LazyDecodeError wraps an error that occurred while a traversal forced
// a Lazy container to decode, as distinct from an error a caller's own
// visit callback returned. Callers that want to tell "this byte stream
// was malformed" apart from "my callback rejected a well-formed node"
// can type-assert for this.
type LazyDecodeError struct {
	Path string
	Err  error
}

func (e *LazyDecodeError) Error() string { return e.Path + ": " + e.Err.Error() }
func (e *LazyDecodeError) Unwrap() error { return e.Err }

// VisitFunc is called once per node reached during a traversal, in
// deterministic pre-order: fields in declaration order, sequences in
// index order, and a tagged union by its selected variant. Returning a
// non-nil error stops the traversal and surfaces that error verbatim.
type VisitFunc func(node any) error

// Visit walks m read-only, forcing every lazy instruction stream to
// decode along the way (surfacing decode failures as *LazyDecodeError)
// and invoking fn on the module itself and on every type definition,
// import, function type index, table, memory, global, export, element
// segment, function body, instruction, data segment, tag, and custom
// section it reaches.
func Visit(m *Module, fn VisitFunc) error {
	return walkModule(m, fn, false)
}

// VisitMut walks m the same way as Visit, but forces lazy decode via
// DecodedMut so fn may mutate function bodies, global initializers,
// and element/data offsets in place through the returned pointers.
// DecodedMut drops each container's raw bytes as soon as it is called,
// so every lazy section touched by the traversal re-serializes from its
// decoded tree on the next Encode; a no-op callback still reproduces
// the pre-visit bytes exactly because encode of a freshly decoded,
// unmodified tree is required to match its canonical input.
func VisitMut(m *Module, fn VisitFunc) error {
	return walkModule(m, fn, true)
}

func walkModule(m *Module, fn VisitFunc, mut bool) error {
	if err := fn(m); err != nil {
		return err
	}
	for i := range m.Types {
		if err := fn(&m.Types[i]); err != nil {
			return err
		}
	}
	for i := range m.Imports {
		if err := fn(&m.Imports[i]); err != nil {
			return err
		}
	}
	for i := range m.Funcs {
		if err := fn(&m.Funcs[i]); err != nil {
			return err
		}
	}
	for i := range m.Tables {
		if err := fn(&m.Tables[i]); err != nil {
			return err
		}
	}
	for i := range m.Memories {
		if err := fn(&m.Memories[i]); err != nil {
			return err
		}
	}
	for i := range m.Globals {
		instrs, err := forceExpr(&m.Globals[i].Init, mut, "global["+itoa(i)+"].init")
		if err != nil {
			return err
		}
		if err := fn(&m.Globals[i]); err != nil {
			return err
		}
		if err := visitInstructions(instrs, fn); err != nil {
			return err
		}
	}
	for i := range m.Exports {
		if err := fn(&m.Exports[i]); err != nil {
			return err
		}
	}
	for i := range m.Elements {
		el := &m.Elements[i]
		if err := fn(el); err != nil {
			return err
		}
		if !el.Offset.empty() {
			instrs, err := forceExpr(&el.Offset, mut, "element["+itoa(i)+"].offset")
			if err != nil {
				return err
			}
			if err := visitInstructions(instrs, fn); err != nil {
				return err
			}
		}
		for j := range el.Exprs {
			instrs, err := forceExpr(&el.Exprs[j], mut, "element["+itoa(i)+"].exprs["+itoa(j)+"]")
			if err != nil {
				return err
			}
			if err := visitInstructions(instrs, fn); err != nil {
				return err
			}
		}
	}
	for i := range m.Code {
		body := &m.Code[i]
		instrs, err := forceExpr(&body.Code, mut, "code["+itoa(i)+"]")
		if err != nil {
			return err
		}
		if err := fn(body); err != nil {
			return err
		}
		if err := visitInstructions(instrs, fn); err != nil {
			return err
		}
	}
	for i := range m.Data {
		seg := &m.Data[i]
		if err := fn(seg); err != nil {
			return err
		}
		if seg.Flags != 1 { // not passive: carries an offset expression
			instrs, err := forceExpr(&seg.Offset, mut, "data["+itoa(i)+"].offset")
			if err != nil {
				return err
			}
			if err := visitInstructions(instrs, fn); err != nil {
				return err
			}
		}
	}
	for i := range m.Tags {
		if err := fn(&m.Tags[i]); err != nil {
			return err
		}
	}
	for i := range m.Customs {
		if err := fn(&m.Customs[i]); err != nil {
			return err
		}
	}
	return nil
}

func visitInstructions(instrs []Instruction, fn VisitFunc) error {
	for i := range instrs {
		if err := fn(&instrs[i]); err != nil {
			return err
		}
	}
	return nil
}

// empty reports whether an expression Lazy container was never
// populated (used for non-active element segments, which carry no
// offset expression at all).
func (l *Lazy[T]) empty() bool {
	return l.decoded == nil && len(l.raw) == 0 && !l.rawValid
}

func forceExpr(l *Lazy[[]Instruction], mut bool, path string) ([]Instruction, error) {
	if mut {
		p, err := l.DecodedMut()
		if err != nil {
			return nil, &LazyDecodeError{Path: path, Err: err}
		}
		return *p, nil
	}
	v, err := l.Decoded()
	if err != nil {
		return nil, &LazyDecodeError{Path: path, Err: err}
	}
	return v, nil
}
