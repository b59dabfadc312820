// Package wasmcodec provides WebAssembly binary format parsing and encoding.
//
// It implements a codec for the WebAssembly module grammar: wire
// primitives (LEB128, floats, names), a generic encode/decode
// framework, the value/block/memory/table type grammar, the
// instruction stream (with depth-tracked expression decoding), a
// lazy section container, and a deterministic visitor traversal.
//
// # Scope
//
// This package decodes and encodes the binary grammar only. It does
// not validate semantic well-formedness beyond what the grammar
// forces (no cross-section index bounds checking, no operand type
// checking), does not execute code, and does not parse the textual
// format. Callers wanting semantic validation should layer
// wasmvalidate on top, or write their own.
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Encoding
//
//	encoded, err := module.Encode()
//
// Re-encoding a decoded module reproduces its input bytes when the
// input uses minimal LEB128 throughout, with these exceptions: overlong
// LEB128 outside instruction streams is written back in minimal form
// (instruction streams that were never decoded mutably or Set are
// written back verbatim), sections with zero entries are omitted,
// recursive type groups are written as their individual member types,
// and a final sub type with no parents is written in its short form.
// decode(encode(module)) is semantically equal to module for any
// module the encoder accepts.
//
// # Instructions
//
//	instrs, err := wasmcodec.DecodeInstructions(code, features)
//	encoded, err := wasmcodec.EncodeInstructions(instrs)
//
// # Traversal
//
//	err := wasmcodec.Visit(module, func(n any) error {
//	    fmt.Printf("%T\n", n)
//	    return nil
//	})
package wasmcodec
