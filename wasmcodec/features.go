package wasmcodec

// Features selects which post-2.0 proposals the codec accepts. Toggling
// a flag changes the set of decodable opcodes (threads, exception
// handling, tail calls, multi-memory, GC) or the shape of the
// memory-type encoding matrix (threads, memory64, custom-page-sizes);
// ExtendedConst gates nothing in this package. An
// opcode or memory-type variant gated by a disabled feature is rejected
// with an unsupported-discriminant error rather than silently ignored.
type Features struct {
	Threads           bool
	ExceptionHandling bool
	TailCall          bool
	CustomPageSizes   bool
	Memory64          bool
	MultiMemory       bool
	ExtendedConst     bool
	GC                bool
}

// DefaultFeatures enables every proposal this codec has opcode tables
// for. Narrow it down for a caller that wants to reject bytes outside a
// specific target profile.
func DefaultFeatures() Features {
	return Features{
		Threads:           true,
		ExceptionHandling: true,
		TailCall:          true,
		CustomPageSizes:   true,
		Memory64:          true,
		MultiMemory:       true,
		ExtendedConst:     true,
		GC:                true,
	}
}

// Core20Features enables only what the WebAssembly 2.0 core
// specification requires, with every post-2.0 proposal disabled.
func Core20Features() Features {
	return Features{}
}
