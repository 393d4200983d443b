package btf

// Compatibility selects which MessagePack wire-grammar revision an
// Encoder or Decoder restricts itself to (spec.md §6.1, §6.3).
type Compatibility uint8

const (
	// CompatV5 is the default: the full grammar in spec.md §6.1,
	// including str8 and all ext forms.
	CompatV5 Compatibility = iota
	// CompatV4 forbids str8 (strings that would use it fall back to
	// str16) and all ext forms; bin writes degrade to the str/raw
	// family instead of bin8/16/32.
	CompatV4
)

// Options carries every configuration knob from spec.md §6.3. Values
// must be held consistent across a program for data produced by one
// instance to be readable by another (spec.md §5 "Shared resources").
// Options is passed by value, following the teacher's
// constructor-returns-initialized-struct idiom (multimap.New) rather
// than a functional-options builder — see SPEC_FULL.md §2.2.
type Options struct {
	// Compatibility restricts the wire grammar an Encoder emits and,
	// symmetrically, the grammar a Decoder accepts without latching
	// KindUnsupported.
	Compatibility Compatibility

	// ExtensionsEnabled gates the ext kind. When false (the default),
	// any ext opcode — on encode or decode — latches KindUnsupported.
	ExtensionsEnabled bool

	// SizeOptimized selects the high-nibble-first decode dispatch
	// (SPEC_FULL.md §4.3) instead of the default full-opcode switch.
	// Behavior is identical either way; this only changes which branch
	// order the decoder's generated code takes.
	SizeOptimized bool

	// StackBufferSize is the size of an on-stack scratch buffer a
	// caller may use for a Writer/Reader that never straddles; it is
	// advisory and not enforced here.
	StackBufferSize int
	// DefaultBufferSize is used by NewGrowableWriter when the caller
	// does not supply a buffer.
	DefaultBufferSize int
	// NodePageSize is the target size (bytes) of each page the tree
	// arena allocates in paged mode (spec.md §4.6); ~4KB by default.
	NodePageSize int
	// InitialStackDepth is the depth stack's initial capacity in the
	// tree parser (spec.md §4.7).
	InitialStackDepth int
	// MaxStackDepthWithoutAlloc bounds recursion depth for callers that
	// want a hard compile-time-like ceiling instead of letting the
	// depth stack grow; 0 means unbounded.
	MaxStackDepthWithoutAlloc int
}

// DefaultOptions returns the default configuration: v5 compatibility,
// extensions disabled, full-opcode dispatch, and the buffer/page sizes
// spec.md §6.3 names.
func DefaultOptions() Options {
	return Options{
		Compatibility:             CompatV5,
		ExtensionsEnabled:         false,
		SizeOptimized:             false,
		StackBufferSize:           4096,
		DefaultBufferSize:         4096,
		NodePageSize:              4096,
		InitialStackDepth:         8,
		MaxStackDepthWithoutAlloc: 0,
	}
}
