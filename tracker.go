package btf

// trackerFrame records one open compound on the structural tracker's
// stack (spec.md §4.3). remaining counts elements for array, pairs for
// map, or bytes for str/bin/ext. keyNeedsValue is only meaningful for
// map frames: it alternates on every element() call so a map's pop
// can require its last key's value was actually written.
type trackerFrame struct {
	kind          Kind
	remaining     uint64
	keyNeedsValue bool
}

// tracker is the stack of open compound types shared by the streaming
// writer and reader (spec.md §4.3, C3). It performs no I/O; every
// operation is pure bookkeeping. Any misuse — closing the wrong kind,
// closing with elements still outstanding, leaving frames open at
// destroy — is a programmer fault and is reported as KindBug.
type tracker struct {
	frames []trackerFrame
}

// push opens a new compound frame. For KindMap, count is the pair
// count; for KindStr/KindBin/KindExt, count is payload bytes; for
// KindArray, count is the element count.
func (t *tracker) push(kind Kind, count uint64) {
	t.frames = append(t.frames, trackerFrame{kind: kind, remaining: count})
}

// top returns the innermost open frame, or nil if the tracker is empty.
func (t *tracker) top() *trackerFrame {
	if len(t.frames) == 0 {
		return nil
	}
	return &t.frames[len(t.frames)-1]
}

// element accounts for one array element or one map key/value half
// written at the current nesting level. It is a no-op when the
// innermost open frame is not an array or map (e.g. while inside a
// str/bin/ext payload, or at the top level). For maps, the remaining
// counter only decrements once both halves of a pair have been seen.
func (t *tracker) element() *Error {
	f := t.top()
	if f == nil {
		return nil
	}
	switch f.kind {
	case KindArray:
		if f.remaining == 0 {
			return newError(KindBug, "array element written past declared count")
		}
		f.remaining--
	case KindMap:
		if f.keyNeedsValue {
			if f.remaining == 0 {
				return newError(KindBug, "map value written past declared pair count")
			}
			f.remaining--
			f.keyNeedsValue = false
		} else {
			f.keyNeedsValue = true
		}
	}
	return nil
}

// peekElement reports whether the innermost array or map still expects
// another element, without mutating any state. For a map it reports
// whether any pair is still outstanding, so it returns false for a key
// past the declared pair count even though element() itself only
// rejects the value half of such a pair. Nothing in this package calls
// it yet.
func (t *tracker) peekElement() bool {
	f := t.top()
	if f == nil {
		return true
	}
	switch f.kind {
	case KindArray:
		return f.remaining > 0
	case KindMap:
		if f.keyNeedsValue {
			return f.remaining > 0
		}
		return f.remaining > 0
	default:
		return true
	}
}

// bytes subtracts n from the innermost str/bin/ext frame's remaining
// payload length. Calling it when the top frame is not one of those
// kinds, or when n exceeds what remains, is a bug.
func (t *tracker) bytes(n uint64) *Error {
	f := t.top()
	if f == nil || (f.kind != KindStr && f.kind != KindBin && f.kind != KindExt) {
		return newError(KindBug, "bytes() with no open str/bin/ext frame")
	}
	if n > f.remaining {
		return newError(KindBug, "payload write of %d bytes exceeds %d remaining", n, f.remaining)
	}
	f.remaining -= n
	return nil
}

// pop closes the innermost frame. kind must match, the frame's
// remaining counter must be zero, and — for maps — the last key must
// already have its value (!keyNeedsValue).
func (t *tracker) pop(kind Kind) *Error {
	f := t.top()
	if f == nil {
		return newError(KindBug, "close with no open compound")
	}
	if f.kind != kind {
		return newError(KindBug, "close kind %s does not match open kind %s", kind, f.kind)
	}
	if f.remaining != 0 {
		return newError(KindBug, "close of %s with %d elements still outstanding", kind, f.remaining)
	}
	if f.kind == KindMap && f.keyNeedsValue {
		return newError(KindBug, "close of map with a key missing its value")
	}
	t.frames = t.frames[:len(t.frames)-1]
	return nil
}

// checkEmpty is asserted at writer/reader destroy time (spec.md §4.4,
// §4.5): any still-open frame is a bug.
func (t *tracker) checkEmpty() *Error {
	if len(t.frames) != 0 {
		top := t.frames[len(t.frames)-1]
		return newError(KindBug, "destroy with %d compound(s) still open, innermost %s", len(t.frames), top.kind)
	}
	return nil
}

// depth reports the current nesting depth, mainly for diagnostics and
// tests.
func (t *tracker) depth() int { return len(t.frames) }
