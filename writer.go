package btf

import "golang.org/x/text/unicode/norm"

// FlushFunc drains buf to a sink (file, socket, in-memory accumulator).
// It must consume all of buf before returning.
type FlushFunc func(buf []byte) *Error

// Writer is the streaming tag encoder (spec.md §4.4, C4): a bounded
// buffer, an optional flush sink, and the structural tracker shared with
// Reader. The zero Writer is not usable; construct with NewWriter or
// NewGrowableWriter.
type Writer struct {
	latch
	opts     Options
	buf      []byte
	len      int
	flush    FlushFunc
	onClose  func()
	tracker  tracker
	growable bool
}

// NewWriter returns a Writer over a caller-supplied buffer with no
// flush sink: once buf fills, further writes latch too_big. buf must be
// at least MaxTagSize bytes so that no single tag header can ever fail
// to fit an empty buffer (spec.md §4.4 "Minimum buffer"); this is
// asserted at construction as a KindBug rather than deferred to first
// use, since it is always a caller mistake.
func NewWriter(buf []byte, opts Options) *Writer {
	w := &Writer{opts: opts, buf: buf}
	if len(buf) < MaxTagSize {
		w.fail(newError(KindBug, "writer buffer of %d bytes is smaller than MaxTagSize (%d)", len(buf), MaxTagSize))
	}
	return w
}

// NewFlushingWriter returns a Writer over buf that calls flush whenever
// buf fills. buf must be at least MaxTagSize bytes, per the same
// bootstrap assertion as NewWriter.
func NewFlushingWriter(buf []byte, flush FlushFunc, opts Options) *Writer {
	w := NewWriter(buf, opts)
	w.flush = flush
	return w
}

// NewGrowableWriter returns a Writer whose own flush doubles the
// backing buffer instead of draining anywhere (spec.md §4.4 "Growable
// flush"). Bytes accumulate in memory; call Bytes() after Destroy to
// retrieve them.
func NewGrowableWriter(opts Options) *Writer {
	size := opts.DefaultBufferSize
	if size < MaxTagSize {
		size = MaxTagSize
	}
	w := &Writer{opts: opts, buf: make([]byte, size), growable: true}
	w.flush = w.growFlush
	return w
}

// growFlush is the built-in sink for a growable Writer: it never drains
// bytes away, it only grows capacity. The pending content up to w.len
// is preserved; the caller (reserve) appends after this runs.
func (w *Writer) growFlush(buf []byte) *Error {
	newCap := cap(w.buf) * 2
	grown := make([]byte, newCap)
	copy(grown, buf)
	w.buf = grown
	w.len = len(buf)
	return nil
}

// Bytes returns the accumulated content of a growable Writer. Only
// meaningful after Destroy succeeds with no latched error.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.len]
}

// reserve ensures n more bytes fit in the buffer, flushing (or growing)
// if needed, per spec.md §4.4 "Reserve".
func (w *Writer) reserve(n int) bool {
	if !w.ok() {
		return false
	}
	if w.len+n <= len(w.buf) {
		return true
	}
	if w.flush == nil {
		w.fail(newError(KindTooBig, "write of %d bytes exceeds buffer capacity %d with no flush installed", n, len(w.buf)))
		return false
	}
	pending := w.buf[:w.len]
	if err := w.flush(pending); err != nil {
		w.fail(err)
		return false
	}
	if !w.growable {
		w.len = 0
	}
	for w.len+n > len(w.buf) {
		if !w.growable {
			w.fail(newError(KindTooBig, "write of %d bytes still exceeds buffer capacity %d after flush", n, len(w.buf)))
			return false
		}
		pending = w.buf[:w.len]
		if err := w.flush(pending); err != nil {
			w.fail(err)
			return false
		}
	}
	return true
}

func (w *Writer) appendTag(t Tag) {
	if !w.reserve(MaxTagSize) {
		return
	}
	n, err := EncodeTag(w.buf[w.len:], t, w.opts)
	if err != nil {
		w.fail(err)
		return
	}
	w.len += n
}

func (w *Writer) appendRaw(p []byte) {
	if !w.reserve(len(p)) {
		return
	}
	w.len += copy(w.buf[w.len:], p)
}

// WriteNil writes a nil tag.
func (w *Writer) WriteNil() {
	if w.ok() {
		if err := w.tracker.element(); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendTag(TagNil())
}

// WriteBool writes a bool tag.
func (w *Writer) WriteBool(v bool) {
	if w.ok() {
		if err := w.tracker.element(); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendTag(TagBool(v))
}

// WriteInt writes a signed-int tag using the minimal wire form (spec.md
// §4.4 "write_int performs element(), then emits the minimally-encoded
// form").
func (w *Writer) WriteInt(v int64) {
	if w.ok() {
		if err := w.tracker.element(); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendTag(TagInt(v))
}

// WriteUint writes an unsigned-int tag using the minimal wire form.
func (w *Writer) WriteUint(v uint64) {
	if w.ok() {
		if err := w.tracker.element(); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendTag(TagUint(v))
}

// WriteFloat32 writes a float32 tag.
func (w *Writer) WriteFloat32(v float32) {
	if w.ok() {
		if err := w.tracker.element(); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendTag(TagFloat32(v))
}

// WriteFloat64 writes a float64 tag.
func (w *Writer) WriteFloat64(v float64) {
	if w.ok() {
		if err := w.tracker.element(); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendTag(TagFloat64(v))
}

// WriteTimestamp writes an ext(-1) timestamp tag followed by its packed
// payload (spec.md §6.2). Requires ExtensionsEnabled.
func (w *Writer) WriteTimestamp(ts Timestamp) {
	var packed [12]byte
	n, err := EncodeTimestamp(packed[:], ts)
	if err != nil {
		w.fail(err)
		return
	}
	w.OpenExt(ExtTimestamp, uint32(n))
	w.WriteBytes(packed[:n])
	w.CloseExt()
}

// OpenStr opens a str compound of the given byte length. The payload
// itself is written with WriteBytes/WriteStringNFC, then closed with
// CloseStr.
func (w *Writer) OpenStr(length uint32) {
	if w.ok() {
		if err := w.tracker.element(); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendTag(TagStr(length))
	if w.ok() {
		w.tracker.push(KindStr, uint64(length))
	}
}

// CloseStr closes a str compound opened by OpenStr. Its declared length
// must have been fully consumed by WriteBytes calls.
func (w *Writer) CloseStr() {
	if !w.ok() {
		return
	}
	if err := w.tracker.pop(KindStr); err != nil {
		w.fail(err)
	}
}

// OpenBin opens a bin compound of the given byte length.
func (w *Writer) OpenBin(length uint32) {
	if w.ok() {
		if err := w.tracker.element(); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendTag(TagBin(length))
	if w.ok() {
		w.tracker.push(KindBin, uint64(length))
	}
}

// CloseBin closes a bin compound opened by OpenBin.
func (w *Writer) CloseBin() {
	if !w.ok() {
		return
	}
	if err := w.tracker.pop(KindBin); err != nil {
		w.fail(err)
	}
}

// OpenExt opens an ext compound of the given user type and byte length.
func (w *Writer) OpenExt(extType int8, length uint32) {
	if w.ok() {
		if err := w.tracker.element(); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendTag(TagExt(extType, length))
	if w.ok() {
		w.tracker.push(KindExt, uint64(length))
	}
}

// CloseExt closes an ext compound opened by OpenExt.
func (w *Writer) CloseExt() {
	if !w.ok() {
		return
	}
	if err := w.tracker.pop(KindExt); err != nil {
		w.fail(err)
	}
}

// OpenArray opens an array compound with the given element count.
func (w *Writer) OpenArray(count uint32) {
	if w.ok() {
		if err := w.tracker.element(); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendTag(TagArray(count))
	if w.ok() {
		w.tracker.push(KindArray, uint64(count))
	}
}

// CloseArray closes an array compound opened by OpenArray. Exactly
// count elements must have been written.
func (w *Writer) CloseArray() {
	if !w.ok() {
		return
	}
	if err := w.tracker.pop(KindArray); err != nil {
		w.fail(err)
	}
}

// OpenMap opens a map compound with the given pair count.
func (w *Writer) OpenMap(count uint32) {
	if w.ok() {
		if err := w.tracker.element(); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendTag(TagMap(count))
	if w.ok() {
		w.tracker.push(KindMap, uint64(count))
	}
}

// CloseMap closes a map compound opened by OpenMap. Exactly count key
// and count value writes must have occurred, in that order per pair.
func (w *Writer) CloseMap() {
	if !w.ok() {
		return
	}
	if err := w.tracker.pop(KindMap); err != nil {
		w.fail(err)
	}
}

// WriteBytes appends raw payload bytes to the innermost open
// str/bin/ext compound.
func (w *Writer) WriteBytes(p []byte) {
	if w.ok() {
		if err := w.tracker.bytes(uint64(len(p))); err != nil {
			w.fail(err)
			return
		}
	}
	w.appendRaw(p)
}

// WriteStringNFC NFC-normalizes s and writes it as a complete str value
// (tag plus payload): opens a str of the normalized byte length, writes
// the normalized bytes, then closes. Matches the teacher's FromString
// convention of normalizing once at the boundary rather than leaving
// normalization to the caller.
func (w *Writer) WriteStringNFC(s string) {
	normalized := norm.NFC.String(s)
	w.OpenStr(uint32(len(normalized)))
	w.WriteBytes([]byte(normalized))
	w.CloseStr()
}

// SetOnClose installs a teardown callback invoked once, after the final
// flush, from Destroy.
func (w *Writer) SetOnClose(f func()) { w.onClose = f }

// SetOnError installs an error callback invoked at most once, the first
// time an operation latches an error.
func (w *Writer) SetOnError(f func(*Error)) { w.onError = f }

// Destroy flushes any pending bytes (if no error is latched), asserts
// the tracker is empty, and invokes the teardown callback. Safe to call
// after an error: it simply skips the flush and assertion and still
// invokes onClose, since callers remain responsible for releasing
// resources regardless of error state (spec.md §4.4 "Destroy").
func (w *Writer) Destroy() *Error {
	if w.ok() {
		if w.flush != nil && w.len > 0 {
			if err := w.flush(w.buf[:w.len]); err != nil {
				w.fail(err)
			} else if !w.growable {
				w.len = 0
			}
		}
		if w.ok() {
			if err := w.tracker.checkEmpty(); err != nil {
				w.fail(err)
			}
		}
	}
	if w.onClose != nil {
		w.onClose()
	}
	return w.Err()
}
