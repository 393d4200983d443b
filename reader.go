package btf

import "unicode/utf8"

// FillFunc pulls more bytes into buf[:cap] from a source, blocking if
// needed, and returns how many bytes landed at buf[0:]. It must return
// ≥1 on success; 0 means the source is exhausted (spec.md §4.5
// "Ensure(n)").
type FillFunc func(buf []byte) (int, *Error)

// SkipFunc discards n bytes directly at the source, for seekable
// sources that can skip without reading through the buffer.
type SkipFunc func(n int64) *Error

// Reader is the streaming tag reader (spec.md §4.5, C5): a read cursor
// over a buffer, with optional pull-fill and seek-skip callbacks. The
// zero Reader is not usable; construct with NewReader or
// NewFillingReader.
type Reader struct {
	latch
	opts    Options
	buf     []byte
	pos     int
	end     int
	fill    FillFunc
	skip    SkipFunc
	onClose func()
	tracker tracker
}

// NewReader returns a Reader over a pre-loaded buffer containing one or
// more complete messages, with no fill source: reading past the end of
// buf latches invalid (the source is assumed complete).
func NewReader(buf []byte, opts Options) *Reader {
	return &Reader{opts: opts, buf: buf, end: len(buf)}
}

// NewFillingReader returns a Reader whose buffer is topped up by fill
// as needed. buf must be at least MaxTagSize bytes, mirroring the
// Writer's bootstrap assertion, since Ensure(MaxTagSize) must always be
// satisfiable in an empty buffer.
func NewFillingReader(buf []byte, fill FillFunc, opts Options) *Reader {
	r := &Reader{opts: opts, buf: buf, fill: fill}
	if len(buf) < MaxTagSize {
		r.fail(newError(KindBug, "reader buffer of %d bytes is smaller than MaxTagSize (%d)", len(buf), MaxTagSize))
	}
	return r
}

// SetSkip installs a seek-skip callback used by SkipBytes for large
// discards (spec.md §4.5 "Skip bytes").
func (r *Reader) SetSkip(skip SkipFunc) { r.skip = skip }

// SetOnClose installs a teardown callback invoked once from Destroy.
func (r *Reader) SetOnClose(f func()) { r.onClose = f }

// SetOnError installs an error callback invoked at most once, the first
// time an operation latches an error.
func (r *Reader) SetOnError(f func(*Error)) { r.onError = f }

func (r *Reader) available() int { return r.end - r.pos }

// ensure guarantees n bytes are available starting at r.pos, per
// spec.md §4.5 "Ensure(n)".
func (r *Reader) ensure(n int) bool {
	if !r.ok() {
		return false
	}
	if r.available() >= n {
		return true
	}
	if r.fill == nil {
		r.fail(newError(KindInvalid, "need %d bytes but only %d available and no fill installed", n, r.available()))
		return false
	}
	if n > len(r.buf) {
		r.fail(newError(KindTooBig, "need %d bytes but reader buffer is only %d", n, len(r.buf)))
		return false
	}
	if r.pos > 0 {
		copy(r.buf, r.buf[r.pos:r.end])
		r.end -= r.pos
		r.pos = 0
	}
	for r.available() < n {
		got, err := r.fill(r.buf[r.end:])
		if err != nil {
			r.fail(err)
			return false
		}
		if got == 0 {
			if r.available() == 0 && r.tracker.depth() == 0 {
				r.fail(newError(KindEOF, "source exhausted between messages"))
			} else {
				r.fail(newError(KindIO, "source exhausted with %d of %d bytes needed", r.available(), n))
			}
			return false
		}
		r.end += got
	}
	return true
}

// smallFractionThreshold is the denominator of spec.md §4.5's "small
// fraction" rule: with a fill installed, reads at or below
// buffer_size/32 are gathered whole in the buffer and copied out once;
// larger reads are copied out one buffer-load at a time, refilling the
// buffer in between. Both paths go through the buffer; fill never
// writes into the destination directly.
const smallFractionThreshold = 32

// skipThresholdDenom is the denominator of spec.md §4.5's skip-bytes
// rule: discards above buffer_size/16 use the skip callback.
const skipThresholdDenom = 16

// ReadBytes copies exactly len(dst) bytes from the source into dst,
// straddling buffer refills as needed (spec.md §4.5 "Read run").
func (r *Reader) ReadBytes(dst []byte) {
	if !r.ok() {
		return
	}
	if err := r.tracker.bytes(uint64(len(dst))); err != nil {
		r.fail(err)
		return
	}
	n := len(dst)
	if r.fill != nil && n > len(r.buf)/smallFractionThreshold {
		copied := 0
		for copied < n {
			avail := r.available()
			if avail == 0 {
				if !r.ensure(1) {
					return
				}
				avail = r.available()
			}
			take := n - copied
			if take > avail {
				take = avail
			}
			copy(dst[copied:], r.buf[r.pos:r.pos+take])
			r.pos += take
			copied += take
		}
		return
	}
	if !r.ensure(n) {
		return
	}
	copy(dst, r.buf[r.pos:r.pos+n])
	r.pos += n
}

// ReadBytesInPlace returns a slice pointing directly into the Reader's
// buffer when n is small relative to buffer size, avoiding a copy
// (spec.md §4.5 "In-place read"). The returned slice is valid only
// until the next read call. For larger n, it falls back to an
// allocated copy via ReadBytes.
func (r *Reader) ReadBytesInPlace(n int) []byte {
	if !r.ok() {
		return nil
	}
	if n <= len(r.buf)/smallFractionThreshold {
		if err := r.tracker.bytes(uint64(n)); err != nil {
			r.fail(err)
			return nil
		}
		if !r.ensure(n) {
			return nil
		}
		p := r.buf[r.pos : r.pos+n]
		r.pos += n
		return p
	}
	out := make([]byte, n)
	r.ReadBytes(out)
	if !r.ok() {
		return nil
	}
	return out
}

// ReadBytesUTF8 reads n bytes like ReadBytes, then validates the result
// as UTF-8, latching KindType on failure (spec.md §4.5 "UTF-8
// variants").
func (r *Reader) ReadBytesUTF8(dst []byte) {
	r.ReadBytes(dst)
	if !r.ok() {
		return
	}
	if !utf8.Valid(dst) {
		r.fail(newError(KindType, "payload is not valid UTF-8"))
	}
}

// SkipBytes discards n bytes of payload from the innermost open
// str/bin/ext frame (spec.md §4.5 "Skip bytes").
func (r *Reader) SkipBytes(n int) {
	if !r.ok() {
		return
	}
	if err := r.tracker.bytes(uint64(n)); err != nil {
		r.fail(err)
		return
	}
	fromBuf := r.available()
	if fromBuf > n {
		fromBuf = n
	}
	r.pos += fromBuf
	remaining := n - fromBuf
	if remaining == 0 {
		return
	}
	if r.skip != nil && remaining > len(r.buf)/skipThresholdDenom {
		if err := r.skip(int64(remaining)); err != nil {
			r.fail(err)
		}
		return
	}
	for remaining > 0 {
		if !r.ensure(1) {
			return
		}
		take := r.available()
		if take > remaining {
			take = remaining
		}
		r.pos += take
		remaining -= take
	}
}

// ReadTag reads and advances past one tag, updating the structural
// tracker: opening a str/bin/ext pushes its byte length, opening an
// array/map pushes its element/pair count (spec.md §4.5 "Read tag").
// The returned tag's Length/Count describes payload still to be
// consumed via ReadBytes/SkipBytes or nested ReadTag calls.
func (r *Reader) ReadTag() Tag {
	if !r.ok() {
		return Tag{}
	}
	if err := r.tracker.element(); err != nil {
		r.fail(err)
		return Tag{}
	}
	if !r.ensure(1) {
		return Tag{}
	}
	size, szErr := TagHeaderSize(r.buf[r.pos], r.opts)
	if szErr != nil {
		r.fail(szErr)
		return Tag{}
	}
	if !r.ensure(size) {
		return Tag{}
	}
	t, n, err := DecodeTag(r.buf[r.pos:r.pos+size], r.opts)
	if err != nil {
		r.fail(err)
		return Tag{}
	}
	r.pos += n
	switch t.Kind {
	case KindArray:
		r.tracker.push(KindArray, uint64(t.Count))
	case KindMap:
		r.tracker.push(KindMap, uint64(t.Count))
	case KindStr, KindBin, KindExt:
		r.tracker.push(t.Kind, uint64(t.Length))
	}
	return t
}

// PeekTag reads the next tag without advancing the cursor or updating
// the tracker (spec.md §4.5 "Peek tag").
func (r *Reader) PeekTag() Tag {
	if !r.ok() {
		return Tag{}
	}
	if !r.ensure(1) {
		return Tag{}
	}
	size, szErr := TagHeaderSize(r.buf[r.pos], r.opts)
	if szErr != nil {
		r.fail(szErr)
		return Tag{}
	}
	if !r.ensure(size) {
		return Tag{}
	}
	t, _, err := DecodeTag(r.buf[r.pos:r.pos+size], r.opts)
	if err != nil {
		r.fail(err)
		return Tag{}
	}
	return t
}

// CloseStr, CloseBin, CloseExt, CloseArray, CloseMap close the
// innermost compound of the matching kind, opened by a prior ReadTag.
// The frame's declared length/count must already be fully consumed.
func (r *Reader) CloseStr() { r.closeCompound(KindStr) }
func (r *Reader) CloseBin() { r.closeCompound(KindBin) }
func (r *Reader) CloseExt() { r.closeCompound(KindExt) }
func (r *Reader) CloseArray() { r.closeCompound(KindArray) }
func (r *Reader) CloseMap() { r.closeCompound(KindMap) }

func (r *Reader) closeCompound(kind Kind) {
	if !r.ok() {
		return
	}
	if err := r.tracker.pop(kind); err != nil {
		r.fail(err)
	}
}

// Discard recursively skips the next value, closing any compound it
// opens (spec.md §4.5 "Discard"): str/bin/ext payload is skipped and
// closed; array/map children (and, for maps, each key/value pair) are
// discarded in turn, then closed.
func (r *Reader) Discard() {
	if !r.ok() {
		return
	}
	t := r.ReadTag()
	if !r.ok() {
		return
	}
	switch t.Kind {
	case KindStr:
		r.SkipBytes(int(t.Length))
		r.CloseStr()
	case KindBin:
		r.SkipBytes(int(t.Length))
		r.CloseBin()
	case KindExt:
		r.SkipBytes(int(t.Length))
		r.CloseExt()
	case KindArray:
		for i := uint32(0); i < t.Count; i++ {
			r.Discard()
			if !r.ok() {
				return
			}
		}
		r.CloseArray()
	case KindMap:
		for i := uint32(0); i < t.Count; i++ {
			r.Discard()
			if !r.ok() {
				return
			}
			r.Discard()
			if !r.ok() {
				return
			}
		}
		r.CloseMap()
	}
}

// Destroy asserts the tracker is empty and invokes the teardown
// callback. Readers never flush; the analogous step to Writer.Destroy
// is simply the balance assertion.
func (r *Reader) Destroy() *Error {
	if r.ok() {
		if err := r.tracker.checkEmpty(); err != nil {
			r.fail(err)
		}
	}
	if r.onClose != nil {
		r.onClose()
	}
	return r.Err()
}
